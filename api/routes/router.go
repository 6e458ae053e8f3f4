package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/handmade-market/api/controllers"
	"github.com/angelmondragon/handmade-market/api/middleware"
	"github.com/angelmondragon/handmade-market/internal/admin"
	"github.com/angelmondragon/handmade-market/internal/auth"
	"github.com/angelmondragon/handmade-market/internal/categories"
	"github.com/angelmondragon/handmade-market/internal/orders"
	product "github.com/angelmondragon/handmade-market/internal/products"
	"github.com/angelmondragon/handmade-market/internal/refunds"
	"github.com/angelmondragon/handmade-market/internal/reviews"
	"github.com/angelmondragon/handmade-market/internal/stockrequests"
	"github.com/angelmondragon/handmade-market/internal/users"
	"github.com/angelmondragon/handmade-market/internal/wallet"
	"github.com/angelmondragon/handmade-market/pkg/auth/session"
	"github.com/angelmondragon/handmade-market/pkg/config"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type redisStore interface {
	pinger
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Dependencies bundles everything the router hands to controllers.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       pinger
	Redis    redisStore
	Sessions session.AccessSessionChecker
	Metrics  prometheus.Gatherer

	Auth          auth.Service
	Users         users.Service
	Wallet        wallet.Service
	Products      product.Service
	Categories    categories.Service
	Reviews       reviews.Service
	Orders        orders.Service
	Refunds       refunds.Service
	StockRequests stockrequests.Service
	Admin         admin.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	loginLimits := middleware.ThrottleLimits{
		Window:   cfg.AuthRateLimit.LoginWindow,
		PerIP:    cfg.AuthRateLimit.LoginIPLimit,
		PerEmail: cfg.AuthRateLimit.LoginEmailLimit,
	}
	registerLimits := middleware.ThrottleLimits{
		Window:   cfg.AuthRateLimit.RegisterWindow,
		PerIP:    cfg.AuthRateLimit.RegisterIPLimit,
		PerEmail: cfg.AuthRateLimit.RegisterEmailLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.ThrottleAuth("register", registerLimits, deps.Redis, logg)).Post("/register", controllers.AuthRegister(deps.Auth, logg))
		r.With(middleware.ThrottleAuth("login", loginLimits, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(deps.Auth, cfg.JWT, logg))
	})

	authenticated := middleware.Auth(cfg.JWT, deps.Sessions, logg)
	idempotent := middleware.Idempotency(deps.Redis, logg)
	sellerOnly := middleware.RequireRole(enums.RoleSeller, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg))
			r.Get("/products", controllers.ListProducts(deps.Products, logg))
			r.Get("/products/{productId}", controllers.ProductDetail(deps.Products, logg))
			r.Get("/products/{productId}/reviews", controllers.ProductReviews(deps.Reviews, logg))
			r.Get("/categories", controllers.ListCategories(deps.Categories, logg))
			r.Get("/categories/{categoryId}", controllers.CategoryDetail(deps.Categories, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated, idempotent)

			r.Get("/me", controllers.Me(deps.Users, logg))
			r.Put("/me/profile", controllers.UpdateProfile(deps.Users, logg))

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", controllers.MyWallet(deps.Wallet, logg))
				r.Get("/transactions", controllers.MyWalletTransactions(deps.Wallet, logg))
				r.Post("/top-up", controllers.TopUp(deps.Wallet, logg))
			})

			r.Post("/products", controllers.CreateProduct(deps.Products, logg))
			r.Patch("/products/{productId}", controllers.UpdateProduct(deps.Products, logg))
			r.Delete("/products/{productId}", controllers.DeleteProduct(deps.Products, logg))
			r.Put("/products/{productId}/reviews", controllers.SubmitReview(deps.Reviews, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.CreateOrder(deps.Orders, logg))
				r.Get("/", controllers.MyOrders(deps.Orders, logg))
				r.Post("/purchase", controllers.PurchaseWithWallet(deps.Orders, logg))
				r.Get("/selling", controllers.MySellerOrders(deps.Orders, logg))
				r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
				r.Patch("/{orderId}/status", controllers.UpdateOrderStatus(deps.Orders, logg))
			})

			r.Route("/refunds", func(r chi.Router) {
				r.Post("/", controllers.CreateRefundRequest(deps.Refunds, logg))
				r.Get("/", controllers.MyRefundRequests(deps.Refunds, logg))
				r.With(sellerOnly).Get("/selling", controllers.SellerRefundRequests(deps.Refunds, logg))
				r.Get("/{requestId}", controllers.RefundRequestDetail(deps.Refunds, logg))
				r.Post("/{requestId}/approve", controllers.ApproveRefundRequest(deps.Refunds, logg))
				r.Post("/{requestId}/reject", controllers.RejectRefundRequest(deps.Refunds, logg))
			})

			r.Route("/stock-requests", func(r chi.Router) {
				r.Post("/", controllers.CreateStockRequest(deps.StockRequests, logg))
				r.Get("/", controllers.MyStockRequests(deps.StockRequests, logg))
				r.With(sellerOnly).Get("/selling", controllers.SellerStockRequests(deps.StockRequests, logg))
				r.Post("/{requestId}/approve", controllers.ApproveStockRequest(deps.StockRequests, logg))
				r.Post("/{requestId}/reject", controllers.RejectStockRequest(deps.StockRequests, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(authenticated)
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(idempotent)

		r.Get("/stats", controllers.AdminStats(deps.Admin, logg))
		r.Get("/users", controllers.AdminUsers(deps.Admin, logg))
		r.Patch("/users/{userId}", controllers.AdminUpdateUser(deps.Admin, logg))
		r.Patch("/users/{userId}/role", controllers.AdminUpdateUserRole(deps.Admin, logg))
		r.Delete("/users/{userId}", controllers.AdminDeleteUser(deps.Admin, logg))
		r.Get("/users/{userId}/transactions", controllers.AdminUserTransactions(deps.Admin, logg))
		r.Get("/transactions", controllers.AdminTransactions(deps.Admin, logg))
		r.Post("/wallets/adjust", controllers.AdminAdjustBalance(deps.Admin, logg))
		r.Get("/refunds", controllers.AdminRefundRequests(deps.Refunds, logg))
		r.Post("/products/{productId}/approve", controllers.ModerateProduct(deps.Products, enums.ProductStatusApproved, logg))
		r.Post("/products/{productId}/reject", controllers.ModerateProduct(deps.Products, enums.ProductStatusRejected, logg))
		r.Post("/categories", controllers.AdminCreateCategory(deps.Categories, logg))
	})

	return r
}
