// Command api serves the marketplace HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/handmade-market/api/routes"
	"github.com/angelmondragon/handmade-market/internal/admin"
	"github.com/angelmondragon/handmade-market/internal/auth"
	"github.com/angelmondragon/handmade-market/internal/categories"
	"github.com/angelmondragon/handmade-market/internal/inventory"
	"github.com/angelmondragon/handmade-market/internal/orders"
	product "github.com/angelmondragon/handmade-market/internal/products"
	"github.com/angelmondragon/handmade-market/internal/refunds"
	"github.com/angelmondragon/handmade-market/internal/reviews"
	"github.com/angelmondragon/handmade-market/internal/stockrequests"
	"github.com/angelmondragon/handmade-market/internal/users"
	"github.com/angelmondragon/handmade-market/internal/wallet"
	"github.com/angelmondragon/handmade-market/pkg/auth/session"
	"github.com/angelmondragon/handmade-market/pkg/config"
	"github.com/angelmondragon/handmade-market/pkg/db"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/metrics"
	"github.com/angelmondragon/handmade-market/pkg/migrate"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
	"github.com/angelmondragon/handmade-market/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.New(logger.Options{ServiceName: "api", Output: os.Stderr}).Error(ctx, "api.exit", err)
		os.Exit(1)
	}
}

// run serves until ctx ends, then drains in-flight requests.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	sessions, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps, err := buildServices(cfg, logg, dbClient, sessions, metrics.NewWorkflowMetrics(registry))
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	deps.Config = cfg
	deps.Logger = logg
	deps.DB = dbClient
	deps.Redis = redisClient
	deps.Sessions = sessions
	deps.Metrics = registry

	// PORT wins over the configured port so platform-assigned ports work.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": server.Addr})

	served := make(chan error, 1)
	go func() { served <- server.ListenAndServe() }()
	logg.Info(ctx, "api.listening")

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}
	logg.Info(ctx, "api.draining")
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return err
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildServices wires repositories, the wallet ledger and every workflow
// service onto one database client.
func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, sessions *session.Manager, outcomes *metrics.WorkflowMetrics) (routes.Dependencies, error) {
	gdb := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(gdb), logg)

	userRepo := users.NewRepository(gdb)
	walletRepo := wallet.NewRepository(gdb)
	productRepo := product.NewRepository(gdb)
	orderRepo := orders.NewRepository(gdb)

	ledger, err := wallet.NewLedger(walletRepo, emitter)
	if err != nil {
		return routes.Dependencies{}, err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Tx:                 dbClient,
		UserRepo:           userRepo,
		SessionManager:     sessions,
		JWTConfig:          cfg.JWT,
		PasswordConfig:     cfg.Password,
		AllowAdminRegister: cfg.FeatureFlags.AllowAdminRegister,
		Logger:             logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	userService, err := users.NewService(userRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}

	walletService, err := wallet.NewService(walletRepo, dbClient, ledger)
	if err != nil {
		return routes.Dependencies{}, err
	}

	productService, err := product.NewService(productRepo, dbClient, emitter)
	if err != nil {
		return routes.Dependencies{}, err
	}

	categoryService, err := categories.NewService(categories.NewRepository(gdb), productService, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	reviewService, err := reviews.NewService(reviews.NewRepository(gdb), productRepo, outcomes, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        dbClient,
		Outbox:    emitter,
		Products:  productRepo,
		Wallets:   walletRepo,
		Ledger:    ledger,
		Inventory: inventory.NewEngine(),
		Outcomes:  outcomes,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	refundService, err := refunds.NewService(refunds.ServiceParams{
		Repo:     refunds.NewRepository(gdb),
		Tx:       dbClient,
		Outbox:   emitter,
		Orders:   orderRepo,
		Wallets:  walletRepo,
		Ledger:   ledger,
		Outcomes: outcomes,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	stockService, err := stockrequests.NewService(stockrequests.NewRepository(gdb), dbClient, emitter, productRepo, outcomes, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	adminService, err := admin.NewService(admin.ServiceParams{
		Repo:     admin.NewRepository(gdb),
		Users:    userRepo,
		Wallets:  walletRepo,
		Ledger:   ledger,
		Tx:       dbClient,
		Commerce: cfg.Commerce,
		Outcomes: outcomes,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Auth:          authService,
		Users:         userService,
		Wallet:        walletService,
		Products:      productService,
		Categories:    categoryService,
		Reviews:       reviewService,
		Orders:        orderService,
		Refunds:       refundService,
		StockRequests: stockService,
		Admin:         adminService,
	}, nil
}
