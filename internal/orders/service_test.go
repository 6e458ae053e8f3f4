package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/internal/inventory"
	product "github.com/angelmondragon/handmade-market/internal/products"
	"github.com/angelmondragon/handmade-market/internal/wallet"
	"github.com/angelmondragon/handmade-market/pkg/db"
	"github.com/angelmondragon/handmade-market/pkg/db/dbtest"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/money"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

type fixture struct {
	client *db.Client
	svc    Service
	buyer  *models.User
	seller *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.New(t)
	emitter := dbtest.Outbox(client)
	walletRepo := wallet.NewRepository(client.DB())
	ledger, err := wallet.NewLedger(walletRepo, emitter)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(client.DB()),
		Tx:        client,
		Outbox:    emitter,
		Products:  product.NewRepository(client.DB()),
		Wallets:   walletRepo,
		Ledger:    ledger,
		Inventory: inventory.NewEngine(),
	})
	require.NoError(t, err)
	return &fixture{
		client: client,
		svc:    svc,
		buyer:  dbtest.User(t, client, "buyer@example.com", enums.RoleBuyer),
		seller: dbtest.User(t, client, "seller@example.com", enums.RoleSeller),
	}
}

func (f *fixture) buyerActor() authz.Actor {
	return authz.NewActor(f.buyer.ID, f.buyer.Role)
}

func (f *fixture) sellerActor() authz.Actor {
	return authz.NewActor(f.seller.ID, f.seller.Role)
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.client.DB().First(&p, productID).Error)
	return p.Stock
}

func (f *fixture) balance(t *testing.T, walletID int64) int64 {
	t.Helper()
	var w models.Wallet
	require.NoError(t, f.client.DB().First(&w, walletID).Error)
	return w.BalanceCents
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(model).Count(&n).Error)
	return n
}

func TestPurchaseDebitsWalletAndStock(t *testing.T) {
	f := newFixture(t)
	w := dbtest.Wallet(t, f.client, f.buyer.ID, 500000)
	a := dbtest.Product(t, f.client, f.seller.ID, 100000, 5, enums.ProductStatusApproved)
	b := dbtest.Product(t, f.client, f.seller.ID, 50000, 4, enums.ProductStatusApproved)

	res := f.svc.Purchase(context.Background(), f.buyerActor(), PlaceOrderInput{
		Items:           []CartLine{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 2}},
		ShippingAddress: "Ulaanbaatar",
	})
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Order)
	assert.Equal(t, int64(300000), res.Order.TotalCents)
	assert.Equal(t, enums.OrderStatusPending, res.Order.Status)
	require.Len(t, res.Order.Items, 2)
	assert.Equal(t, int64(100000), res.Order.Items[0].PriceCents)

	assert.Equal(t, int64(200000), f.balance(t, w.ID))
	assert.Equal(t, 3, f.stock(t, a.ID))
	assert.Equal(t, 2, f.stock(t, b.ID))

	var purchases []models.WalletTransaction
	require.NoError(t, f.client.DB().Where("type = ?", enums.WalletTransactionPurchase).Find(&purchases).Error)
	require.Len(t, purchases, 1)
	assert.Equal(t, int64(-300000), purchases[0].AmountCents)
	require.NotNil(t, purchases[0].OrderID)
	assert.Equal(t, res.Order.ID, *purchases[0].OrderID)

	mismatches, err := wallet.NewRepository(f.client.DB()).FindLedgerMismatches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	events := dbtest.Events(t, f.client, enums.AggregateOrder, res.Order.ID)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderPlaced, events[0].EventType)
}

func TestPurchaseInsufficientBalanceChangesNothing(t *testing.T) {
	f := newFixture(t)
	w := dbtest.Wallet(t, f.client, f.buyer.ID, 100000)
	p := dbtest.Product(t, f.client, f.seller.ID, 150000, 5, enums.ProductStatusApproved)

	res := f.svc.Purchase(context.Background(), f.buyerActor(), PlaceOrderInput{
		Items: []CartLine{{ProductID: p.ID, Quantity: 2}},
	})
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient balance", res.Message)
	assert.Nil(t, res.Order)

	assert.Equal(t, int64(100000), f.balance(t, w.ID))
	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.OrderItem{}))
	assert.Equal(t, int64(1), f.count(t, &models.WalletTransaction{}))
}

func TestPurchaseConcurrentBuyersNeverOversell(t *testing.T) {
	f := newFixture(t)
	other := dbtest.User(t, f.client, "other@example.com", enums.RoleBuyer)
	dbtest.Wallet(t, f.client, f.buyer.ID, 100000)
	dbtest.Wallet(t, f.client, other.ID, 100000)
	p := dbtest.Product(t, f.client, f.seller.ID, 1000, 3, enums.ProductStatusApproved)

	actors := []authz.Actor{f.buyerActor(), authz.NewActor(other.ID, other.Role)}
	results := make([]PurchaseResult, len(actors))
	var wg sync.WaitGroup
	for i, actor := range actors {
		wg.Add(1)
		go func(i int, actor authz.Actor) {
			defer wg.Done()
			results[i] = f.svc.Purchase(context.Background(), actor, PlaceOrderInput{
				Items: []CartLine{{ProductID: p.ID, Quantity: 2}},
			})
		}(i, actor)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
			continue
		}
		assert.Equal(t, "insufficient stock", res.Message)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.stock(t, p.ID))
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
}

func TestPurchaseValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(t *testing.T, f *fixture) []CartLine
		message string
	}{
		{
			name:    "empty cart",
			setup:   func(t *testing.T, f *fixture) []CartLine { return nil },
			message: "cart is empty",
		},
		{
			name: "no wallet",
			setup: func(t *testing.T, f *fixture) []CartLine {
				p := dbtest.Product(t, f.client, f.seller.ID, 1000, 1, enums.ProductStatusApproved)
				return []CartLine{{ProductID: p.ID, Quantity: 1}}
			},
			message: "wallet not found",
		},
		{
			name: "missing product",
			setup: func(t *testing.T, f *fixture) []CartLine {
				dbtest.Wallet(t, f.client, f.buyer.ID, 1000)
				return []CartLine{{ProductID: 9999, Quantity: 1}}
			},
			message: "some products were not found",
		},
		{
			name: "pending product",
			setup: func(t *testing.T, f *fixture) []CartLine {
				dbtest.Wallet(t, f.client, f.buyer.ID, 1000)
				p := dbtest.Product(t, f.client, f.seller.ID, 100, 1, enums.ProductStatusPending)
				return []CartLine{{ProductID: p.ID, Quantity: 1}}
			},
			message: `product "handmade item" is not available for sale`,
		},
		{
			name: "duplicate lines exceed stock",
			setup: func(t *testing.T, f *fixture) []CartLine {
				dbtest.Wallet(t, f.client, f.buyer.ID, 100000)
				p := dbtest.Product(t, f.client, f.seller.ID, 100, 3, enums.ProductStatusApproved)
				return []CartLine{{ProductID: p.ID, Quantity: 2}, {ProductID: p.ID, Quantity: 2}}
			},
			message: "insufficient stock",
		},
		{
			name: "zero quantity",
			setup: func(t *testing.T, f *fixture) []CartLine {
				return []CartLine{{ProductID: 1, Quantity: 0}}
			},
			message: "quantity must be greater than zero",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			items := tc.setup(t, f)
			res := f.svc.Purchase(context.Background(), f.buyerActor(), PlaceOrderInput{Items: items})
			assert.False(t, res.Success)
			assert.Equal(t, tc.message, res.Message)
			assert.Zero(t, f.count(t, &models.Order{}))
		})
	}
}

func TestPurchaseAnonymousReturnsResult(t *testing.T) {
	f := newFixture(t)
	res := f.svc.Purchase(context.Background(), authz.Actor{}, PlaceOrderInput{})
	assert.False(t, res.Success)
	assert.Equal(t, "authentication required", res.Message)
}

func TestCreateOrderSkipsWallet(t *testing.T) {
	f := newFixture(t)
	p := dbtest.Product(t, f.client, f.seller.ID, 2500, 2, enums.ProductStatusApproved)

	order, err := f.svc.CreateOrder(context.Background(), f.buyerActor(), PlaceOrderInput{
		Items: []CartLine{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), order.TotalCents)
	assert.Equal(t, 0, f.stock(t, p.ID))
	assert.Zero(t, f.count(t, &models.WalletTransaction{}))

	_, err = f.svc.CreateOrder(context.Background(), f.buyerActor(), PlaceOrderInput{
		Items: []CartLine{{ProductID: p.ID, Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	_, err = f.svc.CreateOrder(context.Background(), authz.Actor{}, PlaceOrderInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestOrderTotalThatWouldOverflowIsRejected(t *testing.T) {
	f := newFixture(t)
	dbtest.Wallet(t, f.client, f.buyer.ID, money.MaxCents)
	huge := dbtest.Product(t, f.client, f.seller.ID, 5_000_000_000_000_000_000, 5, enums.ProductStatusApproved)
	capped := dbtest.Product(t, f.client, f.seller.ID, money.MaxCents, 5, enums.ProductStatusApproved)

	carts := map[string][]CartLine{
		"wraps int64":  {{ProductID: huge.ID, Quantity: 2}},
		"exceeds cap":  {{ProductID: capped.ID, Quantity: 2}},
		"sum of lines": {{ProductID: capped.ID, Quantity: 1}, {ProductID: huge.ID, Quantity: 1}},
	}
	for name, cart := range carts {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(context.Background(), f.buyerActor(), PlaceOrderInput{Items: cart})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

			res := f.svc.Purchase(context.Background(), f.buyerActor(), PlaceOrderInput{Items: cart})
			assert.False(t, res.Success)
			assert.Equal(t, "order total is too large", res.Message)
		})
	}
	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Equal(t, 5, f.stock(t, huge.ID))
	assert.Equal(t, 5, f.stock(t, capped.ID))
}

func TestUpdateStatusAuthorization(t *testing.T) {
	f := newFixture(t)
	admin := dbtest.User(t, f.client, "admin@example.com", enums.RoleAdmin)
	stranger := dbtest.User(t, f.client, "stranger@example.com", enums.RoleSeller)
	p := dbtest.Product(t, f.client, f.seller.ID, 1000, 1, enums.ProductStatusApproved)
	order := dbtest.Order(t, f.client, f.buyer.ID, enums.OrderStatusPending,
		models.OrderItem{ProductID: p.ID, Quantity: 1, PriceCents: 1000})

	_, err := f.svc.UpdateStatus(context.Background(), f.buyerActor(), order.ID, enums.OrderStatusShipped)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.UpdateStatus(context.Background(), authz.NewActor(stranger.ID, stranger.Role), order.ID, enums.OrderStatusShipped)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.UpdateStatus(context.Background(), f.sellerActor(), 9999, enums.OrderStatusShipped)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.UpdateStatus(context.Background(), f.sellerActor(), order.ID, enums.OrderStatus("lost"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	updated, err := f.svc.UpdateStatus(context.Background(), f.sellerActor(), order.ID, enums.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, updated.Status)

	// Any transition is accepted, including leaving a terminal state.
	updated, err = f.svc.UpdateStatus(context.Background(), authz.NewActor(admin.ID, admin.Role), order.ID, enums.OrderStatusPending)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, updated.Status)

	events := dbtest.Events(t, f.client, enums.AggregateOrder, order.ID)
	assert.Len(t, events, 2)
}

func TestGetOrderVisibility(t *testing.T) {
	f := newFixture(t)
	stranger := dbtest.User(t, f.client, "stranger@example.com", enums.RoleBuyer)
	p := dbtest.Product(t, f.client, f.seller.ID, 1000, 1, enums.ProductStatusApproved)
	order := dbtest.Order(t, f.client, f.buyer.ID, enums.OrderStatusPending,
		models.OrderItem{ProductID: p.ID, Quantity: 1, PriceCents: 1000})

	for _, actor := range []authz.Actor{f.buyerActor(), f.sellerActor()} {
		got, err := f.svc.GetOrder(context.Background(), actor, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
	}

	_, err := f.svc.GetOrder(context.Background(), authz.NewActor(stranger.ID, stranger.Role), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestListSellerOrders(t *testing.T) {
	f := newFixture(t)
	otherSeller := dbtest.User(t, f.client, "other@example.com", enums.RoleSeller)
	mine := dbtest.Product(t, f.client, f.seller.ID, 1000, 10, enums.ProductStatusApproved)
	theirs := dbtest.Product(t, f.client, otherSeller.ID, 1000, 10, enums.ProductStatusApproved)
	mixed := dbtest.Order(t, f.client, f.buyer.ID, enums.OrderStatusPending,
		models.OrderItem{ProductID: mine.ID, Quantity: 1, PriceCents: 1000},
		models.OrderItem{ProductID: theirs.ID, Quantity: 1, PriceCents: 1000})
	dbtest.Order(t, f.client, f.buyer.ID, enums.OrderStatusPending,
		models.OrderItem{ProductID: theirs.ID, Quantity: 1, PriceCents: 1000})

	list, err := f.svc.ListSellerOrders(context.Background(), f.sellerActor(), pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, mixed.ID, list.Orders[0].ID)
	assert.Len(t, list.Orders[0].Items, 2)

	buyerList, err := f.svc.ListBuyerOrders(context.Background(), f.buyerActor(), pagination.Params{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, buyerList.Orders, 1)
	assert.NotEmpty(t, buyerList.NextCursor)
}
