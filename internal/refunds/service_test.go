package refunds

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/internal/orders"
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
	other  *models.User
	order  *models.Order
}

func newFixture(t *testing.T, status enums.OrderStatus) *fixture {
	t.Helper()
	client := dbtest.New(t)
	emitter := dbtest.Outbox(client)
	walletRepo := wallet.NewRepository(client.DB())
	ledger, err := wallet.NewLedger(walletRepo, emitter)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(client.DB()),
		Tx:      client,
		Outbox:  emitter,
		Orders:  orders.NewRepository(client.DB()),
		Wallets: walletRepo,
		Ledger:  ledger,
	})
	require.NoError(t, err)

	buyer := dbtest.User(t, client, "buyer@example.com", enums.RoleBuyer)
	seller := dbtest.User(t, client, "seller@example.com", enums.RoleSeller)
	other := dbtest.User(t, client, "other@example.com", enums.RoleSeller)
	p := dbtest.Product(t, client, seller.ID, 250000, 0, enums.ProductStatusApproved)
	order := dbtest.Order(t, client, buyer.ID, status, models.OrderItem{ProductID: p.ID, Quantity: 2, PriceCents: 250000})
	return &fixture{client: client, svc: svc, buyer: buyer, seller: seller, other: other, order: order}
}

func actorOf(u *models.User) authz.Actor {
	return authz.NewActor(u.ID, u.Role)
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(model).Count(&n).Error)
	return n
}

func (f *fixture) request(t *testing.T, amount int64) *RefundRequestDTO {
	t.Helper()
	dto, err := f.svc.Create(context.Background(), actorOf(f.buyer), CreateInput{OrderID: f.order.ID, Amount: money.ToDecimal(amount)})
	require.NoError(t, err)
	return dto
}

func TestCreateRejectsAmountAboveTotal(t *testing.T) {
	f := newFixture(t, enums.OrderStatusDelivered)
	require.Equal(t, int64(500000), f.order.TotalCents)

	_, err := f.svc.Create(context.Background(), actorOf(f.buyer), CreateInput{OrderID: f.order.ID, Amount: money.ToDecimal(600000)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.Zero(t, f.count(t, &models.RefundRequest{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))
}

func TestCreateRejectsAmountsThatDoNotFitInCents(t *testing.T) {
	for _, raw := range []string{
		"184467440737095517.16",
		"92233720368547758.08",
		"-92233720368547758.08",
		"10000000000000.01",
	} {
		t.Run(raw, func(t *testing.T) {
			f := newFixture(t, enums.OrderStatusDelivered)
			_, err := f.svc.Create(context.Background(), actorOf(f.buyer), CreateInput{
				OrderID: f.order.ID,
				Amount:  decimal.RequireFromString(raw),
			})
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
			assert.Zero(t, f.count(t, &models.RefundRequest{}))
			assert.Zero(t, f.count(t, &models.OutboxEvent{}))
		})
	}
}

func TestCreateRoundsAmountToCents(t *testing.T) {
	f := newFixture(t, enums.OrderStatusDelivered)
	dto, err := f.svc.Create(context.Background(), actorOf(f.buyer), CreateInput{
		OrderID: f.order.ID,
		Amount:  decimal.RequireFromString("12.345"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1235), dto.AmountCents)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		status enums.OrderStatus
		actor  func(f *fixture) authz.Actor
		input  func(f *fixture) CreateInput
		code   pkgerrors.Code
	}{
		{
			name:   "anonymous",
			status: enums.OrderStatusPending,
			actor:  func(*fixture) authz.Actor { return authz.Actor{} },
			input:  func(f *fixture) CreateInput { return CreateInput{OrderID: f.order.ID, Amount: money.ToDecimal(100)} },
			code:   pkgerrors.CodeUnauthorized,
		},
		{
			name:   "missing order",
			status: enums.OrderStatusPending,
			actor:  func(f *fixture) authz.Actor { return actorOf(f.buyer) },
			input:  func(f *fixture) CreateInput { return CreateInput{OrderID: 9999, Amount: money.ToDecimal(100)} },
			code:   pkgerrors.CodeNotFound,
		},
		{
			name:   "not the buyer",
			status: enums.OrderStatusPending,
			actor:  func(f *fixture) authz.Actor { return actorOf(f.seller) },
			input:  func(f *fixture) CreateInput { return CreateInput{OrderID: f.order.ID, Amount: money.ToDecimal(100)} },
			code:   pkgerrors.CodeForbidden,
		},
		{
			name:   "cancelled order",
			status: enums.OrderStatusCancelled,
			actor:  func(f *fixture) authz.Actor { return actorOf(f.buyer) },
			input:  func(f *fixture) CreateInput { return CreateInput{OrderID: f.order.ID, Amount: money.ToDecimal(100)} },
			code:   pkgerrors.CodeValidation,
		},
		{
			name:   "zero amount",
			status: enums.OrderStatusPending,
			actor:  func(f *fixture) authz.Actor { return actorOf(f.buyer) },
			input:  func(f *fixture) CreateInput { return CreateInput{OrderID: f.order.ID} },
			code:   pkgerrors.CodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.status)
			_, err := f.svc.Create(context.Background(), tt.actor(f), tt.input(f))
			require.True(t, pkgerrors.IsCode(err, tt.code), "got %v", err)
			assert.Zero(t, f.count(t, &models.RefundRequest{}))
		})
	}
}

func TestCreateAllowsFullAmountAndEmitsEvent(t *testing.T) {
	f := newFixture(t, enums.OrderStatusDelivered)
	dto := f.request(t, 500000)
	assert.Equal(t, enums.RequestStatusPending, dto.Status)
	assert.Equal(t, "5000.00", dto.Amount)

	events := dbtest.Events(t, f.client, enums.AggregateRefundRequest, dto.ID)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventRefundRequested, events[0].EventType)
}

func TestCreateRejectsSecondActiveRequest(t *testing.T) {
	f := newFixture(t, enums.OrderStatusDelivered)
	first := f.request(t, 100000)

	_, err := f.svc.Create(context.Background(), actorOf(f.buyer), CreateInput{OrderID: f.order.ID, Amount: money.ToDecimal(1000)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, msgAlreadyPending, pkgerrors.As(err).Message())

	_, err = f.svc.Approve(context.Background(), actorOf(f.seller), first.ID)
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), actorOf(f.buyer), CreateInput{OrderID: f.order.ID, Amount: money.ToDecimal(1000)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, msgAlreadyApproved, pkgerrors.As(err).Message())
}

func TestCreateAllowedAfterRejection(t *testing.T) {
	f := newFixture(t, enums.OrderStatusDelivered)
	first := f.request(t, 100000)
	_, err := f.svc.Reject(context.Background(), actorOf(f.seller), first.ID)
	require.NoError(t, err)

	second := f.request(t, 50000)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestApproveCreditsWallet(t *testing.T) {
	f := newFixture(t, enums.OrderStatusDelivered)
	w := dbtest.Wallet(t, f.client, f.buyer.ID, 0)
	req := f.request(t, 200000)

	dto, err := f.svc.Approve(context.Background(), actorOf(f.seller), req.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusApproved, dto.Status)

	var reloaded models.Wallet
	require.NoError(t, f.client.DB().First(&reloaded, w.ID).Error)
	assert.Equal(t, int64(200000), reloaded.BalanceCents)

	var refunds []models.WalletTransaction
	require.NoError(t, f.client.DB().Where("type = ?", enums.WalletTransactionRefund).Find(&refunds).Error)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(200000), refunds[0].AmountCents)
	require.NotNil(t, refunds[0].OrderID)
	assert.Equal(t, f.order.ID, *refunds[0].OrderID)

	events := dbtest.Events(t, f.client, enums.AggregateRefundRequest, req.ID)
	require.Len(t, events, 2)
	assert.Equal(t, enums.EventRefundApproved, events[1].EventType)
	assert.Contains(t, string(events[1].Payload), `"credited":true`)
}

func TestApproveTwiceFailsSecondTime(t *testing.T) {
	f := newFixture(t, enums.OrderStatusDelivered)
	dbtest.Wallet(t, f.client, f.buyer.ID, 0)
	req := f.request(t, 200000)

	_, err := f.svc.Approve(context.Background(), actorOf(f.seller), req.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), actorOf(f.seller), req.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, msgAlreadyProcessed, pkgerrors.As(err).Message())
	_, err = f.svc.Reject(context.Background(), actorOf(f.seller), req.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var n int64
	require.NoError(t, f.client.DB().Model(&models.WalletTransaction{}).Where("type = ?", enums.WalletTransactionRefund).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestApproveWithoutWalletSkipsCredit(t *testing.T) {
	f := newFixture(t, enums.OrderStatusDelivered)
	req := f.request(t, 200000)

	dto, err := f.svc.Approve(context.Background(), authz.NewActor(99, enums.RoleAdmin), req.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusApproved, dto.Status)
	assert.Zero(t, f.count(t, &models.Wallet{}))
	assert.Zero(t, f.count(t, &models.WalletTransaction{}))
}

func TestDecisionAuthorization(t *testing.T) {
	f := newFixture(t, enums.OrderStatusDelivered)
	req := f.request(t, 1000)

	_, err := f.svc.Approve(context.Background(), actorOf(f.other), req.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Reject(context.Background(), actorOf(f.buyer), req.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Approve(context.Background(), actorOf(f.seller), 9999)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	dto, err := f.svc.Reject(context.Background(), actorOf(f.seller), req.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusRejected, dto.Status)
}

func TestGetAndLists(t *testing.T) {
	f := newFixture(t, enums.OrderStatusDelivered)
	req := f.request(t, 1000)

	_, err := f.svc.Get(context.Background(), actorOf(f.seller), req.ID)
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), actorOf(f.other), req.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	mine, err := f.svc.ListMine(context.Background(), actorOf(f.buyer), pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, mine.Requests, 1)

	sellerList, err := f.svc.ListForSeller(context.Background(), actorOf(f.seller), pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, sellerList.Requests, 1)

	otherList, err := f.svc.ListForSeller(context.Background(), actorOf(f.other), pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, otherList.Requests)

	_, err = f.svc.ListAll(context.Background(), actorOf(f.seller), pagination.Params{Limit: 10})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	all, err := f.svc.ListAll(context.Background(), authz.NewActor(99, enums.RoleAdmin), pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all.Requests, 1)
}
