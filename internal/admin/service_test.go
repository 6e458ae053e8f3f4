package admin

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/internal/users"
	"github.com/angelmondragon/handmade-market/internal/wallet"
	"github.com/angelmondragon/handmade-market/pkg/config"
	"github.com/angelmondragon/handmade-market/pkg/db"
	"github.com/angelmondragon/handmade-market/pkg/db/dbtest"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

type fixture struct {
	client *db.Client
	svc    Service
	admin  authz.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.New(t)
	walletRepo := wallet.NewRepository(client.DB())
	ledger, err := wallet.NewLedger(walletRepo, dbtest.Outbox(client))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(client.DB()),
		Users:    users.NewRepository(client.DB()),
		Wallets:  walletRepo,
		Ledger:   ledger,
		Tx:       client,
		Commerce: config.CommerceConfig{CommissionRatePercent: 5},
	})
	require.NoError(t, err)
	admin := dbtest.User(t, client, "admin@example.com", enums.RoleAdmin)
	return &fixture{client: client, svc: svc, admin: authz.NewActor(admin.ID, admin.Role)}
}

func TestRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	seller := authz.NewActor(50, enums.RoleSeller)

	_, err := f.svc.Stats(context.Background(), seller)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Users(context.Background(), authz.Actor{}, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	err = f.svc.DeleteUser(context.Background(), seller, 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	buyer := dbtest.User(t, f.client, "buyer@example.com", enums.RoleBuyer)
	seller := dbtest.User(t, f.client, "seller@example.com", enums.RoleSeller)
	w := dbtest.Wallet(t, f.client, buyer.ID, 100000)
	p := dbtest.Product(t, f.client, seller.ID, 3333, 5, enums.ProductStatusApproved)
	dbtest.Product(t, f.client, seller.ID, 1000, 5, enums.ProductStatusPending)

	delivered := dbtest.Order(t, f.client, buyer.ID, enums.OrderStatusDelivered, models.OrderItem{ProductID: p.ID, Quantity: 1, PriceCents: 3333})
	dbtest.Order(t, f.client, buyer.ID, enums.OrderStatusPending, models.OrderItem{ProductID: p.ID, Quantity: 3, PriceCents: 3333})
	orderID := delivered.ID
	dbtest.Seed(t, f.client,
		&models.WalletTransaction{WalletID: w.ID, AmountCents: -3333, Type: enums.WalletTransactionPurchase, OrderID: &orderID},
		&models.WalletTransaction{WalletID: w.ID, AmountCents: -9999, Type: enums.WalletTransactionPurchase},
		&models.WalletTransaction{WalletID: w.ID, AmountCents: 5000, Type: enums.WalletTransactionTopUp, CreatedAt: time.Now().Add(-72 * time.Hour)},
	)

	stats, err := f.svc.Stats(context.Background(), f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.TotalProducts)
	assert.Equal(t, int64(1), stats.PendingProducts)
	assert.Equal(t, int64(2), stats.TotalOrders)
	assert.Equal(t, int64(4), stats.TotalTransactions)
	assert.Equal(t, "133.32", stats.TotalRevenue)
	assert.Equal(t, "1000.00", stats.TodayTopUps)
	assert.Equal(t, "6.66", stats.SystemCommission)
	assert.Equal(t, "1.66", stats.TotalCommissionEarned)
}

func TestAdjustBalance(t *testing.T) {
	f := newFixture(t)
	user := dbtest.User(t, f.client, "buyer@example.com", enums.RoleBuyer)

	res, err := f.svc.AdjustBalance(context.Background(), f.admin, AdjustBalanceInput{UserID: user.ID, Amount: decimal.RequireFromString("150.50")})
	require.NoError(t, err)
	assert.Equal(t, int64(15050), res.Wallet.BalanceCents)
	assert.Equal(t, enums.WalletTransactionTopUp, res.Transaction.Type)
	require.NotNil(t, res.Transaction.Description)
	assert.Equal(t, "admin adjustment: 150.50", *res.Transaction.Description)

	note := "chargeback"
	res, err = f.svc.AdjustBalance(context.Background(), f.admin, AdjustBalanceInput{UserID: user.ID, Amount: decimal.RequireFromString("-50.50"), Description: &note})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), res.Wallet.BalanceCents)
	assert.Equal(t, enums.WalletTransactionWithdrawal, res.Transaction.Type)
	assert.Equal(t, int64(-5050), res.Transaction.AmountCents)
	assert.Equal(t, "chargeback", *res.Transaction.Description)

	_, err = f.svc.AdjustBalance(context.Background(), f.admin, AdjustBalanceInput{UserID: user.ID, Amount: decimal.RequireFromString("-100.01")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance), "got %v", err)

	_, err = f.svc.AdjustBalance(context.Background(), f.admin, AdjustBalanceInput{UserID: user.ID, Amount: decimal.Zero})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.AdjustBalance(context.Background(), f.admin, AdjustBalanceInput{UserID: user.ID, Amount: decimal.RequireFromString("-92233720368547758.08")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	_, err = f.svc.AdjustBalance(context.Background(), f.admin, AdjustBalanceInput{UserID: 9999, Amount: decimal.NewFromInt(1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	mismatches, err := wallet.NewRepository(f.client.DB()).FindLedgerMismatches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestTransactions(t *testing.T) {
	f := newFixture(t)
	user := dbtest.User(t, f.client, "buyer@example.com", enums.RoleBuyer)

	_, err := f.svc.UserTransactions(context.Background(), f.admin, user.ID, pagination.Params{Limit: 10})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	w := dbtest.Wallet(t, f.client, user.ID, 2000)
	dbtest.Seed(t, f.client, &models.WalletTransaction{WalletID: w.ID, AmountCents: 1000, Type: enums.WalletTransactionRefund})

	list, err := f.svc.UserTransactions(context.Background(), f.admin, user.ID, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list.Transactions, 2)

	all, err := f.svc.Transactions(context.Background(), f.admin, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, user.ID, all[0].UserID)
	assert.Equal(t, "buyer@example.com", all[0].UserEmail)
}

func TestUpdateUserAndRole(t *testing.T) {
	f := newFixture(t)
	user := dbtest.User(t, f.client, "buyer@example.com", enums.RoleBuyer)
	dbtest.User(t, f.client, "taken@example.com", enums.RoleBuyer)

	name := "Bold"
	email := " New@Example.com "
	dto, err := f.svc.UpdateUser(context.Background(), f.admin, user.ID, UpdateUserInput{
		Email:   &email,
		Profile: users.ProfileInput{FirstName: &name},
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", dto.Email)
	require.NotNil(t, dto.Profile)
	assert.Equal(t, "Bold", *dto.Profile.FirstName)

	dto, err = f.svc.UpdateUserRole(context.Background(), f.admin, user.ID, enums.RoleSeller)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleSeller, dto.Role)

	_, err = f.svc.UpdateUserRole(context.Background(), f.admin, user.ID, "owner")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	taken := "taken@example.com"
	_, err = f.svc.UpdateUser(context.Background(), f.admin, user.ID, UpdateUserInput{Email: &taken})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	_, err = f.svc.UpdateUserRole(context.Background(), f.admin, 9999, enums.RoleSeller)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	buyer := dbtest.User(t, f.client, "buyer@example.com", enums.RoleBuyer)
	seller := dbtest.User(t, f.client, "seller@example.com", enums.RoleSeller)
	idle := dbtest.User(t, f.client, "idle@example.com", enums.RoleBuyer)
	p := dbtest.Product(t, f.client, seller.ID, 1000, 0, enums.ProductStatusApproved)
	dbtest.Order(t, f.client, buyer.ID, enums.OrderStatusPending, models.OrderItem{ProductID: p.ID, Quantity: 1, PriceCents: 1000})
	dbtest.Wallet(t, f.client, idle.ID, 500)
	dbtest.Seed(t, f.client,
		&models.Profile{UserID: idle.ID},
		&models.StockRequest{ProductID: p.ID, UserID: idle.ID, Quantity: 1, Status: enums.RequestStatusPending},
	)

	err := f.svc.DeleteUser(context.Background(), f.admin, f.admin.AccountID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = f.svc.DeleteUser(context.Background(), f.admin, buyer.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = f.svc.DeleteUser(context.Background(), f.admin, seller.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = f.svc.DeleteUser(context.Background(), f.admin, 9999)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, f.svc.DeleteUser(context.Background(), f.admin, idle.ID))
	for _, model := range []any{&models.Wallet{}, &models.WalletTransaction{}, &models.Profile{}, &models.StockRequest{}} {
		var n int64
		require.NoError(t, f.client.DB().Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T left behind", model)
	}
	var remaining int64
	require.NoError(t, f.client.DB().Model(&models.User{}).Count(&remaining).Error)
	assert.Equal(t, int64(3), remaining)
}

func TestUsersFilter(t *testing.T) {
	f := newFixture(t)
	dbtest.User(t, f.client, "s@example.com", enums.RoleSeller)
	dbtest.User(t, f.client, "b@example.com", enums.RoleBuyer)

	role := enums.RoleSeller
	list, err := f.svc.Users(context.Background(), f.admin, &role)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s@example.com", list[0].Email)

	all, err := f.svc.Users(context.Background(), f.admin, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
