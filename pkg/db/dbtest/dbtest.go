// Package dbtest opens isolated sqlite databases for repository and
// workflow tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/handmade-market/pkg/db"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
)

// New returns a client backed by a private in-memory database with every
// model migrated. The single connection serializes transactions the same way
// row locks do on postgres.
func New(t testing.TB) *db.Client {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	client := db.Wrap(conn)
	if err := client.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return client
}

// Seed inserts the given rows in order and fails the test on error.
func Seed(t testing.TB, client *db.Client, rows ...any) {
	t.Helper()
	for _, row := range rows {
		if err := client.DB().Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}
}

// User inserts an account with the given role.
func User(t testing.TB, client *db.Client, email string, role enums.Role) *models.User {
	t.Helper()
	user := &models.User{Email: email, PasswordHash: "x", Role: role}
	Seed(t, client, user)
	return user
}

// Wallet inserts a wallet funded with an opening top-up so the balance
// matches the ledger.
func Wallet(t testing.TB, client *db.Client, userID int64, balance int64) *models.Wallet {
	t.Helper()
	wallet := &models.Wallet{UserID: userID, BalanceCents: balance}
	Seed(t, client, wallet)
	if balance != 0 {
		Seed(t, client, &models.WalletTransaction{
			WalletID:    wallet.ID,
			AmountCents: balance,
			Type:        enums.WalletTransactionTopUp,
		})
	}
	return wallet
}

// Product inserts a listing owned by sellerID.
func Product(t testing.TB, client *db.Client, sellerID int64, priceCents int64, stock int, status enums.ProductStatus) *models.Product {
	t.Helper()
	product := &models.Product{
		SellerID:   sellerID,
		Name:       "handmade item",
		PriceCents: priceCents,
		Stock:      stock,
		Status:     status,
	}
	Seed(t, client, product)
	return product
}

// Category inserts a category with the given slug.
func Category(t testing.TB, client *db.Client, name, slug string) *models.Category {
	t.Helper()
	category := &models.Category{Name: name, Slug: slug}
	Seed(t, client, category)
	return category
}

// Order inserts an order with one item per product and no side effects.
func Order(t testing.TB, client *db.Client, buyerID int64, status enums.OrderStatus, items ...models.OrderItem) *models.Order {
	t.Helper()
	var total int64
	for _, item := range items {
		total += item.PriceCents * int64(item.Quantity)
	}
	order := &models.Order{BuyerID: buyerID, TotalCents: total, Status: status, Items: items}
	Seed(t, client, order)
	return order
}

// Outbox returns an emitter that writes to the test database.
func Outbox(client *db.Client) *outbox.Service {
	return outbox.NewService(outbox.NewRepository(client.DB()), nil)
}

// Events returns the queued outbox rows for one aggregate, oldest first.
func Events(t testing.TB, client *db.Client, aggregate enums.OutboxAggregateType, id int64) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	err := client.DB().
		Where("aggregate_type = ? AND aggregate_id = ?", aggregate, id).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		t.Fatalf("load outbox events: %v", err)
	}
	return rows
}
