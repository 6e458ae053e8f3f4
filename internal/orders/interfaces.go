package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/wallet"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status enums.OrderStatus) error
	ListBuyerOrders(ctx context.Context, buyerID int64, params pagination.Params) ([]models.Order, error)
	ListSellerOrders(ctx context.Context, sellerID int64, params pagination.Params) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ProductLoader reads the products referenced by a cart.
type ProductLoader interface {
	FindByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// WalletReader looks up the buyer's wallet before the purchase transaction.
type WalletReader interface {
	FindByUserID(ctx context.Context, userID int64) (*models.Wallet, error)
}

// WalletDebiter charges a wallet inside the purchase transaction.
type WalletDebiter interface {
	Debit(ctx context.Context, tx *gorm.DB, in wallet.EntryInput) (*models.WalletTransaction, error)
}

// StockDecrementer removes purchased units inside the order transaction.
type StockDecrementer interface {
	Decrement(ctx context.Context, tx *gorm.DB, productID int64, qty int) error
}

type outcomeRecorder interface {
	Observe(workflow string, err error)
}
