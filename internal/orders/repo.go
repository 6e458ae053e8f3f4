package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order together with its items.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items.Product").Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Product").
		First(&order, "id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateOrderStatus(ctx context.Context, orderID int64, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{"status": status, "updated_at": time.Now()}).Error
}

func (r *repository) ListBuyerOrders(ctx context.Context, buyerID int64, params pagination.Params) ([]models.Order, error) {
	return r.listOrders(ctx, params, func(db *gorm.DB) *gorm.DB {
		return db.Where("buyer_id = ?", buyerID)
	})
}

// ListSellerOrders returns orders that contain at least one product sold by
// sellerID. Every item is loaded, including other sellers' lines.
func (r *repository) ListSellerOrders(ctx context.Context, sellerID int64, params pagination.Params) ([]models.Order, error) {
	return r.listOrders(ctx, params, func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"id IN (SELECT oi.order_id FROM order_items oi JOIN products p ON p.id = oi.product_id WHERE p.seller_id = ?)",
			sellerID,
		)
	})
}

func (r *repository) listOrders(ctx context.Context, params pagination.Params, scope func(*gorm.DB) *gorm.DB) ([]models.Order, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	qb := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Product").
		Scopes(scope)
	if cursor != nil {
		qb = qb.Where("id < ?", cursor.ID)
	}
	var rows []models.Order
	err = qb.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error
	return rows, err
}
