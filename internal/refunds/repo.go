package refunds

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

// Repository defines persistence for refund requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.RefundRequest) error
	FindByID(ctx context.Context, id int64) (*models.RefundRequest, error)
	FindActiveForOrder(ctx context.Context, orderID int64) (*models.RefundRequest, error)
	TransitionFromPending(ctx context.Context, id int64, to enums.RequestStatus) (bool, error)
	ListByUser(ctx context.Context, userID int64, params pagination.Params) ([]models.RefundRequest, error)
	ListForSeller(ctx context.Context, sellerID int64, params pagination.Params) ([]models.RefundRequest, error)
	ListAll(ctx context.Context, params pagination.Params) ([]models.RefundRequest, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a refund repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.RefundRequest) error {
	return r.db.WithContext(ctx).Omit("Order").Create(request).Error
}

// FindByID loads the request with its order, items and products so
// authorization can check item sellers.
func (r *repository) FindByID(ctx context.Context, id int64) (*models.RefundRequest, error) {
	var request models.RefundRequest
	err := r.withOrder(r.db.WithContext(ctx)).First(&request, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// FindActiveForOrder returns the order's pending or approved request,
// preferring an approved one.
func (r *repository) FindActiveForOrder(ctx context.Context, orderID int64) (*models.RefundRequest, error) {
	var request models.RefundRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, []enums.RequestStatus{enums.RequestStatusApproved, enums.RequestStatusPending}).
		Order("CASE WHEN status = 'approved' THEN 0 ELSE 1 END").
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// TransitionFromPending moves a pending request to its final status. It
// reports false when the request was no longer pending, so only one of two
// concurrent decisions wins.
func (r *repository) TransitionFromPending(ctx context.Context, id int64, to enums.RequestStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Where("id = ? AND status = ?", id, enums.RequestStatusPending).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int64, params pagination.Params) ([]models.RefundRequest, error) {
	return r.list(ctx, params, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	})
}

// ListForSeller returns requests on orders containing at least one of the
// seller's products.
func (r *repository) ListForSeller(ctx context.Context, sellerID int64, params pagination.Params) ([]models.RefundRequest, error) {
	return r.list(ctx, params, func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"order_id IN (SELECT oi.order_id FROM order_items oi JOIN products p ON p.id = oi.product_id WHERE p.seller_id = ?)",
			sellerID,
		)
	})
}

func (r *repository) ListAll(ctx context.Context, params pagination.Params) ([]models.RefundRequest, error) {
	return r.list(ctx, params, func(db *gorm.DB) *gorm.DB { return db })
}

func (r *repository) list(ctx context.Context, params pagination.Params, scope func(*gorm.DB) *gorm.DB) ([]models.RefundRequest, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	qb := r.withOrder(r.db.WithContext(ctx).Model(&models.RefundRequest{})).Scopes(scope)
	if cursor != nil {
		qb = qb.Where("id < ?", cursor.ID)
	}
	var rows []models.RefundRequest
	err = qb.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error
	return rows, err
}

func (r *repository) withOrder(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Order").
		Preload("Order.Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Order.Items.Product")
}
