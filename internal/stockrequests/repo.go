package stockrequests

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

// Repository defines persistence for stock requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.StockRequest) error
	FindByID(ctx context.Context, id int64) (*models.StockRequest, error)
	FindActive(ctx context.Context, productID, userID int64) (*models.StockRequest, error)
	TransitionFromPending(ctx context.Context, id int64, to enums.RequestStatus, expected *time.Time) (bool, error)
	ListByUser(ctx context.Context, userID int64, params pagination.Params) ([]models.StockRequest, error)
	ListForSeller(ctx context.Context, sellerID int64, params pagination.Params) ([]models.StockRequest, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.StockRequest) error {
	return r.db.WithContext(ctx).Omit("Product").Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.StockRequest, error) {
	var request models.StockRequest
	if err := r.db.WithContext(ctx).Preload("Product").First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// FindActive returns the user's pending or approved request for a product,
// approved first.
func (r *repository) FindActive(ctx context.Context, productID, userID int64) (*models.StockRequest, error) {
	var request models.StockRequest
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND user_id = ? AND status IN ?", productID, userID,
			[]enums.RequestStatus{enums.RequestStatusApproved, enums.RequestStatusPending}).
		Order("CASE WHEN status = 'approved' THEN 0 ELSE 1 END").
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// TransitionFromPending reports false when the request already left pending.
func (r *repository) TransitionFromPending(ctx context.Context, id int64, to enums.RequestStatus, expected *time.Time) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": time.Now()}
	if expected != nil {
		updates["expected_completion_date"] = *expected
	}
	res := r.db.WithContext(ctx).
		Model(&models.StockRequest{}).
		Where("id = ? AND status = ?", id, enums.RequestStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int64, params pagination.Params) ([]models.StockRequest, error) {
	return r.list(ctx, params, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	})
}

func (r *repository) ListForSeller(ctx context.Context, sellerID int64, params pagination.Params) ([]models.StockRequest, error) {
	return r.list(ctx, params, func(db *gorm.DB) *gorm.DB {
		return db.Where("product_id IN (SELECT id FROM products WHERE seller_id = ?)", sellerID)
	})
}

func (r *repository) list(ctx context.Context, params pagination.Params, scope func(*gorm.DB) *gorm.DB) ([]models.StockRequest, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	qb := r.db.WithContext(ctx).Model(&models.StockRequest{}).Preload("Product").Scopes(scope)
	if cursor != nil {
		qb = qb.Where("id < ?", cursor.ID)
	}
	var rows []models.StockRequest
	err = qb.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error
	return rows, err
}
