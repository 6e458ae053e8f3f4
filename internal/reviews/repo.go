package reviews

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

// Repository defines persistence for product reviews.
type Repository interface {
	Upsert(ctx context.Context, review *models.Review) error
	Find(ctx context.Context, userID, productID int64) (*models.Review, error)
	ListByProduct(ctx context.Context, productID int64, params pagination.Params) ([]models.Review, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Upsert inserts the review or, when the user already reviewed the product,
// overwrites its rating and comment.
func (r *repository) Upsert(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).
		Omit("User").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rating", "comment", "updated_at"}),
		}).
		Create(review).Error
}

func (r *repository) Find(ctx context.Context, userID, productID int64) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).
		Preload("User.Profile").
		First(&review, "user_id = ? AND product_id = ?", userID, productID).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// ListByProduct pages a product's reviews newest first.
func (r *repository) ListByProduct(ctx context.Context, productID int64, params pagination.Params) ([]models.Review, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	qb := r.db.WithContext(ctx).Preload("User.Profile").Where("product_id = ?", productID)
	if cursor != nil {
		qb = qb.Where("id < ?", cursor.ID)
	}
	var rows []models.Review
	err = qb.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error
	return rows, err
}
