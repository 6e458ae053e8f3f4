package admin

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
)

// Counts are the row totals shown on the admin dashboard.
type Counts struct {
	Users           int64
	Products        int64
	Orders          int64
	Transactions    int64
	PendingProducts int64
}

// Repository holds admin-only aggregate queries and account removal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Counts(ctx context.Context) (Counts, error)
	DeliveredOrderTotals(ctx context.Context) ([]int64, error)
	OwnedRecords(ctx context.Context, userID int64) (orders int64, products int64, err error)
	DeleteAccount(ctx context.Context, userID int64) error
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

func (r *repository) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db := r.db.WithContext(ctx)
	steps := []struct {
		model any
		where []any
		dest  *int64
	}{
		{model: &models.User{}, dest: &c.Users},
		{model: &models.Product{}, dest: &c.Products},
		{model: &models.Order{}, dest: &c.Orders},
		{model: &models.WalletTransaction{}, dest: &c.Transactions},
		{model: &models.Product{}, where: []any{"status = ?", enums.ProductStatusPending}, dest: &c.PendingProducts},
	}
	for _, step := range steps {
		qb := db.Model(step.model)
		if len(step.where) > 0 {
			qb = qb.Where(step.where[0], step.where[1:]...)
		}
		if err := qb.Count(step.dest).Error; err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}

// DeliveredOrderTotals returns total_cents of every delivered order.
func (r *repository) DeliveredOrderTotals(ctx context.Context) ([]int64, error) {
	var totals []int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ?", enums.OrderStatusDelivered).
		Pluck("total_cents", &totals).Error
	return totals, err
}

func (r *repository) OwnedRecords(ctx context.Context, userID int64) (int64, int64, error) {
	var orders, products int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Where("buyer_id = ?", userID).Count(&orders).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Where("seller_id = ?", userID).Count(&products).Error; err != nil {
		return 0, 0, err
	}
	return orders, products, nil
}

// DeleteAccount removes the user and the rows that only reference them.
// Callers must have checked that the user owns no orders or products.
func (r *repository) DeleteAccount(ctx context.Context, userID int64) error {
	db := r.db.WithContext(ctx)
	walletIDs := db.Model(&models.Wallet{}).Select("id").Where("user_id = ?", userID)
	steps := []func() error{
		func() error { return db.Where("user_id = ?", userID).Delete(&models.StockRequest{}).Error },
		func() error { return db.Where("user_id = ?", userID).Delete(&models.RefundRequest{}).Error },
		func() error { return db.Where("user_id = ?", userID).Delete(&models.Review{}).Error },
		func() error { return db.Where("wallet_id IN (?)", walletIDs).Delete(&models.WalletTransaction{}).Error },
		func() error { return db.Where("user_id = ?", userID).Delete(&models.Wallet{}).Error },
		func() error { return db.Where("user_id = ?", userID).Delete(&models.Profile{}).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	res := db.Delete(&models.User{}, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
