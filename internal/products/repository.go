package product

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

// Repository wraps product persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads the product without associations.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads all products whose id is in ids. Missing ids are simply
// absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

// GetProductDetail fetches a product with its seller.
func (r *Repository) GetProductDetail(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Seller").
		Preload("Category").
		First(&product, "id = ?", id).
		Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct writes only the given columns so concurrent stock
// decrements are never overwritten.
func (r *Repository) UpdateProduct(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteProduct removes a product by ID.
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{}).Error
}

// CountOrderItems reports how many order lines reference the product.
func (r *Repository) CountOrderItems(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&count).Error
	return count, err
}

// DeleteStockRequests removes the product's stock requests.
func (r *Repository) DeleteStockRequests(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("product_id = ?", id).Delete(&models.StockRequest{}).Error
}

// DeleteReviews removes every review of the product.
func (r *Repository) DeleteReviews(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("product_id = ?", id).Delete(&models.Review{}).Error
}

// CategoryExists reports whether a category row with the id exists.
func (r *Repository) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// RatingSummary is the review count and mean rating of one product.
type RatingSummary struct {
	Count   int64
	Average *float64
}

// RatingSummary aggregates the product's reviews. Average is nil when
// there are none.
func (r *Repository) RatingSummary(ctx context.Context, id int64) (RatingSummary, error) {
	var row struct {
		Count   int64
		Average *float64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COUNT(*) AS count, AVG(rating) AS average").
		Where("product_id = ?", id).
		Scan(&row).Error
	if err != nil {
		return RatingSummary{}, err
	}
	if row.Count == 0 {
		row.Average = nil
	}
	return RatingSummary{Count: row.Count, Average: row.Average}, nil
}

type productListQuery struct {
	Pagination pagination.Params
	Filters    ProductListFilters
	// ApprovedOnly hides pending and rejected listings.
	ApprovedOnly bool
}

func (r *Repository) ListProducts(ctx context.Context, query productListQuery) ([]models.Product, error) {
	cursor, err := pagination.ParseCursor(query.Pagination.Cursor)
	if err != nil {
		return nil, err
	}

	qb := r.db.WithContext(ctx).Model(&models.Product{}).Preload("Category")

	filter := query.Filters
	if filter.Status != nil {
		qb = qb.Where("status = ?", *filter.Status)
	}
	if query.ApprovedOnly {
		qb = qb.Where("status = ?", enums.ProductStatusApproved)
	}
	if filter.SellerID != nil {
		qb = qb.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.CategoryID != nil {
		qb = qb.Where("category_id = ?", *filter.CategoryID)
	}
	if search := strings.TrimSpace(filter.Query); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		qb = qb.Where("(LOWER(name) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ? OR LOWER(COALESCE(materials, '')) LIKE ?)", pattern, pattern, pattern)
	}
	if cursor != nil {
		qb = qb.Where("id < ?", cursor.ID)
	}

	var rows []models.Product
	err = qb.Order("id DESC").Limit(pagination.LimitWithBuffer(query.Pagination.Limit)).Find(&rows).Error
	return rows, err
}
