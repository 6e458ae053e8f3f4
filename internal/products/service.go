package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/money"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
	"github.com/angelmondragon/handmade-market/pkg/outbox/payloads"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

// Service exposes catalog management and moderation.
type Service interface {
	CreateProduct(ctx context.Context, actor authz.Actor, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, actor authz.Actor, productID int64, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, actor authz.Actor, productID int64) error
	GetProduct(ctx context.Context, productID int64) (*ProductDTO, error)
	ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error)
	Moderate(ctx context.Context, actor authz.Actor, productID int64, status enums.ProductStatus) (*ProductDTO, error)
}

// CreateProductInput holds the validated payload to create a product.
// PriceCents has already been converted from the request's decimal price.
type CreateProductInput struct {
	Name        string
	Description *string
	PriceCents  int64
	Stock       int
	Materials   *string
	TimeToMake  *string
	CategoryID  *int64
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	Name        *string
	Description *string
	PriceCents  *int64
	Stock       *int
	Materials   *string
	TimeToMake  *string
	CategoryID  *int64
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outboxPublisher
}

// NewService constructs a product service instance.
func NewService(repo *Repository, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox}, nil
}

// CreateProduct lists a new product awaiting admin approval.
func (s *service) CreateProduct(ctx context.Context, actor authz.Actor, input CreateProductInput) (*ProductDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if !authz.IsSeller(actor) && !authz.IsAdmin(actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers can list products")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := validatePrice(input.PriceCents); err != nil {
		return nil, err
	}
	if input.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	if err := s.checkCategory(ctx, input.CategoryID); err != nil {
		return nil, err
	}

	product := &models.Product{
		SellerID:    actor.AccountID,
		Name:        name,
		Description: trimPtr(input.Description),
		PriceCents:  input.PriceCents,
		Stock:       input.Stock,
		Status:      enums.ProductStatusPending,
		Materials:   trimPtr(input.Materials),
		TimeToMake:  trimPtr(input.TimeToMake),
		CategoryID:  input.CategoryID,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: insert product")
	}
	dto := NewProductDTO(created)
	return &dto, nil
}

// UpdateProduct changes a listing owned by the caller. Admins may edit any
// listing.
func (s *service) UpdateProduct(ctx context.Context, actor authz.Actor, productID int64, input UpdateProductInput) (*ProductDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	product, err := s.load(ctx, s.repo, productID)
	if err != nil {
		return nil, err
	}
	if !authz.IsOwner(actor, product.SellerID) && !authz.IsAdmin(actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to edit this product")
	}
	updates, err := applyUpdateToProduct(product, input)
	if err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, input.CategoryID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProduct(ctx, productID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: update product")
	}
	return s.GetProduct(ctx, productID)
}

// DeleteProduct removes a listing along with its stock requests and
// reviews. Listings that appear in orders keep their row so order history
// stays intact.
func (s *service) DeleteProduct(ctx context.Context, actor authz.Actor, productID int64) error {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return err
	}
	product, err := s.load(ctx, s.repo, productID)
	if err != nil {
		return err
	}
	if !authz.IsOwner(actor, product.SellerID) && !authz.IsAdmin(actor) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to delete this product")
	}
	ordered, err := s.repo.CountOrderItems(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: count order items")
	}
	if ordered > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product has orders and cannot be deleted")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteStockRequests(ctx, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: delete stock requests")
		}
		if err := repo.DeleteReviews(ctx, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: delete reviews")
		}
		if err := repo.DeleteProduct(ctx, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: delete product")
		}
		return nil
	})
}

func (s *service) GetProduct(ctx context.Context, productID int64) (*ProductDTO, error) {
	product, err := s.repo.GetProductDetail(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load product")
	}
	summary, err := s.repo.RatingSummary(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: summarize reviews")
	}
	dto := NewProductDTO(product)
	dto.ReviewCount = &summary.Count
	dto.Rating = summary.Average
	return &dto, nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	if input.Filters.Status != nil && !input.Filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	rows, err := s.repo.ListProducts(ctx, productListQuery{
		Pagination:   input.Pagination,
		Filters:      input.Filters,
		ApprovedOnly: input.approvedOnly(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "list products")
	}
	rows, next := pagination.Trim(rows, input.Pagination.Limit, func(p models.Product) int64 { return p.ID })
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewProductDTO(&rows[i]))
	}
	return &ProductListResult{Products: out, NextCursor: next}, nil
}

// Moderate sets a product's status on behalf of an admin and records a
// product_moderated event.
func (s *service) Moderate(ctx context.Context, actor authz.Actor, productID int64, status enums.ProductStatus) (*ProductDTO, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if status != enums.ProductStatusApproved && status != enums.ProductStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be approved or rejected")
	}

	var product *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		product, err = s.load(ctx, repo, productID)
		if err != nil {
			return err
		}
		product.Status = status
		if err := repo.UpdateProduct(ctx, product.ID, map[string]any{"status": status}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: update product status")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductModerated,
			AggregateType: enums.AggregateProduct,
			AggregateID:   product.ID,
			Actor:         outbox.Actor(actor.AccountID, actor.Role.String()),
			Data: payloads.ProductModeratedEvent{
				ProductID: product.ID,
				SellerID:  product.SellerID,
				Status:    status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	dto := NewProductDTO(product)
	return &dto, nil
}

func (s *service) load(ctx context.Context, repo *Repository, productID int64) (*models.Product, error) {
	product, err := repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load product")
	}
	return product, nil
}

// applyUpdateToProduct validates the patch, applies it to product and
// returns the changed columns.
func applyUpdateToProduct(product *models.Product, input UpdateProductInput) (map[string]any, error) {
	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		product.Name = name
		updates["name"] = name
	}
	if input.Description != nil {
		product.Description = trimPtr(input.Description)
		updates["description"] = product.Description
	}
	if input.PriceCents != nil {
		if err := validatePrice(*input.PriceCents); err != nil {
			return nil, err
		}
		product.PriceCents = *input.PriceCents
		updates["price_cents"] = product.PriceCents
	}
	if input.Stock != nil {
		if *input.Stock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
		}
		product.Stock = *input.Stock
		updates["stock"] = product.Stock
	}
	if input.Materials != nil {
		product.Materials = trimPtr(input.Materials)
		updates["materials"] = product.Materials
	}
	if input.TimeToMake != nil {
		product.TimeToMake = trimPtr(input.TimeToMake)
		updates["time_to_make"] = product.TimeToMake
	}
	if input.CategoryID != nil {
		product.CategoryID = input.CategoryID
		updates["category_id"] = *input.CategoryID
	}
	return updates, nil
}

func (s *service) checkCategory(ctx context.Context, categoryID *int64) error {
	if categoryID == nil {
		return nil
	}
	ok, err := s.repo.CategoryExists(ctx, *categoryID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load category")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "category not found")
	}
	return nil
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func validatePrice(cents int64) error {
	if cents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	if cents > money.MaxCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "price is too large")
	}
	return nil
}
