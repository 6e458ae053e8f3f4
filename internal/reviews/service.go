package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

const workflowSubmit = "review_submit"

// Service rates products and lists their reviews.
type Service interface {
	Submit(ctx context.Context, actor authz.Actor, input SubmitInput) (*ReviewDTO, error)
	ListForProduct(ctx context.Context, productID int64, params pagination.Params) (*ReviewList, error)
}

// ProductLoader reads a single product.
type ProductLoader interface {
	FindByID(ctx context.Context, id int64) (*models.Product, error)
}

type outcomeRecorder interface {
	Observe(workflow string, err error)
}

type noopOutcomes struct{}

func (noopOutcomes) Observe(string, error) {}

type service struct {
	repo     Repository
	products ProductLoader
	outcomes outcomeRecorder
	logg     *logger.Logger
}

// NewService builds the review service. outcomes and logg may be nil.
func NewService(repo Repository, products ProductLoader, outcomes outcomeRecorder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("review repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if outcomes == nil {
		outcomes = noopOutcomes{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, products: products, outcomes: outcomes, logg: logg}, nil
}

// Submit writes the caller's review of a product, replacing any earlier
// one by the same caller.
func (s *service) Submit(ctx context.Context, actor authz.Actor, input SubmitInput) (*ReviewDTO, error) {
	dto, err := s.submit(ctx, actor, input)
	s.outcomes.Observe(workflowSubmit, err)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actor.AccountID), map[string]any{
		"review_id":  dto.ID,
		"product_id": dto.ProductID,
		"rating":     dto.Rating,
	}), "review.submitted")
	return dto, nil
}

func (s *service) submit(ctx context.Context, actor authz.Actor, input SubmitInput) (*ReviewDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if input.Rating < MinRating || input.Rating > MaxRating {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "rating must be between %d and %d", MinRating, MaxRating)
	}
	p, err := s.loadProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if authz.IsOwner(actor, p.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "sellers cannot review their own products")
	}

	review := &models.Review{
		UserID:    actor.AccountID,
		ProductID: p.ID,
		Rating:    input.Rating,
		Comment:   trimComment(input.Comment),
	}
	if err := s.repo.Upsert(ctx, review); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: upsert review")
	}
	stored, err := s.repo.Find(ctx, actor.AccountID, p.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: reload review")
	}
	dto := NewReviewDTO(stored)
	return &dto, nil
}

func (s *service) ListForProduct(ctx context.Context, productID int64, params pagination.Params) (*ReviewList, error) {
	if _, err := s.loadProduct(ctx, productID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByProduct(ctx, productID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "list reviews")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(r models.Review) int64 { return r.ID })
	out := make([]ReviewDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewReviewDTO(&rows[i]))
	}
	return &ReviewList{Reviews: out, NextCursor: next}, nil
}

func (s *service) loadProduct(ctx context.Context, productID int64) (*models.Product, error) {
	p, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load product")
	}
	return p, nil
}

func trimComment(comment *string) *string {
	if comment == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*comment)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
