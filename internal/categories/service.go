package categories

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/authz"
	product "github.com/angelmondragon/handmade-market/internal/products"
	"github.com/angelmondragon/handmade-market/pkg/db"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

const maxNameLength = 100

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Service browses and manages product categories.
type Service interface {
	List(ctx context.Context) ([]CategoryDTO, error)
	Get(ctx context.Context, categoryID int64, params pagination.Params) (*CategoryDetail, error)
	Create(ctx context.Context, actor authz.Actor, input CreateInput) (*CategoryDTO, error)
}

// ProductLister pages the catalog.
type ProductLister interface {
	ListProducts(ctx context.Context, input product.ListProductsInput) (*product.ProductListResult, error)
}

type service struct {
	repo     Repository
	products ProductLister
	logg     *logger.Logger
}

// NewService builds the category service. logg may be nil.
func NewService(repo Repository, products ProductLister, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("category repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lister required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, products: products, logg: logg}, nil
}

func (s *service) List(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewCategoryDTO(&rows[i]))
	}
	return out, nil
}

// Get returns the category with a page of its approved products.
func (s *service) Get(ctx context.Context, categoryID int64, params pagination.Params) (*CategoryDetail, error) {
	category, err := s.repo.FindByID(ctx, categoryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load category")
	}
	page, err := s.products.ListProducts(ctx, product.ListProductsInput{
		Filters:    product.ProductListFilters{CategoryID: &category.ID},
		Pagination: params,
	})
	if err != nil {
		return nil, err
	}
	return &CategoryDetail{
		CategoryDTO: NewCategoryDTO(category),
		Products:    page.Products,
		NextCursor:  page.NextCursor,
	}, nil
}

// Create adds a category. Admin only.
func (s *service) Create(ctx context.Context, actor authz.Actor, input CreateInput) (*CategoryDTO, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > maxNameLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "name must be 1 to %d characters", maxNameLength)
	}
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if !slugRe.MatchString(slug) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug must be lowercase letters, digits and single hyphens").
			WithDetails(map[string]any{"slug": slug})
	}

	category := &models.Category{Name: name, Slug: slug}
	if err := s.repo.Create(ctx, category); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category slug already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: insert category")
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actor.AccountID), map[string]any{
		"category_id": category.ID,
		"slug":        category.Slug,
	}), "category.created")
	dto := NewCategoryDTO(category)
	return &dto, nil
}

// Slugify lowercases ASCII letters and digits and joins the runs between
// them with single hyphens. Other characters are dropped, so a name
// without any ASCII letters yields "".
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}
