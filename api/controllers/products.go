package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/handmade-market/api/middleware"
	"github.com/angelmondragon/handmade-market/api/responses"
	"github.com/angelmondragon/handmade-market/api/validators"
	product "github.com/angelmondragon/handmade-market/internal/products"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/money"
)

const maxSearchLength = 128

type createProductRequest struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description *string         `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"min=0"`
	Materials   *string         `json:"materials,omitempty"`
	TimeToMake  *string         `json:"time_to_make,omitempty"`
	CategoryID  *int64          `json:"category_id,omitempty" validate:"omitempty,min=1"`
}

func (p createProductRequest) toInput() (product.CreateProductInput, error) {
	cents, err := money.FromDecimal(p.Price)
	if err != nil {
		return product.CreateProductInput{}, err
	}
	return product.CreateProductInput{
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  cents,
		Stock:       p.Stock,
		Materials:   p.Materials,
		TimeToMake:  p.TimeToMake,
		CategoryID:  p.CategoryID,
	}, nil
}

type updateProductRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock,omitempty" validate:"omitempty,min=0"`
	Materials   *string          `json:"materials,omitempty"`
	TimeToMake  *string          `json:"time_to_make,omitempty"`
	CategoryID  *int64           `json:"category_id,omitempty" validate:"omitempty,min=1"`
}

func (p updateProductRequest) toInput() (product.UpdateProductInput, error) {
	input := product.UpdateProductInput{
		Name:        p.Name,
		Description: p.Description,
		Stock:       p.Stock,
		Materials:   p.Materials,
		TimeToMake:  p.TimeToMake,
		CategoryID:  p.CategoryID,
	}
	if p.Price != nil {
		cents, err := money.FromDecimal(*p.Price)
		if err != nil {
			return input, err
		}
		input.PriceCents = &cents
	}
	return input, nil
}

// ListProducts browses the catalog. Anonymous callers and buyers only see
// approved listings.
func ListProducts(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := parseProductFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListProducts(r.Context(), product.ListProductsInput{
			Actor:      middleware.ActorFromContext(r.Context()),
			Filters:    filters,
			Pagination: params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseProductFilters(r *http.Request) (product.ProductListFilters, error) {
	var filters product.ProductListFilters
	query := r.URL.Query()
	if raw := strings.ToLower(strings.TrimSpace(query.Get("status"))); raw != "" {
		status, err := enums.ParseProductStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	sellerID, err := validators.ParseQueryInt64(r, "seller_id")
	if err != nil {
		return filters, err
	}
	filters.SellerID = sellerID
	categoryID, err := validators.ParseQueryInt64(r, "category_id")
	if err != nil {
		return filters, err
	}
	filters.CategoryID = categoryID
	filters.Query = validators.CleanText(query.Get("search"), maxSearchLength)
	return filters, nil
}

func ProductDetail(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CreateProduct lists a product awaiting moderation.
func CreateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		var body createProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.CreateProduct(r.Context(), middleware.ActorFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, result)
	}
}

func UpdateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.UpdateProduct(r.Context(), middleware.ActorFromContext(r.Context()), productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func DeleteProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteProduct(r.Context(), middleware.ActorFromContext(r.Context()), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true, "product_id": productID})
	}
}

// ModerateProduct returns a handler that sets the given moderation status.
func ModerateProduct(svc product.Service, status enums.ProductStatus, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Moderate(r.Context(), middleware.ActorFromContext(r.Context()), productID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
