package product

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/money"
)

// ProductDTO is the API view of a listing.
type ProductDTO struct {
	ID          int64               `json:"id"`
	SellerID    int64               `json:"seller_id"`
	SellerEmail string              `json:"seller_email,omitempty"`
	Category    *CategoryRef        `json:"category,omitempty"`
	Name        string              `json:"name"`
	Description *string             `json:"description,omitempty"`
	Price       string              `json:"price"`
	PriceCents  int64               `json:"price_cents"`
	Stock       int                 `json:"stock"`
	Status      enums.ProductStatus `json:"status"`
	Materials   *string             `json:"materials,omitempty"`
	TimeToMake  *string             `json:"time_to_make,omitempty"`
	ReviewCount *int64              `json:"review_count,omitempty"`
	Rating      *float64            `json:"average_rating,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// CategoryRef is the category embedded in a product view.
type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ProductListResult wraps a page of listings plus the next page cursor.
type ProductListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// NewProductDTO maps a product model into its API shape.
func NewProductDTO(p *models.Product) ProductDTO {
	dto := ProductDTO{
		ID:          p.ID,
		SellerID:    p.SellerID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money.Format(p.PriceCents),
		PriceCents:  p.PriceCents,
		Stock:       p.Stock,
		Status:      p.Status,
		Materials:   p.Materials,
		TimeToMake:  p.TimeToMake,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Seller != nil {
		dto.SellerEmail = p.Seller.Email
	}
	if p.Category != nil {
		dto.Category = &CategoryRef{ID: p.Category.ID, Name: p.Category.Name, Slug: p.Category.Slug}
	}
	return dto
}
