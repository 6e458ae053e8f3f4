package categories

import (
	"time"

	product "github.com/angelmondragon/handmade-market/internal/products"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
)

type CreateInput struct {
	Name string
	// Slug defaults to one derived from Name.
	Slug string
}

// CategoryDTO is the API view of a category.
type CategoryDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryDetail is a category with its approved listings.
type CategoryDetail struct {
	CategoryDTO
	Products   []product.ProductDTO `json:"products"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

func NewCategoryDTO(c *models.Category) CategoryDTO {
	return CategoryDTO{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
