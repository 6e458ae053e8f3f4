package reviews

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
)

const (
	MinRating = 1
	MaxRating = 5
)

// SubmitInput rates a product. Comment is optional.
type SubmitInput struct {
	ProductID int64
	Rating    int
	Comment   *string
}

// ReviewDTO is the API view of a review.
type ReviewDTO struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	UserID    int64     `json:"user_id"`
	Author    string    `json:"author,omitempty"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReviewList struct {
	Reviews    []ReviewDTO `json:"reviews"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func NewReviewDTO(r *models.Review) ReviewDTO {
	dto := ReviewDTO{
		ID:        r.ID,
		ProductID: r.ProductID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.User != nil && r.User.Profile != nil && r.User.Profile.FirstName != nil {
		dto.Author = *r.User.Profile.FirstName
	}
	return dto
}
