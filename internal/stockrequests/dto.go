package stockrequests

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
)

type CreateInput struct {
	ProductID int64
	Quantity  int
}

// StockRequestDTO is the API view of a restock request.
type StockRequestDTO struct {
	ID                     int64               `json:"id"`
	ProductID              int64               `json:"product_id"`
	ProductName            string              `json:"product_name,omitempty"`
	UserID                 int64               `json:"user_id"`
	Quantity               int                 `json:"quantity"`
	Status                 enums.RequestStatus `json:"status"`
	ExpectedCompletionDate *time.Time          `json:"expected_completion_date,omitempty"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

type StockRequestList struct {
	Requests   []StockRequestDTO `json:"requests"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func NewStockRequestDTO(r *models.StockRequest) StockRequestDTO {
	dto := StockRequestDTO{
		ID:                     r.ID,
		ProductID:              r.ProductID,
		UserID:                 r.UserID,
		Quantity:               r.Quantity,
		Status:                 r.Status,
		ExpectedCompletionDate: r.ExpectedCompletionDate,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
	if r.Product != nil {
		dto.ProductName = r.Product.Name
	}
	return dto
}
