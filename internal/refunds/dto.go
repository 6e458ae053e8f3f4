package refunds

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/money"
)

// CreateInput is a buyer's refund request. Amount is converted to cents
// by the service.
type CreateInput struct {
	OrderID int64
	Reason  *string
	Amount  decimal.Decimal
}

// RefundRequestDTO is the API view of a refund request.
type RefundRequestDTO struct {
	ID          int64               `json:"id"`
	OrderID     int64               `json:"order_id"`
	UserID      int64               `json:"user_id"`
	Reason      *string             `json:"reason,omitempty"`
	Amount      string              `json:"amount"`
	AmountCents int64               `json:"amount_cents"`
	Status      enums.RequestStatus `json:"status"`
	OrderTotal  string              `json:"order_total,omitempty"`
	OrderStatus enums.OrderStatus   `json:"order_status,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// RefundRequestList wraps a page of requests plus the next page cursor.
type RefundRequestList struct {
	Requests   []RefundRequestDTO `json:"requests"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

func NewRefundRequestDTO(r *models.RefundRequest) RefundRequestDTO {
	dto := RefundRequestDTO{
		ID:          r.ID,
		OrderID:     r.OrderID,
		UserID:      r.UserID,
		Reason:      r.Reason,
		Amount:      money.Format(r.AmountCents),
		AmountCents: r.AmountCents,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Order != nil {
		dto.OrderTotal = money.Format(r.Order.TotalCents)
		dto.OrderStatus = r.Order.Status
	}
	return dto
}
