package orders

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/money"
)

// CartLine is one requested (product, quantity) pair.
type CartLine struct {
	ProductID int64
	Quantity  int
}

// PlaceOrderInput carries a cart plus delivery details for both order entry
// points.
type PlaceOrderInput struct {
	Items           []CartLine
	ShippingAddress string
	Phone           *string
	Notes           *string
}

// OrderItemDTO is one order line with its price snapshot.
type OrderItemDTO struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	SellerID    int64  `json:"seller_id,omitempty"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	PriceCents  int64  `json:"price_cents"`
}

// OrderDTO is the API view of an order.
type OrderDTO struct {
	ID              int64             `json:"id"`
	BuyerID         int64             `json:"buyer_id"`
	Status          enums.OrderStatus `json:"status"`
	Total           string            `json:"total"`
	TotalCents      int64             `json:"total_cents"`
	ShippingAddress *string           `json:"shipping_address,omitempty"`
	Phone           *string           `json:"phone,omitempty"`
	Notes           *string           `json:"notes,omitempty"`
	Items           []OrderItemDTO    `json:"items"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// PurchaseResult is the outcome of a wallet purchase. Business failures are
// reported through Success and Message rather than an error.
type PurchaseResult struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Order   *OrderDTO `json:"order"`
}

// NewOrderDTO maps an order with preloaded items into its API shape.
func NewOrderDTO(o *models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		dto := OrderItemDTO{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Price:      money.Format(item.PriceCents),
			PriceCents: item.PriceCents,
		}
		if item.Product != nil {
			dto.ProductName = item.Product.Name
			dto.SellerID = item.Product.SellerID
		}
		items = append(items, dto)
	}
	return OrderDTO{
		ID:              o.ID,
		BuyerID:         o.BuyerID,
		Status:          o.Status,
		Total:           money.Format(o.TotalCents),
		TotalCents:      o.TotalCents,
		ShippingAddress: o.ShippingAddress,
		Phone:           o.Phone,
		Notes:           o.Notes,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}
