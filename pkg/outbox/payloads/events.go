package payloads

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/enums"
)

// OrderPlacedEvent is emitted when an order and its items are committed.
type OrderPlacedEvent struct {
	OrderID    int64            `json:"order_id"`
	BuyerID    int64            `json:"buyer_id"`
	TotalCents int64            `json:"total_cents"`
	PaidWith   string           `json:"paid_with"`
	Items      []OrderPlacedRow `json:"items"`
}

// OrderPlacedRow snapshots one order line.
type OrderPlacedRow struct {
	ProductID  int64 `json:"product_id"`
	SellerID   int64 `json:"seller_id"`
	Quantity   int   `json:"quantity"`
	PriceCents int64 `json:"price_cents"`
}

// OrderStatusChangedEvent records a status update by a seller or admin.
type OrderStatusChangedEvent struct {
	OrderID    int64             `json:"order_id"`
	BuyerID    int64             `json:"buyer_id"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
	TotalCents int64             `json:"total_cents"`
}

// WalletMovementEvent mirrors one wallet ledger entry.
type WalletMovementEvent struct {
	WalletID      int64                       `json:"wallet_id"`
	UserID        int64                       `json:"user_id"`
	TransactionID int64                       `json:"transaction_id"`
	AmountCents   int64                       `json:"amount_cents"`
	Type          enums.WalletTransactionType `json:"type"`
	OrderID       *int64                      `json:"order_id,omitempty"`
	BalanceCents  int64                       `json:"balance_cents"`
}

// RefundEvent covers refund creation and decisions.
type RefundEvent struct {
	RefundRequestID int64               `json:"refund_request_id"`
	OrderID         int64               `json:"order_id"`
	UserID          int64               `json:"user_id"`
	AmountCents     int64               `json:"amount_cents"`
	Status          enums.RequestStatus `json:"status"`
	Credited        bool                `json:"credited"`
}

// StockRequestEvent covers stock request creation and decisions.
type StockRequestEvent struct {
	StockRequestID         int64               `json:"stock_request_id"`
	ProductID              int64               `json:"product_id"`
	UserID                 int64               `json:"user_id"`
	Quantity               int                 `json:"quantity"`
	Status                 enums.RequestStatus `json:"status"`
	ExpectedCompletionDate *time.Time          `json:"expected_completion_date,omitempty"`
}

// ProductModeratedEvent is emitted when an admin approves or rejects a listing.
type ProductModeratedEvent struct {
	ProductID int64               `json:"product_id"`
	SellerID  int64               `json:"seller_id"`
	Status    enums.ProductStatus `json:"status"`
}
