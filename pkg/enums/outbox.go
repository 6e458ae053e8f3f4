package enums

import "fmt"

// OutboxAggregateType identifies the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregateWallet        OutboxAggregateType = "wallet"
	AggregateRefundRequest OutboxAggregateType = "refund_request"
	AggregateStockRequest  OutboxAggregateType = "stock_request"
	AggregateProduct       OutboxAggregateType = "product"
	AggregateUser          OutboxAggregateType = "user"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateWallet,
	AggregateRefundRequest,
	AggregateStockRequest,
	AggregateProduct,
	AggregateUser,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a marketplace domain event.
type OutboxEventType string

const (
	EventOrderPlaced          OutboxEventType = "order_placed"
	EventOrderStatusChanged   OutboxEventType = "order_status_changed"
	EventWalletCredited       OutboxEventType = "wallet_credited"
	EventWalletDebited        OutboxEventType = "wallet_debited"
	EventRefundRequested      OutboxEventType = "refund_requested"
	EventRefundApproved       OutboxEventType = "refund_approved"
	EventRefundRejected       OutboxEventType = "refund_rejected"
	EventStockRequested       OutboxEventType = "stock_requested"
	EventStockRequestApproved OutboxEventType = "stock_request_approved"
	EventStockRequestRejected OutboxEventType = "stock_request_rejected"
	EventProductModerated     OutboxEventType = "product_moderated"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPlaced,
	EventOrderStatusChanged,
	EventWalletCredited,
	EventWalletDebited,
	EventRefundRequested,
	EventRefundApproved,
	EventRefundRejected,
	EventStockRequested,
	EventStockRequestApproved,
	EventStockRequestRejected,
	EventProductModerated,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
