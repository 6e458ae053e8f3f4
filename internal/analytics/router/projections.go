package router

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/handmade-market/internal/analytics/types"
	"github.com/angelmondragon/handmade-market/pkg/outbox/payloads"
)

func ref[T any](v T) *T { return &v }

// nonBlank maps blank strings to a NULL column.
func nonBlank(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func unexpectedPayload(payload any) error {
	return fmt.Errorf("unexpected payload type %T", payload)
}

func projectOrderPlaced(payload any, row *types.MarketplaceEventRow) error {
	event, ok := payload.(*payloads.OrderPlacedEvent)
	if !ok {
		return unexpectedPayload(payload)
	}
	row.UserID = ref(event.BuyerID)
	row.OrderID = ref(event.OrderID)
	row.AmountCents = ref(event.TotalCents)
	if len(event.Items) == 1 {
		row.ProductID = ref(event.Items[0].ProductID)
	}
	return nil
}

func projectOrderStatusChanged(payload any, row *types.MarketplaceEventRow) error {
	event, ok := payload.(*payloads.OrderStatusChangedEvent)
	if !ok {
		return unexpectedPayload(payload)
	}
	row.UserID = ref(event.BuyerID)
	row.OrderID = ref(event.OrderID)
	row.AmountCents = ref(event.TotalCents)
	row.Status = nonBlank(string(event.To))
	return nil
}

func projectWalletMovement(payload any, row *types.MarketplaceEventRow) error {
	event, ok := payload.(*payloads.WalletMovementEvent)
	if !ok {
		return unexpectedPayload(payload)
	}
	row.UserID = ref(event.UserID)
	row.OrderID = event.OrderID
	row.AmountCents = ref(event.AmountCents)
	row.Status = nonBlank(string(event.Type))
	return nil
}

func projectRefund(payload any, row *types.MarketplaceEventRow) error {
	event, ok := payload.(*payloads.RefundEvent)
	if !ok {
		return unexpectedPayload(payload)
	}
	row.UserID = ref(event.UserID)
	row.OrderID = ref(event.OrderID)
	row.AmountCents = ref(event.AmountCents)
	row.Status = nonBlank(string(event.Status))
	return nil
}

func projectStockRequest(payload any, row *types.MarketplaceEventRow) error {
	event, ok := payload.(*payloads.StockRequestEvent)
	if !ok {
		return unexpectedPayload(payload)
	}
	row.UserID = ref(event.UserID)
	row.ProductID = ref(event.ProductID)
	row.Status = nonBlank(string(event.Status))
	return nil
}

func projectProductModerated(payload any, row *types.MarketplaceEventRow) error {
	event, ok := payload.(*payloads.ProductModeratedEvent)
	if !ok {
		return unexpectedPayload(payload)
	}
	row.UserID = ref(event.SellerID)
	row.ProductID = ref(event.ProductID)
	row.Status = nonBlank(string(event.Status))
	return nil
}
