package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/handmade-market/internal/analytics/types"
	"github.com/angelmondragon/handmade-market/internal/analytics/writer"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertMarketplace(ctx context.Context, row types.MarketplaceEventRow) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

type handlerEntry struct {
	factory func() any
	handler Handler
}

// Router dispatches envelopes to the handler registered for their event type.
type Router struct {
	handlers map[enums.OutboxEventType]handlerEntry
	logg     *logger.Logger
}

// NewRouter registers a row handler for every marketplace event. Overrides
// replace the handler for an event type but keep its payload decoding.
func NewRouter(w Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	row := func(project projection) Handler { return &rowHandler{writer: w, logg: logg, project: project} }
	orderPlaced := func() any { return &payloads.OrderPlacedEvent{} }
	statusChanged := func() any { return &payloads.OrderStatusChangedEvent{} }
	movement := func() any { return &payloads.WalletMovementEvent{} }
	refund := func() any { return &payloads.RefundEvent{} }
	stock := func() any { return &payloads.StockRequestEvent{} }
	moderated := func() any { return &payloads.ProductModeratedEvent{} }

	entries := map[enums.OutboxEventType]handlerEntry{
		enums.EventOrderPlaced:          {factory: orderPlaced, handler: row(projectOrderPlaced)},
		enums.EventOrderStatusChanged:   {factory: statusChanged, handler: row(projectOrderStatusChanged)},
		enums.EventWalletCredited:       {factory: movement, handler: row(projectWalletMovement)},
		enums.EventWalletDebited:        {factory: movement, handler: row(projectWalletMovement)},
		enums.EventRefundRequested:      {factory: refund, handler: row(projectRefund)},
		enums.EventRefundApproved:       {factory: refund, handler: row(projectRefund)},
		enums.EventRefundRejected:       {factory: refund, handler: row(projectRefund)},
		enums.EventStockRequested:       {factory: stock, handler: row(projectStockRequest)},
		enums.EventStockRequestApproved: {factory: stock, handler: row(projectStockRequest)},
		enums.EventStockRequestRejected: {factory: stock, handler: row(projectStockRequest)},
		enums.EventProductModerated:     {factory: moderated, handler: row(projectProductModerated)},
	}

	for event, custom := range overrides {
		entry, ok := entries[event]
		if !ok || custom == nil {
			continue
		}
		entry.handler = custom
		entries[event] = entry
	}

	return &Router{handlers: entries, logg: logg}, nil
}

// Handle decodes the payload and hands it to the registered handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	entry, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload := entry.factory()
	if err := json.Unmarshal(envelope.Payload, payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return entry.handler.Handle(ctx, envelope, payload)
}

type projection func(payload any, row *types.MarketplaceEventRow) error

type rowHandler struct {
	writer  Writer
	logg    *logger.Logger
	project projection
}

func (h *rowHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	row := baseRow(envelope)
	if err := h.project(payload, &row); err != nil {
		return err
	}
	encoded, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return err
	}
	row.Payload = encoded
	if err := h.writer.InsertMarketplace(ctx, row); err != nil {
		return fmt.Errorf("insert %s row: %w", envelope.EventType, err)
	}
	h.logg.Debug(h.logg.WithField(ctx, "event_type", envelope.EventType), "marketplace event row written")
	return nil
}

func baseRow(envelope types.Envelope) types.MarketplaceEventRow {
	row := types.MarketplaceEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		OccurredAt:    envelope.OccurredAt.UTC(),
	}
	if envelope.Actor != nil {
		row.ActorUserID = ref(envelope.Actor.UserID)
		row.ActorRole = nonBlank(envelope.Actor.Role)
	}
	return row
}
