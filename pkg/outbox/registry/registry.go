// Package registry knows, for every outbox event type, which aggregate it
// belongs to, which topic carries it and how to decode its payload.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/handmade-market/pkg/config"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
	"github.com/angelmondragon/handmade-market/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row that passed validation, with its payload
// decoded into the registered type.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish, however often it
// is retried.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// on describes events of aggregate agg whose payload decodes into a T.
func on[T any](agg enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{AggregateType: agg, PayloadFactory: func() any { return new(T) }}
}

// NewEventRegistry sends every marketplace event to the marketplace topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.MarketplaceTopic == "" {
		return nil, errors.New("marketplace topic is required")
	}
	events := map[enums.OutboxEventType]EventDescriptor{
		enums.EventOrderPlaced:          on[payloads.OrderPlacedEvent](enums.AggregateOrder),
		enums.EventOrderStatusChanged:   on[payloads.OrderStatusChangedEvent](enums.AggregateOrder),
		enums.EventWalletCredited:       on[payloads.WalletMovementEvent](enums.AggregateWallet),
		enums.EventWalletDebited:        on[payloads.WalletMovementEvent](enums.AggregateWallet),
		enums.EventRefundRequested:      on[payloads.RefundEvent](enums.AggregateRefundRequest),
		enums.EventRefundApproved:       on[payloads.RefundEvent](enums.AggregateRefundRequest),
		enums.EventRefundRejected:       on[payloads.RefundEvent](enums.AggregateRefundRequest),
		enums.EventStockRequested:       on[payloads.StockRequestEvent](enums.AggregateStockRequest),
		enums.EventStockRequestApproved: on[payloads.StockRequestEvent](enums.AggregateStockRequest),
		enums.EventStockRequestRejected: on[payloads.StockRequestEvent](enums.AggregateStockRequest),
		enums.EventProductModerated:     on[payloads.ProductModeratedEvent](enums.AggregateProduct),
	}
	for eventType, desc := range events {
		desc.EventType = eventType
		desc.Topic = cfg.MarketplaceTopic
		events[eventType] = desc
	}
	return &EventRegistry{entries: events}, nil
}

// Resolve checks a row against its descriptor and decodes the payload.
// Every failure is a NonRetryableError: the row's content is fixed.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", row.EventType)
	case desc.AggregateType != row.AggregateType:
		return nil, permanent("%s belongs to %s aggregates, row says %s", row.EventType, desc.AggregateType, row.AggregateType)
	case row.AggregateID <= 0:
		return nil, permanent("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("payload missing for %s", row.EventType)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
