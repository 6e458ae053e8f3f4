package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/pkg/config"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
	"github.com/angelmondragon/handmade-market/pkg/outbox/registry"
)

const marketplaceTopic = "hm-marketplace-events"

// harness records everything the relay does to the outbox tables.
type harness struct {
	rows        []models.OutboxEvent
	published   []uuid.UUID
	retried     []uuid.UUID
	terminal    []uuid.UUID
	deadLetters []models.OutboxDLQ

	resolveErr error
	sendErrs   []error
	sent       []*gcppubsub.Message
	noSender   bool
}

func (h *harness) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(h.rows) > limit {
		return h.rows[:limit], nil
	}
	return h.rows, nil
}

func (h *harness) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	h.published = append(h.published, id)
	return nil
}

func (h *harness) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	h.retried = append(h.retried, id)
	return nil
}

func (h *harness) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	h.terminal = append(h.terminal, id)
	return nil
}

func (h *harness) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	h.deadLetters = append(h.deadLetters, entry)
	return nil
}

func (h *harness) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if h.resolveErr != nil {
		return nil, h.resolveErr
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: row.EventType, AggregateType: row.AggregateType, Topic: marketplaceTopic},
		Envelope:   outbox.PayloadEnvelope{EventID: row.ID.String(), OccurredAt: row.CreatedAt},
	}, nil
}

func (h *harness) Send(_ context.Context, msg *gcppubsub.Message) error {
	h.sent = append(h.sent, msg)
	if len(h.sendErrs) == 0 {
		return nil
	}
	err := h.sendErrs[0]
	h.sendErrs = h.sendErrs[1:]
	return err
}

type stubDB struct{}

func (stubDB) Ping(context.Context) error { return nil }

func (stubDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type stubTopics struct{ err error }

func (s stubTopics) Ping(context.Context) error { return s.err }

func (stubTopics) MarketplacePublisher() *gcppubsub.Publisher { return nil }

func newRelay(t *testing.T, h *harness, cfg config.OutboxConfig) *Relay {
	t.Helper()
	relay, err := NewRelay(RelayParams{
		Outbox:      cfg,
		Logger:      logger.New(logger.Options{ServiceName: "outbox-relay-test", Output: io.Discard}),
		DB:          stubDB{},
		PubSub:      stubTopics{},
		Events:      h,
		DeadLetters: h,
		Registry:    h,
		Senders: func(string) sender {
			if h.noSender {
				return nil
			}
			return h
		},
	})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return relay
}

func orderPlacedRow(t *testing.T, aggregateID int64, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{"order_id":1}`),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Now(),
	}
}

func TestDrainRetriesTransientFailureAndKeepsGoing(t *testing.T) {
	h := &harness{sendErrs: []error{errors.New("unavailable"), nil}}
	h.rows = []models.OutboxEvent{orderPlacedRow(t, 11, 0), orderPlacedRow(t, 12, 0)}
	relay := newRelay(t, h, config.OutboxConfig{BatchSize: 10, MaxAttempts: 5})

	n, err := relay.drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows handled, got %d", n)
	}
	if len(h.retried) != 1 || h.retried[0] != h.rows[0].ID {
		t.Fatalf("expected first row scheduled for retry, got %v", h.retried)
	}
	if len(h.published) != 1 || h.published[0] != h.rows[1].ID {
		t.Fatalf("expected second row published, got %v", h.published)
	}
	if len(h.deadLetters) != 0 {
		t.Fatalf("unexpected dead letters %+v", h.deadLetters)
	}
}

func TestDrainRespectsBatchSize(t *testing.T) {
	h := &harness{}
	h.rows = []models.OutboxEvent{orderPlacedRow(t, 1, 0), orderPlacedRow(t, 2, 0), orderPlacedRow(t, 3, 0)}
	relay := newRelay(t, h, config.OutboxConfig{BatchSize: 2})

	n, err := relay.drain(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 rows handled, got %d (%v)", n, err)
	}
}

func TestMessageCarriesEnvelopeAndAttributes(t *testing.T) {
	row := orderPlacedRow(t, 42, 0)
	row.EventType = enums.EventRefundApproved
	row.AggregateType = enums.AggregateRefundRequest
	h := &harness{rows: []models.OutboxEvent{row}}
	relay := newRelay(t, h, config.OutboxConfig{})

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(h.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(h.sent))
	}
	msg := h.sent[0]
	if string(msg.Data) != string(row.Payload) {
		t.Fatalf("message data is not the stored envelope")
	}
	want := map[string]string{
		"event_id":       row.ID.String(),
		"event_type":     string(enums.EventRefundApproved),
		"aggregate_type": string(enums.AggregateRefundRequest),
		"aggregate_id":   "42",
	}
	for k, v := range want {
		if msg.Attributes[k] != v {
			t.Fatalf("attribute %s = %q want %q", k, msg.Attributes[k], v)
		}
	}
}

func TestDeadLetters(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *harness)
		attempts int
		reason   enums.OutboxDLQErrorReason
	}{
		{
			name:   "unresolvable payload",
			setup:  func(h *harness) { h.resolveErr = registry.NewNonRetryableError(errors.New("unknown event type")) },
			reason: enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:     "attempts exhausted",
			setup:    func(h *harness) { h.sendErrs = []error{errors.New("deadline exceeded")} },
			attempts: 1,
			reason:   enums.OutboxDLQReasonMaxAttempts,
		},
		{
			name:   "permanent publish error",
			setup:  func(h *harness) { h.sendErrs = []error{registry.NewNonRetryableError(errors.New("message too large"))} },
			reason: enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:   "no publisher for topic",
			setup:  func(h *harness) { h.noSender = true },
			reason: enums.OutboxDLQReasonNonRetryable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := orderPlacedRow(t, 14, tt.attempts)
			h := &harness{rows: []models.OutboxEvent{row}}
			tt.setup(h)
			relay := newRelay(t, h, config.OutboxConfig{MaxAttempts: 2})

			if _, err := relay.drain(context.Background()); err != nil {
				t.Fatalf("drain: %v", err)
			}
			if len(h.deadLetters) != 1 {
				t.Fatalf("expected one dead letter, got %d", len(h.deadLetters))
			}
			entry := h.deadLetters[0]
			if entry.EventID != row.ID || entry.ErrorReason != tt.reason {
				t.Fatalf("unexpected dead letter %+v", entry)
			}
			if string(entry.Payload) != string(row.Payload) || entry.ErrorMessage == nil {
				t.Fatalf("dead letter lost payload or error message")
			}
			if len(h.terminal) != 1 || len(h.published) != 0 || len(h.retried) != 0 {
				t.Fatalf("unexpected bookkeeping terminal=%v published=%v retried=%v", h.terminal, h.published, h.retried)
			}
		})
	}
}

func TestNewRelayRequiresDeadLetterStore(t *testing.T) {
	h := &harness{}
	_, err := NewRelay(RelayParams{
		Logger:   logger.Nop(),
		DB:       stubDB{},
		PubSub:   stubTopics{},
		Events:   h,
		Registry: h,
	})
	if err == nil {
		t.Fatalf("expected error without dead-letter store")
	}
}

func TestRunStopsWhenPubSubIsDown(t *testing.T) {
	h := &harness{}
	relay, err := NewRelay(RelayParams{
		Logger:      logger.Nop(),
		DB:          stubDB{},
		PubSub:      stubTopics{err: errors.New("connection refused")},
		Events:      h,
		DeadLetters: h,
		Registry:    h,
	})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	if err := relay.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness error")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	h := &harness{}
	relay := newRelay(t, h, config.OutboxConfig{PollIntervalMS: 10})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := relay.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
