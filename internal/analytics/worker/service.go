package worker

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/handmade-market/internal/analytics/router"
	"github.com/angelmondragon/handmade-market/internal/analytics/types"
	"github.com/angelmondragon/handmade-market/pkg/logger"
)

// consumer namespaces this worker's processed-event marks.
const consumer = "analytics"

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Service consumes marketplace events from Pub/Sub and hands each event id
// to the handler at most once.
type Service struct {
	subscription receiver
	handler      Handler
	marks        idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription receiver, handler Handler, marks idempotencyChecker, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case marks == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, marks: marks, logg: logg}, nil
}

// Outcomes of one delivery. Only the retry outcomes are nacked; redelivery
// cannot fix a malformed or unsupported message.
const (
	outcomeHandled       = "handled"
	outcomeDuplicate     = "duplicate"
	outcomeMalformed     = "malformed"
	outcomeUnsupported   = "unsupported"
	outcomeMarkFailed    = "mark_failed"
	outcomeHandlerFailed = "handler_failed"
)

func retry(outcome string) bool {
	return outcome == outcomeMarkFailed || outcome == outcomeHandlerFailed
}

// Run blocks receiving messages until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if retry(s.process(ctx, msg)) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) string {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := decodeMessage(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "analytics.malformed")
		return outcomeMalformed
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})

	outcome, err := s.handleOnce(ctx, envelope)
	ctx = s.logg.WithField(ctx, "outcome", outcome)
	switch {
	case retry(outcome):
		s.logg.Error(ctx, "analytics.failed", err)
	case outcome == outcomeUnsupported:
		s.logg.Warn(ctx, "analytics.skipped")
	default:
		s.logg.Info(ctx, "analytics.done")
	}
	return outcome
}

// handleOnce marks the event before handling it and clears the mark when the
// handler fails so the redelivery is not mistaken for a duplicate.
func (s *Service) handleOnce(ctx context.Context, envelope types.Envelope) (string, error) {
	seen, err := s.marks.CheckAndMarkProcessed(ctx, consumer, envelope.EventID)
	if err != nil {
		return outcomeMarkFailed, err
	}
	if seen {
		return outcomeDuplicate, nil
	}

	err = s.handler.Handle(ctx, envelope)
	if err == nil {
		return outcomeHandled, nil
	}
	if errors.Is(err, router.ErrUnsupportedEventType) {
		return outcomeUnsupported, nil
	}
	if relErr := s.marks.Release(ctx, consumer, envelope.EventID); relErr != nil {
		err = errors.Join(err, relErr)
	}
	return outcomeHandlerFailed, err
}
