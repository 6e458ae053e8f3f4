package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/handmade-market/internal/analytics/types"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
)

// decodeMessage reads the outbox envelope from the body and routing data
// from the attributes. The body's event id and timestamp win; the
// event_id and created_at attributes fill them in when blank.
func decodeMessage(msg *gcppubsub.Message) (types.Envelope, error) {
	attr := func(key string) string { return strings.TrimSpace(msg.Attributes[key]) }

	var body outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		return types.Envelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}
	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID, err := strconv.ParseInt(attr("aggregate_id"), 10, 64)
	if err != nil || aggregateID <= 0 {
		return types.Envelope{}, fmt.Errorf("aggregate_id %q is not a positive integer", attr("aggregate_id"))
	}

	eventID := strings.TrimSpace(body.EventID)
	if eventID == "" {
		eventID = attr("event_id")
	}
	if eventID == "" {
		return types.Envelope{}, errors.New("event_id missing")
	}
	occurredAt := body.OccurredAt
	if occurredAt.IsZero() {
		occurredAt, _ = time.Parse(time.RFC3339Nano, attr("created_at"))
	}

	return types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Actor:         body.Actor,
		Payload:       body.Data,
	}, nil
}
