package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
)

// Envelope is a marketplace event as delivered over Pub/Sub: message
// attributes plus the stored outbox payload envelope.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   int64
	OccurredAt    time.Time
	Actor         *outbox.ActorRef
	Payload       json.RawMessage
}
