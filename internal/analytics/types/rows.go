package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// MarketplaceEventRow mirrors the marketplace_events BigQuery schema. One row
// is written per domain event; the typed columns are filled when the event
// carries them and the full payload is kept as JSON.
type MarketplaceEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	AggregateType string             `bigquery:"aggregate_type"`
	AggregateID   int64              `bigquery:"aggregate_id"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	ActorUserID   *int64             `bigquery:"actor_user_id"`
	ActorRole     *string            `bigquery:"actor_role"`
	UserID        *int64             `bigquery:"user_id"`
	OrderID       *int64             `bigquery:"order_id"`
	ProductID     *int64             `bigquery:"product_id"`
	AmountCents   *int64             `bigquery:"amount_cents"`
	Status        *string            `bigquery:"status"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}
