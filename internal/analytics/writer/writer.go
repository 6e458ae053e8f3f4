// Package writer streams analytics rows into BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/handmade-market/internal/analytics/types"
)

// Inserter puts rows into a named table; *bigquery.Client satisfies it.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Backoff is the wait between insert attempts, doubling up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Options configures a Sink. Zero values fall back to one row per insert,
// three attempts and a 250ms..2s backoff.
type Options struct {
	Table     string
	BatchSize int
	Attempts  int
	Backoff   Backoff
}

// Sink buffers marketplace rows and writes them to one table. Calls must
// be serialized; the analytics worker handles one message at a time.
type Sink struct {
	inserter Inserter
	table    string
	batch    int
	attempts int
	backoff  Backoff
	pending  []types.MarketplaceEventRow
}

func New(inserter Inserter, opts Options) (*Sink, error) {
	if inserter == nil {
		return nil, errors.New("bigquery inserter is required")
	}
	table := strings.TrimSpace(opts.Table)
	if table == "" {
		return nil, errors.New("marketplace table is required")
	}
	s := &Sink{
		inserter: inserter,
		table:    table,
		batch:    max(opts.BatchSize, 1),
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
	}
	if s.attempts <= 0 {
		s.attempts = 3
	}
	if s.backoff.Initial <= 0 {
		s.backoff.Initial = 250 * time.Millisecond
	}
	if s.backoff.Max <= 0 {
		s.backoff.Max = 2 * time.Second
	}
	s.backoff.Max = max(s.backoff.Max, s.backoff.Initial)
	return s, nil
}

// InsertMarketplace queues row and writes the buffer once it is full.
func (s *Sink) InsertMarketplace(ctx context.Context, row types.MarketplaceEventRow) error {
	s.pending = append(s.pending, row)
	if len(s.pending) < s.batch {
		return nil
	}
	return s.Flush(ctx)
}

// Flush writes whatever is buffered. Rows stay buffered when the write
// fails so the next flush retries them.
func (s *Sink) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	rows := make([]any, 0, len(s.pending))
	for i := range s.pending {
		rows = append(rows, &s.pending[i])
	}
	if err := s.put(ctx, rows); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *Sink) put(ctx context.Context, rows []any) error {
	wait := s.backoff.Initial
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.inserter.InsertRows(ctx, s.table, rows)
		if err == nil {
			return nil
		}
		if attempt >= s.attempts || !Retryable(err) {
			return fmt.Errorf("insert %d rows into %s (attempt %d): %w", len(rows), s.table, attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, s.backoff.Max)
	}
}

// Retryable reports whether every underlying failure of a BigQuery insert
// is transient. A batch with one bad row is not worth repeating.
func Retryable(err error) bool {
	leaves := leafErrors(err)
	if len(leaves) == 0 {
		return false
	}
	for _, leaf := range leaves {
		if !transient(leaf) {
			return false
		}
	}
	return true
}

// leafErrors flattens the BigQuery multi-error types into their members.
func leafErrors(err error) []error {
	if err == nil {
		return nil
	}
	if multi, ok := asMulti(err); ok {
		var out []error
		for _, inner := range multi {
			out = append(out, leafErrors(inner)...)
		}
		return out
	}
	if perRow, ok := asPerRow(err); ok {
		var out []error
		for i := range perRow {
			out = append(out, leafErrors(perRow[i].Errors)...)
		}
		return out
	}
	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) && rowErr != nil {
		return leafErrors(rowErr.Errors)
	}
	return []error{err}
}

// The client returns both error lists by value and by pointer.
func asMulti(err error) (cbigquery.MultiError, bool) {
	var byValue cbigquery.MultiError
	if errors.As(err, &byValue) {
		return byValue, true
	}
	var byPtr *cbigquery.MultiError
	if errors.As(err, &byPtr) && byPtr != nil {
		return *byPtr, true
	}
	return nil, false
}

func asPerRow(err error) (cbigquery.PutMultiError, bool) {
	var byValue cbigquery.PutMultiError
	if errors.As(err, &byValue) {
		return byValue, true
	}
	var byPtr *cbigquery.PutMultiError
	if errors.As(err, &byPtr) && byPtr != nil {
		return *byPtr, true
	}
	return nil, false
}

func transient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal,
			codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

// EncodeJSON renders payload for a BigQuery JSON column. Empty payloads and
// JSON null become a NULL column.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("encode analytics payload: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 || string(raw) == "null" {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
