package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/handmade-market/internal/analytics/types"
)

type scriptedInserter struct {
	results []error
	batches [][]string
}

func (s *scriptedInserter) InsertRows(_ context.Context, table string, rows []any) error {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.(*types.MarketplaceEventRow).EventID)
	}
	s.batches = append(s.batches, ids)
	if len(s.results) == 0 {
		return nil
	}
	err := s.results[0]
	s.results = s.results[1:]
	return err
}

func newSink(t *testing.T, batch int, results ...error) (*Sink, *scriptedInserter) {
	t.Helper()
	inserter := &scriptedInserter{results: results}
	sink, err := New(inserter, Options{
		Table:     "marketplace_events",
		BatchSize: batch,
		Backoff:   Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond},
	})
	require.NoError(t, err)
	return sink, inserter
}

func TestNewAppliesDefaults(t *testing.T) {
	_, err := New(nil, Options{Table: "marketplace_events"})
	assert.Error(t, err)
	_, err = New(&scriptedInserter{}, Options{Table: "  "})
	assert.Error(t, err)

	sink, err := New(&scriptedInserter{}, Options{Table: " marketplace_events ", Backoff: Backoff{Initial: time.Second, Max: time.Millisecond}})
	require.NoError(t, err)
	assert.Equal(t, "marketplace_events", sink.table)
	assert.Equal(t, 1, sink.batch)
	assert.Equal(t, 3, sink.attempts)
	assert.Equal(t, time.Second, sink.backoff.Max)
}

func TestSinkBuffersUntilBatchIsFull(t *testing.T) {
	sink, inserter := newSink(t, 3)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, sink.InsertMarketplace(ctx, types.MarketplaceEventRow{EventID: id}))
	}
	assert.Empty(t, inserter.batches)

	require.NoError(t, sink.InsertMarketplace(ctx, types.MarketplaceEventRow{EventID: "c"}))
	require.NoError(t, sink.InsertMarketplace(ctx, types.MarketplaceEventRow{EventID: "d"}))
	require.NoError(t, sink.Flush(ctx))
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"d"}}, inserter.batches)
	assert.Empty(t, sink.pending)
}

func TestSinkRetriesTransientFailures(t *testing.T) {
	sink, inserter := newSink(t, 1, &googleapi.Error{Code: http.StatusServiceUnavailable}, status.Error(codes.Unavailable, "busy"))

	require.NoError(t, sink.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "order-7"}))
	assert.Len(t, inserter.batches, 3)
}

func TestSinkKeepsRowsAfterFailure(t *testing.T) {
	t.Run("permanent", func(t *testing.T) {
		sink, inserter := newSink(t, 1, &googleapi.Error{Code: http.StatusBadRequest})
		require.Error(t, sink.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "bad"}))
		assert.Len(t, inserter.batches, 1)
		assert.Len(t, sink.pending, 1)

		require.NoError(t, sink.Flush(context.Background()))
		assert.Equal(t, []string{"bad"}, inserter.batches[1])
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		busy := status.Error(codes.ResourceExhausted, "quota")
		sink, inserter := newSink(t, 1, busy, busy, busy, busy)
		err := sink.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "x"})
		require.Error(t, err)
		assert.Len(t, inserter.batches, 3)
		assert.Contains(t, err.Error(), "attempt 3")
	})
}

func TestSinkStopsOnCancelledContext(t *testing.T) {
	sink, inserter := newSink(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.InsertMarketplace(ctx, types.MarketplaceEventRow{EventID: "x"}), context.Canceled)
	assert.Empty(t, inserter.batches)
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, false},
		{"wrapped grpc", fmt.Errorf("insert: %w", status.Error(codes.DeadlineExceeded, "slow")), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "x"), false},
		{"all members transient", &cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadGateway}}, true},
		{"one bad member", &cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadGateway}, errors.New("bad row")}, false},
		{"empty multi", &cbigquery.MultiError{}, false},
		{"row errors", cbigquery.PutMultiError{{Errors: cbigquery.MultiError{errors.New("no such field: colour")}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestEncodeJSON(t *testing.T) {
	encoded, err := EncodeJSON(map[string]any{"order_id": 9})
	require.NoError(t, err)
	assert.Equal(t, cbigquery.NullJSON{Valid: true, JSONVal: `{"order_id":9}`}, encoded)

	for _, empty := range []any{nil, []byte{}, []byte("null")} {
		encoded, err := EncodeJSON(empty)
		require.NoError(t, err)
		assert.False(t, encoded.Valid)
	}

	_, err = EncodeJSON(make(chan int))
	assert.Error(t, err)
}
