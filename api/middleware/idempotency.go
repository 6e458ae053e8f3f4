package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/handmade-market/api/responses"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/logger"
)

const (
	replayWindow      = 24 * time.Hour
	moneyReplayWindow = 7 * 24 * time.Hour
	// inFlightWindow bounds how long a crashed request can hold its key.
	inFlightWindow = time.Minute
)

// replayRoutes lists the POST endpoints that honour Idempotency-Key. Patterns
// use path.Match syntax, so "*" stands for one path segment.
var replayRoutes = []struct {
	pattern string
	window  time.Duration
}{
	{"/api/v1/products", replayWindow},
	{"/api/v1/refunds", replayWindow},
	{"/api/v1/stock-requests", replayWindow},
	{"/api/v1/orders", moneyReplayWindow},
	{"/api/v1/orders/purchase", moneyReplayWindow},
	{"/api/v1/wallet/top-up", moneyReplayWindow},
	{"/api/v1/refunds/*/approve", moneyReplayWindow},
	{"/api/admin/v1/wallets/adjust", moneyReplayWindow},
}

type idempotencyStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// savedResponse is what the store holds for a key. Until the first request
// finishes Done is false and only the request hash is set.
type savedResponse struct {
	Done        bool   `json:"done"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes covered POSTs carrying an Idempotency-Key run at most
// once per account and key. Later requests get the first response back; a
// repeat with a different body is IDEMPOTENCY_KEY_REUSED and a repeat that
// arrives while the first is still running is a CONFLICT. Server errors are
// not kept, so the client may retry them.
func Idempotency(store idempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			window, covered := replayWindowFor(r)
			if !covered || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body could not be read"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			digest := sha256.Sum256(body)
			hash := hex.EncodeToString(digest[:])
			key := store.IdempotencyKey(replayScope(r), clientKey)

			reservation, _ := json.Marshal(savedResponse{RequestHash: hash})
			won, err := store.SetNX(ctx, key, string(reservation), inFlightWindow)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !won {
				replayOrReject(w, r, store, key, hash, logg, next)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}
			saved, _ := json.Marshal(savedResponse{
				Done:        true,
				RequestHash: hash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(ctx, key, string(saved), window); err != nil && logg != nil {
				logg.Error(ctx, "idempotency.save_failed", err)
			}
		})
	}
}

func replayOrReject(w http.ResponseWriter, r *http.Request, store idempotencyStore, key, hash string, logg *logger.Logger, next http.Handler) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// The reservation expired between SetNX and Get.
		next.ServeHTTP(w, r)
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var saved savedResponse
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case saved.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case !saved.Done:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
	default:
		if saved.ContentType != "" {
			w.Header().Set("Content-Type", saved.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(saved.Status)
		_, _ = w.Write(saved.Body)
	}
}

// replayScope ties a key to the caller and endpoint so two accounts can
// use the same key.
func replayScope(r *http.Request) string {
	return strconv.FormatInt(ActorFromContext(r.Context()).AccountID, 10) + "|" + r.Method + "|" + cleanPath(r)
}

func replayWindowFor(r *http.Request) (time.Duration, bool) {
	if r.Method != http.MethodPost {
		return 0, false
	}
	p := cleanPath(r)
	for _, route := range replayRoutes {
		if ok, _ := path.Match(route.pattern, p); ok {
			return route.window, true
		}
	}
	return 0, false
}

// cleanPath drops a trailing slash. Middleware on a parent router runs
// before chi has resolved the route pattern, so rules match the raw path.
func cleanPath(r *http.Request) string {
	p := r.URL.Path
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
