package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/handmade-market/api/responses"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/logger"
)

// maxThrottledBody bounds how much of a request body is buffered to find
// the submitted email.
const maxThrottledBody = 64 << 10

// Counter increments key and starts its expiry on the first hit.
type Counter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// ThrottleLimits caps attempts per client address and per submitted email
// within one Window. A zero limit disables that dimension.
type ThrottleLimits struct {
	Window   time.Duration
	PerIP    int
	PerEmail int
}

func (l ThrottleLimits) active() bool {
	return l.Window > 0 && (l.PerIP > 0 || l.PerEmail > 0)
}

type throttleSubject struct {
	scope string
	key   string
	limit int
	field string
	value string
}

// ThrottleAuth limits attempts against an auth endpoint such as login or
// register. Counters live in the shared store so every API replica sees
// the same totals.
func ThrottleAuth(endpoint string, limits ThrottleLimits, counter Counter, logg *logger.Logger) func(http.Handler) http.Handler {
	endpoint = strings.ToLower(strings.TrimSpace(endpoint))
	if endpoint == "" {
		endpoint = "auth"
	}
	return func(next http.Handler) http.Handler {
		if !limits.active() || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var subjects []throttleSubject

			if limits.PerIP > 0 {
				if ip := clientIP(r); ip != "" {
					subjects = append(subjects, throttleSubject{
						scope: "ip", key: "throttle:" + endpoint + ":ip:" + ip,
						limit: limits.PerIP, field: "ip", value: ip,
					})
				}
			}
			if limits.PerEmail > 0 {
				email, err := peekEmail(r)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body could not be read"))
					return
				}
				if email != "" {
					digest := sha256.Sum256([]byte(email))
					hash := hex.EncodeToString(digest[:])
					subjects = append(subjects, throttleSubject{
						scope: "email", key: "throttle:" + endpoint + ":email:" + hash,
						limit: limits.PerEmail, field: "email_hash", value: hash,
					})
				}
			}

			for _, s := range subjects {
				count, err := counter.IncrWithTTL(ctx, s.key, limits.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if count <= int64(s.limit) {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"endpoint": endpoint,
						"scope":    s.scope,
						"attempts": count,
						"limit":    s.limit,
						s.field:    s.value,
					}), "auth.throttled")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(limits.Window.Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// peekEmail reads the "email" field of a JSON body and leaves the body
// intact for the next handler.
func peekEmail(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, maxThrottledBody))
	if err != nil {
		return "", err
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}

	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(head, &body) != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(body.Email)), nil
}

// clientIP prefers the first valid address from proxy headers and falls
// back to the connection's peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
