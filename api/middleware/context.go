package middleware

import (
	"context"

	"github.com/angelmondragon/handmade-market/internal/authz"
)

type contextKey string

const (
	ctxActor    contextKey = "actor"
	ctxAccessID contextKey = "access_id"
)

// ActorFromContext returns the authenticated caller, or the zero Actor for
// anonymous requests.
func ActorFromContext(ctx context.Context) authz.Actor {
	if ctx == nil {
		return authz.Actor{}
	}
	if v, ok := ctx.Value(ctxActor).(authz.Actor); ok {
		return v
	}
	return authz.Actor{}
}

// AccessIDFromContext returns the jti of the access token that authenticated the request.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}

// WithActor injects the caller into the context.
func WithActor(ctx context.Context, actor authz.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

func withAccessID(ctx context.Context, accessID string) context.Context {
	return context.WithValue(ctx, ctxAccessID, accessID)
}
