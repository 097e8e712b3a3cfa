package types

import "context"

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyActor     contextKey = "actor"
)

// Actor is the authenticated principal attached to a request by the auth
// middleware. Tier is the raw stored value; normalize before using it.
type Actor struct {
	ID    string
	Email string
	Tier  Tier
}

// WithRequestID stores the request ID for log correlation and error envelopes.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext returns the request ID, or "" when unset.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// WithActor stores the authenticated actor on the context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(Actor)
	return a, ok
}
