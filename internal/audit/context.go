package audit

import "context"

// actorKey is a context key type for the acting identity.
type actorKey struct{}

// WithActor returns a context carrying the acting identity (resolved by the
// API layer or CLI; the core only propagates it into audit events).
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting identity, or "unknown" when none is set.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "unknown"
}
