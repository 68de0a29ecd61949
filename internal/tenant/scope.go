// Package tenant carries the channel scope and acting user resolved for a request.
package tenant

import "context"

// Scope is the multi-tenancy boundary of a request: every asset read or
// written belongs to ChannelID, and ActorID is recorded in audit fields.
type Scope struct {
	ChannelID int64
	ActorID   int64
}

func (s Scope) Valid() bool {
	return s.ChannelID > 0
}

type ctxKey struct{}

func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	return s, ok
}
