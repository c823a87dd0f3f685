package tenant

import "context"

type contextKey int

const (
	scopeKey contextKey = iota
	resolvedKey
)

// WithScope returns a child context carrying an ambient scope. Nesting is a
// pure stack discipline: the parent context keeps its own scope value, so
// exiting a nested scope restores the ambient one with no bookkeeping.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// ScopeFrom returns the ambient scope of the call chain, if any.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey).(*Scope)
	return s, ok
}

// WithResolved returns a child context carrying the tenant identifier the
// resolution chain produced for this request.
func WithResolved(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, resolvedKey, tenantID)
}

// ResolvedFrom returns the resolved tenant identifier, if any.
func ResolvedFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(resolvedKey).(string)
	return id, ok && id != ""
}
