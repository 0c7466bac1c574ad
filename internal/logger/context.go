package logger

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext carries the request-scoped fields the Ctx logging variants fold
// into each record. Empty fields are omitted.
type LogContext struct {
	RequestID     string // HTTP request ID for correlation
	TransactionID string // sync transaction ID, when one is open
	Username      string // authenticated username
	Operation     string // sync operation: Pull, Push, Reconcile
	Service       string // service the request targets
	ClientIP      string // client IP address
}

// WithContext returns a new context carrying the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}
