package instrument

import "context"

type correlationIDKey struct{}

// WithCorrelationID returns a context carrying the given correlation ID.
// Every log record written with that context is stamped with it, which ties
// together the log lines of one login attempt.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GetCorrelationID returns the correlation ID stored in ctx, or "".
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}
