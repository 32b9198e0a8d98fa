package context

import (
	"context"
)

const contextKeyTraceID = contextKey("traceID")

// TraceIDFromContext extracts the trace ID of the host request being served.
// Returns the trace ID and true if present, or empty string and false if not present.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(contextKeyTraceID).(string)

	return traceID, ok
}

// WithTraceID creates a new context with the given trace ID value.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKeyTraceID, traceID)
}
