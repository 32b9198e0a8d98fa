package context

import (
	"context"
)

const contextKeyClient = contextKey("client")

// ClientFromContext extracts the name of the authenticated host client.
// Returns the client name and true if present, or empty string and false if not present.
func ClientFromContext(ctx context.Context) (string, bool) {
	client, ok := ctx.Value(contextKeyClient).(string)

	return client, ok
}

// WithClient creates a new context carrying the authenticated host client name.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, contextKeyClient, client)
}
