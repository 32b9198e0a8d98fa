package context

import (
	"context"
)

const contextKeyMemberID = contextKey("memberID")

// MemberIDFromContext extracts the external id of the member an operation acts on.
func MemberIDFromContext(ctx context.Context) (string, bool) {
	memberID, ok := ctx.Value(contextKeyMemberID).(string)

	return memberID, ok
}

// WithMemberID creates a new context tagged with the member an operation acts on,
// so log records emitted below it can be correlated.
func WithMemberID(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, contextKeyMemberID, memberID)
}
