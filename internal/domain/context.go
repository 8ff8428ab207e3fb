package domain

import "context"

type ctxKey string

const userCtxKey ctxKey = "user_id"

// ContextWithUserID returns a new context carrying the authenticated
// caller's user ID.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userCtxKey, userID)
}

// UserIDFromContext extracts the authenticated user ID from the context.
// Returns empty string if not set; data-touching tools treat that as
// "not authenticated" and return an empty result instead of failing.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userCtxKey).(string); ok {
		return v
	}
	return ""
}
