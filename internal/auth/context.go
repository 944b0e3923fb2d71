// ABOUTME: Propagation of the verified user identity through request contexts
// ABOUTME: Provides WithUser/UserFromContext for handlers downstream of the middleware

package auth

import (
	"context"
)

// userKey is the key type for storing the verified user id in context.
type userKey struct{}

// WithUser returns a new context carrying the verified user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext retrieves the verified user id, or "" if not present.
func UserFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userKey{}).(string)
	return userID
}
