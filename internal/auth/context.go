package auth

import (
	"context"

	"github.com/relink/relink/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const authContextKey contextKey = "auth_context"

// ContextWithAuth adds the authenticated identity to the context.
func ContextWithAuth(ctx context.Context, auth *model.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// FromContext retrieves the authenticated identity, or nil if the
// request was not authenticated.
func FromContext(ctx context.Context) *model.AuthContext {
	auth, ok := ctx.Value(authContextKey).(*model.AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// OwnerIDFromContext returns the authenticated owner ID, or empty.
func OwnerIDFromContext(ctx context.Context) string {
	auth := FromContext(ctx)
	if auth == nil {
		return ""
	}
	return auth.OwnerID
}
