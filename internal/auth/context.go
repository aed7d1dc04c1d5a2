package auth

import (
	"context"
	"ratelimiter/internal/models"
)

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the identity attached by Middleware, or the
// anonymous identity when there is none.
func IdentityFromContext(ctx context.Context) models.Identity {
	if id, ok := ctx.Value(contextKey{}).(models.Identity); ok {
		return id
	}
	return models.Anonymous()
}
