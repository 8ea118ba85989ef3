// ABOUTME: Request context helpers for verified token claims
// ABOUTME: Provides WithClaims/FromContext for handlers behind the auth middleware

package auth

import "context"

type claimsKey struct{}

// WithClaims returns a new context carrying c.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// FromContext returns the claims stored by the middleware, if any.
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(Claims)
	return c, ok
}
