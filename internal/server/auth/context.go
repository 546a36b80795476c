// Package auth implements the GitHub web login: state/PKCE bookkeeping,
// the provider client and the broker that mints bearer tokens.
package auth

import "context"

// Principal is the identity attached to an authenticated request.
type Principal struct {
	UserID int64
	Token  string
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// UserIDFromContext returns the authenticated user ID, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok {
		return 0, false
	}
	return p.UserID, true
}

// TokenFromContext returns the bearer token the request was authenticated with.
func TokenFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.Token == "" {
		return "", false
	}
	return p.Token, true
}
