// Package auth implements request authentication and claims-based
// authorization for the insight API server.
//
// Authentication verifies an RS256 (or other asymmetric) bearer token
// against a public key that a [KeyRefresher] fetches from a JWKS endpoint in
// the background. A successful verification attaches the token's claims to
// the request context as a [ClaimSet]. Failed verification is logged and
// leaves the request anonymous; the [Guard] is what rejects anonymous
// requests on protected routes.
//
// Authorization evaluates a [PermissionConfig] that maps each database name
// to a list of [PermissionRule] values. A rule grants access when every
// claim it names matches; a database is accessible when any of its rules
// grants access.
//
// Two strategies exist and are chosen once at startup (see [NewProviders]):
// "disabled", where every request passes and every database is accessible,
// and "token-based", described above.
package auth

import (
	"context"
)

// ClaimSet is the decoded payload of a verified token. Values are JSON
// scalars (string, float64, bool, nil) or []any sequences of them.
//
// A ClaimSet attached to a request is treated as read-only for the
// lifetime of that request.
type ClaimSet map[string]any

// Subject returns the "sub" claim, or "" when absent or not a string.
func (c ClaimSet) Subject() string {
	sub, _ := c["sub"].(string)
	return sub
}

// Clone returns a shallow copy. Sequence values are copied as well so the
// result can be modified without touching the original.
func (c ClaimSet) Clone() ClaimSet {
	if c == nil {
		return nil
	}
	out := make(ClaimSet, len(c))
	for k, v := range c {
		if seq, ok := v.([]any); ok {
			v = append([]any(nil), seq...)
		}
		out[k] = v
	}
	return out
}

type contextKey int

const claimsKey contextKey = iota

// ContextWithClaims returns a context carrying claims. A nil ClaimSet is
// not attached, so [ClaimsFromContext] keeps reporting "not authenticated".
func ContextWithClaims(ctx context.Context, claims ClaimSet) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims attached by authentication, and
// false when the request is not authenticated.
//
//	claims, ok := auth.ClaimsFromContext(r.Context())
//	if !ok {
//	    return sserr.Unauthenticated("user is not authenticated")
//	}
func ClaimsFromContext(ctx context.Context) (ClaimSet, bool) {
	claims, ok := ctx.Value(claimsKey).(ClaimSet)
	return claims, ok && claims != nil
}
