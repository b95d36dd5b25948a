package auth

import (
	"context"
	"log/slog"
	"strings"

	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

// HeaderAuthorization is the header (and gRPC metadata key, lowercased)
// carrying the bearer token.
const HeaderAuthorization = "Authorization"

const bearerPrefix = "Bearer "

// Authenticator attaches the caller's claims to a request context.
//
// TryAuthenticate never fails the request: an absent, malformed or invalid
// credential leaves ctx unchanged, and the [GuardFunc] decides later whether
// an unauthenticated request may proceed.
type Authenticator interface {
	TryAuthenticate(ctx context.Context, authorization string) context.Context
}

// Verifier verifies a raw bearer token. [*TokenVerifier] implements it.
type Verifier interface {
	Verify(ctx context.Context, token string) (ClaimSet, error)
}

// JWTAuthenticator authenticates bearer tokens with a [Verifier].
type JWTAuthenticator struct {
	verifier Verifier
	logger   *slog.Logger
}

// NewJWTAuthenticator returns an authenticator backed by verifier. A nil
// logger falls back to [slog.Default].
func NewJWTAuthenticator(verifier Verifier, logger *slog.Logger) *JWTAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &JWTAuthenticator{verifier: verifier, logger: logger}
}

// TryAuthenticate implements [Authenticator].
func (a *JWTAuthenticator) TryAuthenticate(ctx context.Context, authorization string) context.Context {
	token, ok := ExtractBearerToken(authorization)
	if !ok {
		return ctx
	}

	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		a.logger.WarnContext(ctx, "auth: error validating token signature",
			"code", sserr.GetCode(err).String(),
			"error", err,
		)
		return ctx
	}
	return ContextWithClaims(ctx, claims)
}

// NoopAuthenticator never attaches claims. It backs the disabled strategy.
type NoopAuthenticator struct{}

// TryAuthenticate returns ctx unchanged.
func (NoopAuthenticator) TryAuthenticate(ctx context.Context, _ string) context.Context {
	return ctx
}

// ExtractBearerToken returns the token from a header of the exact form
// "Bearer <token>". The scheme is case-sensitive, separated by one space,
// and the token may not be empty or contain spaces.
func ExtractBearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || token == "" || strings.Contains(token, " ") {
		return "", false
	}
	return token, true
}
