package auth

import (
	"context"

	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

// GuardFunc decides whether a request may reach a protected operation.
type GuardFunc func(ctx context.Context) error

// Guard admits requests that carry claims and rejects the rest with
// [sserr.CodeAuthentication].
func Guard(ctx context.Context) error {
	if _, ok := ClaimsFromContext(ctx); !ok {
		return sserr.Unauthenticated("user is not authenticated")
	}
	return nil
}

// AllowAll admits every request. It backs the disabled strategy.
func AllowAll(context.Context) error {
	return nil
}
