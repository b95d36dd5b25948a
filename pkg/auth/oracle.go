package auth

import (
	"context"
	"log/slog"

	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

// AuthorizationOracle decides whether the authenticated caller may access a
// named resource.
type AuthorizationOracle interface {
	IsAccessAuthorized(ctx context.Context, resource string) (bool, error)
}

// ClaimsOracle evaluates the caller's claims against a [PermissionConfig].
type ClaimsOracle struct {
	permissions *PermissionConfig
	logger      *slog.Logger
}

// NewClaimsOracle returns an oracle over permissions. A nil permissions
// denies every resource; a nil logger falls back to [slog.Default].
func NewClaimsOracle(permissions *PermissionConfig, logger *slog.Logger) *ClaimsOracle {
	if permissions == nil {
		permissions = NewPermissionConfig(nil, false)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClaimsOracle{permissions: permissions, logger: logger}
}

// IsAccessAuthorized fails with [sserr.CodeAuthentication] when ctx carries
// no claims. A resource absent from the configuration gets the configured
// default decision.
func (o *ClaimsOracle) IsAccessAuthorized(ctx context.Context, resource string) (bool, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return false, sserr.Unauthenticated("user is not authenticated; authorization requires an authenticated request")
	}

	perm, ok := o.permissions.Permission(resource)
	if !ok {
		allowed := o.permissions.AllowUnrecognized()
		o.logger.DebugContext(ctx, "auth: no permission configured for resource",
			"resource", resource,
			"allowed", allowed,
		)
		return allowed, nil
	}

	idx := perm.Match(claims)
	o.logger.DebugContext(ctx, "auth: access decision",
		"resource", resource,
		"subject", claims.Subject(),
		"allowed", idx >= 0,
		"rule", idx,
	)
	return idx >= 0, nil
}

// AllowAllOracle grants every request. It backs the disabled strategy.
type AllowAllOracle struct{}

// IsAccessAuthorized always returns true.
func (AllowAllOracle) IsAccessAuthorized(context.Context, string) (bool, error) {
	return true, nil
}
