package redis

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/StricklySoft/insight-auth/pkg/auth"
	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

// Dialer opens a client for a named database. [NewClient] is the default.
type Dialer func(ctx context.Context, name string, cfg Config) (*Client, error)

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithLogger sets the logger used for access decisions and dial failures.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDialer replaces the function used to open clients.
func WithDialer(dial Dialer) RegistryOption {
	return func(r *Registry) {
		if dial != nil {
			r.dial = dial
		}
	}
}

// Registry hands out clients for configured databases, consulting an
// [auth.AuthorizationOracle] before every access. It is safe for
// concurrent use.
type Registry struct {
	configs map[string]Config
	oracle  auth.AuthorizationOracle
	dial    Dialer
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// NewRegistry validates every database config and returns a registry that
// authorizes access through oracle. No connection is made until [Registry.Open].
func NewRegistry(configs map[string]Config, oracle auth.AuthorizationOracle, opts ...RegistryOption) (*Registry, error) {
	if oracle == nil {
		return nil, sserr.Configuration("redis: registry requires an authorization oracle")
	}

	r := &Registry{
		configs: make(map[string]Config, len(configs)),
		oracle:  oracle,
		dial:    NewClient,
		logger:  slog.Default(),
		clients: make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(r)
	}

	for name, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeValidation, "redis: invalid database configuration").
				WithDetail("database", name)
		}
		r.configs[name] = cfg
	}
	return r, nil
}

// Names returns the configured database names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open returns the client for name once the caller in ctx is authorized
// for it. The client is dialed on first use and shared afterwards; callers
// must not close it.
//
// Error codes returned:
//   - [sserr.CodeNotFoundResource]: name is not configured
//   - [sserr.CodeAuthentication]: ctx carries no claims
//   - [sserr.CodeAuthorizationDenied]: the oracle denied access
//   - [sserr.CodeUnavailableDependency]: the database could not be reached
func (r *Registry) Open(ctx context.Context, name string) (*Client, error) {
	cfg, ok := r.configs[name]
	if !ok {
		return nil, sserr.NotFoundf("database %q is not configured", name)
	}

	allowed, err := r.oracle.IsAccessAuthorized(ctx, name)
	if err != nil {
		return nil, err
	}
	if !allowed {
		r.logger.InfoContext(ctx, "database access denied", "database", name)
		return nil, sserr.Forbidden("access to database denied").WithDetail("database", name)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, sserr.New(sserr.CodeUnavailableDependency, "redis: registry is closed")
	}
	if c, ok := r.clients[name]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	// Dial without holding the lock so a slow database does not block
	// access to the others.
	c, err := r.dial(ctx, name, cfg)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to open database", "database", name, "error", err)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = c.Close()
		return nil, sserr.New(sserr.CodeUnavailableDependency, "redis: registry is closed")
	}
	if existing, ok := r.clients[name]; ok {
		_ = c.Close()
		return existing, nil
	}
	r.clients[name] = c
	return c, nil
}

// Ping opens name through [Registry.Open] and measures a health check
// round trip.
func (r *Registry) Ping(ctx context.Context, name string) (time.Duration, error) {
	c, err := r.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	if err := c.Health(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Close closes every opened client. Subsequent calls to Open fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for name, c := range r.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, sserr.Wrap(err, sserr.CodeInternalDatabase, "redis: close failed").
				WithDetail("database", name))
		}
	}
	r.clients = nil
	return errors.Join(errs...)
}
