package auth

import (
	"context"
	"log/slog"
	"time"
)

// Providers bundles the components selected by a [Strategy]. Keys and
// Refresher are nil for the disabled strategy.
type Providers struct {
	Strategy      Strategy
	Authenticator Authenticator
	Oracle        AuthorizationOracle
	Guard         GuardFunc
	Keys          *KeyCache
	Verifier      *TokenVerifier
	Refresher     *KeyRefresher
}

// Option customises [NewProviders].
type Option func(*providerOptions)

type providerOptions struct {
	logger      *slog.Logger
	httpClient  HTTPClient
	permissions *PermissionConfig
	now         func() time.Time
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *providerOptions) { o.logger = logger }
}

// WithHTTPClient sets the client used for JWKS requests.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *providerOptions) { o.httpClient = client }
}

// WithPermissionConfig supplies permissions directly instead of reading
// Config.PermissionsFile.
func WithPermissionConfig(p *PermissionConfig) Option {
	return func(o *providerOptions) { o.permissions = p }
}

// WithClock overrides the clock used for token time claims.
func WithClock(now func() time.Time) Option {
	return func(o *providerOptions) { o.now = now }
}

// NewProviders builds the authenticator, guard, oracle and key refresher
// for cfg. The refresher is returned stopped; call [Providers.Start].
func NewProviders(cfg Config, opts ...Option) (*Providers, error) {
	o := providerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.validate(o.permissions == nil); err != nil {
		return nil, err
	}
	strategy, _ := cfg.Type.Resolve()

	if strategy == StrategyDisabled {
		o.logger.Info("auth: authentication disabled; all requests are admitted")
		return &Providers{
			Strategy:      StrategyDisabled,
			Authenticator: NoopAuthenticator{},
			Oracle:        AllowAllOracle{},
			Guard:         AllowAll,
		}, nil
	}

	permissions := o.permissions
	if permissions == nil {
		p, err := LoadPermissionConfig(cfg.PermissionsFile)
		if err != nil {
			return nil, err
		}
		permissions = p
	}

	keys := NewKeyCache()
	fetcher, err := NewKeyFetcher(KeyFetcherConfig{
		Endpoint:   cfg.JWKSEndpoint,
		Timeout:    cfg.KeyFetchTimeout,
		HTTPClient: o.httpClient,
		Logger:     o.logger,
	}, keys)
	if err != nil {
		return nil, err
	}

	verifier, err := NewTokenVerifier(keys, VerifierConfig{
		ClockTolerance: cfg.ClockTolerance.Duration(),
		MaxTokenSize:   cfg.MaxTokenSize,
		Algorithms:     cfg.Algorithms,
		Issuer:         cfg.Issuer,
		Audience:       cfg.Audience,
		Now:            o.now,
		Logger:         o.logger,
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("auth: token-based authentication enabled",
		"jwks_endpoint", cfg.JWKSEndpoint,
		"resources", permissions.Resources(),
		"allow_unrecognized", permissions.AllowUnrecognized(),
	)

	return &Providers{
		Strategy:      StrategyTokenBased,
		Authenticator: NewJWTAuthenticator(verifier, o.logger),
		Oracle:        NewClaimsOracle(permissions, o.logger),
		Guard:         Guard,
		Keys:          keys,
		Verifier:      verifier,
		Refresher:     NewKeyRefresher(fetcher, cfg.KeyInitialDelay, cfg.KeyRefreshInterval),
	}, nil
}

// Start launches the key refresher, if any.
func (p *Providers) Start(ctx context.Context) error {
	if p.Refresher == nil {
		return nil
	}
	return p.Refresher.Start(ctx)
}

// Stop halts the key refresher, if any.
func (p *Providers) Stop() {
	if p.Refresher != nil {
		p.Refresher.Stop()
	}
}
