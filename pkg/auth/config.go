package auth

import (
	"strings"
	"time"

	"github.com/StricklySoft/insight-auth/pkg/config"
	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

// Strategy selects how requests are authenticated and authorized.
type Strategy string

const (
	// StrategyDisabled admits every request without credentials.
	StrategyDisabled Strategy = "disabled"

	// StrategyTokenBased verifies bearer tokens and evaluates claims rules.
	StrategyTokenBased Strategy = "token-based"
)

// Resolve normalises s, accepting "none" and "jwt" as aliases. An empty
// strategy resolves to [StrategyDisabled].
func (s Strategy) Resolve() (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "", "disabled", "none":
		return StrategyDisabled, nil
	case "token-based", "jwt":
		return StrategyTokenBased, nil
	}
	return "", sserr.Validationf("auth: unknown authentication type %q", string(s))
}

// Config is the process-level authentication configuration. Load it with
// pkg/config; nested under an `env:"AUTH"` field its variables read as
// INSIGHT_AUTH_TYPE, INSIGHT_AUTH_JWKS_ENDPOINT and so on. ClockTolerance
// takes a bare number of seconds or a duration string.
type Config struct {
	Type            Strategy       `env:"TYPE" envDefault:"disabled" yaml:"type" json:"type"`
	ClockTolerance  config.Seconds `env:"CLOCK_TOLERANCE" yaml:"clockTolerance" json:"clockTolerance"`
	JWKSEndpoint    string         `env:"JWKS_ENDPOINT" yaml:"jwksEndpoint" json:"jwksEndpoint"`
	PermissionsFile string         `env:"PERMISSIONS_FILE" yaml:"permissionsFile" json:"permissionsFile"`

	Algorithms []string `env:"ALGORITHMS" envDefault:"RS256" yaml:"algorithms" json:"algorithms"`
	Issuer     string   `env:"ISSUER" yaml:"issuer" json:"issuer"`
	Audience   string   `env:"AUDIENCE" yaml:"audience" json:"audience"`

	MaxTokenSize int `env:"MAX_TOKEN_SIZE" envDefault:"8192" yaml:"maxTokenSize" json:"maxTokenSize"`

	KeyRefreshInterval time.Duration `env:"KEY_REFRESH_INTERVAL" envDefault:"5m" yaml:"keyRefreshInterval" json:"keyRefreshInterval"`
	KeyInitialDelay    time.Duration `env:"KEY_INITIAL_DELAY" envDefault:"100ms" yaml:"keyInitialDelay" json:"keyInitialDelay"`
	KeyFetchTimeout    time.Duration `env:"KEY_FETCH_TIMEOUT" envDefault:"10s" yaml:"keyFetchTimeout" json:"keyFetchTimeout"`
}

// DefaultConfig returns the defaults applied by the struct tags.
func DefaultConfig() Config {
	return Config{
		Type:               StrategyDisabled,
		Algorithms:         []string{DefaultAlgorithm},
		MaxTokenSize:       DefaultMaxTokenSize,
		KeyRefreshInterval: DefaultKeyRefreshInterval,
		KeyInitialDelay:    DefaultKeyInitialDelay,
		KeyFetchTimeout:    DefaultKeyFetchTimeout,
	}
}

// Validate checks the configuration. Token-based mode needs a JWKS
// endpoint and a permissions file.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(needPermissionsFile bool) error {
	strategy, err := c.Type.Resolve()
	if err != nil {
		return err
	}
	if c.ClockTolerance < 0 {
		return sserr.Validation("auth: clock tolerance must be non-negative")
	}
	if c.MaxTokenSize < 0 {
		return sserr.Validation("auth: max token size must be non-negative")
	}
	if c.KeyRefreshInterval < 0 || c.KeyInitialDelay < 0 || c.KeyFetchTimeout < 0 {
		return sserr.Validation("auth: key refresh durations must be non-negative")
	}
	if strategy != StrategyTokenBased {
		return nil
	}
	if c.JWKSEndpoint == "" {
		return sserr.New(sserr.CodeValidationRequired, "auth: JWKS endpoint is required for token-based authentication")
	}
	if needPermissionsFile && c.PermissionsFile == "" {
		return sserr.New(sserr.CodeValidationRequired, "auth: permissions file is required for token-based authentication")
	}
	return nil
}
