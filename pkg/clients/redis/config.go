// Package redis manages the named Redis databases exposed by the insight
// API. A [Registry] maps database names (the dbInstance path parameter) to
// connection settings and hands out a traced [Client] only after the
// request's [auth.AuthorizationOracle] has granted access to that name.
//
// # Connection Management
//
// Each [Client] wraps go-redis (github.com/redis/go-redis/v9) and adds
// tracing and error classification. Connection pooling, reconnection and
// retry are handled by go-redis. Clients are dialed lazily on first
// authorized access and shared afterwards.
//
//	reg, err := redis.NewRegistry(cfg.Databases, providers.Oracle)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.Close()
//
//	client, err := reg.Open(r.Context(), chi.URLParam(r, "dbInstance"))
//
// # OpenTelemetry Tracing
//
// Every command creates a client span with database semantic attributes
// (db.system, db.redis.database_index, db.statement). Statements are
// truncated to 100 characters so key values do not leak into telemetry.
package redis

import (
	"fmt"
	"net/url"
	"time"
)

// maxStatementTruncateLen bounds Redis statements recorded on spans.
const maxStatementTruncateLen = 100

// Default connection pool and timeout settings.
const (
	// DefaultHost is used when neither URI nor Host is configured.
	DefaultHost = "localhost"

	// DefaultPort is the standard Redis port.
	DefaultPort = 6379

	// DefaultDB is the default Redis database index.
	DefaultDB = 0

	// DefaultPoolSize is the maximum number of connections per database.
	DefaultPoolSize = 10

	// DefaultMinIdleConns is the minimum number of idle connections kept
	// per database.
	DefaultMinIdleConns = 2

	// DefaultMaxRetries is the maximum number of retries before giving
	// up on a command.
	DefaultMaxRetries = 3

	// DefaultDialTimeout bounds establishing a new connection.
	DefaultDialTimeout = 10 * time.Second

	// DefaultReadTimeout bounds waiting for a reply.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds writing a command.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultHealthTimeout bounds a ping when the caller's context has no
	// deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string that redacts itself when printed or serialized. Use
// [Secret.Value] to read the actual value.
type Secret string

const redacted = "[REDACTED]"

// String returns "[REDACTED]".
func (s Secret) String() string {
	return redacted
}

// GoString returns "[REDACTED]" for %#v.
func (s Secret) GoString() string {
	return redacted
}

// Value returns the actual secret string.
func (s Secret) Value() string {
	return string(s)
}

// MarshalText returns "[REDACTED]" so the secret never appears in JSON or
// YAML output.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Config holds the connection settings for one named database. When URI
// is set it takes precedence over Host, Port, DB and Password.
//
//	databases:
//	  db1:
//	    uri: redis://:secret@cache-1:6379/0
//	  db2:
//	    host: cache-2
//	    db: 3
type Config struct {
	// URI is a redis:// or rediss:// connection string.
	URI string `json:"uri,omitempty" yaml:"uri"`

	Host string `json:"host,omitempty" yaml:"host"`
	Port int    `json:"port,omitempty" yaml:"port"`
	DB   int    `json:"db" yaml:"db"`

	// Password is read from configuration files but never written back
	// out.
	Password Secret `json:"-" yaml:"password"`

	PoolSize     int `json:"pool_size,omitempty" yaml:"poolSize"`
	MinIdleConns int `json:"min_idle_conns,omitempty" yaml:"minIdleConns"`

	// MaxRetries of -1 disables retries.
	MaxRetries int `json:"max_retries,omitempty" yaml:"maxRetries"`

	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dialTimeout"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"readTimeout"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"writeTimeout"`

	// TLSEnabled turns on TLS for structured configs. A rediss:// URI
	// enables it implicitly.
	TLSEnabled bool `json:"tls_enabled,omitempty" yaml:"tlsEnabled"`
}

// DefaultConfig returns a Config pointing at a local Redis.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		DB:           DefaultDB,
		PoolSize:     DefaultPoolSize,
		MinIdleConns: DefaultMinIdleConns,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Validate applies defaults to zero-valued fields and checks the rest.
// Structured fields are not checked when URI is set.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DB < 0 {
		return fmt.Errorf("redis: config db must be >= 0, got %d", c.DB)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("redis: config pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.MinIdleConns < 0 {
		return fmt.Errorf("redis: config min_idle_conns must be >= 0, got %d", c.MinIdleConns)
	}
	if c.PoolSize < c.MinIdleConns {
		return fmt.Errorf("redis: config pool_size (%d) must be >= min_idle_conns (%d)", c.PoolSize, c.MinIdleConns)
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("redis: config dial_timeout must not be negative, got %s", c.DialTimeout)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("redis: config read_timeout must not be negative, got %s", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("redis: config write_timeout must not be negative, got %s", c.WriteTimeout)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = DefaultMinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// truncateStatement cuts s to maxStatementTruncateLen runes, appending
// "..." when it shortens.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
