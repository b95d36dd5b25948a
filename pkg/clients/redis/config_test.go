package redis

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/StricklySoft/insight-auth/internal/testutil"
)

// ===========================================================================
// Secret Tests
// ===========================================================================

func TestSecret_Redacts(t *testing.T) {
	t.Parallel()
	s := Secret("super-secret-password")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", s.GoString())
	assert.Equal(t, "super-secret-password", s.Value())

	data, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", string(data))
}

func TestSecret_NotSerializedInJSON(t *testing.T) {
	t.Parallel()
	cfg := Config{Host: "cache-1", Password: Secret("hunter2")}
	testutil.AssertJSONNotContains(t, cfg, "hunter2")
}

// ===========================================================================
// DefaultConfig Tests
// ===========================================================================

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDB, cfg.DB)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultMinIdleConns, cfg.MinIdleConns)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
	require.NoError(t, cfg.Validate())
}

// ===========================================================================
// Config.Validate Tests
// ===========================================================================

func TestConfig_Validate_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
}

func TestConfig_Validate_PreservesExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Host:         "cache-2.internal",
		Port:         6380,
		DB:           3,
		Password:     Secret("pass"),
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   5,
		DialTimeout:  15 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		TLSEnabled:   true,
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "cache-2.internal", cfg.Host)
	assert.Equal(t, 6380, cfg.Port)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, 50, cfg.PoolSize)
	assert.Equal(t, 15*time.Second, cfg.DialTimeout)
}

func TestConfig_Validate_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"negative port", Config{Port: -1}, "port must be between"},
		{"port too high", Config{Port: 70000}, "port must be between"},
		{"negative db", Config{DB: -1}, "db must be >= 0"},
		{"negative pool size", Config{PoolSize: -1}, "pool_size must be >= 1"},
		{"negative min idle", Config{MinIdleConns: -1}, "min_idle_conns must be >= 0"},
		{"pool smaller than idle", Config{PoolSize: 2, MinIdleConns: 5}, "must be >= min_idle_conns"},
		{"negative dial timeout", Config{DialTimeout: -time.Second}, "dial_timeout must not be negative"},
		{"negative read timeout", Config{ReadTimeout: -time.Second}, "read_timeout must not be negative"},
		{"negative write timeout", Config{WriteTimeout: -time.Second}, "write_timeout must not be negative"},
		{"uri wrong scheme", Config{URI: "mysql://localhost:3306/mydb"}, "URI scheme must be"},
		{"uri without scheme", Config{URI: "not-a-redis-uri"}, "URI scheme must be"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Validate_URI(t *testing.T) {
	t.Parallel()

	for _, uri := range []string{
		"redis://localhost:6379/0",
		"rediss://:password@localhost:6379/0",
	} {
		cfg := Config{URI: uri, Port: 99999}
		require.NoError(t, cfg.Validate(), uri)
		assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	}
}

func TestConfig_DecodeYAML(t *testing.T) {
	t.Parallel()
	data := []byte(`
db1:
  uri: redis://cache-1:6379/0
db2:
  host: cache-2
  port: 6380
  db: 3
  password: s3cret
  poolSize: 20
  readTimeout: 2s
`)

	var dbs map[string]Config
	require.NoError(t, yaml.Unmarshal(data, &dbs))

	require.Len(t, dbs, 2)
	assert.Equal(t, "redis://cache-1:6379/0", dbs["db1"].URI)
	assert.Equal(t, "cache-2", dbs["db2"].Host)
	assert.Equal(t, 6380, dbs["db2"].Port)
	assert.Equal(t, 3, dbs["db2"].DB)
	assert.Equal(t, "s3cret", dbs["db2"].Password.Value())
	assert.Equal(t, 20, dbs["db2"].PoolSize)
	assert.Equal(t, 2*time.Second, dbs["db2"].ReadTimeout)
}

// ===========================================================================
// options Tests
// ===========================================================================

func TestOptions_Structured(t *testing.T) {
	t.Parallel()
	cfg := Config{Host: "cache-2", Port: 6380, DB: 4, Password: "pw", TLSEnabled: true}
	require.NoError(t, cfg.Validate())

	opts, err := options(cfg)
	require.NoError(t, err)
	assert.Equal(t, "cache-2:6380", opts.Addr)
	assert.Equal(t, 4, opts.DB)
	assert.Equal(t, "pw", opts.Password)
	assert.NotNil(t, opts.TLSConfig)
	assert.Equal(t, DefaultPoolSize, opts.PoolSize)
}

func TestOptions_URI(t *testing.T) {
	t.Parallel()
	cfg := Config{URI: "redis://:pw@cache-1:6379/2"}
	require.NoError(t, cfg.Validate())

	opts, err := options(cfg)
	require.NoError(t, err)
	assert.Equal(t, "cache-1:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, DefaultReadTimeout, opts.ReadTimeout)
}

// ===========================================================================
// truncateStatement Tests
// ===========================================================================

func TestTruncateStatement(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", truncateStatement(""))
	assert.Equal(t, "GET k", truncateStatement("GET k"))

	exact := strings.Repeat("x", maxStatementTruncateLen)
	assert.Equal(t, exact, truncateStatement(exact))

	long := truncateStatement(strings.Repeat("x", maxStatementTruncateLen+50))
	assert.True(t, strings.HasSuffix(long, "..."))
	assert.Len(t, long, maxStatementTruncateLen+3)
}

func TestTruncateStatement_MultiByte(t *testing.T) {
	t.Parallel()
	stmt := strings.Repeat("日", maxStatementTruncateLen+1)
	got := truncateStatement(stmt)

	assert.Len(t, []rune(got), maxStatementTruncateLen+3)
	assert.NotContains(t, got, "�")
}
