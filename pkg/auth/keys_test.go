package auth

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/insight-auth/internal/testutil"
	"github.com/StricklySoft/insight-auth/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

func newTestFetcher(t *testing.T, url string) (*KeyFetcher, *KeyCache) {
	t.Helper()
	cache := NewKeyCache()
	f, err := NewKeyFetcher(KeyFetcherConfig{Endpoint: url}, cache)
	require.NoError(t, err)
	return f, cache
}

// ---------------------------------------------------------------------------
// KeyCache
// ---------------------------------------------------------------------------

func TestKeyCache_EmptyUntilStored(t *testing.T) {
	t.Parallel()
	c := NewKeyCache()

	km, ok := c.Load()
	assert.False(t, ok)
	assert.Nil(t, km)

	c.Store(nil)
	_, ok = c.Load()
	assert.False(t, ok, "storing nil must not initialize the cache")

	want := &KeyMaterial{KeyID: "k1"}
	c.Store(want)
	got, ok := c.Load()
	require.True(t, ok)
	assert.Same(t, want, got)
}

// ---------------------------------------------------------------------------
// KeyFetcher construction
// ---------------------------------------------------------------------------

func TestNewKeyFetcher_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewKeyFetcher(KeyFetcherConfig{}, NewKeyCache())
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)

	_, err = NewKeyFetcher(KeyFetcherConfig{Endpoint: "http://localhost"}, nil)
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
}

// ---------------------------------------------------------------------------
// Fetch
// ---------------------------------------------------------------------------

func TestFetch_RSAKey(t *testing.T) {
	t.Parallel()
	priv := testutil.GenerateRSAKey(t)
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, &priv.PublicKey, fixtures.KeyID, "RS256"))
	f, cache := newTestFetcher(t, srv.URL)

	km, err := f.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fixtures.KeyID, km.KeyID)
	assert.Equal(t, "RS256", km.Algorithm)
	assert.Len(t, km.Thumbprint, 64, "SHA-256 thumbprint should be 32 hex-encoded bytes")
	assert.False(t, km.FetchedAt.IsZero())
	assert.True(t, priv.PublicKey.Equal(km.Key))

	block, _ := pem.Decode(km.PEM)
	require.NotNil(t, block, "PEM should decode")
	assert.Equal(t, "RSA PUBLIC KEY", block.Type)
	parsed, err := x509.ParsePKCS1PublicKey(block.Bytes)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(parsed))

	_, ok := cache.Load()
	assert.False(t, ok, "Fetch must not write the cache")
}

func TestFetch_ECDSAKeyWithoutAlg(t *testing.T) {
	t.Parallel()
	priv := testutil.GenerateECDSAKey(t)
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, &priv.PublicKey, "ec-1", ""))
	f, _ := newTestFetcher(t, srv.URL)

	km, err := f.Fetch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, km.Algorithm)
	block, _ := pem.Decode(km.PEM)
	require.NotNil(t, block)
	assert.Equal(t, "PUBLIC KEY", block.Type)
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(parsed))
}

func TestFetch_SelectsFirstKey(t *testing.T) {
	t.Parallel()
	first := testutil.GenerateRSAKey(t)
	second := testutil.GenerateRSAKey(t)
	srv := testutil.NewJWKSServer(t,
		testutil.PublicJWK(t, &first.PublicKey, "first", "RS256"),
		testutil.PublicJWK(t, &second.PublicKey, "second", "RS256"),
	)
	f, _ := newTestFetcher(t, srv.URL)

	km, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", km.KeyID)
}

func TestFetch_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		{name: "not found", status: http.StatusNotFound, body: `not here`},
		{name: "malformed JSON", status: http.StatusOK, body: `{"keys":`},
		{name: "missing keys", status: http.StatusOK, body: `{}`},
		{name: "null keys", status: http.StatusOK, body: `{"keys":null}`},
		{name: "empty keys", status: http.StatusOK, body: `{"keys":[]}`},
		{name: "garbage key", status: http.StatusOK, body: `{"keys":[{"kty":"nope"}]}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := testutil.NewJWKSServer(t)
			srv.SetStatus(tt.status)
			srv.SetBody([]byte(tt.body))
			f, _ := newTestFetcher(t, srv.URL)

			km, err := f.Fetch(context.Background())
			testutil.RequireErrorCode(t, err, sserr.CodeUnavailableKeyEndpoint)
			assert.Nil(t, km)
		})
	}
}

func TestFetch_BadStatusKeepsBodyExcerpt(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t)
	srv.SetStatus(http.StatusBadGateway)
	srv.SetBody([]byte(strings.Repeat("x", 2000)))
	f, _ := newTestFetcher(t, srv.URL)

	_, err := f.Fetch(context.Background())
	e, ok := sserr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, e.Details["status"])
	body, _ := e.Details["body"].(string)
	assert.Len(t, body, maxLoggedBodySize+len("..."))
}

func TestFetch_RejectsSymmetricKey(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, []byte("a-very-secret-shared-hmac-key!!!"), "oct-1", "HS256"))
	f, _ := newTestFetcher(t, srv.URL)

	_, err := f.Fetch(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableKeyEndpoint)
	assert.Contains(t, err.Error(), "symmetric secrets are not supported")
}

func TestFetch_RejectsAlgorithmKeyTypeMismatch(t *testing.T) {
	t.Parallel()
	priv := testutil.GenerateRSAKey(t)
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, &priv.PublicKey, "k", "ES256"))
	f, _ := newTestFetcher(t, srv.URL)

	_, err := f.Fetch(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableKeyEndpoint)
}

func TestFetch_Unreachable(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t)
	url := srv.URL
	srv.Close()
	f, _ := newTestFetcher(t, url)

	_, err := f.Fetch(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableKeyEndpoint)
}

// ---------------------------------------------------------------------------
// Refresh
// ---------------------------------------------------------------------------

func TestRefresh_StoresKey(t *testing.T) {
	t.Parallel()
	priv := testutil.GenerateRSAKey(t)
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, &priv.PublicKey, fixtures.KeyID, "RS256"))
	f, cache := newTestFetcher(t, srv.URL)

	require.NoError(t, f.Refresh(context.Background()))

	km, ok := cache.Load()
	require.True(t, ok)
	assert.Equal(t, fixtures.KeyID, km.KeyID)
}

func TestRefresh_ServerErrorKeepsPreviousKey(t *testing.T) {
	t.Parallel()
	priv := testutil.GenerateRSAKey(t)
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, &priv.PublicKey, fixtures.KeyID, "RS256"))
	f, cache := newTestFetcher(t, srv.URL)

	require.NoError(t, f.Refresh(context.Background()))
	before, _ := cache.Load()

	srv.SetStatus(http.StatusInternalServerError)
	err := f.Refresh(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableKeyEndpoint)

	after, ok := cache.Load()
	require.True(t, ok)
	assert.Same(t, before, after, "a failed refresh must not replace the key")
}

func TestRefresh_FailureBeforeFirstSuccessLeavesCacheEmpty(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t)
	srv.SetStatus(http.StatusInternalServerError)
	f, cache := newTestFetcher(t, srv.URL)

	require.Error(t, f.Refresh(context.Background()))
	_, ok := cache.Load()
	assert.False(t, ok)
}

func TestRefresh_Idempotent(t *testing.T) {
	t.Parallel()
	priv := testutil.GenerateRSAKey(t)
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, &priv.PublicKey, fixtures.KeyID, "RS256"))
	f, cache := newTestFetcher(t, srv.URL)

	require.NoError(t, f.Refresh(context.Background()))
	first, _ := cache.Load()
	require.NoError(t, f.Refresh(context.Background()))
	second, _ := cache.Load()

	assert.Equal(t, first.KeyID, second.KeyID)
	assert.Equal(t, first.Algorithm, second.Algorithm)
	assert.Equal(t, first.PEM, second.PEM)
	assert.Equal(t, first.Thumbprint, second.Thumbprint)
	assert.True(t, priv.PublicKey.Equal(second.Key))
}

func TestRefresh_ReplacesRotatedKey(t *testing.T) {
	t.Parallel()
	oldKey := testutil.GenerateRSAKey(t)
	newKey := testutil.GenerateRSAKey(t)
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, &oldKey.PublicKey, "old", "RS256"))
	f, cache := newTestFetcher(t, srv.URL)

	require.NoError(t, f.Refresh(context.Background()))
	srv.SetKeys(t, testutil.PublicJWK(t, &newKey.PublicKey, "new", "RS256"))
	require.NoError(t, f.Refresh(context.Background()))

	km, _ := cache.Load()
	assert.Equal(t, "new", km.KeyID)
	assert.True(t, newKey.PublicKey.Equal(km.Key))
}
