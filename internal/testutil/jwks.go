package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

// GenerateRSAKey returns a 2048-bit RSA key.
func GenerateRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return key
}

// GenerateECDSAKey returns a P-256 ECDSA key.
func GenerateECDSAKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "failed to generate ECDSA key")
	return key
}

// PublicJWK converts a public key (or, for negative tests, a []byte secret)
// to a JWK carrying kid and, when non-empty, alg.
func PublicJWK(t testing.TB, raw any, kid, alg string) jwk.Key {
	t.Helper()
	key, err := jwk.FromRaw(raw)
	require.NoError(t, err, "failed to build JWK")
	if kid != "" {
		require.NoError(t, key.Set(jwk.KeyIDKey, kid))
	}
	if alg != "" {
		require.NoError(t, key.Set(jwk.AlgorithmKey, alg))
	}
	return key
}

// SignToken signs claims with method and key, setting the kid header when
// non-empty.
func SignToken(t testing.TB, method jwt.SigningMethod, key any, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	s, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign token")
	return s
}

// SignRS256 signs claims with an RSA key.
func SignRS256(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	return SignToken(t, jwt.SigningMethodRS256, key, kid, claims)
}

// JWKSServer is an httptest server publishing a key set whose contents and
// status code can be swapped mid-test.
type JWKSServer struct {
	*httptest.Server

	mu     sync.Mutex
	status int
	body   []byte
	hits   atomic.Int64
}

// NewJWKSServer starts a server publishing keys. It is closed on cleanup.
func NewJWKSServer(t testing.TB, keys ...jwk.Key) *JWKSServer {
	t.Helper()
	s := &JWKSServer{status: http.StatusOK}
	s.SetKeys(t, keys...)
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *JWKSServer) serve(w http.ResponseWriter, _ *http.Request) {
	s.hits.Add(1)
	s.mu.Lock()
	status, body := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// SetKeys replaces the published key set.
func (s *JWKSServer) SetKeys(t testing.TB, keys ...jwk.Key) {
	t.Helper()
	if keys == nil {
		keys = []jwk.Key{}
	}
	body, err := json.Marshal(map[string]any{"keys": keys})
	require.NoError(t, err, "failed to encode JWKS")
	s.SetBody(body)
}

// SetBody replaces the raw response body.
func (s *JWKSServer) SetBody(body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

// SetStatus replaces the response status code.
func (s *JWKSServer) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Hits returns the number of requests served.
func (s *JWKSServer) Hits() int64 {
	return s.hits.Load()
}
