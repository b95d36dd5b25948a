package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

const (
	// maxJWKSBodySize caps the key set response body at 1 MiB.
	maxJWKSBodySize = 1 << 20

	// maxLoggedBodySize caps the response excerpt kept on fetch errors.
	maxLoggedBodySize = 512

	// DefaultKeyFetchTimeout bounds a single JWKS request.
	DefaultKeyFetchTimeout = 10 * time.Second
)

// HTTPClient abstracts the client used to fetch the JWKS document.
// [*http.Client] satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ---------------------------------------------------------------------------
// KeyMaterial and KeyCache
// ---------------------------------------------------------------------------

// KeyMaterial is one verification key taken from the JWKS endpoint. Values
// are never modified after construction; a refresh publishes a new value.
type KeyMaterial struct {
	// Key is *rsa.PublicKey, *ecdsa.PublicKey or ed25519.PublicKey.
	Key crypto.PublicKey

	// KeyID is the JWK "kid", possibly empty.
	KeyID string

	// Algorithm is the JWK "alg" when the key set declares one. When empty,
	// any configured algorithm compatible with the key type is accepted.
	Algorithm string

	// PEM is the key encoded as PKCS#1 for RSA keys and PKIX otherwise.
	PEM []byte

	// Thumbprint is the hex RFC 7638 SHA-256 thumbprint of the JWK.
	Thumbprint string

	// FetchedAt is when the key set was fetched.
	FetchedAt time.Time
}

// KeyCache holds the current [KeyMaterial]. It has a single writer (the
// [KeyFetcher]) and many concurrent readers (the [TokenVerifier]); stores
// are a single pointer swap so a reader never sees a partial key.
type KeyCache struct {
	current atomic.Pointer[KeyMaterial]
}

// NewKeyCache returns an empty cache. Until the first Store, [KeyCache.Load]
// reports false and verification fails closed.
func NewKeyCache() *KeyCache {
	return &KeyCache{}
}

// Load returns the current key and whether one has been stored.
func (c *KeyCache) Load() (*KeyMaterial, bool) {
	km := c.current.Load()
	return km, km != nil
}

// Store replaces the current key. A nil km is ignored.
func (c *KeyCache) Store(km *KeyMaterial) {
	if km == nil {
		return
	}
	c.current.Store(km)
}

// ---------------------------------------------------------------------------
// KeyFetcher
// ---------------------------------------------------------------------------

// KeyFetcherConfig configures a [KeyFetcher].
type KeyFetcherConfig struct {
	// Endpoint is the JWKS URL. Required.
	Endpoint string

	// Timeout bounds each fetch. Defaults to [DefaultKeyFetchTimeout].
	Timeout time.Duration

	// HTTPClient defaults to an [http.Client] using Timeout.
	HTTPClient HTTPClient

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// KeyFetcher downloads the JWKS document, converts its first key and
// publishes it to a [KeyCache].
type KeyFetcher struct {
	endpoint string
	timeout  time.Duration
	client   HTTPClient
	cache    *KeyCache
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewKeyFetcher validates cfg and returns a fetcher writing to cache.
func NewKeyFetcher(cfg KeyFetcherConfig, cache *KeyCache) (*KeyFetcher, error) {
	if cfg.Endpoint == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "auth: JWKS endpoint must not be empty")
	}
	if cache == nil {
		return nil, sserr.Configuration("auth: key fetcher requires a key cache")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultKeyFetchTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &KeyFetcher{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		client:   cfg.HTTPClient,
		cache:    cache,
		logger:   cfg.Logger,
		tracer:   newTracer(),
		now:      time.Now,
	}, nil
}

// Refresh fetches the key set and, on success, replaces the cached key.
// On failure the previous key stays in place and the error is logged and
// returned; callers on the background schedule ignore it.
func (f *KeyFetcher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ctx, span := startSpan(ctx, f.tracer, "auth.RefreshKey")
	defer span.End()
	span.SetAttributes(attribute.String("auth.jwks_endpoint", f.endpoint))

	f.logger.InfoContext(ctx, "auth: regenerating verification key from JWKS", "endpoint", f.endpoint)

	km, err := f.Fetch(ctx)
	if err != nil {
		f.logger.ErrorContext(ctx, "auth: failed to refresh verification key",
			"endpoint", f.endpoint,
			"error", err,
		)
		finishSpan(span, err)
		return err
	}

	f.cache.Store(km)
	span.SetAttributes(
		attribute.String("auth.key_id", km.KeyID),
		attribute.String("auth.key_thumbprint", km.Thumbprint),
	)
	f.logger.InfoContext(ctx, "auth: verification key refreshed",
		"kid", km.KeyID,
		"alg", km.Algorithm,
		"thumbprint", km.Thumbprint,
	)
	return nil
}

// jwksDocument keeps keys raw so only the selected key has to parse.
type jwksDocument struct {
	Keys []json.RawMessage `json:"keys"`
}

// Fetch performs one GET against the endpoint and converts the first key.
// It does not touch the cache. Every failure carries
// [sserr.CodeUnavailableKeyEndpoint].
func (f *KeyFetcher) Fetch(ctx context.Context) (*KeyMaterial, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableKeyEndpoint, "auth: failed to create JWKS request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableKeyEndpoint, "auth: JWKS request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodySize))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableKeyEndpoint, "auth: failed to read JWKS response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, sserr.Newf(sserr.CodeUnavailableKeyEndpoint,
			"auth: invalid response when getting JWKS data (status %d)", resp.StatusCode).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", truncate(body, maxLoggedBodySize))
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableKeyEndpoint, "auth: JWKS response is not a valid key set")
	}
	if len(doc.Keys) == 0 {
		return nil, sserr.New(sserr.CodeUnavailableKeyEndpoint, "auth: keys returned from JWKS are empty")
	}

	km, err := keyMaterialFromJWK(doc.Keys[0])
	if err != nil {
		return nil, err
	}
	km.FetchedAt = f.now()
	return km, nil
}

// keyMaterialFromJWK converts a single JWK into verification form.
// Symmetric ("oct") keys are rejected.
func keyMaterialFromJWK(raw []byte) (*KeyMaterial, error) {
	key, err := jwk.ParseKey(raw)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableKeyEndpoint, "auth: first JWKS key is malformed")
	}

	var pub any
	if err := key.Raw(&pub); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableKeyEndpoint, "auth: failed to convert JWKS key")
	}

	block, err := pemBlockFor(pub)
	if err != nil {
		return nil, err
	}

	km := &KeyMaterial{
		Key:   pub,
		KeyID: key.KeyID(),
		PEM:   pem.EncodeToMemory(block),
	}
	if alg := key.Algorithm(); alg != nil && alg.String() != "" {
		if !algorithmCompatible(pub, alg.String()) {
			return nil, sserr.Newf(sserr.CodeUnavailableKeyEndpoint,
				"auth: JWKS key declares algorithm %q which does not match its key type", alg.String())
		}
		km.Algorithm = alg.String()
	}
	if tp, err := key.Thumbprint(crypto.SHA256); err == nil {
		km.Thumbprint = hex.EncodeToString(tp)
	}
	return km, nil
}

func pemBlockFor(pub any) (*pem.Block, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(k)}, nil
	case *ecdsa.PublicKey, ed25519.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(k)
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeUnavailableKeyEndpoint, "auth: failed to encode JWKS key")
		}
		return &pem.Block{Type: "PUBLIC KEY", Bytes: der}, nil
	default:
		return nil, sserr.Newf(sserr.CodeUnavailableKeyEndpoint,
			"auth: unsupported JWKS key type %T; symmetric secrets are not supported", pub)
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
