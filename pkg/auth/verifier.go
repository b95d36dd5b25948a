package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

// DefaultMaxTokenSize is the bearer token size limit (8 KiB) applied when
// VerifierConfig.MaxTokenSize is zero.
const DefaultMaxTokenSize = 8192

// DefaultAlgorithm is the signing algorithm accepted when none is configured.
const DefaultAlgorithm = "RS256"

// VerifierConfig configures a [TokenVerifier].
type VerifierConfig struct {
	// ClockTolerance is the leeway applied to exp, nbf and iat.
	ClockTolerance time.Duration

	// Algorithms lists the accepted asymmetric algorithms. Defaults to
	// RS256. HMAC and "none" are rejected.
	Algorithms []string

	// MaxTokenSize bounds the encoded token length in bytes. Zero means
	// [DefaultMaxTokenSize].
	MaxTokenSize int

	// Issuer and Audience are checked when non-empty.
	Issuer   string
	Audience string

	// Now overrides the verification clock. Tests only.
	Now func() time.Time

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// TokenVerifier checks bearer token signatures against the key held in a
// [KeyCache] and returns the decoded claims. It never fetches keys itself:
// when the cache is empty every token is rejected.
type TokenVerifier struct {
	keys       *KeyCache
	cfg        VerifierConfig
	algorithms []string
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewTokenVerifier validates cfg and returns a verifier reading keys.
func NewTokenVerifier(keys *KeyCache, cfg VerifierConfig) (*TokenVerifier, error) {
	if keys == nil {
		return nil, sserr.Configuration("auth: token verifier requires a key cache")
	}
	if cfg.ClockTolerance < 0 {
		return nil, sserr.New(sserr.CodeValidation, "auth: clock tolerance must be non-negative")
	}
	if cfg.MaxTokenSize < 0 {
		return nil, sserr.New(sserr.CodeValidation, "auth: max token size must be non-negative")
	}
	if cfg.MaxTokenSize == 0 {
		cfg.MaxTokenSize = DefaultMaxTokenSize
	}
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = []string{DefaultAlgorithm}
	}

	algorithms := make([]string, 0, len(cfg.Algorithms))
	for _, alg := range cfg.Algorithms {
		alg = strings.TrimSpace(alg)
		switch {
		case strings.HasPrefix(strings.ToUpper(alg), "HS"):
			return nil, sserr.Configuration("auth: symmetric secrets are not supported")
		case strings.EqualFold(alg, "none"):
			return nil, sserr.Configuration("auth: algorithm 'none' is not permitted")
		case !supportedAlgorithm(alg):
			return nil, sserr.Configuration("auth: unsupported signing algorithm " + alg)
		}
		algorithms = append(algorithms, alg)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &TokenVerifier{
		keys:       keys,
		cfg:        cfg,
		algorithms: algorithms,
		logger:     cfg.Logger,
		tracer:     newTracer(),
	}, nil
}

// Verify checks the token signature and standard time claims and returns
// the payload. Errors carry [sserr.CodeAuthenticationKeyUnavailable] before
// the first key arrives, [sserr.CodeAuthenticationExpired] for expired
// tokens and [sserr.CodeAuthenticationInvalid] otherwise.
func (v *TokenVerifier) Verify(ctx context.Context, tokenStr string) (ClaimSet, error) {
	_, span := startSpan(ctx, v.tracer, "auth.VerifyToken")
	defer span.End()

	claims, err := v.verify(tokenStr)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("auth.subject", claims.Subject()))
	return claims, nil
}

func (v *TokenVerifier) verify(tokenStr string) (ClaimSet, error) {
	if tokenStr == "" {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token must not be empty")
	}
	if len(tokenStr) > v.cfg.MaxTokenSize {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token exceeds maximum size")
	}

	km, ok := v.keys.Load()
	if !ok {
		return nil, sserr.New(sserr.CodeAuthenticationKeyUnavailable,
			"auth: public key is not initialized; check the JWKS refresh logs")
	}

	methods := v.methodsFor(km)
	if len(methods) == 0 {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid,
			"auth: no configured algorithm matches the verification key").
			WithDetail("kid", km.KeyID).
			WithDetail("alg", km.Algorithm)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(v.cfg.ClockTolerance),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if v.cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(v.cfg.Now))
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	mc := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, mc, func(*jwt.Token) (any, error) {
		return km.Key, nil
	}, opts...)
	if err != nil {
		return nil, classifyError(err)
	}
	if !token.Valid {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token is invalid")
	}

	return ClaimSet(mc).Clone(), nil
}

// methodsFor returns the configured algorithms usable with km. A key that
// declares its own algorithm admits only that one.
func (v *TokenVerifier) methodsFor(km *KeyMaterial) []string {
	var methods []string
	for _, alg := range v.algorithms {
		if km.Algorithm != "" && alg != km.Algorithm {
			continue
		}
		if algorithmCompatible(km.Key, alg) {
			methods = append(methods, alg)
		}
	}
	return methods
}

// Sign always fails. The verifier only ever holds a public key, so a call
// means the deployment is wired incorrectly.
func (v *TokenVerifier) Sign(ctx context.Context, _ ClaimSet) (string, error) {
	err := sserr.Configuration("auth: signing tokens is unsupported")
	v.logger.ErrorContext(ctx, "auth: token signing attempted on a verify-only key", "error", err)
	return "", err
}

// SymmetricKey always fails; shared secrets are not supported.
func (v *TokenVerifier) SymmetricKey(ctx context.Context) ([]byte, error) {
	err := sserr.Configuration("auth: symmetric secrets are not supported")
	v.logger.ErrorContext(ctx, "auth: symmetric key requested from an asymmetric verifier", "error", err)
	return nil, err
}

func supportedAlgorithm(alg string) bool {
	switch alg {
	case "RS256", "RS384", "RS512",
		"PS256", "PS384", "PS512",
		"ES256", "ES384", "ES512",
		"EdDSA":
		return true
	}
	return false
}

// algorithmCompatible reports whether alg can verify signatures with key.
func algorithmCompatible(key any, alg string) bool {
	switch k := key.(type) {
	case *rsa.PublicKey:
		return strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS")
	case *ecdsa.PublicKey:
		if k.Curve == nil {
			return false
		}
		switch k.Curve.Params().Name {
		case "P-256":
			return alg == "ES256"
		case "P-384":
			return alg == "ES384"
		case "P-521":
			return alg == "ES512"
		}
		return false
	case ed25519.PublicKey:
		return alg == "EdDSA"
	}
	return false
}
