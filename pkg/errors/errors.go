// Package errors provides the structured error type shared by the
// insight-auth packages. Every error carries a machine-readable code whose
// category prefix decides how the request layer reports it.
//
// # Error Categories
//
//   - Validation errors: malformed permission documents, bad config values
//   - Authentication errors: missing claims, expired or invalid tokens,
//     verification key not yet fetched
//   - Authorization errors: access to a database denied
//   - NotFound errors: unknown database name
//   - Internal errors: deployment mistakes such as asking a verify-only
//     verifier to sign
//   - Unavailable errors: key-distribution endpoint failures
//
// # Usage
//
//	err := errors.New(errors.CodeAuthentication, "user is not authenticated")
//	err = errors.Wrap(cause, errors.CodeUnavailableKeyEndpoint, "auth: JWKS request failed")
//
//	if errors.IsAuthentication(err) {
//	    // 401
//	}
package errors
