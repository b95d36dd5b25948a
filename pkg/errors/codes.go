package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. Codes are
// stable once assigned; the category prefix drives [Error.HTTPStatus].
type Code string

// Error code categories:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx   - Authorization errors (403 Forbidden)
//	NF_xxx      - Not found errors (404 Not Found)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	CONFLICT_xxx - State conflicts (409 Conflict)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeouts (504 Gateway Timeout)
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeAuthentication indicates the request carries no authenticated
	// identity (no claim set attached).
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the bearer token has expired
	// beyond the configured clock tolerance.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the bearer token is malformed,
	// carries a bad signature, or uses a rejected algorithm.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationKeyUnavailable indicates no verification key has
	// been fetched yet. Verification fails closed.
	CodeAuthenticationKeyUnavailable Code = "AUTH_004"

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied indicates access to a resource is denied.
	CodeAuthorizationDenied Code = "AUTHZ_002"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundResource indicates the requested database is unknown.
	CodeNotFoundResource Code = "NF_003"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database command failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a deployment or configuration
	// mistake, e.g. signing requested from a verify-only verifier.
	CodeInternalConfiguration Code = "INT_003"

	// CodeConflict indicates an operation is not allowed in the current
	// state, e.g. an invalid lifecycle transition.
	CodeConflict Code = "CONFLICT_001"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableKeyEndpoint indicates the key-distribution endpoint
	// could not be reached or returned an unusable key set.
	CodeUnavailableKeyEndpoint Code = "UNAVAIL_002"

	// CodeUnavailableDependency indicates a database could not be reached.
	CodeUnavailableDependency Code = "UNAVAIL_003"

	// CodeTimeout indicates a general timeout or cancellation.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database command hit its deadline.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
