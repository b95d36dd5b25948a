package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

// HTTPMiddleware returns an HTTP middleware that runs the [Authenticator]
// on every request. It never rejects a request: when authentication fails
// the request continues without claims and a later guard decides.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(auth.HTTPMiddleware(providers.Authenticator))
//	r.With(auth.RequireAuthentication(providers.Guard)).Get("/api/me", handleMe)
func HTTPMiddleware(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authenticator.TryAuthenticate(r.Context(), r.Header.Get(HeaderAuthorization))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthentication returns an HTTP middleware that rejects requests
// failing guard with a JSON error body and the error's HTTP status.
func RequireAuthentication(guard GuardFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := guard(r.Context()); err != nil {
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// errorBody is the JSON shape of an error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes err as JSON. The status comes from
// [sserr.Error.HTTPStatus]; foreign errors become 500 responses.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := sserr.FromError(err)
	status := e.HTTPStatus()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "auth: request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: e.Code.String(), Message: e.Message})
}
