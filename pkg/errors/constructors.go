package errors

import (
	"errors"
	"fmt"
)

// New creates a new Error with the specified code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps err as the Cause of a new Error. Returns nil if err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps err with a formatted message. Returns nil if err is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Validation creates a new validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a new validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// Unauthenticated creates an authentication error for requests that reach
// a protected operation without an authenticated identity.
func Unauthenticated(message string) *Error {
	return New(CodeAuthentication, message)
}

// Forbidden creates an access-denied error.
func Forbidden(message string) *Error {
	return New(CodeAuthorizationDenied, message)
}

// NotFoundf creates a resource-not-found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return Newf(CodeNotFoundResource, format, args...)
}

// Configuration creates an internal configuration error. These indicate a
// deployment mistake and should surface loudly rather than per request.
func Configuration(message string) *Error {
	return New(CodeInternalConfiguration, message)
}

// FromError converts err to an *Error, wrapping foreign errors as internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
