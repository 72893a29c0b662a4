// Package apierrors defines the three failure kinds surfaced by the SDK.
//
// Every public operation either returns a result or an error for which one
// of IsAuthError, IsAPIError or IsValidationError reports true.
package apierrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is the cause of an APIError returned after Close.
var ErrClosed = errors.New("client closed")

// AuthError reports a credential or token failure: invalid password,
// expired or denied device code, rejected refresh.
type AuthError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	return describe("auth", e.Op, e.StatusCode, e.Body, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError reports a non-2xx response after any retry, or a transport failure.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	return describe("api", e.Op, e.StatusCode, e.Body, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// ValidationError reports a payload that does not match the expected
// schema, or a command rejected before it was sent.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return describe("validation", e.Op, 0, "", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func describe(kind, op string, status int, body string, err error) string {
	msg := kind + " error"
	if op != "" {
		msg += ": " + op
	}
	if status != 0 {
		msg += fmt.Sprintf(": HTTP %d", status)
	}
	if body != "" {
		msg += ": " + body
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	return msg
}

// NewAuthError builds an AuthError with a formatted cause.
func NewAuthError(op string, status int, body string, format string, args ...interface{}) *AuthError {
	return &AuthError{Op: op, StatusCode: status, Body: body, Err: fmt.Errorf(format, args...)}
}

// NewValidationError builds a ValidationError with a formatted cause.
func NewValidationError(op string, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Op: op, Err: fmt.Errorf(format, args...)}
}

func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

func IsAPIError(err error) bool {
	var e *APIError
	return errors.As(err, &e)
}

func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// StatusCode returns the HTTP status carried by an AuthError or APIError,
// or 0.
func StatusCode(err error) int {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	var pe *APIError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}
