// Package fail provides an error taxonomy that carries an HTTP status code
// alongside a human-readable message, plus the small set of helpers the rest
// of the gateway uses to map broker/auth/validation failures onto the HTTP
// surface.
package fail

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is an error that carries an HTTP-compatible status code describing
// the class of failure (missing record, bad input, broker unreachable, etc).
type StatusError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e StatusError) Error() string {
	return e.Message
}

// StatusCode returns the most relevant HTTP-style status code describing this error.
func (e StatusError) StatusCode() int {
	return e.Status
}

// New creates an error with an explicit HTTP status. Prefer the Kind-specific
// constructors below (BadRequest, NotFound, ...) - they read better at the call site.
func New(status int, messageFormat string, args ...any) StatusError {
	return StatusError{Status: status, Message: fmt.Sprintf(messageFormat, args...)}
}

// Status inspects err for a Status()/StatusCode()/Code() method to find the most
// appropriate HTTP status code. Errors with no such method are treated as 500s.
func Status(err error) int {
	var withStatus errorWithStatus
	if errors.As(err, &withStatus) {
		return withStatus.Status()
	}

	var withStatusCode errorWithStatusCode
	if errors.As(err, &withStatusCode) {
		return withStatusCode.StatusCode()
	}

	var withCode errorWithCode
	if errors.As(err, &withCode) {
		return withCode.Code()
	}

	return http.StatusInternalServerError
}

// Unauthenticated is a 401-style error: the request carried no credential, an
// expired one, or one that failed signature/issuer/audience validation.
func Unauthenticated(messageFormat string, args ...any) StatusError {
	return New(http.StatusUnauthorized, messageFormat, args...)
}

// IsUnauthenticated reports whether err maps to a 401.
func IsUnauthenticated(err error) bool {
	return Status(err) == http.StatusUnauthorized
}

// BadRequest is a 400-style error: out-of-range input, a missing required field,
// or contradictory options (e.g. both start-sequence and deliver-policy=from-new).
func BadRequest(messageFormat string, args ...any) StatusError {
	return New(http.StatusBadRequest, messageFormat, args...)
}

// IsBadRequest reports whether err maps to a 400.
func IsBadRequest(err error) bool {
	return Status(err) == http.StatusBadRequest
}

// NotFound is a 404-style error: the named stream or consumer does not exist.
func NotFound(messageFormat string, args ...any) StatusError {
	return New(http.StatusNotFound, messageFormat, args...)
}

// IsNotFound reports whether err maps to a 404.
func IsNotFound(err error) bool {
	return Status(err) == http.StatusNotFound
}

// Conflict is a 409-style error: a durable consumer already exists with an
// incompatible configuration.
func Conflict(messageFormat string, args ...any) StatusError {
	return New(http.StatusConflict, messageFormat, args...)
}

// IsConflict reports whether err maps to a 409.
func IsConflict(err error) bool {
	return Status(err) == http.StatusConflict
}

// Transient is a 500-style error for a broker that is unreachable or timed out
// beyond the caller's own timeout. Never retried automatically by the surface layer.
func Transient(messageFormat string, args ...any) StatusError {
	return New(http.StatusInternalServerError, messageFormat, args...)
}

// IsTransient reports whether err maps to a 500.
func IsTransient(err error) bool {
	return Status(err) == http.StatusInternalServerError
}

// Unexpected is the generic 500 catch-all for failures that don't fit any other kind.
func Unexpected(messageFormat string, args ...any) StatusError {
	return New(http.StatusInternalServerError, messageFormat, args...)
}

// MethodNotAllowed is a 405-style error.
func MethodNotAllowed(messageFormat string, args ...any) StatusError {
	return New(http.StatusMethodNotAllowed, messageFormat, args...)
}

// Unavailable is a 503-style error for a service that cannot handle the
// request right now.
func Unavailable(messageFormat string, args ...any) StatusError {
	return New(http.StatusServiceUnavailable, messageFormat, args...)
}

type errorWithStatus interface {
	error
	Status() int
}

type errorWithStatusCode interface {
	error
	StatusCode() int
}

type errorWithCode interface {
	error
	Code() int
}
