// Package apierror defines the single error kind used across HTTP handlers.
// Every validation, not-found, conflict, unauthorized, and internal failure
// is an *Error distinguished by status code and message; handlers never
// branch on a wider taxonomy.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries an HTTP status code, a client-facing message, optional
// sub-errors, and an optional cause. The cause is for server-side logging
// only and is never serialized into a response.
type Error struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors,omitempty"`
	Cause      error    `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%d %s: %v", e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an Error with the provided status code and message.
func New(statusCode int, message string) *Error {
	return &Error{StatusCode: statusCode, Message: message}
}

// Wrap constructs an Error that retains the underlying cause for logging
// while presenting only the generic message to clients.
func Wrap(statusCode int, message string, cause error) *Error {
	return &Error{StatusCode: statusCode, Message: message, Cause: cause}
}

// WithErrors attaches the sub-error list and returns the receiver.
func (e *Error) WithErrors(errs ...string) *Error {
	e.Errors = append(e.Errors, errs...)
	return e
}

// BadRequest builds a 400 validation error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message)
}

// Unauthorized builds a 401 error.
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

// NotFound builds a 404 error.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

// Conflict builds a 409 error.
func Conflict(message string) *Error {
	return New(http.StatusConflict, message)
}

// Internal builds a 500 error that keeps the cause for diagnostics.
func Internal(message string, cause error) *Error {
	return Wrap(http.StatusInternalServerError, message, cause)
}

// From normalizes an arbitrary error into *Error. Unknown errors become
// generic 500s with the original retained as the cause.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal("something went wrong", err)
}
