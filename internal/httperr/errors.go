package httperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable statuses shared by every transport.
const (
	StatusBadRequest      = "BadRequest"
	StatusForbidden       = "Forbidden"
	StatusNotFound        = "NotFound"
	StatusUnauthorized    = "Unauthorized"
	StatusInternal        = "InternalError"
	StatusSocketTimeout   = "SocketTimeout"
	StatusTooManyRequests = "TooManyRequests"
	StatusUniqueViolation = "UniqueViolation"
	StatusNotImplemented  = "NotImplemented"
)

// Error is an API error carrying its HTTP code and machine-readable status.
type Error struct {
	Code    int    `json:"code"`    // HTTP status code.
	Status  string `json:"status"`  // Machine-readable kind.
	Message string `json:"message"` // Human readable message.

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Status, e.Message, e.cause)
	}
	return e.Status + ": " + e.Message
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	out := *e
	out.cause = cause
	return &out
}

// Envelope is the JSON body written for failed requests.
type Envelope struct {
	Error *Error `json:"_error"`
}

// BadRequest reports malformed or missing input.
func BadRequest(message string) *Error {
	return &Error{Code: http.StatusBadRequest, Status: StatusBadRequest, Message: message}
}

// Forbidden reports a denied authorization check.
func Forbidden(message string) *Error {
	return &Error{Code: http.StatusForbidden, Status: StatusForbidden, Message: message}
}

// NotFound reports a missing entity or route.
func NotFound(message string) *Error {
	return &Error{Code: http.StatusNotFound, Status: StatusNotFound, Message: message}
}

// Unauthorized reports missing or invalid credentials on a protected route.
func Unauthorized(message string) *Error {
	return &Error{Code: http.StatusUnauthorized, Status: StatusUnauthorized, Message: message}
}

// Expected builds a declared failure with its own code and status.
func Expected(code int, status, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Internal builds the generic 500 error; the cause is kept for logging only.
func Internal(cause error) *Error {
	return &Error{Code: http.StatusInternalServerError, Status: StatusInternal, Message: "An unexpected error occurred", cause: cause}
}

// From converts any error into an *Error, degrading unknown errors to Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}

// EnvelopeFor returns the response envelope for err.
func EnvelopeFor(err error) Envelope {
	return Envelope{Error: From(err)}
}
