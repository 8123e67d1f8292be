package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared across the platform. Adapters and domain packages
// define their own finer-grained codes (see pkg/messaging, pkg/compute/container)
// but every one of them resolves to one of these for HTTP/transport mapping.
const (
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeForbidden           = "FORBIDDEN"
	CodeUnavailable         = "UNAVAILABLE"
	CodePreconditionFailed  = "PRECONDITION_FAILED"
	CodeInternal            = "INTERNAL"
)

// AppError is the structured error type used throughout the platform.
// It carries a stable Code (for programmatic handling and HTTP mapping),
// a human-readable Message, and an optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code onto the HTTP surface described in spec §6/§7.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodePreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// New creates an AppError with the given code, message and optional cause.
func New(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Wrap wraps err as an internal AppError with an additional message.
// Used for errors whose code doesn't matter to the caller, only that
// something failed and why.
func Wrap(err error, message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// NotFound creates a CodeNotFound error.
func NotFound(message string, err error) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Err: err}
}

// InvalidArgument creates a CodeInvalidArgument error.
func InvalidArgument(message string, err error) *AppError {
	return &AppError{Code: CodeInvalidArgument, Message: message, Err: err}
}

// Conflict creates a CodeConflict error.
func Conflict(message string, err error) *AppError {
	return &AppError{Code: CodeConflict, Message: message, Err: err}
}

// Forbidden creates a CodeForbidden error.
func Forbidden(message string, err error) *AppError {
	return &AppError{Code: CodeForbidden, Message: message, Err: err}
}

// Internal creates a CodeInternal error.
func Internal(message string, err error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// Unavailable creates a CodeUnavailable error — the bus, the grouping
// projection, or the deployment backend could not be reached.
func Unavailable(message string, err error) *AppError {
	return &AppError{Code: CodeUnavailable, Message: message, Err: err}
}

// PreconditionFailed creates a CodePreconditionFailed error — a startup
// invariant (e.g. "cluster mode active") was not satisfied.
func PreconditionFailed(message string, err error) *AppError {
	return &AppError{Code: CodePreconditionFailed, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) is an AppError with the given code.
func Is(err error, code string) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// As is a re-export of the standard library's errors.As for convenience
// so callers need only import this package.
func As(err error, target any) bool {
	return errors.As(err, target)
}
