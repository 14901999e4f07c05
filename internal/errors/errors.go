// Package errors provides standardized domain errors with codes for the
// fitment server.
//
// Usage:
//
//	// In services - return typed errors
//	if running != nil {
//	    return errors.Conflict("a sync run is already active")
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrTransientRemote) {
//	    // retry with backoff
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeAlreadyExists        Code = "ALREADY_EXISTS"
	CodeValidation           Code = "VALIDATION"
	CodeInternal             Code = "INTERNAL"
	CodeTransientRemote      Code = "TRANSIENT_REMOTE"
	CodeFatalRemote          Code = "FATAL_REMOTE"
	CodeAuthFailure          Code = "AUTH_FAILURE"
	CodeStoreFailure         Code = "STORE_FAILURE"
	CodeNormalizationFailure Code = "NORMALIZATION_FAILURE"
	CodeConflict             Code = "CONFLICT"
	CodeStale                Code = "STALE"
	CodeSchedulingConflict   Code = "SCHEDULING_CONFLICT"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflict, CodeSchedulingConflict:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuthFailure:
		return http.StatusUnauthorized
	case CodeTransientRemote, CodeFatalRemote:
		return http.StatusBadGateway
	case CodeStale:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists        = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation           = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal             = &Error{Code: CodeInternal, Message: "internal error"}
	ErrTransientRemote      = &Error{Code: CodeTransientRemote, Message: "transient remote failure"}
	ErrFatalRemote          = &Error{Code: CodeFatalRemote, Message: "fatal remote failure"}
	ErrAuthFailure          = &Error{Code: CodeAuthFailure, Message: "remote authentication failed"}
	ErrStoreFailure         = &Error{Code: CodeStoreFailure, Message: "store failure"}
	ErrNormalizationFailure = &Error{Code: CodeNormalizationFailure, Message: "normalization failed"}
	ErrConflict             = &Error{Code: CodeConflict, Message: "conflict"}
	ErrStale                = &Error{Code: CodeStale, Message: "claim is stale"}
	ErrSchedulingConflict   = &Error{Code: CodeSchedulingConflict, Message: "duplicate trigger firing"}
)

// Constructor functions for creating errors with custom messages.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists creates an already exists error.
func AlreadyExists(msg string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// TransientRemote creates a retryable remote error.
func TransientRemote(msg string) *Error {
	return &Error{Code: CodeTransientRemote, Message: msg}
}

// FatalRemote creates a non-retryable remote error.
func FatalRemote(msg string) *Error {
	return &Error{Code: CodeFatalRemote, Message: msg}
}

// AuthFailure creates a remote authentication error.
func AuthFailure(msg string) *Error {
	return &Error{Code: CodeAuthFailure, Message: msg}
}

// StoreFailure creates a store error.
func StoreFailure(msg string) *Error {
	return &Error{Code: CodeStoreFailure, Message: msg}
}

// NormalizationFailure creates a normalization error preserving the
// upstream message.
func NormalizationFailure(msg string) *Error {
	return &Error{Code: CodeNormalizationFailure, Message: msg}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Stale creates a stale claim error.
func Stale(msg string) *Error {
	return &Error{Code: CodeStale, Message: msg}
}

// SchedulingConflict creates a duplicate trigger firing error.
func SchedulingConflict(msg string) *Error {
	return &Error{Code: CodeSchedulingConflict, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
