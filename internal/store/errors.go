// Package store defines the persistence boundary: sentinel errors shared by
// store implementations and the collaborator interfaces the store calls out
// to.
package store

import (
	"fmt"
	"net/http"
)

// Error is a store error with an HTTP status code.
type Error struct {
	Code    int    // HTTP status code
	Message string // User-facing message
	Err     error  // Underlying error (optional)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithMessage returns a new error with a custom message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, Err: e.Err}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: err}
}

// Sentinel errors.
var (
	ErrNotFound = &Error{
		Code:    http.StatusNotFound,
		Message: "resource not found",
	}

	ErrAlreadyExists = &Error{
		Code:    http.StatusConflict,
		Message: "resource already exists",
	}

	ErrInvalidInput = &Error{
		Code:    http.StatusBadRequest,
		Message: "invalid input",
	}

	// ErrConflict signals that a serialized resource (the running SyncRun
	// slot, a trigger firing key) is already held.
	ErrConflict = &Error{
		Code:    http.StatusConflict,
		Message: "conflicting operation in progress",
	}

	// ErrClaimConflict signals a lost compare-and-set race on a job claim.
	// Workers treat it as a skip, not a failure.
	ErrClaimConflict = &Error{
		Code:    http.StatusConflict,
		Message: "job already claimed",
	}

	// ErrInvalidTransition signals a job status change outside the
	// permitted DAG.
	ErrInvalidTransition = &Error{
		Code:    http.StatusConflict,
		Message: "job status transition not permitted",
	}
)
