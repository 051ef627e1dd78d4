// Package errors provides error handling for kwpulse.
//
// This package re-exports github.com/cockroachdb/errors, providing stack
// traces, wrapping, hints and details, and adds the sentinel errors the
// discovery scheduler reports at its outward boundary.
//
// Usage:
//
//	if err := store.UpdateProgress(ctx, snapshot); err != nil {
//	    return errors.Wrapf(err, "commit cycle %d", cycle)
//	}
//
//	if errors.IsAlreadyRunning(err) {
//	    // 400-equivalent
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions and stack traces
var (
	AssertionFailedf = crdb.AssertionFailedf
	GetStack         = crdb.GetReportableStackTrace
)

// Sentinel errors. Match with errors.Is(); wrap with errors.Wrap() to add
// context while preserving the type.
var (
	// ErrNotFound indicates the requested job or result does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or out of bounds
	ErrInvalidRequest = New("invalid request")

	// ErrAlreadyRunning indicates a start was requested for a running job
	ErrAlreadyRunning = New("job already running")

	// ErrNotRunning indicates a stop was requested for a job that is not running
	ErrNotRunning = New("job not running")

	// ErrServiceUnavailable indicates an external provider is not configured or reachable
	ErrServiceUnavailable = New("service unavailable")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsAlreadyRunning checks if an error is or wraps ErrAlreadyRunning
func IsAlreadyRunning(err error) bool {
	return err != nil && Is(err, ErrAlreadyRunning)
}

// IsNotRunning checks if an error is or wraps ErrNotRunning
func IsNotRunning(err error) bool {
	return err != nil && Is(err, ErrNotRunning)
}

// IsServiceUnavailableError checks if an error is or wraps ErrServiceUnavailable
func IsServiceUnavailableError(err error) bool {
	return err != nil && Is(err, ErrServiceUnavailable)
}

// WrapInvalidRequest wraps an error as an invalid-request error with context
func WrapInvalidRequest(err error, context string) error {
	return Wrap(Wrap(ErrInvalidRequest, err.Error()), context)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
