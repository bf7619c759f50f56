package engine

import (
	"errors"
	"fmt"
)

// RunError represents a failure of the run machinery itself, as
// opposed to a failing build: the matrix could not be expanded, or the
// store refused a write the run cannot proceed without. Cell and step
// failures are never RunErrors; they are recorded results.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run, when one was assigned.
	RunID string

	// Err is the underlying cause, if any.
	Err error
}

// RunErrorCode categorizes run machinery errors.
type RunErrorCode string

const (
	// ErrCodeConfig indicates the compiled pipeline could not be
	// turned into runnable cells (duplicate cells, digest failure).
	ErrCodeConfig RunErrorCode = "INVALID_CONFIG"

	// ErrCodeNoCells indicates expansion or filtering left nothing to
	// run. A run that executes zero cells never reports success.
	ErrCodeNoCells RunErrorCode = "NO_CELLS"

	// ErrCodeStorage indicates a store write the run depends on
	// failed.
	ErrCodeStorage RunErrorCode = "STORAGE_FAILED"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a RunError with ErrCodeConfig
// or ErrCodeNoCells, the categories a descriptor author can fix.
func IsConfigError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeConfig || re.Code == ErrCodeNoCells
	}
	return false
}

// IsStorageError reports whether err is a RunError caused by the
// store. Uses errors.As to handle wrapped errors.
func IsStorageError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStorage
	}
	return false
}

func newConfigError(message string, err error) *RunError {
	return &RunError{Code: ErrCodeConfig, Message: message, Err: err}
}

func newStorageError(runID, message string, err error) *RunError {
	return &RunError{Code: ErrCodeStorage, Message: message, RunID: runID, Err: err}
}
