package engine

import (
	"errors"
	"fmt"
)

// BindError reports a call site that could not be set up. The wrapped
// error is a *regex.SetupError, or a plain error for references the
// application does not declare.
type BindError struct {
	Query  string
	Column string
	Err    error
}

// Error implements the error interface.
func (e *BindError) Error() string {
	return fmt.Sprintf("query %q column %q: %v", e.Query, e.Column, e.Err)
}

// Unwrap returns the underlying setup error.
func (e *BindError) Unwrap() error {
	return e.Err
}

// EvalError reports a function call that failed for one event. Only
// returned under the fail policy; the drop policy logs it instead.
type EvalError struct {
	Query  string
	Column string
	Err    error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	return fmt.Sprintf("query %q column %q: %v", e.Query, e.Column, e.Err)
}

// Unwrap returns the function error.
func (e *EvalError) Unwrap() error {
	return e.Err
}

// RuntimeError represents an error detected by the host itself, outside
// any function call.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Revision identifies the affected revision, if any.
	Revision string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownStream indicates an event for a stream the app does not declare.
	ErrCodeUnknownStream RuntimeErrorCode = "UNKNOWN_STREAM"

	// ErrCodeNoStore indicates a persistence call on a runtime without a store.
	ErrCodeNoStore RuntimeErrorCode = "NO_STORE"

	// ErrCodeAppMismatch indicates a revision written by a different application.
	ErrCodeAppMismatch RuntimeErrorCode = "APP_MISMATCH"

	// ErrCodeHashMismatch indicates a snapshot whose content does not match its hash.
	ErrCodeHashMismatch RuntimeErrorCode = "HASH_MISMATCH"

	// ErrCodeMissingSnapshot indicates a revision without a snapshot for a bound instance.
	ErrCodeMissingSnapshot RuntimeErrorCode = "MISSING_SNAPSHOT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Revision != "" {
		return fmt.Sprintf("%s: %s (revision=%s)", e.Code, e.Message, e.Revision)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsBindError returns true if the error is a call site setup error.
func IsBindError(err error) bool {
	var be *BindError
	return errors.As(err, &be)
}

// IsEvalError returns true if the error is a per-event function error.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

// HasCode returns true if err is a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newHashMismatchError(revision, instance, stored, computed string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeHashMismatch,
		Message:  fmt.Sprintf("snapshot of %s does not match its state hash", instance),
		Revision: revision,
		Details: map[string]string{
			"instance": instance,
			"stored":   stored,
			"computed": computed,
		},
	}
}
