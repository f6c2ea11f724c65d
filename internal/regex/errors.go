package regex

import (
	"errors"
	"fmt"

	"github.com/roach88/rxfn/internal/ir"
)

// SetupError represents a configuration error detected while wiring a
// function into a query. The query cannot run until it is fixed.
type SetupError struct {
	// Code identifies the error category.
	Code SetupErrorCode

	// Function is the qualified function name, e.g. "regex:find".
	Function string

	// Message is a human-readable description.
	Message string

	// Err is the underlying engine error, if any.
	Err error
}

// SetupErrorCode categorizes setup errors.
type SetupErrorCode string

const (
	// ErrCodeUnknownFunction indicates no function is registered under the name.
	ErrCodeUnknownFunction SetupErrorCode = "UNKNOWN_FUNCTION"

	// ErrCodeArityMismatch indicates the wrong number of arguments.
	ErrCodeArityMismatch SetupErrorCode = "ARITY_MISMATCH"

	// ErrCodeTypeMismatch indicates an argument of the wrong declared type.
	ErrCodeTypeMismatch SetupErrorCode = "TYPE_MISMATCH"

	// ErrCodeNullConstant indicates a constant pattern that is null.
	ErrCodeNullConstant SetupErrorCode = "NULL_CONSTANT"

	// ErrCodeInvalidPatternSetup indicates a constant pattern that does not compile.
	ErrCodeInvalidPatternSetup SetupErrorCode = "INVALID_PATTERN"

	// ErrCodeUnknownEngine indicates no engine is registered under the name.
	ErrCodeUnknownEngine SetupErrorCode = "UNKNOWN_ENGINE"
)

// Error implements the error interface.
func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying engine error.
func (e *SetupError) Unwrap() error {
	return e.Err
}

// RuntimeError represents an error raised while evaluating a single event.
// The host decides whether to drop the event or stop the query.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Function is the qualified function name.
	Function string

	// Arg is the 1-based position of the offending argument (0 if none).
	Arg int

	// Message is a human-readable description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNullArgument indicates a mandatory argument was null.
	ErrCodeNullArgument RuntimeErrorCode = "NULL_ARGUMENT"

	// ErrCodeInvalidArgument indicates an argument value of the wrong kind.
	ErrCodeInvalidArgument RuntimeErrorCode = "INVALID_ARGUMENT"

	// ErrCodeInvalidPattern indicates a per-event pattern that does not compile.
	ErrCodeInvalidPattern RuntimeErrorCode = "INVALID_PATTERN"

	// ErrCodeInvalidSnapshot indicates a snapshot that cannot be restored.
	ErrCodeInvalidSnapshot RuntimeErrorCode = "INVALID_SNAPSHOT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IndexError is raised by a Pattern for a start offset outside the subject
// or a negative group number. Functions return it unwrapped.
type IndexError struct {
	// What names the index, "start index" or "group".
	What string

	// Index is the offending value.
	Index int

	// Length is the valid upper bound (subject length in characters), or -1
	// when only the sign is checked.
	Length int
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Length < 0 {
		return fmt.Sprintf("no %s %d", e.What, e.Index)
	}
	return fmt.Sprintf("%s %d out of bounds for length %d", e.What, e.Index, e.Length)
}

// IsSetupError returns true if err is (or wraps) a SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// IsRuntimeError returns true if err is (or wraps) a RuntimeError.
func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// IsIndexError returns true if err is (or wraps) an IndexError.
func IsIndexError(err error) bool {
	var ie *IndexError
	return errors.As(err, &ie)
}

func arityError(fn string, required string, found int) *SetupError {
	return &SetupError{
		Code:     ErrCodeArityMismatch,
		Function: fn,
		Message: fmt.Sprintf("invalid no of arguments passed to %s() function, required %s, but found %d",
			fn, required, found),
	}
}

func typeError(fn string, pos int, required, found ir.Type) *SetupError {
	return &SetupError{
		Code:     ErrCodeTypeMismatch,
		Function: fn,
		Message: fmt.Sprintf("invalid parameter type found for the %s argument of %s() function, required %s, but found %s",
			ordinal(pos), fn, required, found),
	}
}

func nullArgument(fn string, pos int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeNullArgument,
		Function: fn,
		Arg:      pos,
		Message:  fmt.Sprintf("invalid input given to %s() function. %s argument cannot be null", fn, capitalize(ordinal(pos))),
	}
}

func invalidArgument(fn string, pos int, want string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeInvalidArgument,
		Function: fn,
		Arg:      pos,
		Message:  fmt.Sprintf("invalid input given to %s() function. %s argument should be %s", fn, capitalize(ordinal(pos)), want),
	}
}

func ordinal(pos int) string {
	switch pos {
	case 1:
		return "first"
	case 2:
		return "second"
	case 3:
		return "third"
	default:
		return fmt.Sprintf("#%d", pos)
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
