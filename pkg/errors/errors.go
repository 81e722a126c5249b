// Package errors provides structured error types for pipeflow.
//
// Hard failures in the solver (caller misuse, malformed topology queries,
// out-of-range table inputs) are reported as [*Error] values carrying a
// machine-readable [Code]. Recoverable network conditions are not errors in
// this sense: they are accumulated as fitting.FittingError lists instead.
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - *_TRUNK*: Trunk classification failures
//   - UNSUPPORTED_* / NOT_SUPPORTED: Component kinds without a model
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeOutOfRange, "C-factor %g outside [100, 150]", c)
//	if errors.Is(err, errors.ErrCodeOutOfRange) {
//	    // Handle table range error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeInvalidFormat, origErr, "decode %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeOutOfRange    Code = "OUT_OF_RANGE"

	// Topology errors
	ErrCodeMultipleTrunks Code = "MULTIPLE_TRUNKS"
	ErrCodeNoTrunk        Code = "NO_TRUNK"
	ErrCodeNotDownstream  Code = "NOT_DOWNSTREAM"
	ErrCodeUnknownBranch  Code = "UNKNOWN_BRANCH"
	ErrCodeMissingLeaf    Code = "MISSING_LEAF"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Model errors
	ErrCodeUnsupportedComponent Code = "UNSUPPORTED_COMPONENT"
	ErrCodeNotSupported         Code = "NOT_SUPPORTED"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Kind groups codes by who has to act on them.
type Kind int

const (
	// KindInternal marks a fault of pipeflow itself or an uncoded error.
	KindInternal Kind = iota
	// KindInput marks a request, file or configuration the caller must fix.
	KindInput
	// KindNotFound marks a missing file, run or component.
	KindNotFound
	// KindNetwork marks a fitting network whose topology or components
	// cannot be solved as given.
	KindNetwork
)

// Kind returns the group of c.
func (c Code) Kind() Kind {
	switch c {
	case ErrCodeInvalidInput, ErrCodeInvalidFormat, ErrCodeInvalidConfig, ErrCodeOutOfRange:
		return KindInput
	case ErrCodeNotFound, ErrCodeFileNotFound:
		return KindNotFound
	case ErrCodeMultipleTrunks, ErrCodeNoTrunk, ErrCodeNotDownstream, ErrCodeUnknownBranch,
		ErrCodeMissingLeaf, ErrCodeUnsupportedComponent, ErrCodeNotSupported:
		return KindNetwork
	default:
		return KindInternal
	}
}

// KindOf returns the kind of the code carried by err.
func KindOf(err error) Kind {
	return GetCode(err).Kind()
}

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
