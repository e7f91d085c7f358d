// Package errors defines the coded errors shared by the engine, the CLI and
// the status API.
//
// Every error that crosses a package boundary carries a [Code]. Codes are
// grouped by prefix:
//   - INVALID_*: user input that was rejected (coordinates, URLs, config)
//   - UNKNOWN_*: an id the registry has never seen, a programming error
//   - NOT_FOUND, CYCLE_RUNNING: expected conditions callers report as-is
//   - MALFORMED_DOCUMENT, STORAGE_ERROR: remote data or persistence failures
//
// The CLI turns codes into exit statuses with [ExitCode] and the status API
// turns them into HTTP statuses.
//
//	if err := reg.Flush(ctx); err != nil {
//	    return errors.Wrap(errors.ErrCodeStorage, err, "save registry")
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeInvalidCoordinate Code = "INVALID_COORDINATE"
	ErrCodeInvalidURL        Code = "INVALID_URL"
	ErrCodeInvalidConfig     Code = "INVALID_CONFIG"

	ErrCodeNotFound          Code = "NOT_FOUND"
	ErrCodeUnknownArtifact   Code = "UNKNOWN_ARTIFACT"
	ErrCodeUnknownRepository Code = "UNKNOWN_REPOSITORY"

	ErrCodeMalformedDocument Code = "MALFORMED_DOCUMENT"
	ErrCodeStorage           Code = "STORAGE_ERROR"
	ErrCodeCycleRunning      Code = "CYCLE_RUNNING"

	// ErrCodeInternal is reported for errors that carry no code.
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is an error with a Code and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether the outermost *Error in err's chain has code.
func Is(err error, code Code) bool {
	return GetCode(err) == code && code != ""
}

// GetCode returns the code of the outermost *Error in err's chain, or ""
// when there is none.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns the message of a coded error without its code prefix,
// or err.Error() for other errors.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}

// Violation panics with a coded error. It is reserved for programming-contract
// violations such as passing an id the registry does not know.
func Violation(code Code, format string, args ...any) {
	panic(New(code, format, args...))
}

// Process exit statuses returned by [ExitCode].
const (
	ExitFailure  = 1
	ExitUsage    = 2
	ExitNotFound = 3
)

// ExitCode maps err to a process exit status: 0 for nil, ExitUsage for
// rejected input, ExitNotFound for unknown artifacts and repositories and
// ExitFailure otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidCoordinate, ErrCodeInvalidURL, ErrCodeInvalidConfig:
		return ExitUsage
	case ErrCodeNotFound, ErrCodeUnknownArtifact, ErrCodeUnknownRepository:
		return ExitNotFound
	default:
		return ExitFailure
	}
}
