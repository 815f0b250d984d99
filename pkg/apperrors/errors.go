package apperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for propagation and transport mapping.
type Kind string

const (
	KindValidation Kind = "validation" // malformed input, rejected locally
	KindNotFound   Kind = "not_found"  // absent run/cycle/report
	KindState      Kind = "state"      // operation not permitted in current state
	KindConflict   Kind = "conflict"   // concurrent mutation attempt
	KindProcessing Kind = "processing" // single-record failure, captured not propagated
	KindFatal      Kind = "fatal"      // persistence failure or corrupt inputs
)

// Error is the application error type. It carries a user-facing message, an
// optional remediation suggestion, and structured details.
type Error struct {
	Kind       Kind                   `json:"kind"`
	Message    string                 `json:"error"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	cause      error
}

func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithSuggestion attaches a remediation hint and returns the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail attaches one structured detail and returns the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an Error of the given kind with a stack-carrying cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Message: msg, cause: errors.New(msg)}
}

// Wrap annotates an existing error with a kind and message. A nil err yields
// nil.
func Wrap(err error, kind Kind, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Message: msg, cause: errors.Wrap(err, msg)}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func State(format string, args ...interface{}) *Error {
	return New(KindState, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

func Processing(format string, args ...interface{}) *Error {
	return New(KindProcessing, format, args...)
}

func Fatal(format string, args ...interface{}) *Error {
	return New(KindFatal, format, args...)
}

// KindOf extracts the kind from an error chain; unknown errors report as
// fatal so callers fail safe.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindFatal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// AsError returns the *Error in the chain, or wraps err as fatal.
func AsError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, KindFatal, "%s", err.Error())
}
