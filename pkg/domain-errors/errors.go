// Package domainerrors defines the typed error taxonomy shared by all domain
// services. Errors carry a machine-readable code plus an optional structured
// detail payload and propagate unchanged to the transport layer.
//
// Import as dErrors by convention.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeNotFound marks a referenced entity that is absent or soft-deleted.
	CodeNotFound Code = "not_found"
	// CodeValidation marks malformed input or a broken precondition, such as
	// a missing predecessor attestation or a geofence violation.
	CodeValidation Code = "validation"
	// CodeAuthorization marks a role, identity, or assignment mismatch.
	CodeAuthorization Code = "authorization"
	// CodeConflict marks uniqueness violations, illegal state transitions,
	// and insufficient eligible pools.
	CodeConflict Code = "conflict"
	// CodeInternal marks unexpected failures (storage, oracle). Operations
	// hitting these must abort without partial persistence.
	CodeInternal Code = "internal"
)

// Error is the concrete domain error. Details holds structured context such
// as {available, requested} for pool-exhaustion conflicts.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap preserves an underlying cause while classifying it for callers.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails attaches a structured payload and returns the same error so
// call sites can chain it.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// HasCode reports whether err (or anything it wraps) is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is a convenience alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// Details extracts the structured payload from a domain error, if any.
func Details(err error) map[string]any {
	var de *Error
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}

// ToHTTPStatus maps a domain code to its HTTP status for the JSON envelope.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
