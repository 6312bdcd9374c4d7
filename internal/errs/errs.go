// Package errs provides structured domain errors with machine-readable codes.
package errs

import "fmt"

// Code is a machine-readable error code. The gateway maps codes to
// user-facing messages and transport status; the engine only classifies.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// CodeValidation marks malformed parameters, rejected before any
	// state mutation.
	CodeValidation Code = "VALIDATION"

	// CodeNotFound marks an unknown session, attempt, user, exam or
	// objective reference.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConcurrencyConflict marks a stale optimistic-concurrency
	// version on a mastery write. Retried internally before surfacing.
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"

	// CodeTimeExpired marks an answer or finalize attempted after the
	// attempt's server-authoritative deadline.
	CodeTimeExpired Code = "TIME_EXPIRED"

	// CodeAlreadySubmitted marks a duplicate finalize on a terminal
	// attempt.
	CodeAlreadySubmitted Code = "ALREADY_SUBMITTED"

	// CodeInsufficientPool marks a batch request that cannot be satisfied
	// even after probability redistribution.
	CodeInsufficientPool Code = "INSUFFICIENT_QUESTION_POOL"

	// CodeUpstreamTimeout marks a content or user store that did not
	// respond within its deadline.
	CodeUpstreamTimeout Code = "UPSTREAM_TIMEOUT"
)

// Error is the domain error type carrying a code and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the domain code from err, or CodeUnknown if err is not
// a domain error.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return CodeUnknown
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given domain code anywhere in
// its chain.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
