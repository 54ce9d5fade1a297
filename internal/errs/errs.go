package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure so callers can decide whether a retry
// can ever succeed without changing the request.
type Kind string

const (
	// KindBadRequest marks malformed identifiers or invalid input shapes.
	KindBadRequest Kind = "bad_request"
	// KindConflict marks a version mismatch or a duplicate creation. Always
	// retryable after re-reading the current entity state.
	KindConflict Kind = "conflict"
	// KindNotFound marks a referenced entity that is absent from the store.
	KindNotFound Kind = "not_found"
	// KindAccessDenied marks a failed authorization check.
	KindAccessDenied Kind = "access_denied"
	// KindInternal marks an unexpected store-level fault.
	KindInternal Kind = "internal"
)

// Error carries the failure kind together with the dotted operation code that
// produced it, e.g. "status.create.membership_check_failed".
type Error struct {
	kind Kind
	code string
	err  error
}

// New builds a typed error for the given operation code.
func New(kind Kind, operation, reason string, cause error) *Error {
	return &Error{
		kind: kind,
		code: fmt.Sprintf("%s.%s", operation, reason),
		err:  cause,
	}
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.kind, e.code)
	}
	return fmt.Sprintf("%s: %s: %v", e.kind, e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the taxonomy classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code returns the dotted operation code.
func (e *Error) Code() string {
	return e.code
}

// BadRequest builds a KindBadRequest error.
func BadRequest(operation, reason string, cause error) *Error {
	return New(KindBadRequest, operation, reason, cause)
}

// Conflict builds a KindConflict error.
func Conflict(operation, reason string, cause error) *Error {
	return New(KindConflict, operation, reason, cause)
}

// NotFound builds a KindNotFound error.
func NotFound(operation, reason string, cause error) *Error {
	return New(KindNotFound, operation, reason, cause)
}

// AccessDenied builds a KindAccessDenied error.
func AccessDenied(operation, reason string, cause error) *Error {
	return New(KindAccessDenied, operation, reason, cause)
}

// Internal builds a KindInternal error.
func Internal(operation, reason string, cause error) *Error {
	return New(KindInternal, operation, reason, cause)
}

// KindOf extracts the taxonomy kind from any error in the chain. Errors
// produced outside this package classify as KindInternal.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
