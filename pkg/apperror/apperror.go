// Package apperror defines the error taxonomy shared by the HTTP-facing
// services. Every failure that crosses the API boundary carries a
// machine-checkable kind; handlers map kinds to HTTP status codes and
// serialize them as {"error": {"kind": ..., "detail": ...}}.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for API consumers.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindGone            Kind = "gone"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindStorage         Kind = "storage"
	KindInternal        Kind = "internal"
)

// Error is an error with an API-visible kind and detail message.
// The wrapped cause, if any, stays server-side.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given kind and formatted detail.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error with the given kind and detail, keeping cause
// in the chain for server-side logging.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), cause: cause}
}

// Validation reports malformed, user-fixable input.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// Unauthorized reports a missing or unverifiable identity.
func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

// Forbidden reports an authenticated caller lacking rights to a resource.
func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

// NotFound reports a missing resource.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict reports a uniqueness violation.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Gone reports a resource that existed but is no longer served,
// distinct from NotFound so clients can message it correctly.
func Gone(format string, args ...any) *Error {
	return New(KindGone, format, args...)
}

// PayloadTooLarge reports an upload exceeding the size ceiling.
func PayloadTooLarge(format string, args ...any) *Error {
	return New(KindPayloadTooLarge, format, args...)
}

// Storage reports an artifact backend failure. Fatal to the triggering
// operation; catalog state must stay untouched.
func Storage(cause error, format string, args ...any) *Error {
	return Wrap(KindStorage, cause, format, args...)
}

// Internal reports an unexpected server-side failure.
func Internal(cause error, format string, args ...any) *Error {
	return Wrap(KindInternal, cause, format, args...)
}

// KindOf returns the kind of err, or KindInternal for errors outside
// the taxonomy.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGone:
		return http.StatusGone
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
