// Package apperr defines the error taxonomy used across the core: callers
// branch on the type of a failure (not found, bad request, conflict,
// forbidden) instead of parsing message strings.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Type classifies an Error.
type Type string

const (
	TypeNotFound   Type = "NOT_FOUND"
	TypeBadRequest Type = "BAD_REQUEST"
	TypeConflict   Type = "CONFLICT"
	TypeForbidden  Type = "FORBIDDEN"
	TypeInternal   Type = "INTERNAL"
)

// Error carries a classification alongside a human-readable message and an
// optional wrapped cause.
type Error struct {
	Type    Type
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given type.
func New(t Type, message string) error {
	return &Error{Type: t, Message: message}
}

// Wrap attaches a classification to an underlying error.
func Wrap(t Type, message string, err error) error {
	return &Error{Type: t, Message: message, Err: err}
}

// NotFound reports that an entity does not exist.
func NotFound(message string) error { return New(TypeNotFound, message) }

// BadRequest reports invalid input or a violated precondition.
func BadRequest(message string) error { return New(TypeBadRequest, message) }

// Conflict reports a uniqueness conflict.
func Conflict(message string) error { return New(TypeConflict, message) }

// Forbidden reports an operation the caller is not allowed to perform.
func Forbidden(message string) error { return New(TypeForbidden, message) }

// Internal reports an unexpected downstream failure.
func Internal(message string) error { return New(TypeInternal, message) }

func is(err error, t Type) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return is(err, TypeNotFound) }

// IsBadRequest reports whether err is a bad-request error.
func IsBadRequest(err error) bool { return is(err, TypeBadRequest) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return is(err, TypeConflict) }

// IsForbidden reports whether err is a forbidden error.
func IsForbidden(err error) bool { return is(err, TypeForbidden) }

// Message returns the user-facing message of a classified error, or a
// generic message for anything else.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Something went wrong. Please try again."
}

// IsDuplicateError reports whether err is a uniqueness-constraint violation
// from the storage engine. The dedup-insert helper recovers from these
// locally; they are never surfaced to callers.
func IsDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
