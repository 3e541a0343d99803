package service

import (
	"errors"
	"fmt"

	"github.com/kanbanhq/kanban/internal/storage"
)

// Kind is the behavioral class of a service error. The API layer maps
// kinds to HTTP status codes; the codes themselves stay stable across
// layers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuth
	KindRate
	KindTransient
)

// Stable machine-readable error codes returned to clients.
const (
	CodeValidation      = "VALIDATION"
	CodeNotFound        = "NOT_FOUND"
	CodeBoardNotFound   = "BOARD_NOT_FOUND"
	CodeColumnMismatch  = "COLUMN_MISMATCH"
	CodeCycle           = "CYCLE"
	CodeSelfDependency  = "SELF_DEPENDENCY"
	CodeDuplicate       = "DUPLICATE"
	CodeDepthExceeded   = "DEPTH_EXCEEDED"
	CodeCrossBoard      = "CROSS_BOARD"
	CodeHasOpenChildren = "HAS_OPEN_CHILDREN"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternal        = "INTERNAL"
)

// Error is a typed service error: a behavioral kind, a stable code, a
// human message, and optional structured details (field paths for
// validation errors, colliding identifiers for conflicts).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two service errors by code, so callers can compare
// against sentinel-style values with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	return errors.As(target, &t) && t.Code == e.Code
}

// HTTPStatus returns the HTTP status code for the error's kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindAuth:
		return 401
	case KindRate:
		return 429
	case KindTransient:
		return 503
	default:
		return 500
	}
}

// Validationf builds a validation error from a format string.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationDetails builds a validation error carrying field details.
func ValidationDetails(msg string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: msg, Details: details}
}

// NotFoundf builds a not-found error for one entity.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error with a domain-specific code.
func Conflict(code, msg string, details map[string]any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg, Details: details}
}

// Unauthorized builds an auth error.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindAuth, Code: CodeUnauthorized, Message: msg}
}

// RateLimited builds a rate-limit error.
func RateLimited(msg string) *Error {
	return &Error{Kind: KindRate, Code: CodeRateLimited, Message: msg}
}

// Internal wraps an unexpected failure. The cause is logged but never
// surfaced to clients.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", cause: err}
}

// wrapStorage lifts a storage-layer error into the service taxonomy,
// keeping typed service errors produced inside a transaction intact.
func wrapStorage(err error, entity string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: entity + " not found", cause: err}
	case errors.Is(err, storage.ErrConflict):
		return &Error{Kind: KindConflict, Code: CodeDuplicate, Message: entity + " already exists", cause: err}
	case errors.Is(err, storage.ErrUnavailable):
		return &Error{Kind: KindTransient, Code: CodeUnavailable, Message: "store unavailable", cause: err}
	}
	return Internal(err)
}
