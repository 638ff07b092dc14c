package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the response families the API exposes.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
)

// Error is a typed application error. Key is a symbolic identifier like
// "category.categoryNotFound" that the i18n layer translates; it never
// contains user-facing prose.
type Error struct {
	Kind   Kind
	Key    string
	Fields map[string]string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Key, e.cause)
	}
	return e.Key
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus maps the error kind to the status code the handlers respond with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func NotFound(key string) *Error {
	return &Error{Kind: KindNotFound, Key: key}
}

func Conflict(key string) *Error {
	return &Error{Kind: KindConflict, Key: key}
}

// Validation carries a field -> message map alongside the symbolic key.
// fields may be nil when the failure is not tied to specific fields.
func Validation(key string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Key: key, Fields: fields}
}

// Internal wraps an unexpected error. The cause is logged server-side and
// never serialized into a response.
func Internal(key string, cause error) *Error {
	return &Error{Kind: KindInternal, Key: key, cause: cause}
}

// From extracts the *Error from err's chain, or wraps err as an internal
// error with the generic key when it is not an application error.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("common.internalError", err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
