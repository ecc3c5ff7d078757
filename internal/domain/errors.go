package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories the chat core produces.
// Every error crossing a component boundary carries exactly one kind, so
// transport layers can map failures without inspecting error strings.
type ErrorKind int

const (
	KindService ErrorKind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "service"
	}
}

// Error is a tagged error variant.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Validationf creates a validation error.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a not-found error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Unauthorizedf creates an unauthorized error.
func Unauthorizedf(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// ServiceError wraps an unexpected failure (store unavailable, broker down)
// while keeping the cause available for logging.
func ServiceError(message string, cause error) error {
	return &Error{Kind: KindService, Message: message, cause: cause}
}

// KindOf extracts the error kind. Untagged errors count as service failures.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindService
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
