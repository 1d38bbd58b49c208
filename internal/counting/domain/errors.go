package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned by stores when a row does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrUniqueViolation is returned by stores when an insert breaks a uniqueness constraint
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// ErrorKind classifies orchestrator failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindBusinessRule
	KindConflict
	KindCreation
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule_error"
	case KindConflict:
		return "conflict"
	case KindCreation:
		return "creation_error"
	default:
		return "unknown"
	}
}

// Error is the error returned by every orchestrator operation.
type Error struct {
	Kind ErrorKind
	// Op names the operation that failed, e.g. "launch counting".
	Op      string
	Message string
	// Details carries the ids or rule involved, for rendering.
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind != KindCreation {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With attaches a detail and returns e.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func BusinessRulef(format string, args ...any) *Error {
	return newError(KindBusinessRule, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// NewCreationError wraps an unexpected failure. The message never exposes the cause.
func NewCreationError(op string, cause error) *Error {
	return &Error{
		Kind:    KindCreation,
		Op:      op,
		Message: op + " failed, transaction rolled back",
		Err:     cause,
	}
}

// KindOf returns the kind of err, or KindUnknown for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
