package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindRange             ErrorKind = "range"
	KindReference         ErrorKind = "reference"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindUnavailable       ErrorKind = "unavailable"
)

// Error carries the error kind and the offending field so handlers can map
// failures to a user-facing message without string matching.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
}

func NewValidationError(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func NewRangeError(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindRange, Field: field, Message: fmt.Sprintf(format, args...)}
}

func NewReferenceError(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindReference, Field: field, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidTransitionError(from, to TaskStatus) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Field:   "status",
		Message: fmt.Sprintf("cannot transition task from %q to %q", from, to),
	}
}

func NewUnavailableError(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnavailable, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a domain error of the given kind anywhere in
// its chain.
func IsKind(err error, kind ErrorKind) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind == kind
	}
	return false
}

// KindOf returns the domain error kind, or an empty kind for foreign errors.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}
