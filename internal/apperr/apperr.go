package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors. Duplicate atoms are not an error kind: commits
// skip and count them.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindConflict            Kind = "conflict"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindNotFound            Kind = "not_found"
)

var (
	// ErrValidation matches any validation error.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrConflict matches state-machine guard violations.
	ErrConflict = &Error{Kind: KindConflict}
	// ErrUpstreamUnavailable matches remote collaborator failures.
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	// ErrNotFound matches missing sessions, cases and profiles.
	ErrNotFound = &Error{Kind: KindNotFound}
)

// Error carries a kind, the failing operation and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e != nil && e.Kind == t.Kind
}

// New builds an error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation builds a validation error from a formatted message.
func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Errorf(format, args...))
}

// Conflict builds a conflict error from a formatted message.
func Conflict(op, format string, args ...any) *Error {
	return New(KindConflict, op, fmt.Errorf(format, args...))
}

// NotFound builds a not-found error from a formatted message.
func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, fmt.Errorf(format, args...))
}

// Upstream wraps a remote failure.
func Upstream(op string, err error) *Error {
	return New(KindUpstreamUnavailable, op, err)
}

// KindOf returns the kind of err, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}
