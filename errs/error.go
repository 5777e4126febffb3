// Package errs provides the structured error taxonomy shared by every
// fabric subsystem (URP, the registry, the lifecycle supervisor, and the
// database facade).
//
// Every failure the core returns carries one of a fixed set of Kinds so
// callers can branch on "what kind of thing went wrong" instead of
// string-matching messages, and so the Facade and Supervisor can apply the
// propagation policy of the error handling design uniformly: Unavailable
// triggers fallback selection, DeadlineExceeded drives a lifecycle
// demotion, and the rest propagate untouched.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the error taxonomy. It is a closed set: new failure
// modes should map onto one of these, not grow the set.
type Kind string

const (
	InvalidArgument  Kind = "INVALID_ARGUMENT"
	Unauthenticated  Kind = "UNAUTHENTICATED"
	NotFound         Kind = "NOT_FOUND"
	AlreadyExists    Kind = "ALREADY_EXISTS"
	Conflict         Kind = "CONFLICT"
	Unavailable      Kind = "UNAVAILABLE"
	DeadlineExceeded Kind = "DEADLINE_EXCEEDED"
	Internal         Kind = "INTERNAL"
)

// Error is the structured error type returned across subsystem boundaries.
// It names the subsystem ("component") and the operation that failed,
// carries a Kind for programmatic dispatch, and can wrap an underlying
// cause for errors.Is/As chains.
type Error struct {
	// Component is the subsystem that produced the error, e.g. "urp",
	// "registry", "lifecycle", "dbfacade".
	Component string

	// Operation is the specific call that failed, e.g. "register", "search".
	Operation string

	// Kind classifies the failure.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Details carries structured context (ids, limits, observed values).
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates a structured Error.
func New(component, operation string, kind Kind, message string) *Error {
	return &Error{Component: component, Operation: operation, Kind: kind, Message: message}
}

// WithCause attaches an underlying error and returns the same Error for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetails attaches structured context and returns the same Error for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Error implements the error interface: "component[operation/kind]: message: cause".
func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("%s[%s/%s]", e.Component, e.Operation, e.Kind)}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes Cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports equality by Component/Operation/Kind, ignoring Message/Cause/Details.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Component == t.Component && e.Operation == t.Operation && e.Kind == t.Kind
}

// KindOf extracts the Kind from err, returning Internal if err isn't an
// *Error and the empty Kind if err is nil.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Internal
}

// IsKind reports whether the first *Error in err's chain has the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
