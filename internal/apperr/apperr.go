// Package apperr defines the error kinds shared by every scoperag component.
// Handlers map a [Kind] to an HTTP status code; components return kinds so
// that aborts and degraded fallbacks are explicit branches at the call site.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and presentation.
type Kind string

const (
	// KindValidation marks a missing or malformed caller-supplied field.
	KindValidation Kind = "validation"
	// KindNotFound marks a missing blob or document.
	KindNotFound Kind = "not_found"
	// KindDependency marks a failed call to the index, blob store, or a model.
	KindDependency Kind = "dependency"
)

// ErrDegraded is wrapped by retrieval failures that callers are expected to
// absorb. The answer proceeds without grounding.
var ErrDegraded = errors.New("retrieval degraded")

// Error is a classified error carrying the operation that produced it.
type Error struct {
	// Kind is the error classification.
	Kind Kind
	// Op names the failing operation (e.g. "ingestion.ingest").
	Op string
	// Msg is the caller-safe description.
	Msg string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

// NotFound returns a KindNotFound error.
func NotFound(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

// Dependency wraps err as a KindDependency error.
func Dependency(op, msg string, err error) error {
	return &Error{Kind: KindDependency, Op: op, Msg: msg, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
// Unclassified errors are treated as dependency failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}

// Message returns the caller-safe message for err. Dependency failures are
// reduced to their operation so backend details stay in the logs.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == KindDependency {
		if e.Msg != "" {
			return e.Msg
		}
		return e.Op + " failed"
	}
	return e.Msg
}
