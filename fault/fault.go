// Package fault defines the failure taxonomy shared by every callable
// operation. Callers branch on the Kind of an error, never on message text.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// Unauthenticated means no caller identity could be resolved.
	Unauthenticated Kind = "UNAUTHENTICATED"
	// PermissionDenied means the caller is known but lacks the required
	// relationship or privilege for the operation.
	PermissionDenied Kind = "PERMISSION_DENIED"
	// InvalidArgument means a required field is missing or empty, or two
	// entities referenced together do not match.
	InvalidArgument Kind = "INVALID_ARGUMENT"
	// NotFound means a referenced job, claim, or record does not exist.
	NotFound Kind = "NOT_FOUND"
	// FailedPrecondition means the entity exists but is in the wrong state
	// for the requested transition.
	FailedPrecondition Kind = "FAILED_PRECONDITION"
	// Internal means a store or transaction failure after retries.
	Internal Kind = "INTERNAL"
)

// Error carries a Kind alongside the usual message and wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf formats like fmt.Errorf and tags the result with kind.
func Errorf(kind Kind, format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Msg: err.Error(), Err: errors.Unwrap(err)}
}

// Wrap tags an existing error with a kind and context message.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of err, walking the wrap chain. Errors that carry
// no kind are treated as Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
