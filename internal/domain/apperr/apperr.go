// Package apperr classifies domain errors into a small set of stable kinds
// that transports map onto their own status codes.
package apperr

import (
	"context"

	"github.com/go-faster/errors"
)

// Kind is a machine-readable error classification.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindAuthorization  Kind = "authorization"
	KindStateConflict  Kind = "state_conflict"
	KindInfrastructure Kind = "infrastructure"
	KindTimeout        Kind = "timeout"
	KindCanceled       Kind = "canceled"
)

// kinder is satisfied by domain errors that carry a classification kind.
type kinder interface {
	Kind() Kind
}

// Error is a sentinel domain error with a fixed kind.
type Error struct {
	kind Kind
	msg  string
}

// New returns a sentinel error of the given kind. Compare with errors.Is.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the classification of e.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the kind of err. Errors without a kind are treated as
// infrastructure failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInfrastructure
	}
}

// IsDomain reports whether err carries a kind other than infrastructure,
// that is, whether its message is safe to show to the caller.
func IsDomain(err error) bool {
	switch KindOf(err) {
	case "", KindInfrastructure, KindTimeout, KindCanceled:
		return false
	default:
		return true
	}
}

// Message returns the message of the outermost classified error in err's
// chain, without the wrapping context added on the way up. It returns an
// empty string when err carries no kind.
func Message(err error) string {
	var k kinder
	if errors.As(err, &k) {
		if e, ok := k.(error); ok {
			return e.Error()
		}
	}
	return ""
}
