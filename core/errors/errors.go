// Package errors defines the failure taxonomy shared by every engine. Each
// failure carries a kind, used by integrators to branch, and a stable label
// naming the precise condition.
package errors

import stderrors "errors"

// Kind classifies a failure.
type Kind string

const (
	KindUnauthorized        Kind = "unauthorized"
	KindNotFound            Kind = "not_found"
	KindInvalidRange        Kind = "invalid_range"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindAlreadyInState      Kind = "already_in_state"
	KindArithmeticBounds    Kind = "arithmetic_bounds"
	KindInvalid             Kind = "invalid"
)

type kindError Kind

func (k kindError) Error() string { return string(k) }

// Kind sentinels. errors.Is(err, ErrUnauthorized) holds for every Error of
// that kind regardless of label.
var (
	ErrUnauthorized        error = kindError(KindUnauthorized)
	ErrNotFound            error = kindError(KindNotFound)
	ErrInvalidRange        error = kindError(KindInvalidRange)
	ErrInsufficientBalance error = kindError(KindInsufficientBalance)
	ErrAlreadyInState      error = kindError(KindAlreadyInState)
	ErrArithmeticBounds    error = kindError(KindArithmeticBounds)
	ErrInvalid             error = kindError(KindInvalid)
)

// Error is a labelled failure of a given kind. Packages declare them once as
// sentinels so the label stays stable.
type Error struct {
	kind  Kind
	label string
}

// New constructs a labelled failure.
func New(kind Kind, label string) *Error {
	return &Error{kind: kind, label: label}
}

func (e *Error) Error() string { return e.label }

// Kind reports the failure class.
func (e *Error) Kind() Kind { return e.kind }

// Label reports the stable identifying label.
func (e *Error) Label() string { return e.label }

// Is matches the kind sentinel of the error in addition to pointer identity.
func (e *Error) Is(target error) bool {
	if k, ok := target.(kindError); ok {
		return Kind(k) == e.kind
	}
	return false
}

// KindOf extracts the kind of the first labelled failure in the chain. Errors
// outside the taxonomy report an empty kind.
func KindOf(err error) Kind {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.kind
	}
	var k kindError
	if stderrors.As(err, &k) {
		return Kind(k)
	}
	return ""
}

// Label extracts the stable label of the first labelled failure in the chain.
// When none is present the plain error string is returned.
func Label(err error) string {
	if err == nil {
		return ""
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.label
	}
	return err.Error()
}
