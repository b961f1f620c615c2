// Package errs carries operation-tagged errors with a small set of kinds that
// the transport layer maps to status codes.
package errs

import (
	"errors"
	"strings"
)

// Kinds. Match them with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalid         = errors.New("invalid")
	ErrUnavailable     = errors.New("unavailable")
	ErrRateLimited     = errors.New("rate limited")
)

// Error is an operation failure of a particular kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Err != nil && e.Kind != nil:
		b.WriteString(e.Kind.Error())
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	default:
		b.WriteString("unknown error")
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// New returns an error of the given kind without a cause.
func New(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap tags err with op. The kind of an inner *Error stays visible to KindOf. Nil in, nil out.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind tags err with op and kind. Nil in, nil out.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf reports the outermost kind attached to err, or nil.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind != nil {
			return e.Kind
		}
		return KindOf(e.Err)
	}
	return nil
}
