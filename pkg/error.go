package pkg

import (
	"errors"
	"log/slog"
	"strings"
)

// Error is an error with an optional wrapped cause and structured logging
// attributes. It implements both error and [slog.LogValuer].
//
// Packages declare their sentinel errors with [NewError] and return derived
// values built with [Error.Wrap] and [Error.With]. Derived values share the
// sentinel's message, so [errors.Is] matches them against the sentinel.
type Error struct {
	msg   string
	err   error
	attrs []slog.Attr
	base  *Error
}

// NewError creates a new sentinel Error with a message.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// WrapError converts err into an *Error. If err already is (or wraps) an
// *Error, that value is returned unchanged.
func WrapError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	// Build error message using the first available format,
	// depending on which fields are set:
	//
	//   1. "<msg>: <err>" // base and wrapped error both set
	//   2. "<msg>"        // wrapped error is nil
	//   3. "<err>"        // base error message is empty
	//   4. ""             // no fields are set
	part := make([]string, 0, 2)

	if e.msg != "" {
		part = append(part, e.msg)
	}

	if e.err != nil {
		part = append(part, e.err.Error())
	}

	return strings.Join(part, ": ")
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is the sentinel this error was derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.root() == t.root()
}

func (e *Error) root() *Error {
	if e.base != nil {
		return e.base
	}

	return e
}

// LogValue implements slog.LogValuer for rich structured logging.
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+2)

	if e.msg != "" {
		attrs = append(attrs, slog.String("error", e.msg))
	}

	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap creates a new Error wrapping another error.
func (e *Error) Wrap(err error) *Error {
	return &Error{
		msg:   e.msg,
		err:   err,
		attrs: e.attrs, // Share attrs
		base:  e.root(),
	}
}

// With adds attributes to the error for structured logging.
// This creates a new Error instance to maintain immutability.
func (e *Error) With(attrs ...slog.Attr) *Error {
	newAttrs := make([]slog.Attr, len(e.attrs)+len(attrs))
	copy(newAttrs, e.attrs)
	copy(newAttrs[len(e.attrs):], attrs)

	return &Error{
		msg:   e.msg,
		err:   e.err,
		attrs: newAttrs,
		base:  e.root(),
	}
}

// Attrs returns a copy of the structured logging attributes attached to e.
func (e *Error) Attrs() []slog.Attr {
	return append([]slog.Attr(nil), e.attrs...)
}
