package stream

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Kind is the closed set of failure categories a Stream reports. A Kind is an
// error itself so callers can match with errors.Is(err, stream.TLSError).
type Kind uint8

const (
	IOError Kind = iota + 1
	CantResolveAddr
	TLSError
	ConnectionClosed
)

func (k Kind) String() string {
	switch k {
	case IOError:
		return "i/o error"
	case CantResolveAddr:
		return "can't resolve address"
	case TLSError:
		return "tls error"
	case ConnectionClosed:
		return "connection closed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) Error() string {
	return k.String()
}

// Error is the only error type returned by Stream operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && kind == e.Kind
}

// KindOf returns the Kind carried by err, or zero when err is not a stream error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// classify maps an OS level failure to its Kind.
func classify(op string, err error) *Error {
	switch {
	case errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed):
		return newError(ConnectionClosed, op, err)
	default:
		return newError(IOError, op, err)
	}
}

// asError keeps an existing *Error and classifies anything else.
func asError(op string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return classify(op, err)
}

// temporary reports errors that only mean "try again on the next readiness event".
func temporary(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK) ||
		errors.Is(err, syscall.EINTR)
}

func closedError(op string) *Error {
	return newError(ConnectionClosed, op, net.ErrClosed)
}
