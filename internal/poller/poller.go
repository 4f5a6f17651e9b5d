// Package poller multiplexes readiness of many non-blocking file descriptors
// onto one goroutine.
package poller

import (
	"errors"
	"time"
)

var (
	ErrNotSupported = errors.New("poller: not supported on this platform")
	ErrUnknownToken = errors.New("poller: unknown token")
	ErrClosed       = errors.New("poller: closed")
)

// Token identifies a registered descriptor. Zero is reserved for the waker.
type Token uint64

// Interest is the set of readiness kinds a registration wants reported.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

func (i Interest) String() string {
	switch i {
	case 0:
		return "none"
	case Readable:
		return "r"
	case Writable:
		return "w"
	default:
		return "rw"
	}
}

// Readiness is what the OS reported for one token.
type Readiness uint8

const (
	EventRead Readiness = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// Readable reports whether a read attempt makes progress or observes an error.
func (r Readiness) Readable() bool {
	return r&(EventRead|EventHangup|EventError) != 0
}

// Writable reports whether a write attempt makes progress or observes an error.
func (r Readiness) Writable() bool {
	return r&(EventWrite|EventError) != 0
}

type Event struct {
	Token Token
	Ready Readiness
}

// Registry is the registration half of a Poller.
type Registry interface {
	Register(fd int, interest Interest) (Token, error)
	Modify(token Token, interest Interest) error
	Deregister(token Token) error
}

type Poller interface {
	Registry
	// Wait fills events and returns how many were written. A negative timeout
	// blocks until an event or a Wake.
	Wait(events []Event, timeout time.Duration) (int, error)
	// Wake interrupts a blocked Wait. Safe to call from any goroutine.
	Wake() error
	Close() error
}
