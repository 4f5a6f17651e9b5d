package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/labi-le/tinyirc/internal/irc"
	"github.com/labi-le/tinyirc/internal/stream"
)

var ErrConnectTimeout = errors.New("connection attempt timed out")

type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseRegistered
	PhaseDisconnected
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseRegistered:
		return "registered"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Status is reported to the Handler on every phase change.
type Status struct {
	Server  string
	Phase   Phase
	Attempt int64
	Nick    string
	Err     error
	// Retry is the delay before the next attempt after a disconnect.
	Retry time.Duration
}

func (s Status) String() string {
	switch {
	case s.Phase == PhaseDisconnected && s.Err != nil:
		return fmt.Sprintf("%s: disconnected: %s, retrying in %s", s.Server, Describe(s.Err), s.Retry)
	case s.Err != nil:
		return fmt.Sprintf("%s: %s: %s", s.Server, s.Phase, Describe(s.Err))
	default:
		return fmt.Sprintf("%s: %s", s.Server, s.Phase)
	}
}

// Describe turns a connection failure into a short human readable reason.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var cause string
	var se *stream.Error
	if errors.As(err, &se) && se.Err != nil {
		cause = se.Err.Error()
	}

	switch {
	case errors.Is(err, ErrConnectTimeout):
		return "connection attempt timed out"
	case errors.Is(err, stream.CantResolveAddr):
		return withCause("can't resolve address", cause)
	case errors.Is(err, stream.TLSError):
		return withCause("TLS error", cause)
	case errors.Is(err, stream.ConnectionClosed):
		return "connection closed by peer"
	case errors.Is(err, stream.IOError):
		return withCause("I/O error", cause)
	default:
		return err.Error()
	}
}

func withCause(reason, cause string) string {
	if cause == "" {
		return reason
	}
	return reason + ": " + cause
}

// Handler receives everything the client observes. Calls come from the
// loop goroutine and must not block.
type Handler interface {
	OnStatus(Status)
	OnMessage(server string, msg irc.Message)
}

type NopHandler struct{}

func (NopHandler) OnStatus(Status) {}
func (NopHandler) OnMessage(string, irc.Message) {}
