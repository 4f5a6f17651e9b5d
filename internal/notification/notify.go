package notification

import (
	"fmt"
	"strings"

	"github.com/gen2brain/beeep"
	"github.com/labi-le/tinyirc/internal/irc"
	"github.com/rs/zerolog"
)

type Notifier interface {
	Notify(title, message string)
}

// Desktop shows a desktop notification through beeep.
type Desktop struct {
	Logger zerolog.Logger
}

func (d Desktop) Notify(title, message string) {
	if err := beeep.Notify(title, message, ""); err != nil {
		d.Logger.Debug().Err(err).Msg("desktop notification failed")
	}
}

type NullNotifier struct{}

func (NullNotifier) Notify(string, string) {}

// Mode selects which messages raise a notification.
type Mode uint8

const (
	Off Mode = iota
	Mentions
	Messages
)

func (m Mode) String() string {
	switch m {
	case Off:
		return "off"
	case Mentions:
		return "mentions"
	case Messages:
		return "messages"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return Off, nil
	case "mentions":
		return Mentions, nil
	case "messages", "all":
		return Messages, nil
	default:
		return Off, fmt.Errorf("unknown notify mode %q (off, mentions, messages)", s)
	}
}

// Dispatcher decides whether an incoming PRIVMSG is worth a notification.
type Dispatcher struct {
	mode Mode
	out  Notifier
}

func NewDispatcher(mode Mode, out Notifier) *Dispatcher {
	if out == nil {
		out = NullNotifier{}
	}
	return &Dispatcher{mode: mode, out: out}
}

func (d *Dispatcher) Mode() Mode {
	if d == nil {
		return Off
	}
	return d.mode
}

// Privmsg is called for every message sent by sender to target; self is
// our current nickname. Private messages notify in both modes, channel
// messages only when they mention self or mode is Messages.
func (d *Dispatcher) Privmsg(sender, target, text, self string) bool {
	if d == nil || d.mode == Off || strings.EqualFold(sender, self) {
		return false
	}

	body := irc.StripControl(text)
	switch {
	case !irc.IsChannel(target):
		d.out.Notify(sender+" sent a private message", body)
	case d.mode == Messages || irc.Mentions(text, self):
		d.out.Notify(sender+" in "+target, body)
	default:
		return false
	}
	return true
}
