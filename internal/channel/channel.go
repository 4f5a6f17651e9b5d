// Package channel tracks the channels a connection has joined so they can
// be joined again after a reconnect.
package channel

import (
	"strings"

	"github.com/labi-le/tinyirc/internal/irc"
)

// Set is an ordered set of channel names compared with RFC 1459 case
// mapping. It is not safe for concurrent use.
type Set struct {
	names *ordered[string, string]
}

func New(channels ...string) *Set {
	s := &Set{names: newOrdered[string, string](len(channels))}
	for _, name := range channels {
		s.Add(name)
	}
	return s
}

// Add remembers name, keeping the spelling it was first seen with.
// Names that are not channels are ignored.
func (s *Set) Add(name string) bool {
	name = strings.TrimSpace(name)
	if !irc.IsChannel(name) {
		return false
	}
	return s.names.Add(Fold(name), name)
}

func (s *Set) Remove(name string) bool {
	return s.names.Remove(Fold(name))
}

func (s *Set) Has(name string) bool {
	_, ok := s.names.Get(Fold(name))
	return ok
}

// List returns the channels in the order they were added.
func (s *Set) List() []string {
	return s.names.Values()
}

func (s *Set) Len() int {
	return s.names.Len()
}

var rfc1459 = strings.NewReplacer("[", "{", "]", "}", `\`, "|", "~", "^")

// Fold lowers name the way IRC servers compare channel names and nicks.
func Fold(name string) string {
	return rfc1459.Replace(strings.ToLower(name))
}
