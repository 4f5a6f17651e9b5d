package irc

import (
	"errors"
	"strings"
)

var ErrEmptyMessage = errors.New("irc: empty message")

// Message is one parsed IRC line.
type Message struct {
	Tags    map[string]string
	Prefix  string
	Command string
	Params  []string
}

var tagUnescaper = strings.NewReplacer(
	`\:`, ";",
	`\s`, " ",
	`\\`, `\`,
	`\r`, "\r",
	`\n`, "\n",
)

func Parse(line string) (Message, error) {
	var msg Message

	s := strings.TrimRight(line, "\r\n")
	s = strings.TrimLeft(s, " ")
	if s == "" {
		return msg, ErrEmptyMessage
	}

	if s[0] == '@' {
		tags, rest, ok := strings.Cut(s[1:], " ")
		if !ok {
			return msg, ErrEmptyMessage
		}
		msg.Tags = parseTags(tags)
		s = strings.TrimLeft(rest, " ")
	}

	if strings.HasPrefix(s, ":") {
		prefix, rest, ok := strings.Cut(s[1:], " ")
		if !ok {
			return msg, ErrEmptyMessage
		}
		msg.Prefix = prefix
		s = strings.TrimLeft(rest, " ")
	}

	command, rest, _ := strings.Cut(s, " ")
	if command == "" {
		return msg, ErrEmptyMessage
	}
	msg.Command = strings.ToUpper(command)

	for {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			break
		}
		if rest[0] == ':' {
			msg.Params = append(msg.Params, rest[1:])
			break
		}
		param, tail, _ := strings.Cut(rest, " ")
		msg.Params = append(msg.Params, param)
		rest = tail
	}

	return msg, nil
}

func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, tag := range strings.Split(raw, ";") {
		if tag == "" {
			continue
		}
		key, value, _ := strings.Cut(tag, "=")
		tags[key] = tagUnescaper.Replace(value)
	}
	return tags
}

// Nick is the nickname part of the prefix, or the whole prefix for servers.
func (m Message) Nick() string {
	nick, _, _ := strings.Cut(m.Prefix, "!")
	nick, _, _ = strings.Cut(nick, "@")
	return nick
}

// Param returns the i-th parameter or "".
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the last parameter or "".
func (m Message) Trailing() string {
	return m.Param(len(m.Params) - 1)
}

// String formats the message back into wire form without the terminator.
// Tags are not included.
func (m Message) String() string {
	var b strings.Builder
	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)
	for i, p := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 && (p == "" || strings.ContainsRune(p, ' ') || p[0] == ':') {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

// IsChannel reports whether target names a channel rather than a user.
func IsChannel(target string) bool {
	return target != "" && strings.ContainsRune("#&+!", rune(target[0]))
}
