// Package irc holds the wire format helpers of the client: line framing,
// message parsing and the commands it sends.
package irc

import (
	"bytes"
	"strings"
)

// MaxLineLength bounds a single received line; the rest of a longer line
// is dropped.
const MaxLineLength = 8 << 10

// Framer splits a byte stream into IRC lines. Both CRLF and bare LF end
// a line. Invalid UTF-8 is replaced.
type Framer struct {
	buf     []byte
	discard bool
}

func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)
}

// Next returns the next complete line without its terminator.
func (f *Framer) Next() (string, bool) {
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			if !f.discard && len(f.buf) > MaxLineLength {
				line := f.buf[:MaxLineLength]
				f.buf = f.buf[:0]
				f.discard = true
				return clean(line), true
			}
			if f.discard {
				f.buf = f.buf[:0]
			}
			return "", false
		}

		line := f.buf[:i]
		rest := f.buf[i+1:]
		skip := f.discard
		f.discard = false

		out := clean(line)
		f.buf = append(f.buf[:0], rest...)

		if skip {
			continue
		}
		if len(out) > MaxLineLength {
			out = out[:MaxLineLength]
		}
		return out, true
	}
}

// Buffered is the number of bytes waiting for a line terminator.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.discard = false
}

func clean(line []byte) string {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return strings.ToValidUTF8(string(line), "�")
}
