package client

import "time"

// Backoff doubles the reconnect delay after every failed attempt, from Min
// up to Max.
type Backoff struct {
	Min time.Duration
	Max time.Duration

	cur time.Duration
}

func (b *Backoff) Next() time.Duration {
	switch {
	case b.cur == 0:
		b.cur = b.Min
	case b.cur < b.Max:
		b.cur *= 2
	}
	b.cur = min(b.cur, b.Max)
	return b.cur
}

func (b *Backoff) Reset() {
	b.cur = 0
}
