package stream

import (
	"bytes"
	"net/netip"
	"syscall"

	"github.com/labi-le/tinyirc/internal/poller"
)

type fakeRegistry struct {
	next         poller.Token
	interest     map[poller.Token]poller.Interest
	deregistered []poller.Token
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{interest: make(map[poller.Token]poller.Interest)}
}

func (r *fakeRegistry) Register(_ int, interest poller.Interest) (poller.Token, error) {
	r.next++
	r.interest[r.next] = interest
	return r.next, nil
}

func (r *fakeRegistry) Modify(token poller.Token, interest poller.Interest) error {
	if _, ok := r.interest[token]; !ok {
		return poller.ErrUnknownToken
	}
	r.interest[token] = interest
	return nil
}

func (r *fakeRegistry) Deregister(token poller.Token) error {
	if _, ok := r.interest[token]; !ok {
		return poller.ErrUnknownToken
	}
	delete(r.interest, token)
	r.deregistered = append(r.deregistered, token)
	return nil
}

// fakeSocket accepts at most limit bytes per send and serves reads from
// a script of chunks.
type fakeSocket struct {
	connectErr error
	soError    error
	sendErr    error
	limit      int

	sent    bytes.Buffer
	sends   int
	reads   [][]byte
	readErr error
	closed  int
}

func (s *fakeSocket) Fd() int { return 42 }

func (s *fakeSocket) Connect(netip.AddrPort) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	return syscall.EINPROGRESS
}

func (s *fakeSocket) Sendmsg(bufs [][]byte) (int, error) {
	s.sends++
	if s.sendErr != nil {
		return 0, s.sendErr
	}

	n := 0
	for _, b := range bufs {
		take := len(b)
		if s.limit > 0 {
			take = min(take, s.limit-n)
		}
		s.sent.Write(b[:take])
		n += take
		if s.limit > 0 && n == s.limit {
			break
		}
	}
	return n, nil
}

func (s *fakeSocket) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		if s.readErr != nil {
			return 0, s.readErr
		}
		return 0, syscall.EAGAIN
	}
	chunk := s.reads[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		s.reads[0] = chunk[n:]
	} else {
		s.reads = s.reads[1:]
	}
	return n, nil
}

func (s *fakeSocket) SocketError() error { return s.soError }

func (s *fakeSocket) Close() error {
	s.closed++
	return nil
}

var testAddr = netip.MustParseAddrPort("192.0.2.1:6667")
