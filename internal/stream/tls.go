package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/labi-le/tinyirc/internal/poller"
	"github.com/rs/zerolog"
)

// HandshakeState is the progress of the TLS layer on top of a tcpConn.
type HandshakeState uint8

const (
	Handshaking HandshakeState = iota
	Established
	HandshakeClosed
	HandshakeErrored
)

func (s HandshakeState) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Established:
		return "established"
	case HandshakeClosed:
		return "closed"
	case HandshakeErrored:
		return "errored"
	default:
		return fmt.Sprintf("handshake(%d)", uint8(s))
	}
}

// Want is what a handshaking session waits for from the socket.
type Want uint8

const (
	WantNone Want = iota
	WantRead
	WantWrite
)

func (w Want) String() string {
	switch w {
	case WantRead:
		return "read"
	case WantWrite:
		return "write"
	default:
		return "none"
	}
}

const minScratch = 16 << 10

type tlsConn struct {
	tcp     *tcpConn
	session Session

	state   HandshakeState
	want    Want
	started bool
	err     *Error

	// plaintext written before the handshake finished
	pending     [][]byte
	pendingSize int

	scratch []byte
	logger  zerolog.Logger
}

func newTLSConn(tcp *tcpConn, session Session, logger zerolog.Logger) *tlsConn {
	return &tlsConn{
		tcp:     tcp,
		session: session,
		logger:  logger.With().Uint64("token", uint64(tcp.Token())).Logger(),
	}
}

func (t *tlsConn) Token() poller.Token {
	return t.tcp.Token()
}

func (t *tlsConn) State() State {
	return t.tcp.State()
}

func (t *tlsConn) Handshake() (HandshakeState, Want) {
	return t.state, t.want
}

func (t *tlsConn) Established() bool {
	return t.state == Established
}

func (t *tlsConn) Queued() int {
	return t.tcp.Queued() + t.pendingSize
}

func (t *tlsConn) Buffered() int {
	if t.terminal() {
		return 0
	}
	return t.session.Buffered()
}

func (t *tlsConn) Stats() Stats {
	return t.tcp.Stats()
}

func (t *tlsConn) terminal() bool {
	return t.state == HandshakeClosed || t.state == HandshakeErrored
}

func (t *tlsConn) terminalErr(op string) *Error {
	if t.err != nil {
		return t.err
	}
	return closedError(op)
}

// Write encrypts p once the handshake is done; before that p is held back
// and sent, in order, right after the handshake completes.
func (t *tlsConn) Write(p []byte) (int, error) {
	if t.terminal() {
		return 0, t.terminalErr("write")
	}
	if t.tcp.terminal() {
		return 0, t.fail(t.tcp.terminalErr("write"))
	}

	if t.state != Established {
		if len(p) > 0 {
			t.pending = append(t.pending, bytes.Clone(p))
			t.pendingSize += len(p)
		}
		return len(p), nil
	}

	if err := t.session.Encrypt(p); err != nil {
		return 0, t.fail(newError(TLSError, "encrypt", err))
	}
	if err := t.pump(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *tlsConn) WriteReady() error {
	if t.terminal() {
		return t.terminalErr("write_ready")
	}

	if err := t.tcp.WriteReady(); err != nil {
		return t.fail(asError("write_ready", err))
	}
	return t.advance()
}

// ReadReady hands out plaintext the session already holds before touching
// the socket again.
func (t *tlsConn) ReadReady(buf []byte) (int, error) {
	if t.terminal() {
		return 0, t.terminalErr("read_ready")
	}
	if t.state == Established && t.session.Buffered() > 0 {
		return t.decrypt(buf)
	}
	if !t.started {
		if err := t.advance(); err != nil {
			return 0, err
		}
	}

	if len(t.scratch) < max(len(buf), minScratch) {
		t.scratch = make([]byte, max(len(buf), minScratch))
	}

	n, err := t.tcp.ReadReady(t.scratch)
	if err != nil {
		return 0, t.fail(asError("read_ready", err))
	}
	if n > 0 && t.started {
		if err := t.session.Feed(t.scratch[:n]); err != nil {
			// the alert, if any, is best effort
			_ = t.pump()
			return 0, t.fail(newError(TLSError, "handshake", err))
		}
	}

	if err := t.advance(); err != nil {
		return 0, err
	}
	if t.state != Established {
		return 0, nil
	}
	return t.decrypt(buf)
}

// advance starts the session once TCP is connected, moves produced
// ciphertext into the TCP queue and tracks handshake progress.
func (t *tlsConn) advance() error {
	if !t.started {
		if t.tcp.State() != StateConnected {
			return nil
		}
		t.started = true
		t.logger.Trace().Msg("starting handshake")
		if err := t.session.Start(); err != nil {
			return t.fail(newError(TLSError, "handshake", err))
		}
	}

	if err := t.pump(); err != nil {
		return err
	}

	if t.state == Handshaking {
		if !t.session.Established() {
			t.setWant(t.nextWant())
			return nil
		}

		t.state = Established
		t.want = WantNone
		t.logger.Debug().Msg("tls established")
		return t.flushPending()
	}
	return nil
}

func (t *tlsConn) nextWant() Want {
	if t.tcp.Queued() > 0 || t.session.WantsWrite() {
		return WantWrite
	}
	return WantRead
}

func (t *tlsConn) setWant(w Want) {
	if w != t.want {
		t.logger.Trace().Stringer("want", w).Msg("handshake")
	}
	t.want = w
}

func (t *tlsConn) flushPending() error {
	pending := t.pending
	t.pending, t.pendingSize = nil, 0

	for _, p := range pending {
		if err := t.session.Encrypt(p); err != nil {
			return t.fail(newError(TLSError, "encrypt", err))
		}
	}
	return t.pump()
}

// pump moves ciphertext from the session into the TCP write queue.
func (t *tlsConn) pump() error {
	out := t.session.Pull()
	if len(out) == 0 {
		return nil
	}
	if _, err := t.tcp.Write(out); err != nil {
		return t.fail(asError("write", err))
	}
	return nil
}

func (t *tlsConn) decrypt(buf []byte) (int, error) {
	n, err := t.session.Decrypt(buf)
	if n > 0 {
		return n, nil
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, t.fail(newError(ConnectionClosed, "decrypt", err))
		}
		return 0, t.fail(newError(TLSError, "decrypt", err))
	}
	return 0, nil
}

func (t *tlsConn) fail(err *Error) *Error {
	if t.err != nil {
		return t.err
	}

	t.err = err
	t.state = HandshakeErrored
	t.want = WantNone
	t.pending, t.pendingSize = nil, 0

	_ = t.session.Close()
	t.tcp.fail(err)
	return err
}

func (t *tlsConn) Close() error {
	if t.state != HandshakeErrored {
		t.state = HandshakeClosed
	}
	t.want = WantNone
	t.pending, t.pendingSize = nil, 0

	return errors.Join(t.session.Close(), t.tcp.Close())
}
