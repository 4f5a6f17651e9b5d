// Package stream implements non-blocking TCP and TLS client connections
// driven by readiness events from a poller. A Stream never blocks: Write
// queues, WriteReady and ReadReady make one attempt each and report progress.
package stream

import (
	"context"

	"github.com/labi-le/tinyirc/internal/poller"
)

// Variant tells plain TCP and TLS streams apart.
type Variant uint8

const (
	VariantTCP Variant = iota + 1
	VariantTLS
)

func (v Variant) String() string {
	switch v {
	case VariantTCP:
		return "tcp"
	case VariantTLS:
		return "tls"
	default:
		return "unknown"
	}
}

type conn interface {
	Write(p []byte) (int, error)
	WriteReady() error
	ReadReady(buf []byte) (int, error)
	Token() poller.Token
	State() State
	Established() bool
	Queued() int
	Buffered() int
	Stats() Stats
	Close() error
}

// Stream is a single client connection. It must be used from one goroutine,
// the one running the poller loop it is registered with.
type Stream struct {
	variant Variant
	conn    conn
}

// NewTCP resolves host and starts a non-blocking connect. Resolution blocks
// the caller until it finishes or ctx is done; everything after it is driven
// by WriteReady and ReadReady.
func NewTCP(ctx context.Context, reg poller.Registry, host string, port uint16, opts ...Option) (*Stream, error) {
	o := newOptions(opts...)

	c, err := dialTCP(ctx, reg, host, port, o)
	if err != nil {
		return nil, asError("new_tcp", err)
	}

	return &Stream{variant: VariantTCP, conn: c}, nil
}

// NewTLS is NewTCP followed by a TLS client handshake for serverName.
// Writes made before the handshake completes are held back until it does.
func NewTLS(ctx context.Context, reg poller.Registry, host string, port uint16, serverName string, opts ...Option) (*Stream, error) {
	o := newOptions(opts...)
	if serverName == "" {
		serverName = host
	}

	session, err := o.sessions(serverName)
	if err != nil {
		return nil, newError(TLSError, "new_tls", err)
	}

	c, err := dialTCP(ctx, reg, host, port, o)
	if err != nil {
		_ = session.Close()
		return nil, asError("new_tls", err)
	}

	t := newTLSConn(c, session, o.logger)
	if err := t.advance(); err != nil {
		return nil, err
	}

	return &Stream{variant: VariantTLS, conn: t}, nil
}

func (s *Stream) Variant() Variant {
	return s.variant
}

// Token is the poller token of the underlying socket.
func (s *Stream) Token() poller.Token {
	return s.conn.Token()
}

func (s *Stream) State() State {
	return s.conn.State()
}

// Established reports a connected TCP stream or a completed TLS handshake.
func (s *Stream) Established() bool {
	return s.conn.Established()
}

// Handshake reports TLS progress. Plain TCP streams report Established once
// connected.
func (s *Stream) Handshake() (HandshakeState, Want) {
	if t, ok := s.conn.(*tlsConn); ok {
		return t.Handshake()
	}
	switch s.conn.State() {
	case StateConnected:
		return Established, WantNone
	case StateClosed:
		return HandshakeClosed, WantNone
	case StateErrored:
		return HandshakeErrored, WantNone
	default:
		return Handshaking, WantWrite
	}
}

// Queued is the number of bytes accepted by Write and not yet taken by the OS.
func (s *Stream) Queued() int {
	return s.conn.Queued()
}

// Buffered is the number of decrypted bytes ReadReady can return without
// reading the socket.
func (s *Stream) Buffered() int {
	return s.conn.Buffered()
}

func (s *Stream) Stats() Stats {
	return s.conn.Stats()
}

// Write accepts all of p or fails; it never reports a partial write.
func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.conn.Write(p)
	if err != nil {
		return 0, asError("write", err)
	}
	return n, nil
}

func (s *Stream) WriteReady() error {
	if err := s.conn.WriteReady(); err != nil {
		return asError("write_ready", err)
	}
	return nil
}

// ReadReady returns (0, nil) when no data is available yet.
func (s *Stream) ReadReady(buf []byte) (int, error) {
	n, err := s.conn.ReadReady(buf)
	if err != nil {
		return 0, asError("read_ready", err)
	}
	return n, nil
}

// Close deregisters and closes the socket. Queued bytes are dropped.
func (s *Stream) Close() error {
	return s.conn.Close()
}
