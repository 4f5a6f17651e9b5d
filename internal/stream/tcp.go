package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/labi-le/tinyirc/internal/poller"
	"github.com/labi-le/tinyirc/internal/resolver"
	"github.com/rs/zerolog"
)

// State is the lifecycle of the underlying TCP connection.
type State uint8

const (
	StateResolving State = iota
	StateConnecting
	StateConnected
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

const maxIovec = 64

// Stats counts bytes that crossed the socket.
type Stats struct {
	Sent     uint64
	Received uint64
}

type tcpConn struct {
	reg      poller.Registry
	sock     socket
	token    poller.Token
	interest poller.Interest
	addr     netip.AddrPort

	state    State
	err      *Error
	released bool

	queue *writeQueue
	iov   [][]byte
	stats Stats

	logger zerolog.Logger
}

func dialTCP(ctx context.Context, reg poller.Registry, host string, port uint16, o *options) (*tcpConn, error) {
	logger := o.logger.With().Str("host", host).Uint16("port", port).Logger()
	logger.Trace().Str("state", StateResolving.String()).Msg("resolving")

	addrs, err := o.resolver.Resolve(ctx, host)
	if err != nil {
		return nil, newError(CantResolveAddr, "resolve", err)
	}
	if len(addrs) == 0 {
		return nil, newError(CantResolveAddr, "resolve", resolver.ErrNoAddress)
	}

	addr := netip.AddrPortFrom(addrs[0], port)
	sock, err := o.open(addr)
	if err != nil {
		return nil, classify("socket", err)
	}

	return connectTCP(reg, sock, addr, logger)
}

// connectTCP starts a non-blocking connect on sock and registers it with reg.
// On failure sock is closed.
func connectTCP(reg poller.Registry, sock socket, addr netip.AddrPort, logger zerolog.Logger) (*tcpConn, error) {
	c := &tcpConn{
		reg:    reg,
		sock:   sock,
		addr:   addr,
		queue:  newWriteQueue(),
		logger: logger.With().Stringer("addr", addr).Logger(),
	}

	err := sock.Connect(addr)
	switch {
	case err == nil:
		c.state = StateConnected
		c.interest = poller.Readable
	case errors.Is(err, syscall.EINPROGRESS):
		c.state = StateConnecting
		c.interest = poller.Writable
	default:
		_ = sock.Close()
		return nil, classify("connect", err)
	}

	token, err := reg.Register(sock.Fd(), c.interest)
	if err != nil {
		_ = sock.Close()
		return nil, newError(IOError, "register", err)
	}
	c.token = token

	c.logger = c.logger.With().Uint64("token", uint64(token)).Logger()
	c.logger.Trace().Str("state", c.state.String()).Msg("registered")

	return c, nil
}

func (c *tcpConn) Token() poller.Token {
	return c.token
}

func (c *tcpConn) State() State {
	return c.state
}

func (c *tcpConn) Queued() int {
	return c.queue.Len()
}

func (c *tcpConn) Buffered() int {
	return 0
}

func (c *tcpConn) Established() bool {
	return c.state == StateConnected
}

func (c *tcpConn) Stats() Stats {
	return c.stats
}

func (c *tcpConn) terminal() bool {
	return c.state == StateClosed || c.state == StateErrored
}

func (c *tcpConn) terminalErr(op string) *Error {
	if c.err != nil {
		return c.err
	}
	return closedError(op)
}

// Write queues p; bytes go out on later WriteReady calls. It never blocks
// and never fails while the connection is alive.
func (c *tcpConn) Write(p []byte) (int, error) {
	if c.terminal() {
		return 0, c.terminalErr("write")
	}

	c.queue.push(p)
	if err := c.updateInterest(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *tcpConn) WriteReady() error {
	switch c.state {
	case StateConnecting:
		if err := c.finishConnect(); err != nil {
			return err
		}
	case StateConnected:
	default:
		return c.terminalErr("write_ready")
	}

	if err := c.flush(); err != nil {
		return err
	}
	return c.updateInterest()
}

func (c *tcpConn) finishConnect() error {
	if err := c.sock.SocketError(); err != nil {
		return c.fail(newError(IOError, "connect", err))
	}

	c.state = StateConnected
	c.logger.Debug().Msg("connected")
	return nil
}

// flush makes a single send attempt of as much of the queue as the kernel takes.
func (c *tcpConn) flush() error {
	if c.queue.Len() == 0 {
		return nil
	}

	c.iov = c.queue.front(c.iov, maxIovec)
	n, err := c.sock.Sendmsg(c.iov)
	switch {
	case err != nil && temporary(err):
		return nil
	case err != nil:
		return c.fail(classify("send", err))
	case n <= 0:
		return c.fail(newError(IOError, "send", io.ErrShortWrite))
	}

	c.queue.consume(n)
	c.stats.Sent += uint64(n)
	return nil
}

func (c *tcpConn) ReadReady(buf []byte) (int, error) {
	switch c.state {
	case StateConnecting:
		return 0, nil
	case StateConnected:
	default:
		return 0, c.terminalErr("read_ready")
	}
	if len(buf) == 0 {
		return 0, nil
	}

	n, err := c.sock.Read(buf)
	switch {
	case err != nil && temporary(err):
		return 0, nil
	case err != nil:
		return 0, c.fail(classify("recv", err))
	case n == 0:
		return 0, c.fail(newError(ConnectionClosed, "recv", io.EOF))
	}

	c.stats.Received += uint64(n)
	return n, nil
}

// updateInterest keeps writable interest only while connecting or while
// bytes are queued, so an idle connection does not spin the poller.
func (c *tcpConn) updateInterest() error {
	want := poller.Readable
	if c.state == StateConnecting {
		want = poller.Writable
	} else if c.queue.Len() > 0 {
		want |= poller.Writable
	}
	if want == c.interest {
		return nil
	}

	if err := c.reg.Modify(c.token, want); err != nil {
		return c.fail(newError(IOError, "modify", err))
	}
	c.interest = want
	return nil
}

// fail moves the connection to Errored once and releases its resources.
// Later calls keep the first error.
func (c *tcpConn) fail(err *Error) *Error {
	if c.err != nil {
		return c.err
	}

	c.err = err
	c.state = StateErrored
	c.logger.Debug().Err(err).Msg("connection failed")

	if rerr := c.release(); rerr != nil {
		c.logger.Trace().Err(rerr).Msg("release after failure")
	}
	return err
}

func (c *tcpConn) release() error {
	if c.released {
		return nil
	}
	c.released = true

	var errs []error
	if err := c.reg.Deregister(c.token); err != nil {
		errs = append(errs, fmt.Errorf("deregister: %w", err))
	}
	if err := c.sock.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if dropped := c.queue.Len(); dropped > 0 {
		c.logger.Trace().Str("dropped", humanize.IBytes(uint64(dropped))).Msg("discarding queued bytes")
	}
	c.queue.reset()

	c.logger.Trace().
		Str("sent", humanize.IBytes(c.stats.Sent)).
		Str("received", humanize.IBytes(c.stats.Received)).
		Msg("released")

	return errors.Join(errs...)
}

// Close is idempotent; an errored connection keeps reporting its error.
func (c *tcpConn) Close() error {
	if c.state != StateErrored {
		c.state = StateClosed
	}
	return c.release()
}
