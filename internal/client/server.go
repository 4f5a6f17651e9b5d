package client

import (
	"context"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labi-le/tinyirc/internal/channel"
	"github.com/labi-le/tinyirc/internal/irc"
	"github.com/labi-le/tinyirc/internal/metadata"
	"github.com/labi-le/tinyirc/internal/poller"
	"github.com/labi-le/tinyirc/internal/stream"
	"github.com/labi-le/tinyirc/pkg/ctxlog"
	"github.com/labi-le/tinyirc/pkg/id"
	"github.com/rs/zerolog"
)

// Server supervises the connection to one IRC network: it connects,
// registers, answers PINGs and reconnects with backoff after failures.
type Server struct {
	loop   *Loop
	opts   ServerOptions
	logger zerolog.Logger

	stream   *stream.Stream
	framer   irc.Framer
	buf      []byte
	channels *channel.Set

	phase    Phase
	nick     string
	attempt  int64
	started  time.Time
	retryAt  time.Time
	backoff  Backoff
	quitting bool
}

func newServer(l *Loop, opts ServerOptions) *Server {
	return &Server{
		loop:     l,
		opts:     opts,
		logger:   ctxlog.Server(l.opts.logger, opts.Name, 0),
		buf:      make([]byte, opts.ReadBuffer),
		channels: channel.New(opts.Channels...),
		nick:     opts.Nick,
		backoff:  Backoff{Min: opts.ReconnectMin, Max: opts.ReconnectMax},
	}
}

func (s *Server) Name() string {
	return s.opts.Name
}

// Send queues a raw IRC line. Safe for concurrent use.
func (s *Server) Send(line string) error {
	return s.loop.Submit(func() {
		s.send(irc.Line(line))
	})
}

func (s *Server) Privmsg(target, text string) error {
	return s.Send(irc.Privmsg(target, text))
}

// Quit sends QUIT and stops the server once it has been written out.
// Safe for concurrent use.
func (s *Server) Quit(reason string) error {
	return s.loop.Submit(func() {
		s.quit(reason)
	})
}

// tick starts due connection attempts and enforces the connect timeout.
// It returns the next instant the server needs attention, if any.
func (s *Server) tick(ctx context.Context, now time.Time) (time.Time, bool) {
	switch s.phase {
	case PhaseStopped:
		return time.Time{}, false
	case PhaseIdle, PhaseDisconnected:
		if now.Before(s.retryAt) {
			return s.retryAt, true
		}
		s.connect(ctx, now)
		if s.stream == nil {
			return s.retryAt, s.phase != PhaseStopped
		}
	}

	if s.phase == PhaseConnecting {
		deadline := s.started.Add(s.opts.ConnectTimeout)
		if !now.Before(deadline) {
			s.fail(ErrConnectTimeout)
			return s.retryAt, s.phase != PhaseStopped
		}
		return deadline, true
	}
	return time.Time{}, false
}

func (s *Server) connect(ctx context.Context, now time.Time) {
	s.attempt = id.New()
	s.logger = ctxlog.Server(s.loop.opts.logger, s.opts.Name, s.attempt)
	s.started = now
	s.nick = s.opts.Nick
	s.framer.Reset()
	s.setPhase(PhaseConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	st, err := s.dial(dialCtx)
	if err != nil {
		s.fail(err)
		return
	}

	s.stream = st
	s.loop.routes[st.Token()] = s
	s.logger.Info().
		Str("host", s.opts.Host).
		Uint16("port", s.opts.Port).
		Stringer("variant", st.Variant()).
		Msg("connecting")

	if s.opts.Pass != "" {
		s.send(irc.Pass(s.opts.Pass))
	}
	s.send(irc.Nick(s.nick))
	s.send(irc.User(s.opts.User, s.opts.Realname))
}

func (s *Server) dial(ctx context.Context) (*stream.Stream, error) {
	opts := []stream.Option{
		stream.WithLogger(s.logger),
		stream.WithResolver(s.loop.opts.resolver),
	}

	if !s.opts.TLS {
		return stream.NewTCP(ctx, s.loop.poller, s.opts.Host, s.opts.Port, opts...)
	}

	sessions, err := stream.NewSessionFactory(s.opts.TLSConfig, s.opts.Fingerprint)
	if err != nil {
		return nil, err
	}
	opts = append(opts, stream.WithSessionFactory(sessions))
	return stream.NewTLS(ctx, s.loop.poller, s.opts.Host, s.opts.Port, s.opts.ServerName, opts...)
}

func (s *Server) dispatch(ready poller.Readiness) {
	if s.stream == nil {
		return
	}

	if ready.Writable() {
		if err := s.stream.WriteReady(); err != nil {
			s.fail(err)
			return
		}
	}
	if ready.Readable() {
		if err := s.read(); err != nil {
			s.fail(err)
			return
		}
	}
	if s.stream == nil {
		return
	}

	if s.phase == PhaseConnecting && s.stream.Established() {
		s.setPhase(PhaseConnected)
	}
	if s.quitting && s.stream.Queued() == 0 {
		s.stop()
	}
}

// read drains the socket and any plaintext the TLS layer buffered.
func (s *Server) read() error {
	for {
		n, err := s.stream.ReadReady(s.buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		s.framer.Feed(s.buf[:n])
		for {
			line, ok := s.framer.Next()
			if !ok {
				break
			}
			s.handle(line)
			if s.stream == nil {
				return nil
			}
		}
	}
}

func (s *Server) handle(line string) {
	msg, err := irc.Parse(line)
	if err != nil {
		return
	}
	s.logger.Trace().Str("line", line).Msg("recv")

	switch msg.Command {
	case "PING":
		s.send(irc.Pong(msg.Trailing()))
	case "001":
		if nick := msg.Param(0); nick != "" {
			s.nick = nick
		}
		s.backoff.Reset()
		s.setPhase(PhaseRegistered)
		if s.channels.Len() > 0 {
			s.send(irc.Join(s.channels.List()...))
		}
	case "433":
		if s.phase != PhaseRegistered {
			s.nick += "_"
			s.send(irc.Nick(s.nick))
		}
	case "NICK":
		if s.self(msg.Nick()) {
			s.nick = msg.Param(0)
		}
	case "JOIN":
		if s.self(msg.Nick()) {
			s.channels.Add(msg.Param(0))
		}
	case "PART":
		if s.self(msg.Nick()) {
			s.channels.Remove(msg.Param(0))
		}
	case "KICK":
		if s.self(msg.Param(1)) {
			s.channels.Remove(msg.Param(0))
		}
	case "PRIVMSG":
		s.privmsg(msg)
	case "ERROR":
		s.logger.Warn().Str("reason", msg.Trailing()).Msg("server error")
	}

	s.opts.Handler.OnMessage(s.opts.Name, msg)
}

func (s *Server) self(nick string) bool {
	return nick != "" && channel.Fold(nick) == channel.Fold(s.nick)
}

func (s *Server) privmsg(msg irc.Message) {
	text := msg.Trailing()

	command, arg, ok := irc.CTCP(text)
	if !ok {
		s.opts.Notifier.Privmsg(msg.Nick(), msg.Param(0), text, s.nick)
		return
	}

	switch command {
	case "VERSION":
		s.send(irc.CTCPReply(msg.Nick(), command, metadata.CTCPVersion()))
	case "PING":
		s.send(irc.CTCPReply(msg.Nick(), command, arg))
	case "TIME":
		s.send(irc.CTCPReply(msg.Nick(), command, s.loop.opts.now().Format(time.RFC1123Z)))
	}
}

func (s *Server) send(line string) {
	if s.stream == nil {
		s.logger.Debug().Str("line", strings.TrimSpace(line)).Msg("dropped while disconnected")
		return
	}
	s.logger.Trace().Str("line", strings.TrimSpace(line)).Msg("send")

	if _, err := s.stream.Write([]byte(line)); err != nil {
		s.fail(err)
	}
}

func (s *Server) quit(reason string) {
	if s.phase == PhaseStopped {
		return
	}
	s.quitting = true

	if s.stream == nil || s.phase == PhaseConnecting {
		s.stop()
		return
	}
	s.send(irc.Quit(reason))
}

// fail closes the current connection and schedules the next attempt.
func (s *Server) fail(err error) {
	s.closeStream()
	if s.quitting {
		s.stop()
		return
	}

	delay := s.backoff.Next()
	s.retryAt = s.loop.opts.now().Add(delay)

	s.logger.Warn().
		Err(err).
		Str("reason", Describe(err)).
		Dur("retry_in", delay).
		Msg("disconnected")

	s.phase = PhaseDisconnected
	s.opts.Handler.OnStatus(Status{
		Server:  s.opts.Name,
		Phase:   PhaseDisconnected,
		Attempt: s.attempt,
		Nick:    s.nick,
		Err:     err,
		Retry:   delay,
	})
}

func (s *Server) stop() {
	s.closeStream()
	s.quitting = false
	s.setPhase(PhaseStopped)
}

func (s *Server) closeStream() {
	if s.stream == nil {
		return
	}

	st := s.stream
	s.stream = nil
	delete(s.loop.routes, st.Token())

	stats := st.Stats()
	if err := st.Close(); err != nil {
		s.logger.Trace().Err(err).Msg("close")
	}
	s.logger.Debug().
		Str("sent", humanize.IBytes(stats.Sent)).
		Str("received", humanize.IBytes(stats.Received)).
		Msg("connection closed")
}

func (s *Server) setPhase(phase Phase) {
	if s.phase == phase {
		return
	}
	s.phase = phase
	s.logger.Debug().Stringer("phase", phase).Str("nick", s.nick).Msg("status")

	s.opts.Handler.OnStatus(Status{
		Server:  s.opts.Name,
		Phase:   phase,
		Attempt: s.attempt,
		Nick:    s.nick,
	})
}
