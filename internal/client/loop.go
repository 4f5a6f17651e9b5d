// Package client runs IRC connections on a single poller goroutine and keeps
// them alive across failures.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labi-le/tinyirc/internal/poller"
	"github.com/labi-le/tinyirc/internal/resolver"
	"github.com/labi-le/tinyirc/pkg/ctxlog"
	"github.com/rs/zerolog"
)

var ErrInboxFull = errors.New("client: loop inbox is full")

const (
	inboxSize      = 256
	eventBatch     = 64
	defaultMaxWait = 30 * time.Second
)

// Loop owns the poller and every Server registered with it. Apart from
// Submit, its methods must be called before Run or from the loop itself.
type Loop struct {
	poller poller.Poller
	opts   loopOptions
	logger zerolog.Logger

	servers []*Server
	routes  map[poller.Token]*Server
	inbox   chan func()
	events  []poller.Event
}

func NewLoop(p poller.Poller, opts ...LoopOption) *Loop {
	o := loopOptions{
		logger:   zerolog.Nop(),
		resolver: resolver.NewSystem(),
		now:      time.Now,
		maxWait:  defaultMaxWait,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Loop{
		poller: p,
		opts:   o,
		logger: ctxlog.Op(o.logger, "client.Loop"),
		routes: make(map[poller.Token]*Server),
		inbox:  make(chan func(), inboxSize),
		events: make([]poller.Event, eventBatch),
	}
}

// Add registers a server; it connects on the next loop iteration.
func (l *Loop) Add(opts ServerOptions) *Server {
	s := newServer(l, opts.withDefaults())
	l.servers = append(l.servers, s)
	return s
}

// Submit runs fn on the loop goroutine. Safe for concurrent use.
func (l *Loop) Submit(fn func()) error {
	select {
	case l.inbox <- fn:
	default:
		return ErrInboxFull
	}
	return l.poller.Wake()
}

// Run drives all servers until ctx is done or every server has stopped.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.poller.Wake() })
	defer stop()
	defer l.shutdown()

	l.logger.Debug().Int("servers", len(l.servers)).Msg("loop started")

	for {
		if ctx.Err() != nil {
			return nil
		}

		l.drainInbox()
		timeout := l.tick(ctx)
		if l.stopped() {
			l.logger.Debug().Msg("all servers stopped")
			return nil
		}

		n, err := l.poller.Wait(l.events, timeout)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		for _, ev := range l.events[:n] {
			if s, ok := l.routes[ev.Token]; ok {
				s.dispatch(ev.Ready)
			}
		}
	}
}

func (l *Loop) drainInbox() {
	for {
		select {
		case fn := <-l.inbox:
			fn()
		default:
			return
		}
	}
}

// tick runs timers and returns how long the poller may sleep.
func (l *Loop) tick(ctx context.Context) time.Duration {
	now := l.opts.now()
	wait := l.opts.maxWait

	for _, s := range l.servers {
		if deadline, ok := s.tick(ctx, now); ok {
			wait = min(wait, max(deadline.Sub(now), 0))
		}
	}
	return wait
}

func (l *Loop) stopped() bool {
	if len(l.servers) == 0 {
		return false
	}
	for _, s := range l.servers {
		if s.phase != PhaseStopped {
			return false
		}
	}
	return true
}

func (l *Loop) shutdown() {
	for _, s := range l.servers {
		s.closeStream()
	}
}
