package stream

import (
	"crypto/tls"

	"github.com/labi-le/tinyirc/internal/resolver"
	"github.com/rs/zerolog"
)

type options struct {
	resolver resolver.Resolver
	logger   zerolog.Logger
	sessions SessionFactory
	open     socketOpener
}

type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		resolver: resolver.NewSystem(),
		logger:   zerolog.Nop(),
		open:     openSocket,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sessions == nil {
		o.sessions = GoSessions(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return o
}

func WithResolver(r resolver.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTLSConfig runs the handshake with crypto/tls using conf.
func WithTLSConfig(conf *tls.Config) Option {
	return func(o *options) {
		o.sessions = GoSessions(conf)
	}
}

func WithSessionFactory(f SessionFactory) Option {
	return func(o *options) {
		o.sessions = f
	}
}

func withSocketOpener(open socketOpener) Option {
	return func(o *options) {
		o.open = open
	}
}
