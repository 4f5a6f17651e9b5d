package client

import (
	"crypto/tls"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labi-le/tinyirc/internal/notification"
	"github.com/labi-le/tinyirc/internal/resolver"
	"github.com/rs/zerolog"
)

const (
	DefaultPort           = 6667
	DefaultTLSPort        = 6697
	DefaultConnectTimeout = 30 * time.Second
	DefaultReconnectMin   = 2 * time.Second
	DefaultReconnectMax   = 2 * time.Minute
	DefaultReadBuffer     = 16 * humanize.KiByte
)

// ServerOptions configure one IRC network connection.
type ServerOptions struct {
	// Name labels the server in logs and status; defaults to Host.
	Name string
	Host string
	Port uint16

	TLS         bool
	ServerName  string
	TLSConfig   *tls.Config
	Fingerprint string

	Nick     string
	User     string
	Realname string
	Pass     string
	Channels []string

	ConnectTimeout time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	ReadBuffer     int

	Handler  Handler
	Notifier *notification.Dispatcher
}

func (o ServerOptions) withDefaults() ServerOptions {
	if o.Name == "" {
		o.Name = o.Host
	}
	if o.Port == 0 {
		o.Port = DefaultPort
		if o.TLS {
			o.Port = DefaultTLSPort
		}
	}
	if o.ServerName == "" {
		o.ServerName = o.Host
	}
	if o.Nick == "" {
		o.Nick = "tinyirc"
	}
	if o.User == "" {
		o.User = o.Nick
	}
	if o.Realname == "" {
		o.Realname = o.Nick
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = DefaultReconnectMin
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = max(DefaultReconnectMax, o.ReconnectMin)
	}
	if o.ReadBuffer <= 0 {
		o.ReadBuffer = DefaultReadBuffer
	}
	if o.Handler == nil {
		o.Handler = NopHandler{}
	}
	return o
}

type loopOptions struct {
	logger   zerolog.Logger
	resolver resolver.Resolver
	now      func() time.Time
	maxWait  time.Duration
}

type LoopOption func(*loopOptions)

func WithLogger(logger zerolog.Logger) LoopOption {
	return func(o *loopOptions) {
		o.logger = logger
	}
}

func WithResolver(r resolver.Resolver) LoopOption {
	return func(o *loopOptions) {
		o.resolver = r
	}
}

// WithMaxWait bounds how long the loop sleeps without events.
func WithMaxWait(d time.Duration) LoopOption {
	return func(o *loopOptions) {
		o.maxWait = d
	}
}

func withClock(now func() time.Time) LoopOption {
	return func(o *loopOptions) {
		o.now = now
	}
}
