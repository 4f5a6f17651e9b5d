package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labi-le/tinyirc/internal/client"
	"github.com/labi-le/tinyirc/internal/lock"
	"github.com/labi-le/tinyirc/internal/metadata"
	"github.com/labi-le/tinyirc/internal/notification"
	"github.com/labi-le/tinyirc/internal/poller"
	"github.com/labi-le/tinyirc/internal/resolver"
	"github.com/labi-le/tinyirc/internal/security"
	"github.com/labi-le/tinyirc/internal/service"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const (
	quitReason = "tinyirc"
	quitGrace  = 3 * time.Second
)

type action struct {
	verbose        bool
	showVersion    bool
	showHelp       bool
	installService bool
	notify         string

	tls        security.Options
	dnsServers []string
	preferIPv4 bool
}

func parseFlags() (client.ServerOptions, action) {
	var (
		opts client.ServerOptions
		act  action
	)

	flag.StringVarP(&opts.Host, "server", "s", "", "IRC server host name or address")
	flag.Uint16VarP(&opts.Port, "port", "p", 0, "Server port. Default: 6667, or 6697 with --tls")
	flag.BoolVar(&opts.TLS, "tls", false, "Connect over TLS")
	flag.StringVar(&opts.ServerName, "server_name", "", "TLS server name (SNI). Default: --server")
	flag.StringVar(&opts.Fingerprint, "tls_fingerprint", "go", "TLS ClientHello fingerprint: go, chrome, firefox, safari, ios, edge, random")
	flag.BoolVar(&act.tls.Insecure, "tls_insecure", false, "Do not verify the server certificate")
	flag.StringVar(&act.tls.CAFile, "tls_ca", "", "PEM file with trusted CA certificates")
	flag.StringVar(&act.tls.CertFile, "tls_cert", "", "PEM client certificate (CertFP)")
	flag.StringVar(&act.tls.KeyFile, "tls_key", "", "PEM client key. Default: --tls_cert")

	flag.StringVarP(&opts.Nick, "nick", "n", "tinyirc", "Nickname")
	flag.StringVar(&opts.User, "user", "", "User name. Default: --nick")
	flag.StringVar(&opts.Realname, "realname", "", "Real name. Default: --nick")
	flag.StringVar(&opts.Pass, "pass", "", "Server password")
	flag.StringSliceVarP(&opts.Channels, "join", "j", nil, "Channels to join after registration")

	flag.StringSliceVar(&act.dnsServers, "dns_server", nil, "Resolve through these DNS servers instead of the system resolver")
	flag.BoolVar(&act.preferIPv4, "prefer_ipv4", false, "Try IPv4 addresses first")
	flag.DurationVar(&opts.ConnectTimeout, "connect_timeout", client.DefaultConnectTimeout, "Give up a connection attempt after this long")
	flag.DurationVar(&opts.ReconnectMin, "reconnect_min", client.DefaultReconnectMin, "First reconnect delay")
	flag.DurationVar(&opts.ReconnectMax, "reconnect_max", client.DefaultReconnectMax, "Maximum reconnect delay")

	var readBufferRaw string
	flag.StringVar(&readBufferRaw, "read_buffer", "16KiB", "Size of the socket read buffer")

	flag.StringVar(&act.notify, "notify", "mentions", "Desktop notifications: off, mentions, messages")
	flag.BoolVar(&act.verbose, "verbose", false, "Verbose logs")
	flag.BoolVarP(&act.showVersion, "version", "v", false, "Show version")
	flag.BoolVarP(&act.showHelp, "help", "h", false, "Show help")
	flag.BoolVar(&act.installService, "install-service", false, "Install a systemd user unit running this connection and start it")

	flag.Parse()

	if act.showHelp || act.showVersion {
		return opts, act
	}

	size, err := humanize.ParseBytes(readBufferRaw)
	if err != nil || size == 0 {
		_, _ = fmt.Fprintf(os.Stderr, "invalid read_buffer format: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	opts.ReadBuffer = int(min(size, 16*humanize.MiByte))

	if opts.Host == "" {
		_, _ = fmt.Fprintln(os.Stderr, "--server is required")
		flag.Usage()
		os.Exit(1)
	}

	if opts.Port == 0 {
		opts.Port = client.DefaultPort
		if opts.TLS {
			opts.Port = client.DefaultTLSPort
		}
	}

	return opts, act
}

func main() {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, quit := context.WithCancelCause(sigCtx)
	defer quit(nil)

	opts, cfg := parseFlags()

	if cfg.showHelp {
		flag.Usage()
		return
	}

	applyTagsOverrides(&cfg)
	logger := initLogger(cfg.verbose)

	logger.Info().
		Str("v", metadata.Version).
		Str("commit_hash", metadata.CommitHash).
		Str("build_time", metadata.BuildTime).
		Send()

	if cfg.showVersion {
		// ^
		return
	}

	if cfg.verbose {
		logger.Info().Msg("verbose mode enabled")
	}

	mode, err := notification.ParseMode(cfg.notify)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid --notify")
	}

	if cfg.installService {
		if err := service.Install(logger, opts.Host, serviceArgs(os.Args[1:])); err != nil {
			logger.Fatal().Err(err).Msg("failed install service")
		}
		return
	}

	unlock := lock.Must(logger, lock.Name(opts.Host, opts.Port, opts.Nick))
	defer unlock()

	if opts.TLS {
		cfg.tls.ServerName = opts.ServerName
		if cfg.tls.ServerName == "" {
			cfg.tls.ServerName = opts.Host
		}

		opts.TLSConfig, err = security.MakeTLSConfig(cfg.tls, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build TLS config")
		}
	}

	p, err := poller.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create poller")
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn().Err(err).Msg("close poller")
		}
	}()

	opts.Handler = newPrinter(os.Stdout, logger)
	opts.Notifier = notification.NewDispatcher(mode, notification.Desktop{Logger: logger})

	loop := client.NewLoop(p,
		client.WithLogger(logger),
		client.WithResolver(newResolver(cfg, logger)),
	)
	srv := loop.Add(opts)
	logger.Info().
		Str("server", srv.Name()).
		Uint16("port", opts.Port).
		Bool("tls", opts.TLS).
		Stringer("notify", opts.Notifier.Mode()).
		Msg("starting")

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	var g errgroup.Group
	g.Go(func() error {
		defer quit(nil)
		return loop.Run(loopCtx)
	})
	g.Go(func() error {
		<-ctx.Done()

		reason := quitReason
		var req quitRequest
		if errors.As(context.Cause(ctx), &req) && req != "" {
			reason = string(req)
		}

		if err := srv.Quit(reason); err != nil {
			stopLoop()
			return err
		}
		time.AfterFunc(quitGrace, stopLoop)
		return nil
	})

	go readInput(os.Stdin, srv, firstChannel(opts.Channels), quit, logger)

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("client stopped")
	}
}

func newResolver(cfg action, logger zerolog.Logger) resolver.Resolver {
	var r resolver.Resolver = resolver.NewSystem()
	if len(cfg.dnsServers) > 0 {
		r = resolver.NewDNS(cfg.dnsServers,
			resolver.WithLogger(logger),
			resolver.WithCache(resolver.NewCache(resolver.MinCacheTTL)),
		)
	}
	return resolver.Preferring(r, cfg.preferIPv4)
}

// serviceArgs drops the flags that only make sense for an interactive run.
func serviceArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "--install-service" || strings.HasPrefix(arg, "--install-service=") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func firstChannel(channels []string) string {
	if len(channels) == 0 {
		return ""
	}
	return channels[0]
}

func initLogger(verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	if verbose {
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			short := file
			for i := len(file) - 1; i > 0; i-- {
				if file[i] == '/' {
					short = file[i+1:]
					break
				}
			}
			return fmt.Sprintf("%s:%d", short, line)
		}
		return zerolog.New(output).
			Level(zerolog.TraceLevel).
			With().
			Timestamp().
			Caller().
			Logger()
	}

	return zerolog.New(output).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}
