package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Options describe how the client verifies and authenticates to IRC servers.
type Options struct {
	ServerName string
	Insecure   bool
	CAFile     string
	CertFile   string
	// KeyFile defaults to CertFile, which then holds both PEM blocks.
	KeyFile string
}

func MakeTLSConfig(opts Options, logger zerolog.Logger) (*tls.Config, error) {
	conf := &tls.Config{
		ServerName:         opts.ServerName,
		InsecureSkipVerify: opts.Insecure, //nolint:gosec // opt-in from the command line
		MinVersion:         tls.VersionTLS12,
	}

	if opts.CAFile != "" {
		pool, err := loadPool(opts.CAFile)
		if err != nil {
			return nil, err
		}
		conf.RootCAs = pool
	}

	switch {
	case opts.CertFile != "":
		keyFile := opts.KeyFile
		if keyFile == "" {
			keyFile = opts.CertFile
		}
		cert, err := tls.LoadX509KeyPair(opts.CertFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("tls.LoadX509KeyPair: %w", err)
		}
		conf.Certificates = []tls.Certificate{cert}
	case opts.KeyFile != "":
		return nil, ErrKeyWithoutCert
	}

	if opts.Insecure {
		logger.Warn().Msg("tls certificate verification disabled")
	}

	populateKeyLog(logger, conf)

	return conf, nil
}

func loadPool(file string) (*x509.CertPool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%s: %w", file, ErrNoCertificates)
	}
	return pool, nil
}
