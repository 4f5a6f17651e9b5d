package security_test

import (
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/labi-le/tinyirc/internal/security"
	"github.com/rs/zerolog"
)

func TestSelfSigned_VerifiesForHosts(t *testing.T) {
	cert, err := security.SelfSigned("", "localhost", "127.0.0.1")
	if err != nil {
		t.Fatalf("self signed: %v", err)
	}

	leaf, err := x509.ParseCertificate(cert.TLS.Certificate[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	for _, host := range []string{"localhost", "127.0.0.1"} {
		if _, err := leaf.Verify(x509.VerifyOptions{DNSName: host, Roots: cert.Pool}); err != nil {
			t.Errorf("verify %s: %v", host, err)
		}
	}
	if _, err := leaf.Verify(x509.VerifyOptions{DNSName: "irc.example.org", Roots: cert.Pool}); err == nil {
		t.Error("certificate verified for a foreign host")
	}
}

func TestSelfSigned_SeedIsDeterministic(t *testing.T) {
	a, err := security.SelfSigned("secret", "localhost")
	if err != nil {
		t.Fatalf("self signed: %v", err)
	}
	b, err := security.SelfSigned("secret", "localhost")
	if err != nil {
		t.Fatalf("self signed: %v", err)
	}
	if string(a.KeyPEM) != string(b.KeyPEM) {
		t.Error("same seed produced different keys")
	}
}

func TestMakeTLSConfig(t *testing.T) {
	cert, err := security.SelfSigned("", "irc.example.org")
	if err != nil {
		t.Fatalf("self signed: %v", err)
	}

	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.pem")
	bundle := filepath.Join(dir, "client.pem")
	empty := filepath.Join(dir, "empty.pem")
	for file, data := range map[string][]byte{
		caFile: cert.CertPEM,
		bundle: append(append([]byte{}, cert.CertPEM...), cert.KeyPEM...),
		empty:  []byte("not a certificate"),
	} {
		if err := os.WriteFile(file, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}

	tests := []struct {
		name    string
		opts    security.Options
		wantErr error
	}{
		{
			name: "defaults",
			opts: security.Options{ServerName: "irc.example.org"},
		},
		{
			name: "ca and client bundle",
			opts: security.Options{CAFile: caFile, CertFile: bundle},
		},
		{
			name:    "ca without certificates",
			opts:    security.Options{CAFile: empty},
			wantErr: security.ErrNoCertificates,
		},
		{
			name:    "key without cert",
			opts:    security.Options{KeyFile: bundle},
			wantErr: security.ErrKeyWithoutCert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, err := security.MakeTLSConfig(tt.opts, zerolog.Nop())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("make tls config: %v", err)
			}

			if conf.ServerName != tt.opts.ServerName {
				t.Errorf("server name %q, want %q", conf.ServerName, tt.opts.ServerName)
			}
			if (conf.RootCAs != nil) != (tt.opts.CAFile != "") {
				t.Errorf("root CAs set = %v", conf.RootCAs != nil)
			}
			if got, want := len(conf.Certificates), 0; tt.opts.CertFile != "" && got == want {
				t.Error("client certificate not loaded")
			}
		})
	}
}
