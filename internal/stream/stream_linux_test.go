//go:build linux

package stream_test

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/labi-le/tinyirc/internal/poller"
	"github.com/labi-le/tinyirc/internal/security"
	"github.com/labi-le/tinyirc/internal/stream"
)

func newPoller(t *testing.T) poller.Poller {
	t.Helper()

	p, err := poller.New()
	if err != nil {
		t.Fatalf("poller: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func listen(t *testing.T, ln net.Listener) uint16 {
	t.Helper()
	t.Cleanup(func() { _ = ln.Close() })
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

// drive dispatches readiness for s until done reports true.
func drive(t *testing.T, p poller.Poller, s *stream.Stream, done func(received []byte) bool) ([]byte, error) {
	t.Helper()

	events := make([]poller.Event, 16)
	buf := make([]byte, 4096)
	var received []byte

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if done(received) {
			return received, nil
		}

		n, err := p.Wait(events, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
		for _, ev := range events[:n] {
			if ev.Token != s.Token() {
				continue
			}
			if ev.Ready.Writable() {
				if err := s.WriteReady(); err != nil {
					return received, err
				}
			}
			if ev.Ready.Readable() {
				for {
					m, err := s.ReadReady(buf)
					if err != nil {
						return received, err
					}
					received = append(received, buf[:m]...)
					if m == 0 {
						break
					}
				}
			}
		}
	}

	t.Fatalf("timed out, received %q", received)
	return nil, nil
}

func TestTCP_PingOverLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listen(t, ln)

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 64)
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, _ := io.ReadFull(conn, buf[:6])
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		m, _ := conn.Read(buf[n:])
		got <- buf[:n+m]

		_, _ = conn.Write([]byte("PONG\r\n"))
		time.Sleep(time.Second)
	}()

	p := newPoller(t)
	s, err := stream.NewTCP(t.Context(), p, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("new tcp: %v", err)
	}
	defer s.Close()

	if n, err := s.Write([]byte("PING\r\n")); err != nil || n != 6 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if s.Queued() != 6 {
		t.Fatalf("queued = %d, want 6", s.Queued())
	}

	if _, err := drive(t, p, s, func([]byte) bool { return s.Queued() == 0 }); err != nil {
		t.Fatalf("drive writes: %v", err)
	}
	if s.State() != stream.StateConnected {
		t.Errorf("state = %s, want connected", s.State())
	}

	select {
	case data := <-got:
		if string(data) != "PING\r\n" {
			t.Errorf("server got %q, want exactly PING", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server got nothing")
	}

	received, err := drive(t, p, s, func(b []byte) bool { return bytes.Contains(b, []byte("\r\n")) })
	if err != nil {
		t.Fatalf("drive reads: %v", err)
	}
	if string(received) != "PONG\r\n" {
		t.Errorf("received %q, want PONG", received)
	}
}

func TestTCP_PeerCloseSurfacesConnectionClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listen(t, ln)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("ERROR :bye\r\n"))
		_ = conn.Close()
	}()

	p := newPoller(t)
	s, err := stream.NewTCP(t.Context(), p, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("new tcp: %v", err)
	}
	defer s.Close()

	received, err := drive(t, p, s, func([]byte) bool { return false })
	if !errors.Is(err, stream.ConnectionClosed) {
		t.Fatalf("got %v, want %v", err, stream.ConnectionClosed)
	}
	if string(received) != "ERROR :bye\r\n" {
		t.Errorf("received %q before close", received)
	}
	if s.State() != stream.StateErrored {
		t.Errorf("state = %s, want errored", s.State())
	}
}

func TestTCP_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	_ = ln.Close()

	p := newPoller(t)
	s, err := stream.NewTCP(t.Context(), p, "127.0.0.1", port)
	if err == nil {
		defer s.Close()
		_, err = drive(t, p, s, func([]byte) bool { return false })
	}
	if !errors.Is(err, stream.IOError) {
		t.Errorf("got %v, want %v", err, stream.IOError)
	}
}

func tlsServer(t *testing.T, cert *security.Certificate, serve func(conn *tls.Conn)) uint16 {
	t.Helper()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert.TLS},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listen(t, ln)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		serve(conn.(*tls.Conn))
	}()

	return port
}

func TestTLS_PingOverLoopback(t *testing.T) {
	cert, err := security.SelfSigned("", "localhost")
	if err != nil {
		t.Fatalf("cert: %v", err)
	}

	got := make(chan string, 1)
	port := tlsServer(t, cert, func(conn *tls.Conn) {
		if err := conn.Handshake(); err != nil {
			got <- "handshake: " + err.Error()
			return
		}
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			got <- "read: " + err.Error()
			return
		}
		got <- line
		_, _ = conn.Write([]byte("PONG\r\n"))
		time.Sleep(time.Second)
	})

	p := newPoller(t)
	s, err := stream.NewTLS(t.Context(), p, "127.0.0.1", port, "localhost",
		stream.WithTLSConfig(&tls.Config{RootCAs: cert.Pool, MinVersion: tls.VersionTLS12}))
	if err != nil {
		t.Fatalf("new tls: %v", err)
	}
	defer s.Close()

	if s.Variant() != stream.VariantTLS {
		t.Fatalf("variant %s", s.Variant())
	}
	if _, err := s.Write([]byte("PING\r\n")); err != nil {
		t.Fatalf("write during handshake: %v", err)
	}

	received, err := drive(t, p, s, func(b []byte) bool { return bytes.Contains(b, []byte("\r\n")) })
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	if string(received) != "PONG\r\n" {
		t.Errorf("received %q, want PONG", received)
	}
	if state, _ := s.Handshake(); state != stream.Established {
		t.Errorf("handshake state %s", state)
	}

	select {
	case line := <-got:
		if line != "PING\r\n" {
			t.Errorf("server got %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server got nothing")
	}
}

func TestTLS_UntrustedCertificate(t *testing.T) {
	cert, err := security.SelfSigned("", "localhost")
	if err != nil {
		t.Fatalf("cert: %v", err)
	}
	port := tlsServer(t, cert, func(conn *tls.Conn) { _ = conn.Handshake() })

	p := newPoller(t)
	s, err := stream.NewTLS(t.Context(), p, "127.0.0.1", port, "localhost",
		stream.WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	if err != nil {
		t.Fatalf("new tls: %v", err)
	}
	defer s.Close()

	_, err = drive(t, p, s, func([]byte) bool { return false })
	if !errors.Is(err, stream.TLSError) {
		t.Errorf("got %v, want %v", err, stream.TLSError)
	}
}
