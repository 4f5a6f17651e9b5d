package stream

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
)

var errNotEstablished = errors.New("session: handshake not complete")

// Session is a TLS client engine that never touches the network. Ciphertext
// from the peer goes in through Feed, ciphertext for the peer comes out of Pull.
// Every method returns only after the engine has processed its input.
type Session interface {
	Start() error
	Feed(ciphertext []byte) error
	Pull() []byte
	WantsRead() bool
	WantsWrite() bool
	Established() bool
	Encrypt(plaintext []byte) error
	Decrypt(p []byte) (int, error)
	Buffered() int
	Close() error
}

// SessionFactory builds a client Session for serverName.
type SessionFactory func(serverName string) (Session, error)

type tlsClient interface {
	Handshake() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// GoSessions runs handshakes with crypto/tls.
func GoSessions(conf *tls.Config) SessionFactory {
	return func(serverName string) (Session, error) {
		cfg := conf.Clone()
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if cfg.ServerName == "" {
			cfg.ServerName = serverName
		}

		e := newEngine()
		e.client = tls.Client(wire{e}, cfg)
		return e, nil
	}
}

// UTLSSessions runs handshakes with utls, presenting the given ClientHello.
func UTLSSessions(conf *tls.Config, hello utls.ClientHelloID) SessionFactory {
	return func(serverName string) (Session, error) {
		cfg := toUTLS(conf)
		if cfg.ServerName == "" {
			cfg.ServerName = serverName
		}

		e := newEngine()
		e.client = utls.UClient(wire{e}, cfg, hello)
		return e, nil
	}
}

var fingerprints = map[string]utls.ClientHelloID{
	"chrome":  utls.HelloChrome_Auto,
	"firefox": utls.HelloFirefox_Auto,
	"safari":  utls.HelloSafari_Auto,
	"ios":     utls.HelloIOS_Auto,
	"edge":    utls.HelloEdge_Auto,
	"random":  utls.HelloRandomized,
}

// NewSessionFactory picks crypto/tls for an empty or "go" fingerprint and utls
// for the browser names.
func NewSessionFactory(conf *tls.Config, fingerprint string) (SessionFactory, error) {
	if conf == nil {
		conf = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	name := strings.ToLower(strings.TrimSpace(fingerprint))
	if name == "" || name == "go" {
		return GoSessions(conf), nil
	}

	hello, ok := fingerprints[name]
	if !ok {
		return nil, fmt.Errorf("unknown tls fingerprint %q", fingerprint)
	}
	return UTLSSessions(conf, hello), nil
}

func toUTLS(c *tls.Config) *utls.Config {
	if c == nil {
		return &utls.Config{}
	}

	uc := &utls.Config{
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
		RootCAs:            c.RootCAs,
		KeyLogWriter:       c.KeyLogWriter,
		MinVersion:         c.MinVersion,
		MaxVersion:         c.MaxVersion,
		NextProtos:         c.NextProtos,
	}
	for _, cert := range c.Certificates {
		uc.Certificates = append(uc.Certificates, utls.Certificate{
			Certificate: cert.Certificate,
			PrivateKey:  cert.PrivateKey,
			Leaf:        cert.Leaf,
		})
	}
	return uc
}

// engine drives a blocking TLS client on a helper goroutine over an in-memory
// transport. The helper only ever blocks inside wire.Read, which is where the
// caller side waits for it to settle.
type engine struct {
	mu   sync.Mutex
	cond *sync.Cond

	in    bytes.Buffer
	out   bytes.Buffer
	plain bytes.Buffer

	client tlsClient

	started     bool
	idle        bool
	done        bool
	closed      bool
	established bool
	hsErr       error
	readErr     error
}

func newEngine() *engine {
	e := &engine{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *engine) run() {
	err := e.client.Handshake()

	e.mu.Lock()
	if err != nil {
		e.hsErr = err
		e.finishLocked()
		e.mu.Unlock()
		return
	}
	e.established = true
	e.mu.Unlock()

	buf := make([]byte, 16<<10)
	for {
		n, err := e.client.Read(buf)

		e.mu.Lock()
		e.plain.Write(buf[:n])
		if err != nil {
			e.readErr = err
			e.finishLocked()
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()
	}
}

func (e *engine) finishLocked() {
	e.done = true
	e.idle = false
	e.cond.Broadcast()
}

// settleLocked waits until the helper needs more ciphertext or has exited.
func (e *engine) settleLocked() {
	for !e.idle && !e.done {
		e.cond.Wait()
	}
}

func (e *engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return net.ErrClosed
	}
	if !e.started {
		e.started = true
		go e.run()
		e.settleLocked()
	}
	return e.hsErr
}

func (e *engine) Feed(ciphertext []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return net.ErrClosed
	}
	if !e.started {
		return errNotEstablished
	}
	if len(ciphertext) > 0 && !e.done {
		e.in.Write(ciphertext)
		e.idle = false
		e.cond.Broadcast()
		e.settleLocked()
	}
	return e.hsErr
}

func (e *engine) Pull() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.out.Len() == 0 {
		return nil
	}
	p := bytes.Clone(e.out.Bytes())
	e.out.Reset()
	return p
}

func (e *engine) WantsRead() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.started && e.idle && !e.done
}

func (e *engine) WantsWrite() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.out.Len() > 0
}

func (e *engine) Established() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.established && e.hsErr == nil
}

func (e *engine) Encrypt(plaintext []byte) error {
	if !e.Established() {
		return errNotEstablished
	}
	_, err := e.client.Write(plaintext)
	return err
}

func (e *engine) Decrypt(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.plain.Len() > 0 {
		return e.plain.Read(p)
	}
	if e.readErr != nil {
		return 0, e.readErr
	}
	return 0, nil
}

func (e *engine) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.plain.Len()
}

// Close unblocks the helper goroutine, which then exits.
func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.cond.Broadcast()
	return nil
}

// wire is the net.Conn the TLS client sees.
type wire struct {
	e *engine
}

func (w wire) Read(p []byte) (int, error) {
	e := w.e
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.in.Len() == 0 {
		if e.closed {
			return 0, io.EOF
		}
		e.idle = true
		e.cond.Broadcast()
		e.cond.Wait()
	}
	e.idle = false
	return e.in.Read(p)
}

func (w wire) Write(p []byte) (int, error) {
	e := w.e
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, net.ErrClosed
	}
	return e.out.Write(p)
}

func (w wire) Close() error {
	return w.e.Close()
}

func (wire) LocalAddr() net.Addr { return memAddr{} }
func (wire) RemoteAddr() net.Addr { return memAddr{} }
func (wire) SetDeadline(time.Time) error { return nil }
func (wire) SetReadDeadline(time.Time) error { return nil }
func (wire) SetWriteDeadline(time.Time) error { return nil }

type memAddr struct{}

func (memAddr) Network() string { return "memory" }
func (memAddr) String() string { return "session" }
