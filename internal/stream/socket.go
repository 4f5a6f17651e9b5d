package stream

import (
	"errors"
	"net/netip"
)

var errUnsupported = errors.New("stream: sockets are not supported on this platform")

// socket is the non-blocking OS socket a tcpConn drives.
type socket interface {
	Fd() int
	// Connect starts connecting; EINPROGRESS means completion is signalled
	// by writability.
	Connect(addr netip.AddrPort) error
	Sendmsg(bufs [][]byte) (int, error)
	Read(p []byte) (int, error)
	// SocketError returns the pending SO_ERROR, nil if none.
	SocketError() error
	Close() error
}

type socketOpener func(addr netip.AddrPort) (socket, error)
