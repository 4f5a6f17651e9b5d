//go:build linux

package stream

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

type sysSocket struct {
	fd int
}

func openSocket(addr netip.AddrPort) (socket, error) {
	family := unix.AF_INET
	if addr.Addr().Is6() {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	return &sysSocket{fd: fd}, nil
}

func sockaddr(addr netip.AddrPort) unix.Sockaddr {
	ip := addr.Addr()
	if ip.Is4() {
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}
	}

	sa := &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
	if z := ip.Zone(); z != "" {
		if ifi, err := net.InterfaceByName(z); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa
}

func (s *sysSocket) Fd() int {
	return s.fd
}

func (s *sysSocket) Connect(addr netip.AddrPort) error {
	err := unix.Connect(s.fd, sockaddr(addr))
	if errors.Is(err, unix.EINTR) {
		// the connect carries on asynchronously
		return unix.EINPROGRESS
	}
	return err
}

func (s *sysSocket) Sendmsg(bufs [][]byte) (int, error) {
	return unix.SendmsgBuffers(s.fd, bufs, nil, nil, unix.MSG_DONTWAIT|unix.MSG_NOSIGNAL)
}

func (s *sysSocket) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func (s *sysSocket) SocketError() error {
	code, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("getsockopt: %w", err)
	}
	if code != 0 {
		return unix.Errno(code)
	}
	return nil
}

func (s *sysSocket) Close() error {
	return unix.Close(s.fd)
}
