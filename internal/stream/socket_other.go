//go:build !linux

package stream

import "net/netip"

func openSocket(netip.AddrPort) (socket, error) {
	return nil, errUnsupported
}
