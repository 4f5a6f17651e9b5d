// Package resolver turns host names into IP addresses for outgoing connections.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strings"
)

var ErrNoAddress = errors.New("resolver: no address")

type Resolver interface {
	Resolve(ctx context.Context, host string) ([]netip.Addr, error)
}

// Literal parses host as an IP address, accepting the bracketed IPv6 form.
func Literal(host string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSuffix(strings.TrimPrefix(host, "["), "]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// System resolves through the operating system resolver.
type System struct {
	r *net.Resolver
}

func NewSystem() *System {
	return &System{r: net.DefaultResolver}
}

func (s *System) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, ok := Literal(host); ok {
		return []netip.Addr{addr}, nil
	}

	found, err := s.r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", host, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("lookup %s: %w", host, ErrNoAddress)
	}

	addrs := make([]netip.Addr, len(found))
	for i, addr := range found {
		addrs[i] = addr.Unmap()
	}
	return addrs, nil
}

// Prefer moves the addresses of the preferred family to the front, keeping
// the relative order inside each family.
func Prefer(addrs []netip.Addr, ipv4 bool) []netip.Addr {
	sorted := slices.Clone(addrs)
	slices.SortStableFunc(sorted, func(a, b netip.Addr) int {
		return rank(a, ipv4) - rank(b, ipv4)
	})
	return sorted
}

func rank(addr netip.Addr, ipv4 bool) int {
	if addr.Is4() == ipv4 {
		return 0
	}
	return 1
}

type preferring struct {
	next Resolver
	ipv4 bool
}

// Preferring wraps next so that results of the preferred family come first.
func Preferring(next Resolver, ipv4 bool) Resolver {
	return preferring{next: next, ipv4: ipv4}
}

func (p preferring) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := p.next.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	return Prefer(addrs, p.ipv4), nil
}
