package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"golang.org/x/net/idna"
)

const DefaultDNSTimeout = 2 * time.Second

// DNS queries the given servers directly instead of going through the system
// resolver. Servers are tried in order until one answers.
type DNS struct {
	servers []string
	client  *dns.Client
	cache   *Cache
	logger  zerolog.Logger
}

type DNSOption func(*DNS)

func WithTimeout(timeout time.Duration) DNSOption {
	return func(d *DNS) {
		d.client.Timeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) DNSOption {
	return func(d *DNS) {
		d.logger = logger
	}
}

func WithCache(c *Cache) DNSOption {
	return func(d *DNS) {
		d.cache = c
	}
}

// NewDNS accepts servers as "host" or "host:port"; port 53 is assumed.
func NewDNS(servers []string, opts ...DNSOption) *DNS {
	d := &DNS{
		client: &dns.Client{Net: "udp", Timeout: DefaultDNSTimeout},
		cache:  NewCache(MaxCacheTTL),
		logger: zerolog.Nop(),
	}
	for _, server := range servers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		d.servers = append(d.servers, server)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DNS) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, ok := Literal(host); ok {
		return []netip.Addr{addr}, nil
	}

	name, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return nil, fmt.Errorf("idna %s: %w", host, err)
	}
	name = dns.Fqdn(name)

	if addrs, ok := d.cache.Get(name); ok {
		d.logger.Trace().Str("name", name).Msg("cache hit")
		return addrs, nil
	}

	lastErr := error(ErrNoAddress)
	for _, server := range d.servers {
		addrs, ttl, err := d.query(ctx, server, name)
		if err != nil {
			d.logger.Debug().Err(err).Str("server", server).Str("name", name).Msg("query failed")
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		d.cache.Set(name, addrs, ttl)
		return addrs, nil
	}

	return nil, fmt.Errorf("resolve %s: %w", host, lastErr)
}

func (d *DNS) query(ctx context.Context, server, name string) ([]netip.Addr, time.Duration, error) {
	var (
		addrs []netip.Addr
		ttl   = uint32(MaxCacheTTL / time.Second)
		errs  []error
	)

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(name, qtype)
		msg.RecursionDesired = true

		resp, _, err := d.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			// a server that did not answer A will not answer AAAA either
			errs = append(errs, fmt.Errorf("%s %s: %w", dns.TypeToString[qtype], server, err))
			break
		}
		if resp.Rcode != dns.RcodeSuccess {
			errs = append(errs, fmt.Errorf("%s %s: %w: %s", dns.TypeToString[qtype], server, ErrNoAddress, dns.RcodeToString[resp.Rcode]))
			continue
		}

		for _, rr := range resp.Answer {
			var ip net.IP
			switch v := rr.(type) {
			case *dns.A:
				ip = v.A
			case *dns.AAAA:
				ip = v.AAAA
			default:
				continue
			}
			addr, ok := netip.AddrFromSlice(ip)
			if !ok {
				continue
			}
			addrs = append(addrs, addr.Unmap())
			ttl = min(ttl, rr.Header().Ttl)
		}
	}

	if len(addrs) == 0 {
		if len(errs) == 0 {
			return nil, 0, ErrNoAddress
		}
		return nil, 0, errors.Join(errs...)
	}

	return addrs, time.Duration(ttl) * time.Second, nil
}
