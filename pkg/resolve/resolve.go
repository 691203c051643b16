// Package resolve turns monitored host names into IPv4 addresses.
//
// IP literals are used as-is. Other names are looked up as A records against
// the configured DNS servers (or those in /etc/resolv.conf), applying the
// search list the way the system resolver would. When enabled, the operating
// system resolver is tried last so names from /etc/hosts keep working.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	// DefaultTimeout is the per-query timeout.
	DefaultTimeout = 3 * time.Second

	// DefaultResolvConf is where nameservers are read from when none are
	// configured.
	DefaultResolvConf = "/etc/resolv.conf"

	defaultPort = "53"
)

var (
	// ErrNotFound means no IPv4 address could be found for a name.
	ErrNotFound = errors.New("no IPv4 address found")

	// ErrNotIPv4 means a literal address was given that is not IPv4.
	ErrNotIPv4 = errors.New("address is not IPv4")
)

type lookupFunc func(ctx context.Context, network, host string) ([]netip.Addr, error)

// Resolver resolves host names to IPv4 addresses.
type Resolver struct {
	servers    []string
	conf       *dns.ClientConfig
	resolvConf string
	timeout    time.Duration
	fallback   bool
	client     *dns.Client
	system     lookupFunc
	logger     *logrus.Logger
}

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver) error

// WithServers sets the DNS servers to query. Entries without a port get
// port 53.
func WithServers(servers ...string) Option {
	return func(r *Resolver) error {
		for _, s := range servers {
			if s == "" {
				return fmt.Errorf("server must not be empty")
			}
			if _, _, err := net.SplitHostPort(s); err != nil {
				s = net.JoinHostPort(s, defaultPort)
			}
			r.servers = append(r.servers, s)
		}
		return nil
	}
}

// WithTimeout sets the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		r.timeout = d
		return nil
	}
}

// WithSystemFallback enables or disables falling back to the operating
// system resolver.
func WithSystemFallback(enabled bool) Option {
	return func(r *Resolver) error {
		r.fallback = enabled
		return nil
	}
}

// WithResolvConf reads nameservers and the search list from path instead of
// /etc/resolv.conf. It has no effect when servers are set explicitly.
func WithResolvConf(path string) Option {
	return func(r *Resolver) error {
		r.resolvConf = path
		return nil
	}
}

// New creates a Resolver. Without explicit servers the nameservers come
// from resolv.conf; if that cannot be read, only the system fallback is
// used, and New fails if the fallback is disabled.
func New(logger *logrus.Logger, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		resolvConf: DefaultResolvConf,
		timeout:    DefaultTimeout,
		fallback:   true,
		system:     net.DefaultResolver.LookupNetIP,
		logger:     logger,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
	}

	if len(r.servers) > 0 {
		r.conf = &dns.ClientConfig{Ndots: 1}
	} else {
		conf, err := dns.ClientConfigFromFile(r.resolvConf)
		switch {
		case err == nil:
			r.conf = conf
			for _, s := range conf.Servers {
				r.servers = append(r.servers, net.JoinHostPort(s, conf.Port))
			}
		case r.fallback:
			r.logger.Warnf("resolve: cannot read %s, using the system resolver only: %v", r.resolvConf, err)
			r.conf = &dns.ClientConfig{Ndots: 1}
		default:
			return nil, fmt.Errorf("resolve: %w", err)
		}
	}

	r.client = &dns.Client{
		Net:     "udp",
		Timeout: r.timeout,
	}

	return r, nil
}

// Servers returns the DNS servers queried, in order.
func (r *Resolver) Servers() []string {
	return append([]string(nil), r.servers...)
}

// Resolve returns the IPv4 address for name.
func (r *Resolver) Resolve(ctx context.Context, name string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(name); err == nil {
		addr = addr.Unmap()
		if !addr.Is4() {
			return netip.Addr{}, fmt.Errorf("resolve %s: %w", name, ErrNotIPv4)
		}
		return addr, nil
	}

	var errs error
	for _, fqdn := range r.conf.NameList(name) {
		addr, err := r.lookupA(ctx, fqdn)
		if err == nil {
			return addr, nil
		}
		errs = multierr.Append(errs, err)
		if ctx.Err() != nil {
			return netip.Addr{}, fmt.Errorf("resolve %s: %w", name, ctx.Err())
		}
	}

	if r.fallback {
		addr, err := r.lookupSystem(ctx, name)
		if err == nil {
			return addr, nil
		}
		errs = multierr.Append(errs, err)
	}

	if errs == nil {
		return netip.Addr{}, fmt.Errorf("resolve %s: %w", name, ErrNotFound)
	}
	return netip.Addr{}, fmt.Errorf("resolve %s: %w: %v", name, ErrNotFound, errs)
}

// lookupA asks each server in turn for fqdn's A records. A definitive
// negative answer stops the walk; transport errors move on to the next
// server.
func (r *Resolver) lookupA(ctx context.Context, fqdn string) (netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeA)
	msg.RecursionDesired = true

	var errs error
	for _, server := range r.servers {
		resp, rtt, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			r.logger.Debugf("resolve: A %s via %s: %v", fqdn, server, err)
			errs = multierr.Append(errs, fmt.Errorf("%s via %s: %w", fqdn, server, err))
			continue
		}
		r.logger.Debugf("resolve: A %s via %s: %s in %v", fqdn, server, dns.RcodeToString[resp.Rcode], rtt)

		switch resp.Rcode {
		case dns.RcodeSuccess:
			if addr, ok := firstA(resp.Answer); ok {
				return addr, nil
			}
			return netip.Addr{}, fmt.Errorf("%s via %s: no A record in answer", fqdn, server)
		case dns.RcodeNameError:
			return netip.Addr{}, fmt.Errorf("%s via %s: %s", fqdn, server, dns.RcodeToString[resp.Rcode])
		default:
			errs = multierr.Append(errs, fmt.Errorf("%s via %s: rcode %s", fqdn, server, dns.RcodeToString[resp.Rcode]))
		}
	}
	if errs == nil {
		errs = fmt.Errorf("%s: no DNS servers configured", fqdn)
	}
	return netip.Addr{}, errs
}

func (r *Resolver) lookupSystem(ctx context.Context, name string) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.system(ctx, "ip4", name)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("system resolver: %w", err)
	}
	for _, a := range addrs {
		if a = a.Unmap(); a.Is4() {
			return a, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("system resolver: %s: no IPv4 address", name)
}

// firstA returns the first A record in rrs. CNAMEs preceding it are skipped.
func firstA(rrs []dns.RR) (netip.Addr, bool) {
	for _, rr := range rrs {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
			return addr, true
		}
	}
	return netip.Addr{}, false
}
