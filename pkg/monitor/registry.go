package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/kylerisse/icmpmonitor/pkg/host"
	"github.com/kylerisse/icmpmonitor/pkg/icmp"
)

// ErrNoHosts is returned when no host could be resolved and bound.
var ErrNoHosts = errors.New("no hosts to monitor")

// Resolver turns a host name into an IPv4 address.
type Resolver interface {
	Resolve(ctx context.Context, name string) (netip.Addr, error)
}

// Dialer opens a connection that carries probes to addr.
type Dialer func(addr netip.Addr) (host.Conn, error)

// DialICMP is the Dialer backed by raw ICMP sockets.
func DialICMP(addr netip.Addr) (host.Conn, error) {
	c, err := icmp.Dial(addr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Registry is the fixed, ordered set of active hosts and the shared tick
// period derived from their intervals.
type Registry struct {
	hosts  []*host.Host
	period time.Duration
}

// NewRegistry resolves and binds every candidate host, in order. A host
// whose name does not resolve or whose connection cannot be opened is
// logged and left out. Each remaining host is activated with its position
// in the registry as its discriminator.
//
// It fails with an error wrapping icmp.ErrUnavailable if the platform has no
// ICMP support, and with ErrNoHosts if no host is left.
func NewRegistry(ctx context.Context, candidates []*host.Host, resolver Resolver, dial Dialer, now time.Time, logger *logrus.Logger) (*Registry, error) {
	r := &Registry{}

	for _, h := range candidates {
		log := logger.WithField("host", h.Name)

		addr, err := resolver.Resolve(ctx, h.Name)
		if err != nil {
			log.Warnf("cannot resolve, host excluded: %v", err)
			continue
		}
		log = log.WithField("address", addr.String())

		if len(r.hosts) > 0xffff {
			log.Warn("discriminator space exhausted, host excluded")
			continue
		}

		conn, err := dial(addr)
		if err != nil {
			if errors.Is(err, icmp.ErrUnavailable) {
				return nil, multierr.Append(fmt.Errorf("open ICMP socket: %w", err), r.Close())
			}
			log.Warnf("cannot open ICMP socket, host excluded: %v", err)
			continue
		}

		h.Activate(addr, conn, uint16(len(r.hosts)), now)
		r.hosts = append(r.hosts, h)
		log.Debugf("host activated with discriminator %d", h.Discriminator)
	}

	if len(r.hosts) == 0 {
		return nil, ErrNoHosts
	}

	intervals := make([]time.Duration, len(r.hosts))
	for i, h := range r.hosts {
		intervals[i] = h.Interval
	}
	r.period = SharedPeriod(intervals)

	return r, nil
}

// Hosts returns the active hosts in registry order.
func (r *Registry) Hosts() []*host.Host {
	return r.hosts
}

// Len returns the number of active hosts.
func (r *Registry) Len() int {
	return len(r.hosts)
}

// Period returns the shared tick period.
func (r *Registry) Period() time.Duration {
	return r.period
}

// Close closes every host connection.
func (r *Registry) Close() error {
	var errs error
	for _, h := range r.hosts {
		if h.Conn == nil {
			continue
		}
		errs = multierr.Append(errs, h.Conn.Close())
	}
	return errs
}

// SharedPeriod returns the greatest common divisor of intervals: the
// longest tick on which every interval boundary falls.
func SharedPeriod(intervals []time.Duration) time.Duration {
	var p time.Duration
	for _, d := range intervals {
		p = gcd(p, d)
	}
	return p
}

func gcd(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
