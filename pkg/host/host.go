// Package host holds the per-host record monitored by icmpmonitor: its
// configuration, its bound connection, timing state and liveness flags.
package host

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

const (
	// DefaultInterval is the probe interval used when none is configured.
	DefaultInterval = 10 * time.Second

	// DefaultMaxDelay is the tolerated silence used when none is configured.
	DefaultMaxDelay = 30 * time.Second
)

// StartCondition selects the liveness state a host is assumed to be in
// before its first probe is answered or missed.
type StartCondition int

const (
	// StartUp assumes the host is up. The first silence fires down_cmd.
	StartUp StartCondition = iota
	// StartDown assumes the host is down and already reported. The first
	// reply fires up_cmd.
	StartDown
	// StartAuto assumes nothing was reported. The first silence marks the
	// host down quietly; the first reply while still assumed up fires nothing.
	StartAuto
	// StartNone has no opinion: whichever is determined first fires its
	// command.
	StartNone
)

var startNames = map[StartCondition]string{
	StartUp:   "up",
	StartDown: "down",
	StartAuto: "auto",
	StartNone: "none",
}

func (s StartCondition) String() string {
	if n, ok := startNames[s]; ok {
		return n
	}
	return fmt.Sprintf("StartCondition(%d)", int(s))
}

// ParseStartCondition parses "up", "down", "auto" or "none". An empty
// string is StartUp.
func ParseStartCondition(s string) (StartCondition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "up":
		return StartUp, nil
	case "down":
		return StartDown, nil
	case "auto":
		return StartAuto, nil
	case "none":
		return StartNone, nil
	}
	return 0, fmt.Errorf("unknown start condition %q (want up, down, auto or none)", s)
}

// Conn carries echo requests to a host and replies back from it.
// *icmp.Conn satisfies it.
type Conn interface {
	Send(b []byte) error
	Recv(b []byte) (int, error)
	Close() error
}

// Host represents one monitored target.
//
// A Host is owned by a single goroutine once monitoring starts; none of its
// methods are safe for concurrent use.
type Host struct {
	Name     string
	Interval time.Duration
	MaxDelay time.Duration
	UpCmd    string
	DownCmd  string
	Start    StartCondition

	// Set by Activate.
	Address       netip.Addr
	Conn          Conn
	Discriminator uint16

	LastProbe time.Time
	LastReply time.Time

	Sent         uint64
	SendFailures uint64
	Received     uint64
	LastRTT      time.Duration

	up           bool
	downNotified bool
}

// New creates a Host with the given name and options.
func New(name string, opts ...Option) (*Host, error) {
	if name == "" {
		return nil, fmt.Errorf("host: name must not be empty")
	}

	h := &Host{
		Name:     name,
		Interval: DefaultInterval,
		MaxDelay: DefaultMaxDelay,
		Start:    StartUp,
	}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, fmt.Errorf("host %s: %w", name, err)
		}
	}

	return h, nil
}

// Option is a functional option for configuring a Host.
type Option func(*Host) error

// WithInterval sets the minimum time between probes.
func WithInterval(d time.Duration) Option {
	return func(h *Host) error {
		if d <= 0 {
			return fmt.Errorf("ping interval must be positive, got %v", d)
		}
		h.Interval = d
		return nil
	}
}

// WithMaxDelay sets the silence tolerated before the host is declared down.
func WithMaxDelay(d time.Duration) Option {
	return func(h *Host) error {
		if d <= 0 {
			return fmt.Errorf("max delay must be positive, got %v", d)
		}
		h.MaxDelay = d
		return nil
	}
}

// WithCommands sets the shell commands run on up and down transitions.
// Either may be empty.
func WithCommands(up, down string) Option {
	return func(h *Host) error {
		h.UpCmd = up
		h.DownCmd = down
		return nil
	}
}

// WithStart sets the initial liveness assumption.
func WithStart(s StartCondition) Option {
	return func(h *Host) error {
		if _, ok := startNames[s]; !ok {
			return fmt.Errorf("invalid start condition %d", int(s))
		}
		h.Start = s
		return nil
	}
}

// Activate binds the host to its resolved address and connection and seeds
// its timing and liveness state. The last reply time starts at now, giving
// the host a full max delay before it can be declared down; the last probe
// time is left zero so the host is probed on the first tick.
func (h *Host) Activate(addr netip.Addr, conn Conn, discriminator uint16, now time.Time) {
	h.Address = addr
	h.Conn = conn
	h.Discriminator = discriminator
	h.LastReply = now
	h.LastProbe = time.Time{}

	switch h.Start {
	case StartUp:
		h.up, h.downNotified = true, false
	case StartDown:
		h.up, h.downNotified = false, true
	case StartAuto:
		h.up, h.downNotified = true, true
	case StartNone:
		h.up, h.downNotified = false, false
	}
}

// Active reports whether the host has a connection to probe over.
func (h *Host) Active() bool {
	return h.Conn != nil
}

// Up reports the externally visible liveness state.
func (h *Host) Up() bool {
	return h.up
}
