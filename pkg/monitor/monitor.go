// Package monitor runs the probe engine: a shared-period scheduler that sends
// echo requests and detects silent hosts, and a collector that matches echo
// replies to hosts and drives their liveness transitions.
//
// All host state is owned by the goroutine running Monitor.Run. Socket
// readers only hand raw datagrams to it, so the scheduler and collector
// never overlap.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kylerisse/icmpmonitor/pkg/host"
	"github.com/kylerisse/icmpmonitor/pkg/icmp"
	"github.com/kylerisse/icmpmonitor/pkg/status"
)

// Environment variables set for notification commands.
const (
	EnvHost    = "ICMPMONITOR_HOST"
	EnvAddress = "ICMPMONITOR_ADDRESS"
	EnvEvent   = "ICMPMONITOR_EVENT"
)

// Executor runs a notification command without waiting for it.
type Executor interface {
	Execute(command string, env []string) error
}

// EventKind classifies an Event.
type EventKind int

const (
	EventProbeSent EventKind = iota
	EventSendFailed
	EventReply
	EventUp
	EventDown
)

var eventNames = [...]string{
	EventProbeSent:  "probe_sent",
	EventSendFailed: "send_failed",
	EventReply:      "reply",
	EventUp:         "up",
	EventDown:       "down",
}

func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event describes something that happened to a host.
type Event struct {
	Kind    EventKind
	Host    string
	Address netip.Addr
	Time    time.Time
	Up      bool
	RTT     time.Duration
	Err     error
}

// EventSink receives events from the monitor loop. Record must not block.
type EventSink interface {
	Record(Event)
}

// Monitor drives probing and reply collection for a Registry.
type Monitor struct {
	reg      *Registry
	exec     Executor
	logger   *logrus.Logger
	ident    uint16
	repeat   bool
	grace    time.Duration
	verify   bool
	now      func() time.Time
	board    *status.Board
	sinks    []EventSink
	datagram chan datagram
}

type datagram struct {
	host *host.Host
	data []byte
	at   time.Time
}

// Option is a functional option for configuring a Monitor.
type Option func(*Monitor) error

// WithRepeatDown makes down_cmd fire on every tick a host stays silent
// instead of once per down episode.
func WithRepeatDown(enabled bool) Option {
	return func(m *Monitor) error {
		m.repeat = enabled
		return nil
	}
}

// WithGrace extends every host's tolerated silence by d.
func WithGrace(d time.Duration) Option {
	return func(m *Monitor) error {
		if d < 0 {
			return fmt.Errorf("grace must not be negative, got %v", d)
		}
		m.grace = d
		return nil
	}
}

// WithVerifyChecksum drops replies whose ICMP checksum does not verify.
func WithVerifyChecksum(enabled bool) Option {
	return func(m *Monitor) error {
		m.verify = enabled
		return nil
	}
}

// WithIdent sets the echo identifier. It defaults to the low 16 bits of the
// process id.
func WithIdent(id uint16) Option {
	return func(m *Monitor) error {
		m.ident = id
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		m.now = now
		return nil
	}
}

// WithBoard publishes a snapshot of each host after every change.
func WithBoard(b *status.Board) Option {
	return func(m *Monitor) error {
		m.board = b
		return nil
	}
}

// WithSinks adds event sinks.
func WithSinks(sinks ...EventSink) Option {
	return func(m *Monitor) error {
		m.sinks = append(m.sinks, sinks...)
		return nil
	}
}

// New creates a Monitor over reg.
func New(reg *Registry, exec Executor, logger *logrus.Logger, opts ...Option) (*Monitor, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, ErrNoHosts
	}

	m := &Monitor{
		reg:    reg,
		exec:   exec,
		logger: logger,
		ident:  uint16(os.Getpid() & 0xffff),
		now:    time.Now,
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("monitor: %w", err)
		}
	}

	m.datagram = make(chan datagram, 4*reg.Len())

	if m.board != nil {
		for _, h := range reg.Hosts() {
			m.board.Update(status.Of(h))
		}
	}

	return m, nil
}

// Ident returns the echo identifier carried by every probe.
func (m *Monitor) Ident() uint16 {
	return m.ident
}

// Run ticks immediately and then once per shared period, and feeds every
// datagram read from a host connection to the collector, until ctx is
// cancelled. Before returning it waits for the socket readers to stop.
func (m *Monitor) Run(ctx context.Context) error {
	period := m.reg.Period()
	m.logger.Infof("monitoring %d hosts, tick every %v", m.reg.Len(), period)

	readCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, h := range m.reg.Hosts() {
		wg.Add(1)
		go m.read(readCtx, &wg, h, h.Conn)
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	m.Tick(m.now())

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return nil
		case <-ticker.C:
			m.Tick(m.now())
		case d := <-m.datagram:
			m.Collect(d.host, d.data, d.at)
		}
	}
}

// read forwards datagrams from conn until ctx is cancelled. It never
// touches h beyond passing it along.
func (m *Monitor) read(ctx context.Context, wg *sync.WaitGroup, h *host.Host, conn host.Conn) {
	defer wg.Done()

	buf := make([]byte, icmp.MaxPacket)
	for ctx.Err() == nil {
		n, err := conn.Recv(buf)
		switch {
		case err == nil:
		case errors.Is(err, icmp.ErrTimeout), errors.Is(err, icmp.ErrInterrupted):
			continue
		default:
			if ctx.Err() != nil {
				return
			}
			m.logger.WithField("host", h.Name).Warnf("read error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(icmp.ReadTimeout):
			}
			continue
		}

		d := datagram{host: h, data: append([]byte(nil), buf[:n]...), at: m.now()}
		select {
		case m.datagram <- d:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) hostLog(h *host.Host) *logrus.Entry {
	return m.logger.WithFields(logrus.Fields{
		"host":    h.Name,
		"address": h.Address.String(),
	})
}

// notify hands a transition command to the executor.
func (m *Monitor) notify(h *host.Host, command, event string) {
	if command == "" || m.exec == nil {
		return
	}
	env := []string{
		EnvHost + "=" + h.Name,
		EnvAddress + "=" + h.Address.String(),
		EnvEvent + "=" + event,
	}
	if err := m.exec.Execute(command, env); err != nil {
		m.hostLog(h).Warnf("%s command not run: %v", event, err)
	}
}

func (m *Monitor) emit(e Event) {
	for _, s := range m.sinks {
		s.Record(e)
	}
}

func (m *Monitor) publish(h *host.Host) {
	if m.board != nil {
		m.board.Update(status.Of(h))
	}
}
