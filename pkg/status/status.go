// Package status publishes point-in-time copies of host state for readers
// outside the monitor loop, such as the HTTP API.
package status

import (
	"sort"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/kylerisse/icmpmonitor/pkg/host"
)

// Snapshot is a copy of one host's state. It shares nothing with the
// host it was taken from.
type Snapshot struct {
	Name         string        `json:"name"`
	Address      string        `json:"address"`
	Up           bool          `json:"up"`
	Start        string        `json:"start"`
	PingInterval time.Duration `json:"-"`
	MaxDelay     time.Duration `json:"-"`
	LastProbe    time.Time     `json:"last_probe"`
	LastReply    time.Time     `json:"last_reply"`
	Sent         uint64        `json:"probes_sent"`
	SendFailures uint64        `json:"send_failures"`
	Received     uint64        `json:"replies_received"`
	LastRTT      time.Duration `json:"-"`
}

// Of takes a snapshot of h.
func Of(h *host.Host) Snapshot {
	s := Snapshot{
		Name:         h.Name,
		Up:           h.Up(),
		Start:        h.Start.String(),
		PingInterval: h.Interval,
		MaxDelay:     h.MaxDelay,
		LastProbe:    h.LastProbe,
		LastReply:    h.LastReply,
		Sent:         h.Sent,
		SendFailures: h.SendFailures,
		Received:     h.Received,
		LastRTT:      h.LastRTT,
	}
	if h.Address.IsValid() {
		s.Address = h.Address.String()
	}
	return s
}

// Board holds the latest Snapshot of every monitored host. It is safe for
// concurrent use.
type Board struct {
	hosts cmap.ConcurrentMap[string, Snapshot]
}

// NewBoard creates an empty Board.
func NewBoard() *Board {
	return &Board{hosts: cmap.New[Snapshot]()}
}

// Update replaces the snapshot stored under s.Name.
func (b *Board) Update(s Snapshot) {
	b.hosts.Set(s.Name, s)
}

// Get returns the snapshot for name.
func (b *Board) Get(name string) (Snapshot, bool) {
	return b.hosts.Get(name)
}

// All returns every snapshot ordered by name.
func (b *Board) All() []Snapshot {
	items := b.hosts.Items()
	out := make([]Snapshot, 0, len(items))
	for _, s := range items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of hosts on the board.
func (b *Board) Len() int {
	return b.hosts.Count()
}
