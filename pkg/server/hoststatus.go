package server

import (
	"github.com/kylerisse/icmpmonitor/pkg/status"
)

// HostStatus is the liveness of a host as reported by the API.
// The string values are stable.
type HostStatus string

const (
	// HostStatusPending means no probe has been attempted yet.
	HostStatusPending HostStatus = "pending"
	// HostStatusUp means the host is considered responsive.
	HostStatusUp HostStatus = "up"
	// HostStatusDown means the host is considered unresponsive.
	HostStatusDown HostStatus = "down"
)

// computeHostStatus derives the API status from a snapshot. A host that has
// never been probed is pending regardless of its assumed start state.
func computeHostStatus(snap status.Snapshot) HostStatus {
	switch {
	case snap.Sent == 0 && snap.SendFailures == 0 && snap.Received == 0:
		return HostStatusPending
	case snap.Up:
		return HostStatusUp
	default:
		return HostStatusDown
	}
}
