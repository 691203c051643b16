package server

import (
	"encoding/json"
	"testing"

	"github.com/kylerisse/icmpmonitor/pkg/status"
)

func TestComputeHostStatus(t *testing.T) {
	tests := []struct {
		name string
		snap status.Snapshot
		want HostStatus
	}{
		{"never probed, assumed up", status.Snapshot{Up: true}, HostStatusPending},
		{"never probed, assumed down", status.Snapshot{Up: false}, HostStatusPending},
		{"probed and up", status.Snapshot{Up: true, Sent: 1}, HostStatusUp},
		{"probed and down", status.Snapshot{Up: false, Sent: 3}, HostStatusDown},
		{"only failed sends", status.Snapshot{Up: false, SendFailures: 2}, HostStatusDown},
		{"reply without a counted send", status.Snapshot{Up: true, Received: 1}, HostStatusUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeHostStatus(tt.snap); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHostStatus_StringValues(t *testing.T) {
	tests := []struct {
		status HostStatus
		want   string
	}{
		{HostStatusPending, "pending"},
		{HostStatusUp, "up"},
		{HostStatusDown, "down"},
	}
	for _, tt := range tests {
		if string(tt.status) != tt.want {
			t.Errorf("HostStatus %v: got %q, want %q", tt.status, string(tt.status), tt.want)
		}
	}
}

func TestHostStatus_JSONSerialization(t *testing.T) {
	resp := HostAPIResponse{Status: HostStatusDown}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded["status"] != "down" {
		t.Errorf("expected status 'down', got %v", decoded["status"])
	}
	if _, ok := decoded["address"]; ok {
		t.Error("expected empty address to be omitted")
	}
}
