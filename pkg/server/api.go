package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kylerisse/icmpmonitor/pkg/status"
)

// HostAPIResponse is the JSON representation of one host.
type HostAPIResponse struct {
	Address         string     `json:"address,omitempty"`
	Status          HostStatus `json:"status"`
	Alive           bool       `json:"alive"`
	Start           string     `json:"start"`
	PingInterval    int64      `json:"ping_interval"`
	MaxDelay        int64      `json:"max_delay"`
	LatencyUS       int64      `json:"latency_us"`
	LastProbe       int64      `json:"last_probe"`
	LastReply       int64      `json:"last_reply"`
	ProbesSent      uint64     `json:"probes_sent"`
	SendFailures    uint64     `json:"send_failures"`
	RepliesReceived uint64     `json:"replies_received"`
}

// SummaryResponse counts hosts by status.
type SummaryResponse struct {
	Total   int `json:"total"`
	Up      int `json:"up"`
	Down    int `json:"down"`
	Pending int `json:"pending"`
}

func newHostAPIResponse(snap status.Snapshot) HostAPIResponse {
	return HostAPIResponse{
		Address:         snap.Address,
		Status:          computeHostStatus(snap),
		Alive:           snap.Up,
		Start:           snap.Start,
		PingInterval:    int64(snap.PingInterval / time.Second),
		MaxDelay:        int64(snap.MaxDelay / time.Second),
		LatencyUS:       snap.LastRTT.Microseconds(),
		LastProbe:       unixOrZero(snap.LastProbe),
		LastReply:       unixOrZero(snap.LastReply),
		ProbesSent:      snap.Sent,
		SendFailures:    snap.SendFailures,
		RepliesReceived: snap.Received,
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// handleAPI returns every host keyed by name.
func (s *Server) handleAPI(w http.ResponseWriter, _ *http.Request) {
	all := s.board.All()
	hosts := make(map[string]HostAPIResponse, len(all))
	for _, snap := range all {
		hosts[snap.Name] = newHostAPIResponse(snap)
	}
	s.writeJSON(w, http.StatusOK, hosts)
}

// handleHostAPI returns a single host, or 404 if it is not monitored.
func (s *Server) handleHostAPI(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("hostname")
	snap, ok := s.board.Get(name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "host not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, newHostAPIResponse(snap))
}

// handleSummaryAPI returns host counts by status.
func (s *Server) handleSummaryAPI(w http.ResponseWriter, _ *http.Request) {
	var sum SummaryResponse
	for _, snap := range s.board.All() {
		sum.Total++
		switch computeHostStatus(snap) {
		case HostStatusUp:
			sum.Up++
		case HostStatusDown:
			sum.Down++
		default:
			sum.Pending++
		}
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("API Handler: failed to encode response: %v", err)
	}
}
