package server

import (
	"fmt"
	"net/http"
	"strings"
)

type promMetric struct {
	name  string
	help  string
	kind  string
	value func(HostAPIResponse) int64
}

var promMetrics = []promMetric{
	{"icmpmonitor_host_up", "Whether the host is considered up (1=up, 0=down).", "gauge",
		func(h HostAPIResponse) int64 {
			if h.Alive {
				return 1
			}
			return 0
		}},
	{"icmpmonitor_probes_sent_total", "Echo requests sent to the host.", "counter",
		func(h HostAPIResponse) int64 { return int64(h.ProbesSent) }},
	{"icmpmonitor_send_failures_total", "Echo requests that could not be sent.", "counter",
		func(h HostAPIResponse) int64 { return int64(h.SendFailures) }},
	{"icmpmonitor_replies_received_total", "Matching echo replies received from the host.", "counter",
		func(h HostAPIResponse) int64 { return int64(h.RepliesReceived) }},
	{"icmpmonitor_rtt_microseconds", "Round-trip time of the last echo reply.", "gauge",
		func(h HostAPIResponse) int64 { return h.LatencyUS }},
}

// handlePrometheus writes Prometheus-formatted metrics for all hosts.
func (s *Server) handlePrometheus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	all := s.board.All()
	hosts := make([]HostAPIResponse, len(all))
	names := make([]string, len(all))
	for i, snap := range all {
		hosts[i] = newHostAPIResponse(snap)
		names[i] = sanitizePrometheusLabel(snap.Name)
	}

	var b strings.Builder
	for _, m := range promMetrics {
		fmt.Fprintf(&b, "# HELP %s %s\n", m.name, m.help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", m.name, m.kind)
		for i, h := range hosts {
			fmt.Fprintf(&b, "%s{host=\"%s\", address=\"%s\"} %d\n",
				m.name, names[i], sanitizePrometheusLabel(h.Address), m.value(h))
		}
	}
	w.Write([]byte(b.String()))
}

// sanitizePrometheusLabel escapes backslash, double-quote, and newline
// characters in a Prometheus label value in the text exposition format.
func sanitizePrometheusLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
