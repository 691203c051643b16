package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kylerisse/icmpmonitor/pkg/status"
)

func TestHandlePrometheus_BasicOutput(t *testing.T) {
	s := newTestServer(upSnapshot)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	s.handlePrometheus(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "text/plain" {
		t.Errorf("expected text/plain, got %q", contentType)
	}

	body := w.Body.String()

	for _, want := range []string{
		"# HELP icmpmonitor_host_up",
		"# TYPE icmpmonitor_host_up gauge",
		"# TYPE icmpmonitor_probes_sent_total counter",
		`icmpmonitor_host_up{host="google", address="192.0.2.8"} 1`,
		`icmpmonitor_probes_sent_total{host="google", address="192.0.2.8"} 12`,
		`icmpmonitor_send_failures_total{host="google", address="192.0.2.8"} 1`,
		`icmpmonitor_replies_received_total{host="google", address="192.0.2.8"} 11`,
		`icmpmonitor_rtt_microseconds{host="google", address="192.0.2.8"} 12345`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output, got:\n%s", want, body)
		}
	}
}

func TestHandlePrometheus_DownHost(t *testing.T) {
	s := newTestServer(status.Snapshot{Name: "badhost", Address: "192.0.2.66", Sent: 4})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	s.handlePrometheus(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `icmpmonitor_host_up{host="badhost", address="192.0.2.66"} 0`) {
		t.Errorf("expected down gauge for badhost, got:\n%s", body)
	}
}

func TestHandlePrometheus_NoHosts(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	s.handlePrometheus(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "# TYPE icmpmonitor_host_up gauge") {
		t.Error("expected headers even with no hosts")
	}
	if strings.Contains(body, "{host=") {
		t.Errorf("expected no samples, got:\n%s", body)
	}
}

func TestSanitizePrometheusLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{`back\slash`, `back\\slash`},
		{`quo"te`, `quo\"te`},
		{"new\nline", `new\nline`},
	}
	for _, tt := range tests {
		if got := sanitizePrometheusLabel(tt.in); got != tt.want {
			t.Errorf("sanitizePrometheusLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
