package notify

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(DefaultShell); err != nil {
		t.Skipf("%s not available: %v", DefaultShell, err)
	}
}

func waitForFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
			return string(b)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
	return ""
}

func TestNew_InvalidWorkers(t *testing.T) {
	if _, err := New(0, testLogger()); err == nil {
		t.Error("expected error for zero workers")
	}
}

func TestNew_EmptyShell(t *testing.T) {
	if _, err := New(1, testLogger(), WithShell("")); err == nil {
		t.Error("expected error for empty shell")
	}
}

func TestExecute_RunsWithEnvironment(t *testing.T) {
	requireShell(t)

	r, err := New(2, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	out := filepath.Join(t.TempDir(), "out")
	cmd := `printf '%s %s' "$ICMPMONITOR_HOST" "$ICMPMONITOR_EVENT" > ` + out
	if err := r.Execute(cmd, []string{"ICMPMONITOR_HOST=gw", "ICMPMONITOR_EVENT=down"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := waitForFile(t, out); got != "gw down" {
		t.Errorf("expected %q, got %q", "gw down", got)
	}
}

func TestExecute_EmptyCommand(t *testing.T) {
	r, err := New(1, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	if err := r.Execute("", nil); err != nil {
		t.Errorf("expected empty command to be a no-op, got %v", err)
	}
	if r.Running() != 0 {
		t.Errorf("expected nothing running, got %d", r.Running())
	}
}

func TestExecute_DoesNotBlock(t *testing.T) {
	requireShell(t)

	r, err := New(1, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	start := time.Now()
	if err := r.Execute("sleep 2", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Execute blocked for %v", elapsed)
	}
}

func TestExecute_BusyPoolDrops(t *testing.T) {
	requireShell(t)

	r, err := New(1, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	if err := r.Execute("sleep 2", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Running() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := r.Execute("true", nil); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("expected abc..., got %q", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Errorf("expected ab, got %q", got)
	}
}
