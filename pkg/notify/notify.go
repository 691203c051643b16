// Package notify runs the up and down notification commands.
//
// Commands are handed to a bounded, non-blocking goroutine pool and run
// through the shell. The caller never waits for a command to finish; when
// every worker is busy the command is rejected instead of queued.
package notify

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultShell runs each command as `sh -c <command>`.
	DefaultShell = "/bin/sh"

	// maxOutputLog caps how much command output is copied into the log.
	maxOutputLog = 512
)

// ErrBusy is returned when every worker is already running a command.
var ErrBusy = errors.New("command pool is full")

// Runner executes shell commands asynchronously.
type Runner struct {
	pool   *ants.Pool
	shell  string
	logger *logrus.Logger
}

// Option is a functional option for configuring a Runner.
type Option func(*Runner) error

// WithShell sets the shell used to interpret commands.
func WithShell(path string) Option {
	return func(r *Runner) error {
		if path == "" {
			return fmt.Errorf("shell must not be empty")
		}
		r.shell = path
		return nil
	}
}

// New creates a Runner that runs at most workers commands at once.
func New(workers int, logger *logrus.Logger, opts ...Option) (*Runner, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("notify: workers must be positive, got %d", workers)
	}

	r := &Runner{
		shell:  DefaultShell,
		logger: logger,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
	}

	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithLogger(logger),
		ants.WithPanicHandler(func(p interface{}) {
			logger.Errorf("notify: command worker panicked: %v", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	r.pool = pool

	return r, nil
}

// Execute starts command in the background with env appended to the
// process environment. It returns as soon as the command is scheduled.
func (r *Runner) Execute(command string, env []string) error {
	if command == "" {
		return nil
	}

	err := r.pool.Submit(func() { r.run(command, env) })
	if errors.Is(err, ants.ErrPoolOverload) {
		return fmt.Errorf("%w: dropped %q", ErrBusy, command)
	}
	return err
}

func (r *Runner) run(command string, env []string) {
	cmd := exec.Command(r.shell, "-c", command)
	cmd.Env = append(os.Environ(), env...)

	out, err := cmd.CombinedOutput()
	log := r.logger.WithField("command", command)
	if len(out) > 0 {
		log = log.WithField("output", truncate(strings.TrimSpace(string(out)), maxOutputLog))
	}
	if err != nil {
		log.Warnf("notify: command failed: %v", err)
		return
	}
	log.Debug("notify: command finished")
}

// Running returns the number of commands currently executing.
func (r *Runner) Running() int {
	return r.pool.Running()
}

// Close stops accepting commands. Commands already running are not waited
// for.
func (r *Runner) Close() {
	r.pool.Release()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
