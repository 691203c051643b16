package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kylerisse/icmpmonitor/pkg/config"
	"github.com/kylerisse/icmpmonitor/pkg/icmp"
	"github.com/kylerisse/icmpmonitor/pkg/influx"
	"github.com/kylerisse/icmpmonitor/pkg/monitor"
	"github.com/kylerisse/icmpmonitor/pkg/notify"
	"github.com/kylerisse/icmpmonitor/pkg/resolve"
	"github.com/kylerisse/icmpmonitor/pkg/server"
	"github.com/kylerisse/icmpmonitor/pkg/status"
)

const defaultConfig = "icmpmonitor.toml"

// Process exit codes.
const (
	exitOK        = 0
	exitNoHosts   = 1
	exitInit      = 2
	exitConfig    = 3
	exitBadOption = 4
)

// exitError carries the process exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error {
	return &exitError{code: code, err: err}
}

// exitCode maps an error returned by the root command to a process exit
// code. Errors not classified by run are command-line errors.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitBadOption
}

type options struct {
	configPath string
	verbose    bool
	debug      bool
	daemon     bool
	repeatDown bool
	listen     string
}

func newRootCommand(stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "icmpmonitor",
		Short: "Monitor hosts with ICMP echo and run commands when they go up or down",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fail(exitBadOption, fmt.Errorf("unexpected arguments: %v", args))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts, stderr)
			if err != nil {
				return fail(exitInit, err)
			}
			if !cmd.Flags().Changed("config") {
				logger.Warnf("no configuration file given, using %s", opts.configPath)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts, logger)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fail(exitBadOption, err)
	})

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "f", defaultConfig, "configuration file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every probe and reply")
	flags.BoolVarP(&opts.debug, "debug", "D", false, "enable debug logging")
	flags.BoolVarP(&opts.daemon, "daemon", "d", false, "log to syslog instead of stderr")
	flags.BoolVarP(&opts.repeatDown, "repeat-down", "r", false, "run down_cmd on every tick while a host stays down")
	flags.StringVarP(&opts.listen, "listen", "l", "", "serve the status API on this address")

	return cmd
}

func newLogger(opts options, stderr io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
	if opts.verbose || opts.debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	if opts.daemon {
		if err := attachSyslog(logger); err != nil {
			return nil, fmt.Errorf("syslog: %w", err)
		}
		logger.SetOutput(io.Discard)
	}
	return logger, nil
}

// run loads the configuration, builds every component and drives the
// monitor until ctx is cancelled.
func run(ctx context.Context, opts options, logger *logrus.Logger) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if errors.Is(err, config.ErrNoHosts) {
			return fail(exitNoHosts, err)
		}
		return fail(exitConfig, err)
	}
	for _, w := range cfg.Warnings {
		logger.Warnf("config %s: %s", opts.configPath, w)
	}

	listen := cfg.Listen
	if opts.listen != "" {
		listen = opts.listen
	}

	ropts := []resolve.Option{
		resolve.WithTimeout(cfg.Resolver.Timeout),
		resolve.WithSystemFallback(cfg.Resolver.SystemFallback),
	}
	if len(cfg.Resolver.Servers) > 0 {
		ropts = append(ropts, resolve.WithServers(cfg.Resolver.Servers...))
	}
	resolver, err := resolve.New(logger, ropts...)
	if err != nil {
		return fail(exitConfig, err)
	}

	candidates, err := cfg.BuildHosts()
	if err != nil {
		return fail(exitConfig, err)
	}

	reg, err := monitor.NewRegistry(ctx, candidates, resolver, monitor.DialICMP, time.Now(), logger)
	if err != nil {
		switch {
		case errors.Is(err, icmp.ErrUnavailable):
			return fail(exitInit, err)
		case errors.Is(err, monitor.ErrNoHosts):
			return fail(exitNoHosts, err)
		}
		return fail(exitInit, err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warnf("closing sockets: %v", err)
		}
	}()

	runner, err := notify.New(cfg.CommandWorkers, logger)
	if err != nil {
		return fail(exitConfig, err)
	}
	defer runner.Close()

	board := status.NewBoard()
	mopts := []monitor.Option{
		monitor.WithRepeatDown(cfg.RepeatDown || opts.repeatDown),
		monitor.WithGrace(cfg.GraceDuration()),
		monitor.WithVerifyChecksum(cfg.VerifyChecksum),
		monitor.WithBoard(board),
	}

	if cfg.Influx.Enabled() {
		sink, err := influx.New(influx.Config{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, logger)
		if err != nil {
			return fail(exitConfig, err)
		}
		defer sink.Close()

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := sink.Check(checkCtx); err != nil {
			logger.Warnf("InfluxDB not ready, events are buffered: %v", err)
		}
		cancel()
		mopts = append(mopts, monitor.WithSinks(sink))
	}

	mon, err := monitor.New(reg, runner, logger, mopts...)
	if err != nil {
		return fail(exitInit, err)
	}

	if listen != "" {
		srv := server.NewServer(board, listen, logger)
		if err := srv.Start(); err != nil {
			return fail(exitInit, err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				logger.Warnf("stopping status server: %v", err)
			}
		}()
	}

	if err := mon.Run(ctx); err != nil {
		return fail(exitInit, err)
	}
	logger.Info("shutting down")
	return nil
}

func main() {
	cmd := newRootCommand(os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "icmpmonitor: %v\n", err)
		os.Exit(exitCode(err))
	}
}
