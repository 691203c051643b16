// Package config loads and validates the icmpmonitor TOML configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	mapset "github.com/deckarep/golang-set"
	"go.uber.org/multierr"

	"github.com/kylerisse/icmpmonitor/pkg/host"
)

const (
	// DefaultCommandWorkers bounds how many notification commands may run
	// at once.
	DefaultCommandWorkers = 32

	// DefaultResolverTimeout is the per-query DNS timeout.
	DefaultResolverTimeout = 3 * time.Second
)

// ErrNoHosts is returned when the configuration lists no hosts.
var ErrNoHosts = errors.New("no hosts configured")

// Config is the top-level configuration file.
type Config struct {
	RepeatDown     bool   `toml:"repeat_down"`
	Grace          int    `toml:"grace"`
	VerifyChecksum bool   `toml:"verify_checksum"`
	CommandWorkers int    `toml:"command_workers"`
	Listen         string `toml:"listen"`

	Resolver ResolverConfig `toml:"resolver"`
	Influx   InfluxConfig   `toml:"influx"`
	Hosts    []HostConfig   `toml:"host"`

	// Warnings holds problems found by Load that do not prevent startup.
	Warnings []string `toml:"-"`
}

// ResolverConfig configures name resolution.
type ResolverConfig struct {
	Servers        []string      `toml:"servers"`
	Timeout        time.Duration `toml:"timeout"`
	SystemFallback bool          `toml:"system_fallback"`
}

// InfluxConfig configures the optional InfluxDB event sink. The sink is
// disabled when URL is empty.
type InfluxConfig struct {
	URL    string `toml:"url"`
	Token  string `toml:"token"`
	Org    string `toml:"org"`
	Bucket string `toml:"bucket"`
}

// Enabled reports whether events should be written to InfluxDB.
func (c InfluxConfig) Enabled() bool {
	return c.URL != ""
}

// HostConfig is one [[host]] table.
type HostConfig struct {
	Name         string `toml:"name"`
	PingInterval int    `toml:"ping_interval"`
	MaxDelay     int    `toml:"max_delay"`
	UpCmd        string `toml:"up_cmd"`
	DownCmd      string `toml:"down_cmd"`
	Start        string `toml:"start"`
}

// Default returns a Config with every optional setting at its default.
func Default() *Config {
	return &Config{
		CommandWorkers: DefaultCommandWorkers,
		Resolver: ResolverConfig{
			Timeout:        DefaultResolverTimeout,
			SystemFallback: true,
		},
	}
}

// Load reads and validates the configuration file at path. Unknown keys
// and duplicate host names are reported in Config.Warnings.
func Load(path string) (*Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("config %s: %s", path, perr.ErrorWithPosition())
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	for _, key := range md.Undecoded() {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown key %q ignored", key.String()))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks every setting and host record, reporting all problems
// at once. An empty host list yields ErrNoHosts alone.
func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return ErrNoHosts
	}

	var errs error
	if c.Grace < 0 {
		errs = multierr.Append(errs, fmt.Errorf("grace must not be negative, got %d", c.Grace))
	}
	if c.CommandWorkers <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("command_workers must be positive, got %d", c.CommandWorkers))
	}
	if c.Resolver.Timeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("resolver timeout must be positive, got %v", c.Resolver.Timeout))
	}
	if c.Influx.Enabled() && (c.Influx.Org == "" || c.Influx.Bucket == "") {
		errs = multierr.Append(errs, fmt.Errorf("influx org and bucket are required when url is set"))
	}

	seen := mapset.NewSet()
	for i, h := range c.Hosts {
		if err := h.validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("host %d (%s): %w", i, h.Name, err))
			continue
		}
		if !seen.Add(strings.ToLower(h.Name)) {
			c.Warnings = append(c.Warnings, fmt.Sprintf("host %q listed more than once", h.Name))
		}
	}

	return errs
}

func (h HostConfig) validate() error {
	var errs error
	if h.Name == "" {
		errs = multierr.Append(errs, errors.New("name must not be empty"))
	}
	if h.PingInterval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ping_interval must be positive, got %d", h.PingInterval))
	}
	if h.MaxDelay <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_delay must be positive, got %d", h.MaxDelay))
	}
	if _, err := host.ParseStartCondition(h.Start); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// GraceDuration returns the configured grace as a duration.
func (c *Config) GraceDuration() time.Duration {
	return time.Duration(c.Grace) * time.Second
}

// BuildHosts creates a host.Host for each configured record, in file order.
func (c *Config) BuildHosts() ([]*host.Host, error) {
	hosts := make([]*host.Host, 0, len(c.Hosts))
	for _, hc := range c.Hosts {
		start, err := host.ParseStartCondition(hc.Start)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", hc.Name, err)
		}
		h, err := host.New(hc.Name,
			host.WithInterval(time.Duration(hc.PingInterval)*time.Second),
			host.WithMaxDelay(time.Duration(hc.MaxDelay)*time.Second),
			host.WithCommands(hc.UpCmd, hc.DownCmd),
			host.WithStart(start),
		)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}
