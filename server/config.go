// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server configuration: defaults, YAML file loading, environment overlay,
// and validation. Intervals are plain milliseconds in the file format, the
// same units the daemon's existing configs use.

package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/momentics/camcore/api"
	"github.com/momentics/camcore/logging"
	"github.com/momentics/camcore/pool"
	"github.com/momentics/camcore/workers"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenHost string `yaml:"listen_host"` // bind address, empty = all interfaces
	ListenPort int    `yaml:"listen_port"` // 0 lets the kernel pick (tests)
	Backlog    int    `yaml:"backlog"`     // listen(2) backlog

	BufferCount        int     `yaml:"buffer_count"`         // receive buffer slots
	BufferSize         int     `yaml:"buffer_size"`          // bytes per slot
	BufferWarnFraction float64 `yaml:"buffer_warn_fraction"` // high-water warn threshold

	Workers int `yaml:"workers"` // worker goroutines, clamped at workers.MaxWorkers

	PollTimeoutMs      int `yaml:"poll_timeout_ms"`      // dispatcher wait bound
	SweepIntervalMs    int `yaml:"sweep_interval_ms"`    // idle sweep cadence
	IdleTimeoutMs      int `yaml:"idle_timeout_ms"`      // quiet connection lifetime
	KeepAliveTimeoutMs int `yaml:"keepalive_timeout_ms"` // quiet keep-alive lifetime
	KeepAliveMax       int `yaml:"keepalive_max"`        // requests per connection

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the production defaults for an embedded camera.
func DefaultConfig() Config {
	return Config{
		ListenHost:         "",
		ListenPort:         8080,
		Backlog:            128,
		BufferCount:        pool.DefaultCapacity,
		BufferSize:         pool.DefaultBufferSize,
		BufferWarnFraction: pool.DefaultWarnFraction,
		Workers:            workers.DefaultWorkers,
		PollTimeoutMs:      1000,
		SweepIntervalMs:    5000,
		IdleTimeoutMs:      30000,
		KeepAliveTimeoutMs: 5000,
		KeepAliveMax:       100,
		LogLevel:           "info",
	}
}

// hydrateDefaults fills zero fields so partial configs and partial YAML
// files inherit defaults instead of failing validation.
func (c *Config) hydrateDefaults() {
	d := DefaultConfig()
	if c.Backlog == 0 {
		c.Backlog = d.Backlog
	}
	if c.BufferCount == 0 {
		c.BufferCount = d.BufferCount
	}
	if c.BufferSize == 0 {
		c.BufferSize = d.BufferSize
	}
	if c.BufferWarnFraction == 0 {
		c.BufferWarnFraction = d.BufferWarnFraction
	}
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.PollTimeoutMs == 0 {
		c.PollTimeoutMs = d.PollTimeoutMs
	}
	if c.SweepIntervalMs == 0 {
		c.SweepIntervalMs = d.SweepIntervalMs
	}
	if c.IdleTimeoutMs == 0 {
		c.IdleTimeoutMs = d.IdleTimeoutMs
	}
	if c.KeepAliveTimeoutMs == 0 {
		c.KeepAliveTimeoutMs = d.KeepAliveTimeoutMs
	}
	if c.KeepAliveMax == 0 {
		c.KeepAliveMax = d.KeepAliveMax
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate checks every range. Worker counts above the hard cap are legal
// here; the pool clamps them with a warning.
func (c *Config) Validate() error {
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("%w: listen_port %d out of range", api.ErrInvalidArgument, c.ListenPort)
	}
	if c.Backlog < 1 {
		return fmt.Errorf("%w: backlog %d must be >= 1", api.ErrInvalidArgument, c.Backlog)
	}
	if c.BufferCount < 1 {
		return fmt.Errorf("%w: buffer_count %d must be >= 1", api.ErrInvalidArgument, c.BufferCount)
	}
	if c.BufferSize < pool.MinBufferSize {
		return fmt.Errorf("%w: buffer_size %d below minimum %d",
			api.ErrInvalidArgument, c.BufferSize, pool.MinBufferSize)
	}
	if c.BufferWarnFraction <= 0 || c.BufferWarnFraction > 1 {
		return fmt.Errorf("%w: buffer_warn_fraction %v must be in (0,1]",
			api.ErrInvalidArgument, c.BufferWarnFraction)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers %d must be >= 1", api.ErrInvalidArgument, c.Workers)
	}
	if c.PollTimeoutMs < 100 || c.PollTimeoutMs > 5000 {
		return fmt.Errorf("%w: poll_timeout_ms %d must be in [100,5000]",
			api.ErrInvalidArgument, c.PollTimeoutMs)
	}
	if c.SweepIntervalMs < 1000 || c.SweepIntervalMs > 60000 {
		return fmt.Errorf("%w: sweep_interval_ms %d must be in [1000,60000]",
			api.ErrInvalidArgument, c.SweepIntervalMs)
	}
	if c.IdleTimeoutMs < 100 {
		return fmt.Errorf("%w: idle_timeout_ms %d must be >= 100", api.ErrInvalidArgument, c.IdleTimeoutMs)
	}
	if c.KeepAliveTimeoutMs < 100 {
		return fmt.Errorf("%w: keepalive_timeout_ms %d must be >= 100",
			api.ErrInvalidArgument, c.KeepAliveTimeoutMs)
	}
	if c.KeepAliveMax < 1 {
		return fmt.Errorf("%w: keepalive_max %d must be >= 1", api.ErrInvalidArgument, c.KeepAliveMax)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", api.ErrInvalidArgument, err)
	}
	return nil
}

// LoadConfig reads a YAML config file, hydrates defaults, and validates.
// An empty path returns the validated defaults.
func LoadConfig(path string) (Config, error) {
	return LoadConfigWithEnv(path, "")
}

// LoadConfigWithEnv is LoadConfig plus an environment overlay: an optional
// dotenv file is loaded first, then CAMCORE_* variables override the file
// values. This is how systemd EnvironmentFile deployments tune a unit
// without editing the shipped YAML.
func LoadConfigWithEnv(path, envFile string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.hydrateDefaults()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides the deploy-tunable subset from CAMCORE_* variables.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("CAMCORE_LISTEN_HOST"); ok {
		c.ListenHost = v
	}
	if v, ok := os.LookupEnv("CAMCORE_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	intVars := []struct {
		name string
		dst  *int
	}{
		{"CAMCORE_LISTEN_PORT", &c.ListenPort},
		{"CAMCORE_WORKERS", &c.Workers},
		{"CAMCORE_BUFFER_COUNT", &c.BufferCount},
		{"CAMCORE_BUFFER_SIZE", &c.BufferSize},
	}
	for _, ev := range intVars {
		v, ok := os.LookupEnv(ev.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", api.ErrInvalidArgument, ev.name, v)
		}
		*ev.dst = n
	}
	return nil
}

// Duration accessors; the wire format stays integer milliseconds.

func (c Config) PollTimeout() time.Duration      { return time.Duration(c.PollTimeoutMs) * time.Millisecond }
func (c Config) SweepInterval() time.Duration    { return time.Duration(c.SweepIntervalMs) * time.Millisecond }
func (c Config) IdleTimeout() time.Duration      { return time.Duration(c.IdleTimeoutMs) * time.Millisecond }
func (c Config) KeepAliveTimeout() time.Duration { return time.Duration(c.KeepAliveTimeoutMs) * time.Millisecond }
