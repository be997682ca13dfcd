// File: server/config_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/camcore/api"
	"github.com/momentics/camcore/server"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := server.DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 8080, cfg.ListenPort)
	require.Equal(t, time.Second, cfg.PollTimeout())
	require.Equal(t, 5*time.Second, cfg.SweepInterval())
	require.Equal(t, 30*time.Second, cfg.IdleTimeout())
	require.Equal(t, 5*time.Second, cfg.KeepAliveTimeout())
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "server.yaml", `
listen_host: 127.0.0.1
listen_port: 9090
workers: 4
buffer_count: 16
log_level: debug
`)

	cfg, err := server.LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.ListenHost)
	require.Equal(t, 9090, cfg.ListenPort)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, 16, cfg.BufferCount)
	require.Equal(t, "debug", cfg.LogLevel)

	// Everything the file does not mention keeps its default.
	require.Equal(t, 32*1024, cfg.BufferSize)
	require.Equal(t, 128, cfg.Backlog)
	require.Equal(t, 100, cfg.KeepAliveMax)
}

func TestLoadConfigEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := server.LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, server.DefaultConfig(), cfg)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := server.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := writeFile(t, "broken.yaml", "listen_port: [not a number\n")
	_, err := server.LoadConfig(path)
	require.Error(t, err)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*server.Config)
	}{
		{"negative port", func(c *server.Config) { c.ListenPort = -1 }},
		{"huge port", func(c *server.Config) { c.ListenPort = 70000 }},
		{"tiny buffer", func(c *server.Config) { c.BufferSize = 16 }},
		{"zero warn fraction", func(c *server.Config) { c.BufferWarnFraction = -0.5 }},
		{"warn fraction above one", func(c *server.Config) { c.BufferWarnFraction = 1.5 }},
		{"poll too fast", func(c *server.Config) { c.PollTimeoutMs = 10 }},
		{"poll too slow", func(c *server.Config) { c.PollTimeoutMs = 60000 }},
		{"sweep too fast", func(c *server.Config) { c.SweepIntervalMs = 100 }},
		{"negative workers", func(c *server.Config) { c.Workers = -2 }},
		{"bad log level", func(c *server.Config) { c.LogLevel = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := server.DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, api.ErrInvalidArgument)
		})
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server.yaml", "listen_port: 9090\nworkers: 4\n")
	t.Setenv("CAMCORE_LISTEN_PORT", "9191")
	t.Setenv("CAMCORE_LOG_LEVEL", "warn")

	cfg, err := server.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.ListenPort)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, 4, cfg.Workers)
}

func TestEnvRejectsBadInteger(t *testing.T) {
	t.Setenv("CAMCORE_WORKERS", "many")
	_, err := server.LoadConfig("")
	require.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestDotenvFileFeedsOverlay(t *testing.T) {
	envPath := writeFile(t, "camcore.env", "CAMCORE_BUFFER_COUNT=7\n")
	t.Cleanup(func() { os.Unsetenv("CAMCORE_BUFFER_COUNT") })

	cfg, err := server.LoadConfigWithEnv("", envPath)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.BufferCount)
}

func TestEnvValuesAreValidated(t *testing.T) {
	t.Setenv("CAMCORE_BUFFER_SIZE", "64")
	_, err := server.LoadConfig("")
	require.ErrorIs(t, err, api.ErrInvalidArgument)
}
