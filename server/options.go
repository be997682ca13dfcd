// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/camcore/control"
	"github.com/momentics/camcore/logging"
	"github.com/momentics/camcore/reactor"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger replaces the logger built from the configured log level.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithPoller injects a readiness source, overriding the platform poller.
func WithPoller(p reactor.Poller) Option {
	return func(s *Server) {
		s.poller = p
	}
}

// WithMetrics shares an existing metrics registry with the server.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithConfigStore shares an existing config store with the server.
func WithConfigStore(cs *control.ConfigStore) Option {
	return func(s *Server) {
		s.confs = cs
	}
}
