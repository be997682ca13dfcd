// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server facade: owns the listening socket, the edge-triggered poller, the
// receive buffer pool, the connection registry, and the worker pool, and
// wires them into the single dispatcher goroutine in dispatcher.go. On
// platforms without an epoll-backed poller Start fails with
// api.ErrNotSupported from the reactor constructor.

package server

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/camcore/api"
	"github.com/momentics/camcore/conn"
	"github.com/momentics/camcore/control"
	"github.com/momentics/camcore/internal/socket"
	"github.com/momentics/camcore/logging"
	"github.com/momentics/camcore/pool"
	"github.com/momentics/camcore/reactor"
	"github.com/momentics/camcore/workers"
)

// Lifecycle is one-way: a stopped server stays stopped.
const (
	lifecycleIdle int32 = iota
	lifecycleRunning
	lifecycleStopped
)

// Server accepts raw TCP connections, parks readable ones off the poller,
// and hands them to the worker pool for protocol processing. One dispatcher
// goroutine owns the poller; workers only touch connections they were
// handed, so the in-flight flag on each connection is the custody boundary.
type Server struct {
	cfg  Config
	proc workers.Processor
	log  logging.Logger

	lifecycle atomic.Int32

	bufs     *pool.Pool
	registry *conn.Registry
	poller   reactor.Poller
	workers  *workers.Pool

	metrics *control.MetricsRegistry
	confs   *control.ConfigStore

	listenFD int

	// conns maps live fds to connections. The dispatcher inserts and looks
	// up; teardown deletes, possibly from a worker goroutine.
	mu    sync.Mutex
	conns map[int]*conn.Connection

	accepted  atomic.Uint64
	rejected  atomic.Uint64
	processed atomic.Uint64

	stopCh   chan struct{}
	loopDone chan struct{}
}

// New builds a Server from cfg and a protocol processor. Zero fields in cfg
// inherit defaults; out-of-range fields fail with api.ErrInvalidArgument.
func New(cfg Config, proc workers.Processor, opts ...Option) (*Server, error) {
	if proc == nil {
		return nil, fmt.Errorf("%w: nil processor", api.ErrInvalidArgument)
	}
	cfg.hydrateDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		proc:     proc,
		listenFD: -1,
		conns:    make(map[int]*conn.Connection),
		metrics:  control.NewMetricsRegistry(),
		confs:    control.NewConfigStore(),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	if s.log == nil {
		lvl, _ := logging.ParseLevel(cfg.LogLevel)
		s.log = logging.New(lvl)
	}

	bufs, err := pool.New(pool.Config{
		Capacity:     cfg.BufferCount,
		BufferSize:   cfg.BufferSize,
		WarnFraction: cfg.BufferWarnFraction,
		Logger:       s.log,
	})
	if err != nil {
		return nil, err
	}
	s.bufs = bufs
	s.registry = conn.NewRegistry(0, s.log)

	s.publishConfig()
	return s, nil
}

// Start binds the listening socket, spawns the workers, and launches the
// dispatcher goroutine. It returns once the server is accepting.
func (s *Server) Start() error {
	if !s.lifecycle.CompareAndSwap(lifecycleIdle, lifecycleRunning) {
		if s.lifecycle.Load() == lifecycleRunning {
			return api.ErrAlreadyRunning
		}
		return api.ErrStopped
	}

	fd, err := socket.Listen(s.cfg.ListenHost, s.cfg.ListenPort, s.cfg.Backlog)
	if err != nil {
		s.lifecycle.Store(lifecycleIdle)
		return fmt.Errorf("listen %s:%d: %w", s.cfg.ListenHost, s.cfg.ListenPort, err)
	}
	s.listenFD = fd

	if s.poller == nil {
		p, err := reactor.NewPoller()
		if err != nil {
			_ = socket.Close(fd)
			s.listenFD = -1
			s.lifecycle.Store(lifecycleIdle)
			return err
		}
		s.poller = p
	}

	wp, err := workers.NewPool(workers.Config{
		Workers: s.cfg.Workers,
		Logger:  s.log,
	}, s.proc, s.complete)
	if err != nil {
		_ = s.poller.Close()
		_ = socket.Close(fd)
		s.listenFD = -1
		s.lifecycle.Store(lifecycleIdle)
		return err
	}
	s.workers = wp

	if err := s.poller.Add(s.listenFD); err != nil {
		s.workers.Stop()
		_ = s.poller.Close()
		_ = socket.Close(fd)
		s.listenFD = -1
		s.lifecycle.Store(lifecycleIdle)
		return fmt.Errorf("register listener: %w", err)
	}

	go s.loop()

	s.log.Infof("listening on %s:%d (workers=%d, buffers=%dx%d)",
		s.cfg.ListenHost, s.ListenPort(), s.workers.Workers(), s.cfg.BufferCount, s.cfg.BufferSize)
	return nil
}

// Stop drains the server: the dispatcher exits, workers join within their
// bound, every live connection is torn down, and the poller closes. Stop is
// idempotent; Start after Stop fails with api.ErrStopped.
func (s *Server) Stop() {
	if !s.lifecycle.CompareAndSwap(lifecycleRunning, lifecycleStopped) {
		return
	}

	close(s.stopCh)
	<-s.loopDone

	_ = s.poller.Remove(s.listenFD)
	_ = socket.Close(s.listenFD)
	s.listenFD = -1

	s.workers.Stop()

	var live []*conn.Connection
	s.registry.ForEach(func(c *conn.Connection) bool {
		live = append(live, c)
		return true
	})
	for _, c := range live {
		s.teardown(c, "shutdown")
	}

	_ = s.poller.Close()

	st := s.Stats()
	s.refreshMetrics(st)
	s.log.Infof("stopped: accepted=%d rejected=%d processed=%d",
		st.Accepted, st.Rejected, st.Processed)
}

// ListenPort reports the bound port, which differs from the configured one
// when listen_port is 0.
func (s *Server) ListenPort() int {
	if s.listenFD < 0 {
		return s.cfg.ListenPort
	}
	p, err := socket.LocalPort(s.listenFD)
	if err != nil {
		return s.cfg.ListenPort
	}
	return p
}

// Stats returns a point-in-time snapshot of server counters.
func (s *Server) Stats() api.ServerStats {
	st := api.ServerStats{
		Pool:              s.bufs.Stats(),
		ActiveConnections: s.registry.Len(),
		Accepted:          s.accepted.Load(),
		Rejected:          s.rejected.Load(),
		Processed:         s.processed.Load(),
		Workers:           s.cfg.Workers,
	}
	if s.workers != nil {
		st.QueueDepth = s.workers.QueueDepth()
		st.Workers = s.workers.Workers()
		st.ActiveWorkers = s.workers.ActiveWorkers()
	}
	return st
}

// Metrics exposes the named-counter registry for embedding daemons.
func (s *Server) Metrics() *control.MetricsRegistry { return s.metrics }

// Configs exposes the runtime config store for embedding daemons.
func (s *Server) Configs() *control.ConfigStore { return s.confs }

func (s *Server) stopping() bool {
	return s.lifecycle.Load() == lifecycleStopped
}

// publishConfig mirrors the effective config into the store so other daemon
// subsystems observe what the server actually runs with.
func (s *Server) publishConfig() {
	s.confs.Publish(map[string]any{
		"listen_host":          s.cfg.ListenHost,
		"listen_port":          s.cfg.ListenPort,
		"workers":              s.cfg.Workers,
		"buffer_count":         s.cfg.BufferCount,
		"buffer_size":          s.cfg.BufferSize,
		"poll_timeout_ms":      s.cfg.PollTimeoutMs,
		"sweep_interval_ms":    s.cfg.SweepIntervalMs,
		"idle_timeout_ms":      s.cfg.IdleTimeoutMs,
		"keepalive_timeout_ms": s.cfg.KeepAliveTimeoutMs,
		"keepalive_max":        s.cfg.KeepAliveMax,
		"log_level":            s.cfg.LogLevel,
	})
}

func (s *Server) refreshMetrics(st api.ServerStats) {
	s.metrics.Set("connections_active", int64(st.ActiveConnections))
	s.metrics.Set("connections_accepted_total", int64(st.Accepted))
	s.metrics.Set("connections_rejected_total", int64(st.Rejected))
	s.metrics.Set("requests_processed_total", int64(st.Processed))
	s.metrics.Set("buffers_in_use", int64(st.Pool.InUse))
	s.metrics.Set("buffers_peak", int64(st.Pool.PeakInUse))
	s.metrics.Set("queue_depth", int64(st.QueueDepth))
	s.metrics.Set("workers_active", int64(st.ActiveWorkers))
}
