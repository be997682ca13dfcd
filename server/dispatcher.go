// File: server/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The dispatcher goroutine: accepts, watches readiness, parks readable
// connections into the worker queue, and sweeps idle ones. Teardown and
// verdict handling live here too because they complete the same custody
// cycle the dispatcher starts.

package server

import (
	"time"

	"github.com/momentics/camcore/conn"
	"github.com/momentics/camcore/internal/socket"
	"github.com/momentics/camcore/reactor"
)

// eventBatch bounds how many readiness events one wait round drains.
const eventBatch = 64

// loop owns the poller. Nothing else waits on it; workers re-arm fds
// through Poller.Add, which is safe against a concurrent wait.
func (s *Server) loop() {
	defer close(s.loopDone)

	events := make([]reactor.Event, eventBatch)
	lastSweep := time.Now()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		n, err := s.poller.Wait(events, s.cfg.PollTimeout())
		if err != nil {
			if s.stopping() {
				return
			}
			// A wait error means the poller itself is gone; there is no
			// readiness source left to serve.
			s.log.Errorf("poller wait: %v", err)
			return
		}

		for i := 0; i < n; i++ {
			s.handleEvent(events[i])
		}

		if now := time.Now(); now.Sub(lastSweep) >= s.cfg.SweepInterval() {
			s.sweep(now)
			lastSweep = now
		}
	}
}

// handleEvent routes one readiness event. Listener readiness drains the
// accept queue; connection readiness moves the connection into worker
// custody.
func (s *Server) handleEvent(ev reactor.Event) {
	if ev.FD == s.listenFD {
		s.acceptLoop()
		return
	}

	s.mu.Lock()
	c := s.conns[ev.FD]
	s.mu.Unlock()
	if c == nil {
		// Readiness for an fd torn down earlier in this batch.
		return
	}

	if ev.Hangup {
		s.teardown(c, "peer hangup")
		return
	}
	if !ev.Readable {
		return
	}

	c.Touch()
	if !c.MarkInFlight() {
		return
	}
	// Park the fd while a worker owns the connection. Edge-triggered
	// registration would not refire anyway, but parking also keeps a
	// hangup from racing the worker.
	if err := s.poller.Remove(c.FD()); err != nil {
		s.log.Debugf("park fd %d: %v", c.FD(), err)
	}
	if !s.workers.Enqueue(c) {
		c.ClearInFlight()
		s.teardown(c, "queue closed")
	}
}

// acceptLoop drains the listener. The listen socket is edge-triggered like
// everything else, so it must accept until the kernel reports empty.
func (s *Server) acceptLoop() {
	for {
		fd, remote, err := socket.Accept(s.listenFD)
		if err != nil {
			if socket.WouldBlock(err) {
				return
			}
			if socket.Transient(err) {
				continue
			}
			if !s.stopping() {
				s.log.Errorf("accept: %v", err)
			}
			return
		}

		buf, ok := s.bufs.Acquire()
		if !ok {
			// Pool exhaustion is load shedding, not failure.
			s.rejected.Add(1)
			s.log.Warnf("receive buffers exhausted, rejecting %s", remote)
			_ = socket.Close(fd)
			continue
		}

		c := conn.New(fd, remote, buf)
		if _, ok := s.registry.Insert(c); !ok {
			s.rejected.Add(1)
			s.log.Warnf("connection registry full, rejecting %s", remote)
			c.TakeBuffer().Release()
			_ = socket.Close(fd)
			continue
		}

		if err := s.poller.Add(fd); err != nil {
			s.log.Errorf("register fd %d: %v", fd, err)
			s.teardown(c, "poller register failed")
			continue
		}

		s.mu.Lock()
		s.conns[fd] = c
		s.mu.Unlock()

		s.accepted.Add(1)
		s.log.Debugf("accepted %s from %s (fd %d)", c.ID(), remote, fd)
	}
}

// complete applies a worker's verdict. It runs on the worker goroutine, so
// everything it touches is either owned via custody or atomic.
func (s *Server) complete(c *conn.Connection, d conn.Disposition) {
	s.processed.Add(1)

	if s.stopping() {
		s.teardown(c, "shutdown")
		return
	}

	if d == conn.DispositionKeepAlive {
		// The processor marks a finished request by resetting into
		// keep-alive state; only those rounds count against the limit. A
		// round that left the connection mid-request keeps accumulating
		// under the idle clock.
		if c.State() == conn.StateKeepAlive {
			if c.IncKeepAlives() >= s.cfg.KeepAliveMax {
				s.teardown(c, "keep-alive limit")
				return
			}
		}
		c.Touch()
		// Custody must return to the dispatcher before the fd re-arms, or
		// an immediate edge would find the in-flight flag still set and be
		// lost with no retrigger.
		c.ClearInFlight()
		if err := s.poller.Add(c.FD()); err != nil {
			s.teardown(c, "re-arm failed")
		}
		return
	}

	s.teardown(c, "request complete")
}

// teardown finalizes one connection exactly once: deregister from the
// poller, drop from the registry and fd index, return the buffer slot, then
// close the socket. BeginClose arbitrates concurrent callers.
func (s *Server) teardown(c *conn.Connection, reason string) {
	if !c.BeginClose() {
		return
	}

	if err := s.poller.Remove(c.FD()); err != nil {
		// Parked fds are not registered, so a missing-fd error is routine.
		s.log.Debugf("deregister fd %d: %v", c.FD(), err)
	}

	if h := c.Handle(); h.Valid() {
		s.registry.Remove(h)
	}

	s.mu.Lock()
	delete(s.conns, c.FD())
	s.mu.Unlock()

	if b := c.TakeBuffer(); b != nil {
		b.Release()
	}

	if err := socket.Close(c.FD()); err != nil {
		s.log.Debugf("close fd %d: %v", c.FD(), err)
	}

	s.log.Debugf("closed %s (%s): %s", c.ID(), c.RemoteAddr(), reason)
}

// sweep tears down connections that sat quiet past their timeout and emits
// the periodic stats line.
func (s *Server) sweep(now time.Time) {
	expired := s.registry.SweepIdle(now, s.cfg.IdleTimeout(), s.cfg.KeepAliveTimeout())
	for _, c := range expired {
		s.teardown(c, "idle timeout")
	}
	s.logStats()
}

func (s *Server) logStats() {
	st := s.Stats()
	s.refreshMetrics(st)
	s.log.Infof("stats: conns=%d queue=%d buffers=%d/%d accepted=%d rejected=%d processed=%d",
		st.ActiveConnections, st.QueueDepth, st.Pool.InUse, st.Pool.Capacity,
		st.Accepted, st.Rejected, st.Processed)
}
