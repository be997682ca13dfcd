// File: server/dispatcher_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Custody-cycle tests driven through a scripted poller: readiness parking,
// verdict handling, hangups, sweeps, and the failure branches that real
// sockets make awkward to reach.

package server

import (
	"errors"
	"testing"
	"time"

	"github.com/momentics/camcore/conn"
	"github.com/momentics/camcore/fake"
	"github.com/momentics/camcore/logging"
	"github.com/momentics/camcore/reactor"
	"github.com/momentics/camcore/workers"
)

// newTestServer wires a server around a scripted poller without a listening
// socket. The worker pool is attached the way Start would. The processor
// behaves like a real one: a keep-alive verdict marks the request done by
// resetting the connection first.
func newTestServer(t *testing.T, cfg Config, verdict conn.Disposition) (*Server, *fake.Poller) {
	t.Helper()
	fp := fake.NewPoller()
	proc := workers.ProcessorFunc(func(c *conn.Connection) conn.Disposition {
		if verdict == conn.DispositionKeepAlive {
			c.ResetForNextRequest()
		}
		return verdict
	})
	s, err := New(cfg, proc, WithPoller(fp), WithLogger(logging.Nop))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wp, err := workers.NewPool(workers.Config{Workers: 1, Logger: logging.Nop}, proc, s.complete)
	if err != nil {
		t.Fatalf("workers.NewPool: %v", err)
	}
	s.workers = wp
	s.lifecycle.Store(lifecycleRunning)
	t.Cleanup(wp.Stop)
	return s, fp
}

// addConn registers a fake-fd connection the way acceptLoop would.
func addConn(t *testing.T, s *Server, fp *fake.Poller, fd int) *conn.Connection {
	t.Helper()
	b, ok := s.bufs.Acquire()
	if !ok {
		t.Fatal("buffer acquire failed")
	}
	c := conn.New(fd, "172.16.0.9:52000", b)
	if _, ok := s.registry.Insert(c); !ok {
		t.Fatal("registry insert failed")
	}
	if err := fp.Add(fd); err != nil {
		t.Fatalf("poller add: %v", err)
	}
	s.mu.Lock()
	s.conns[fd] = c
	s.mu.Unlock()
	return c
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", d)
}

func TestReadableEventParksAndRearms(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionKeepAlive)
	c := addConn(t, s, fp, -100)

	s.handleEvent(reactor.Event{FD: -100, Readable: true})

	waitFor(t, 2*time.Second, func() bool { return fp.Adds(-100) == 2 })
	if fp.Removes(-100) != 1 {
		t.Fatalf("fd parked %d times, want 1", fp.Removes(-100))
	}
	if c.InFlight() {
		t.Fatal("custody not released after verdict")
	}
	if c.KeepAlives() != 1 {
		t.Fatalf("keep-alive rounds = %d, want 1", c.KeepAlives())
	}
	if c.State() != conn.StateKeepAlive {
		t.Fatalf("state = %v, want keep-alive", c.State())
	}
	if s.registry.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", s.registry.Len())
	}
}

func TestCloseVerdictTearsDown(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionClose)
	addConn(t, s, fp, -101)

	s.handleEvent(reactor.Event{FD: -101, Readable: true})

	waitFor(t, 2*time.Second, func() bool { return s.registry.Len() == 0 })
	waitFor(t, 2*time.Second, func() bool { return s.bufs.Stats().InUse == 0 })
	if fp.Armed(-101) {
		t.Fatal("fd still registered after teardown")
	}
	s.mu.Lock()
	_, live := s.conns[-101]
	s.mu.Unlock()
	if live {
		t.Fatal("fd index still holds the connection")
	}
}

func TestKeepAliveLimitCloses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepAliveMax = 2
	s, fp := newTestServer(t, cfg, conn.DispositionKeepAlive)
	addConn(t, s, fp, -102)

	s.handleEvent(reactor.Event{FD: -102, Readable: true})
	waitFor(t, 2*time.Second, func() bool { return fp.Adds(-102) == 2 })

	s.handleEvent(reactor.Event{FD: -102, Readable: true})
	waitFor(t, 2*time.Second, func() bool { return s.registry.Len() == 0 })

	if got := s.processed.Load(); got != 2 {
		t.Fatalf("processed = %d, want 2", got)
	}
	if s.bufs.Stats().InUse != 0 {
		t.Fatal("buffer not returned after keep-alive limit close")
	}
}

func TestIncompleteRequestDoesNotCountKeepAlive(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionKeepAlive)
	c := addConn(t, s, fp, -99)

	// A round that leaves the connection mid-request: custody returns and
	// the fd re-arms, but no keep-alive round is charged.
	if !c.MarkInFlight() {
		t.Fatal("could not claim custody")
	}
	if err := fp.Remove(-99); err != nil {
		t.Fatalf("park: %v", err)
	}
	c.SetState(conn.StateReadingBody)
	s.complete(c, conn.DispositionKeepAlive)

	if c.KeepAlives() != 0 {
		t.Fatalf("keep-alive rounds = %d, want 0", c.KeepAlives())
	}
	if c.State() != conn.StateReadingBody {
		t.Fatalf("state = %v, want reading-body", c.State())
	}
	if c.InFlight() {
		t.Fatal("custody not released")
	}
	if !fp.Armed(-99) {
		t.Fatal("fd not re-armed for the rest of the request")
	}
}

func TestHangupTearsDownWithoutWorker(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionKeepAlive)
	addConn(t, s, fp, -103)

	s.handleEvent(reactor.Event{FD: -103, Hangup: true})

	if s.registry.Len() != 0 {
		t.Fatal("hangup did not tear the connection down")
	}
	if got := s.processed.Load(); got != 0 {
		t.Fatalf("hangup scheduled a worker, processed = %d", got)
	}
	if s.bufs.Stats().InUse != 0 {
		t.Fatal("buffer not returned on hangup")
	}
}

func TestUnknownFDIsIgnored(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), conn.DispositionClose)

	s.handleEvent(reactor.Event{FD: -999, Readable: true})

	if got := s.processed.Load(); got != 0 {
		t.Fatalf("stale event reached a worker, processed = %d", got)
	}
}

func TestInFlightConnectionNotRequeued(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionKeepAlive)
	c := addConn(t, s, fp, -104)
	if !c.MarkInFlight() {
		t.Fatal("could not claim custody")
	}

	s.handleEvent(reactor.Event{FD: -104, Readable: true})

	time.Sleep(50 * time.Millisecond)
	if got := s.processed.Load(); got != 0 {
		t.Fatalf("in-flight connection was requeued, processed = %d", got)
	}
	if fp.Removes(-104) != 0 {
		t.Fatal("in-flight connection was parked again")
	}
}

func TestStoppedQueueTearsDown(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionKeepAlive)
	addConn(t, s, fp, -105)
	s.workers.Stop()

	s.handleEvent(reactor.Event{FD: -105, Readable: true})

	if s.registry.Len() != 0 {
		t.Fatal("connection survived a closed queue")
	}
	if s.bufs.Stats().InUse != 0 {
		t.Fatal("buffer not returned after queue rejection")
	}
}

func TestReArmFailureTearsDown(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionKeepAlive)
	addConn(t, s, fp, -106)
	fp.FailAdds(errors.New("no room"))

	s.handleEvent(reactor.Event{FD: -106, Readable: true})

	waitFor(t, 2*time.Second, func() bool { return s.registry.Len() == 0 })
	if s.bufs.Stats().InUse != 0 {
		t.Fatal("buffer not returned after re-arm failure")
	}
}

func TestSweepClosesIdleConnections(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionClose)
	idle := addConn(t, s, fp, -107)
	kept := addConn(t, s, fp, -108)
	kept.SetState(conn.StateKeepAlive)

	// Fresh connections survive a sweep at the keep-alive horizon, except
	// those already parked in keep-alive state.
	s.sweep(time.Now().Add(s.cfg.KeepAliveTimeout() + time.Second))
	if s.registry.Len() != 1 {
		t.Fatalf("registry len = %d after keep-alive sweep, want 1", s.registry.Len())
	}
	if kept.State() != conn.StateClosing {
		t.Fatal("quiet keep-alive connection not closed")
	}

	// Past the idle horizon everything quiet goes.
	s.sweep(time.Now().Add(s.cfg.IdleTimeout() + time.Second))
	if s.registry.Len() != 0 {
		t.Fatalf("registry len = %d after idle sweep, want 0", s.registry.Len())
	}
	if idle.State() != conn.StateClosing {
		t.Fatal("idle connection not closed")
	}
	if s.bufs.Stats().InUse != 0 {
		t.Fatal("buffers not returned by sweep teardowns")
	}
}

func TestSweepSkipsInFlightConnections(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionClose)
	c := addConn(t, s, fp, -109)
	if !c.MarkInFlight() {
		t.Fatal("could not claim custody")
	}

	s.sweep(time.Now().Add(s.cfg.IdleTimeout() + time.Minute))

	if s.registry.Len() != 1 {
		t.Fatal("sweep closed a connection in worker custody")
	}
}

func TestCompleteDuringShutdownCloses(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionKeepAlive)
	c := addConn(t, s, fp, -110)
	if !c.MarkInFlight() {
		t.Fatal("could not claim custody")
	}
	s.lifecycle.Store(lifecycleStopped)

	s.complete(c, conn.DispositionKeepAlive)

	if s.registry.Len() != 0 {
		t.Fatal("keep-alive verdict survived shutdown")
	}
	if fp.Adds(-110) != 1 {
		t.Fatalf("fd re-armed during shutdown, adds = %d", fp.Adds(-110))
	}
}

func TestTeardownIsExactlyOnce(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionClose)
	c := addConn(t, s, fp, -111)

	s.teardown(c, "test")
	s.teardown(c, "test")

	if got := fp.Removes(-111); got != 1 {
		t.Fatalf("poller deregistered %d times, want 1", got)
	}
	if s.bufs.Stats().InUse != 0 {
		t.Fatal("buffer not returned")
	}
	if s.registry.Len() != 0 {
		t.Fatal("registry entry survived teardown")
	}
}

func TestStatsSnapshot(t *testing.T) {
	s, fp := newTestServer(t, DefaultConfig(), conn.DispositionClose)
	addConn(t, s, fp, -112)
	addConn(t, s, fp, -113)

	st := s.Stats()
	if st.ActiveConnections != 2 {
		t.Fatalf("active = %d, want 2", st.ActiveConnections)
	}
	if st.Pool.InUse != 2 {
		t.Fatalf("buffers in use = %d, want 2", st.Pool.InUse)
	}
	if st.Workers != 1 {
		t.Fatalf("workers = %d, want 1", st.Workers)
	}
	if st.ActiveWorkers != 1 {
		t.Fatalf("active workers = %d, want 1", st.ActiveWorkers)
	}

	s.refreshMetrics(st)
	if got := s.Metrics().Get("connections_active"); got != 2 {
		t.Fatalf("connections_active metric = %d, want 2", got)
	}
}
