// File: workers/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package workers

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/camcore/api"
	"github.com/momentics/camcore/conn"
	"github.com/momentics/camcore/logging"
)

const (
	DefaultWorkers      = 8
	MaxWorkers          = 32
	DefaultWakeInterval = time.Second
	DefaultJoinTimeout  = 2 * time.Second
)

// Processor handles one readable connection and returns its verdict. It runs
// on a worker goroutine and owns the connection for the duration of the call.
//
// A keep-alive verdict re-arms the connection for further readiness. When the
// current request is fully answered, the processor calls ResetForNextRequest
// before returning; left mid-request, the buffered bytes survive the round
// and the next readiness event appends to them.
type Processor interface {
	Process(c *conn.Connection) conn.Disposition
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc func(c *conn.Connection) conn.Disposition

func (f ProcessorFunc) Process(c *conn.Connection) conn.Disposition { return f(c) }

// Completion receives the verdict after processing. It runs on the worker
// goroutine and is where the server re-arms or tears down the connection.
type Completion func(c *conn.Connection, d conn.Disposition)

// Config carries the pool dimensions.
type Config struct {
	Workers      int
	WakeInterval time.Duration
	JoinTimeout  time.Duration
	Logger       logging.Logger
}

// Pool runs a fixed set of worker goroutines over an unbounded FIFO queue of
// connection references. The queue never blocks the dispatcher; backpressure
// on the system comes from the buffer arena, not from here.
type Pool struct {
	cfg  Config
	proc Processor
	done Completion

	mu sync.Mutex
	q  *queue.Queue

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	alive      atomic.Int32
	workerDone []chan struct{}

	log logging.Logger
}

// NewPool validates the config and spawns the workers. A worker count above
// the hard cap is clamped with a warning; zero or negative takes the default.
func NewPool(cfg Config, proc Processor, done Completion) (*Pool, error) {
	if proc == nil {
		return nil, fmt.Errorf("worker pool: %w: nil processor", api.ErrInvalidArgument)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Workers > MaxWorkers {
		cfg.Logger.Warnf("worker pool: %d workers requested, clamping to %d", cfg.Workers, MaxWorkers)
		cfg.Workers = MaxWorkers
	}
	if cfg.WakeInterval <= 0 {
		cfg.WakeInterval = DefaultWakeInterval
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}

	p := &Pool{
		cfg:        cfg,
		proc:       proc,
		done:       done,
		q:          queue.New(),
		wake:       make(chan struct{}, cfg.Workers),
		stop:       make(chan struct{}),
		workerDone: make([]chan struct{}, cfg.Workers),
		log:        cfg.Logger,
	}
	for i := range p.workerDone {
		ch := make(chan struct{})
		p.workerDone[i] = ch
		p.alive.Add(1)
		go p.worker(i, ch)
	}
	return p, nil
}

// Enqueue appends c and wakes one idle worker. Enqueueing the same
// connection twice yields two processing rounds; callers that need
// exclusivity gate on the connection's in-flight flag. Returns false once
// Stop has begun.
func (p *Pool) Enqueue(c *conn.Connection) bool {
	if p.stopped.Load() {
		return false
	}
	p.mu.Lock()
	p.q.Add(c)
	p.mu.Unlock()

	// One wake token per enqueue. A full channel means enough workers are
	// already awake; they drain the queue before sleeping again.
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

func (p *Pool) worker(idx int, done chan struct{}) {
	defer close(done)
	defer p.alive.Add(-1)

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		if c, ok := p.dequeue(); ok {
			p.dispatch(c)
			continue
		}

		// Bounded wait so the stop signal is observed even without wakeups.
		select {
		case <-p.stop:
			return
		case <-p.wake:
		case <-time.After(p.cfg.WakeInterval):
		}
	}
}

func (p *Pool) dequeue() (*conn.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.q.Length() == 0 {
		return nil, false
	}
	return p.q.Remove().(*conn.Connection), true
}

func (p *Pool) dispatch(c *conn.Connection) {
	d := conn.DispositionClose
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Errorf("worker: processor panic on conn %s: %v", c.ID(), r)
			}
		}()
		c.SetState(conn.StateProcessing)
		d = p.proc.Process(c)
	}()
	if p.done != nil {
		p.done(c, d)
	}
}

// Stop signals every worker and joins each with a bounded timeout. A worker
// that fails to exit in time is abandoned and reported; Go offers no forced
// cancellation. Queued but unprocessed connections are dropped here and torn
// down by the server with the rest of the registry.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.stop)

		for i, done := range p.workerDone {
			select {
			case <-done:
			case <-time.After(p.cfg.JoinTimeout):
				p.log.Errorf("worker pool: worker %d did not stop within %v, abandoning",
					i, p.cfg.JoinTimeout)
			}
		}

		p.mu.Lock()
		dropped := p.q.Length()
		for p.q.Length() > 0 {
			p.q.Remove()
		}
		p.mu.Unlock()
		if dropped > 0 {
			p.log.Warnf("worker pool: stopped with %d queued connections unprocessed", dropped)
		}
	})
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return len(p.workerDone) }

// ActiveWorkers returns the number of live worker goroutines.
func (p *Pool) ActiveWorkers() int { return int(p.alive.Load()) }

// QueueDepth returns the number of connections waiting for a worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}
