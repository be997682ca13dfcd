// File: fake/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scripted readiness source for tests. Provides predictable, controllable
// behavior for the reactor.Poller contract without touching epoll.

package fake

import (
	"fmt"
	"sync"
	"time"

	"github.com/momentics/camcore/api"
	"github.com/momentics/camcore/reactor"
)

// Poller implements reactor.Poller from a script. Tests Push events and the
// next Wait delivers them; Add and Remove are recorded per fd so tests can
// assert park and re-arm behavior.
type Poller struct {
	mu      sync.Mutex
	pending []reactor.Event
	adds    map[int]int
	removes map[int]int
	addErr  error
	closed  bool
	notify  chan struct{}
}

// NewPoller creates an empty scripted poller.
func NewPoller() *Poller {
	return &Poller{
		adds:    make(map[int]int),
		removes: make(map[int]int),
		notify:  make(chan struct{}, 1),
	}
}

// Push appends scripted events and wakes a blocked Wait.
func (p *Poller) Push(evs ...reactor.Event) {
	p.mu.Lock()
	p.pending = append(p.pending, evs...)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// FailAdds makes subsequent Add calls return err. nil restores success.
func (p *Poller) FailAdds(err error) {
	p.mu.Lock()
	p.addErr = err
	p.mu.Unlock()
}

// Adds returns how many times fd was registered.
func (p *Poller) Adds(fd int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adds[fd]
}

// Removes returns how many times fd was deregistered.
func (p *Poller) Removes(fd int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removes[fd]
}

// Armed reports whether fd is currently registered.
func (p *Poller) Armed(fd int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adds[fd] > p.removes[fd]
}

// Add implements reactor.Poller.
func (p *Poller) Add(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrPollerClosed
	}
	if p.addErr != nil {
		return p.addErr
	}
	p.adds[fd]++
	return nil
}

// Remove implements reactor.Poller. Like epoll, removing an fd that is not
// registered is an error.
func (p *Poller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrPollerClosed
	}
	if p.adds[fd] <= p.removes[fd] {
		return fmt.Errorf("fake poller: fd %d not registered", fd)
	}
	p.removes[fd]++
	return nil
}

// Wait implements reactor.Poller. It delivers pending scripted events, or
// blocks until Push or the timeout. Events are delivered as scripted, with
// no registration filtering; the script is the source of truth.
func (p *Poller) Wait(events []reactor.Event, timeout time.Duration) (int, error) {
	deadline := time.After(timeout)
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, api.ErrPollerClosed
		}
		if len(p.pending) > 0 {
			n := copy(events, p.pending)
			p.pending = p.pending[n:]
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()

		select {
		case <-p.notify:
		case <-deadline:
			return 0, nil
		}
	}
}

// Close implements reactor.Poller. A closed poller refuses all further work
// and wakes any blocked Wait.
func (p *Poller) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return api.ErrPollerClosed
	}
	p.closed = true
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}
