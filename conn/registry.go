// File: conn/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package conn

import (
	"sync"
	"time"

	"github.com/momentics/camcore/logging"
)

// Handle identifies a registry slot. The generation makes handles left over
// from a slot's previous occupant inert.
type Handle struct {
	index int
	gen   uint64
}

// Valid reports whether h was issued by an Insert. The zero Handle is not.
func (h Handle) Valid() bool { return h.gen != 0 }

type slot struct {
	gen  uint64
	conn *Connection
}

// Registry tracks live connections in a generation-checked slot arena.
// Slots are recycled through a free list; a slot's generation is bumped on
// every insert, so a Remove with a stale handle is a no-op.
type Registry struct {
	mu      sync.Mutex
	slots   []slot
	freeIdx []int
	count   int
	limit   int
	log     logging.Logger
}

// NewRegistry builds an empty registry. limit <= 0 means unbounded;
// admission control normally belongs to the buffer pool, not here.
func NewRegistry(limit int, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{limit: limit, log: logger}
}

// Insert registers c and stamps its Handle. False means the registry is at
// its limit and the caller must shed the connection.
func (r *Registry) Insert(c *Connection) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit > 0 && r.count >= r.limit {
		return Handle{}, false
	}

	var idx int
	if n := len(r.freeIdx); n > 0 {
		idx = r.freeIdx[n-1]
		r.freeIdx = r.freeIdx[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		idx = len(r.slots) - 1
	}

	s := &r.slots[idx]
	s.gen++ // generation 0 is never issued
	s.conn = c
	r.count++

	h := Handle{index: idx, gen: s.gen}
	c.handle = h
	return h, true
}

// Remove releases h's slot and returns its connection. Stale handles and
// repeated removes return nil.
func (r *Registry) Remove(h Handle) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.index < 0 || h.index >= len(r.slots) {
		return nil
	}
	s := &r.slots[h.index]
	if s.conn == nil || s.gen != h.gen {
		return nil
	}

	c := s.conn
	s.conn = nil
	r.freeIdx = append(r.freeIdx, h.index)
	r.count--
	return c
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// ForEach visits every live connection under the registry lock. fn must not
// call back into the registry. Returning false stops the walk.
func (r *Registry) ForEach(fn func(*Connection) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		if c := r.slots[i].conn; c != nil {
			if !fn(c) {
				return
			}
		}
	}
}

// SweepIdle collects connections whose last activity predates their timeout.
// Keep-alive connections expire on the shorter keepAlive bound; connections
// in worker custody are skipped. Entries stay registered until the caller
// finishes teardown, which removes them in the usual order.
func (r *Registry) SweepIdle(now time.Time, idle, keepAlive time.Duration) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*Connection
	for i := range r.slots {
		c := r.slots[i].conn
		if c == nil || c.InFlight() {
			continue
		}
		limit := idle
		if c.State() == StateKeepAlive {
			limit = keepAlive
		}
		if c.IdleFor(now) >= limit {
			expired = append(expired, c)
		}
	}
	return expired
}
