// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-slot receive buffer arena. All memory is allocated once at
// construction; under load the pool rejects, it never grows.

package pool

import (
	"fmt"
	"sync"

	"github.com/momentics/camcore/api"
	"github.com/momentics/camcore/logging"
)

// Defaults sized for the camera daemon's control plane: enough to serve a
// burst of ONVIF clients while keeping worst-case memory fixed.
const (
	DefaultCapacity     = 50
	DefaultBufferSize   = 32 * 1024
	DefaultWarnFraction = 0.9

	// MinBufferSize is the smallest useful receive buffer. Request heads
	// below this cannot hold a full request line plus headers.
	MinBufferSize = 1024
)

// Config carries the arena dimensions.
type Config struct {
	Capacity     int
	BufferSize   int
	WarnFraction float64
	Logger       logging.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:     DefaultCapacity,
		BufferSize:   DefaultBufferSize,
		WarnFraction: DefaultWarnFraction,
	}
}

// Buffer is a handle to one arena slot. It is valid from Acquire until the
// matching Release and must not be retained afterwards.
type Buffer struct {
	data []byte
	idx  int
	pool *Pool
}

// Bytes exposes the slot's full backing slice. Contents are unspecified on
// acquire; callers track their own fill level.
func (b *Buffer) Bytes() []byte { return b.data }

// Size returns the slot size in bytes.
func (b *Buffer) Size() int { return len(b.data) }

// Release returns the buffer to its pool. Safe on nil.
func (b *Buffer) Release() {
	if b != nil && b.pool != nil {
		b.pool.Release(b)
	}
}

// Pool is the fixed arena. Acquire and Release are linearized under a single
// mutex together with all statistics, so counters and the availability map
// can never disagree.
type Pool struct {
	mu        sync.Mutex
	slots     [][]byte
	free      []bool
	available int

	hits   uint64
	misses uint64
	peak   int

	warnAt    int
	aboveWarn bool

	size int
	log  logging.Logger
}

// New allocates every slot up front. The arena never grows or shrinks
// afterwards.
func New(cfg Config) (*Pool, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("buffer pool: %w: capacity %d", api.ErrInvalidArgument, cfg.Capacity)
	}
	if cfg.BufferSize < MinBufferSize {
		return nil, fmt.Errorf("buffer pool: %w: buffer size %d below minimum %d",
			api.ErrInvalidArgument, cfg.BufferSize, MinBufferSize)
	}
	if cfg.WarnFraction <= 0 || cfg.WarnFraction > 1 {
		cfg.WarnFraction = DefaultWarnFraction
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	p := &Pool{
		slots:     make([][]byte, cfg.Capacity),
		free:      make([]bool, cfg.Capacity),
		available: cfg.Capacity,
		size:      cfg.BufferSize,
		log:       cfg.Logger,
	}
	backing := make([]byte, cfg.Capacity*cfg.BufferSize)
	for i := range p.slots {
		p.slots[i] = backing[i*cfg.BufferSize : (i+1)*cfg.BufferSize : (i+1)*cfg.BufferSize]
		p.free[i] = true
	}

	// Warn when utilization reaches the configured fraction of capacity.
	p.warnAt = int(float64(cfg.Capacity) * cfg.WarnFraction)
	if p.warnAt < 1 {
		p.warnAt = 1
	}
	return p, nil
}

// Acquire claims a free slot. The second return is false when the arena is
// exhausted; that is the admission-control signal, not an error.
func (p *Pool) Acquire() (*Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, free := range p.free {
		if !free {
			continue
		}
		p.free[i] = false
		p.available--
		p.hits++

		inUse := len(p.slots) - p.available
		if inUse > p.peak {
			p.peak = inUse
		}
		if inUse >= p.warnAt && !p.aboveWarn {
			p.aboveWarn = true
			p.log.Warnf("buffer pool high water: %d/%d buffers in use", inUse, len(p.slots))
		}
		return &Buffer{data: p.slots[i], idx: i, pool: p}, true
	}

	p.misses++
	return nil, false
}

// Release returns a slot to the arena. A handle from another pool or a slot
// that is already free is logged and ignored; neither corrupts accounting.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if b.pool != p || b.idx < 0 || b.idx >= len(p.slots) {
		p.log.Warnf("buffer pool: release of foreign buffer ignored")
		return
	}
	if p.free[b.idx] {
		p.log.Warnf("buffer pool: duplicate release of slot %d ignored", b.idx)
		return
	}

	p.free[b.idx] = true
	p.available++
	if len(p.slots)-p.available < p.warnAt {
		p.aboveWarn = false
	}
}

// Capacity returns the number of slots.
func (p *Pool) Capacity() int { return len(p.slots) }

// BufferSize returns the size of each slot in bytes.
func (p *Pool) BufferSize() int { return p.size }

// Stats returns a consistent snapshot.
func (p *Pool) Stats() api.BufferPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return api.BufferPoolStats{
		Capacity:   len(p.slots),
		BufferSize: p.size,
		Available:  p.available,
		InUse:      len(p.slots) - p.available,
		Hits:       p.hits,
		Misses:     p.misses,
		PeakInUse:  p.peak,
	}
}
