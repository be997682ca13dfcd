// File: conn/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package conn

import (
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/camcore/api"
	"github.com/momentics/camcore/internal/socket"
	"github.com/momentics/camcore/pool"
)

// State tracks a connection through its request lifecycle.
type State int32

const (
	StateReadingHeaders State = iota
	StateReadingBody
	StateProcessing
	StateWriting
	StateKeepAlive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateReadingHeaders:
		return "reading-headers"
	case StateReadingBody:
		return "reading-body"
	case StateProcessing:
		return "processing"
	case StateWriting:
		return "writing"
	case StateKeepAlive:
		return "keep-alive"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Disposition is a processor's verdict on one request round.
type Disposition int

const (
	// DispositionClose tears the connection down after the current round.
	DispositionClose Disposition = iota
	// DispositionKeepAlive re-arms the connection for the next request.
	DispositionKeepAlive
)

// RequestScratch holds the protocol layer's parse results for the request
// currently buffered: request line fields plus the content length once the
// headers are in. camcore never interprets these; processors fill them while
// parsing and they reset with the rest of the per-request state.
type RequestScratch struct {
	Method        string
	Path          string
	Proto         string
	ContentLength int64
}

// Connection owns one accepted socket plus its receive buffer slot.
//
// Custody rules: the dispatcher hands a connection to the work queue by
// winning MarkInFlight and releases custody with ClearInFlight after the
// worker's verdict is applied. Plain fields (used, keepAlives, buf, handle,
// scratch) are only touched by the current custodian; cross-goroutine
// visibility of those writes rides on the inflight and state atomics.
type Connection struct {
	fd     int
	id     string
	remote string

	handle Handle

	buf     *pool.Buffer
	used    int
	scratch RequestScratch

	keepAlives int

	state        atomic.Int32
	inflight     atomic.Bool
	lastActivity atomic.Int64 // unix nanos
}

// New wraps an accepted socket. The buffer slot must already be acquired;
// the connection owns it until teardown.
func New(fd int, remote string, buf *pool.Buffer) *Connection {
	c := &Connection{
		fd:     fd,
		id:     uuid.NewString(),
		remote: remote,
		buf:    buf,
	}
	c.state.Store(int32(StateReadingHeaders))
	c.Touch()
	return c
}

// FD returns the socket file descriptor.
func (c *Connection) FD() int { return c.fd }

// ID returns the trace id assigned at accept time.
func (c *Connection) ID() string { return c.id }

// RemoteAddr returns the peer address captured at accept time.
func (c *Connection) RemoteAddr() string { return c.remote }

// Handle returns the registry slot handle assigned by Insert.
func (c *Connection) Handle() Handle { return c.handle }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// SetState records a lifecycle transition.
func (c *Connection) SetState(s State) { c.state.Store(int32(s)) }

// BeginClose claims teardown. Exactly one caller wins; losers must not touch
// the connection's resources again.
func (c *Connection) BeginClose() bool {
	for {
		s := c.state.Load()
		if State(s) == StateClosing {
			return false
		}
		if c.state.CompareAndSwap(s, int32(StateClosing)) {
			return true
		}
	}
}

// MarkInFlight claims queue/worker custody. False means custody is already
// taken, so the caller must not enqueue again.
func (c *Connection) MarkInFlight() bool { return c.inflight.CompareAndSwap(false, true) }

// ClearInFlight releases queue/worker custody.
func (c *Connection) ClearInFlight() { c.inflight.Store(false) }

// InFlight reports queue/worker custody. The idle sweep skips such
// connections.
func (c *Connection) InFlight() bool { return c.inflight.Load() }

// Touch records activity now.
func (c *Connection) Touch() { c.lastActivity.Store(time.Now().UnixNano()) }

// LastActivity returns the time of the most recent Touch.
func (c *Connection) LastActivity() time.Time { return time.Unix(0, c.lastActivity.Load()) }

// IdleFor returns how long the connection has been quiet as of now.
func (c *Connection) IdleFor(now time.Time) time.Duration { return now.Sub(c.LastActivity()) }

// Buffer returns the receive buffer slot, nil after TakeBuffer.
func (c *Connection) Buffer() *pool.Buffer { return c.buf }

// TakeBuffer detaches the buffer for return to the pool during teardown.
func (c *Connection) TakeBuffer() *pool.Buffer {
	b := c.buf
	c.buf = nil
	return b
}

// Data returns the request bytes buffered so far.
func (c *Connection) Data() []byte {
	if c.buf == nil {
		return nil
	}
	return c.buf.Bytes()[:c.used]
}

// Used returns the number of buffered request bytes.
func (c *Connection) Used() int { return c.used }

// Consume discards the first n buffered bytes, keeping any remainder for
// the next processing round. Processors use it to retire answered requests
// while a trailing partial one stays buffered.
func (c *Connection) Consume(n int) {
	if n <= 0 || c.buf == nil {
		return
	}
	if n >= c.used {
		c.used = 0
		return
	}
	copy(c.buf.Bytes(), c.buf.Bytes()[n:c.used])
	c.used -= n
}

// Scratch exposes the per-request parse scratch for the processor to fill.
func (c *Connection) Scratch() *RequestScratch { return &c.scratch }

// ResetForNextRequest clears buffered data and parse scratch between
// keep-alive rounds.
func (c *Connection) ResetForNextRequest() {
	c.used = 0
	c.scratch = RequestScratch{}
	c.SetState(StateKeepAlive)
}

// KeepAlives returns the number of completed keep-alive rounds.
func (c *Connection) KeepAlives() int { return c.keepAlives }

// IncKeepAlives counts a completed round and returns the new total.
func (c *Connection) IncKeepAlives() int {
	c.keepAlives++
	return c.keepAlives
}

// ReadAvailable drains the socket into the receive buffer until the kernel
// reports no more data, appending after previously buffered bytes. With
// edge-triggered readiness the socket must be drained fully on every wake,
// which is exactly what this does. Returns the bytes added. io.EOF means the
// peer finished sending; api.ErrBufferFull means the request exceeds the
// buffer slot.
func (c *Connection) ReadAvailable() (int, error) {
	if c.buf == nil {
		return 0, io.EOF
	}
	total := 0
	for {
		room := c.buf.Bytes()[c.used:]
		if len(room) == 0 {
			return total, api.ErrBufferFull
		}
		n, err := socket.Read(c.fd, room)
		if n > 0 {
			c.used += n
			total += n
			c.Touch()
			continue
		}
		if err == nil {
			return total, io.EOF
		}
		if socket.Interrupted(err) {
			continue
		}
		if socket.WouldBlock(err) {
			return total, nil
		}
		return total, fmt.Errorf("read fd %d: %w", c.fd, err)
	}
}

// Write sends p fully, retrying interrupted and would-block writes. Control
// plane responses are small, so a stalled peer only delays its own worker.
func (c *Connection) Write(p []byte) (int, error) {
	sent := 0
	for sent < len(p) {
		n, err := socket.Write(c.fd, p[sent:])
		if n > 0 {
			sent += n
			c.Touch()
			continue
		}
		if err != nil {
			if socket.Interrupted(err) {
				continue
			}
			if socket.WouldBlock(err) {
				runtime.Gosched()
				continue
			}
			return sent, fmt.Errorf("write fd %d: %w", c.fd, err)
		}
		return sent, io.ErrShortWrite
	}
	return sent, nil
}
