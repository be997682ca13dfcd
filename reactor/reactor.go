// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral readiness interface the dispatcher drives.

package reactor

import "time"

// Event is one readiness notification.
type Event struct {
	FD       int
	Readable bool
	// Hangup covers peer close and socket error conditions; the dispatcher
	// tears such connections down without scheduling a worker.
	Hangup bool
}

// Poller multiplexes socket readiness. Registrations are edge-triggered:
// a readable socket must be drained to EAGAIN before the next event fires.
//
// Add and Remove are safe from any goroutine; Wait belongs to the single
// dispatcher goroutine.
type Poller interface {
	// Add registers fd for read readiness and hangup notification.
	Add(fd int) error

	// Remove deregisters fd. Removing an fd that is not registered is an
	// error the caller may ignore; it happens on teardown of parked
	// connections.
	Remove(fd int) error

	// Wait fills events and returns the count. The timeout bounds the wait
	// so the caller can run periodic work; zero events after the timeout is
	// the normal quiet-system outcome. Interrupted waits are retried
	// internally.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Close releases the poller. Further calls return api.ErrPollerClosed.
	Close() error
}
