// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error values shared across the camcore library.

package api

import "fmt"

// Common errors used across the library. Resource exhaustion of the receive
// buffer arena is deliberately not represented here: running out of buffers
// is an admission-control outcome reported through counters, not an error.
var (
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrNotSupported    = fmt.Errorf("operation not supported on this platform")
	ErrAlreadyRunning  = fmt.Errorf("server already running")
	ErrStopped         = fmt.Errorf("server already stopped")
	ErrPollerClosed    = fmt.Errorf("poller is closed")
	ErrBufferFull      = fmt.Errorf("receive buffer full")
)
