// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed receive-buffer arena for the camera daemon's network core.
// Every buffer is preallocated at startup; exhaustion surfaces as a failed
// Acquire and the caller sheds load instead of allocating. Statistics and
// availability are kept under one lock so snapshots are always consistent.
package pool
