// Package conn
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection objects and the live-connection registry.
//
// A Connection owns exactly one accepted socket and one receive buffer slot.
// Custody of a connection moves between the dispatcher, the work queue, and
// a worker goroutine; the registry tracks all live connections in a
// generation-checked slot arena so stale handles are inert and the periodic
// idle sweep never races worker custody.
package conn
