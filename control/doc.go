// Package control
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime introspection layer between the network core and the daemon's
// management surfaces.
//
// Provides concurrent-safe state handling primitives including:
//   - A metrics registry of named counters and gauges refreshed by the server
//   - An effective-configuration store with snapshot reads and update hooks
package control
