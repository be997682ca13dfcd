// File: api/stats.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Statistics snapshot types reported by camcore components.

package api

// BufferPoolStats is a point-in-time snapshot of the receive buffer arena.
// Available+InUse always equals Capacity.
type BufferPoolStats struct {
	Capacity   int
	BufferSize int
	Available  int
	InUse      int
	Hits       uint64
	Misses     uint64
	PeakInUse  int
}

// Utilization returns the in-use fraction in [0,1].
func (s BufferPoolStats) Utilization() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.InUse) / float64(s.Capacity)
}

// ServerStats aggregates the server-wide counters with the pool snapshot.
// Accepted counts connections admitted past the buffer arena; Rejected counts
// connections closed at accept time because no buffer was available.
type ServerStats struct {
	Pool BufferPoolStats

	ActiveConnections int
	QueueDepth        int
	Workers           int
	ActiveWorkers     int

	Accepted  uint64
	Rejected  uint64
	Processed uint64
}
