// Package workers
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded worker pool that drains the dispatcher's work queue of readable
// connections. Workers wake on enqueue but never sleep unbounded, so a stop
// request is observed within one wake interval even on an idle system.
// Queue order is FIFO: connections are served in arrival order.
package workers
