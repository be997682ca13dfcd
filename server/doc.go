// File: server/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package server assembles the control-plane listener: a nonblocking
// listening socket, an edge-triggered poller, a fixed receive buffer pool,
// a generation-checked connection registry, and a bounded worker pool, all
// driven by one dispatcher goroutine.
//
// Connections move through a strict custody cycle. The dispatcher accepts
// and registers them, and on readiness parks the fd off the poller and
// enqueues the connection for exactly one worker. The worker's verdict
// either re-arms the fd for the next keep-alive round or tears the
// connection down. Teardown always runs the same sequence: poller
// deregistration, registry removal, buffer return, socket close.
//
// Typical embedding:
//
//	cfg, err := server.LoadConfig("/etc/camcore/server.yaml")
//	if err != nil { ... }
//	srv, err := server.New(cfg, proc)
//	if err != nil { ... }
//	if err := srv.Start(); err != nil { ... }
//	defer srv.Stop()
package server
