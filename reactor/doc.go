// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness abstraction behind the dispatcher: an edge-triggered epoll Poller on Linux and a stub elsewhere.
package reactor
