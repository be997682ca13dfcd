//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub factory for platforms without epoll.

package reactor

import (
	"fmt"

	"github.com/momentics/camcore/api"
)

// NewPoller returns an error off Linux; the daemon only ships there.
func NewPoller() (Poller, error) {
	return nil, fmt.Errorf("reactor: %w", api.ErrNotSupported)
}
