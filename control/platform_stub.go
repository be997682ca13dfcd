//go:build !linux

// File: control/platform_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import "runtime"

// RegisterPlatformProbes registers the portable subset on platforms the
// daemon does not ship on.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
}
