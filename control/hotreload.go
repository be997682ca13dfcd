// File: control/hotreload.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide reload hooks. The camera daemon triggers them on SIGHUP
// after re-reading its config file, so subsystems can pick up tunables
// that are safe to change at runtime.

package control

import "sync"

var (
	reloadMu    sync.Mutex
	reloadHooks []func()
)

// RegisterReloadHook adds a component reload listener. Hooks run in
// registration order.
func RegisterReloadHook(fn func()) {
	reloadMu.Lock()
	defer reloadMu.Unlock()
	reloadHooks = append(reloadHooks, fn)
}

// TriggerHotReload dispatches all reload hooks asynchronously.
func TriggerHotReload() {
	reloadMu.Lock()
	hooks := append([]func(){}, reloadHooks...)
	reloadMu.Unlock()
	for _, fn := range hooks {
		go fn()
	}
}

// TriggerHotReloadSync invokes all reload hooks synchronously, for callers
// that need the new state applied before continuing.
func TriggerHotReloadSync() {
	reloadMu.Lock()
	hooks := append([]func(){}, reloadHooks...)
	reloadMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
