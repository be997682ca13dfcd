// control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread-safe store of the server's effective settings, readable by the
// daemon's management handlers while the server runs.

package control

import (
	"sync"
)

// ConfigStore is a dynamic key/value map with atomic snapshot and listener
// support. The server publishes its effective configuration here at startup;
// management surfaces read it without reaching into server internals.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:    make(map[string]any),
		listeners: make([]func(), 0),
	}
}

// Snapshot returns a copy of all config values.
func (cs *ConfigStore) Snapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// Get returns one config value and whether it is present.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// Publish merges new values and notifies listeners.
func (cs *ConfigStore) Publish(values map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for k, v := range values {
		cs.config[k] = v
	}
	cs.dispatchUpdate()
}

// OnUpdate registers a listener hook called after each Publish.
func (cs *ConfigStore) OnUpdate(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchUpdate invokes all listeners.
func (cs *ConfigStore) dispatchUpdate() {
	for _, fn := range cs.listeners {
		go fn()
	}
}
