// Copyright 2025 The Tideflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runmanager enforces that at most one run of a given workflow
// name is live at a time, and lets that run be cancelled cooperatively.
package runmanager

import (
	"context"
	"fmt"
	"sync"
)

// entry tracks one live run's cancellation plumbing.
type entry struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Manager is a name-keyed registry of in-flight runs. The zero value is
// not usable; construct with New.
type Manager struct {
	mu      sync.Mutex
	running map[string]*entry
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{running: make(map[string]*entry)}
}

// Register derives a cancellable context from parent for workflow name
// and records it as running. It returns an error if name already has a
// live run — at most one run per workflow name may be in flight.
func (m *Manager) Register(parent context.Context, name string) (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.running[name]; exists {
		return nil, fmt.Errorf("workflow %q is already running", name)
	}

	runCtx, cancel := context.WithCancel(parent)
	m.running[name] = &entry{cancel: cancel, done: make(chan struct{})}
	return runCtx, nil
}

// Unregister removes name from the registry. It is idempotent: calling
// it for a name with no live run is a no-op.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.running[name]
	if !ok {
		return
	}
	e.once.Do(func() { close(e.done) })
	delete(m.running, name)
}

// IsRunning reports whether name currently has a live run registered.
func (m *Manager) IsRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[name]
	return ok
}

// Cancel requests cooperative cancellation of name's live run by
// cancelling its derived context. It returns false if name has no live
// run to cancel.
func (m *Manager) Cancel(name string) bool {
	m.mu.Lock()
	e, ok := m.running[name]
	m.mu.Unlock()
	if !ok {
		return false
	}
	e.once.Do(func() {
		e.cancel()
		close(e.done)
	})
	return true
}

// Names returns the workflow names currently registered as running.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.running))
	for name := range m.running {
		names = append(names, name)
	}
	return names
}
