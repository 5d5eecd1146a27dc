// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package breaker

import (
	"sync"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/aegis-dev/aegis/pkg/health"
)

// Manager owns one breaker per dependency name. Get is lazy and idempotent,
// so callers never coordinate creation; snapshots iterate in creation order.
type Manager struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	order     []string
	defaults  Config
	overrides map[string]Config
	listeners []Listener
}

// NewManager creates a manager whose breakers use defaults unless a
// per-name override is set before the breaker's first Get.
func NewManager(defaults Config) *Manager {
	return &Manager{
		breakers:  make(map[string]*Breaker),
		overrides: make(map[string]Config),
		defaults:  defaults.withDefaults(),
	}
}

// SetConfig sets a per-name config override. It has no effect on a breaker
// that already exists.
func (m *Manager) SetConfig(name string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[name] = cfg.withDefaults()
}

// Get returns the breaker for name, creating it on first use. Registered
// transition listeners carry over to breakers created later.
func (m *Manager) Get(name string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[name]; ok {
		return b
	}

	cfg := m.defaults
	if override, ok := m.overrides[name]; ok {
		cfg = override
	}

	b := New(name, cfg)
	for _, l := range m.listeners {
		b.OnTransition(l)
	}
	m.breakers[name] = b
	m.order = append(m.order, name)
	return b
}

// Lookup returns the breaker for name without creating it.
func (m *Manager) Lookup(name string) (*Breaker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[name]
	return b, ok
}

// OnTransition registers a listener on every breaker, existing and future.
func (m *Manager) OnTransition(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
	for _, b := range m.breakers {
		b.OnTransition(l)
	}
}

// ForceReset closes the named breaker.
func (m *Manager) ForceReset(name string) error {
	b, ok := m.Lookup(name)
	if !ok {
		return aegiserr.New(aegiserr.CodeBreakerNotFound,
			"no circuit breaker named "+name,
			aegiserr.FieldBreaker(name),
		)
	}
	b.ForceReset()
	return nil
}

// ResetOpen force-closes every breaker not currently closed and reports how
// many it touched. Recovery routines call this after a dependency comes back.
func (m *Manager) ResetOpen() int {
	reset := 0
	for _, b := range m.all() {
		if b.State() != StateClosed {
			b.ForceReset()
			reset++
		}
	}
	return reset
}

// Snapshot returns per-breaker status in creation order.
func (m *Manager) Snapshot() []health.BreakerStatus {
	all := m.all()
	out := make([]health.BreakerStatus, 0, len(all))
	for _, b := range all {
		out = append(out, b.Snapshot())
	}
	return out
}

func (m *Manager) all() []*Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Breaker, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.breakers[name])
	}
	return out
}
