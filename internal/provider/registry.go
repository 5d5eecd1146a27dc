// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package provider

import (
	"sync"
	"sync/atomic"
	"time"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/aegis-dev/aegis/pkg/health"
)

// Config describes how a registered provider participates in selection.
type Config struct {
	Enabled bool
	// Priority orders providers for the priority strategy; lower is tried
	// first.
	Priority int
	// Weight orders providers for the weighted strategy; higher wins.
	Weight int
	// CostPerToken in USD feeds the least_cost strategy and the composite
	// score's cost penalty.
	CostPerToken float64
	// Quality in [0,1] feeds the best_quality strategy.
	Quality float64
	// MaxConcurrency bounds in-flight calls; 0 = unbounded.
	MaxConcurrency int
	// RateLimit bounds calls per wall-clock minute; 0 = unbounded.
	RateLimit int
	// Languages the provider handles well. Empty means no declared
	// capability either way.
	Languages []string
	// HealthCooldown overrides DefaultHealthCooldown when positive.
	HealthCooldown time.Duration
}

// Validate rejects values selection cannot work with.
func (c Config) Validate() error {
	if c.Priority < 0 {
		return aegiserr.Errorf(aegiserr.CodeProviderConfigInvalid,
			"priority must be non-negative, got %d", c.Priority)
	}
	if c.Weight < 0 {
		return aegiserr.Errorf(aegiserr.CodeProviderConfigInvalid,
			"weight must be non-negative, got %d", c.Weight)
	}
	if c.CostPerToken < 0 {
		return aegiserr.Errorf(aegiserr.CodeProviderConfigInvalid,
			"cost_per_token must be non-negative, got %g", c.CostPerToken)
	}
	if c.Quality < 0 || c.Quality > 1 {
		return aegiserr.Errorf(aegiserr.CodeProviderConfigInvalid,
			"quality must be within [0,1], got %g", c.Quality)
	}
	if c.MaxConcurrency < 0 {
		return aegiserr.Errorf(aegiserr.CodeProviderConfigInvalid,
			"max_concurrency must be non-negative, got %d", c.MaxConcurrency)
	}
	if c.RateLimit < 0 {
		return aegiserr.Errorf(aegiserr.CodeProviderConfigInvalid,
			"rate_limit must be non-negative, got %d", c.RateLimit)
	}
	return nil
}

// Registration couples an adapter with its selection config and observed
// runtime state. Enabled flips atomically at runtime; everything else in the
// config is immutable after Register.
type Registration struct {
	provider Provider
	cfg      Config

	enabled  atomic.Bool
	stats    Stats
	tracker  *HealthTracker
	inflight atomic.Int64
	window   rateWindow

	nowFunc func() time.Time
}

func newRegistration(p Provider, cfg Config) *Registration {
	r := &Registration{
		provider: p,
		cfg:      cfg,
		tracker:  NewHealthTracker(cfg.HealthCooldown),
		nowFunc:  time.Now,
	}
	r.enabled.Store(cfg.Enabled)
	return r
}

func (r *Registration) Name() string           { return r.provider.Name() }
func (r *Registration) Provider() Provider     { return r.provider }
func (r *Registration) Config() Config         { return r.cfg }
func (r *Registration) Enabled() bool          { return r.enabled.Load() }
func (r *Registration) SetEnabled(on bool)     { r.enabled.Store(on) }
func (r *Registration) Stats() *Stats          { return &r.stats }
func (r *Registration) Health() *HealthTracker { return r.tracker }
func (r *Registration) InFlight() int64        { return r.inflight.Load() }

// SetNowFunc overrides the time source (for testing). It also rewires the
// health tracker's clock.
func (r *Registration) SetNowFunc(fn func() time.Time) {
	r.nowFunc = fn
	r.tracker.SetNowFunc(fn)
}

// Begin marks a call in flight and counts it against the per-minute window.
// Pair with exactly one End.
func (r *Registration) Begin() {
	r.inflight.Add(1)
	r.window.Incr(r.nowFunc())
}

// End releases the in-flight slot.
func (r *Registration) End() {
	r.inflight.Add(-1)
}

// RecordSuccess folds a completed call into stats and the health tracker.
func (r *Registration) RecordSuccess(latency time.Duration, costUSD float64) {
	r.stats.RecordSuccess(latency, costUSD, r.nowFunc())
	r.tracker.RecordSuccess()
}

// RecordFailure folds a failed call into stats and the health tracker.
func (r *Registration) RecordFailure(latency time.Duration) {
	r.stats.RecordFailure(latency, r.nowFunc())
	r.tracker.RecordFailure()
}

// Saturated reports whether the provider is at its concurrency or rate
// bound. Saturated providers are scored as unhealthy instead of queued;
// shedding to the next candidate beats building a backlog here.
func (r *Registration) Saturated() bool {
	if r.cfg.MaxConcurrency > 0 && r.inflight.Load() >= int64(r.cfg.MaxConcurrency) {
		return true
	}
	if r.cfg.RateLimit > 0 && r.window.Count(r.nowFunc()) >= r.cfg.RateLimit {
		return true
	}
	return false
}

// Usable reports whether selection may consider this registration at all.
func (r *Registration) Usable() bool {
	return r.Enabled()
}

// Snapshot returns the ops-surface view of this registration.
func (r *Registration) Snapshot() health.ProviderStatus {
	s := health.ProviderStatus{
		Name:         r.Name(),
		Enabled:      r.Enabled(),
		Healthy:      r.tracker.IsHealthy(),
		Saturated:    r.Saturated(),
		Priority:     r.cfg.Priority,
		Weight:       r.cfg.Weight,
		CostPerToken: r.cfg.CostPerToken,
		Quality:      r.cfg.Quality,
		Requests:     r.stats.Requests(),
		Successes:    r.stats.Successes(),
		Failures:     r.stats.Failures(),
		TotalCostUSD: r.stats.TotalCost(),
		InFlight:     r.InFlight(),
	}

	if rate, ok := r.stats.SuccessRate(); ok {
		s.SuccessRate = rate
	}
	if avg, ok := r.stats.AvgLatency(); ok {
		s.AvgLatencyMS = avg.Milliseconds()
	}
	if last, ok := r.stats.LastUsed(); ok {
		t := last
		s.LastUsed = &t
	}
	if until, ok := r.tracker.CooldownUntil(); ok {
		t := until
		s.CooldownUntil = &t
	}
	return s
}

// Registry holds all registered providers in registration order.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Registration
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Registration)}
}

// Register adds a provider under its adapter name. Names are unique;
// registering a duplicate is a conflict.
func (reg *Registry) Register(p Provider, cfg Config) (*Registration, error) {
	if p == nil {
		return nil, aegiserr.New(aegiserr.CodeProviderConfigInvalid, "provider must not be nil")
	}
	name := p.Name()
	if name == "" {
		return nil, aegiserr.New(aegiserr.CodeProviderConfigInvalid, "provider name must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, aegiserr.With(err, aegiserr.FieldProvider(name))
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.byName[name]; exists {
		return nil, aegiserr.Errorf(aegiserr.CodeProviderConflict,
			"provider %q already registered", name)
	}

	r := newRegistration(p, cfg)
	reg.byName[name] = r
	reg.order = append(reg.order, name)
	return r, nil
}

// Get returns the named registration.
func (reg *Registry) Get(name string) (*Registration, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.byName[name]
	if !ok {
		return nil, aegiserr.New(aegiserr.CodeProviderNotFound,
			"no provider named "+name,
			aegiserr.FieldProvider(name),
		)
	}
	return r, nil
}

// List returns all registrations in registration order.
func (reg *Registry) List() []*Registration {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]*Registration, 0, len(reg.order))
	for _, name := range reg.order {
		out = append(out, reg.byName[name])
	}
	return out
}

// Enabled returns the enabled registrations in registration order.
func (reg *Registry) Enabled() []*Registration {
	all := reg.List()
	out := make([]*Registration, 0, len(all))
	for _, r := range all {
		if r.Enabled() {
			out = append(out, r)
		}
	}
	return out
}

// SetEnabled flips a provider's participation at runtime.
func (reg *Registry) SetEnabled(name string, on bool) error {
	r, err := reg.Get(name)
	if err != nil {
		return err
	}
	r.SetEnabled(on)
	return nil
}

// ResetStats zeroes the named provider's counters.
func (reg *Registry) ResetStats(name string) error {
	r, err := reg.Get(name)
	if err != nil {
		return err
	}
	r.Stats().Reset()
	return nil
}

// Snapshot returns per-provider status in registration order.
func (reg *Registry) Snapshot() []health.ProviderStatus {
	all := reg.List()
	out := make([]health.ProviderStatus, 0, len(all))
	for _, r := range all {
		out = append(out, r.Snapshot())
	}
	return out
}
