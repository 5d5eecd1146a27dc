// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package health runs periodic checks against the gateway's moving parts,
// keeps a bounded alert log, and drives automatic recovery after sustained
// unhealthiness. The serializable report types live in pkg/health; this
// package owns the loop.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	healthpkg "github.com/aegis-dev/aegis/pkg/health"
)

// Defaults for Config fields left at zero.
const (
	DefaultInterval             = 30 * time.Second
	DefaultProbeTimeout         = 5 * time.Second
	DefaultFailureRateThreshold = 0.5
	DefaultLatencyThreshold     = 10 * time.Second
	DefaultConsecutiveFailures  = 3
	DefaultAlertCapacity        = 256
	DefaultAutoResolveAfter     = 10 * time.Minute
	DefaultRecoveryThreshold    = 3
	DefaultRecoveryAttempts     = 3
	DefaultRecoverySettle       = 5 * time.Second
)

// Config tunes the monitor loop, alerting thresholds, and recovery.
type Config struct {
	// Interval between check cycles.
	Interval time.Duration
	// ProbeTimeout bounds each probe unless its check overrides it.
	ProbeTimeout time.Duration
	// FailureRateThreshold in (0,1]: windowed failure fraction that raises a
	// threshold alert.
	FailureRateThreshold float64
	// LatencyThreshold: windowed average probe latency that raises a
	// threshold alert.
	LatencyThreshold time.Duration
	// ConsecutiveFailures raising a threshold alert.
	ConsecutiveFailures int
	// AlertCapacity bounds the alert ring.
	AlertCapacity int
	// AutoResolveAfter resolves lingering alerts without operator action.
	AutoResolveAfter time.Duration
	// RecoveryThreshold is the run of unhealthy cycles that triggers
	// recovery.
	RecoveryThreshold int
	// RecoveryAttempts bounds one recovery run.
	RecoveryAttempts int
	// RecoverySettle is the wait between recovery actions and the re-probe.
	RecoverySettle time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:             DefaultInterval,
		ProbeTimeout:         DefaultProbeTimeout,
		FailureRateThreshold: DefaultFailureRateThreshold,
		LatencyThreshold:     DefaultLatencyThreshold,
		ConsecutiveFailures:  DefaultConsecutiveFailures,
		AlertCapacity:        DefaultAlertCapacity,
		AutoResolveAfter:     DefaultAutoResolveAfter,
		RecoveryThreshold:    DefaultRecoveryThreshold,
		RecoveryAttempts:     DefaultRecoveryAttempts,
		RecoverySettle:       DefaultRecoverySettle,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		c.FailureRateThreshold = DefaultFailureRateThreshold
	}
	if c.LatencyThreshold <= 0 {
		c.LatencyThreshold = DefaultLatencyThreshold
	}
	if c.ConsecutiveFailures <= 0 {
		c.ConsecutiveFailures = DefaultConsecutiveFailures
	}
	if c.AlertCapacity <= 0 {
		c.AlertCapacity = DefaultAlertCapacity
	}
	if c.AutoResolveAfter <= 0 {
		c.AutoResolveAfter = DefaultAutoResolveAfter
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = DefaultRecoveryThreshold
	}
	if c.RecoveryAttempts <= 0 {
		c.RecoveryAttempts = DefaultRecoveryAttempts
	}
	if c.RecoverySettle < 0 {
		c.RecoverySettle = DefaultRecoverySettle
	}
	return c
}

// RecoveryAction is one named remediation step run during recovery.
type RecoveryAction struct {
	Name string
	Run  func(ctx context.Context) error
}

// Monitor owns the check cycle. Construct with New, register checks and
// recovery actions, then either call RunCycle yourself or hand Run a
// context. Safe for concurrent use.
type Monitor struct {
	cfg    Config
	log    *slog.Logger
	alerts *alertLog

	mu              sync.Mutex
	checks          map[string]*checkState
	order           []string
	healthy         bool
	unhealthyCycles int
	recoveries      []RecoveryAction
	nowFunc         func() time.Time
}

// New builds a monitor. The gateway starts optimistic: healthy until a cycle
// says otherwise.
func New(cfg Config, log *slog.Logger) *Monitor {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		cfg:     cfg,
		log:     log,
		alerts:  newAlertLog(cfg.AlertCapacity, cfg.AutoResolveAfter),
		checks:  make(map[string]*checkState),
		healthy: true,
		nowFunc: time.Now,
	}
}

// SetNowFunc replaces the clock. Test hook.
func (m *Monitor) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.nowFunc = fn
	m.mu.Unlock()
}

func (m *Monitor) now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowFunc()
}

// AddCheck registers a named probe. Names must be unique.
func (m *Monitor) AddCheck(name string, probe Probe, cfg CheckConfig) error {
	if strings.TrimSpace(name) == "" {
		return aegiserr.New(aegiserr.CodeConfigValidateInvalidValue, "check name must not be blank")
	}
	if probe == nil {
		return aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue, "check %s has no probe", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checks[name]; exists {
		return aegiserr.Errorf(aegiserr.CodeConfigAlreadyExists, "check %q already registered", name)
	}
	m.checks[name] = newCheckState(name, probe, cfg)
	m.order = append(m.order, name)
	return nil
}

// SetCheckEnabled pauses or resumes a check. Disabled checks keep their
// history but neither run nor count toward overall health.
func (m *Monitor) SetCheckEnabled(name string, on bool) error {
	m.mu.Lock()
	c, ok := m.checks[name]
	m.mu.Unlock()
	if !ok {
		return aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue, "unknown check %q", name)
	}
	c.enabled.Store(on)
	return nil
}

// AddRecovery appends a remediation step run, in registration order, when
// sustained unhealthiness triggers recovery.
func (m *Monitor) AddRecovery(name string, run func(ctx context.Context) error) {
	if run == nil {
		return
	}
	m.mu.Lock()
	m.recoveries = append(m.recoveries, RecoveryAction{Name: name, Run: run})
	m.mu.Unlock()
}

// Healthy is the overall verdict as of the last cycle.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// Run cycles until ctx is done. The first cycle runs immediately so health
// is known at startup rather than one interval later.
func (m *Monitor) Run(ctx context.Context) {
	m.RunCycle(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle probes every enabled check once, re-evaluates overall health, and
// kicks off recovery when unhealthiness has persisted long enough.
func (m *Monitor) RunCycle(ctx context.Context) {
	for _, c := range m.checkList() {
		if ctx.Err() != nil {
			return
		}
		if !c.enabled.Load() {
			continue
		}
		m.runCheck(ctx, c)
	}

	overall, failed := m.computeOverall()
	cycles := m.setOverall(overall, failed)

	if !overall && cycles >= m.cfg.RecoveryThreshold && m.hasRecoveries() {
		m.recover(ctx)
		m.mu.Lock()
		m.unhealthyCycles = 0
		m.mu.Unlock()
	}
}

func (m *Monitor) runCheck(ctx context.Context, c *checkState) {
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = m.cfg.ProbeTimeout
	}

	start := m.now()
	err := runProbe(ctx, c.name, c.probe, timeout)
	latency := m.now().Sub(start)

	d := c.record(err, latency, m.now(),
		m.cfg.ConsecutiveFailures, m.cfg.FailureRateThreshold, m.cfg.LatencyThreshold)

	if d.failed {
		m.log.Debug("health check failed", "check", c.name, "consecutive", d.consecutive, "error", err)
	}

	severity := healthpkg.SeverityWarning
	if c.cfg.Critical {
		severity = healthpkg.SeverityCritical
	}
	now := m.now()

	if d.crossedConsecutive {
		m.raise(now, healthpkg.AlertThresholdViolation, severity,
			fmt.Sprintf("check %s failed %d times in a row", c.name, d.consecutive),
			map[string]any{"check": c.name, "metric": "consecutive_failures", "value": d.consecutive})
	}
	if d.crossedFailureRate {
		m.raise(now, healthpkg.AlertThresholdViolation, severity,
			fmt.Sprintf("check %s failure rate %.0f%% exceeds %.0f%%",
				c.name, d.failureRate*100, m.cfg.FailureRateThreshold*100),
			map[string]any{"check": c.name, "metric": "failure_rate", "value": d.failureRate})
	}
	if d.crossedLatency {
		m.raise(now, healthpkg.AlertThresholdViolation, severity,
			fmt.Sprintf("check %s average latency %s exceeds %s",
				c.name, d.avgLatency.Round(time.Millisecond), m.cfg.LatencyThreshold),
			map[string]any{"check": c.name, "metric": "avg_latency_ms", "value": d.avgLatency.Milliseconds()})
	}
}

// computeOverall is healthy iff no enabled check is unhealthy. Critical
// checks shape alert severity rather than the verdict; any enabled failure
// already forces unhealthy.
func (m *Monitor) computeOverall() (bool, []string) {
	var failed []string
	overall := true
	for _, c := range m.checkList() {
		if !c.enabled.Load() {
			continue
		}
		if !c.lastHealthy() {
			overall = false
			failed = append(failed, c.name)
		}
	}
	return overall, failed
}

// setOverall records the verdict, maintains the unhealthy-cycle run, and
// alerts on transitions. Returns the current unhealthy run length.
func (m *Monitor) setOverall(overall bool, failed []string) int {
	m.mu.Lock()
	was := m.healthy
	m.healthy = overall
	if overall {
		m.unhealthyCycles = 0
	} else {
		m.unhealthyCycles++
	}
	cycles := m.unhealthyCycles
	m.mu.Unlock()

	if was == overall {
		return cycles
	}

	now := m.now()
	if overall {
		m.log.Info("gateway healthy again")
		m.raise(now, healthpkg.AlertHealthStatusChange, healthpkg.SeverityInfo, "gateway healthy again", nil)
	} else {
		m.log.Warn("gateway unhealthy", "failed_checks", failed)
		m.raise(now, healthpkg.AlertHealthStatusChange, healthpkg.SeverityCritical,
			fmt.Sprintf("gateway unhealthy: %s", strings.Join(failed, ", ")),
			map[string]any{"failed_checks": failed})
	}
	return cycles
}

func (m *Monitor) hasRecoveries() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recoveries) > 0
}

func (m *Monitor) recoveryList() []RecoveryAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecoveryAction, len(m.recoveries))
	copy(out, m.recoveries)
	return out
}

// recover runs the registered actions, settles, and re-probes, up to the
// configured number of attempts.
func (m *Monitor) recover(ctx context.Context) {
	m.log.Warn("starting recovery", "max_attempts", m.cfg.RecoveryAttempts)

	for attempt := 1; attempt <= m.cfg.RecoveryAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		for _, action := range m.recoveryList() {
			if err := action.Run(ctx); err != nil {
				m.log.Warn("recovery action failed",
					"action", action.Name, "attempt", attempt, "error", err)
			} else {
				m.log.Info("recovery action ran", "action", action.Name, "attempt", attempt)
			}
		}

		if err := sleepCtx(ctx, m.cfg.RecoverySettle); err != nil {
			return
		}

		if m.reprobe(ctx) {
			m.log.Info("recovery succeeded", "attempt", attempt)
			m.raise(m.now(), healthpkg.AlertRecoverySuccess, healthpkg.SeverityInfo,
				fmt.Sprintf("recovery succeeded after %d attempt(s)", attempt),
				map[string]any{"attempts": attempt})
			m.setOverall(true, nil)
			return
		}
	}

	m.log.Error("recovery failed", "attempts", m.cfg.RecoveryAttempts)
	m.raise(m.now(), healthpkg.AlertRecoveryFailed, healthpkg.SeverityCritical,
		fmt.Sprintf("recovery failed after %d attempts", m.cfg.RecoveryAttempts),
		map[string]any{"attempts": m.cfg.RecoveryAttempts})
}

// reprobe reruns every enabled check and reports whether the gateway came
// back. It leaves the overall verdict alone; the caller decides what the
// outcome means.
func (m *Monitor) reprobe(ctx context.Context) bool {
	for _, c := range m.checkList() {
		if ctx.Err() != nil {
			return false
		}
		if !c.enabled.Load() {
			continue
		}
		m.runCheck(ctx, c)
	}
	overall, _ := m.computeOverall()
	return overall
}

func (m *Monitor) checkList() []*checkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*checkState, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.checks[name])
	}
	return out
}

func (m *Monitor) raise(now time.Time, typ, severity, msg string, details map[string]any) {
	a := m.alerts.Raise(now, typ, severity, msg, details)
	m.log.Debug("alert raised", "id", a.ID, "type", typ, "severity", severity, "message", msg)
}

// Resolve marks an alert resolved by id.
func (m *Monitor) Resolve(id string) error {
	return m.alerts.Resolve(m.now(), id)
}

// Alerts returns the retained alerts newest first.
func (m *Monitor) Alerts() []healthpkg.Alert {
	return m.alerts.List(m.now())
}

// Snapshot reports overall health, per-check status in registration order,
// and the retained alerts.
func (m *Monitor) Snapshot() healthpkg.HealthReport {
	list := m.checkList()
	checks := make([]healthpkg.CheckStatus, 0, len(list))
	for _, c := range list {
		checks = append(checks, c.snapshot())
	}

	m.mu.Lock()
	healthy := m.healthy
	m.mu.Unlock()

	return healthpkg.HealthReport{
		Healthy: healthy,
		Checks:  checks,
		Alerts:  m.alerts.List(m.now()),
	}
}

// sleepCtx waits for d or ctx, whichever ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
