// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package health

import "time"

// BreakerStatus is a point-in-time snapshot of one circuit breaker, safe to
// serialize to JSON for the ops API and CLI.
type BreakerStatus struct {
	Name            string     `json:"name"`
	State           string     `json:"state"`
	FailureCount    int        `json:"failure_count"`
	SuccessCount    int        `json:"success_count"`
	NextAttemptAt   *time.Time `json:"next_attempt_at,omitempty"`
	Requests        int64      `json:"requests"`
	Rejections      int64      `json:"rejections"`
	Failures        int64      `json:"failures"`
	Successes       int64      `json:"successes"`
	StateChanges    int64      `json:"state_changes"`
	AvgResponseMS   int64      `json:"avg_response_ms"`
	LastTransition  *time.Time `json:"last_transition,omitempty"`
	LastChangeCause string     `json:"last_change_cause,omitempty"`
}

// ProviderStatus is a point-in-time snapshot of one provider registration.
type ProviderStatus struct {
	Name          string     `json:"name"`
	Enabled       bool       `json:"enabled"`
	Healthy       bool       `json:"healthy"`
	Saturated     bool       `json:"saturated"`
	Priority      int        `json:"priority"`
	Weight        int        `json:"weight"`
	CostPerToken  float64    `json:"cost_per_token"`
	Quality       float64    `json:"quality"`
	Requests      int64      `json:"requests"`
	Successes     int64      `json:"successes"`
	Failures      int64      `json:"failures"`
	SuccessRate   float64    `json:"success_rate"`
	AvgLatencyMS  int64      `json:"avg_latency_ms"`
	TotalCostUSD  float64    `json:"total_cost_usd"`
	InFlight      int64      `json:"in_flight"`
	LastUsed      *time.Time `json:"last_used,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// CacheStats summarizes response-cache effectiveness.
type CacheStats struct {
	Entries         int     `json:"entries"`
	MaxEntries      int     `json:"max_entries"`
	Hits            int64   `json:"hits"`
	SimilarityHits  int64   `json:"similarity_hits"`
	SemanticHits    int64   `json:"semantic_hits"`
	Misses          int64   `json:"misses"`
	Evictions       int64   `json:"evictions"`
	Expirations     int64   `json:"expirations"`
	SemanticErrors  int64   `json:"semantic_errors"`
	HitRate         float64 `json:"hit_rate"`
	EstSavedUSD     float64 `json:"est_saved_usd"`
	LastSweepUnixMS int64   `json:"last_sweep_unix_ms,omitempty"`
}

// Alert severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert types emitted by the health monitor.
const (
	AlertHealthStatusChange = "HEALTH_STATUS_CHANGE"
	AlertThresholdViolation = "THRESHOLD_VIOLATION"
	AlertRecoverySuccess    = "RECOVERY_SUCCESS"
	AlertRecoveryFailed     = "RECOVERY_FAILED"
)

// Alert is one monitor-raised event kept in the bounded alert log.
type Alert struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	At         time.Time      `json:"at"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// CheckStatus is a point-in-time snapshot of one registered health check.
type CheckStatus struct {
	Name                string     `json:"name"`
	Critical            bool       `json:"critical"`
	Healthy             bool       `json:"healthy"`
	Runs                int64      `json:"runs"`
	Failures            int64      `json:"failures"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FailureRate         float64    `json:"failure_rate"`
	AvgLatencyMS        int64      `json:"avg_latency_ms"`
	LastRun             *time.Time `json:"last_run,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

// HealthReport is the monitor's full snapshot.
type HealthReport struct {
	Healthy bool          `json:"healthy"`
	Checks  []CheckStatus `json:"checks"`
	Alerts  []Alert       `json:"alerts"`
}

// Aggregates are gateway-wide rolling figures.
type Aggregates struct {
	Requests          int64   `json:"requests"`
	SuccessRate       float64 `json:"success_rate"`
	AvgLatencyMS      int64   `json:"avg_latency_ms"`
	RequestsPerMinute float64 `json:"requests_per_minute"`
	RollingCostUSD    float64 `json:"rolling_cost_usd"`
}

// Snapshot is the complete operational view served by /api/v1/status.
type Snapshot struct {
	Status     string           `json:"status"`
	UptimeSecs int64            `json:"uptime_secs"`
	Aggregates Aggregates       `json:"aggregates"`
	Providers  []ProviderStatus `json:"providers"`
	Breakers   []BreakerStatus  `json:"breakers"`
	Cache      *CacheStats      `json:"cache,omitempty"`
	Health     HealthReport     `json:"health"`
}
