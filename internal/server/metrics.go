// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerMetrics mounts /metrics backed by a server-owned registry. Gateway
// figures are exported as const metrics read from the snapshot on scrape, so
// no counters need updating on the request path.
func (s *Server) registerMetrics() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newSnapshotCollector(s.services),
	)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

// snapshotCollector exports the gateway snapshot and health report in
// Prometheus exposition format.
type snapshotCollector struct {
	services *Services

	uptime       *prometheus.Desc
	requests     *prometheus.Desc
	successRatio *prometheus.Desc
	avgLatency   *prometheus.Desc
	perMinute    *prometheus.Desc
	rollingCost  *prometheus.Desc

	providerRequests  *prometheus.Desc
	providerFailures  *prometheus.Desc
	providerInFlight  *prometheus.Desc
	providerLatency   *prometheus.Desc
	providerCost      *prometheus.Desc
	providerEnabled   *prometheus.Desc
	providerHealthy   *prometheus.Desc
	providerSaturated *prometheus.Desc

	breakerState        *prometheus.Desc
	breakerRequests     *prometheus.Desc
	breakerRejections   *prometheus.Desc
	breakerFailures     *prometheus.Desc
	breakerStateChanges *prometheus.Desc

	cacheEntries        *prometheus.Desc
	cacheHits           *prometheus.Desc
	cacheSimilarityHits *prometheus.Desc
	cacheSemanticHits   *prometheus.Desc
	cacheMisses         *prometheus.Desc
	cacheEvictions      *prometheus.Desc
	cacheExpirations    *prometheus.Desc
	cacheHitRatio       *prometheus.Desc
	cacheSavedUSD       *prometheus.Desc

	healthy          *prometheus.Desc
	checkHealthy     *prometheus.Desc
	checkFailures    *prometheus.Desc
	checkFailureRate *prometheus.Desc
	checkLatency     *prometheus.Desc
	alertsUnresolved *prometheus.Desc
}

func newSnapshotCollector(svc *Services) *snapshotCollector {
	return &snapshotCollector{
		services: svc,

		uptime:       prometheus.NewDesc("aegis_uptime_seconds", "Seconds since the gateway started.", nil, nil),
		requests:     prometheus.NewDesc("aegis_requests_total", "Requests answered since start.", nil, nil),
		successRatio: prometheus.NewDesc("aegis_request_success_ratio", "Fraction of requests answered successfully.", nil, nil),
		avgLatency:   prometheus.NewDesc("aegis_request_avg_latency_ms", "Average request latency in milliseconds.", nil, nil),
		perMinute:    prometheus.NewDesc("aegis_requests_per_minute", "Requests per minute over the rolling window.", nil, nil),
		rollingCost:  prometheus.NewDesc("aegis_rolling_cost_usd", "Spend in USD over the rolling window.", nil, nil),

		providerRequests:  prometheus.NewDesc("aegis_provider_requests_total", "Requests routed to the provider.", []string{"provider"}, nil),
		providerFailures:  prometheus.NewDesc("aegis_provider_failures_total", "Failed requests per provider.", []string{"provider"}, nil),
		providerInFlight:  prometheus.NewDesc("aegis_provider_in_flight", "Concurrent requests currently held by the provider.", []string{"provider"}, nil),
		providerLatency:   prometheus.NewDesc("aegis_provider_avg_latency_ms", "Average provider latency in milliseconds.", []string{"provider"}, nil),
		providerCost:      prometheus.NewDesc("aegis_provider_cost_usd_total", "Total spend in USD per provider.", []string{"provider"}, nil),
		providerEnabled:   prometheus.NewDesc("aegis_provider_enabled", "1 when the provider is administratively enabled.", []string{"provider"}, nil),
		providerHealthy:   prometheus.NewDesc("aegis_provider_healthy", "1 when the provider is considered healthy.", []string{"provider"}, nil),
		providerSaturated: prometheus.NewDesc("aegis_provider_saturated", "1 when the provider is at its concurrency or rate cap.", []string{"provider"}, nil),

		breakerState:        prometheus.NewDesc("aegis_breaker_state", "Breaker state: 0 closed, 1 half-open, 2 open.", []string{"breaker"}, nil),
		breakerRequests:     prometheus.NewDesc("aegis_breaker_requests_total", "Calls admitted through the breaker.", []string{"breaker"}, nil),
		breakerRejections:   prometheus.NewDesc("aegis_breaker_rejections_total", "Calls rejected while the breaker was open.", []string{"breaker"}, nil),
		breakerFailures:     prometheus.NewDesc("aegis_breaker_failures_total", "Failures recorded by the breaker.", []string{"breaker"}, nil),
		breakerStateChanges: prometheus.NewDesc("aegis_breaker_state_changes_total", "Breaker state transitions since start.", []string{"breaker"}, nil),

		cacheEntries:        prometheus.NewDesc("aegis_cache_entries", "Live entries in the response cache.", nil, nil),
		cacheHits:           prometheus.NewDesc("aegis_cache_hits_total", "Exact-match cache hits.", nil, nil),
		cacheSimilarityHits: prometheus.NewDesc("aegis_cache_similarity_hits_total", "Similarity-tier cache hits.", nil, nil),
		cacheSemanticHits:   prometheus.NewDesc("aegis_cache_semantic_hits_total", "Semantic-tier cache hits.", nil, nil),
		cacheMisses:         prometheus.NewDesc("aegis_cache_misses_total", "Cache lookups that missed every tier.", nil, nil),
		cacheEvictions:      prometheus.NewDesc("aegis_cache_evictions_total", "Entries evicted to stay under capacity.", nil, nil),
		cacheExpirations:    prometheus.NewDesc("aegis_cache_expirations_total", "Entries dropped after their TTL lapsed.", nil, nil),
		cacheHitRatio:       prometheus.NewDesc("aegis_cache_hit_ratio", "Fraction of lookups answered from cache.", nil, nil),
		cacheSavedUSD:       prometheus.NewDesc("aegis_cache_est_saved_usd", "Estimated USD saved by cache hits.", nil, nil),

		healthy:          prometheus.NewDesc("aegis_healthy", "1 when every critical health check passes.", nil, nil),
		checkHealthy:     prometheus.NewDesc("aegis_check_healthy", "1 when the health check passes.", []string{"check"}, nil),
		checkFailures:    prometheus.NewDesc("aegis_check_consecutive_failures", "Consecutive failures of the health check.", []string{"check"}, nil),
		checkFailureRate: prometheus.NewDesc("aegis_check_failure_rate", "Failure rate of the health check over its sample window.", []string{"check"}, nil),
		checkLatency:     prometheus.NewDesc("aegis_check_avg_latency_ms", "Average probe latency in milliseconds.", []string{"check"}, nil),
		alertsUnresolved: prometheus.NewDesc("aegis_alerts_unresolved", "Alerts raised and not yet resolved.", nil, nil),
	}
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uptime
	ch <- c.requests
	ch <- c.successRatio
	ch <- c.avgLatency
	ch <- c.perMinute
	ch <- c.rollingCost
	ch <- c.providerRequests
	ch <- c.providerFailures
	ch <- c.providerInFlight
	ch <- c.providerLatency
	ch <- c.providerCost
	ch <- c.providerEnabled
	ch <- c.providerHealthy
	ch <- c.providerSaturated
	ch <- c.breakerState
	ch <- c.breakerRequests
	ch <- c.breakerRejections
	ch <- c.breakerFailures
	ch <- c.breakerStateChanges
	ch <- c.cacheEntries
	ch <- c.cacheHits
	ch <- c.cacheSimilarityHits
	ch <- c.cacheSemanticHits
	ch <- c.cacheMisses
	ch <- c.cacheEvictions
	ch <- c.cacheExpirations
	ch <- c.cacheHitRatio
	ch <- c.cacheSavedUSD
	ch <- c.healthy
	ch <- c.checkHealthy
	ch <- c.checkFailures
	ch <- c.checkFailureRate
	ch <- c.checkLatency
	ch <- c.alertsUnresolved
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.services.Gateway().Snapshot()
	report := c.services.Monitor().Snapshot()

	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, float64(snap.UptimeSecs))
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(snap.Aggregates.Requests))
	ch <- prometheus.MustNewConstMetric(c.successRatio, prometheus.GaugeValue, snap.Aggregates.SuccessRate)
	ch <- prometheus.MustNewConstMetric(c.avgLatency, prometheus.GaugeValue, float64(snap.Aggregates.AvgLatencyMS))
	ch <- prometheus.MustNewConstMetric(c.perMinute, prometheus.GaugeValue, snap.Aggregates.RequestsPerMinute)
	ch <- prometheus.MustNewConstMetric(c.rollingCost, prometheus.GaugeValue, snap.Aggregates.RollingCostUSD)

	for _, p := range snap.Providers {
		ch <- prometheus.MustNewConstMetric(c.providerRequests, prometheus.CounterValue, float64(p.Requests), p.Name)
		ch <- prometheus.MustNewConstMetric(c.providerFailures, prometheus.CounterValue, float64(p.Failures), p.Name)
		ch <- prometheus.MustNewConstMetric(c.providerInFlight, prometheus.GaugeValue, float64(p.InFlight), p.Name)
		ch <- prometheus.MustNewConstMetric(c.providerLatency, prometheus.GaugeValue, float64(p.AvgLatencyMS), p.Name)
		ch <- prometheus.MustNewConstMetric(c.providerCost, prometheus.CounterValue, p.TotalCostUSD, p.Name)
		ch <- prometheus.MustNewConstMetric(c.providerEnabled, prometheus.GaugeValue, boolValue(p.Enabled), p.Name)
		ch <- prometheus.MustNewConstMetric(c.providerHealthy, prometheus.GaugeValue, boolValue(p.Healthy), p.Name)
		ch <- prometheus.MustNewConstMetric(c.providerSaturated, prometheus.GaugeValue, boolValue(p.Saturated), p.Name)
	}

	for _, b := range snap.Breakers {
		ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, breakerStateValue(b.State), b.Name)
		ch <- prometheus.MustNewConstMetric(c.breakerRequests, prometheus.CounterValue, float64(b.Requests), b.Name)
		ch <- prometheus.MustNewConstMetric(c.breakerRejections, prometheus.CounterValue, float64(b.Rejections), b.Name)
		ch <- prometheus.MustNewConstMetric(c.breakerFailures, prometheus.CounterValue, float64(b.Failures), b.Name)
		ch <- prometheus.MustNewConstMetric(c.breakerStateChanges, prometheus.CounterValue, float64(b.StateChanges), b.Name)
	}

	if cs := snap.Cache; cs != nil {
		ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(cs.Entries))
		ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(cs.Hits))
		ch <- prometheus.MustNewConstMetric(c.cacheSimilarityHits, prometheus.CounterValue, float64(cs.SimilarityHits))
		ch <- prometheus.MustNewConstMetric(c.cacheSemanticHits, prometheus.CounterValue, float64(cs.SemanticHits))
		ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(cs.Misses))
		ch <- prometheus.MustNewConstMetric(c.cacheEvictions, prometheus.CounterValue, float64(cs.Evictions))
		ch <- prometheus.MustNewConstMetric(c.cacheExpirations, prometheus.CounterValue, float64(cs.Expirations))
		ch <- prometheus.MustNewConstMetric(c.cacheHitRatio, prometheus.GaugeValue, cs.HitRate)
		ch <- prometheus.MustNewConstMetric(c.cacheSavedUSD, prometheus.GaugeValue, cs.EstSavedUSD)
	}

	ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, boolValue(report.Healthy))
	for _, chk := range report.Checks {
		ch <- prometheus.MustNewConstMetric(c.checkHealthy, prometheus.GaugeValue, boolValue(chk.Healthy), chk.Name)
		ch <- prometheus.MustNewConstMetric(c.checkFailures, prometheus.GaugeValue, float64(chk.ConsecutiveFailures), chk.Name)
		ch <- prometheus.MustNewConstMetric(c.checkFailureRate, prometheus.GaugeValue, chk.FailureRate, chk.Name)
		ch <- prometheus.MustNewConstMetric(c.checkLatency, prometheus.GaugeValue, float64(chk.AvgLatencyMS), chk.Name)
	}

	var unresolved int
	for _, a := range report.Alerts {
		if !a.Resolved {
			unresolved++
		}
	}
	ch <- prometheus.MustNewConstMetric(c.alertsUnresolved, prometheus.GaugeValue, float64(unresolved))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
