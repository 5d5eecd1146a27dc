// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	healthpkg "github.com/aegis-dev/aegis/pkg/health"
)

// Probe is one health check's work. A nil return means healthy. Probes run
// under a per-probe deadline and may be abandoned after it; they must honor
// ctx.
type Probe func(ctx context.Context) error

// CheckConfig tunes one registered check.
type CheckConfig struct {
	// Critical failures raise critical-severity alerts instead of warnings.
	Critical bool
	// Timeout overrides the monitor's probe timeout when positive.
	Timeout time.Duration
}

// resultWindow entries; the ring is small so failure rate and average
// latency react to the recent past instead of the whole process lifetime.
const resultWindow = 20

// minRateSamples gates failure-rate alerts until the window has enough
// results to mean something.
const minRateSamples = 5

type probeResult struct {
	ok      bool
	latency time.Duration
}

// checkState is one registered check plus its observed history.
type checkState struct {
	name    string
	probe   Probe
	cfg     CheckConfig
	enabled atomic.Bool

	mu          sync.Mutex
	runs        int64
	failures    int64
	consecutive int
	recent      []probeResult // ring, chronological from recentNext
	recentNext  int
	healthy     bool
	lastRun     time.Time
	lastErr     string
}

func newCheckState(name string, probe Probe, cfg CheckConfig) *checkState {
	c := &checkState{
		name:    name,
		probe:   probe,
		cfg:     cfg,
		healthy: true,
	}
	c.enabled.Store(true)
	return c
}

// checkDelta summarizes one recorded result for the monitor's alerting:
// which thresholds were newly crossed and the values behind them.
type checkDelta struct {
	failed             bool
	consecutive        int
	failureRate        float64
	avgLatency         time.Duration
	crossedConsecutive bool
	crossedFailureRate bool
	crossedLatency     bool
}

// record folds one probe outcome into the check's history and reports
// threshold crossings against the given bounds.
func (c *checkState) record(err error, latency time.Duration, now time.Time, consecutiveBound int, rateBound float64, latencyBound time.Duration) checkDelta {
	c.mu.Lock()
	defer c.mu.Unlock()

	rateBefore, rateSamples := c.failureRateLocked()
	latBefore := c.avgLatencyLocked()

	c.runs++
	c.lastRun = now
	c.pushLocked(probeResult{ok: err == nil, latency: latency})

	if err != nil {
		c.failures++
		c.consecutive++
		c.healthy = false
		c.lastErr = err.Error()
	} else {
		c.consecutive = 0
		c.healthy = true
		c.lastErr = ""
	}

	rateAfter, samplesAfter := c.failureRateLocked()
	latAfter := c.avgLatencyLocked()

	d := checkDelta{
		failed:      err != nil,
		consecutive: c.consecutive,
		failureRate: rateAfter,
		avgLatency:  latAfter,
	}
	if err != nil {
		if consecutiveBound > 0 && c.consecutive == consecutiveBound {
			d.crossedConsecutive = true
		}
		if rateBound > 0 && samplesAfter >= minRateSamples &&
			rateAfter > rateBound && (rateSamples < minRateSamples || rateBefore <= rateBound) {
			d.crossedFailureRate = true
		}
	}
	if latencyBound > 0 && latAfter > latencyBound && latBefore <= latencyBound {
		d.crossedLatency = true
	}
	return d
}

func (c *checkState) pushLocked(r probeResult) {
	if len(c.recent) < resultWindow {
		c.recent = append(c.recent, r)
		return
	}
	c.recent[c.recentNext] = r
	c.recentNext = (c.recentNext + 1) % resultWindow
}

// failureRateLocked is the failed fraction of the recent window.
func (c *checkState) failureRateLocked() (rate float64, samples int) {
	if len(c.recent) == 0 {
		return 0, 0
	}
	failed := 0
	for _, r := range c.recent {
		if !r.ok {
			failed++
		}
	}
	return float64(failed) / float64(len(c.recent)), len(c.recent)
}

func (c *checkState) avgLatencyLocked() time.Duration {
	if len(c.recent) == 0 {
		return 0
	}
	var total time.Duration
	for _, r := range c.recent {
		total += r.latency
	}
	return total / time.Duration(len(c.recent))
}

func (c *checkState) lastHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

func (c *checkState) snapshot() healthpkg.CheckStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	rate, _ := c.failureRateLocked()
	s := healthpkg.CheckStatus{
		Name:                c.name,
		Critical:            c.cfg.Critical,
		Healthy:             c.healthy,
		Runs:                c.runs,
		Failures:            c.failures,
		ConsecutiveFailures: c.consecutive,
		FailureRate:         rate,
		AvgLatencyMS:        c.avgLatencyLocked().Milliseconds(),
		LastError:           c.lastErr,
	}
	if !c.lastRun.IsZero() {
		t := c.lastRun
		s.LastRun = &t
	}
	return s
}

// runProbe races the probe against its deadline. Panics are recovered and
// returned as failures so one bad probe cannot take down the monitor loop. A
// timed-out probe goroutine is abandoned; the buffered channel lets it
// finish without leaking.
func runProbe(ctx context.Context, name string, probe Probe, timeout time.Duration) error {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- aegiserr.Errorf(aegiserr.CodeHealthProbePanic,
					"probe %s panicked: %v", name, r)
			}
		}()
		done <- probe(pctx)
	}()

	select {
	case err := <-done:
		return err
	case <-pctx.Done():
		return aegiserr.New(aegiserr.CodeHealthProbeTimeout,
			fmt.Sprintf("probe %s timed out after %s", name, timeout),
			aegiserr.FieldCheck(name))
	}
}
