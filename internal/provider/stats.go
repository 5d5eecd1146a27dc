// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package provider

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Stats accumulates per-provider call metrics. All counters are atomics;
// snapshots are approximate under concurrency, which is fine for an ops
// surface.
type Stats struct {
	requests      atomic.Int64
	successes     atomic.Int64
	failures      atomic.Int64
	totalLatency  atomic.Int64 // nanoseconds
	totalCostUSDu atomic.Int64 // micro-USD, avoids float atomics
	lastUsed      atomic.Int64 // unix nanos, 0 = never
}

// RecordSuccess records one successful call.
func (s *Stats) RecordSuccess(latency time.Duration, costUSD float64, now time.Time) {
	s.requests.Add(1)
	s.successes.Add(1)
	s.totalLatency.Add(int64(latency))
	if costUSD > 0 {
		s.totalCostUSDu.Add(int64(math.Round(costUSD * 1e6)))
	}
	s.lastUsed.Store(now.UnixNano())
}

// RecordFailure records one failed call.
func (s *Stats) RecordFailure(latency time.Duration, now time.Time) {
	s.requests.Add(1)
	s.failures.Add(1)
	s.totalLatency.Add(int64(latency))
	s.lastUsed.Store(now.UnixNano())
}

// SuccessRate returns the observed success fraction; ok is false before any
// call completes.
func (s *Stats) SuccessRate() (float64, bool) {
	total := s.successes.Load() + s.failures.Load()
	if total == 0 {
		return 0, false
	}
	return float64(s.successes.Load()) / float64(total), true
}

// AvgLatency returns the mean completed-call latency; ok is false before any
// call completes.
func (s *Stats) AvgLatency() (time.Duration, bool) {
	total := s.successes.Load() + s.failures.Load()
	if total == 0 {
		return 0, false
	}
	return time.Duration(s.totalLatency.Load() / total), true
}

// TotalCost returns the accumulated spend in USD.
func (s *Stats) TotalCost() float64 {
	return float64(s.totalCostUSDu.Load()) / 1e6
}

func (s *Stats) Requests() int64  { return s.requests.Load() }
func (s *Stats) Successes() int64 { return s.successes.Load() }
func (s *Stats) Failures() int64  { return s.failures.Load() }

// LastUsed returns when the provider last completed a call; ok is false when
// it was never used.
func (s *Stats) LastUsed() (time.Time, bool) {
	ns := s.lastUsed.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	s.requests.Store(0)
	s.successes.Store(0)
	s.failures.Store(0)
	s.totalLatency.Store(0)
	s.totalCostUSDu.Store(0)
	s.lastUsed.Store(0)
}

// rateWindow counts calls in the current wall-clock minute.
type rateWindow struct {
	mu     sync.Mutex
	minute int64
	count  int
}

func (w *rateWindow) roll(now time.Time) {
	minute := now.Unix() / 60
	if minute != w.minute {
		w.minute = minute
		w.count = 0
	}
}

// Incr counts one call against the current minute.
func (w *rateWindow) Incr(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.roll(now)
	w.count++
}

// Count returns how many calls the current minute has seen.
func (w *rateWindow) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.roll(now)
	return w.count
}
