// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package orchestrator

import (
	"sync"
	"time"
)

// rateWindow estimates requests per minute from two adjacent minute buckets.
// The previous bucket is blended in by the unelapsed fraction of the current
// minute, so the figure decays smoothly instead of jumping at bucket edges.
type rateWindow struct {
	mu     sync.Mutex
	minute int64
	curr   int64
	prev   int64
}

func (w *rateWindow) rollLocked(now time.Time) {
	m := now.Unix() / 60
	switch {
	case m == w.minute:
	case m == w.minute+1:
		w.prev, w.curr = w.curr, 0
		w.minute = m
	default:
		w.prev, w.curr = 0, 0
		w.minute = m
	}
}

func (w *rateWindow) Incr(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rollLocked(now)
	w.curr++
}

func (w *rateWindow) PerMinute(now time.Time) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rollLocked(now)
	frac := float64(now.Unix()%60) / 60
	return float64(w.prev)*(1-frac) + float64(w.curr)
}
