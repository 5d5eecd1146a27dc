// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package orchestrator

import (
	"time"

	"github.com/aegis-dev/aegis/internal/cache"
)

// Confidence assigned to a response by its source. Fresh generations are
// fully trusted; every degraded source is marked down so callers can decide
// whether the answer is good enough.
const (
	ConfidenceFresh      = 1.0
	ConfidenceExactCache = 0.95
	ConfidenceSemantic   = 0.85
	ConfidenceFallback   = 0.5
	ConfidenceStale      = 0.4
	ConfidenceSimplified = 0.3

	// similarityConfidenceFactor scales the similarity match score, so a
	// borderline 0.8 match lands at 0.72 while a near-exact one approaches 0.9.
	similarityConfidenceFactor = 0.9
)

// Response is a completed generation plus the provenance callers need to
// tell a fresh answer from a cached or degraded one.
type Response struct {
	RequestID  string
	Content    string
	Provider   string
	Model      string
	TokensUsed int
	// Cost in USD actually spent answering this request. Zero for cache hits.
	Cost       float64
	Latency    time.Duration
	Confidence float64

	// Cached is set when the content came from the response cache; CacheMatch
	// then names the tier (exact, similarity, semantic).
	Cached     bool
	CacheMatch cache.MatchType
	// Fallback marks the designated fallback adapter's answer, Stale an
	// expired cache entry served as a last resort, Simplified a truncated
	// re-attempt. All imply the primary candidates were exhausted.
	Fallback   bool
	Stale      bool
	Simplified bool

	// Attempts lists the provider failures that preceded this response, in
	// the order they were tried. Empty on a first-candidate success.
	Attempts []Attempt
}

// Degraded reports whether the response came from anywhere other than a
// fresh, full-fidelity generation or a live cache hit.
func (r *Response) Degraded() bool {
	return r.Fallback || r.Stale || r.Simplified
}

// Attempt records one failed provider try during failover.
type Attempt struct {
	Provider string
	Error    string
	Duration time.Duration
}
