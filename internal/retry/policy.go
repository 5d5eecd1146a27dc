// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package retry executes operations under a configurable retry policy with
// bounded backoff, per-attempt deadlines, and transient-error classification.
package retry

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"
)

// Strategy selects the backoff curve between attempts.
type Strategy string

const (
	StrategyFixed             Strategy = "fixed"
	StrategyLinear            Strategy = "linear"
	StrategyExponential       Strategy = "exponential"
	StrategyExponentialJitter Strategy = "exponential_jitter"
	StrategyFullJitter        Strategy = "full_jitter"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyFixed, StrategyLinear, StrategyExponential,
		StrategyExponentialJitter, StrategyFullJitter:
		return true
	}
	return false
}

// Defaults applied by Policy.normalized for fields left at their zero value.
var (
	DefaultRetryableStatuses    = []int{408, 429, 500, 502, 503, 504}
	DefaultNonRetryableStatuses = []int{400, 401, 403, 404, 413, 422}

	// DefaultRetryablePatterns match transient upstream failures by message
	// when no structured status is available. Compared lowercased.
	DefaultRetryablePatterns = []string{
		"timeout",
		"timed out",
		"overloaded",
		"rate limit",
		"too many requests",
		"connection refused",
		"connection reset",
		"unavailable",
		"try again",
	}
)

// Policy describes how an operation is retried. The zero value retries
// nothing (a single attempt, no delay); DefaultPolicy returns the production
// defaults. Policies are values and safe to copy.
type Policy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Strategy   Strategy
	// Multiplier grows the exponential curve; ignored by fixed and linear.
	Multiplier float64
	// JitterFactor spreads exponential_jitter delays by ±this fraction.
	JitterFactor float64

	RetryableStatuses    []int
	NonRetryableStatuses []int
	RetryablePatterns    []string

	// AttemptTimeout bounds each attempt; 0 disables per-attempt deadlines.
	// Each attempt's deadline grows by TimeoutGrowth over the previous one,
	// giving a struggling upstream more room before retries give up.
	AttemptTimeout time.Duration
	TimeoutGrowth  float64
}

// DefaultPolicy returns the production defaults: three retries on an
// exponential curve with ±25% jitter, capped at 30s between attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:           3,
		BaseDelay:            500 * time.Millisecond,
		MaxDelay:             30 * time.Second,
		Strategy:             StrategyExponentialJitter,
		Multiplier:           2.0,
		JitterFactor:         0.25,
		RetryableStatuses:    slices.Clone(DefaultRetryableStatuses),
		NonRetryableStatuses: slices.Clone(DefaultNonRetryableStatuses),
		RetryablePatterns:    slices.Clone(DefaultRetryablePatterns),
		AttemptTimeout:       10 * time.Second,
		TimeoutGrowth:        1.5,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if !p.Strategy.Valid() {
		p.Strategy = StrategyExponentialJitter
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	if p.JitterFactor > 1 {
		p.JitterFactor = 1
	}
	if p.RetryableStatuses == nil {
		p.RetryableStatuses = DefaultRetryableStatuses
	}
	if p.NonRetryableStatuses == nil {
		p.NonRetryableStatuses = DefaultNonRetryableStatuses
	}
	if p.RetryablePatterns == nil {
		p.RetryablePatterns = DefaultRetryablePatterns
	}
	if p.TimeoutGrowth < 1 {
		p.TimeoutGrowth = 1
	}
	return p
}

// randFloat is the jitter source, replaceable in tests.
var randFloat = rand.Float64

// Delay returns how long to wait after the given 0-based failed attempt.
// Results are clamped to [0, MaxDelay]; exponential overflow saturates at
// the cap.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 0 {
		attempt = 0
	}

	base := float64(p.BaseDelay)
	var d float64
	switch p.Strategy {
	case StrategyFixed:
		d = base
	case StrategyLinear:
		d = base * float64(attempt+1)
	case StrategyExponential:
		d = base * math.Pow(p.Multiplier, float64(attempt))
	case StrategyFullJitter:
		d = randFloat() * base * math.Pow(p.Multiplier, float64(attempt))
	default: // exponential_jitter
		exp := base * math.Pow(p.Multiplier, float64(attempt))
		spread := (randFloat()*2 - 1) * p.JitterFactor
		d = exp * (1 + spread)
	}

	if limit := float64(p.MaxDelay); d > limit {
		d = limit
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// attemptTimeout returns the deadline budget for the given 0-based attempt,
// or 0 when per-attempt deadlines are disabled.
func (p Policy) attemptTimeout(attempt int) time.Duration {
	if p.AttemptTimeout <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(float64(p.AttemptTimeout) * math.Pow(p.TimeoutGrowth, float64(attempt)))
}
