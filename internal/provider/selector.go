// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package provider

import (
	"slices"
	"sync/atomic"
	"time"
)

// Strategy names a candidate-ordering policy.
type Strategy string

const (
	// StrategyComposite scores candidates across priority, health, observed
	// performance, language fit, quality, and cost. The default.
	StrategyComposite    Strategy = "composite"
	StrategyPriority     Strategy = "priority"
	StrategyRoundRobin   Strategy = "round_robin"
	StrategyWeighted     Strategy = "weighted"
	StrategyLeastLatency Strategy = "least_latency"
	StrategyLeastCost    Strategy = "least_cost"
	StrategyBestQuality  Strategy = "best_quality"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyComposite, StrategyPriority, StrategyRoundRobin, StrategyWeighted,
		StrategyLeastLatency, StrategyLeastCost, StrategyBestQuality:
		return true
	}
	return false
}

// Selector orders enabled registrations for the orchestrator. It holds the
// round-robin rotation cursor; everything else reads live registry state.
type Selector struct {
	registry *Registry
	cursor   atomic.Uint64
}

// NewSelector creates a selector over the registry.
func NewSelector(registry *Registry) *Selector {
	return &Selector{registry: registry}
}

// Select orders candidates by the given strategy; the composite strategy
// delegates to Rank.
func (s *Selector) Select(strategy Strategy, req Request) []*Registration {
	if strategy == StrategyComposite || !strategy.Valid() {
		return s.Rank(req)
	}
	return s.Order(strategy)
}

// Order returns the enabled registrations arranged by a plain strategy.
// Ties keep registration order (sorts are stable).
func (s *Selector) Order(strategy Strategy) []*Registration {
	candidates := s.registry.Enabled()

	switch strategy {
	case StrategyPriority:
		slices.SortStableFunc(candidates, func(a, b *Registration) int {
			return a.Config().Priority - b.Config().Priority
		})
	case StrategyRoundRobin:
		if n := len(candidates); n > 1 {
			start := int((s.cursor.Add(1) - 1) % uint64(n))
			rotated := make([]*Registration, 0, n)
			rotated = append(rotated, candidates[start:]...)
			rotated = append(rotated, candidates[:start]...)
			candidates = rotated
		}
	case StrategyWeighted:
		slices.SortStableFunc(candidates, func(a, b *Registration) int {
			return b.Config().Weight - a.Config().Weight
		})
	case StrategyLeastLatency:
		// Unmeasured providers sort first so fresh candidates get traffic
		// and earn a real average.
		slices.SortStableFunc(candidates, func(a, b *Registration) int {
			la, _ := a.Stats().AvgLatency()
			lb, _ := b.Stats().AvgLatency()
			switch {
			case la < lb:
				return -1
			case la > lb:
				return 1
			default:
				return 0
			}
		})
	case StrategyLeastCost:
		slices.SortStableFunc(candidates, func(a, b *Registration) int {
			switch {
			case a.Config().CostPerToken < b.Config().CostPerToken:
				return -1
			case a.Config().CostPerToken > b.Config().CostPerToken:
				return 1
			default:
				return 0
			}
		})
	case StrategyBestQuality:
		slices.SortStableFunc(candidates, func(a, b *Registration) int {
			switch {
			case a.Config().Quality > b.Config().Quality:
				return -1
			case a.Config().Quality < b.Config().Quality:
				return 1
			default:
				return 0
			}
		})
	}

	return candidates
}

// Rank orders enabled registrations by composite score, best first, stable
// on ties. Unhealthy candidates are ranked, not removed; the orchestrator
// decides whether to attempt them.
func (s *Selector) Rank(req Request) []*Registration {
	candidates := s.registry.Enabled()
	slices.SortStableFunc(candidates, func(a, b *Registration) int {
		sa, sb := Score(a, req), Score(b, req)
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		default:
			return 0
		}
	})
	return candidates
}

// Score computes the composite selection score for one candidate. Higher is
// better; the result never goes below zero.
//
// The blend: configured priority sets the base; observed health and
// saturation dominate (an unhealthy provider has to be dramatically better
// on every other axis to be tried first); observed success rate and latency
// adjust within a band; language fit, configured quality, and per-token cost
// settle the rest.
func Score(r *Registration, req Request) float64 {
	cfg := r.Config()

	score := float64(30 - 5*cfg.Priority)
	if score < 0 {
		score = 0
	}

	if r.Health().IsHealthy() && !r.Saturated() {
		score += 20
	} else {
		score -= 50
	}

	if rate, ok := r.Stats().SuccessRate(); ok {
		score += rate * 20
	} else {
		score += 10
	}

	if avg, ok := r.Stats().AvgLatency(); ok {
		switch {
		case avg < 500*time.Millisecond:
			score += 10
		case avg < 2*time.Second:
			score += 5
		case avg > 5*time.Second:
			score -= 10
		}
	} else {
		score += 5
	}

	if req.Options.Language != "" && len(cfg.Languages) > 0 {
		if slices.Contains(cfg.Languages, req.Options.Language) {
			score += 15
		} else {
			score -= 25
		}
	}

	score += cfg.Quality * 10

	costPenalty := cfg.CostPerToken * 1e6
	if costPenalty > 20 {
		costPenalty = 20
	}
	score -= costPenalty

	if score < 0 {
		score = 0
	}
	return score
}
