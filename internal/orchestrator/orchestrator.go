// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package orchestrator routes completion requests across providers. It
// composes the registry and selector, per-provider circuit breakers, the
// retry policy, and the response cache into a single Generate entry point
// with failover and a degraded-answer fallback chain.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aegis-dev/aegis/internal/breaker"
	"github.com/aegis-dev/aegis/internal/cache"
	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/internal/retry"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/aegis-dev/aegis/pkg/health"
)

// Config tunes request routing and the fallback chain.
type Config struct {
	// Strategy orders candidates; empty means composite scoring.
	Strategy provider.Strategy
	// CacheTTL applies to write-through entries. Non-positive uses the
	// cache's own default.
	CacheTTL time.Duration
	Fallback FallbackConfig
}

// FallbackConfig gates the degraded-answer stages tried after every ranked
// candidate has failed. Zero value disables all three.
type FallbackConfig struct {
	// Provider names a registered adapter of last resort, called directly
	// (no breaker, no retry) because it must not be able to fail fast.
	Provider string
	// AllowStale serves an expired exact-key cache entry.
	AllowStale bool
	Simplify   SimplifyConfig
}

// SimplifyConfig controls the truncated re-attempt against the top candidate.
type SimplifyConfig struct {
	Enabled bool
	// MaxPromptChars bounds the simplified prompt; truncation backs up to a
	// word boundary.
	MaxPromptChars int
	// MaxTokens caps the response budget for the re-attempt.
	MaxTokens int
}

// Orchestrator routes Generate calls. Construct one per process in the
// composition root and share it; all methods are safe for concurrent use.
type Orchestrator struct {
	registry *provider.Registry
	selector *provider.Selector
	breakers *breaker.Manager
	policy   retry.Policy
	store    *cache.Cache // nil = caching disabled
	cfg      Config
	log      *slog.Logger

	startedAt time.Time
	nowFunc   func() time.Time

	requests       atomic.Int64
	successes      atomic.Int64
	latencyTotal   atomic.Int64 // nanoseconds, provider-served responses only
	latencySamples atomic.Int64
	costMicroUSD   atomic.Int64
	rate           rateWindow
}

// New builds an orchestrator over the given parts. store may be nil to
// disable caching.
func New(registry *provider.Registry, breakers *breaker.Manager, policy retry.Policy, store *cache.Cache, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.Strategy == "" {
		cfg.Strategy = provider.StrategyComposite
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		registry:  registry,
		selector:  provider.NewSelector(registry),
		breakers:  breakers,
		policy:    policy,
		store:     store,
		cfg:       cfg,
		log:       log,
		startedAt: time.Now(),
		nowFunc:   time.Now,
	}
}

// SetNowFunc replaces the clock. Test hook.
func (o *Orchestrator) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		o.nowFunc = fn
	}
}

// Generate answers req from the cache when possible, otherwise tries ranked
// candidates one at a time under breaker and retry protection, then walks the
// fallback chain. The returned response carries provenance markers and a
// confidence grade; the terminal error lists every attempted provider.
func (o *Orchestrator) Generate(ctx context.Context, req provider.Request) (*Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, aegiserr.New(aegiserr.CodeRequestInvalid, "prompt must not be blank")
	}

	requestID := uuid.NewString()
	o.requests.Add(1)
	o.rate.Incr(o.nowFunc())

	if o.store != nil {
		if resp, ok := o.cacheLookup(ctx, requestID, req); ok {
			o.successes.Add(1)
			o.log.Debug("served from cache",
				"request_id", requestID, "match", string(resp.CacheMatch), "confidence", resp.Confidence)
			return resp, nil
		}
	}

	candidates := o.selector.Select(o.cfg.Strategy, req)

	var (
		attempts  []Attempt
		attempted []string
		lastErr   error
	)

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cand.Name() == o.cfg.Fallback.Provider {
			// Reserved for the last-resort stage, never part of the walk.
			continue
		}
		if !cand.Usable() || !cand.Health().IsHealthy() || cand.Saturated() {
			o.log.Debug("skipping provider",
				"request_id", requestID, "provider", cand.Name(),
				"healthy", cand.Health().IsHealthy(), "saturated", cand.Saturated())
			continue
		}

		res, elapsed, err := o.attempt(ctx, cand, req)
		if err != nil {
			if ctx.Err() != nil {
				// The caller gave up; failover must not outlive the request.
				return nil, err
			}
			attempts = append(attempts, Attempt{Provider: cand.Name(), Error: err.Error(), Duration: elapsed})
			attempted = appendAttempted(attempted, cand.Name())
			lastErr = err
			o.log.Warn("provider failed, failing over",
				"request_id", requestID, "provider", cand.Name(),
				"attempt", len(attempts), "latency_ms", elapsed.Milliseconds(), "error", err)
			continue
		}

		o.recordServed(res)
		o.writeThrough(req, res)
		o.log.Info("request served",
			"request_id", requestID, "provider", res.Provider,
			"latency_ms", res.Latency.Milliseconds(), "tokens", res.TokensUsed, "failovers", len(attempts))
		return &Response{
			RequestID:  requestID,
			Content:    res.Content,
			Provider:   res.Provider,
			Model:      res.Model,
			TokensUsed: res.TokensUsed,
			Cost:       res.Cost,
			Latency:    res.Latency,
			Confidence: ConfidenceFresh,
			Attempts:   attempts,
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if resp, ok := o.fallbackChain(ctx, requestID, req, candidates, attempts, &attempted); ok {
		return resp, nil
	}

	return nil, allFailed(attempted, lastErr)
}

// attempt runs one candidate under its breaker with the retry policy inside,
// so an open breaker rejects instantly instead of gating each retry. Stats
// and the health tracker are updated here; breaker rejections and caller
// cancellation are not counted against the provider.
func (o *Orchestrator) attempt(ctx context.Context, cand *provider.Registration, req provider.Request) (*provider.Result, time.Duration, error) {
	br := o.breakers.Get(cand.Name())

	cand.Begin()
	defer cand.End()

	start := o.nowFunc()
	res, err := breaker.Do(ctx, br, func(ctx context.Context) (*provider.Result, error) {
		return retry.Do(ctx, o.policy, cand.Name(), func(ctx context.Context) (*provider.Result, error) {
			return cand.Provider().Generate(ctx, req)
		})
	})
	elapsed := o.nowFunc().Sub(start)

	if err != nil {
		switch {
		case aegiserr.HasCode(err, aegiserr.CodeBreakerOpen):
			// Rejected before reaching the adapter.
		case ctx.Err() != nil:
		default:
			cand.RecordFailure(elapsed)
		}
		return nil, elapsed, err
	}

	cand.RecordSuccess(res.Latency, res.Cost)
	return res, elapsed, nil
}

// cacheLookup returns a response assembled from a live cache entry, graded by
// match tier.
func (o *Orchestrator) cacheLookup(ctx context.Context, requestID string, req provider.Request) (*Response, bool) {
	ent, match, ok := o.store.Get(ctx, req.Prompt, req.Context)
	if !ok {
		return nil, false
	}

	resp := &Response{
		RequestID:  requestID,
		Content:    ent.Response.Content,
		Provider:   ent.Response.Provider,
		Model:      ent.Response.Model,
		TokensUsed: ent.Response.TokensUsed,
		Cached:     true,
		CacheMatch: match,
	}
	switch match {
	case cache.MatchExact:
		resp.Confidence = ConfidenceExactCache
	case cache.MatchSimilarity:
		resp.Confidence = similarityConfidenceFactor * ent.MatchScore
	case cache.MatchSemantic:
		resp.Confidence = ConfidenceSemantic
	}
	return resp, true
}

// fallbackChain tries the degraded-answer stages in order: designated
// fallback adapter, stale cache entry, simplified re-attempt against the top
// candidate. Each stage is config-gated and tags the response it produces.
func (o *Orchestrator) fallbackChain(ctx context.Context, requestID string, req provider.Request, candidates []*provider.Registration, attempts []Attempt, attempted *[]string) (*Response, bool) {
	if name := o.cfg.Fallback.Provider; name != "" {
		if resp, ok := o.fallbackProvider(ctx, requestID, name, req, attempts, attempted); ok {
			return resp, true
		}
	}

	if o.cfg.Fallback.AllowStale && o.store != nil {
		if ent, ok := o.store.GetStale(req.Prompt, req.Context); ok {
			o.successes.Add(1)
			o.log.Warn("serving stale cache entry", "request_id", requestID, "key", ent.Key)
			return &Response{
				RequestID:  requestID,
				Content:    ent.Response.Content,
				Provider:   ent.Response.Provider,
				Model:      ent.Response.Model,
				TokensUsed: ent.Response.TokensUsed,
				Confidence: ConfidenceStale,
				Cached:     true,
				CacheMatch: cache.MatchExact,
				Stale:      true,
				Attempts:   attempts,
			}, true
		}
	}

	if o.cfg.Fallback.Simplify.Enabled {
		if top := o.topCandidate(candidates); top != nil {
			if resp, ok := o.simplifiedAttempt(ctx, requestID, req, top, attempts, attempted); ok {
				return resp, true
			}
		}
	}

	return nil, false
}

// topCandidate returns the best-ranked candidate eligible for the primary
// walk, skipping the reserved fallback adapter.
func (o *Orchestrator) topCandidate(candidates []*provider.Registration) *provider.Registration {
	for _, cand := range candidates {
		if cand.Name() != o.cfg.Fallback.Provider {
			return cand
		}
	}
	return nil
}

// fallbackProvider calls the designated fallback adapter directly. It is
// contractually unable to fail, but a misconfigured name or a runtime error
// degrades to the next stage rather than aborting the chain.
func (o *Orchestrator) fallbackProvider(ctx context.Context, requestID, name string, req provider.Request, attempts []Attempt, attempted *[]string) (*Response, bool) {
	reg, err := o.registry.Get(name)
	if err != nil || !reg.Usable() {
		o.log.Warn("fallback provider unavailable", "request_id", requestID, "provider", name)
		return nil, false
	}

	start := o.nowFunc()
	res, err := reg.Provider().Generate(ctx, req)
	elapsed := o.nowFunc().Sub(start)
	if err != nil {
		reg.RecordFailure(elapsed)
		*attempted = appendAttempted(*attempted, name)
		o.log.Warn("fallback provider failed", "request_id", requestID, "provider", name, "error", err)
		return nil, false
	}

	reg.RecordSuccess(res.Latency, res.Cost)
	o.recordServed(res)
	o.log.Warn("served by fallback provider", "request_id", requestID, "provider", name)
	return &Response{
		RequestID:  requestID,
		Content:    res.Content,
		Provider:   res.Provider,
		Model:      res.Model,
		TokensUsed: res.TokensUsed,
		Cost:       res.Cost,
		Latency:    res.Latency,
		Confidence: ConfidenceFallback,
		Fallback:   true,
		Attempts:   attempts,
	}, true
}

// simplifiedAttempt retries the best-ranked candidate with a truncated
// prompt and a reduced token budget, breaker and retry gated. The candidate
// likely just failed; its breaker decides whether another call is allowed.
func (o *Orchestrator) simplifiedAttempt(ctx context.Context, requestID string, req provider.Request, top *provider.Registration, attempts []Attempt, attempted *[]string) (*Response, bool) {
	sreq := simplify(req, o.cfg.Fallback.Simplify)

	res, elapsed, err := o.attempt(ctx, top, sreq)
	if err != nil {
		*attempted = appendAttempted(*attempted, top.Name())
		o.log.Warn("simplified re-attempt failed",
			"request_id", requestID, "provider", top.Name(), "latency_ms", elapsed.Milliseconds(), "error", err)
		return nil, false
	}

	o.recordServed(res)
	o.log.Warn("served simplified response",
		"request_id", requestID, "provider", res.Provider, "prompt_chars", len(sreq.Prompt))
	return &Response{
		RequestID:  requestID,
		Content:    res.Content,
		Provider:   res.Provider,
		Model:      res.Model,
		TokensUsed: res.TokensUsed,
		Cost:       res.Cost,
		Latency:    res.Latency,
		Confidence: ConfidenceSimplified,
		Simplified: true,
		Attempts:   attempts,
	}, true
}

// simplify truncates the prompt at a word boundary and caps the response
// token budget.
func simplify(req provider.Request, cfg SimplifyConfig) provider.Request {
	out := req
	out.Prompt = truncateWords(req.Prompt, cfg.MaxPromptChars)
	if cfg.MaxTokens > 0 && (out.Options.MaxTokens == 0 || out.Options.MaxTokens > cfg.MaxTokens) {
		out.Options.MaxTokens = cfg.MaxTokens
	}
	return out
}

// truncateWords cuts s to at most max bytes without splitting a rune, then
// backs up to the last whitespace so words stay whole.
func truncateWords(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	cut := s[:max]
	if i := strings.LastIndexAny(cut, " \t\n"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

func (o *Orchestrator) writeThrough(req provider.Request, res *provider.Result) {
	if o.store == nil {
		return
	}
	o.store.Set(req.Prompt, req.Context, *res, o.cfg.CacheTTL)
}

// recordServed folds a provider-served result into the gateway aggregates.
func (o *Orchestrator) recordServed(res *provider.Result) {
	o.successes.Add(1)
	o.latencyTotal.Add(int64(res.Latency))
	o.latencySamples.Add(1)
	o.costMicroUSD.Add(int64(res.Cost * 1e6))
}

func appendAttempted(list []string, name string) []string {
	if slices.Contains(list, name) {
		return list
	}
	return append(list, name)
}

func allFailed(attempted []string, lastErr error) error {
	msg := "no usable providers"
	if lastErr != nil {
		msg = fmt.Sprintf("all providers failed, last error: %v", lastErr)
	}
	return aegiserr.New(aegiserr.CodeAllProvidersFailed, msg, aegiserr.FieldAttempted(attempted))
}

// Snapshot assembles the operational view: gateway aggregates plus live
// provider, breaker, and cache state. The health report is filled in by the
// caller, which owns the monitor.
func (o *Orchestrator) Snapshot() health.Snapshot {
	now := o.nowFunc()

	agg := health.Aggregates{
		Requests:          o.requests.Load(),
		RequestsPerMinute: o.rate.PerMinute(now),
		RollingCostUSD:    float64(o.costMicroUSD.Load()) / 1e6,
	}
	if reqs := agg.Requests; reqs > 0 {
		agg.SuccessRate = float64(o.successes.Load()) / float64(reqs)
	}
	if samples := o.latencySamples.Load(); samples > 0 {
		agg.AvgLatencyMS = time.Duration(o.latencyTotal.Load() / samples).Milliseconds()
	}

	snap := health.Snapshot{
		Status:     "ok",
		UptimeSecs: int64(now.Sub(o.startedAt).Seconds()),
		Aggregates: agg,
		Providers:  o.registry.Snapshot(),
		Breakers:   o.breakers.Snapshot(),
	}
	if o.store != nil {
		stats := o.store.Snapshot()
		snap.Cache = &stats
	}
	return snap
}
