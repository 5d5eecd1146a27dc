// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package cache is an in-memory response cache keyed by normalized prompt
// digest, with optional near-duplicate matching by lexical similarity and an
// optional semantic index extension. Expired entries are invisible to normal
// lookups but stay available to the stale-serve fallback path until swept.
package cache

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/pkg/health"
)

// MatchType says which lookup tier produced a hit.
type MatchType string

const (
	MatchNone       MatchType = ""
	MatchExact      MatchType = "exact"
	MatchSimilarity MatchType = "similarity"
	MatchSemantic   MatchType = "semantic"
)

const (
	DefaultMaxEntries          = 1000
	DefaultTTL                 = time.Hour
	DefaultSweepInterval       = 5 * time.Minute
	DefaultSimilarityThreshold = 0.8
	DefaultSemanticThreshold   = 0.75

	// semanticAddTimeout bounds background index writes so a stuck index
	// cannot pile up goroutines.
	semanticAddTimeout = 5 * time.Second

	// evictFraction of capacity is reclaimed per eviction pass.
	evictFraction = 10
)

// Config controls cache behavior. Zero values fall back to defaults;
// similarity matching is opt-in.
type Config struct {
	MaxEntries          int
	TTL                 time.Duration
	SweepInterval       time.Duration
	SimilarityEnabled   bool
	SimilarityThreshold float64
	SemanticThreshold   float64
}

// DefaultConfig returns the production defaults with similarity matching on.
func DefaultConfig() Config {
	return Config{
		MaxEntries:          DefaultMaxEntries,
		TTL:                 DefaultTTL,
		SweepInterval:       DefaultSweepInterval,
		SimilarityEnabled:   true,
		SimilarityThreshold: DefaultSimilarityThreshold,
		SemanticThreshold:   DefaultSemanticThreshold,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.SemanticThreshold <= 0 || c.SemanticThreshold > 1 {
		c.SemanticThreshold = DefaultSemanticThreshold
	}
	return c
}

// SemanticIndex is the extension point for embedding-based matching. Query
// returns the cache key of the nearest indexed prompt and its similarity
// score in [0,1]. Errors degrade to a miss and must never fail a request.
type SemanticIndex interface {
	Add(ctx context.Context, key, prompt string) error
	Query(ctx context.Context, prompt string) (key string, score float64, err error)
}

// Entry is a point-in-time copy of a cached response. MatchScore is set by
// Get: 1 for an exact hit, the tier's similarity score otherwise.
type Entry struct {
	Key            string
	Response       provider.Result
	CreatedAt      time.Time
	ExpiresAt      time.Time
	AccessCount    int64
	LastAccessedAt time.Time
	MatchScore     float64
}

type entry struct {
	key         string
	fingerprint string
	tokens      map[string]struct{}
	response    provider.Result
	createdAt   time.Time
	expiresAt   time.Time

	accessCount atomic.Int64
	lastAccess  atomic.Int64 // unix nanos
}

func (e *entry) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

func (e *entry) touch(now time.Time) {
	e.accessCount.Add(1)
	e.lastAccess.Store(now.UnixNano())
}

func (e *entry) view() Entry {
	return Entry{
		Key:            e.key,
		Response:       e.response,
		CreatedAt:      e.createdAt,
		ExpiresAt:      e.expiresAt,
		AccessCount:    e.accessCount.Load(),
		LastAccessedAt: time.Unix(0, e.lastAccess.Load()),
	}
}

// Cache is safe for concurrent use. Reads take the read lock; access
// bookkeeping on hit paths uses atomics so readers never upgrade to a write
// lock.
type Cache struct {
	cfg      Config
	semantic SemanticIndex

	mu      sync.RWMutex
	entries map[string]*entry
	nowFunc func() time.Time

	hits           atomic.Int64
	similarityHits atomic.Int64
	semanticHits   atomic.Int64
	misses         atomic.Int64
	evictions      atomic.Int64
	expirations    atomic.Int64
	semanticErrors atomic.Int64
	savedMicroUSD  atomic.Int64
	lastSweepMS    atomic.Int64
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	return &Cache{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry),
		nowFunc: time.Now,
	}
}

// AttachSemanticIndex enables the semantic tier. Call before serving traffic.
func (c *Cache) AttachSemanticIndex(idx SemanticIndex) {
	c.semantic = idx
}

// SetNowFunc overrides the time source (for testing).
func (c *Cache) SetNowFunc(fn func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFunc = fn
}

func (c *Cache) now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nowFunc()
}

// Get looks up a live cached response for the prompt and request attributes:
// exact digest first, then lexical similarity when enabled, then the semantic
// index when attached. Attributes (model, language) are part of the exact key
// only; the similarity and semantic tiers compare prompts alone, so a near
// match may have been produced under different options.
func (c *Cache) Get(ctx context.Context, prompt string, attrs map[string]string) (Entry, MatchType, bool) {
	key := Key(prompt, attrs)
	now := c.now()

	c.mu.RLock()
	if e, ok := c.entries[key]; ok && e.live(now) {
		e.touch(now)
		view := e.view()
		view.MatchScore = 1
		c.mu.RUnlock()
		c.hits.Add(1)
		c.recordSaving(view.Response)
		return view, MatchExact, true
	}

	if c.cfg.SimilarityEnabled {
		if view, ok := c.bestSimilarLocked(prompt, key, now); ok {
			c.mu.RUnlock()
			c.similarityHits.Add(1)
			c.recordSaving(view.Response)
			return view, MatchSimilarity, true
		}
	}
	c.mu.RUnlock()

	if view, ok := c.semanticLookup(ctx, prompt, now); ok {
		c.semanticHits.Add(1)
		c.recordSaving(view.Response)
		return view, MatchSemantic, true
	}

	c.misses.Add(1)
	return Entry{}, MatchNone, false
}

// bestSimilarLocked scans live entries for the best lexical match. Caller
// holds the read lock.
func (c *Cache) bestSimilarLocked(prompt, excludeKey string, now time.Time) (Entry, bool) {
	qTokens := tokenSet(prompt)
	if len(qTokens) == 0 {
		return Entry{}, false
	}
	qPrint := fingerprint(prompt)

	var best *entry
	var bestScore float64
	for key, cand := range c.entries {
		if key == excludeKey || !cand.live(now) {
			continue
		}
		score := similarityWeightTokens*jaccard(qTokens, cand.tokens) +
			similarityWeightFingerprint*fingerprintScore(qPrint, cand.fingerprint)
		if score > bestScore {
			best, bestScore = cand, score
		}
	}

	if best == nil || bestScore < c.cfg.SimilarityThreshold {
		return Entry{}, false
	}
	best.touch(now)
	view := best.view()
	view.MatchScore = bestScore
	return view, true
}

func (c *Cache) semanticLookup(ctx context.Context, prompt string, now time.Time) (Entry, bool) {
	if c.semantic == nil {
		return Entry{}, false
	}

	key, score, err := c.semantic.Query(ctx, prompt)
	if err != nil {
		c.semanticErrors.Add(1)
		slog.Debug("semantic index query failed", "error", err)
		return Entry{}, false
	}
	if key == "" || score < c.cfg.SemanticThreshold {
		return Entry{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !e.live(now) {
		return Entry{}, false
	}
	e.touch(now)
	view := e.view()
	view.MatchScore = score
	return view, true
}

func (c *Cache) recordSaving(res provider.Result) {
	if res.Cost > 0 {
		c.savedMicroUSD.Add(int64(math.Round(res.Cost * 1e6)))
	}
}

// Set stores a response. A non-positive ttl uses the configured default. At
// capacity the least-recently-accessed tenth is evicted first. When a
// semantic index is attached the prompt is indexed in the background under
// its own bounded deadline.
func (c *Cache) Set(prompt string, attrs map[string]string, res provider.Result, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	key := Key(prompt, attrs)
	now := c.now()

	e := &entry{
		key:         key,
		fingerprint: fingerprint(prompt),
		tokens:      tokenSet(prompt),
		response:    res,
		createdAt:   now,
		expiresAt:   now.Add(ttl),
	}
	e.lastAccess.Store(now.UnixNano())

	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxEntries {
		c.evictLocked()
	}
	c.entries[key] = e
	c.mu.Unlock()

	if c.semantic != nil {
		go c.indexAdd(key, prompt)
	}
}

func (c *Cache) indexAdd(key, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), semanticAddTimeout)
	defer cancel()
	if err := c.semantic.Add(ctx, key, prompt); err != nil {
		c.semanticErrors.Add(1)
		slog.Debug("semantic index add failed", "error", err)
	}
}

// GetStale returns the exact-key entry even when expired. Fallback path
// only; it counts neither hit nor miss and does not refresh recency.
func (c *Cache) GetStale(prompt string, attrs map[string]string) (Entry, bool) {
	key := Key(prompt, attrs)

	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.view(), true
}

// evictLocked removes the least-recently-accessed tenth of capacity (at
// least one entry). Caller holds the write lock.
func (c *Cache) evictLocked() {
	n := (c.cfg.MaxEntries + evictFraction - 1) / evictFraction
	if n > len(c.entries) {
		n = len(c.entries)
	}
	if n == 0 {
		return
	}

	type candidate struct {
		key  string
		last int64
	}
	candidates := make([]candidate, 0, len(c.entries))
	for key, e := range c.entries {
		candidates = append(candidates, candidate{key: key, last: e.lastAccess.Load()})
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		switch {
		case a.last < b.last:
			return -1
		case a.last > b.last:
			return 1
		default:
			return 0
		}
	})

	for i := 0; i < n; i++ {
		delete(c.entries, candidates[i].key)
	}
	c.evictions.Add(int64(n))
}

// Run sweeps expired entries every SweepInterval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes expired entries now and returns how many went.
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if !e.live(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	c.expirations.Add(int64(removed))
	c.lastSweepMS.Store(now.UnixMilli())
	return removed
}

// LastSweep reports when the sweeper last ran, or zero before the first run.
func (c *Cache) LastSweep() time.Time {
	ms := c.lastSweepMS.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Len returns the number of stored entries, live or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns cumulative stats for the ops surface.
func (c *Cache) Snapshot() health.CacheStats {
	s := health.CacheStats{
		Entries:         c.Len(),
		MaxEntries:      c.cfg.MaxEntries,
		Hits:            c.hits.Load(),
		SimilarityHits:  c.similarityHits.Load(),
		SemanticHits:    c.semanticHits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		Expirations:     c.expirations.Load(),
		SemanticErrors:  c.semanticErrors.Load(),
		EstSavedUSD:     float64(c.savedMicroUSD.Load()) / 1e6,
		LastSweepUnixMS: c.lastSweepMS.Load(),
	}

	if total := s.Hits + s.SimilarityHits + s.SemanticHits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits+s.SimilarityHits+s.SemanticHits) / float64(total)
	}
	return s
}
