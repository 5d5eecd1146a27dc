// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package server

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

const rateLimitRetryAfter = "1"

// RateLimitConfig bounds the request rate on the generate endpoint, keyed by
// client IP. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS     float64
	Burst   int
	MaxKeys int
}

func (c *RateLimitConfig) applyDefaults() {
	if c.MaxKeys == 0 {
		c.MaxKeys = 10000
	}
}

func (c *RateLimitConfig) validate() error {
	if c.RPS < 0 {
		return aegiserr.Errorf(aegiserr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RPS)
	}
	if c.RPS > 0 && c.Burst <= 0 {
		return aegiserr.Errorf(aegiserr.CodeServerConfigInvalid,
			"rate limit burst must be positive when requests per second is set (got burst=%d, rps=%g)",
			c.Burst, c.RPS)
	}
	if c.MaxKeys < 0 {
		return aegiserr.Errorf(aegiserr.CodeServerConfigInvalid,
			"rate limit max keys must not be negative (got %d)", c.MaxKeys)
	}
	return nil
}

type visitorEntry struct {
	tokens     float64
	lastSeen   time.Time
	lastRefill time.Time
}

// generateLimiter is a per-client token bucket. A nil limiter allows
// everything, so callers never need to branch on whether limiting is on.
type generateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitorEntry
	now      func() time.Time
}

func newGenerateLimiter(cfg RateLimitConfig, done <-chan struct{}) (*generateLimiter, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.RPS <= 0 {
		return nil, nil
	}

	l := &generateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitorEntry),
		now:      time.Now,
	}
	go l.cleanupLoop(done)
	return l, nil
}

func (l *generateLimiter) cleanupLoop(done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupOnce()
		case <-done:
			return
		}
	}
}

// cleanupOnce drops visitors idle past the stale threshold, then enforces the
// key cap by evicting the least recently seen entries.
func (l *generateLimiter) cleanupOnce() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	const staleThreshold = 10 * time.Minute

	type entry struct {
		key      string
		lastSeen time.Time
	}
	entries := make([]entry, 0, len(l.visitors))
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > staleThreshold {
			delete(l.visitors, key)
		} else {
			entries = append(entries, entry{key: key, lastSeen: v.lastSeen})
		}
	}

	if l.cfg.MaxKeys > 0 && len(entries) > l.cfg.MaxKeys {
		slices.SortFunc(entries, func(a, b entry) int {
			if a.lastSeen.Before(b.lastSeen) {
				return -1
			}
			if a.lastSeen.After(b.lastSeen) {
				return 1
			}
			return 0
		})

		toEvict := len(entries) - l.cfg.MaxKeys
		for i := 0; i < toEvict; i++ {
			delete(l.visitors, entries[i].key)
		}
		slog.Warn("rate limiter key cap enforced",
			"evicted", toEvict, "max_keys", l.cfg.MaxKeys, "remaining", len(l.visitors))
	}
}

func (l *generateLimiter) allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	v := l.getOrCreateVisitorLocked(key)
	now := l.now()
	v.lastSeen = now

	elapsed := now.Sub(v.lastRefill).Seconds()
	v.tokens += elapsed * l.cfg.RPS
	if v.tokens > float64(l.cfg.Burst) {
		v.tokens = float64(l.cfg.Burst)
	}
	v.lastRefill = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

func (l *generateLimiter) getOrCreateVisitorLocked(key string) *visitorEntry {
	if key == "" {
		key = "ip:unknown"
	}
	if v, ok := l.visitors[key]; ok {
		return v
	}
	now := l.now()
	v := &visitorEntry{
		tokens:     float64(l.cfg.Burst),
		lastSeen:   now,
		lastRefill: now,
	}
	l.visitors[key] = v
	return v
}

type clientIPContextKey struct{}

func clientIPContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIPFromRemoteAddr(r.RemoteAddr)
		ctx := context.WithValue(r.Context(), clientIPContextKey{}, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		truncated := remoteAddr
		if len(truncated) > 64 {
			truncated = truncated[:64] + "..."
		}
		slog.Warn("rate limiter: failed to parse RemoteAddr, using raw value as key",
			"remote_addr", truncated,
			"error", err)
		return remoteAddr
	}
	return host
}

func clientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey{}).(string); ok {
		return ip
	}
	return ""
}

func limiterKey(ctx context.Context) string {
	ip := clientIPFromContext(ctx)
	if ip == "" {
		return "ip:unknown"
	}
	return "ip:" + ip
}

// hashKey returns the first 8 hex chars of SHA-256(key) for log privacy.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h[:4]) // 4 bytes = 8 hex chars
}

func (s *Server) checkGenerateLimit(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	key := limiterKey(ctx)
	if s.limiter.allow(key) {
		return nil
	}
	slog.Warn("generate rate limit exceeded", "key_hash", hashKey(key))
	return tooManyRequests("request rate limit exceeded")
}

func tooManyRequests(msg string) error {
	err429 := huma.NewError(http.StatusTooManyRequests, msg)
	return huma.ErrorWithHeaders(err429, http.Header{"Retry-After": []string{rateLimitRetryAfter}})
}
