// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-dev/aegis/internal/config"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:18808", cfg.Server.Listen)
	assert.Equal(t, 5.0, cfg.Server.RateLimit.RPS)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "composite", cfg.Selection.Strategy)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, "exponential_jitter", cfg.Retry.Strategy)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.Semantic.Enabled)
	assert.True(t, cfg.Fallback.AllowStale)
	assert.Equal(t, 30*time.Second, cfg.Health.Interval)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "aegis.yaml")

	content := `
server:
  listen: "0.0.0.0:9999"
providers:
  anthropic:
    enabled: true
    api_key: "test-key"
    priority: 1
  static:
    enabled: true
fallback:
  provider: static
`
	err := os.WriteFile(cfgPath, []byte(content), 0o600)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.Equal(t, "test-key", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, 1, cfg.Providers["anthropic"].Priority)
	assert.Equal(t, "static", cfg.Fallback.Provider)
	assert.Equal(t, cfgPath, cfg.Path())
	// File values merge over defaults rather than replacing them.
	assert.Equal(t, "composite", cfg.Selection.Strategy)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AEGIS_SERVER_LISTEN", "10.0.0.1:8080")
	t.Setenv("AEGIS_RETRY_MAX_RETRIES", "7")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load("/nonexistent/aegis.yaml", nil)
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "aegis.yaml")

	content := `
selection:
  strategy: "clairvoyant"
`
	err := os.WriteFile(cfgPath, []byte(content), 0o600)
	require.NoError(t, err)

	_, err = config.Load(cfgPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selection.strategy")
}

// fakeStore satisfies secrets.Store with an in-memory map.
type fakeStore struct {
	values map[string]string
}

func (f *fakeStore) Store(service, key, value string) error {
	f.values[service+"/"+key] = value
	return nil
}

func (f *fakeStore) Retrieve(service, key string) (string, error) {
	val, ok := f.values[service+"/"+key]
	if !ok {
		return "", aegiserr.Errorf(aegiserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return val, nil
}

func (f *fakeStore) Delete(service, key string) error {
	delete(f.values, service+"/"+key)
	return nil
}

func (f *fakeStore) List(service string) ([]string, error) { return nil, nil }

func TestLoad_ResolvesKeyringURIs(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "aegis.yaml")

	content := `
providers:
  anthropic:
    enabled: true
    api_key: keyring://aegis/anthropic_api_key
`
	err := os.WriteFile(cfgPath, []byte(content), 0o600)
	require.NoError(t, err)

	store := &fakeStore{values: map[string]string{
		"aegis/anthropic_api_key": "sk-ant-resolved",
	}}

	cfg, err := config.Load(cfgPath, store)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-resolved", cfg.Providers["anthropic"].APIKey)
}

func TestLoad_NilStoreKeepsURIs(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "aegis.yaml")

	content := `
providers:
  anthropic:
    enabled: true
    api_key: keyring://aegis/anthropic_api_key
`
	err := os.WriteFile(cfgPath, []byte(content), 0o600)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath, nil)
	require.NoError(t, err)
	assert.Equal(t, "keyring://aegis/anthropic_api_key", cfg.Providers["anthropic"].APIKey)
}

// validConfig returns a minimal config that passes all validation.
func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Listen:    "127.0.0.1:18808",
			RateLimit: config.RateLimitConfig{RPS: 5, Burst: 10},
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
		Providers: map[string]config.ProviderConfig{
			"anthropic": {Enabled: true, APIKey: "test-key", Quality: 0.9},
			"static":    {Enabled: true},
		},
		Selection: config.SelectionConfig{Strategy: "composite"},
		Retry: config.RetryConfig{
			MaxRetries:     3,
			BaseDelay:      500 * time.Millisecond,
			MaxDelay:       30 * time.Second,
			Strategy:       "exponential_jitter",
			Multiplier:     2.0,
			JitterFactor:   0.25,
			AttemptTimeout: 30 * time.Second,
			TimeoutGrowth:  1.5,
		},
		Breaker: config.BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
		},
		Cache: config.CacheConfig{
			Enabled:       true,
			MaxEntries:    1000,
			TTL:           time.Hour,
			SweepInterval: 5 * time.Minute,
			Similarity:    config.SimilarityConfig{Enabled: true, Threshold: 0.8},
			Semantic: config.SemanticConfig{
				Model:      "text-embedding-3-small",
				Dimensions: 1536,
				Threshold:  0.85,
			},
		},
		Fallback: config.FallbackConfig{
			Provider:   "static",
			AllowStale: true,
			Simplify: config.SimplifyConfig{
				Enabled:        true,
				MaxPromptChars: 2000,
				MaxTokens:      256,
			},
		},
		Health: config.HealthConfig{
			Interval:             30 * time.Second,
			ProbeTimeout:         5 * time.Second,
			FailureRateThreshold: 0.5,
			LatencyThreshold:     10 * time.Second,
			ConsecutiveFailures:  3,
			Alerts: config.AlertsConfig{
				Capacity:         256,
				AutoResolveAfter: 10 * time.Minute,
			},
			Recovery: config.RecoveryConfig{
				Threshold: 3,
				Attempts:  3,
				Settle:    5 * time.Second,
			},
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	errs := cfg.Validate()
	assert.Empty(t, errs, "valid config should produce no validation errors")
}

func TestValidate_ServerListen(t *testing.T) {
	tests := []struct {
		name    string
		listen  string
		wantErr bool
	}{
		{"valid address", "127.0.0.1:8080", false},
		{"valid all interfaces", "0.0.0.0:9999", false},
		{"valid ipv6", "[::1]:8080", false},
		{"empty listen", "", true},
		{"missing port", "127.0.0.1", true},
		{"invalid port zero", "127.0.0.1:0", true},
		{"port too high", "127.0.0.1:70000", true},
		{"not a number", "127.0.0.1:abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Listen = tt.listen
			errs := cfg.Validate()
			if tt.wantErr {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), "server.listen")
			} else {
				for _, err := range errs {
					assert.NotContains(t, err.Error(), "server.listen")
				}
			}
		})
	}
}

func TestValidate_ServerRateLimit(t *testing.T) {
	tests := []struct {
		name    string
		rps     float64
		burst   int
		wantErr string
	}{
		{"valid", 5.0, 10, ""},
		{"fractional rps", 0.5, 1, ""},
		{"zero rps", 0, 10, "server.rate_limit.rps"},
		{"negative rps", -1.0, 10, "server.rate_limit.rps"},
		{"zero burst", 5.0, 0, "server.rate_limit.burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.RateLimit.RPS = tt.rps
			cfg.Server.RateLimit.Burst = tt.burst
			errs := cfg.Validate()
			if tt.wantErr != "" {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), tt.wantErr)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidate_Logging(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr string
	}{
		{"valid", "debug", "json", ""},
		{"invalid level", "trace", "text", "logging.level"},
		{"empty level", "", "text", "logging.level"},
		{"invalid format", "info", "xml", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logging.Level = tt.level
			cfg.Logging.Format = tt.format
			errs := cfg.Validate()
			if tt.wantErr != "" {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), tt.wantErr)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidate_Providers(t *testing.T) {
	t.Run("unknown provider kind", func(t *testing.T) {
		cfg := validConfig()
		cfg.Providers["mystery"] = config.ProviderConfig{Enabled: false}
		errs := cfg.Validate()
		require.NotEmpty(t, errs)
		found := false
		for _, err := range errs {
			if strings.Contains(err.Error(), "providers.mystery") {
				found = true
			}
		}
		assert.True(t, found, "expected error about providers.mystery, got: %v", errs)
	})

	t.Run("quality out of range", func(t *testing.T) {
		cfg := validConfig()
		p := cfg.Providers["anthropic"]
		p.Quality = 1.5
		cfg.Providers["anthropic"] = p
		errs := cfg.Validate()
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "quality")
	})

	t.Run("negative priority", func(t *testing.T) {
		cfg := validConfig()
		p := cfg.Providers["anthropic"]
		p.Priority = -1
		cfg.Providers["anthropic"] = p
		errs := cfg.Validate()
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "priority")
	})

	t.Run("enabled network provider requires api_key", func(t *testing.T) {
		cfg := validConfig()
		p := cfg.Providers["anthropic"]
		p.APIKey = ""
		cfg.Providers["anthropic"] = p
		errs := cfg.Validate()
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "api_key")
	})

	t.Run("static provider needs no api_key", func(t *testing.T) {
		cfg := validConfig()
		errs := cfg.Validate()
		assert.Empty(t, errs)
	})

	t.Run("disabled provider needs no api_key", func(t *testing.T) {
		cfg := validConfig()
		cfg.Providers["openai"] = config.ProviderConfig{Enabled: false}
		errs := cfg.Validate()
		assert.Empty(t, errs)
	})
}

func TestValidate_SelectionStrategy(t *testing.T) {
	valid := []string{"composite", "priority", "round_robin", "weighted", "least_latency", "least_cost", "best_quality"}
	for _, s := range valid {
		t.Run(s, func(t *testing.T) {
			cfg := validConfig()
			cfg.Selection.Strategy = s
			assert.Empty(t, cfg.Validate())
		})
	}

	t.Run("invalid strategy", func(t *testing.T) {
		cfg := validConfig()
		cfg.Selection.Strategy = "dartboard"
		errs := cfg.Validate()
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "selection.strategy")
	})
}

func TestValidate_Retry(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"negative max_retries", func(c *config.Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"zero max_retries is valid", func(c *config.Config) { c.Retry.MaxRetries = 0 }, ""},
		{"zero base_delay", func(c *config.Config) { c.Retry.BaseDelay = 0 }, "retry.base_delay"},
		{"max_delay below base_delay", func(c *config.Config) { c.Retry.MaxDelay = 100 * time.Millisecond }, "retry.max_delay"},
		{"invalid strategy", func(c *config.Config) { c.Retry.Strategy = "psychic" }, "retry.strategy"},
		{"multiplier below one", func(c *config.Config) { c.Retry.Multiplier = 0.5 }, "retry.multiplier"},
		{"jitter above one", func(c *config.Config) { c.Retry.JitterFactor = 1.5 }, "retry.jitter_factor"},
		{"zero jitter is valid", func(c *config.Config) { c.Retry.JitterFactor = 0 }, ""},
		{"negative attempt_timeout", func(c *config.Config) { c.Retry.AttemptTimeout = -time.Second }, "retry.attempt_timeout"},
		{"zero attempt_timeout is valid", func(c *config.Config) { c.Retry.AttemptTimeout = 0 }, ""},
		{"timeout_growth below one", func(c *config.Config) { c.Retry.TimeoutGrowth = 0.9 }, "retry.timeout_growth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if tt.wantErr != "" {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), tt.wantErr)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidate_Breaker(t *testing.T) {
	cfg := validConfig()
	cfg.Breaker.FailureThreshold = 0
	cfg.Breaker.ResetTimeout = 0
	errs := cfg.Validate()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "breaker.failure_threshold")
	assert.Contains(t, errs[1].Error(), "breaker.reset_timeout")
}

func TestValidate_Cache(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"zero max_entries", func(c *config.Config) { c.Cache.MaxEntries = 0 }, "cache.max_entries"},
		{"zero ttl", func(c *config.Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"zero sweep_interval", func(c *config.Config) { c.Cache.SweepInterval = 0 }, "cache.sweep_interval"},
		{"similarity threshold above one", func(c *config.Config) { c.Cache.Similarity.Threshold = 1.5 }, "cache.similarity.threshold"},
		{"similarity threshold zero", func(c *config.Config) { c.Cache.Similarity.Threshold = 0 }, "cache.similarity.threshold"},
		{"semantic threshold above one", func(c *config.Config) { c.Cache.Semantic.Threshold = 2 }, "cache.semantic.threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0].Error(), tt.wantErr)
		})
	}

	t.Run("semantic enabled requires path", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache.Semantic.Enabled = true
		cfg.Providers["openai"] = config.ProviderConfig{APIKey: "sk-test"}
		errs := cfg.Validate()
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "cache.semantic.path")
	})

	t.Run("semantic enabled requires openai key", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache.Semantic.Enabled = true
		cfg.Cache.Semantic.Path = "/tmp/semantic.db"
		errs := cfg.Validate()
		require.NotEmpty(t, errs)
		found := false
		for _, err := range errs {
			if strings.Contains(err.Error(), "providers.openai.api_key") {
				found = true
			}
		}
		assert.True(t, found, "expected error about the openai key, got: %v", errs)
	})

	t.Run("semantic fully configured", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache.Semantic.Enabled = true
		cfg.Cache.Semantic.Path = "/tmp/semantic.db"
		cfg.Providers["openai"] = config.ProviderConfig{APIKey: "sk-test"}
		assert.Empty(t, cfg.Validate())
	})
}

func TestValidate_Fallback(t *testing.T) {
	t.Run("unconfigured fallback provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Fallback.Provider = "ghost"
		errs := cfg.Validate()
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Error(), "fallback.provider")
	})

	t.Run("empty fallback provider is valid", func(t *testing.T) {
		cfg := validConfig()
		cfg.Fallback.Provider = ""
		assert.Empty(t, cfg.Validate())
	})

	t.Run("simplify bounds", func(t *testing.T) {
		cfg := validConfig()
		cfg.Fallback.Simplify.MaxPromptChars = 0
		cfg.Fallback.Simplify.MaxTokens = 0
		errs := cfg.Validate()
		require.Len(t, errs, 2)
		assert.Contains(t, errs[0].Error(), "fallback.simplify.max_prompt_chars")
		assert.Contains(t, errs[1].Error(), "fallback.simplify.max_tokens")
	})

	t.Run("disabled simplify skips bounds", func(t *testing.T) {
		cfg := validConfig()
		cfg.Fallback.Simplify = config.SimplifyConfig{Enabled: false}
		assert.Empty(t, cfg.Validate())
	})
}

func TestValidate_Health(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"zero interval", func(c *config.Config) { c.Health.Interval = 0 }, "health.interval"},
		{"zero probe_timeout", func(c *config.Config) { c.Health.ProbeTimeout = 0 }, "health.probe_timeout"},
		{"failure rate zero", func(c *config.Config) { c.Health.FailureRateThreshold = 0 }, "health.failure_rate_threshold"},
		{"failure rate above one", func(c *config.Config) { c.Health.FailureRateThreshold = 1.1 }, "health.failure_rate_threshold"},
		{"zero latency_threshold", func(c *config.Config) { c.Health.LatencyThreshold = 0 }, "health.latency_threshold"},
		{"zero consecutive_failures", func(c *config.Config) { c.Health.ConsecutiveFailures = 0 }, "health.consecutive_failures"},
		{"zero alert capacity", func(c *config.Config) { c.Health.Alerts.Capacity = 0 }, "health.alerts.capacity"},
		{"zero auto_resolve_after", func(c *config.Config) { c.Health.Alerts.AutoResolveAfter = 0 }, "health.alerts.auto_resolve_after"},
		{"zero recovery threshold", func(c *config.Config) { c.Health.Recovery.Threshold = 0 }, "health.recovery.threshold"},
		{"zero recovery attempts", func(c *config.Config) { c.Health.Recovery.Attempts = 0 }, "health.recovery.attempts"},
		{"negative settle", func(c *config.Config) { c.Health.Recovery.Settle = -time.Second }, "health.recovery.settle"},
		{"zero settle is valid", func(c *config.Config) { c.Health.Recovery.Settle = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if tt.wantErr != "" {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), tt.wantErr)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Listen = ""
	cfg.Logging.Level = "loud"
	cfg.Selection.Strategy = "random-walk"
	cfg.Retry.BaseDelay = 0
	cfg.Breaker.FailureThreshold = 0
	cfg.Cache.TTL = 0
	cfg.Health.Interval = 0

	errs := cfg.Validate()
	// Should collect multiple errors, not stop at the first one
	assert.GreaterOrEqual(t, len(errs), 7, "expected at least 7 validation errors, got %d: %v", len(errs), errs)
}

func TestLoad_InvalidConfigFailsFast(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "aegis.yaml")

	content := `
server:
  listen: "not-valid"
breaker:
  failure_threshold: -2
`
	err := os.WriteFile(cfgPath, []byte(content), 0o600)
	require.NoError(t, err)

	_, err = config.Load(cfgPath, nil)
	require.Error(t, err, "Load should fail with invalid config")
	assert.Contains(t, err.Error(), "validating config")
}

func TestDefaultConfigYAML_IsValid(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "aegis.yaml")
	require.NoError(t, os.WriteFile(cfgPath, config.DefaultConfigYAML, 0o600))

	cfg, err := config.Load(cfgPath, nil)
	require.NoError(t, err, "the shipped default config must load cleanly")
	assert.Equal(t, "127.0.0.1:18808", cfg.Server.Listen)
}
