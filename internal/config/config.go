// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aegis-dev/aegis/internal/secrets"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Config is the top-level Aegis configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Selection SelectionConfig           `mapstructure:"selection"`
	Retry     RetryConfig               `mapstructure:"retry"`
	Breaker   BreakerConfig             `mapstructure:"breaker"`
	Cache     CacheConfig               `mapstructure:"cache"`
	Fallback  FallbackConfig            `mapstructure:"fallback"`
	Health    HealthConfig              `mapstructure:"health"`

	// path is the config file actually read, empty when running on
	// defaults only.
	path string
}

// ServerConfig controls how the gateway listens for connections.
type ServerConfig struct {
	Listen      string          `mapstructure:"listen"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds per-client request rates on the generate route.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LoggingConfig selects log verbosity and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProviderConfig holds the credentials, endpoint, and selection attributes
// for one upstream provider. The map key under providers.<name> doubles as
// the adapter kind: anthropic, openai, google, openrouter, or static.
type ProviderConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	APIKey         string   `mapstructure:"api_key"`
	Endpoint       string   `mapstructure:"endpoint"`
	Model          string   `mapstructure:"model"`
	Priority       int      `mapstructure:"priority"`
	Weight         int      `mapstructure:"weight"`
	CostPerToken   float64  `mapstructure:"cost_per_token"`
	Quality        float64  `mapstructure:"quality"`
	MaxConcurrency int      `mapstructure:"max_concurrency"`
	RateLimit      int      `mapstructure:"rate_limit"`
	Languages      []string `mapstructure:"languages"`
	// Response is the canned body for the static provider; ignored by
	// network adapters.
	Response string `mapstructure:"response"`
}

// SelectionConfig picks the provider-ranking strategy.
type SelectionConfig struct {
	Strategy string `mapstructure:"strategy"`
}

// RetryConfig tunes the per-provider retry policy.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Strategy       string        `mapstructure:"strategy"`
	Multiplier     float64       `mapstructure:"multiplier"`
	JitterFactor   float64       `mapstructure:"jitter_factor"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	TimeoutGrowth  float64       `mapstructure:"timeout_growth"`
}

// BreakerConfig tunes the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// CacheConfig controls the response cache and its match tiers.
type CacheConfig struct {
	Enabled       bool             `mapstructure:"enabled"`
	MaxEntries    int              `mapstructure:"max_entries"`
	TTL           time.Duration    `mapstructure:"ttl"`
	SweepInterval time.Duration    `mapstructure:"sweep_interval"`
	Similarity    SimilarityConfig `mapstructure:"similarity"`
	Semantic      SemanticConfig   `mapstructure:"semantic"`
}

// SimilarityConfig controls token-overlap approximate matching.
type SimilarityConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Threshold float64 `mapstructure:"threshold"`
}

// SemanticConfig controls the optional embedding-backed match tier.
type SemanticConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Path       string  `mapstructure:"path"`
	Model      string  `mapstructure:"model"`
	Dimensions int     `mapstructure:"dimensions"`
	Threshold  float64 `mapstructure:"threshold"`
}

// FallbackConfig controls the degraded-response chain run after every
// primary candidate has failed.
type FallbackConfig struct {
	Provider   string         `mapstructure:"provider"`
	AllowStale bool           `mapstructure:"allow_stale"`
	Simplify   SimplifyConfig `mapstructure:"simplify"`
}

// SimplifyConfig controls the truncated re-attempt fallback stage.
type SimplifyConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxPromptChars int  `mapstructure:"max_prompt_chars"`
	MaxTokens      int  `mapstructure:"max_tokens"`
}

// HealthConfig tunes the health monitor loop, alerting, and recovery.
type HealthConfig struct {
	Interval             time.Duration  `mapstructure:"interval"`
	ProbeTimeout         time.Duration  `mapstructure:"probe_timeout"`
	FailureRateThreshold float64        `mapstructure:"failure_rate_threshold"`
	LatencyThreshold     time.Duration  `mapstructure:"latency_threshold"`
	ConsecutiveFailures  int            `mapstructure:"consecutive_failures"`
	Alerts               AlertsConfig   `mapstructure:"alerts"`
	Recovery             RecoveryConfig `mapstructure:"recovery"`
}

// AlertsConfig bounds the alert log.
type AlertsConfig struct {
	Capacity         int           `mapstructure:"capacity"`
	AutoResolveAfter time.Duration `mapstructure:"auto_resolve_after"`
}

// RecoveryConfig tunes automatic recovery after sustained unhealthiness.
type RecoveryConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Attempts  int           `mapstructure:"attempts"`
	Settle    time.Duration `mapstructure:"settle"`
}

// setDefaults registers the default for every known key so AllKeys reports
// the full tree and env-only overrides work without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:18808")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.rps", 5.0)
	v.SetDefault("server.rate_limit.burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("selection.strategy", "composite")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.strategy", "exponential_jitter")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_factor", 0.25)
	v.SetDefault("retry.attempt_timeout", "30s")
	v.SetDefault("retry.timeout_growth", 1.5)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout", "60s")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.sweep_interval", "5m")
	v.SetDefault("cache.similarity.enabled", true)
	v.SetDefault("cache.similarity.threshold", 0.8)
	v.SetDefault("cache.semantic.enabled", false)
	v.SetDefault("cache.semantic.path", "")
	v.SetDefault("cache.semantic.model", "text-embedding-3-small")
	v.SetDefault("cache.semantic.dimensions", 1536)
	v.SetDefault("cache.semantic.threshold", 0.85)

	v.SetDefault("fallback.provider", "")
	v.SetDefault("fallback.allow_stale", true)
	v.SetDefault("fallback.simplify.enabled", true)
	v.SetDefault("fallback.simplify.max_prompt_chars", 2000)
	v.SetDefault("fallback.simplify.max_tokens", 256)

	v.SetDefault("health.interval", "30s")
	v.SetDefault("health.probe_timeout", "5s")
	v.SetDefault("health.failure_rate_threshold", 0.5)
	v.SetDefault("health.latency_threshold", "10s")
	v.SetDefault("health.consecutive_failures", 3)
	v.SetDefault("health.alerts.capacity", 256)
	v.SetDefault("health.alerts.auto_resolve_after", "10m")
	v.SetDefault("health.recovery.threshold", 3)
	v.SetDefault("health.recovery.attempts", 3)
	v.SetDefault("health.recovery.settle", "5s")
}

// Load reads configuration with environment variable overrides (prefix
// AEGIS_). When path is empty, aegis.yaml is discovered in the working
// directory, $HOME/.config/aegis, then /etc/aegis; absence of a file means
// defaults plus environment. Values using keyring:// URIs are resolved
// through store; a nil store skips resolution.
func Load(path string, store secrets.Store) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	} else {
		// SetConfigType is intentionally omitted. When set, Viper falls back
		// to trying the bare config name without extension, which collides
		// with the ./aegis binary in the project root.
		v.SetConfigName("aegis")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/aegis")
		v.AddConfigPath("/etc/aegis")
		// No config file is fine — defaults and env vars still apply.
		// Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, aegiserr.Errorf(aegiserr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}

	if store != nil {
		secrets.ResolveViperSecrets(v, store)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	cfg.path = v.ConfigFileUsed()
	return &cfg, nil
}

// Path returns the config file Load read, or empty when none was used.
func (c *Config) Path() string { return c.path }

// Validate checks the configuration for logical errors. It returns a slice
// of all validation errors found, collecting all issues rather than stopping
// at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateSelection()...)
	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validateBreaker()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateFallback()...)
	errs = append(errs, c.validateHealth()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		host, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else {
			_ = host // host can be empty (e.g., ":8080"), which is valid
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	if c.Server.RateLimit.RPS <= 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: server.rate_limit.rps must be greater than 0, got %g",
			c.Server.RateLimit.RPS,
		))
	}
	if c.Server.RateLimit.Burst < 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: server.rate_limit.burst must be at least 1, got %d",
			c.Server.RateLimit.Burst,
		))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q",
			c.Logging.Format,
		))
	}

	return errs
}

// KnownProviderKinds are the adapter kinds the gateway can construct.
var KnownProviderKinds = []string{"anthropic", "openai", "google", "openrouter", "static"}

func knownProviderKind(name string) bool {
	for _, k := range KnownProviderKinds {
		if name == k {
			return true
		}
	}
	return false
}

func (c *Config) validateProviders() []error {
	var errs []error

	for name, p := range c.Providers {
		if !knownProviderKind(name) {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: providers.%s is not a known provider kind %v",
				name, KnownProviderKinds,
			))
		}
		if p.Priority < 0 {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: providers.%s.priority must be non-negative, got %d",
				name, p.Priority,
			))
		}
		if p.Weight < 0 {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: providers.%s.weight must be non-negative, got %d",
				name, p.Weight,
			))
		}
		if p.CostPerToken < 0 {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: providers.%s.cost_per_token must be non-negative, got %g",
				name, p.CostPerToken,
			))
		}
		if p.Quality < 0 || p.Quality > 1 {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: providers.%s.quality must be within [0,1], got %g",
				name, p.Quality,
			))
		}
		if p.MaxConcurrency < 0 {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: providers.%s.max_concurrency must be non-negative, got %d",
				name, p.MaxConcurrency,
			))
		}
		if p.RateLimit < 0 {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: providers.%s.rate_limit must be non-negative, got %d",
				name, p.RateLimit,
			))
		}
		if p.Enabled && name != "static" && p.APIKey == "" {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: providers.%s.api_key must be set when the provider is enabled",
				name,
			))
		}
	}

	return errs
}

func (c *Config) validateSelection() []error {
	var errs []error

	validStrategies := map[string]bool{
		"composite": true, "priority": true, "round_robin": true,
		"weighted": true, "least_latency": true, "least_cost": true,
		"best_quality": true,
	}
	if !validStrategies[c.Selection.Strategy] {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: selection.strategy must be one of [composite, priority, round_robin, weighted, least_latency, least_cost, best_quality], got %q",
			c.Selection.Strategy,
		))
	}

	return errs
}

func (c *Config) validateRetry() []error {
	var errs []error

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: retry.max_retries must be non-negative, got %d",
			c.Retry.MaxRetries,
		))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: retry.base_delay must be greater than 0, got %s",
			c.Retry.BaseDelay,
		))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: retry.max_delay must be at least retry.base_delay, got %s < %s",
			c.Retry.MaxDelay, c.Retry.BaseDelay,
		))
	}

	validStrategies := map[string]bool{
		"fixed": true, "linear": true, "exponential": true,
		"exponential_jitter": true, "full_jitter": true,
	}
	if !validStrategies[c.Retry.Strategy] {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: retry.strategy must be one of [fixed, linear, exponential, exponential_jitter, full_jitter], got %q",
			c.Retry.Strategy,
		))
	}

	if c.Retry.Multiplier < 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: retry.multiplier must be at least 1, got %g",
			c.Retry.Multiplier,
		))
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: retry.jitter_factor must be within [0,1], got %g",
			c.Retry.JitterFactor,
		))
	}
	if c.Retry.AttemptTimeout < 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: retry.attempt_timeout must be non-negative, got %s",
			c.Retry.AttemptTimeout,
		))
	}
	if c.Retry.TimeoutGrowth < 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: retry.timeout_growth must be at least 1, got %g",
			c.Retry.TimeoutGrowth,
		))
	}

	return errs
}

func (c *Config) validateBreaker() []error {
	var errs []error

	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: breaker.failure_threshold must be at least 1, got %d",
			c.Breaker.FailureThreshold,
		))
	}
	if c.Breaker.ResetTimeout <= 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: breaker.reset_timeout must be greater than 0, got %s",
			c.Breaker.ResetTimeout,
		))
	}

	return errs
}

func (c *Config) validateCache() []error {
	var errs []error

	if c.Cache.MaxEntries < 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: cache.max_entries must be at least 1, got %d",
			c.Cache.MaxEntries,
		))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: cache.ttl must be greater than 0, got %s",
			c.Cache.TTL,
		))
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: cache.sweep_interval must be greater than 0, got %s",
			c.Cache.SweepInterval,
		))
	}
	if t := c.Cache.Similarity.Threshold; t <= 0 || t > 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: cache.similarity.threshold must be within (0,1], got %g",
			t,
		))
	}
	if t := c.Cache.Semantic.Threshold; t <= 0 || t > 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: cache.semantic.threshold must be within (0,1], got %g",
			t,
		))
	}

	if c.Cache.Semantic.Enabled {
		if c.Cache.Semantic.Path == "" {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: cache.semantic.path must be set when the semantic tier is enabled"))
		}
		if c.Cache.Semantic.Dimensions < 1 {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: cache.semantic.dimensions must be at least 1, got %d",
				c.Cache.Semantic.Dimensions,
			))
		}
		// Embeddings come from the OpenAI API, so the tier needs that key.
		if p, ok := c.Providers["openai"]; !ok || p.APIKey == "" {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: cache.semantic requires providers.openai.api_key for embeddings"))
		}
	}

	return errs
}

func (c *Config) validateFallback() []error {
	var errs []error

	if name := c.Fallback.Provider; name != "" {
		if _, ok := c.Providers[name]; !ok {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: fallback.provider %q references a provider which is not configured",
				name,
			))
		}
	}

	if c.Fallback.Simplify.Enabled {
		if c.Fallback.Simplify.MaxPromptChars < 1 {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: fallback.simplify.max_prompt_chars must be at least 1, got %d",
				c.Fallback.Simplify.MaxPromptChars,
			))
		}
		if c.Fallback.Simplify.MaxTokens < 1 {
			errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
				"config: fallback.simplify.max_tokens must be at least 1, got %d",
				c.Fallback.Simplify.MaxTokens,
			))
		}
	}

	return errs
}

func (c *Config) validateHealth() []error {
	var errs []error

	if c.Health.Interval <= 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: health.interval must be greater than 0, got %s",
			c.Health.Interval,
		))
	}
	if c.Health.ProbeTimeout <= 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: health.probe_timeout must be greater than 0, got %s",
			c.Health.ProbeTimeout,
		))
	}
	if t := c.Health.FailureRateThreshold; t <= 0 || t > 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: health.failure_rate_threshold must be within (0,1], got %g",
			t,
		))
	}
	if c.Health.LatencyThreshold <= 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: health.latency_threshold must be greater than 0, got %s",
			c.Health.LatencyThreshold,
		))
	}
	if c.Health.ConsecutiveFailures < 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: health.consecutive_failures must be at least 1, got %d",
			c.Health.ConsecutiveFailures,
		))
	}
	if c.Health.Alerts.Capacity < 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: health.alerts.capacity must be at least 1, got %d",
			c.Health.Alerts.Capacity,
		))
	}
	if c.Health.Alerts.AutoResolveAfter <= 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: health.alerts.auto_resolve_after must be greater than 0, got %s",
			c.Health.Alerts.AutoResolveAfter,
		))
	}
	if c.Health.Recovery.Threshold < 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: health.recovery.threshold must be at least 1, got %d",
			c.Health.Recovery.Threshold,
		))
	}
	if c.Health.Recovery.Attempts < 1 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: health.recovery.attempts must be at least 1, got %d",
			c.Health.Recovery.Attempts,
		))
	}
	if c.Health.Recovery.Settle < 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"config: health.recovery.settle must be non-negative, got %s",
			c.Health.Recovery.Settle,
		))
	}

	return errs
}
