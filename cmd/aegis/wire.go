// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/aegis-dev/aegis/internal/breaker"
	"github.com/aegis-dev/aegis/internal/cache"
	"github.com/aegis-dev/aegis/internal/cache/sqlitevec"
	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/health"
	"github.com/aegis-dev/aegis/internal/orchestrator"
	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/internal/provider/anthropic"
	"github.com/aegis-dev/aegis/internal/provider/google"
	"github.com/aegis-dev/aegis/internal/provider/openai"
	"github.com/aegis-dev/aegis/internal/provider/openrouter"
	"github.com/aegis-dev/aegis/internal/provider/static"
	"github.com/aegis-dev/aegis/internal/retry"
	"github.com/aegis-dev/aegis/internal/server"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Gateway bundles every wired subsystem. Fields are exported so tests can
// reach individual parts.
type Gateway struct {
	Server       *server.Server
	Registry     *provider.Registry
	Breakers     *breaker.Manager
	Orchestrator *orchestrator.Orchestrator
	Monitor      *health.Monitor
	Cache        *cache.Cache // nil when caching is disabled

	closers []io.Closer
}

// WireGateway assembles the gateway from a validated config: providers into
// the registry, breakers, the retry policy, the cache with its optional
// semantic index, the orchestrator, the health monitor with its recovery
// action, and finally the ops server on top.
func WireGateway(cfg *config.Config) (*Gateway, error) {
	gw := &Gateway{}

	gw.Registry = provider.NewRegistry()
	registerConfiguredProviders(gw.Registry, cfg)

	gw.Breakers = breaker.NewManager(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
	})

	policy := retryPolicyFromConfig(cfg.Retry)

	if cfg.Cache.Enabled {
		gw.Cache = cache.New(cache.Config{
			MaxEntries:          cfg.Cache.MaxEntries,
			TTL:                 cfg.Cache.TTL,
			SweepInterval:       cfg.Cache.SweepInterval,
			SimilarityEnabled:   cfg.Cache.Similarity.Enabled,
			SimilarityThreshold: cfg.Cache.Similarity.Threshold,
			SemanticThreshold:   cfg.Cache.Semantic.Threshold,
		})

		if cfg.Cache.Semantic.Enabled {
			idx, err := openSemanticIndex(cfg)
			if err != nil {
				return nil, aegiserr.Wrapf(err, aegiserr.CodeCLISetupFailure, "opening semantic index")
			}
			gw.Cache.AttachSemanticIndex(idx)
			gw.closers = append(gw.closers, idx)
		}
	}

	gw.Orchestrator = orchestrator.New(gw.Registry, gw.Breakers, policy, gw.Cache, orchestrator.Config{
		Strategy: provider.Strategy(cfg.Selection.Strategy),
		CacheTTL: cfg.Cache.TTL,
		Fallback: orchestrator.FallbackConfig{
			Provider:   cfg.Fallback.Provider,
			AllowStale: cfg.Fallback.AllowStale,
			Simplify: orchestrator.SimplifyConfig{
				Enabled:        cfg.Fallback.Simplify.Enabled,
				MaxPromptChars: cfg.Fallback.Simplify.MaxPromptChars,
				MaxTokens:      cfg.Fallback.Simplify.MaxTokens,
			},
		},
	}, slog.Default())

	gw.Monitor = health.New(health.Config{
		Interval:             cfg.Health.Interval,
		ProbeTimeout:         cfg.Health.ProbeTimeout,
		FailureRateThreshold: cfg.Health.FailureRateThreshold,
		LatencyThreshold:     cfg.Health.LatencyThreshold,
		ConsecutiveFailures:  cfg.Health.ConsecutiveFailures,
		AlertCapacity:        cfg.Health.Alerts.Capacity,
		AutoResolveAfter:     cfg.Health.Alerts.AutoResolveAfter,
		RecoveryThreshold:    cfg.Health.Recovery.Threshold,
		RecoveryAttempts:     cfg.Health.Recovery.Attempts,
		RecoverySettle:       cfg.Health.Recovery.Settle,
	}, slog.Default())
	if err := registerHealthChecks(gw.Monitor, gw.Registry, gw.Breakers); err != nil {
		return nil, aegiserr.Wrapf(err, aegiserr.CodeCLISetupFailure, "registering health checks")
	}
	gw.Monitor.AddRecovery("reset-open-breakers", func(_ context.Context) error {
		if n := gw.Breakers.ResetOpen(); n > 0 {
			slog.Info("recovery forced open breakers closed", "count", n)
		}
		return nil
	})

	services, err := server.NewServices(gw.Orchestrator, gw.Registry, gw.Breakers, gw.Monitor)
	if err != nil {
		return nil, aegiserr.Wrapf(err, aegiserr.CodeCLISetupFailure, "assembling services")
	}

	gw.Server, err = server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RPS:   cfg.Server.RateLimit.RPS,
			Burst: cfg.Server.RateLimit.Burst,
		},
	})
	if err != nil {
		return nil, aegiserr.Wrapf(err, aegiserr.CodeCLISetupFailure, "building server")
	}
	gw.Server.RegisterServices(services)

	return gw, nil
}

// Start runs the server, monitor loop, and cache sweeper until ctx is
// cancelled, then waits for all of them to finish.
func (g *Gateway) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Monitor.Run(ctx)
	}()
	if g.Cache != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Cache.Run(ctx)
		}()
	}

	err := g.Server.Start(ctx)
	cancel()
	wg.Wait()
	return err
}

// Close releases resources that outlive Start, such as the semantic index.
// Safe to call whether or not Start ran.
func (g *Gateway) Close() error {
	g.Server.Close()

	var errs []error
	for _, c := range g.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// providerFactory builds a provider.Provider from its config section.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps adapter kinds to their constructors.
// Package-level so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropic.New(anthropic.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint, Model: pc.Model})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openai.New(openai.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint, Model: pc.Model})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return google.New(google.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint, Model: pc.Model})
	},
	"openrouter": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openrouter.New(openrouter.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint, Model: pc.Model})
	},
	"static": func(pc config.ProviderConfig) (provider.Provider, error) {
		return static.New(static.Config{Response: pc.Response, Model: pc.Model}), nil
	},
}

// registerConfiguredProviders registers every configured provider, disabled
// ones included so the ops API can enable them at runtime. Broken entries are
// skipped with a warning rather than failing startup: one bad provider must
// not take down the gateway.
func registerConfiguredProviders(reg *provider.Registry, cfg *config.Config) {
	for _, name := range slices.Sorted(maps.Keys(cfg.Providers)) {
		pc := cfg.Providers[name]

		factory, ok := builtinProviderFactories[name]
		if !ok {
			slog.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		if name != "static" && pc.APIKey == "" {
			slog.Warn("skipping provider with empty API key", "provider", name)
			continue
		}

		p, err := factory(pc)
		if err != nil {
			slog.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}

		_, err = reg.Register(p, provider.Config{
			Enabled:        pc.Enabled,
			Priority:       pc.Priority,
			Weight:         pc.Weight,
			CostPerToken:   pc.CostPerToken,
			Quality:        pc.Quality,
			MaxConcurrency: pc.MaxConcurrency,
			RateLimit:      pc.RateLimit,
			Languages:      pc.Languages,
		})
		if err != nil {
			slog.Warn("failed to register provider", "provider", name, "error", err)
			continue
		}
		slog.Info("registered provider", "provider", name, "enabled", pc.Enabled)
	}
}

func retryPolicyFromConfig(rc config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxRetries:     rc.MaxRetries,
		BaseDelay:      rc.BaseDelay,
		MaxDelay:       rc.MaxDelay,
		Strategy:       retry.Strategy(rc.Strategy),
		Multiplier:     rc.Multiplier,
		JitterFactor:   rc.JitterFactor,
		AttemptTimeout: rc.AttemptTimeout,
		TimeoutGrowth:  rc.TimeoutGrowth,
	}
}

// registerHealthChecks installs a critical liveness probe per provider and a
// warning-level breaker-state check beside it. Probes pass for disabled
// providers so switching one off does not degrade the gateway. Getting the
// breaker here also pre-creates it, so snapshots list every provider's
// breaker from boot instead of from its first routed request.
func registerHealthChecks(m *health.Monitor, reg *provider.Registry, breakers *breaker.Manager) error {
	for _, r := range reg.List() {
		name := r.Name()

		probe := func(ctx context.Context) error {
			if !r.Enabled() {
				return nil
			}
			if !r.Provider().Healthy(ctx) {
				return aegiserr.Errorf(aegiserr.CodeProviderCallFailure,
					"provider %s reports unhealthy", name)
			}
			return nil
		}
		if err := m.AddCheck("provider:"+name, probe, health.CheckConfig{Critical: true}); err != nil {
			return err
		}

		b := breakers.Get(name)
		breakerProbe := func(_ context.Context) error {
			if b.State() == breaker.StateOpen {
				return aegiserr.Errorf(aegiserr.CodeBreakerOpen,
					"circuit for %s is open", name)
			}
			return nil
		}
		if err := m.AddCheck("breaker:"+name, breakerProbe, health.CheckConfig{}); err != nil {
			return err
		}
	}
	return nil
}

// openSemanticIndex builds the embedder and sqlite-vec index for the optional
// semantic cache tier. Config validation has already required the OpenAI key.
func openSemanticIndex(cfg *config.Config) (*sqlitevec.Index, error) {
	oc := cfg.Providers["openai"]
	embedder, err := sqlitevec.NewOpenAIEmbedder(sqlitevec.EmbedderConfig{
		APIKey:     oc.APIKey,
		BaseURL:    oc.Endpoint,
		Model:      cfg.Cache.Semantic.Model,
		Dimensions: cfg.Cache.Semantic.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	return sqlitevec.Open(cfg.Cache.Semantic.Path, embedder)
}
