// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package static implements a canned-response provider. It never calls out,
// never fails, and costs nothing, which makes it the fallback of last resort
// when every real provider is down.
package static

import (
	"context"
	"time"

	"github.com/aegis-dev/aegis/internal/provider"
)

const (
	providerName = "static"

	// DefaultResponse is returned when the config does not supply one.
	DefaultResponse = "The service is temporarily degraded and no AI provider is available. Please retry shortly."
)

// Config holds static provider configuration.
type Config struct {
	Response string // canned response body, DefaultResponse when empty
	Model    string // reported model name, providerName when empty
}

// Provider implements provider.Provider with a fixed local response.
type Provider struct {
	response string
	model    string
}

// New creates a static provider. It cannot fail.
func New(cfg Config) *Provider {
	if cfg.Response == "" {
		cfg.Response = DefaultResponse
	}
	if cfg.Model == "" {
		cfg.Model = providerName
	}
	return &Provider{response: cfg.Response, model: cfg.Model}
}

func (p *Provider) Name() string { return providerName }

// Healthy always reports true. There is no upstream to probe.
func (p *Provider) Healthy(_ context.Context) bool { return true }

// EstimateCost is always zero.
func (p *Provider) EstimateCost(_ int) float64 { return 0 }

// Generate returns the canned response. The prompt is only consulted for
// cancellation, never inspected.
func (p *Provider) Generate(ctx context.Context, _ provider.Request) (*provider.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &provider.Result{
		Content:  p.response,
		Model:    p.model,
		Provider: providerName,
		// Rough accounting only: about four characters per token.
		TokensUsed: len(p.response) / 4,
		Cost:       0,
		Latency:    time.Duration(0),
	}, nil
}
