// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegis-dev/aegis/internal/provider"
)

// fakeProvider is a reusable provider.Provider for tests. Set generateFn to
// script behavior; the default returns a canned success.
type fakeProvider struct {
	name       string
	healthy    bool
	costPerTok float64
	generateFn func(ctx context.Context, req provider.Request) (*provider.Result, error)
	calls      int
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, healthy: true}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Healthy(context.Context) bool { return f.healthy }

func (f *fakeProvider) EstimateCost(tokens int) float64 {
	return float64(tokens) * f.costPerTok
}

func (f *fakeProvider) Generate(ctx context.Context, req provider.Request) (*provider.Result, error) {
	f.calls++
	if f.generateFn != nil {
		return f.generateFn(ctx, req)
	}
	return &provider.Result{
		Content:    "ok from " + f.name,
		Model:      req.Options.Model,
		Provider:   f.name,
		TokensUsed: 10,
		Cost:       0.0001,
	}, nil
}

// register adds a fake under cfg and fails the test on error.
func register(t *testing.T, reg *provider.Registry, p provider.Provider, cfg provider.Config) *provider.Registration {
	t.Helper()
	r, err := reg.Register(p, cfg)
	require.NoError(t, err)
	return r
}

// enabledCfg is the minimal enabled config.
func enabledCfg() provider.Config {
	return provider.Config{Enabled: true}
}
