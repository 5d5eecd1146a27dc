// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package provider_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, newFakeProvider("anthropic"), enabledCfg())

	r, err := reg.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", r.Name())
	assert.True(t, r.Enabled())
}

func TestRegistry_DuplicateNameIsConflict(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, newFakeProvider("anthropic"), enabledCfg())

	_, err := reg.Register(newFakeProvider("anthropic"), enabledCfg())
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeProviderConflict))
	assert.True(t, aegiserr.IsConflict(err))
}

func TestRegistry_RejectsNilAndUnnamed(t *testing.T) {
	reg := provider.NewRegistry()

	_, err := reg.Register(nil, enabledCfg())
	require.Error(t, err)

	_, err = reg.Register(newFakeProvider(""), enabledCfg())
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeProviderConfigInvalid))
}

func TestRegistry_ConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  provider.Config
	}{
		{"negative priority", provider.Config{Priority: -1}},
		{"negative weight", provider.Config{Weight: -2}},
		{"negative cost", provider.Config{CostPerToken: -0.1}},
		{"quality above one", provider.Config{Quality: 1.5}},
		{"negative quality", provider.Config{Quality: -0.1}},
		{"negative concurrency", provider.Config{MaxConcurrency: -1}},
		{"negative rate limit", provider.Config{RateLimit: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := provider.NewRegistry()
			_, err := reg.Register(newFakeProvider("p"), tt.cfg)
			require.Error(t, err)
			assert.True(t, aegiserr.HasCode(err, aegiserr.CodeProviderConfigInvalid))
		})
	}
}

func TestRegistry_GetUnknownIsNotFound(t *testing.T) {
	reg := provider.NewRegistry()

	_, err := reg.Get("nope")
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeProviderNotFound))
	assert.True(t, aegiserr.IsNotFound(err))
}

func TestRegistry_ListKeepsRegistrationOrder(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, newFakeProvider("anthropic"), enabledCfg())
	register(t, reg, newFakeProvider("openai"), enabledCfg())
	register(t, reg, newFakeProvider("google"), enabledCfg())

	var names []string
	for _, r := range reg.List() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"anthropic", "openai", "google"}, names)
}

func TestRegistry_EnabledFiltersAndFlips(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, newFakeProvider("anthropic"), enabledCfg())
	register(t, reg, newFakeProvider("openai"), provider.Config{Enabled: false})

	require.Len(t, reg.Enabled(), 1)

	require.NoError(t, reg.SetEnabled("openai", true))
	assert.Len(t, reg.Enabled(), 2)

	require.NoError(t, reg.SetEnabled("anthropic", false))
	enabled := reg.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "openai", enabled[0].Name())

	assert.Error(t, reg.SetEnabled("nope", true))
}

func TestRegistry_ResetStats(t *testing.T) {
	reg := provider.NewRegistry()
	r := register(t, reg, newFakeProvider("anthropic"), enabledCfg())

	r.RecordSuccess(100*time.Millisecond, 0.002)
	r.RecordFailure(50 * time.Millisecond)
	require.Equal(t, int64(2), r.Stats().Requests())

	require.NoError(t, reg.ResetStats("anthropic"))
	assert.Zero(t, r.Stats().Requests())
	assert.Zero(t, r.Stats().TotalCost())

	assert.Error(t, reg.ResetStats("nope"))
}

func TestRegistry_SnapshotReflectsObservedState(t *testing.T) {
	reg := provider.NewRegistry()
	r := register(t, reg, newFakeProvider("anthropic"), provider.Config{
		Enabled:      true,
		Priority:     2,
		Weight:       7,
		CostPerToken: 0.000003,
		Quality:      0.9,
	})

	r.RecordSuccess(100*time.Millisecond, 0.01)
	r.RecordSuccess(300*time.Millisecond, 0.02)
	r.RecordFailure(200 * time.Millisecond)

	snaps := reg.Snapshot()
	require.Len(t, snaps, 1)
	s := snaps[0]

	assert.Equal(t, "anthropic", s.Name)
	assert.True(t, s.Enabled)
	assert.False(t, s.Healthy, "last call failed, cooldown in force")
	assert.Equal(t, 2, s.Priority)
	assert.Equal(t, 7, s.Weight)
	assert.Equal(t, int64(3), s.Requests)
	assert.Equal(t, int64(2), s.Successes)
	assert.Equal(t, int64(1), s.Failures)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
	assert.Equal(t, int64(200), s.AvgLatencyMS)
	assert.InDelta(t, 0.03, s.TotalCostUSD, 1e-9)
	require.NotNil(t, s.LastUsed)
	require.NotNil(t, s.CooldownUntil)
}

func TestRegistration_SaturatedByConcurrency(t *testing.T) {
	reg := provider.NewRegistry()
	r := register(t, reg, newFakeProvider("anthropic"), provider.Config{
		Enabled:        true,
		MaxConcurrency: 1,
	})

	assert.False(t, r.Saturated())
	r.Begin()
	assert.True(t, r.Saturated())
	r.End()
	assert.False(t, r.Saturated())
}

func TestRegistration_SaturatedByRateLimit(t *testing.T) {
	reg := provider.NewRegistry()
	r := register(t, reg, newFakeProvider("anthropic"), provider.Config{
		Enabled:   true,
		RateLimit: 2,
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetNowFunc(func() time.Time { return now })

	r.Begin()
	r.End()
	assert.False(t, r.Saturated())

	r.Begin()
	r.End()
	assert.True(t, r.Saturated(), "two calls this minute hit the limit")

	// Next minute the window resets.
	now = now.Add(time.Minute)
	assert.False(t, r.Saturated())
}

func TestRegistration_HealthCooldownReentry(t *testing.T) {
	reg := provider.NewRegistry()
	r := register(t, reg, newFakeProvider("anthropic"), provider.Config{
		Enabled:        true,
		HealthCooldown: 10 * time.Second,
	})

	now := time.Now()
	r.SetNowFunc(func() time.Time { return now })

	r.RecordFailure(time.Millisecond)
	assert.False(t, r.Health().IsHealthy())

	now = now.Add(11 * time.Second)
	assert.True(t, r.Health().IsHealthy(), "cooldown elapsed, eligible again")
}
