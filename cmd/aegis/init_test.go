// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// --- Config generation tests ---

func TestGenerateConfigYAML(t *testing.T) {
	tests := []struct {
		name   string
		result initResult
		checks []string
	}{
		{
			name: "anthropic with openai fallback",
			result: initResult{
				Primary:     provider.NameAnthropic,
				PrimaryKey:  "sk-ant-test",
				Fallback:    provider.NameOpenAI,
				FallbackKey: "sk-openai-test",
			},
			checks: []string{
				"keyring://aegis/anthropic_api_key",
				"claude-sonnet-4-5",
				"keyring://aegis/openai_api_key",
				"gpt-4.1-mini",
				"provider: openai",
			},
		},
		{
			name: "openai only",
			result: initResult{
				Primary:    provider.NameOpenAI,
				PrimaryKey: "sk-openai",
			},
			checks: []string{
				"keyring://aegis/openai_api_key",
				"gpt-4.1-mini",
			},
		},
		{
			name: "google with openrouter fallback",
			result: initResult{
				Primary:     provider.NameGoogle,
				PrimaryKey:  "AIza-test",
				Fallback:    provider.NameOpenRouter,
				FallbackKey: "sk-or-test",
			},
			checks: []string{
				"keyring://aegis/google_api_key",
				"gemini-2.5-flash",
				"keyring://aegis/openrouter_api_key",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := GenerateConfigYAML(tt.result)
			for _, check := range tt.checks {
				assert.Contains(t, yaml, check, "YAML missing expected content: %q", check)
			}
			// API keys themselves must NOT appear in plain text.
			assert.NotContains(t, yaml, tt.result.PrimaryKey, "plain-text API key must not appear in YAML")
			if tt.result.FallbackKey != "" {
				assert.NotContains(t, yaml, tt.result.FallbackKey, "plain-text API key must not appear in YAML")
			}
		})
	}
}

func TestGenerateConfigYAML_ContainsRequiredSections(t *testing.T) {
	yaml := GenerateConfigYAML(initResult{
		Primary:     provider.NameAnthropic,
		PrimaryKey:  "sk-ant",
		Fallback:    provider.NameOpenAI,
		FallbackKey: "sk-oa",
	})

	for _, section := range []string{"server:", "providers:", "selection:", "fallback:"} {
		assert.Contains(t, yaml, section, "missing section: %s", section)
	}
}

func TestGenerateConfigYAML_NoFallback(t *testing.T) {
	yaml := GenerateConfigYAML(initResult{
		Primary:    provider.NameAnthropic,
		PrimaryKey: "sk-ant",
	})

	assert.Contains(t, yaml, "keyring://aegis/anthropic_api_key")
	assert.NotContains(t, yaml, "openai")
	assert.Contains(t, yaml, `provider: ""`)
}

// The wizard's output must load and validate cleanly.
func TestGenerateConfigYAML_RoundTripLoads(t *testing.T) {
	yaml := GenerateConfigYAML(initResult{
		Primary:     provider.NameAnthropic,
		PrimaryKey:  "sk-ant",
		Fallback:    provider.NameOpenAI,
		FallbackKey: "sk-oa",
	})

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "aegis.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	// nil store leaves keyring:// URIs unresolved, which still validates.
	cfg, err := config.Load(cfgPath, nil)
	require.NoError(t, err)
	assert.Len(t, cfg.Providers, 2)
	assert.Equal(t, 1, cfg.Providers["anthropic"].Priority)
	assert.Equal(t, 2, cfg.Providers["openai"].Priority)
	assert.Equal(t, "openai", cfg.Fallback.Provider)
}

// --- bubbletea model state transition tests ---

func TestInitModel_ProviderSelection(t *testing.T) {
	m := newInitModel(nil)
	assert.Equal(t, stepPrimary, m.step)
	assert.Equal(t, 0, m.primaryIdx)

	// Navigate down twice.
	m2, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m3, _ := m2.(initModel).Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, m3.(initModel).primaryIdx)

	// Navigate up once.
	m4, _ := m3.(initModel).Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, m4.(initModel).primaryIdx)

	// Can't go above 0.
	m5, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m5.(initModel).primaryIdx)

	// Can't go below max.
	mMax := m
	mMax.primaryIdx = len(provider.KnownNames) - 1
	m6, _ := mMax.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, len(provider.KnownNames)-1, m6.(initModel).primaryIdx)
}

func TestInitModel_SelectPrimary_TransitionsToAPIKey(t *testing.T) {
	m := newInitModel(nil)
	m.primaryIdx = 1 // OpenAI

	m2, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	result := m2.(initModel)
	assert.Equal(t, stepPrimaryKey, result.step)
	assert.Equal(t, provider.NameOpenAI, result.result.Primary)
}

func TestInitModel_EmptyAPIKey_ShowsError(t *testing.T) {
	m := newInitModel(nil)
	m.step = stepPrimaryKey
	m.result.Primary = provider.NameAnthropic
	// Don't set any value in apiKeyInput.

	m2, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	result := m2.(initModel)
	assert.Equal(t, stepPrimaryKey, result.step)
	assert.NotEmpty(t, result.validationErr)
}

func TestInitModel_ValidationError_ResetsToInput(t *testing.T) {
	m := newInitModel(nil)
	m.step = stepValidatePrimary

	m2, _ := m.Update(validationErrorMsg{
		step: stepValidatePrimary,
		err:  aegiserr.New(aegiserr.CodeCLIInputInvalid, "bad key"),
	})
	result := m2.(initModel)
	assert.Equal(t, stepPrimaryKey, result.step)
	assert.Contains(t, result.validationErr, "bad key")
}

func TestInitModel_FallbackValidationError_ResetsToInput(t *testing.T) {
	m := newInitModel(nil)
	m.step = stepValidateFallback

	m2, _ := m.Update(validationErrorMsg{
		step: stepValidateFallback,
		err:  aegiserr.New(aegiserr.CodeCLIInputInvalid, "bad fallback key"),
	})
	result := m2.(initModel)
	assert.Equal(t, stepFallbackKey, result.step)
	assert.Contains(t, result.validationErr, "bad fallback key")
}

func TestInitModel_FallbackSameAsPrimary_Rejected(t *testing.T) {
	m := newInitModel(nil)
	m.step = stepFallback
	m.result.Primary = provider.NameAnthropic
	m.fallbackIdx = 0 // anthropic again

	m2, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	result := m2.(initModel)
	assert.Equal(t, stepFallback, result.step, "same provider must not advance")
	assert.Contains(t, result.validationErr, "differ")
	assert.Empty(t, result.result.Fallback)
}

func TestInitModel_FallbackDifferent_TransitionsToKey(t *testing.T) {
	m := newInitModel(nil)
	m.step = stepFallback
	m.result.Primary = provider.NameAnthropic
	m.fallbackIdx = 1 // openai

	m2, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	result := m2.(initModel)
	assert.Equal(t, stepFallbackKey, result.step)
	assert.Equal(t, provider.NameOpenAI, result.result.Fallback)
}

func TestInitModel_ConfigWritten_TransitionsToDone(t *testing.T) {
	m := newInitModel(nil)
	m.step = stepValidateFallback

	m2, _ := m.Update(configWrittenMsg{path: "/tmp/aegis.yaml"})
	fm := m2.(initModel)
	assert.Equal(t, stepDone, fm.step)
	assert.Equal(t, "/tmp/aegis.yaml", fm.configPath)
}

// --- Fallback skip tests ---

func TestInitModel_FallbackSkip_SKey(t *testing.T) {
	m := newInitModel(nil)
	m.step = stepFallback
	m.result.Primary = provider.NameAnthropic

	m2, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	result := m2.(initModel)
	assert.Empty(t, result.result.Fallback)
	assert.Empty(t, result.result.FallbackKey)
	// A command should be returned (writeConfigCmd).
	assert.NotNil(t, cmd)
}

func TestInitModel_SkipFallbackFlag_SkipsAfterPrimaryValidation(t *testing.T) {
	m := newInitModel(nil)
	m.step = stepValidatePrimary
	m.result.Primary = provider.NameAnthropic
	m.skipFallback = true

	m2, cmd := m.Update(validationSuccessMsg{step: stepValidatePrimary})
	result := m2.(initModel)
	assert.Empty(t, result.result.Fallback)
	// Should produce a write command, not transition to stepFallback.
	assert.NotNil(t, cmd)
	assert.NotEqual(t, stepFallback, result.step)
}

func TestInitModel_NoSkipFlag_TransitionsToFallback(t *testing.T) {
	m := newInitModel(nil)
	m.step = stepValidatePrimary
	m.result.Primary = provider.NameAnthropic
	m.skipFallback = false

	m2, _ := m.Update(validationSuccessMsg{step: stepValidatePrimary})
	assert.Equal(t, stepFallback, m2.(initModel).step)
}

// --- View tests ---

func TestInitModel_View_ContainsExpectedContent(t *testing.T) {
	tests := []struct {
		name string
		step initWizardStep
		want []string
	}{
		{
			name: "primary step",
			step: stepPrimary,
			want: []string{"Step 1/2", "anthropic", "openai", "google", "openrouter"},
		},
		{
			name: "fallback step",
			step: stepFallback,
			want: []string{"Step 2/2", "s to skip"},
		},
		{
			name: "done step",
			step: stepDone,
			want: []string{"Setup complete", "aegis start", "aegis generate", "aegis doctor"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newInitModel(nil)
			m.step = tt.step
			view := m.View()
			for _, w := range tt.want {
				assert.Contains(t, view, w)
			}
		})
	}
}

func TestDefaultModelForProvider(t *testing.T) {
	tests := []struct {
		provider provider.Name
		want     string
	}{
		{provider.NameAnthropic, "claude-sonnet-4-5"},
		{provider.NameOpenAI, "gpt-4.1-mini"},
		{provider.NameGoogle, "gemini-2.5-flash"},
		{provider.NameOpenRouter, "openai/gpt-4.1-mini"},
		{"custom", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			assert.Equal(t, tt.want, defaultModelForProvider(tt.provider))
		})
	}
}

// --- Config overwrite detection ---
// Tests below reuse mockSecretStore from secret_test.go (same package).

func TestStoreSecretAndWriteConfig_OverwriteProtection(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "aegis.yaml")

	// Override configPathForWrite so it points to our temp dir.
	origFn := configPathForWrite
	configPathForWrite = func() (string, error) { return cfgPath, nil }
	t.Cleanup(func() { configPathForWrite = origFn })

	store := newMockSecretStore()
	result := initResult{
		Primary:     provider.NameAnthropic,
		PrimaryKey:  "sk-test",
		Fallback:    provider.NameOpenAI,
		FallbackKey: "sk-test-2",
	}

	// First write should succeed.
	path, err := storeSecretAndWriteConfig(result, store, false)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, path)

	// Second write without force should fail.
	_, err = storeSecretAndWriteConfig(result, store, false)
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeConfigAlreadyExists))
	assert.Contains(t, err.Error(), "--force to overwrite")

	// Write with force should succeed.
	path, err = storeSecretAndWriteConfig(result, store, true)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, path)
}

func TestStoreSecretAndWriteConfig_StoresBothKeys(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "aegis.yaml")

	origFn := configPathForWrite
	configPathForWrite = func() (string, error) { return cfgPath, nil }
	t.Cleanup(func() { configPathForWrite = origFn })

	store := newMockSecretStore()
	result := initResult{
		Primary:     provider.NameAnthropic,
		PrimaryKey:  "sk-primary",
		Fallback:    provider.NameOpenAI,
		FallbackKey: "sk-fallback",
	}

	_, err := storeSecretAndWriteConfig(result, store, false)
	require.NoError(t, err)

	v, err := store.Retrieve(serviceName, "anthropic_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-primary", v)

	v, err = store.Retrieve(serviceName, "openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-fallback", v)
}

func TestStoreSecretAndWriteConfig_SkipsFallbackKeyWhenEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "aegis.yaml")

	origFn := configPathForWrite
	configPathForWrite = func() (string, error) { return cfgPath, nil }
	t.Cleanup(func() { configPathForWrite = origFn })

	store := newMockSecretStore()
	result := initResult{
		Primary:    provider.NameAnthropic,
		PrimaryKey: "sk-test",
	}

	_, err := storeSecretAndWriteConfig(result, store, false)
	require.NoError(t, err)

	// Primary key should be stored.
	_, provErr := store.Retrieve(serviceName, "anthropic_api_key")
	assert.NoError(t, provErr)

	// Nothing else should be stored.
	assert.Len(t, store.data, 1, "only the primary key should be stored when fallback is skipped")

	// Written config should not reference a fallback provider.
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `provider: ""`)
}
