// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package google_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/internal/provider/google"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*google.Provider)(nil)

func TestGoogleProvider_Name(t *testing.T) {
	p := mustNewProvider(t, "")
	assert.Equal(t, "google", p.Name())
}

func TestGoogleProvider_MissingAPIKey(t *testing.T) {
	_, err := google.New(google.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeProviderConfigInvalid))
}

func TestGoogleProvider_Generate(t *testing.T) {
	var gotPath string
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "Scattering."}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 50, "candidatesTokenCount": 10, "totalTokenCount": 60}
		}`)
	}))
	defer server.Close()

	p := mustNewProvider(t, server.URL)
	res, err := p.Generate(context.Background(), provider.Request{
		Prompt:  "why is the sky blue?",
		Context: map[string]string{"audience": "beginner"},
		Options: provider.Options{Model: "gemini-2.5-flash-lite", MaxTokens: 512, Temperature: 0.25},
	})
	require.NoError(t, err)

	assert.Equal(t, "Scattering.", res.Content)
	assert.Equal(t, "gemini-2.5-flash-lite", res.Model)
	assert.Equal(t, "google", res.Provider)
	assert.Equal(t, 60, res.TokensUsed)
	// 50 input tokens at $0.10/MTok plus 10 output tokens at $0.40/MTok.
	assert.InDelta(t, 9e-6, res.Cost, 1e-12)
	assert.Greater(t, res.Latency, time.Duration(0))

	assert.True(t, strings.HasSuffix(gotPath, "models/gemini-2.5-flash-lite:generateContent"),
		"unexpected request path %q", gotPath)
	assert.Contains(t, gotBody, "why is the sky blue?")
	assert.Contains(t, gotBody, "audience: beginner")
	assert.Contains(t, gotBody, `"maxOutputTokens":512`)
	assert.Contains(t, gotBody, `"temperature":0.25`)
}

func TestGoogleProvider_Generate_Defaults(t *testing.T) {
	var gotPath string
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "ok"}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 1, "totalTokenCount": 6}
		}`)
	}))
	defer server.Close()

	p := mustNewProvider(t, server.URL)
	_, err := p.Generate(context.Background(), provider.Request{Prompt: "hi"})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(gotPath, "models/"+google.DefaultModel+":generateContent"),
		"unexpected request path %q", gotPath)
	assert.Contains(t, gotBody, `"maxOutputTokens":1024`)
	assert.NotContains(t, gotBody, "temperature")
	assert.NotContains(t, gotBody, "systemInstruction")
}

func TestGoogleProvider_Generate_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [],
			"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 0, "totalTokenCount": 5}
		}`)
	}))
	defer server.Close()

	p := mustNewProvider(t, server.URL)
	_, err := p.Generate(context.Background(), provider.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeProviderResponseEmpty))
}

func TestGoogleProvider_Generate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		gstatus  string
		wantCode aegiserr.Code
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, gstatus: "RESOURCE_EXHAUSTED", wantCode: aegiserr.CodeProviderRateLimited},
		{name: "server error", status: http.StatusInternalServerError, gstatus: "INTERNAL", wantCode: aegiserr.CodeProviderCallFailure},
		{name: "bad request", status: http.StatusBadRequest, gstatus: "INVALID_ARGUMENT", wantCode: aegiserr.CodeProviderCallFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"code":%d,"message":"upstream unhappy","status":%q}}`, tt.status, tt.gstatus)
			}))
			defer server.Close()

			p := mustNewProvider(t, server.URL)
			_, err := p.Generate(context.Background(), provider.Request{Prompt: "hi"})
			require.Error(t, err)
			assert.True(t, aegiserr.HasCode(err, tt.wantCode), "unexpected code for %v", err)

			status, ok := aegiserr.StatusOf(err)
			require.True(t, ok, "error should carry the upstream HTTP status")
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestGoogleProvider_Healthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer server.Close()

	p := mustNewProvider(t, server.URL)
	assert.True(t, p.Healthy(context.Background()))
}

func TestGoogleProvider_Healthy_RejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := mustNewProvider(t, server.URL)
	assert.False(t, p.Healthy(context.Background()))
}

func TestGoogleProvider_EstimateCost(t *testing.T) {
	p, err := google.New(google.Config{APIKey: "test-key", Model: "gemini-2.5-pro"})
	require.NoError(t, err)

	// Blended pro rate: ($1.25 + $10) / 2 per MTok.
	assert.InDelta(t, 5.625, p.EstimateCost(1_000_000), 1e-9)
}

func TestCost_ModelRates(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		in, out int64
		want    float64
	}{
		{name: "pro list price", model: "gemini-2.5-pro", in: 1_000_000, out: 1_000_000, want: 11.25},
		{name: "flash list price", model: "gemini-2.5-flash", in: 1_000_000, out: 1_000_000, want: 2.8},
		{name: "flash-lite resolves by longest prefix", model: "gemini-2.5-flash-lite", in: 1_000_000, out: 1_000_000, want: 0.5},
		{name: "preview suffix resolves by prefix", model: "gemini-2.5-flash-lite-preview-06-17", in: 1_000_000, out: 0, want: 0.1},
		{name: "unknown model prices at default", model: "some-future-model", in: 1_000_000, out: 0, want: 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, google.CostOf(tt.model, tt.in, tt.out), 1e-9)
		})
	}
}

func TestWrapErr_ContextErrorsPassThrough(t *testing.T) {
	canceled := fmt.Errorf("round trip: %w", context.Canceled)
	assert.Equal(t, canceled, google.WrapErr(canceled))

	deadline := fmt.Errorf("round trip: %w", context.DeadlineExceeded)
	assert.Equal(t, deadline, google.WrapErr(deadline))
}

func TestWrapErr_APIError(t *testing.T) {
	err := google.WrapErr(genai.APIError{Code: http.StatusRequestTimeout, Message: "deadline"})
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeProviderTimeout))

	status, ok := aegiserr.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusRequestTimeout, status)
}

func TestWrapErr_TransportError(t *testing.T) {
	err := google.WrapErr(fmt.Errorf("dial tcp: connection refused"))
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeProviderCallFailure))

	_, ok := aegiserr.StatusOf(err)
	assert.False(t, ok, "transport errors carry no HTTP status")
}

// mustNewProvider creates a provider with a dummy API key, pointed at the
// given mock server when baseURL is non-empty.
func mustNewProvider(t *testing.T, baseURL string) *google.Provider {
	t.Helper()
	p, err := google.New(google.Config{APIKey: "test-key", BaseURL: baseURL})
	require.NoError(t, err)
	return p
}
