// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthpkg "github.com/aegis-dev/aegis/pkg/health"
)

func TestRootCommand_Help(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "aegis")
	assert.Contains(t, buf.String(), "start")
	assert.Contains(t, buf.String(), "status")
	assert.Contains(t, buf.String(), "generate")
	assert.Contains(t, buf.String(), "version")
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"version"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "aegis")
}

func TestStartCommand_RequiresConfig(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"start", "--config", "/nonexistent/path.yaml"})

	err := root.Execute()
	assert.Error(t, err)
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--verbose", "--help"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "--config")
	assert.Contains(t, buf.String(), "--verbose")
}

func TestStatusCommand_Help(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"status", "--help"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "status")
}

// statusFixture is a small but fully populated snapshot for CLI rendering.
func statusFixture() healthpkg.Snapshot {
	return healthpkg.Snapshot{
		Status:     "healthy",
		UptimeSecs: 90,
		Aggregates: healthpkg.Aggregates{
			Requests:          42,
			SuccessRate:       0.95,
			AvgLatencyMS:      120,
			RequestsPerMinute: 3.5,
			RollingCostUSD:    0.0123,
		},
		Providers: []healthpkg.ProviderStatus{
			{Name: "anthropic", Enabled: true, Healthy: true, Requests: 40, SuccessRate: 0.97, AvgLatencyMS: 110},
			{Name: "openai", Enabled: false, Healthy: true},
		},
		Breakers: []healthpkg.BreakerStatus{
			{Name: "anthropic", State: "closed", Requests: 40},
		},
		Cache: &healthpkg.CacheStats{Entries: 5, MaxEntries: 1000, Hits: 12, HitRate: 0.3, EstSavedUSD: 0.004},
		Health: healthpkg.HealthReport{
			Healthy: true,
			Checks: []healthpkg.CheckStatus{
				{Name: "provider:anthropic", Critical: true, Healthy: true},
			},
		},
	}
}

func newStatusServer(t *testing.T, snap healthpkg.Snapshot) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}))
}

func TestStatusCommand_HealthyGateway(t *testing.T) {
	srv := newStatusServer(t, statusFixture())
	defer srv.Close()

	old := defaultHTTPClient
	defaultHTTPClient = srv.Client()
	defer func() { defaultHTTPClient = old }()

	// Extract host:port from test server URL (strip "http://").
	addr := srv.URL[len("http://"):]

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"status", "--address", addr})

	err := root.Execute()
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "anthropic")
	assert.Contains(t, out, "disabled") // openai is off in the fixture
	assert.Contains(t, out, "closed")
	assert.Contains(t, out, "Cache:")
	assert.Contains(t, out, "1/1 checks passing")
}

func TestStatusCommand_JSON(t *testing.T) {
	srv := newStatusServer(t, statusFixture())
	defer srv.Close()

	old := defaultHTTPClient
	defaultHTTPClient = srv.Client()
	defer func() { defaultHTTPClient = old }()

	addr := srv.URL[len("http://"):]

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"status", "--address", addr, "--json"})

	err := root.Execute()
	require.NoError(t, err)

	var snap healthpkg.Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snap))
	assert.Equal(t, "healthy", snap.Status)
	assert.Len(t, snap.Providers, 2)
}

func TestStatusCommand_GatewayDown(t *testing.T) {
	// Use an address that will refuse connections.
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"status", "--address", "127.0.0.1:1"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "not running")
}
