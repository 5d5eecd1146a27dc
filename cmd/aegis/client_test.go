// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// testClient returns a gatewayClient wired to the given test server.
func testClient(srv *httptest.Server) *gatewayClient {
	return &gatewayClient{
		baseURL: srv.URL,
		http:    srv.Client(),
	}
}

func TestGatewayClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	defer srv.Close()

	var body struct {
		Status string `json:"status"`
	}
	err := testClient(srv).getJSON("/api/v1/status", &body)
	require.NoError(t, err)
	assert.Equal(t, "healthy", body.Status)
}

func TestGatewayClient_PostJSON_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": req["prompt"]})
	}))
	defer srv.Close()

	var body struct {
		Echo string `json:"echo"`
	}
	err := testClient(srv).postJSON("/api/v1/generate", map[string]string{"prompt": "hi"}, &body)
	require.NoError(t, err)
	assert.Equal(t, "hi", body.Echo)
}

func TestGatewayClient_PostJSON_NilBodyAndDest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	}))
	defer srv.Close()

	err := testClient(srv).postJSON("/api/v1/breakers/x/reset", nil, nil)
	require.NoError(t, err)
}

func TestGatewayClient_ConnectionRefused(t *testing.T) {
	client := newGatewayClient("127.0.0.1:1")

	err := client.getJSON("/api/v1/status", nil)
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeCLIGatewayNotRunning))
	assert.Contains(t, err.Error(), "not running")
}

func TestGatewayClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"title":  "Service Unavailable",
			"detail": "all providers failed",
		})
	}))
	defer srv.Close()

	err := testClient(srv).getJSON("/api/v1/status", nil)
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeCLIRequestFailure))
	assert.Contains(t, err.Error(), "all providers failed")

	status, ok := aegiserr.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestGatewayClient_ErrorStatus_TitleFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"title": "Not Found"})
	}))
	defer srv.Close()

	err := testClient(srv).getJSON("/api/v1/breakers", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not Found")
}

func TestGatewayClient_InvalidResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not json"))
	}))
	defer srv.Close()

	var body map[string]any
	err := testClient(srv).getJSON("/api/v1/status", &body)
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeCLIResponseInvalid))
}
