// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by gateway commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}

// gatewayClient provides HTTP access to a running Aegis gateway.
type gatewayClient struct {
	baseURL string
	http    *http.Client
}

// newGatewayClient creates a client targeting the given host:port address.
func newGatewayClient(addr string) *gatewayClient {
	return &gatewayClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
// Connection-refused dials come back as CodeCLIGatewayNotRunning so commands
// can tell "not started" apart from a failing gateway.
func (c *gatewayClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return aegiserr.Errorf(aegiserr.CodeCLIGatewayNotRunning,
				"gateway is not running (connection refused): %w", err)
		}
		return aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return decodeResponse(resp, dest)
}

// postJSON performs a POST with a JSON body (nil means empty) and decodes the
// JSON response into dest (nil discards it).
func (c *gatewayClient) postJSON(path string, body, dest any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "encoding request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", payload)
	if err != nil {
		if isDialError(err) {
			return aegiserr.Errorf(aegiserr.CodeCLIGatewayNotRunning,
				"gateway is not running (connection refused): %w", err)
		}
		return aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return decodeResponse(resp, dest)
}

// decodeResponse maps non-2xx statuses to CodeCLIRequestFailure carrying the
// upstream status (so callers can branch on 404 and friends) and the gateway's
// error detail, then decodes the body into dest.
func decodeResponse(resp *http.Response, dest any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := errorDetail(resp.Body)
		return aegiserr.New(aegiserr.CodeCLIRequestFailure,
			"gateway returned status "+resp.Status+": "+detail,
			aegiserr.FieldHTTPStatus(resp.StatusCode),
		)
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return aegiserr.Errorf(aegiserr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// errorDetail extracts the human-readable part of a gateway error body. The
// ops API speaks RFC 7807, so prefer detail/title over dumping raw JSON.
func errorDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "(no body)"
	}

	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &problem); err == nil {
		if problem.Detail != "" {
			return problem.Detail
		}
		if problem.Title != "" {
			return problem.Title
		}
	}
	return string(raw)
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
