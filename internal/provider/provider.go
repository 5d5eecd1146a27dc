// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Provider is the capability contract every completion backend implements.
// Adapters own their SDK clients and translate vendor errors into coded
// errors carrying the upstream HTTP status, so the retry classifier can
// work without knowing vendors.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
	// Healthy is the adapter's own cheap liveness view (key present, client
	// constructed). Observed health lives in the registration's tracker.
	Healthy(ctx context.Context) bool
	// EstimateCost predicts the cost in USD of a call consuming roughly the
	// given total token count, using the adapter's pricing table.
	EstimateCost(tokens int) float64
}

// Request is a completion request.
type Request struct {
	Prompt string
	// Context carries request attributes (conversation id, tenant, …) that
	// also key the response cache.
	Context map[string]string
	Options Options
}

// Options tune a single request.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// Language the prompt is written in, used for capability-aware routing.
	Language string
}

// Result is a completed generation.
type Result struct {
	Content    string
	Model      string
	Provider   string
	TokensUsed int
	// Cost in USD as computed from the adapter's pricing table.
	Cost    float64
	Latency time.Duration
}

// ContextPreamble renders request context attributes as a deterministic
// system preamble, one "key: value" line per attribute in key order. Adapters
// feed it to whatever system-instruction mechanism their vendor offers.
func ContextPreamble(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}

	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		fmt.Fprintf(&b, "%s: %s\n", k, attrs[k])
	}
	return strings.TrimSuffix(b.String(), "\n")
}
