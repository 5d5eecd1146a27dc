// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aegis-dev/aegis/internal/server"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// generateRequest mirrors the POST /api/v1/generate body.
type generateRequest struct {
	Prompt      string            `json:"prompt"`
	Context     map[string]string `json:"context,omitempty"`
	Model       string            `json:"model,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	Language    string            `json:"language,omitempty"`
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Run a one-shot completion through the gateway",
		Long:  "Send a prompt to the running gateway and print the completion. Provenance (provider, latency, cost) goes to stderr.",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}

	cmd.Flags().String("address", defaultGatewayAddress, "gateway address")
	cmd.Flags().String("model", "", "model override passed to the serving provider")
	cmd.Flags().Int("max-tokens", 0, "response token cap")
	cmd.Flags().Float64("temperature", 0, "sampling temperature")
	cmd.Flags().String("language", "", "prompt language for capability-aware routing")
	cmd.Flags().StringArray("context", nil, "request attribute as key=value (repeatable)")
	cmd.Flags().Bool("json", false, "print the full response as JSON")

	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("address")
	model, _ := cmd.Flags().GetString("model")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	language, _ := cmd.Flags().GetString("language")
	rawAttrs, _ := cmd.Flags().GetStringArray("context")
	asJSON, _ := cmd.Flags().GetBool("json")

	attrs, err := parseContextAttrs(rawAttrs)
	if err != nil {
		return err
	}

	req := generateRequest{
		Prompt:      args[0],
		Context:     attrs,
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Language:    language,
	}

	gw := newGatewayClient(addr)
	var res server.GenerateResult
	if err := gw.postJSON("/api/v1/generate", req, &res); err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeCLIGatewayNotRunning) {
			return aegiserr.Errorf(aegiserr.CodeCLIGatewayNotRunning,
				"gateway at %s is not running (run 'aegis start')", addr)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		raw, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return aegiserr.Errorf(aegiserr.CodeCLIResponseInvalid, "encoding response: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(raw))
		return nil
	}

	_, _ = fmt.Fprintln(out, res.Content)
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), provenanceLine(res))
	return nil
}

// provenanceLine summarizes where a response came from and what it cost.
func provenanceLine(res server.GenerateResult) string {
	source := res.Provider
	if res.Model != "" {
		source += "/" + res.Model
	}

	var marks []string
	switch {
	case res.Stale:
		marks = append(marks, "stale cache")
	case res.Cached:
		marks = append(marks, "cached ("+res.CacheMatch+")")
	}
	if res.Fallback {
		marks = append(marks, "fallback")
	}
	if res.Simplified {
		marks = append(marks, "simplified")
	}

	line := fmt.Sprintf("— %s · %dms · %d tokens · $%.4f · confidence %.2f",
		source, res.LatencyMS, res.TokensUsed, res.CostUSD, res.Confidence)
	if len(marks) > 0 {
		line += " · " + strings.Join(marks, ", ")
	}
	if n := len(res.Attempts); n > 0 {
		line += fmt.Sprintf(" · %d failed attempt(s)", n)
	}
	return line
}

func parseContextAttrs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	attrs := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, aegiserr.Errorf(aegiserr.CodeCLIInputInvalid,
				"invalid --context value %q: expected key=value", p)
		}
		attrs[key] = value
	}
	return attrs, nil
}
