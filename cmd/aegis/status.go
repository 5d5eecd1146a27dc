// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	healthpkg "github.com/aegis-dev/aegis/pkg/health"
)

// defaultGatewayAddress matches the default server.listen config value.
const defaultGatewayAddress = "127.0.0.1:18808"

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Long:  "Fetch the running gateway's status endpoint and display providers, breakers, cache, and health.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", defaultGatewayAddress, "gateway address to check")
	cmd.Flags().Bool("json", false, "print the raw status snapshot as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	gw := newGatewayClient(addr)
	var snap healthpkg.Snapshot
	if err := gw.getJSON("/api/v1/status", &snap); err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeCLIGatewayNotRunning) {
			_, _ = fmt.Fprintf(out, "Gateway at %s is not running (run 'aegis start')\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Gateway at %s: %s\n", addr, err)
		return nil
	}

	if asJSON {
		raw, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return aegiserr.Errorf(aegiserr.CodeCLIResponseInvalid, "encoding snapshot: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(raw))
		return nil
	}

	printSnapshot(out, addr, snap)
	return nil
}

func printSnapshot(w io.Writer, addr string, snap healthpkg.Snapshot) {
	uptime := (time.Duration(snap.UptimeSecs) * time.Second).String()
	_, _ = fmt.Fprintf(w, "Gateway at %s: %s (up %s)\n", addr, snap.Status, uptime)

	agg := snap.Aggregates
	_, _ = fmt.Fprintf(w, "Requests: %d total, %.1f%% success, avg latency %dms, %.1f req/min, $%.4f rolling cost\n",
		agg.Requests, agg.SuccessRate*100, agg.AvgLatencyMS, agg.RequestsPerMinute, agg.RollingCostUSD)

	if len(snap.Providers) > 0 {
		_, _ = fmt.Fprintln(w, "\nProviders:")
		for _, p := range snap.Providers {
			_, _ = fmt.Fprintf(w, "  %-12s %-9s %-10s reqs %-6d success %5.1f%%  avg %4dms  $%.4f\n",
				p.Name, enabledWord(p.Enabled), providerHealthWord(p), p.Requests, p.SuccessRate*100, p.AvgLatencyMS, p.TotalCostUSD)
		}
	}

	if len(snap.Breakers) > 0 {
		_, _ = fmt.Fprintln(w, "\nBreakers:")
		for _, b := range snap.Breakers {
			line := fmt.Sprintf("  %-12s %-10s reqs %-6d rejected %-5d failures %-5d changes %d",
				b.Name, b.State, b.Requests, b.Rejections, b.Failures, b.StateChanges)
			if b.NextAttemptAt != nil {
				line += "  next attempt " + b.NextAttemptAt.Format(time.RFC3339)
			}
			_, _ = fmt.Fprintln(w, line)
		}
	}

	if c := snap.Cache; c != nil {
		_, _ = fmt.Fprintf(w, "\nCache: %d/%d entries, %d hits (%.1f%% hit rate), est. $%.4f saved\n",
			c.Entries, c.MaxEntries, c.Hits, c.HitRate*100, c.EstSavedUSD)
	}

	printHealth(w, snap.Health)
}

func printHealth(w io.Writer, report healthpkg.HealthReport) {
	passing := 0
	for _, c := range report.Checks {
		if c.Healthy {
			passing++
		}
	}
	_, _ = fmt.Fprintf(w, "\nHealth: %s — %d/%d checks passing\n",
		healthWord(report.Healthy), passing, len(report.Checks))
	for _, c := range report.Checks {
		line := fmt.Sprintf("  %-22s %-9s avg %dms", c.Name, healthWord(c.Healthy), c.AvgLatencyMS)
		if !c.Healthy && c.LastError != "" {
			line += "  " + c.LastError
		}
		_, _ = fmt.Fprintln(w, line)
	}

	unresolved := 0
	for _, a := range report.Alerts {
		if !a.Resolved {
			unresolved++
		}
	}
	if unresolved > 0 {
		_, _ = fmt.Fprintf(w, "\nAlerts: %d unresolved\n", unresolved)
		for _, a := range report.Alerts {
			if a.Resolved {
				continue
			}
			_, _ = fmt.Fprintf(w, "  [%s] %s %s (%s)\n", a.Severity, a.Type, a.Message, a.At.Format(time.RFC3339))
		}
	}
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func providerHealthWord(p healthpkg.ProviderStatus) string {
	switch {
	case p.Saturated:
		return "saturated"
	case p.Healthy:
		return "healthy"
	default:
		return "unhealthy"
	}
}

func healthWord(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}
