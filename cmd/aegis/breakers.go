// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	healthpkg "github.com/aegis-dev/aegis/pkg/health"
)

func newBreakersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breakers",
		Short: "Inspect and reset circuit breakers",
	}

	cmd.PersistentFlags().String("address", defaultGatewayAddress, "gateway address")

	cmd.AddCommand(
		newBreakersListCmd(),
		newBreakersResetCmd(),
	)

	return cmd
}

func newBreakersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List circuit breakers and their states",
		RunE:  runBreakersList,
	}
}

func newBreakersResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <name>",
		Short: "Force a circuit breaker closed",
		Args:  cobra.ExactArgs(1),
		RunE:  runBreakersReset,
	}
}

func runBreakersList(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	gw := newGatewayClient(addr)
	var body struct {
		Breakers []healthpkg.BreakerStatus `json:"breakers"`
	}
	if err := gw.getJSON("/api/v1/breakers", &body); err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeCLIGatewayNotRunning) {
			return aegiserr.Errorf(aegiserr.CodeCLIGatewayNotRunning,
				"gateway at %s is not running (run 'aegis start')", addr)
		}
		return err
	}

	if len(body.Breakers) == 0 {
		_, _ = fmt.Fprintln(out, "No circuit breakers yet — they appear after the first routed request.")
		return nil
	}

	for _, b := range body.Breakers {
		line := fmt.Sprintf("%-12s %-10s reqs %-6d rejected %-5d failures %-5d changes %d",
			b.Name, b.State, b.Requests, b.Rejections, b.Failures, b.StateChanges)
		if b.NextAttemptAt != nil {
			line += "  next attempt " + b.NextAttemptAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintln(out, line)
	}
	return nil
}

func runBreakersReset(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("address")
	name := args[0]

	gw := newGatewayClient(addr)
	var body struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
	err := gw.postJSON("/api/v1/breakers/"+name+"/reset", nil, &body)
	if err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeCLIGatewayNotRunning) {
			return aegiserr.Errorf(aegiserr.CodeCLIGatewayNotRunning,
				"gateway at %s is not running (run 'aegis start')", addr)
		}
		if status, ok := aegiserr.StatusOf(err); ok && status == http.StatusNotFound {
			return aegiserr.Errorf(aegiserr.CodeCLIInputInvalid, "breaker %q not found", name)
		}
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Breaker %s reset to %s\n", body.Name, body.State)
	return nil
}
