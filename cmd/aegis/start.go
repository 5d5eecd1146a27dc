// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aegis-dev/aegis/internal/config"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway",
		Long: `Start the Aegis gateway in the foreground.

The gateway loads its configuration (see --config), wires the configured
providers behind circuit breakers, and serves the REST API until
interrupted.`,
		RunE: runStart,
	}
	cmd.Flags().String("listen", "", "listen address override (host:port)")
	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfgFile := configFlag(cmd)
	if cfgFile == "" {
		// First run convenience: drop a commented default config in place.
		config.BootstrapConfig()
	}

	cfg, err := config.Load(cfgFile, secretStoreFactory())
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeCLISetupFailure, "loading config")
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	setupLogging(cfg.Logging.Level, cfg.Logging.Format, verbose)

	if p := cfg.Path(); p != "" {
		config.WarnInsecurePermissions(p)
	}

	if cmd.Flags().Changed("listen") {
		cfg.Server.Listen, _ = cmd.Flags().GetString("listen")
	}

	gw, err := WireGateway(cfg)
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeCLISetupFailure, "wiring gateway")
	}
	defer gw.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting aegis gateway",
		"listen", cfg.Server.Listen,
		"providers", len(cfg.Providers),
		"config", cfg.Path(),
	)
	return gw.Start(ctx)
}
