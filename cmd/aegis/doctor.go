// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/aegis-dev/aegis/internal/config"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check binary health, gateway reachability, config validity, configured providers, keyring access, and disk space.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", defaultGatewayAddress, "gateway address to check")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr, _ := cmd.Flags().GetString("address")

	// Secrets stay unresolved here: the config check must not depend on
	// keyring access, which gets its own row below.
	cfg, cfgErr := config.Load(configFlag(cmd), nil)

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Gateway", func() string { return checkGateway(addr) }},
		{"Config", func() string { return checkConfig(cfg, cfgErr) }},
		{"Providers", func() string { return checkProviders(cfg) }},
		{"Keyring", checkKeyring},
		{"Disk Space", func() string { return checkDiskSpace(cfg) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("aegis %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkGateway(addr string) string {
	gw := newGatewayClient(addr)
	var body struct {
		Status string `json:"status"`
	}
	if err := gw.getJSON("/api/v1/status", &body); err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeCLIGatewayNotRunning) {
			return fmt.Sprintf("not running at %s (run 'aegis start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkConfig(cfg *config.Config, err error) string {
	if err != nil {
		return fmt.Sprintf("invalid: %s", err)
	}
	if path := cfg.Path(); path != "" {
		return fmt.Sprintf("loaded from %s", path)
	}
	return "using defaults (no config file found)"
}

func checkProviders(cfg *config.Config) string {
	if cfg == nil {
		return "unknown (config failed to load)"
	}
	if len(cfg.Providers) == 0 {
		return "none configured (run 'aegis init')"
	}

	enabled := 0
	for _, p := range cfg.Providers {
		if p.Enabled {
			enabled++
		}
	}
	return fmt.Sprintf("%d configured, %d enabled", len(cfg.Providers), enabled)
}

func checkKeyring() string {
	store := secretStoreFactory()
	keys, err := store.List(serviceName)
	if err != nil {
		return fmt.Sprintf("not accessible: %s", err)
	}
	return fmt.Sprintf("accessible (%d secret(s) stored)", len(keys))
}

func checkDiskSpace(cfg *config.Config) string {
	// The semantic index is the only thing aegis persists; check its volume
	// when configured, the home directory otherwise.
	var path string
	if cfg != nil && cfg.Cache.Semantic.Path != "" {
		path = filepath.Dir(cfg.Cache.Semantic.Path)
	}
	if path == "" {
		path, _ = os.UserHomeDir()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
