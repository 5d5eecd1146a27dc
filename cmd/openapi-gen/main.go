// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aegis-dev/aegis/internal/orchestrator"
	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/internal/server"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	healthpkg "github.com/aegis-dev/aegis/pkg/health"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer srv.Close()

	// Use no-op service stubs so all routes are registered for schema
	// discovery. Handlers are never invoked during spec generation.
	svc := server.NewServicesForTest(&stubGateway{}, &stubProviders{}, &stubBreakers{}, &stubMonitor{})
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubGateway struct{}

func (s *stubGateway) Generate(context.Context, provider.Request) (*orchestrator.Response, error) {
	return nil, nil
}
func (s *stubGateway) Snapshot() healthpkg.Snapshot { return healthpkg.Snapshot{} }

type stubProviders struct{}

func (s *stubProviders) Snapshot() []healthpkg.ProviderStatus { return nil }
func (s *stubProviders) SetEnabled(string, bool) error        { return nil }
func (s *stubProviders) ResetStats(string) error              { return nil }

type stubBreakers struct{}

func (s *stubBreakers) Snapshot() []healthpkg.BreakerStatus { return nil }
func (s *stubBreakers) ForceReset(string) error             { return nil }

type stubMonitor struct{}

func (s *stubMonitor) Snapshot() healthpkg.HealthReport { return healthpkg.HealthReport{} }
func (s *stubMonitor) Alerts() []healthpkg.Alert        { return nil }
func (s *stubMonitor) Resolve(string) error             { return nil }
