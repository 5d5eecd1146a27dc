// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package server

import (
	"context"

	"github.com/aegis-dev/aegis/internal/orchestrator"
	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	healthpkg "github.com/aegis-dev/aegis/pkg/health"
)

// GatewayService answers completion requests and reports gateway-wide
// statistics. Implemented by orchestrator.Orchestrator.
type GatewayService interface {
	Generate(ctx context.Context, req provider.Request) (*orchestrator.Response, error)
	Snapshot() healthpkg.Snapshot
}

// ProviderAdminService exposes the provider registry's administrative
// surface. Implemented by provider.Registry.
type ProviderAdminService interface {
	Snapshot() []healthpkg.ProviderStatus
	SetEnabled(name string, on bool) error
	ResetStats(name string) error
}

// BreakerAdminService exposes the circuit-breaker fleet. Implemented by
// breaker.Manager.
type BreakerAdminService interface {
	Snapshot() []healthpkg.BreakerStatus
	ForceReset(name string) error
}

// MonitorService reports dependency health and manages alerts. Implemented
// by health.Monitor.
type MonitorService interface {
	Snapshot() healthpkg.HealthReport
	Alerts() []healthpkg.Alert
	Resolve(id string) error
}

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
// Use NewServices constructor to ensure all required services are provided.
type Services struct {
	gateway   GatewayService
	providers ProviderAdminService
	breakers  BreakerAdminService
	monitor   MonitorService
}

// NewServices creates a Services instance with validation.
// Returns an error if any required service is nil.
func NewServices(gateway GatewayService, providers ProviderAdminService, breakers BreakerAdminService, monitor MonitorService) (*Services, error) {
	if gateway == nil {
		return nil, aegiserr.New(aegiserr.CodeServerConfigInvalid, "gateway service is required")
	}
	if providers == nil {
		return nil, aegiserr.New(aegiserr.CodeServerConfigInvalid, "provider admin service is required")
	}
	if breakers == nil {
		return nil, aegiserr.New(aegiserr.CodeServerConfigInvalid, "breaker admin service is required")
	}
	if monitor == nil {
		return nil, aegiserr.New(aegiserr.CodeServerConfigInvalid, "monitor service is required")
	}

	return &Services{
		gateway:   gateway,
		providers: providers,
		breakers:  breakers,
		monitor:   monitor,
	}, nil
}

// NewServicesForTest creates a Services instance, panicking on error.
// Intended for test setup where all services are known to be non-nil.
func NewServicesForTest(gateway GatewayService, providers ProviderAdminService, breakers BreakerAdminService, monitor MonitorService) *Services {
	svc, err := NewServices(gateway, providers, breakers, monitor)
	if err != nil {
		panic(err)
	}
	return svc
}

func (s *Services) Gateway() GatewayService { return s.gateway }

func (s *Services) Providers() ProviderAdminService { return s.providers }

func (s *Services) Breakers() BreakerAdminService { return s.breakers }

func (s *Services) Monitor() MonitorService { return s.monitor }
