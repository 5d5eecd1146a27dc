// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aegis-dev/aegis/internal/orchestrator"
	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	healthpkg "github.com/aegis-dev/aegis/pkg/health"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
	s.registerMetrics()
}

func (s *Server) registerRoutes() {
	// Generation endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "generate",
		Method:      http.MethodPost,
		Path:        "/api/v1/generate",
		Summary:     "Generate a completion",
		Tags:        []string{"generate"},
	}, s.handleGenerate)

	// Status endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "gateway-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Gateway status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	// Provider endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-providers",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers",
		Summary:     "List providers",
		Tags:        []string{"providers"},
	}, s.handleListProviders)

	huma.Register(s.api, huma.Operation{
		OperationID: "enable-provider",
		Method:      http.MethodPost,
		Path:        "/api/v1/providers/{name}/enable",
		Summary:     "Enable a provider",
		Tags:        []string{"providers"},
	}, s.handleEnableProvider)

	huma.Register(s.api, huma.Operation{
		OperationID: "disable-provider",
		Method:      http.MethodPost,
		Path:        "/api/v1/providers/{name}/disable",
		Summary:     "Disable a provider",
		Tags:        []string{"providers"},
	}, s.handleDisableProvider)

	huma.Register(s.api, huma.Operation{
		OperationID: "reset-provider-stats",
		Method:      http.MethodPost,
		Path:        "/api/v1/providers/{name}/reset-stats",
		Summary:     "Reset a provider's statistics",
		Tags:        []string{"providers"},
	}, s.handleResetProviderStats)

	// Breaker endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-breakers",
		Method:      http.MethodGet,
		Path:        "/api/v1/breakers",
		Summary:     "List circuit breakers",
		Tags:        []string{"breakers"},
	}, s.handleListBreakers)

	huma.Register(s.api, huma.Operation{
		OperationID: "reset-breaker",
		Method:      http.MethodPost,
		Path:        "/api/v1/breakers/{name}/reset",
		Summary:     "Force a circuit breaker closed",
		Tags:        []string{"breakers"},
	}, s.handleResetBreaker)

	// Alert endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/api/v1/alerts",
		Summary:     "List health alerts",
		Tags:        []string{"alerts"},
	}, s.handleListAlerts)

	huma.Register(s.api, huma.Operation{
		OperationID: "resolve-alert",
		Method:      http.MethodPost,
		Path:        "/api/v1/alerts/{id}/resolve",
		Summary:     "Resolve a health alert",
		Tags:        []string{"alerts"},
	}, s.handleResolveAlert)
}

// --- Request/Response types for huma ---

type generateInput struct {
	Body struct {
		Prompt      string            `json:"prompt" minLength:"1" doc:"Prompt to complete"`
		Context     map[string]string `json:"context,omitempty" doc:"Request attributes (conversation id, tenant, ...) that key the response cache"`
		Model       string            `json:"model,omitempty" doc:"Model override passed to the serving provider"`
		MaxTokens   int               `json:"max_tokens,omitempty" minimum:"0" doc:"Response token cap"`
		Temperature float64           `json:"temperature,omitempty" minimum:"0" maximum:"2" doc:"Sampling temperature"`
		Language    string            `json:"language,omitempty" doc:"Prompt language for capability-aware routing"`
	}
}

type generateOutput struct {
	Body GenerateResult
}

// GenerateResult is the REST shape of a completed generation.
type GenerateResult struct {
	RequestID  string          `json:"request_id" doc:"Server-assigned request ID"`
	Content    string          `json:"content" doc:"Generated text"`
	Provider   string          `json:"provider" doc:"Provider that produced the content"`
	Model      string          `json:"model,omitempty" doc:"Model that produced the content"`
	TokensUsed int             `json:"tokens_used" doc:"Tokens consumed by the request"`
	CostUSD    float64         `json:"cost_usd" doc:"Cost in USD; zero on cache hits"`
	LatencyMS  int64           `json:"latency_ms" doc:"Time to produce the response"`
	Confidence float64         `json:"confidence" doc:"Confidence in the response, degraded sources score lower"`
	Cached     bool            `json:"cached" doc:"Content came from the response cache"`
	CacheMatch string          `json:"cache_match,omitempty" doc:"Cache tier that matched: exact, similarity or semantic"`
	Fallback   bool            `json:"fallback" doc:"Served by the designated fallback provider"`
	Stale      bool            `json:"stale" doc:"Served from an expired cache entry"`
	Simplified bool            `json:"simplified" doc:"Served by retrying a truncated prompt"`
	Attempts   []AttemptDetail `json:"attempts,omitempty" doc:"Provider failures that preceded this response"`
}

// AttemptDetail is one failed provider attempt.
type AttemptDetail struct {
	Provider   string `json:"provider"`
	Error      string `json:"error"`
	DurationMS int64  `json:"duration_ms"`
}

type statusOutput struct {
	Body healthpkg.Snapshot
}

type listProvidersOutput struct {
	Body struct {
		Providers []healthpkg.ProviderStatus `json:"providers"`
	}
}

type providerNameInput struct {
	Name string `path:"name"`
}

type providerToggleOutput struct {
	Body struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
}

type resetStatsOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type listBreakersOutput struct {
	Body struct {
		Breakers []healthpkg.BreakerStatus `json:"breakers"`
	}
}

type breakerNameInput struct {
	Name string `path:"name"`
}

type resetBreakerOutput struct {
	Body struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
}

type listAlertsOutput struct {
	Body struct {
		Alerts []healthpkg.Alert `json:"alerts"`
	}
}

type alertIDInput struct {
	ID string `path:"id"`
}

type resolveAlertOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// --- Handlers ---

func (s *Server) handleGenerate(ctx context.Context, input *generateInput) (*generateOutput, error) {
	if err := s.checkGenerateLimit(ctx); err != nil {
		return nil, err
	}

	req := provider.Request{
		Prompt:  input.Body.Prompt,
		Context: input.Body.Context,
		Options: provider.Options{
			Model:       input.Body.Model,
			MaxTokens:   input.Body.MaxTokens,
			Temperature: input.Body.Temperature,
			Language:    input.Body.Language,
		},
	}

	res, err := s.services.Gateway().Generate(ctx, req)
	if err != nil {
		return nil, generateError(err)
	}
	return &generateOutput{Body: toGenerateResult(res)}, nil
}

func toGenerateResult(res *orchestrator.Response) GenerateResult {
	out := GenerateResult{
		RequestID:  res.RequestID,
		Content:    res.Content,
		Provider:   res.Provider,
		Model:      res.Model,
		TokensUsed: res.TokensUsed,
		CostUSD:    res.Cost,
		LatencyMS:  res.Latency.Milliseconds(),
		Confidence: res.Confidence,
		Cached:     res.Cached,
		CacheMatch: string(res.CacheMatch),
		Fallback:   res.Fallback,
		Stale:      res.Stale,
		Simplified: res.Simplified,
	}
	for _, a := range res.Attempts {
		out.Attempts = append(out.Attempts, AttemptDetail{
			Provider:   a.Provider,
			Error:      a.Error,
			DurationMS: a.Duration.Milliseconds(),
		})
	}
	return out
}

// generateError maps a gateway error onto the matching HTTP status. Breaker
// and rate-limit rejections carry a Retry-After header when the error says
// how long to wait.
func generateError(err error) error {
	status := aegiserr.HTTPStatus(err)
	humaErr := huma.NewError(status, err.Error())

	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		if wait, ok := aegiserr.RetryAfterOf(err); ok {
			secs := int64((wait + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			return huma.ErrorWithHeaders(humaErr, http.Header{
				"Retry-After": []string{strconv.FormatInt(secs, 10)},
			})
		}
	}
	return humaErr
}

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*statusOutput, error) {
	snap := s.services.Gateway().Snapshot()
	snap.Health = s.services.Monitor().Snapshot()
	if !snap.Health.Healthy {
		snap.Status = "degraded"
	}
	return &statusOutput{Body: snap}, nil
}

func (s *Server) handleListProviders(_ context.Context, _ *struct{}) (*listProvidersOutput, error) {
	out := &listProvidersOutput{}
	out.Body.Providers = s.services.Providers().Snapshot()
	return out, nil
}

func (s *Server) handleEnableProvider(ctx context.Context, input *providerNameInput) (*providerToggleOutput, error) {
	return s.setProviderEnabled(ctx, input.Name, true)
}

func (s *Server) handleDisableProvider(ctx context.Context, input *providerNameInput) (*providerToggleOutput, error) {
	return s.setProviderEnabled(ctx, input.Name, false)
}

func (s *Server) setProviderEnabled(_ context.Context, name string, on bool) (*providerToggleOutput, error) {
	if err := s.services.Providers().SetEnabled(name, on); err != nil {
		if aegiserr.IsNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("provider %q not found", name))
		}
		return nil, huma.Error500InternalServerError(fmt.Sprintf("updating provider %q", name), err)
	}
	out := &providerToggleOutput{}
	out.Body.Name = name
	out.Body.Enabled = on
	return out, nil
}

func (s *Server) handleResetProviderStats(_ context.Context, input *providerNameInput) (*resetStatsOutput, error) {
	if err := s.services.Providers().ResetStats(input.Name); err != nil {
		if aegiserr.IsNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("provider %q not found", input.Name))
		}
		return nil, huma.Error500InternalServerError(fmt.Sprintf("resetting stats for provider %q", input.Name), err)
	}
	out := &resetStatsOutput{}
	out.Body.Status = "reset"
	return out, nil
}

func (s *Server) handleListBreakers(_ context.Context, _ *struct{}) (*listBreakersOutput, error) {
	out := &listBreakersOutput{}
	out.Body.Breakers = s.services.Breakers().Snapshot()
	return out, nil
}

func (s *Server) handleResetBreaker(_ context.Context, input *breakerNameInput) (*resetBreakerOutput, error) {
	if err := s.services.Breakers().ForceReset(input.Name); err != nil {
		if aegiserr.IsNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("breaker %q not found", input.Name))
		}
		return nil, huma.Error500InternalServerError(fmt.Sprintf("resetting breaker %q", input.Name), err)
	}
	out := &resetBreakerOutput{}
	out.Body.Name = input.Name
	out.Body.State = "closed"
	return out, nil
}

func (s *Server) handleListAlerts(_ context.Context, _ *struct{}) (*listAlertsOutput, error) {
	out := &listAlertsOutput{}
	out.Body.Alerts = s.services.Monitor().Alerts()
	return out, nil
}

func (s *Server) handleResolveAlert(_ context.Context, input *alertIDInput) (*resolveAlertOutput, error) {
	if err := s.services.Monitor().Resolve(input.ID); err != nil {
		if aegiserr.IsNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("alert %q not found", input.ID))
		}
		return nil, huma.Error500InternalServerError(fmt.Sprintf("resolving alert %q", input.ID), err)
	}
	out := &resolveAlertOutput{}
	out.Body.Status = "resolved"
	return out, nil
}
