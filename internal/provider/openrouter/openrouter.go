// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package openrouter adapts OpenRouter's OpenAI-compatible API. Model IDs are
// vendor-prefixed marketplace routes ("anthropic/claude-sonnet-4-5").
package openrouter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

const (
	providerName = "openrouter"

	baseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is used when neither the request nor the config names one.
	DefaultModel = "openai/gpt-4.1-mini"

	defaultMaxTokens = 1024
)

// modelRate is USD per million tokens. Marketplace routes track the
// underlying vendor's list price.
type modelRate struct {
	inputPerMTok  float64
	outputPerMTok float64
}

var rates = map[string]modelRate{
	"anthropic/claude-sonnet-4-5":       {inputPerMTok: 3, outputPerMTok: 15},
	"anthropic/claude-haiku-4-5":        {inputPerMTok: 1, outputPerMTok: 5},
	"openai/gpt-4.1-mini":               {inputPerMTok: 0.4, outputPerMTok: 1.6},
	"meta-llama/llama-3.3-70b-instruct": {inputPerMTok: 0.1, outputPerMTok: 0.25},
}

func rateFor(model string) modelRate {
	if r, ok := rates[model]; ok {
		return r
	}
	for id, r := range rates {
		if strings.HasPrefix(model, id) {
			return r
		}
	}
	return rates[DefaultModel]
}

func cost(model string, inputTokens, outputTokens int64) float64 {
	r := rateFor(model)
	return (float64(inputTokens)*r.inputPerMTok + float64(outputTokens)*r.outputPerMTok) / 1e6
}

// Config holds OpenRouter provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string // default model, DefaultModel when empty
}

// Provider implements provider.Provider using OpenRouter's OpenAI-compatible
// API.
type Provider struct {
	client openaisdk.Client
	cfg    Config
	http   *http.Client
	base   string
}

// New creates a new OpenRouter provider. Returns an error if the API key is
// missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, aegiserr.New(aegiserr.CodeProviderConfigInvalid,
			"openrouter: missing api_key in config", aegiserr.FieldProvider(providerName))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	base := baseURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}

	client := openaisdk.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(base),
	)
	return &Provider{
		client: client,
		cfg:    cfg,
		http:   &http.Client{},
		base:   base,
	}, nil
}

func (p *Provider) Name() string { return providerName }

// Healthy probes the models endpoint with the configured key.
func (p *Provider) Healthy(ctx context.Context) bool {
	return provider.CheckEndpoint(ctx, p.http, provider.NameOpenRouter, p.cfg.APIKey, p.base) == nil
}

// EstimateCost prices a call of roughly the given total token count at the
// default model's rates, assuming an even input/output split.
func (p *Provider) EstimateCost(tokens int) float64 {
	r := rateFor(p.cfg.Model)
	return float64(tokens) * (r.inputPerMTok + r.outputPerMTok) / 2 / 1e6
}

// Generate runs a single non-streaming completion.
func (p *Provider) Generate(ctx context.Context, req provider.Request) (*provider.Result, error) {
	model := req.Options.Model
	if model == "" {
		model = p.cfg.Model
	}
	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if system := provider.ContextPreamble(req.Context); system != "" {
		msgs = append(msgs, openaisdk.SystemMessage(system))
	}
	msgs = append(msgs, openaisdk.UserMessage(req.Prompt))

	params := openaisdk.ChatCompletionNewParams{
		Model:               shared.ChatModel(model),
		Messages:            msgs,
		MaxCompletionTokens: param.NewOpt(maxTokens),
	}
	if req.Options.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Options.Temperature)
	}

	start := time.Now()
	completion, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, wrapErr(err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, aegiserr.New(aegiserr.CodeProviderResponseEmpty,
			"openrouter returned no text content", aegiserr.FieldProvider(providerName))
	}

	in, out := completion.Usage.PromptTokens, completion.Usage.CompletionTokens
	return &provider.Result{
		Content:    completion.Choices[0].Message.Content,
		Model:      completion.Model,
		Provider:   providerName,
		TokensUsed: int(in + out),
		Cost:       cost(model, in, out),
		Latency:    latency,
	}, nil
}

// wrapErr translates SDK errors into coded errors carrying the upstream HTTP
// status. Context errors pass through untouched so cancellation is never
// misread as a provider fault.
func wrapErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return aegiserr.Wrap(err, aegiserr.CodeProviderRateLimited, "openrouter rate limited",
				aegiserr.FieldProvider(providerName), aegiserr.FieldHTTPStatus(apiErr.StatusCode))
		case http.StatusRequestTimeout:
			return aegiserr.Wrap(err, aegiserr.CodeProviderTimeout, "openrouter timed out",
				aegiserr.FieldProvider(providerName), aegiserr.FieldHTTPStatus(apiErr.StatusCode))
		default:
			return aegiserr.Wrap(err, aegiserr.CodeProviderCallFailure, "openrouter call failed",
				aegiserr.FieldProvider(providerName), aegiserr.FieldHTTPStatus(apiErr.StatusCode))
		}
	}

	return aegiserr.Wrap(err, aegiserr.CodeProviderCallFailure, "calling openrouter",
		aegiserr.FieldProvider(providerName))
}
