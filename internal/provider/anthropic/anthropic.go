// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

const (
	providerName = "anthropic"

	// DefaultModel is used when neither the request nor the config names one.
	DefaultModel = "claude-sonnet-4-5"

	defaultMaxTokens = 1024
)

// modelRate is USD per million tokens.
type modelRate struct {
	inputPerMTok  float64
	outputPerMTok float64
}

// rates covers the current Messages API lineup. Dated model IDs resolve by
// prefix; unknown models price at the default model's rate.
var rates = map[string]modelRate{
	"claude-opus-4-1":   {inputPerMTok: 15, outputPerMTok: 75},
	"claude-sonnet-4-5": {inputPerMTok: 3, outputPerMTok: 15},
	"claude-haiku-4-5":  {inputPerMTok: 1, outputPerMTok: 5},
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

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string // default model, DefaultModel when empty
}

// Provider implements provider.Provider using the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
	cfg    Config
	http   *http.Client
}

// New creates a new Anthropic provider. Returns an error if the API key is
// missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, aegiserr.New(aegiserr.CodeProviderConfigInvalid,
			"anthropic: missing api_key in config", aegiserr.FieldProvider(providerName))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: anthropicsdk.NewClient(opts...),
		cfg:    cfg,
		http:   &http.Client{},
	}, nil
}

func (p *Provider) Name() string { return providerName }

// Healthy probes the models endpoint with the configured key.
func (p *Provider) Healthy(ctx context.Context) bool {
	return provider.CheckEndpoint(ctx, p.http, provider.NameAnthropic, p.cfg.APIKey, p.cfg.BaseURL) == nil
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

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
	}
	if system := provider.ContextPreamble(req.Context); system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if req.Options.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(req.Options.Temperature)
	}

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, wrapErr(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := b.String()
	if content == "" {
		return nil, aegiserr.New(aegiserr.CodeProviderResponseEmpty,
			"anthropic returned no text content", aegiserr.FieldProvider(providerName))
	}

	in, out := msg.Usage.InputTokens, msg.Usage.OutputTokens
	return &provider.Result{
		Content:    content,
		Model:      string(msg.Model),
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

	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return aegiserr.Wrap(err, aegiserr.CodeProviderRateLimited, "anthropic rate limited",
				aegiserr.FieldProvider(providerName), aegiserr.FieldHTTPStatus(apiErr.StatusCode))
		case http.StatusRequestTimeout:
			return aegiserr.Wrap(err, aegiserr.CodeProviderTimeout, "anthropic timed out",
				aegiserr.FieldProvider(providerName), aegiserr.FieldHTTPStatus(apiErr.StatusCode))
		default:
			return aegiserr.Wrap(err, aegiserr.CodeProviderCallFailure, "anthropic call failed",
				aegiserr.FieldProvider(providerName), aegiserr.FieldHTTPStatus(apiErr.StatusCode))
		}
	}

	return aegiserr.Wrap(err, aegiserr.CodeProviderCallFailure, "calling anthropic",
		aegiserr.FieldProvider(providerName))
}
