// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package google

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

const (
	providerName = "google"

	// DefaultModel is used when neither the request nor the config names one.
	DefaultModel = "gemini-2.5-flash"

	defaultMaxTokens = 1024
)

// modelRate is USD per million tokens.
type modelRate struct {
	inputPerMTok  float64
	outputPerMTok float64
}

var rates = map[string]modelRate{
	"gemini-2.5-pro":        {inputPerMTok: 1.25, outputPerMTok: 10},
	"gemini-2.5-flash":      {inputPerMTok: 0.3, outputPerMTok: 2.5},
	"gemini-2.5-flash-lite": {inputPerMTok: 0.1, outputPerMTok: 0.4},
	"gemini-2.0-flash":      {inputPerMTok: 0.1, outputPerMTok: 0.4},
}

func rateFor(model string) modelRate {
	if r, ok := rates[model]; ok {
		return r
	}
	// Longest prefix wins so gemini-2.5-flash-lite does not price as
	// gemini-2.5-flash.
	var best string
	for id := range rates {
		if strings.HasPrefix(model, id) && len(id) > len(best) {
			best = id
		}
	}
	if best != "" {
		return rates[best]
	}
	return rates[DefaultModel]
}

func cost(model string, inputTokens, outputTokens int64) float64 {
	r := rateFor(model)
	return (float64(inputTokens)*r.inputPerMTok + float64(outputTokens)*r.outputPerMTok) / 1e6
}

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string // default model, DefaultModel when empty
}

// Provider implements provider.Provider using the Google Gemini API.
type Provider struct {
	client *genai.Client
	cfg    Config
	http   *http.Client
}

// New creates a new Google provider. Returns an error if the API key is
// missing or the client cannot be constructed.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, aegiserr.New(aegiserr.CodeProviderConfigInvalid,
			"google: missing api_key in config", aegiserr.FieldProvider(providerName))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, aegiserr.Wrapf(err, aegiserr.CodeProviderConfigInvalid, "google: creating client")
	}

	return &Provider{
		client: client,
		cfg:    cfg,
		http:   &http.Client{},
	}, nil
}

func (p *Provider) Name() string { return providerName }

// Healthy probes the models endpoint with the configured key.
func (p *Provider) Healthy(ctx context.Context) bool {
	return provider.CheckEndpoint(ctx, p.http, provider.NameGoogle, p.cfg.APIKey, p.cfg.BaseURL) == nil
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

	genCfg := &genai.GenerateContentConfig{}
	if req.Options.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	} else {
		genCfg.MaxOutputTokens = defaultMaxTokens
	}
	if req.Options.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(req.Options.Temperature))
	}
	if system := provider.ContextPreamble(req.Context); system != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), genCfg)
	latency := time.Since(start)
	if err != nil {
		return nil, wrapErr(err)
	}

	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	content := b.String()
	if content == "" {
		return nil, aegiserr.New(aegiserr.CodeProviderResponseEmpty,
			"google returned no text content", aegiserr.FieldProvider(providerName))
	}

	var in, out int64
	if resp.UsageMetadata != nil {
		in = int64(resp.UsageMetadata.PromptTokenCount)
		out = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return &provider.Result{
		Content:    content,
		Model:      model,
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

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return aegiserr.Wrap(err, aegiserr.CodeProviderRateLimited, "google rate limited",
				aegiserr.FieldProvider(providerName), aegiserr.FieldHTTPStatus(apiErr.Code))
		case http.StatusRequestTimeout:
			return aegiserr.Wrap(err, aegiserr.CodeProviderTimeout, "google timed out",
				aegiserr.FieldProvider(providerName), aegiserr.FieldHTTPStatus(apiErr.Code))
		default:
			return aegiserr.Wrap(err, aegiserr.CodeProviderCallFailure, "google call failed",
				aegiserr.FieldProvider(providerName), aegiserr.FieldHTTPStatus(apiErr.Code))
		}
	}

	return aegiserr.Wrap(err, aegiserr.CodeProviderCallFailure, "calling google",
		aegiserr.FieldProvider(providerName))
}
