// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package sqlitevec

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

const (
	// DefaultEmbeddingModel supports the dimensions parameter; older models
	// ignore it server-side or reject it.
	DefaultEmbeddingModel = string(openaisdk.EmbeddingModelTextEmbedding3Small)
	DefaultDimensions     = 1536
)

// EmbedderConfig holds OpenAI embeddings configuration.
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int
}

// OpenAIEmbedder implements Embedder using the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client openaisdk.Client
	model  openaisdk.EmbeddingModel
	dims   int
}

// NewOpenAIEmbedder creates an embedder. Returns an error if the API key is
// missing.
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sqlitevec: missing api_key in embedder config")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEmbedder{
		client: openaisdk.NewClient(opts...),
		model:  openaisdk.EmbeddingModel(cfg.Model),
		dims:   cfg.Dimensions,
	}, nil
}

// Embed returns the embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input:      openaisdk.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
		Model:      e.model,
		Dimensions: param.NewOpt(int64(e.dims)),
	})
	if err != nil {
		return nil, fmt.Errorf("requesting embedding: %w", err)
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("embedding response carried no data")
	}

	raw := res.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimensions returns the configured vector width.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}
