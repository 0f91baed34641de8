// Package embedding wraps embedding backends behind a small provider
// interface used by the knowledge and conversation services.
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatforge/chatforge/pkg/config"
	"github.com/chatforge/chatforge/pkg/utils"
	ollamaembed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// Provider generates embedding vectors for text.
//
// EmbedBatch returns one vector per input text, positionally aligned:
// a nil entry means embedding failed for that text, and callers must
// not reorder the result. EmbedQuery returns a nil vector (without an
// error) when the backend cannot embed the text.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// EinoProvider adapts an eino Embedder to the Provider interface.
type EinoProvider struct {
	embedder embedding.Embedder
	model    string
	logger   *slog.Logger
}

// NewFromConfig builds a provider from app configuration. Returns
// (nil, nil) when no embedding provider is configured; the services
// treat a nil provider as "semantic features disabled".
func NewFromConfig(ctx context.Context, cfg *config.AppConfig) (*EinoProvider, error) {
	switch cfg.EmbeddingProvider() {
	case "":
		return nil, nil

	case "openai":
		ec := &openaiembed.EmbeddingConfig{
			APIKey: cfg.EmbeddingAPIKey(),
			Model:  cfg.EmbeddingModel(),
		}
		if u := cfg.EmbeddingBaseURL(); u != "" {
			ec.BaseURL = u
		}
		embedder, err := openaiembed.NewEmbedder(ctx, ec)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
		return NewEinoProvider(embedder, cfg.EmbeddingModel()), nil

	case "ollama":
		embedder, err := ollamaembed.NewEmbedder(ctx, &ollamaembed.EmbeddingConfig{
			BaseURL: cfg.EmbeddingBaseURL(),
			Model:   cfg.EmbeddingModel(),
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
		return NewEinoProvider(embedder, cfg.EmbeddingModel()), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider())
	}
}

// NewEinoProvider wraps an eino Embedder.
func NewEinoProvider(embedder embedding.Embedder, model string) *EinoProvider {
	return &EinoProvider{
		embedder: embedder,
		model:    model,
		logger:   utils.GetLogger(),
	}
}

// EmbedBatch embeds all texts in one backend call. The result is
// positionally aligned with texts.
func (p *EinoProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings, err := p.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}

	vectors := make([][]float32, len(texts))
	for i := range texts {
		if i >= len(embeddings) || len(embeddings[i]) == 0 {
			continue
		}
		vectors[i] = toFloat32(embeddings[i])
	}
	return vectors, nil
}

// EmbedQuery embeds a single text, returning nil on backend failure.
func (p *EinoProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		p.logger.Warn("Query embedding failed", "error", err)
		return nil, nil
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, nil
	}
	return toFloat32(embeddings[0]), nil
}

// ModelName returns the backend model identifier.
func (p *EinoProvider) ModelName() string {
	return p.model
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
