package provider

import (
	"context"
	"fmt"

	"github.com/personalrag/ragengine/domain/search"
)

// EmbeddingAdapter adapts an Embedder (OpenAI's batch-oriented request/
// response shape) to the domain's text-in/vector-out search.Embedder
// contract consumed by the Embedding Pipeline and Vector Search (spec §4.B).
type EmbeddingAdapter struct {
	provider   Embedder
	dimensions int
}

// NewEmbeddingAdapter wraps provider, reporting dimensions for the
// configured embedding model (spec §6).
func NewEmbeddingAdapter(provider Embedder, dimensions int) *EmbeddingAdapter {
	return &EmbeddingAdapter{provider: provider, dimensions: dimensions}
}

// Embed generates one embedding vector for text.
func (a *EmbeddingAdapter) Embed(ctx context.Context, text string) (search.EmbeddingResult, error) {
	results, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return search.EmbeddingResult{}, err
	}
	if len(results) == 0 {
		return search.EmbeddingResult{}, fmt.Errorf("embed: provider returned no result")
	}
	return results[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in one call.
func (a *EmbeddingAdapter) EmbedBatch(ctx context.Context, texts []string) ([]search.EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := a.provider.Embed(ctx, NewEmbeddingRequest(texts))
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	embeddings := resp.Embeddings()
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d embeddings for %d texts", len(embeddings), len(texts))
	}

	totalTokens := resp.Usage().TotalTokens()
	results := make([]search.EmbeddingResult, len(embeddings))
	for i, vec := range embeddings {
		tokens := 0
		if len(embeddings) > 0 {
			tokens = totalTokens / len(embeddings)
		}
		results[i] = search.EmbeddingResult{Vector: vec, Tokens: tokens}
	}
	return results, nil
}

// HealthCheck verifies the embedding provider is reachable by embedding a
// short probe string.
func (a *EmbeddingAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.provider.Embed(ctx, NewEmbeddingRequest([]string{"health check"}))
	if err != nil {
		return fmt.Errorf("embedding provider health check: %w", err)
	}
	return nil
}

// Dimensions returns the configured embedding width.
func (a *EmbeddingAdapter) Dimensions() int { return a.dimensions }

var _ search.Embedder = (*EmbeddingAdapter)(nil)
