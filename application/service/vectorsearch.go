package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/personalrag/ragengine/domain/search"
)

// expansionFloor is the relaxed min_similarity search_with_expansion
// retries at when the initial result count is too small (spec §4.H).
const expansionFloor = 0.3

// expansionThreshold is the result count below which expansion retries.
const expansionThreshold = 3

// SearchOptions parameterizes Vector Search calls.
type SearchOptions struct {
	TopK          int
	MinSimilarity float64
	Filters       search.Filters
}

// clamp bounds opts to the spec's documented ranges: top_k in [1,100],
// min_similarity in [0,1].
func (o SearchOptions) clamp() SearchOptions {
	if o.TopK < 1 {
		o.TopK = 1
	}
	if o.TopK > 100 {
		o.TopK = 100
	}
	if o.MinSimilarity < 0 {
		o.MinSimilarity = 0
	}
	if o.MinSimilarity > 1 {
		o.MinSimilarity = 1
	}
	return o
}

// VectorSearch computes a query embedding (cached), issues cosine
// distance SQL through the Document Store, and rounds returned
// similarities (spec §4.H).
type VectorSearch struct {
	docs     search.DocumentStore
	embedder search.Embedder
	cache    search.EmbeddingCache
}

// NewVectorSearch constructs the Vector Search component. cache may be
// nil, in which case every call embeds the query directly.
func NewVectorSearch(docs search.DocumentStore, embedder search.Embedder, cache search.EmbeddingCache) *VectorSearch {
	return &VectorSearch{docs: docs, embedder: embedder, cache: cache}
}

// normalizeQuery is the cache key convention: trimmed and lower-cased.
func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func (v *VectorSearch) embedQuery(ctx context.Context, query string) ([]float64, error) {
	key := normalizeQuery(query)
	if v.cache != nil {
		if vec, ok := v.cache.Get(key); ok {
			return vec, nil
		}
	}

	result, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if v.cache != nil {
		v.cache.Set(key, result.Vector)
	}
	return result.Vector, nil
}

func roundSimilarity(s float64) float64 {
	return math.Round(s*10000) / 10000
}

func roundHits(hits []search.SearchHit) []search.SearchHit {
	for i := range hits {
		hits[i].Similarity = roundSimilarity(hits[i].Similarity)
	}
	return hits
}

// Search runs plain vector similarity search.
func (v *VectorSearch) Search(ctx context.Context, query string, opts SearchOptions) ([]search.SearchHit, error) {
	opts = opts.clamp()
	vector, err := v.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := v.docs.Search(ctx, vector, opts.Filters, opts.TopK, opts.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return roundHits(hits), nil
}

// HybridSearch runs the similarity + keyword_boost variant.
func (v *VectorSearch) HybridSearch(ctx context.Context, query string, keywords []string, opts SearchOptions) ([]search.SearchHit, error) {
	opts = opts.clamp()
	vector, err := v.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := v.docs.HybridSearch(ctx, vector, keywords, opts.Filters, opts.TopK, opts.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	return roundHits(hits), nil
}

// SearchWithExpansion retries Search at a relaxed min_similarity when the
// initial result count is too small (spec §4.H).
func (v *VectorSearch) SearchWithExpansion(ctx context.Context, query string, opts SearchOptions) ([]search.SearchHit, error) {
	hits, err := v.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if len(hits) < expansionThreshold && opts.MinSimilarity > expansionFloor {
		relaxed := opts
		relaxed.MinSimilarity = expansionFloor
		return v.Search(ctx, query, relaxed)
	}
	return hits, nil
}

// FindSimilar fetches the stored vector for documentID and runs the same
// ordering, excluding the seed document.
func (v *VectorSearch) FindSimilar(ctx context.Context, documentID string, k int) ([]search.SearchHit, error) {
	if k < 1 {
		k = 1
	}
	hits, err := v.docs.FindSimilar(ctx, documentID, k)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	return roundHits(hits), nil
}
