package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/personalrag/ragengine/domain/progress"
	"github.com/personalrag/ragengine/domain/prompt"
	"github.com/personalrag/ragengine/domain/search"
	"github.com/personalrag/ragengine/internal/apperror"
	"github.com/personalrag/ragengine/internal/config"
)

// minResultsForFallback is the result count below which the RAG
// Pipeline retries with a relaxed min_similarity and looser diversity
// (spec §4.K).
const minResultsForFallback = 3

// RetrievalMetadata describes which strategy the RAG Pipeline chose and
// what it found, returned alongside the assembled prompt.
type RetrievalMetadata struct {
	QueryID        string
	Strategy       string
	UsedFallback   bool
	CandidateCount int
	SelectedCount  int
	Duration       time.Duration
}

// RAGResult is the RAG Pipeline's return value (spec §4.K).
type RAGResult struct {
	Prompt           string
	Context          string
	Citations        []Citation
	ProcessedQuery   ProcessedQuery
	RetrievalMetadata RetrievalMetadata
}

// RAG glues the Query Processor, Vector Search, Result Ranker, and
// Context Formatter, then assembles the final prompt from a template
// (spec §4.K).
type RAG struct {
	search     *VectorSearch
	ranker     *Ranker
	formatter  *ContextFormatter
	bus        *ProgressBus
	logger     *slog.Logger
	retrieval  config.RetrievalConfig
}

// NewRAG constructs the RAG Pipeline.
func NewRAG(search *VectorSearch, ranker *Ranker, formatter *ContextFormatter, bus *ProgressBus, logger *slog.Logger, retrieval config.RetrievalConfig) *RAG {
	return &RAG{search: search, ranker: ranker, formatter: formatter, bus: bus, logger: logger, retrieval: retrieval}
}

// Answer runs the full pipeline for one user query and returns the
// assembled prompt plus citations and metadata. It does not itself call
// the LLM Provider; the caller does that with the returned prompt so
// cancellation and streaming stay the caller's concern (spec §1, §4.C).
func (r *RAG) Answer(ctx context.Context, userID, query string) (RAGResult, error) {
	if strings.TrimSpace(query) == "" {
		return RAGResult{}, apperror.Validation("query must not be empty")
	}

	start := time.Now()
	queryID := uuid.NewString()

	r.publish(queryID, userID, progress.TopicRAGProgress, "processing query", 10)

	pq := Process(query, time.Now())
	pq.Filters = search.NewFilters(filtersOptionsWithUser(pq.Filters, userID)...)

	strategy := "vector"
	if len(pq.Keywords) >= r.retrieval.HybridKeywordThreshold {
		strategy = "hybrid"
	}

	r.publish(queryID, userID, progress.TopicRAGProgress, "searching", 40)

	opts := SearchOptions{
		TopK:          r.retrieval.TopK,
		MinSimilarity: r.retrieval.MinSimilarity,
		Filters:       pq.Filters,
	}

	hits, err := r.retrieve(ctx, strategy, pq, opts)
	if err != nil {
		r.publish(queryID, userID, progress.TopicRAGError, err.Error(), 0)
		return RAGResult{}, fmt.Errorf("rag: retrieval failed: %w", err)
	}

	diversify := true
	usedFallback := false
	if len(hits) < minResultsForFallback && opts.MinSimilarity > r.retrieval.MinSimilarityFloor {
		usedFallback = true
		diversify = false
		relaxed := opts
		relaxed.MinSimilarity = r.retrieval.MinSimilarityFloor
		hits, err = r.retrieve(ctx, strategy, pq, relaxed)
		if err != nil {
			r.publish(queryID, userID, progress.TopicRAGError, err.Error(), 0)
			return RAGResult{}, fmt.Errorf("rag: fallback retrieval failed: %w", err)
		}
	}

	r.publish(queryID, userID, progress.TopicRAGProgress, "ranking results", 70)

	var boostSource = pq.Source
	ranked := r.ranker.Rank(hits, pq.Keywords, pq.Original, boostSource, diversify)

	if len(ranked) > r.retrieval.TopN {
		ranked = ranked[:r.retrieval.TopN]
	}

	formatted := r.formatter.Format(ranked)

	r.publish(queryID, userID, progress.TopicRAGProgress, "assembling prompt", 90)

	tmplName := prompt.Selector(prompt.QueryType(pq.QueryType))
	tmpl := prompt.Lookup(tmplName)
	if formatted.Context == "" || formatted.SelectedCount == 0 {
		tmpl = prompt.NoContextTemplate()
	}
	assembled := prompt.Assemble(tmpl, formatted.Context, query)

	r.publish(queryID, userID, progress.TopicRAGComplete, "done", 100)

	return RAGResult{
		Prompt:         assembled,
		Context:        formatted.Context,
		Citations:      formatted.Citations,
		ProcessedQuery: pq,
		RetrievalMetadata: RetrievalMetadata{
			QueryID:        queryID,
			Strategy:       strategy,
			UsedFallback:   usedFallback,
			CandidateCount: len(hits),
			SelectedCount:  formatted.SelectedCount,
			Duration:       time.Since(start),
		},
	}, nil
}

func (r *RAG) retrieve(ctx context.Context, strategy string, pq ProcessedQuery, opts SearchOptions) ([]search.SearchHit, error) {
	if strategy == "hybrid" {
		return r.search.HybridSearch(ctx, pq.Original, pq.Keywords, opts)
	}
	return r.search.SearchWithExpansion(ctx, pq.Original, opts)
}

func (r *RAG) publish(queryID, userID string, topic progress.Topic, message string, percent int) {
	r.bus.Publish(progress.Event{
		Topic:   topic,
		ScopeID: queryID,
		UserID:  userID,
		Message: message,
		Percent: progress.ClampPercent(percent),
	})
}

func filtersOptionsWithUser(f search.Filters, userID string) []search.FiltersOption {
	opts := []search.FiltersOption{search.WithUserID(userID)}
	if f.Source() != "" {
		opts = append(opts, search.WithSource(f.Source()))
	}
	if f.Type() != "" {
		opts = append(opts, search.WithType(f.Type()))
	}
	if f.Author() != "" {
		opts = append(opts, search.WithAuthor(f.Author()))
	}
	if f.PotentialAuthor() != "" {
		opts = append(opts, search.WithPotentialAuthor(f.PotentialAuthor()))
	}
	if f.HasTimeRange() {
		start, end := f.TimeRange()
		opts = append(opts, search.WithTimeRange(start, end))
	}
	return opts
}
