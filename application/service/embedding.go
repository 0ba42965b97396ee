package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/personalrag/ragengine/domain/document"
	"github.com/personalrag/ragengine/domain/embeddingcost"
	"github.com/personalrag/ragengine/domain/progress"
	"github.com/personalrag/ragengine/domain/search"
)

// defaultProcessPendingLimit is process_pending's default batch size for
// periodic/lightweight runs (spec §4.F).
const defaultProcessPendingLimit = 50

// interChunkDelay paces chunk processing to respect external quotas.
const interChunkDelay = 400 * time.Millisecond

// interDrainDelay paces top-level drain loop iterations.
const interDrainDelay = 500 * time.Millisecond

// Embedding pulls documents needing embedding, batches and chunks them,
// calls the Embedding Provider, stores vectors transactionally per
// chunk, records cost, and emits progress (spec §4.F).
type Embedding struct {
	docs     search.DocumentStore
	embedder search.Embedder
	costs    embeddingcost.Store
	budget   search.TokenBudget
	bus      *ProgressBus
	logger   *slog.Logger
	model    string
	price    float64
}

// NewEmbedding constructs the Embedding Pipeline.
func NewEmbedding(docs search.DocumentStore, embedder search.Embedder, costs embeddingcost.Store, budget search.TokenBudget, bus *ProgressBus, logger *slog.Logger, model string, pricePerMillion float64) *Embedding {
	return &Embedding{
		docs:     docs,
		embedder: embedder,
		costs:    costs,
		budget:   budget,
		bus:      bus,
		logger:   logger,
		model:    model,
		price:    pricePerMillion,
	}
}

// ProcessPending runs a single bounded batch, for periodic/lightweight
// triggers (spec §4.F entry point 1). limit <= 0 uses the default of 50.
func (e *Embedding) ProcessPending(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = defaultProcessPendingLimit
	}
	docs, err := e.docs.FetchDocumentsNeedingEmbedding(ctx, limit)
	if err != nil {
		return fmt.Errorf("embedding: fetch pending: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}
	_, err = e.processBatch(ctx, "", "", docs)
	return err
}

// DrainAllPending loops process_pending-style batches until
// fetch_documents_needing_embedding returns empty, used after ingestion
// to guarantee eventual coverage (spec §4.F entry point 2). syncID, when
// non-empty, scopes progress events to the ingestion run that triggered
// the drain.
func (e *Embedding) DrainAllPending(ctx context.Context, syncID, userID string) error {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		docs, err := e.docs.FetchDocumentsNeedingEmbedding(ctx, defaultProcessPendingLimit)
		if err != nil {
			return fmt.Errorf("embedding: fetch pending: %w", err)
		}
		if len(docs) == 0 {
			break
		}

		processed, err := e.processBatch(ctx, syncID, userID, docs)
		total += processed
		if err != nil {
			// processBatch only returns an error when ctx is cancelled;
			// chunk failures are already swallowed inside it.
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interDrainDelay):
		}
	}

	e.bus.Publish(progress.Event{
		Topic:   progress.TopicEmbeddings,
		ScopeID: syncID,
		UserID:  userID,
		Stage:   "complete",
		Percent: 100,
		Counts:  map[string]int{"processed": total},
	})
	return nil
}

// processBatch groups docs into chunks (default 10), embeds and applies
// each chunk atomically, and logs aggregate cost for the whole batch
// under one generated batch id. Chunk failures are logged and the loop
// continues; only the caller-supplied context's cancellation aborts the
// whole run.
func (e *Embedding) processBatch(ctx context.Context, syncID, userID string, docs []document.Document) (int, error) {
	chunks := search.Batch(e.budget, docs, func(d document.Document) string { return d.Content })

	batchID := uuid.NewString()
	total := len(docs)
	processed := 0
	totalTokens := 0
	anyFailure := false

	for idx, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		tokens, err := e.processChunk(ctx, chunk)
		if err != nil {
			e.logger.Error("embedding: chunk failed, continuing",
				slog.String("batch_id", batchID), slog.Int("chunk", idx), slog.String("error", err.Error()))
			anyFailure = true
		} else {
			totalTokens += tokens
		}

		processed += len(chunk)
		percent := processed * 99 / max(total, 1)
		e.bus.Publish(progress.Event{
			Topic:   progress.TopicEmbeddings,
			ScopeID: syncID,
			UserID:  userID,
			Stage:   "embedding",
			Message: fmt.Sprintf("%d/%d documents embedded", processed, total),
			Percent: progress.ClampPercent(min(percent, 99)),
			Counts:  map[string]int{"processed": processed, "total": total},
		})

		if idx < len(chunks)-1 {
			select {
			case <-ctx.Done():
				return processed, ctx.Err()
			case <-time.After(interChunkDelay):
			}
		}
	}

	status := embeddingcost.StatusCompleted
	if anyFailure {
		status = embeddingcost.StatusFailed
	}
	cost := embeddingcost.New(batchID, e.model, total, totalTokens, e.price, status, time.Now())
	if err := e.costs.Create(ctx, cost); err != nil {
		e.logger.Error("embedding: record cost failed", slog.String("batch_id", batchID), slog.String("error", err.Error()))
	}

	return processed, nil
}

// processChunk embeds one chunk and applies the resulting vectors inside
// a single transactional update, per spec §4.F ("atomic per chunk").
func (e *Embedding) processChunk(ctx context.Context, chunk []document.Document) (int, error) {
	texts := make([]string, len(chunk))
	for i, d := range chunk {
		texts[i] = e.budget.Truncate(d.Content)
	}

	results, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed batch: %w", err)
	}
	if len(results) != len(chunk) {
		return 0, fmt.Errorf("embed batch: count mismatch: got %d, expected %d", len(results), len(chunk))
	}

	now := time.Now()
	updates := make([]document.EmbeddingUpdate, len(chunk))
	tokens := 0
	for i, d := range chunk {
		updates[i] = document.EmbeddingUpdate{
			DocumentID:  d.DocumentID,
			Vector:      results[i].Vector,
			Tokens:      results[i].Tokens,
			Model:       e.model,
			GeneratedAt: now,
		}
		tokens += results[i].Tokens
	}

	if err := e.docs.BatchUpdateEmbeddings(ctx, updates); err != nil {
		return 0, fmt.Errorf("batch update embeddings: %w", err)
	}
	return tokens, nil
}
