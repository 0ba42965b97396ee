package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/personalrag/ragengine/domain/connector"
	"github.com/personalrag/ragengine/domain/document"
	"github.com/personalrag/ragengine/domain/progress"
	"github.com/personalrag/ragengine/domain/search"
	"github.com/personalrag/ragengine/domain/synclog"
)

// progressBatch is how often, within a phase, the Ingestion Coordinator
// emits a progress event for document counts (spec §4.E: "every ≥10
// documents within a phase").
const progressBatch = 10

// Ingestion orchestrates full and incremental sync for a (user, source):
// fetch via the Source Connector, normalize, store with dedup-by-id,
// then hand off to the Embedding Pipeline (spec §4.E).
type Ingestion struct {
	docs       search.DocumentStore
	logs       synclog.Store
	connectors connector.Registry
	embedding  *Embedding
	bus        *ProgressBus
	logger     *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewIngestion constructs an Ingestion Coordinator.
func NewIngestion(docs search.DocumentStore, logs synclog.Store, connectors connector.Registry, embedding *Embedding, bus *ProgressBus, logger *slog.Logger) *Ingestion {
	return &Ingestion{
		docs:       docs,
		logs:       logs,
		connectors: connectors,
		embedding:  embedding,
		bus:        bus,
		logger:     logger,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// StartSync creates an in_progress SyncLog, returns its id immediately,
// and runs the sync on a background task (spec §4.E). since is only
// meaningful for synclog.ModeIncremental; a zero time resolves from the
// LastSyncTimestamp of the last successful SyncLog for (user, source).
func (i *Ingestion) StartSync(ctx context.Context, userID string, source document.Source, mode synclog.Mode, since time.Time) (string, error) {
	conn, ok := i.connectors[source]
	if !ok {
		return "", fmt.Errorf("ingestion: no connector registered for source %q", source)
	}

	if mode == synclog.ModeIncremental && since.IsZero() {
		last, found, err := i.logs.FindLastSuccessful(ctx, userID, source)
		if err != nil {
			return "", fmt.Errorf("ingestion: resolve incremental cursor: %w", err)
		}
		if found {
			since = last.LastSyncTimestamp
		}
	}

	syncID := uuid.NewString()
	log := synclog.Start(syncID, userID, source, mode, time.Now())
	if err := i.logs.Create(ctx, log); err != nil {
		return "", fmt.Errorf("ingestion: create sync log: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	i.mu.Lock()
	i.cancels[syncID] = cancel
	i.mu.Unlock()

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer func() {
			i.mu.Lock()
			delete(i.cancels, syncID)
			i.mu.Unlock()
			cancel()
		}()
		i.run(runCtx, log, conn, since)
	}()

	return syncID, nil
}

// CancelSync cancels an in-flight sync, if one is running under this id.
func (i *Ingestion) CancelSync(syncID string) bool {
	i.mu.Lock()
	cancel, ok := i.cancels[syncID]
	i.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Close cancels every in-flight sync and waits for them to return, for
// graceful shutdown.
func (i *Ingestion) Close() {
	i.mu.Lock()
	for _, cancel := range i.cancels {
		cancel()
	}
	i.mu.Unlock()
	i.wg.Wait()
}

func (i *Ingestion) run(ctx context.Context, log synclog.SyncLog, conn connector.Connector, since time.Time) {
	var counters synclog.Counters

	i.emit(log, synclog.StageFetching, "fetching records", 5, counters)

	raw, err := i.fetch(ctx, conn, log, since)
	if err != nil {
		i.fail(ctx, log, counters, err)
		return
	}
	counters.Fetched = len(raw)

	i.emit(log, synclog.StageNormalizing, "normalizing records", 25, counters)

	docs := make([]document.Document, 0, len(raw))
	for idx, r := range raw {
		if err := ctx.Err(); err != nil {
			i.cancel(ctx, log, counters)
			return
		}
		doc, err := conn.Normalize(ctx, log.UserID, r)
		if err != nil {
			i.logger.Warn("ingestion: normalize failed, skipping record",
				slog.String("sync_id", log.ID), slog.String("error", err.Error()))
			counters.Failed++
			continue
		}
		docs = append(docs, doc)
		if (idx+1)%progressBatch == 0 {
			i.emit(log, synclog.StageNormalizing, "normalizing records", 25, counters)
		}
	}

	i.emit(log, synclog.StageStoring, "storing documents", 50, counters)

	for idx, doc := range docs {
		if err := ctx.Err(); err != nil {
			i.cancel(ctx, log, counters)
			return
		}
		outcome, err := i.docs.CreateDocument(ctx, doc)
		if err != nil {
			i.logger.Warn("ingestion: store failed, skipping document",
				slog.String("sync_id", log.ID), slog.String("document_id", doc.DocumentID), slog.String("error", err.Error()))
			counters.Failed++
			continue
		}
		switch outcome {
		case search.Inserted:
			counters.Stored++
		case search.Duplicate:
			counters.Skipped++
		}
		if (idx+1)%progressBatch == 0 {
			i.emit(log, synclog.StageStoring, "storing documents", 50, counters)
		}
	}

	i.emit(log, synclog.StageEmbeddingStart, "starting embedding drain", 60, counters)

	if i.embedding != nil {
		if err := i.embedding.DrainAllPending(ctx, log.ID, log.UserID); err != nil && !errors.Is(err, context.Canceled) {
			i.logger.Error("ingestion: embedding drain failed",
				slog.String("sync_id", log.ID), slog.String("error", err.Error()))
		}
	}

	if err := ctx.Err(); err != nil {
		i.cancel(ctx, log, counters)
		return
	}

	completed, err := log.Succeed(counters, latestTimestamp(docs, since), time.Now())
	if err != nil {
		i.logger.Error("ingestion: transition to success failed", slog.String("error", err.Error()))
		return
	}
	if err := i.logs.Save(ctx, completed); err != nil {
		i.logger.Error("ingestion: save sync log failed", slog.String("error", err.Error()))
	}
	i.emit(completed, synclog.StageComplete, "sync complete", 100, counters)
	i.bus.Publish(progress.Event{
		Topic:   progress.SyncCompleteTopic(string(completed.Source)),
		ScopeID: completed.ID,
		UserID:  completed.UserID,
		Stage:   string(synclog.StageComplete),
		Percent: 100,
		Counts:  countsMap(counters),
	})
}

func (i *Ingestion) fetch(ctx context.Context, conn connector.Connector, log synclog.SyncLog, since time.Time) ([]connector.RawRecord, error) {
	if log.Mode == synclog.ModeIncremental {
		return conn.FetchNew(ctx, log.UserID, since)
	}
	return conn.FetchAll(ctx, connector.FetchOptions{UserID: log.UserID})
}

func (i *Ingestion) fail(ctx context.Context, log synclog.SyncLog, counters synclog.Counters, runErr error) {
	failed, err := log.Fail(runErr.Error(), counters, time.Now())
	if err != nil {
		i.logger.Error("ingestion: transition to failed failed", slog.String("error", err.Error()))
		return
	}
	if err := i.logs.Save(ctx, failed); err != nil {
		i.logger.Error("ingestion: save failed sync log failed", slog.String("error", err.Error()))
	}
	i.bus.Publish(progress.Event{
		Topic:   progress.SyncErrorTopic(string(failed.Source)),
		ScopeID: failed.ID,
		UserID:  failed.UserID,
		Stage:   string(synclog.StageFailed),
		Error:   runErr.Error(),
		Counts:  countsMap(counters),
	})
}

func (i *Ingestion) cancel(ctx context.Context, log synclog.SyncLog, counters synclog.Counters) {
	cancelled, err := log.Cancel(counters, time.Now())
	if err != nil {
		return
	}
	// ctx is already cancelled here; use Background for the final write so
	// the cancellation itself can still be persisted.
	if err := i.logs.Save(context.Background(), cancelled); err != nil {
		i.logger.Error("ingestion: save cancelled sync log failed", slog.String("error", err.Error()))
	}
	i.bus.Publish(progress.Event{
		Topic:   progress.SyncErrorTopic(string(cancelled.Source)),
		ScopeID: cancelled.ID,
		UserID:  cancelled.UserID,
		Stage:   string(synclog.StageFailed),
		Error:   cancelled.ErrorMessage,
		Counts:  countsMap(counters),
	})
}

func (i *Ingestion) emit(log synclog.SyncLog, stage synclog.Stage, message string, percent int, counters synclog.Counters) {
	i.bus.Publish(progress.Event{
		Topic:   progress.SyncProgressTopic(string(log.Source)),
		ScopeID: log.ID,
		UserID:  log.UserID,
		Stage:   string(stage),
		Message: message,
		Percent: progress.ClampPercent(percent),
		Counts:  countsMap(counters),
	})
}

func countsMap(c synclog.Counters) map[string]int {
	return map[string]int{
		"fetched": c.Fetched,
		"stored":  c.Stored,
		"skipped": c.Skipped,
		"failed":  c.Failed,
	}
}

func latestTimestamp(docs []document.Document, fallback time.Time) time.Time {
	latest := fallback
	for _, d := range docs {
		if d.Timestamp.After(latest) {
			latest = d.Timestamp
		}
	}
	return latest
}
