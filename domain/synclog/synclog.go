// Package synclog defines the SyncLog entity and the ingestion state
// machine: fetching -> normalizing -> storing -> embedding_start ->
// embedding -> complete, with any state able to transition to failed.
package synclog

import (
	"context"
	"fmt"
	"time"

	"github.com/personalrag/ragengine/domain/document"
)

// Status is a SyncLog's terminal or in-flight status.
type Status string

// Status values.
const (
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Stage is a phase of the ingestion state machine. Stage is reported on
// the Progress Bus; Status is the SyncLog's persisted column.
type Stage string

// Ingestion stages, in the order they normally occur.
const (
	StageFetching       Stage = "fetching"
	StageNormalizing    Stage = "normalizing"
	StageStoring        Stage = "storing"
	StageEmbeddingStart Stage = "embedding_start"
	StageEmbedding      Stage = "embedding"
	StageComplete       Stage = "complete"
	StageFailed         Stage = "failed"
)

// Mode distinguishes a full resync from an incremental one.
type Mode string

// Mode values.
const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Counters tracks per-document outcomes within a sync run.
type Counters struct {
	Fetched int
	Stored  int
	Skipped int
	Failed  int
}

// SyncLog is one row per ingestion run, per spec §3.
type SyncLog struct {
	ID                 string
	UserID             string
	Source             document.Source
	Mode               Mode
	Status             Status
	StartedAt          time.Time
	CompletedAt        time.Time
	Counters           Counters
	LastSyncTimestamp  time.Time
	ErrorMessage       string
}

// Start creates an in-flight SyncLog, as done at the moment
// start_sync returns its sync id.
func Start(id, userID string, source document.Source, mode Mode, startedAt time.Time) SyncLog {
	return SyncLog{
		ID:        id,
		UserID:    userID,
		Source:    source,
		Mode:      mode,
		Status:    StatusInProgress,
		StartedAt: startedAt,
	}
}

// IsTerminal reports whether the SyncLog has reached success or failed.
// Once terminal, a SyncLog is immutable per the entity invariant.
func (s SyncLog) IsTerminal() bool {
	return s.Status == StatusSuccess || s.Status == StatusFailed
}

// Succeed transitions an in-progress SyncLog to success. It is an error
// to call this on an already-terminal row.
func (s SyncLog) Succeed(counters Counters, lastSyncTimestamp, completedAt time.Time) (SyncLog, error) {
	if s.IsTerminal() {
		return s, fmt.Errorf("synclog %s: already terminal (%s)", s.ID, s.Status)
	}
	s.Status = StatusSuccess
	s.Counters = counters
	s.LastSyncTimestamp = lastSyncTimestamp
	s.CompletedAt = completedAt
	return s, nil
}

// Fail transitions an in-progress SyncLog to failed, preserving any
// partial counters already accumulated. Already-inserted documents are
// not rolled back; this only marks the run itself as failed.
func (s SyncLog) Fail(errMessage string, counters Counters, completedAt time.Time) (SyncLog, error) {
	if s.IsTerminal() {
		return s, fmt.Errorf("synclog %s: already terminal (%s)", s.ID, s.Status)
	}
	s.Status = StatusFailed
	s.Counters = counters
	s.ErrorMessage = errMessage
	s.CompletedAt = completedAt
	return s, nil
}

// cancellationMarker is the prefix used for ErrorMessage when a sync is
// cancelled mid-flight rather than failing on an internal error.
const cancellationMarker = "cancelled: "

// Cancel transitions an in-progress SyncLog to failed with a
// cancellation marker, per the cancellation semantics in §5.
func (s SyncLog) Cancel(counters Counters, completedAt time.Time) (SyncLog, error) {
	return s.Fail(cancellationMarker+"sync cancelled", counters, completedAt)
}

// IsCancelled reports whether a failed SyncLog's ErrorMessage carries the
// cancellation marker.
func (s SyncLog) IsCancelled() bool {
	return s.Status == StatusFailed && len(s.ErrorMessage) >= len(cancellationMarker) && s.ErrorMessage[:len(cancellationMarker)] == cancellationMarker
}

// Store is the SyncLog persistence contract: create on start, save on
// every state transition, and the lookups the HTTP surface's
// /sync/status and /sync/history endpoints need (spec §6).
type Store interface {
	Create(ctx context.Context, log SyncLog) error
	Save(ctx context.Context, log SyncLog) error
	FindByID(ctx context.Context, id string) (SyncLog, error)
	FindHistory(ctx context.Context, userID string, source document.Source, limit int) ([]SyncLog, error)
	FindLastSuccessful(ctx context.Context, userID string, source document.Source) (SyncLog, bool, error)
}
