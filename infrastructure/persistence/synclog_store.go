package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/personalrag/ragengine/domain/document"
	"github.com/personalrag/ragengine/domain/repository"
	"github.com/personalrag/ragengine/domain/synclog"
	"github.com/personalrag/ragengine/internal/database"
)

// syncLogModel is the GORM row shape for sync_logs (spec §3).
type syncLogModel struct {
	ID                string    `gorm:"column:id;primaryKey"`
	UserID            string    `gorm:"column:user_id;index:idx_synclogs_user_source"`
	Source            string    `gorm:"column:source;index:idx_synclogs_user_source"`
	Mode              string    `gorm:"column:mode"`
	Status            string    `gorm:"column:status;index"`
	StartedAt         time.Time `gorm:"column:started_at"`
	CompletedAt       time.Time `gorm:"column:completed_at"`
	Fetched           int       `gorm:"column:fetched"`
	Stored            int       `gorm:"column:stored"`
	Skipped           int       `gorm:"column:skipped"`
	Failed            int       `gorm:"column:failed"`
	LastSyncTimestamp time.Time `gorm:"column:last_sync_timestamp"`
	ErrorMessage      string    `gorm:"column:error_message"`
}

func (syncLogModel) TableName() string { return "sync_logs" }

type syncLogMapper struct{}

func (syncLogMapper) ToDomain(e syncLogModel) synclog.SyncLog {
	return synclog.SyncLog{
		ID:                e.ID,
		UserID:            e.UserID,
		Source:            document.Source(e.Source),
		Mode:              synclog.Mode(e.Mode),
		Status:            synclog.Status(e.Status),
		StartedAt:         e.StartedAt,
		CompletedAt:       e.CompletedAt,
		Counters:          synclog.Counters{Fetched: e.Fetched, Stored: e.Stored, Skipped: e.Skipped, Failed: e.Failed},
		LastSyncTimestamp: e.LastSyncTimestamp,
		ErrorMessage:      e.ErrorMessage,
	}
}

func (syncLogMapper) ToModel(d synclog.SyncLog) syncLogModel {
	return syncLogModel{
		ID:                d.ID,
		UserID:            d.UserID,
		Source:            string(d.Source),
		Mode:              string(d.Mode),
		Status:            string(d.Status),
		StartedAt:         d.StartedAt,
		CompletedAt:       d.CompletedAt,
		Fetched:           d.Counters.Fetched,
		Stored:            d.Counters.Stored,
		Skipped:           d.Counters.Skipped,
		Failed:            d.Counters.Failed,
		LastSyncTimestamp: d.LastSyncTimestamp,
		ErrorMessage:      d.ErrorMessage,
	}
}

// SyncLogStore implements synclog.Store.
type SyncLogStore struct {
	repo database.Repository[synclog.SyncLog, syncLogModel]
}

// NewSyncLogStore constructs a SyncLogStore, migrating its table.
func NewSyncLogStore(db database.Database) (*SyncLogStore, error) {
	if err := db.GORM().AutoMigrate(&syncLogModel{}); err != nil {
		return nil, fmt.Errorf("migrate sync_logs table: %w", err)
	}
	return &SyncLogStore{repo: database.NewRepository[synclog.SyncLog, syncLogModel](db, syncLogMapper{}, "sync_log")}, nil
}

// Create inserts a new in-flight SyncLog row.
func (s *SyncLogStore) Create(ctx context.Context, log synclog.SyncLog) error {
	model := syncLogMapper{}.ToModel(log)
	if err := s.repo.DB(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("create sync log %s: %w", log.ID, err)
	}
	return nil
}

// Save persists a state transition on an existing SyncLog row.
func (s *SyncLogStore) Save(ctx context.Context, log synclog.SyncLog) error {
	model := syncLogMapper{}.ToModel(log)
	if err := s.repo.DB(ctx).Where("id = ?", log.ID).Save(&model).Error; err != nil {
		return fmt.Errorf("save sync log %s: %w", log.ID, err)
	}
	return nil
}

// FindByID retrieves one SyncLog by id.
func (s *SyncLogStore) FindByID(ctx context.Context, id string) (synclog.SyncLog, error) {
	return s.repo.FindOne(ctx, repository.WithCondition("id", id))
}

// FindHistory returns the most recent sync runs for (userID, source).
func (s *SyncLogStore) FindHistory(ctx context.Context, userID string, source document.Source, limit int) ([]synclog.SyncLog, error) {
	return s.repo.Find(ctx,
		repository.WithCondition("user_id", userID),
		repository.WithCondition("source", string(source)),
		repository.WithOrderDesc("started_at"),
		repository.WithLimit(limit),
	)
}

// FindLastSuccessful returns the most recent successful run for
// (userID, source), used to compute the "since" bound for incremental syncs.
func (s *SyncLogStore) FindLastSuccessful(ctx context.Context, userID string, source document.Source) (synclog.SyncLog, bool, error) {
	logs, err := s.repo.Find(ctx,
		repository.WithCondition("user_id", userID),
		repository.WithCondition("source", string(source)),
		repository.WithCondition("status", string(synclog.StatusSuccess)),
		repository.WithOrderDesc("completed_at"),
		repository.WithLimit(1),
	)
	if err != nil {
		return synclog.SyncLog{}, false, fmt.Errorf("find last successful sync: %w", err)
	}
	if len(logs) == 0 {
		return synclog.SyncLog{}, false, nil
	}
	return logs[0], true, nil
}

var _ synclog.Store = (*SyncLogStore)(nil)
