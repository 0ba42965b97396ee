package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/personalrag/ragengine/domain/embeddingcost"
	"github.com/personalrag/ragengine/domain/repository"
	"github.com/personalrag/ragengine/internal/database"
)

// embeddingCostModel is the GORM row shape for embedding_costs (spec §3).
type embeddingCostModel struct {
	BatchID       string    `gorm:"column:batch_id;primaryKey"`
	Model         string    `gorm:"column:model"`
	DocumentCount int       `gorm:"column:document_count"`
	TotalTokens   int       `gorm:"column:total_tokens"`
	EstimatedCost float64   `gorm:"column:estimated_cost"`
	Status        string    `gorm:"column:status"`
	CreatedAt     time.Time `gorm:"column:created_at;index"`
}

func (embeddingCostModel) TableName() string { return "embedding_costs" }

type embeddingCostMapper struct{}

func (embeddingCostMapper) ToDomain(e embeddingCostModel) embeddingcost.EmbeddingCost {
	return embeddingcost.EmbeddingCost{
		BatchID:       e.BatchID,
		Model:         e.Model,
		DocumentCount: e.DocumentCount,
		TotalTokens:   e.TotalTokens,
		EstimatedCost: e.EstimatedCost,
		Status:        embeddingcost.Status(e.Status),
		CreatedAt:     e.CreatedAt,
	}
}

func (embeddingCostMapper) ToModel(d embeddingcost.EmbeddingCost) embeddingCostModel {
	return embeddingCostModel{
		BatchID:       d.BatchID,
		Model:         d.Model,
		DocumentCount: d.DocumentCount,
		TotalTokens:   d.TotalTokens,
		EstimatedCost: d.EstimatedCost,
		Status:        string(d.Status),
		CreatedAt:     d.CreatedAt,
	}
}

// EmbeddingCostStore implements embeddingcost.Store.
type EmbeddingCostStore struct {
	repo database.Repository[embeddingcost.EmbeddingCost, embeddingCostModel]
}

// NewEmbeddingCostStore constructs an EmbeddingCostStore, migrating its table.
func NewEmbeddingCostStore(db database.Database) (*EmbeddingCostStore, error) {
	if err := db.GORM().AutoMigrate(&embeddingCostModel{}); err != nil {
		return nil, fmt.Errorf("migrate embedding_costs table: %w", err)
	}
	return &EmbeddingCostStore{repo: database.NewRepository[embeddingcost.EmbeddingCost, embeddingCostModel](db, embeddingCostMapper{}, "embedding_cost")}, nil
}

// Create inserts a new audit row for one embedding batch run.
func (s *EmbeddingCostStore) Create(ctx context.Context, cost embeddingcost.EmbeddingCost) error {
	model := embeddingCostMapper{}.ToModel(cost)
	if err := s.repo.DB(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("create embedding cost %s: %w", cost.BatchID, err)
	}
	return nil
}

// FindRecent returns the most recent batch runs.
func (s *EmbeddingCostStore) FindRecent(ctx context.Context, limit int) ([]embeddingcost.EmbeddingCost, error) {
	return s.repo.Find(ctx, repository.WithOrderDesc("created_at"), repository.WithLimit(limit))
}

// TotalTokens sums total_tokens across every recorded batch run.
func (s *EmbeddingCostStore) TotalTokens(ctx context.Context) (int64, error) {
	var total int64
	err := s.repo.DB(ctx).Model(&embeddingCostModel{}).Select("COALESCE(SUM(total_tokens), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum embedding cost tokens: %w", err)
	}
	return total, nil
}

var _ embeddingcost.Store = (*EmbeddingCostStore)(nil)
