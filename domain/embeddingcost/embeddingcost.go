// Package embeddingcost defines the EmbeddingCost entity: an audit-trail
// row written once per embedding batch run.
package embeddingcost

import (
	"context"
	"time"
)

// Status of an embedding batch run.
type Status string

// Status values.
const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// EmbeddingCost is the audit row described in spec §3.
type EmbeddingCost struct {
	BatchID        string
	Model          string
	DocumentCount  int
	TotalTokens    int
	EstimatedCost  float64
	Status         Status
	CreatedAt      time.Time
}

// Estimate computes cost from tokens and a configured price per million
// tokens, per spec §4.B: cost = tokens / 1,000,000 * price_per_million.
func Estimate(tokens int, pricePerMillion float64) float64 {
	return float64(tokens) / 1_000_000 * pricePerMillion
}

// New builds an EmbeddingCost row for a completed batch run.
func New(batchID, model string, documentCount, totalTokens int, pricePerMillion float64, status Status, createdAt time.Time) EmbeddingCost {
	return EmbeddingCost{
		BatchID:       batchID,
		Model:         model,
		DocumentCount: documentCount,
		TotalTokens:   totalTokens,
		EstimatedCost: Estimate(totalTokens, pricePerMillion),
		Status:        status,
		CreatedAt:     createdAt,
	}
}

// Store persists EmbeddingCost rows and answers the /embedding/stats
// aggregate the HTTP surface exposes (spec §6).
type Store interface {
	Create(ctx context.Context, cost EmbeddingCost) error
	FindRecent(ctx context.Context, limit int) ([]EmbeddingCost, error)
	TotalTokens(ctx context.Context) (int64, error)
}
