package persistence

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/personalrag/ragengine/domain/search"
	"github.com/personalrag/ragengine/internal/database"
)

// Float64Slice is a sql.Scanner/driver.Valuer for JSON-serialized []float64
// embedding columns on SQLite, which has no native vector type.
type Float64Slice []float64

// Scan implements sql.Scanner.
func (f *Float64Slice) Scan(value any) error {
	if value == nil {
		*f = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Float64Slice", value)
	}
	return json.Unmarshal(data, f)
}

// Value implements driver.Valuer.
func (f Float64Slice) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

type pgDocumentEmbeddingRow struct {
	DocumentID string            `gorm:"column:document_id;primaryKey"`
	Embedding  database.PgVector `gorm:"column:embedding"`
}

func (pgDocumentEmbeddingRow) TableName() string { return "document_embeddings" }

type sqliteDocumentEmbeddingRow struct {
	DocumentID string       `gorm:"column:document_id;primaryKey"`
	Embedding  Float64Slice `gorm:"column:embedding"`
}

func (sqliteDocumentEmbeddingRow) TableName() string { return "document_embeddings" }

// upsertEmbedding writes one document's embedding outside a transaction.
func (s *DocumentStore) upsertEmbedding(ctx context.Context, documentID string, vector []float64) error {
	return s.upsertEmbeddingTx(s.db.Session(ctx), documentID, vector)
}

// upsertEmbeddingTx writes one document's embedding using tx, so callers can
// batch several writes into one transaction (spec §4.F).
func (s *DocumentStore) upsertEmbeddingTx(tx *gorm.DB, documentID string, vector []float64) error {
	if s.isPostgres {
		row := pgDocumentEmbeddingRow{DocumentID: documentID, Embedding: database.NewPgVector(vector)}
		return tx.Table("document_embeddings").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding"}),
		}).Create(&row).Error
	}

	row := sqliteDocumentEmbeddingRow{DocumentID: documentID, Embedding: Float64Slice(vector)}
	return tx.Table("document_embeddings").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding"}),
	}).Create(&row).Error
}

// loadEmbedding fetches one document's stored vector, or nil if none yet.
func (s *DocumentStore) loadEmbedding(ctx context.Context, documentID string) ([]float64, error) {
	db := s.db.Session(ctx)
	if s.isPostgres {
		var row pgDocumentEmbeddingRow
		err := db.Table("document_embeddings").Where("document_id = ?", documentID).First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("load embedding %s: %w", documentID, err)
		}
		return row.Embedding.Floats(), nil
	}

	var row sqliteDocumentEmbeddingRow
	err := db.Table("document_embeddings").Where("document_id = ?", documentID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load embedding %s: %w", documentID, err)
	}
	return row.Embedding, nil
}

// searchPostgres runs cosine distance search through pgvector's <=> operator,
// converting distance to similarity as 1 - distance/2 (spec §4.A, §4.H).
func (s *DocumentStore) searchPostgres(ctx context.Context, vector []float64, filters search.Filters, limit int, minSimilarity float64) ([]search.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	db := s.db.Session(ctx).Table("documents d").
		Joins("JOIN document_embeddings e ON e.document_id = d.document_id").
		Select("d.*, 1.0 - (e.embedding <=> ?) / 2.0 AS similarity", database.NewPgVector(vector).String())

	db = applyDocumentFilters(db, filters, "d")
	db = db.Where("(1.0 - (e.embedding <=> ?) / 2.0) >= ?", database.NewPgVector(vector).String(), minSimilarity)
	db = db.Order("similarity DESC").Limit(limit)

	var rows []struct {
		documentModel
		Similarity float64
	}
	if err := db.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}

	hits := make([]search.SearchHit, len(rows))
	for i, r := range rows {
		hits[i] = search.SearchHit{
			Document:   documentMapper{}.ToDomain(r.documentModel),
			Similarity: r.Similarity,
		}
	}
	return hits, nil
}

// searchSQLite loads filtered candidate rows and their embeddings, computes
// cosine similarity in process (SQLite has no vector extension), and returns
// the top-k above minSimilarity.
func (s *DocumentStore) searchSQLite(ctx context.Context, vector []float64, filters search.Filters, limit int, minSimilarity float64) ([]search.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	db := applyDocumentFilters(s.db.Session(ctx).Model(&documentModel{}), filters, "")

	var docs []documentModel
	if err := db.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("sqlite search: load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(docs))
	byID := make(map[string]documentModel, len(docs))
	for i, d := range docs {
		ids[i] = d.DocumentID
		byID[d.DocumentID] = docs[i]
	}

	var rows []sqliteDocumentEmbeddingRow
	if err := s.db.Session(ctx).Table("document_embeddings").Where("document_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite search: load embeddings: %w", err)
	}

	hits := make([]search.SearchHit, 0, len(rows))
	for _, r := range rows {
		if len(r.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(vector, r.Embedding)
		if sim < minSimilarity {
			continue
		}
		doc, ok := byID[r.DocumentID]
		if !ok {
			continue
		}
		hits = append(hits, search.SearchHit{
			Document:   documentMapper{}.ToDomain(doc),
			Similarity: sim,
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// cosineSimilarity computes the cosine similarity between two vectors,
// returning 0 for mismatched or zero-magnitude vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// applyDocumentFilters adds WHERE clauses for the search.Filters predicates,
// optionally qualifying column names with tableAlias (used by the pgvector
// join query, empty for the plain SQLite model query).
func applyDocumentFilters(db *gorm.DB, filters search.Filters, tableAlias string) *gorm.DB {
	col := func(name string) string {
		if tableAlias == "" {
			return name
		}
		return tableAlias + "." + name
	}

	if filters.UserID() != "" {
		db = db.Where(col("user_id")+" = ?", filters.UserID())
	}
	if filters.Source() != "" {
		db = db.Where(col("source")+" = ?", string(filters.Source()))
	}
	if filters.Type() != "" {
		db = db.Where(col("type")+" = ?", string(filters.Type()))
	}
	if author := filters.EffectiveAuthor(); author != "" {
		db = db.Where(col("author")+" = ?", author)
	}
	if filters.HasTimeRange() {
		start, end := filters.TimeRange()
		if !start.IsZero() {
			db = db.Where(col("timestamp")+" >= ?", start)
		}
		if !end.IsZero() {
			db = db.Where(col("timestamp")+" < ?", end)
		}
	}
	return db
}
