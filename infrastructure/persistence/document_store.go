// Package persistence provides GORM-backed implementations of the domain
// store interfaces (Document Store, Sync Log, Embedding Cost, Conversation
// History), adapted from the teacher's repository/pgvector persistence layer
// to the personal RAG document schema (spec §4.A, §4.F).
package persistence

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/personalrag/ragengine/domain/document"
	"github.com/personalrag/ragengine/domain/repository"
	"github.com/personalrag/ragengine/domain/search"
	"github.com/personalrag/ragengine/internal/database"
)

// ErrDimensionMismatch indicates the configured embedding provider's
// dimensionality does not match what is already stored.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// MetadataJSON is a sql.Scanner/driver.Valuer for the document metadata
// column, serialized as JSON for both SQLite and PostgreSQL.
type MetadataJSON map[string]any

// Scan implements sql.Scanner.
func (m *MetadataJSON) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MetadataJSON", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Value implements driver.Valuer.
func (m MetadataJSON) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// documentModel is the GORM row shape for the documents table. The
// embedding vector itself lives in a sibling table (documentEmbeddingModel)
// because its column type differs by dialect (VECTOR vs JSON), mirroring
// the teacher's split between snippet rows and their embeddings.
type documentModel struct {
	DocumentID           string       `gorm:"column:document_id;primaryKey"`
	UserID               string       `gorm:"column:user_id;index:idx_documents_user"`
	Source               string       `gorm:"column:source;index:idx_documents_user"`
	Type                 string       `gorm:"column:type"`
	Content              string       `gorm:"column:content"`
	Title                string       `gorm:"column:title"`
	Author               string       `gorm:"column:author;index"`
	Timestamp            time.Time    `gorm:"column:timestamp;index"`
	Metadata             MetadataJSON `gorm:"column:metadata;type:json"`
	NeedsEmbedding       bool         `gorm:"column:needs_embedding;index"`
	EmbeddingModel       string       `gorm:"column:embedding_model"`
	EmbeddingTokens      int          `gorm:"column:embedding_tokens"`
	EmbeddingGeneratedAt time.Time    `gorm:"column:embedding_generated_at"`
	CreatedAt            time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the GORM table name.
func (documentModel) TableName() string { return "documents" }

// documentMapper adapts documentModel to document.Document (the embedding
// vector is attached separately by the store, since it lives in its own table).
type documentMapper struct{}

func (documentMapper) ToDomain(e documentModel) document.Document {
	return document.Document{
		DocumentID:           e.DocumentID,
		UserID:               e.UserID,
		Source:               document.Source(e.Source),
		Type:                 document.Type(e.Type),
		Content:              e.Content,
		Title:                e.Title,
		Author:               e.Author,
		Timestamp:            e.Timestamp,
		Metadata:             map[string]any(e.Metadata),
		NeedsEmbedding:       e.NeedsEmbedding,
		EmbeddingModel:       e.EmbeddingModel,
		EmbeddingTokens:      e.EmbeddingTokens,
		EmbeddingGeneratedAt: e.EmbeddingGeneratedAt,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
}

func (documentMapper) ToModel(d document.Document) documentModel {
	return documentModel{
		DocumentID:           d.DocumentID,
		UserID:               d.UserID,
		Source:               string(d.Source),
		Type:                 string(d.Type),
		Content:              d.Content,
		Title:                d.Title,
		Author:               d.Author,
		Timestamp:            d.Timestamp,
		Metadata:             MetadataJSON(d.Metadata),
		NeedsEmbedding:       d.NeedsEmbedding,
		EmbeddingModel:       d.EmbeddingModel,
		EmbeddingTokens:      d.EmbeddingTokens,
		EmbeddingGeneratedAt: d.EmbeddingGeneratedAt,
	}
}

// storedEmbedding pairs a document id with its stored vector, independent
// of dialect (Postgres scans a PgVector, read out through its Floats()
// accessor; SQLite scans a Float64Slice, which is already a []float64).
type storedEmbedding struct {
	DocumentID string
	Vector     []float64
}

// DocumentStore implements search.DocumentStore against a documents table
// plus a dialect-specific document_embeddings table (spec §4.A).
type DocumentStore struct {
	db         database.Database
	docs       database.Repository[document.Document, documentModel]
	dimension  int
	logger     *slog.Logger
	isPostgres bool
}

// NewDocumentStore constructs the Document Store, eagerly creating the
// documents and document_embeddings tables (and, for PostgreSQL, the
// pgvector extension and ivfflat index) for the configured dimension.
func NewDocumentStore(ctx context.Context, db database.Database, dimension int, logger *slog.Logger) (*DocumentStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &DocumentStore{
		db:         db,
		docs:       database.NewRepository[document.Document, documentModel](db, documentMapper{}, "document"),
		dimension:  dimension,
		logger:     logger,
		isPostgres: db.IsPostgres(),
	}

	if err := db.GORM().AutoMigrate(&documentModel{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}

	if err := s.createEmbeddingsTable(ctx, dimension); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *DocumentStore) createEmbeddingsTable(ctx context.Context, dimension int) error {
	rawDB := s.db.Session(ctx)

	if s.isPostgres {
		if err := rawDB.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS document_embeddings (
    document_id VARCHAR(255) PRIMARY KEY REFERENCES documents(document_id) ON DELETE CASCADE,
    embedding VECTOR(%d) NOT NULL
)`, dimension)
		if err := rawDB.Exec(createSQL).Error; err != nil {
			return fmt.Errorf("create document_embeddings table: %w", err)
		}
		indexSQL := `CREATE INDEX IF NOT EXISTS document_embeddings_idx ON document_embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`
		if err := rawDB.Exec(indexSQL).Error; err != nil {
			s.logger.Warn("failed to create document embedding index (may already exist)", "error", err)
		}
		return nil
	}

	createSQL := `
CREATE TABLE IF NOT EXISTS document_embeddings (
    document_id VARCHAR(255) PRIMARY KEY,
    embedding JSON NOT NULL
)`
	if err := rawDB.Exec(createSQL).Error; err != nil {
		return fmt.Errorf("create document_embeddings table: %w", err)
	}
	return nil
}

// CreateDocument inserts doc, reporting Duplicate instead of erroring when a
// document with the same document_id already exists (connectors re-fetch
// overlapping pages; ingestion must stay idempotent — spec §4.D, §4.E).
func (s *DocumentStore) CreateDocument(ctx context.Context, doc document.Document) (search.InsertOutcome, error) {
	model := documentMapper{}.ToModel(doc)

	result := s.docs.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		DoNothing: true,
	}).Create(&model)
	if result.Error != nil {
		return search.InsertOutcome(0), fmt.Errorf("create document %s: %w", doc.DocumentID, result.Error)
	}
	if result.RowsAffected == 0 {
		return search.Duplicate, nil
	}

	if len(doc.Embedding) > 0 {
		if err := s.upsertEmbedding(ctx, doc.DocumentID, doc.Embedding); err != nil {
			return search.InsertOutcome(0), err
		}
	}

	return search.Inserted, nil
}

// FindByID retrieves one document by id, with its embedding vector attached
// if one has been generated.
func (s *DocumentStore) FindByID(ctx context.Context, documentID string) (document.Document, error) {
	doc, err := s.docs.FindOne(ctx, repository.WithCondition("document_id", documentID))
	if err != nil {
		return document.Document{}, fmt.Errorf("find document %s: %w", documentID, err)
	}

	vec, err := s.loadEmbedding(ctx, documentID)
	if err != nil {
		return document.Document{}, err
	}
	doc.Embedding = vec
	return doc, nil
}

// FetchDocumentsNeedingEmbedding returns up to limit documents whose
// needs_embedding flag is set, oldest first (spec §4.F's pending queue).
func (s *DocumentStore) FetchDocumentsNeedingEmbedding(ctx context.Context, limit int) ([]document.Document, error) {
	return s.docs.Find(ctx,
		repository.WithCondition("needs_embedding", true),
		repository.WithOrderAsc("created_at"),
		repository.WithLimit(limit),
	)
}

// BatchUpdateEmbeddings applies a batch of embedding results transactionally:
// each update clears needs_embedding on its document row and upserts the
// corresponding embedding row (spec §4.F).
func (s *DocumentStore) BatchUpdateEmbeddings(ctx context.Context, updates []document.EmbeddingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	return s.db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			res := tx.Model(&documentModel{}).Where("document_id = ?", u.DocumentID).Updates(map[string]any{
				"needs_embedding":        false,
				"embedding_model":        u.Model,
				"embedding_tokens":       u.Tokens,
				"embedding_generated_at": u.GeneratedAt,
			})
			if res.Error != nil {
				return fmt.Errorf("update document %s: %w", u.DocumentID, res.Error)
			}

			if err := s.upsertEmbeddingTx(tx, u.DocumentID, u.Vector); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkForReembedding sets needs_embedding for the given documents.
func (s *DocumentStore) MarkForReembedding(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	result := s.docs.DB(ctx).Model(&documentModel{}).Where("document_id IN ?", documentIDs).Update("needs_embedding", true)
	if result.Error != nil {
		return fmt.Errorf("mark for reembedding: %w", result.Error)
	}
	return nil
}

// MarkAllForReembedding sets needs_embedding for every document owned by userID.
func (s *DocumentStore) MarkAllForReembedding(ctx context.Context, userID string) error {
	result := s.docs.DB(ctx).Model(&documentModel{}).Where("user_id = ?", userID).Update("needs_embedding", true)
	if result.Error != nil {
		return fmt.Errorf("mark all for reembedding: %w", result.Error)
	}
	return nil
}

// Search runs plain vector similarity search.
func (s *DocumentStore) Search(ctx context.Context, vector []float64, filters search.Filters, limit int, minSimilarity float64) ([]search.SearchHit, error) {
	if s.isPostgres {
		return s.searchPostgres(ctx, vector, filters, limit, minSimilarity)
	}
	return s.searchSQLite(ctx, vector, filters, limit, minSimilarity)
}

// HybridSearch runs vector search then boosts hits whose title or content
// contains a query keyword by keywordBoost, re-sorting and trimming to limit.
func (s *DocumentStore) HybridSearch(ctx context.Context, vector []float64, keywords []string, filters search.Filters, limit int, minSimilarity float64) ([]search.SearchHit, error) {
	// Over-fetch so keyword-boosted documents below the vector-only cutoff
	// still have a chance to surface once boosted.
	candidateLimit := limit * 3
	if candidateLimit < limit {
		candidateLimit = limit
	}

	hits, err := s.Search(ctx, vector, filters, candidateLimit, minSimilarity)
	if err != nil {
		return nil, err
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	for i, h := range hits {
		if matchesAnyKeyword(h.Document, lowered) {
			hits[i].Similarity = clampSimilarity(h.Similarity + keywordBoost)
			hits[i].KeywordBoosted = true
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// keywordBoost is the additive similarity bump hybrid search applies to
// keyword-matching documents (spec §4.H).
const keywordBoost = 0.1

func clampSimilarity(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func matchesAnyKeyword(doc document.Document, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(doc.Content)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(title, kw) || strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// FindSimilar finds the k nearest documents to documentID's own embedding,
// scoped to the same user and excluding the seed document.
func (s *DocumentStore) FindSimilar(ctx context.Context, documentID string, k int) ([]search.SearchHit, error) {
	seed, err := s.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(seed.Embedding) == 0 {
		return nil, fmt.Errorf("find similar: document %s has no embedding", documentID)
	}

	filters := search.NewFilters(search.WithUserID(seed.UserID))
	hits, err := s.Search(ctx, seed.Embedding, filters, k+1, 0)
	if err != nil {
		return nil, err
	}

	out := make([]search.SearchHit, 0, k)
	for _, h := range hits {
		if h.Document.DocumentID == documentID {
			continue
		}
		out = append(out, h)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Dimensions returns the configured embedding width.
func (s *DocumentStore) Dimensions(ctx context.Context) (int, error) {
	return s.dimension, nil
}

var _ search.DocumentStore = (*DocumentStore)(nil)
