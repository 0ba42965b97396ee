package search

import (
	"context"

	"github.com/personalrag/ragengine/domain/document"
)

// InsertOutcome reports what create_document actually did, per spec §4.A:
// a unique-constraint violation on document_id is a typed outcome, not
// an error.
type InsertOutcome int

// Outcomes of CreateDocument.
const (
	Inserted InsertOutcome = iota
	Duplicate
)

// SearchHit is one row returned by Search or HybridSearch: a document
// plus the similarity score it was ordered by.
type SearchHit struct {
	Document      document.Document
	Similarity    float64
	KeywordBoosted bool
}

// DocumentStore is the Document Store's contract (spec §4.A). All
// predicates are composed as parameterized SQL; no user-influenced
// value is ever interpolated into a query string.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc document.Document) (InsertOutcome, error)
	FindByID(ctx context.Context, documentID string) (document.Document, error)
	FetchDocumentsNeedingEmbedding(ctx context.Context, limit int) ([]document.Document, error)
	BatchUpdateEmbeddings(ctx context.Context, updates []document.EmbeddingUpdate) error
	MarkForReembedding(ctx context.Context, documentIDs []string) error
	MarkAllForReembedding(ctx context.Context, userID string) error

	Search(ctx context.Context, vector []float64, filters Filters, limit int, minSimilarity float64) ([]SearchHit, error)
	HybridSearch(ctx context.Context, vector []float64, keywords []string, filters Filters, limit int, minSimilarity float64) ([]SearchHit, error)
	FindSimilar(ctx context.Context, documentID string, k int) ([]SearchHit, error)

	Dimensions(ctx context.Context) (int, error)
}
