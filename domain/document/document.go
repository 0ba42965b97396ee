// Package document defines the Document entity: the unified record the
// ingestion pipeline persists and the search pipeline retrieves.
package document

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the upstream system a Document was fetched from.
type Source string

// Known sources. The set is extensible; unknown values are accepted by
// storage but rejected by validation paths that enumerate known sources.
const (
	SourceEmail    Source = "email"
	SourceCalendar Source = "calendar"
	SourceMusic    Source = "music"
)

// Type identifies the kind of record a Document represents.
type Type string

// Known types, one per Source.
const (
	TypeMessage Type = "message"
	TypeEvent   Type = "event"
	TypeTrack   Type = "track"
)

// MaxContentLength bounds Document.Content; longer content is truncated
// with a trailing marker at ingestion time.
const MaxContentLength = 32000

// truncationMarker is appended when Content is truncated to MaxContentLength.
const truncationMarker = "... [truncated]"

// Document is one normalized record in the Document Store.
type Document struct {
	DocumentID    string
	UserID        string
	Source        Source
	Type          Type
	Content       string
	Title         string
	Author        string
	Timestamp     time.Time
	Metadata      map[string]any
	Embedding     []float64
	NeedsEmbedding bool

	EmbeddingModel       string
	EmbeddingTokens      int
	EmbeddingGeneratedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BuildDocumentID constructs the conventional document id "<source>_<nativeID>".
func BuildDocumentID(source Source, nativeID string) string {
	return fmt.Sprintf("%s_%s", source, nativeID)
}

// New constructs a Document with content normalized (truncated to
// MaxContentLength) and NeedsEmbedding derived per the entity invariant:
// true iff content is present and a vector has not yet been produced.
func New(documentID, userID string, source Source, typ Type, content, title, author string, timestamp time.Time, metadata map[string]any) Document {
	content = truncate(content, MaxContentLength)
	return Document{
		DocumentID:     documentID,
		UserID:         userID,
		Source:         source,
		Type:           typ,
		Content:        content,
		Title:          title,
		Author:         author,
		Timestamp:      timestamp,
		Metadata:       metadata,
		NeedsEmbedding: content != "",
	}
}

func truncate(content string, max int) string {
	if len(content) <= max {
		return content
	}
	cut := max - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	return content[:cut] + truncationMarker
}

// Validate checks the entity invariants: content must be non-empty when
// NeedsEmbedding is true, and an embedding, when present, must have the
// expected dimensionality.
func (d Document) Validate(expectedDimensions int) error {
	if d.DocumentID == "" {
		return fmt.Errorf("document: document_id must not be empty")
	}
	if d.UserID == "" {
		return fmt.Errorf("document %s: user_id must not be empty", d.DocumentID)
	}
	if d.NeedsEmbedding && strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("document %s: needs_embedding is true but content is empty", d.DocumentID)
	}
	if len(d.Embedding) > 0 && expectedDimensions > 0 && len(d.Embedding) != expectedDimensions {
		return fmt.Errorf("document %s: embedding dimensionality %d, want %d", d.DocumentID, len(d.Embedding), expectedDimensions)
	}
	return nil
}

// WithEmbedding returns a copy with the embedding applied and
// NeedsEmbedding cleared, per the lifecycle rule that embedding success
// flips the flag to false.
func (d Document) WithEmbedding(vector []float64, model string, tokens int, generatedAt time.Time) Document {
	d.Embedding = vector
	d.EmbeddingModel = model
	d.EmbeddingTokens = tokens
	d.EmbeddingGeneratedAt = generatedAt
	d.NeedsEmbedding = false
	return d
}

// MarkForReembedding returns a copy with NeedsEmbedding set, used for
// explicit operator-triggered re-embedding.
func (d Document) MarkForReembedding() Document {
	d.NeedsEmbedding = true
	return d
}

// EmbeddingUpdate is the atomic unit applied by batch_update_embeddings.
type EmbeddingUpdate struct {
	DocumentID  string
	Vector      []float64
	Tokens      int
	Model       string
	GeneratedAt time.Time
}
