package document

import (
	"strings"
	"testing"
	"time"
)

func TestNew_NeedsEmbeddingWhenContentPresent(t *testing.T) {
	d := New("email_1", "u1", SourceEmail, TypeMessage, "hello world", "subj", "alice", time.Now(), nil)
	if !d.NeedsEmbedding {
		t.Error("NeedsEmbedding should be true when content is non-empty")
	}
}

func TestNew_NoEmbeddingNeededWhenContentEmpty(t *testing.T) {
	d := New("email_1", "u1", SourceEmail, TypeMessage, "", "subj", "alice", time.Now(), nil)
	if d.NeedsEmbedding {
		t.Error("NeedsEmbedding should be false when content is empty")
	}
}

func TestNew_TruncatesLongContent(t *testing.T) {
	long := strings.Repeat("a", MaxContentLength+500)
	d := New("email_1", "u1", SourceEmail, TypeMessage, long, "", "", time.Now(), nil)
	if len(d.Content) > MaxContentLength {
		t.Errorf("content length = %d, want <= %d", len(d.Content), MaxContentLength)
	}
	if !strings.HasSuffix(d.Content, truncationMarker) {
		t.Error("truncated content should end with the truncation marker")
	}
}

func TestValidate_RejectsEmptyDocumentID(t *testing.T) {
	d := New("", "u1", SourceEmail, TypeMessage, "hi", "", "", time.Now(), nil)
	if err := d.Validate(0); err == nil {
		t.Error("expected validation error for empty document_id")
	}
}

func TestValidate_RejectsNeedsEmbeddingWithEmptyContent(t *testing.T) {
	d := Document{DocumentID: "x", UserID: "u", NeedsEmbedding: true}
	if err := d.Validate(0); err == nil {
		t.Error("expected validation error")
	}
}

func TestValidate_RejectsDimensionMismatch(t *testing.T) {
	d := Document{DocumentID: "x", UserID: "u", Embedding: []float64{1, 2, 3}}
	if err := d.Validate(10); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestWithEmbedding_ClearsNeedsEmbedding(t *testing.T) {
	d := New("email_1", "u1", SourceEmail, TypeMessage, "hello", "", "", time.Now(), nil)
	d = d.WithEmbedding([]float64{0.1, 0.2}, "text-embedding-3-small", 4, time.Now())
	if d.NeedsEmbedding {
		t.Error("NeedsEmbedding should be false after WithEmbedding")
	}
	if len(d.Embedding) != 2 {
		t.Errorf("Embedding length = %d, want 2", len(d.Embedding))
	}
}

func TestBuildDocumentID(t *testing.T) {
	if id := BuildDocumentID(SourceEmail, "abc123"); id != "email_abc123" {
		t.Errorf("BuildDocumentID = %v, want email_abc123", id)
	}
}
