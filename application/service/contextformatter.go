package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/personalrag/ragengine/domain/document"
	"github.com/personalrag/ragengine/domain/search"
)

// noContextSentinel is emitted when no documents fit the context budget
// or none were supplied (spec §4.J).
const noContextSentinel = "No relevant documents were found for this question."

// Citation is a numbered reference to one document included in the
// context block, for the LLM and the caller to cite by index.
type Citation struct {
	ID         int
	DocumentID string
	Source     document.Source
	Title      string
	Date       string
	Author     string
}

// FormattedContext is the Context Formatter's output: the assembled
// context block, its citations, and token usage metadata.
type FormattedContext struct {
	Context        string
	Citations      []Citation
	EstimatedTokens int
	SelectedCount  int
	TotalCount     int
	BySource       map[string]int
}

// ContextFormatter prioritizes ranked documents within a token budget,
// renders the context block, and emits citations (spec §4.J).
type ContextFormatter struct {
	maxContextTokens int
}

// NewContextFormatter constructs a Context Formatter with the configured
// context token budget (default ≈28k, spec §6).
func NewContextFormatter(maxContextTokens int) *ContextFormatter {
	return &ContextFormatter{maxContextTokens: maxContextTokens}
}

// Format sorts by final score, greedily adds documents whose rendered
// text still fits the budget, and renders the final context string.
func (f *ContextFormatter) Format(results []RankedResult) FormattedContext {
	if len(results) == 0 {
		return FormattedContext{Context: noContextSentinel, BySource: map[string]int{}}
	}

	sorted := make([]RankedResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Final > sorted[j].Final })
	results = sorted

	var b strings.Builder
	citations := make([]Citation, 0, len(results))
	bySource := make(map[string]int)
	usedTokens := 0
	index := 0

	for _, r := range results {
		rendered := renderDocument(index+1, r)
		tokens := search.EstimateTokens(rendered)
		if tokens > f.maxContextTokens {
			// Too large to fit alone; skip rather than split (spec §4.J).
			continue
		}
		if usedTokens+tokens > f.maxContextTokens {
			continue
		}

		index++
		b.WriteString(rendered)
		b.WriteString("\n---\n")
		usedTokens += tokens

		doc := r.Hit.Document
		citations = append(citations, Citation{
			ID:         index,
			DocumentID: doc.DocumentID,
			Source:     doc.Source,
			Title:      doc.Title,
			Date:       doc.Timestamp.Format("2006-01-02"),
			Author:     doc.Author,
		})
		bySource[string(doc.Source)]++
	}

	if index == 0 {
		return FormattedContext{Context: noContextSentinel, TotalCount: len(results), BySource: bySource}
	}

	b.WriteString(fmt.Sprintf("\n%d document(s) used", index))
	for src, count := range bySource {
		b.WriteString(fmt.Sprintf(", %d from %s", count, src))
	}

	return FormattedContext{
		Context:         b.String(),
		Citations:       citations,
		EstimatedTokens: usedTokens,
		SelectedCount:   index,
		TotalCount:      len(results),
		BySource:        bySource,
	}
}

func renderDocument(n int, r RankedResult) string {
	doc := r.Hit.Document
	var b strings.Builder
	fmt.Fprintf(&b, "[Document %d]\n", n)
	fmt.Fprintf(&b, "Title: %s\n", valueOr(doc.Title, "(untitled)"))
	fmt.Fprintf(&b, "Source: %s\n", doc.Source)
	fmt.Fprintf(&b, "Date: %s\n", doc.Timestamp.Format("2006-01-02 15:04"))
	if doc.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", doc.Author)
	}
	fmt.Fprintf(&b, "Relevance: %.2f\n", r.Final)
	writeSourceMetadata(&b, doc)
	b.WriteString("\n")
	b.WriteString(doc.Content)
	b.WriteString("\n")
	return b.String()
}

func writeSourceMetadata(b *strings.Builder, doc document.Document) {
	switch doc.Source {
	case document.SourceEmail:
		if to, ok := doc.Metadata["to"]; ok {
			fmt.Fprintf(b, "To: %v\n", to)
		}
		if labels, ok := doc.Metadata["labels"]; ok {
			fmt.Fprintf(b, "Labels: %v\n", labels)
		}
	case document.SourceCalendar:
		if attendees, ok := doc.Metadata["attendees"]; ok {
			fmt.Fprintf(b, "Attendees: %v\n", attendees)
		}
		if location, ok := doc.Metadata["location"]; ok {
			fmt.Fprintf(b, "Location: %v\n", location)
		}
	case document.SourceMusic:
		if artist, ok := doc.Metadata["artist"]; ok {
			fmt.Fprintf(b, "Artist: %v\n", artist)
		}
		if album, ok := doc.Metadata["album"]; ok {
			fmt.Fprintf(b, "Album: %v\n", album)
		}
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
