package search

import (
	"time"

	"github.com/personalrag/ragengine/domain/document"
)

// Filters restricts a vector or hybrid search to a subset of documents.
// All filter predicates are composed as parameterized SQL, never by
// interpolating user-influenced values into a query string.
type Filters struct {
	userID          string
	source          document.Source
	docType         document.Type
	author          string
	potentialAuthor string
	timeStart       time.Time
	timeEnd         time.Time
}

// FiltersOption is a functional option for Filters.
type FiltersOption func(*Filters)

// WithUserID scopes results to one owning user.
func WithUserID(userID string) FiltersOption {
	return func(f *Filters) { f.userID = userID }
}

// WithSource restricts results to one source.
func WithSource(source document.Source) FiltersOption {
	return func(f *Filters) { f.source = source }
}

// WithType restricts results to one document type.
func WithType(t document.Type) FiltersOption {
	return func(f *Filters) { f.docType = t }
}

// WithAuthor restricts results to documents by a named author.
func WithAuthor(author string) FiltersOption {
	return func(f *Filters) { f.author = author }
}

// WithPotentialAuthor is used when the Query Processor could not confirm
// a person but extracted a leading entity as a weaker author hint.
func WithPotentialAuthor(author string) FiltersOption {
	return func(f *Filters) { f.potentialAuthor = author }
}

// WithTimeRange restricts results to the half-open window [start, end).
func WithTimeRange(start, end time.Time) FiltersOption {
	return func(f *Filters) {
		f.timeStart = start
		f.timeEnd = end
	}
}

// NewFilters creates a new Filters with options.
func NewFilters(opts ...FiltersOption) Filters {
	f := Filters{}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// UserID returns the user id filter.
func (f Filters) UserID() string { return f.userID }

// Source returns the source filter.
func (f Filters) Source() document.Source { return f.source }

// Type returns the document type filter.
func (f Filters) Type() document.Type { return f.docType }

// Author returns the confirmed author filter, if any.
func (f Filters) Author() string { return f.author }

// EffectiveAuthor returns Author if set, else PotentialAuthor, per the
// Query Processor's filter-assembly rule (spec §4.G).
func (f Filters) EffectiveAuthor() string {
	if f.author != "" {
		return f.author
	}
	return f.potentialAuthor
}

// PotentialAuthor returns the unconfirmed entity-derived author hint.
func (f Filters) PotentialAuthor() string { return f.potentialAuthor }

// TimeRange returns the time window, zero values meaning unbounded.
func (f Filters) TimeRange() (start, end time.Time) { return f.timeStart, f.timeEnd }

// HasTimeRange reports whether a time window was set.
func (f Filters) HasTimeRange() bool { return !f.timeStart.IsZero() || !f.timeEnd.IsZero() }

// IsEmpty returns true if no filters are set.
func (f Filters) IsEmpty() bool {
	return f.userID == "" &&
		f.source == "" &&
		f.docType == "" &&
		f.author == "" &&
		f.potentialAuthor == "" &&
		!f.HasTimeRange()
}
