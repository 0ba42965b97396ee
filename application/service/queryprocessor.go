package service

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/personalrag/ragengine/domain/document"
	"github.com/personalrag/ragengine/domain/search"
)

// QueryType selects which prompt template variant and ranking behavior
// a processed query drives (spec §4.G, §4.K).
type QueryType string

// Query types.
const (
	QueryTypeMemoryRecall   QueryType = "memory_recall"
	QueryTypePattern        QueryType = "pattern"
	QueryTypeRecommendation QueryType = "recommendation"
	QueryTypeGeneral        QueryType = "general"
)

// Intent is the detected user intent, first matching pattern wins.
type Intent string

// Intents, in detection priority order (spec §4.G).
const (
	IntentSearchEmail      Intent = "search_email"
	IntentSearchCalendar   Intent = "search_calendar"
	IntentSearchMusic      Intent = "search_music"
	IntentPatternAnalysis  Intent = "pattern_analysis"
	IntentRecommendation   Intent = "recommendation"
	IntentGeneralSearch    Intent = "general_search"
)

// TimeRange is a half-open window [Start, End) plus the human label that
// produced it.
type TimeRange struct {
	Start time.Time
	End   time.Time
	Label string
}

// ProcessedQuery is the pure-function output of the Query Processor
// (spec §4.G): everything the RAG Pipeline needs to choose a retrieval
// strategy and build search filters.
type ProcessedQuery struct {
	Original  string
	Intent    Intent
	Source    document.Source
	Keywords  []string
	Entities  []string
	Person    string
	TimeRange *TimeRange
	Filters   search.Filters
	QueryType QueryType
}

var intentPatterns = []struct {
	intent  Intent
	pattern *regexp.Regexp
}{
	{IntentSearchEmail, regexp.MustCompile(`(?i)\b(email|emails|inbox|message|messages|mail)\b`)},
	{IntentSearchCalendar, regexp.MustCompile(`(?i)\b(calendar|event|events|meeting|meetings|appointment|schedule)\b`)},
	{IntentSearchMusic, regexp.MustCompile(`(?i)\b(song|songs|track|tracks|album|albums|artist|music|playlist|listened|listening)\b`)},
	{IntentPatternAnalysis, regexp.MustCompile(`(?i)\b(pattern|patterns|trend|trends|how (often|frequently)|what (usually|typically))\b`)},
	{IntentRecommendation, regexp.MustCompile(`(?i)\b(recommend|recommendation|suggest|suggestion|should i)\b`)},
}

var intentSource = map[Intent]document.Source{
	IntentSearchEmail:    document.SourceEmail,
	IntentSearchCalendar: document.SourceCalendar,
	IntentSearchMusic:    document.SourceMusic,
}

// DetectIntent applies the ordered intent patterns, first match wins,
// falling back to general_search (spec §4.G).
func DetectIntent(query string) Intent {
	for _, p := range intentPatterns {
		if p.pattern.MatchString(query) {
			return p.intent
		}
	}
	return IntentGeneralSearch
}

// classify maps an Intent to the ProcessedQuery's query_type.
func classify(intent Intent) QueryType {
	switch intent {
	case IntentSearchEmail, IntentSearchCalendar, IntentSearchMusic:
		return QueryTypeMemoryRecall
	case IntentPatternAnalysis:
		return QueryTypePattern
	case IntentRecommendation:
		return QueryTypeRecommendation
	default:
		return QueryTypeGeneral
	}
}

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var (
	reISODate     = regexp.MustCompile(`(?i)\bon\s+(\d{4}-\d{2}-\d{2})\b`)
	reInMonth     = regexp.MustCompile(`(?i)\bin\s+(january|february|march|april|may|june|july|august|september|october|november|december)\b`)
	reRelativeAgo = regexp.MustCompile(`(?i)\b(\d+)\s+(day|days|week|weeks|month|months)\s+ago\b`)
	reLastN       = regexp.MustCompile(`(?i)\blast\s+(\d+)\s+(day|days|week|weeks|month|months)\b`)
	reLastThis    = regexp.MustCompile(`(?i)\b(last|this)\s+(week|month|year)\b`)
	reYesterday   = regexp.MustCompile(`(?i)\byesterday\b`)
	reToday       = regexp.MustCompile(`(?i)\btoday\b`)
)

// dayBounds returns the [start, end) window for the calendar day containing t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// weekBounds returns the [start, end) window for the ISO week (Monday to
// Sunday) containing t, per the chosen week-boundary convention (spec §9
// open question 2).
func weekBounds(t time.Time) (time.Time, time.Time) {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday becomes day 7 so Monday is always day 1
	}
	monday := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, -(weekday - 1))
	return monday, monday.AddDate(0, 0, 7)
}

func monthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

func yearBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(1, 0, 0)
}

// ExtractTimeRange recognizes fixed and parametric time expressions
// (spec §4.G) relative to now, returning nil when none is found.
func ExtractTimeRange(query string, now time.Time) *TimeRange {
	if m := reISODate.FindStringSubmatch(query); m != nil {
		if day, err := time.ParseInLocation("2006-01-02", m[1], now.Location()); err == nil {
			start, end := dayBounds(day)
			return &TimeRange{Start: start, End: end, Label: "on " + m[1]}
		}
	}

	if reToday.MatchString(query) {
		start, end := dayBounds(now)
		return &TimeRange{Start: start, End: end, Label: "today"}
	}

	if reYesterday.MatchString(query) {
		start, end := dayBounds(now.AddDate(0, 0, -1))
		return &TimeRange{Start: start, End: end, Label: "yesterday"}
	}

	if m := reRelativeAgo.FindStringSubmatch(query); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := strings.ToLower(m[2])
		anchor := subtractUnit(now, n, unit)
		start, end := dayBounds(anchor)
		return &TimeRange{Start: start, End: end, Label: m[0]}
	}

	if m := reLastN.FindStringSubmatch(query); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := strings.ToLower(m[2])
		start := subtractUnit(now, n, unit)
		return &TimeRange{Start: dayStart(start), End: dayStart(now).AddDate(0, 0, 1), Label: m[0]}
	}

	if m := reLastThis.FindStringSubmatch(query); m != nil {
		which := strings.ToLower(m[1])
		unit := strings.ToLower(m[2])
		anchor := now
		if which == "last" {
			anchor = shiftBackOneUnit(now, unit)
		}
		start, end := boundsForUnit(anchor, unit)
		return &TimeRange{Start: start, End: end, Label: m[0]}
	}

	if m := reInMonth.FindStringSubmatch(query); m != nil {
		month := monthNames[strings.ToLower(m[1])]
		year := now.Year()
		if month > now.Month() {
			year--
		}
		start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
		return &TimeRange{Start: start, End: start.AddDate(0, 1, 0), Label: m[0]}
	}

	return nil
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func subtractUnit(t time.Time, n int, unit string) time.Time {
	switch {
	case strings.HasPrefix(unit, "day"):
		return t.AddDate(0, 0, -n)
	case strings.HasPrefix(unit, "week"):
		return t.AddDate(0, 0, -7*n)
	case strings.HasPrefix(unit, "month"):
		return t.AddDate(0, -n, 0)
	default:
		return t
	}
}

func shiftBackOneUnit(t time.Time, unit string) time.Time {
	switch unit {
	case "week":
		return t.AddDate(0, 0, -7)
	case "month":
		return t.AddDate(0, -1, 0)
	case "year":
		return t.AddDate(-1, 0, 0)
	default:
		return t
	}
}

func boundsForUnit(t time.Time, unit string) (time.Time, time.Time) {
	switch unit {
	case "week":
		return weekBounds(t)
	case "month":
		return monthBounds(t)
	case "year":
		return yearBounds(t)
	default:
		return dayBounds(t)
	}
}

var personPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?i:discussed with)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)`),
	regexp.MustCompile(`\b(?i:from)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)`),
	regexp.MustCompile(`\b(?i:with)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)`),
	regexp.MustCompile(`\b(?i:to)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)`),
}

var trailingStopWords = regexp.MustCompile(`(?i)\s+(about|regarding|on|for|in)$`)

var pronounStopList = map[string]struct{}{
	"i": {}, "me": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {},
	"the": {}, "a": {}, "an": {}, "this": {}, "that": {}, "these": {}, "those": {},
}

// ExtractPerson applies ordered preposition-anchored patterns, captures
// a Capitalized-word pair, strips a trailing stop-preposition, and
// rejects pronouns/articles. The first accepted capture wins (spec §4.G).
func ExtractPerson(query string) string {
	for _, p := range personPatterns {
		if m := p.FindStringSubmatch(query); m != nil {
			candidate := trailingStopWords.ReplaceAllString(m[1], "")
			candidate = strings.TrimSpace(candidate)
			if _, stop := pronounStopList[strings.ToLower(candidate)]; stop {
				continue
			}
			if candidate != "" {
				return candidate
			}
		}
	}
	return ""
}

var capitalizedToken = regexp.MustCompile(`\b[A-Z][a-zA-Z]*\b`)

var sentenceStarterStopList = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "who": {}, "why": {}, "how": {}, "which": {},
	"did": {}, "does": {}, "do": {}, "is": {}, "are": {}, "was": {}, "were": {}, "can": {}, "could": {},
}

// ExtractEntities returns capitalized tokens outside the sentence-starter
// stop-list (spec §4.G), in order of first appearance, deduplicated.
func ExtractEntities(query string) []string {
	matches := capitalizedToken.FindAllString(query, -1)
	seen := make(map[string]struct{})
	var entities []string
	for i, m := range matches {
		lower := strings.ToLower(m)
		if i == 0 {
			if _, stop := sentenceStarterStopList[lower]; stop {
				continue
			}
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		entities = append(entities, m)
	}
	return entities
}

var keywordStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "of": {}, "to": {}, "in": {}, "on": {},
	"for": {}, "with": {}, "about": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"from": {}, "at": {}, "by": {}, "this": {}, "that": {}, "it": {}, "i": {}, "you": {}, "my": {}, "me": {},
}

var interrogatives = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "who": {}, "why": {}, "how": {}, "which": {}, "whom": {},
}

var wordToken = regexp.MustCompile(`[a-zA-Z']+`)

// defaultKeywordLimit is the default N in "return up to N" (spec §4.G).
const defaultKeywordLimit = 10

// ExtractKeywords lower-cases and tokenizes the query, drops stop-words,
// short words, and interrogatives, ranks by frequency, and returns up
// to defaultKeywordLimit keywords (spec §4.G).
func ExtractKeywords(query string) []string {
	tokens := wordToken.FindAllString(strings.ToLower(query), -1)
	counts := make(map[string]int)
	var order []string
	for _, tok := range tokens {
		if len(tok) < 3 {
			continue
		}
		if _, stop := keywordStopWords[tok]; stop {
			continue
		}
		if _, interrogative := interrogatives[tok]; interrogative {
			continue
		}
		if _, seen := counts[tok]; !seen {
			order = append(order, tok)
		}
		counts[tok]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > defaultKeywordLimit {
		order = order[:defaultKeywordLimit]
	}
	return order
}

// Process is the Query Processor's pure entry point (spec §4.G).
func Process(query string, now time.Time) ProcessedQuery {
	intent := DetectIntent(query)
	timeRange := ExtractTimeRange(query, now)
	person := ExtractPerson(query)
	entities := ExtractEntities(query)
	keywords := ExtractKeywords(query)

	filterOpts := []search.FiltersOption{}
	if src, ok := intentSource[intent]; ok {
		filterOpts = append(filterOpts, search.WithSource(src))
	}
	if timeRange != nil {
		filterOpts = append(filterOpts, search.WithTimeRange(timeRange.Start, timeRange.End))
	}
	if person != "" {
		filterOpts = append(filterOpts, search.WithAuthor(person))
	} else if len(entities) > 0 {
		filterOpts = append(filterOpts, search.WithPotentialAuthor(entities[0]))
	}

	pq := ProcessedQuery{
		Original:  query,
		Intent:    intent,
		Keywords:  keywords,
		Entities:  entities,
		Person:    person,
		TimeRange: timeRange,
		Filters:   search.NewFilters(filterOpts...),
		QueryType: classify(intent),
	}
	if src, ok := intentSource[intent]; ok {
		pq.Source = src
	}
	return pq
}
