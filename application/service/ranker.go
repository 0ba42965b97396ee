package service

import (
	"math"
	"strings"
	"time"

	"github.com/personalrag/ragengine/domain/document"
	"github.com/personalrag/ragengine/domain/search"
	"github.com/personalrag/ragengine/internal/config"
)

// lengthFloor and lengthCeiling bound the length sub-score's full-marks
// window (spec §4.I).
const (
	lengthFloor   = 200
	lengthCeiling = 2000
)

// diversificationPrefixLen is how much of a document's content is
// compared for near-duplicate diversification.
const diversificationPrefixLen = 200

// RankedResult is one document carried through ranking with its final
// and per-signal scores (spec §4.I).
type RankedResult struct {
	Hit    search.SearchHit
	Scores Scores
	Final  float64
}

// Scores is the per-signal breakdown, each in [0,1], used by Explain for
// debuggability.
type Scores struct {
	Vector   float64
	Recency  float64
	Keyword  float64
	Source   float64
	Length   float64
}

// Ranker re-scores search hits with a weighted linear combination of
// signals, then optionally diversifies and applies an intent boost
// (spec §4.I).
type Ranker struct {
	weights config.RankerWeights
}

// NewRanker constructs a Ranker from configured weights.
func NewRanker(weights config.RankerWeights) *Ranker {
	return &Ranker{weights: weights}
}

// Rank scores every hit, sorts descending, optionally diversifies, and
// applies the intent boost for the given source (empty string means no
// boost applies).
func (r *Ranker) Rank(hits []search.SearchHit, keywords []string, rawQuery string, boostSource document.Source, diversify bool) []RankedResult {
	results := make([]RankedResult, len(hits))
	for i, h := range hits {
		scores := r.score(h, keywords, rawQuery)
		results[i] = RankedResult{
			Hit:    h,
			Scores: scores,
			Final:  r.combine(scores),
		}
	}

	sortDescending(results)

	if diversify {
		results = r.diversify(results)
	}

	if boostSource != "" {
		for i := range results {
			if results[i].Hit.Document.Source == boostSource {
				results[i].Final = clamp01(results[i].Final * r.weights.IntentBoost)
			}
		}
		sortDescending(results)
	}

	return results
}

func sortDescending(results []RankedResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Final > results[j-1].Final; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func (r *Ranker) score(h search.SearchHit, keywords []string, rawQuery string) Scores {
	doc := h.Document
	return Scores{
		Vector:  clamp01(h.Similarity),
		Recency: recencyScore(doc.Timestamp, r.weights.RecencyDecayDays),
		Keyword: keywordScore(doc, keywords, rawQuery, h.KeywordBoosted),
		Source:  sourceScore(doc.Source, r.weights.SourcePriority),
		Length:  lengthScore(len(doc.Content)),
	}
}

func (r *Ranker) combine(s Scores) float64 {
	total := r.weights.Vector*s.Vector +
		r.weights.Recency*s.Recency +
		r.weights.Keyword*s.Keyword +
		r.weights.Source*s.Source +
		r.weights.Length*s.Length
	return clamp01(total)
}

// Explain returns the full per-signal breakdown and weighted
// contributions for a ranked result, required for debuggability
// (spec §4.I).
func (r *Ranker) Explain(rr RankedResult) map[string]float64 {
	return map[string]float64{
		"vector":            rr.Scores.Vector,
		"vector_weighted":   r.weights.Vector * rr.Scores.Vector,
		"recency":           rr.Scores.Recency,
		"recency_weighted":  r.weights.Recency * rr.Scores.Recency,
		"keyword":           rr.Scores.Keyword,
		"keyword_weighted":  r.weights.Keyword * rr.Scores.Keyword,
		"source":            rr.Scores.Source,
		"source_weighted":   r.weights.Source * rr.Scores.Source,
		"length":            rr.Scores.Length,
		"length_weighted":   r.weights.Length * rr.Scores.Length,
		"final":             rr.Final,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const ln2 = 0.6931471805599453

func recencyScore(timestamp time.Time, decayDays int) float64 {
	if timestamp.IsZero() || decayDays <= 0 {
		return 0
	}
	daysOld := time.Since(timestamp).Hours() / 24
	if daysOld < 0 {
		daysOld = 0
	}
	return clamp01(math.Exp(-daysOld * ln2 / float64(decayDays)))
}

func keywordScore(doc document.Document, keywords []string, rawQuery string, searchBoosted bool) float64 {
	if len(keywords) == 0 {
		return 0
	}
	title := strings.ToLower(doc.Title)
	author := strings.ToLower(doc.Author)
	content := strings.ToLower(doc.Content)

	var sum float64
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		var s float64
		if strings.Contains(title, kw) {
			s += 0.4
		}
		if strings.Contains(author, kw) {
			s += 0.3
		}
		if strings.Contains(content, kw) {
			s += 0.2
		}
		sum += s
	}
	score := sum / float64(len(keywords))

	if strings.Contains(content, strings.ToLower(strings.TrimSpace(rawQuery))) && rawQuery != "" {
		score += 0.5
	}

	if searchBoosted {
		// The underlying search already contributed a keyword boost;
		// blend it in at half weight rather than double-counting.
		score = score*0.5 + 0.5*0.5
	}

	return clamp01(score)
}

func sourceScore(source document.Source, priorities map[string]float64) float64 {
	if priorities == nil {
		return 0.5
	}
	if v, ok := priorities[string(source)]; ok {
		return v
	}
	if v, ok := priorities["default"]; ok {
		return v
	}
	return 0.5
}

func lengthScore(n int) float64 {
	switch {
	case n >= lengthFloor && n <= lengthCeiling:
		return 1.0
	case n < lengthFloor:
		if n <= 0 {
			return 0
		}
		return float64(n) / float64(lengthFloor)
	default:
		over := float64(n-lengthCeiling) / float64(lengthCeiling)
		return clamp01(1.0 / math.Log(math.E+over))
	}
}

// diversify iterates candidates in score order, keeping a result only if
// its content prefix has Jaccard word overlap <= DiversityThreshold with
// every already-kept result (spec §4.I).
func (r *Ranker) diversify(results []RankedResult) []RankedResult {
	threshold := r.weights.DiversityThreshold
	if threshold <= 0 {
		threshold = 1 // a non-positive threshold disables diversification
	}

	kept := make([]RankedResult, 0, len(results))
	keptWords := make([][]string, 0, len(results))

	for _, res := range results {
		prefix := res.Hit.Document.Content
		if len(prefix) > diversificationPrefixLen {
			prefix = prefix[:diversificationPrefixLen]
		}
		words := strings.Fields(strings.ToLower(prefix))

		tooSimilar := false
		for _, kw := range keptWords {
			if jaccard(words, kw) > threshold {
				tooSimilar = true
				break
			}
		}
		if tooSimilar {
			continue
		}
		kept = append(kept, res)
		keptWords = append(keptWords, words)
	}
	return kept
}

func jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
