// Package retrieval ranks food records against a free-text question by
// counting query tokens contained in each record.
package retrieval

import (
	"sort"
	"strings"
	"unicode"

	"github.com/nutriempower/nutriempower/pkg/models"
)

// DefaultMaxTokens caps how many query tokens are scored.
const DefaultMaxTokens = 8

// Source supplies the record set to search. dataset.Store implements it.
type Source interface {
	Records() []models.FoodRecord
}

// Scorer ranks records from a Source by token overlap.
type Scorer struct {
	source    Source
	maxTokens int
}

// New creates a Scorer. maxTokens <= 0 selects DefaultMaxTokens.
func New(source Source, maxTokens int) *Scorer {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Scorer{source: source, maxTokens: maxTokens}
}

// Tokenize lowercases q, turns every non-alphanumeric rune into a separator
// and returns at most max tokens.
func Tokenize(q string, max int) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if max > 0 && len(fields) > max {
		fields = fields[:max]
	}
	return fields
}

type scored struct {
	rec   models.FoodRecord
	score int
}

// Search returns up to k records with a positive score, best first.
// Matching is substring containment against description and category, so
// "app" matches "apple".
func (s *Scorer) Search(query string, k int) []models.FoodRecord {
	records := s.source.Records()
	if len(records) == 0 || k <= 0 {
		return []models.FoodRecord{}
	}
	tokens := Tokenize(query, s.maxTokens)
	if len(tokens) == 0 {
		return []models.FoodRecord{}
	}

	ranked := make([]scored, 0, len(records))
	for _, rec := range records {
		if n := Score(rec, tokens); n > 0 {
			ranked = append(ranked, scored{rec: rec, score: n})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	out := make([]models.FoodRecord, 0, min(k, len(ranked)))
	for _, r := range ranked[:min(k, len(ranked))] {
		out = append(out, r.rec)
	}
	return out
}

// Score counts the tokens contained in the record's description or category.
func Score(rec models.FoodRecord, tokens []string) int {
	haystack := strings.ToLower(rec.Description)
	if rec.Category != nil {
		haystack += " " + strings.ToLower(*rec.Category)
	}
	n := 0
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			n++
		}
	}
	return n
}
