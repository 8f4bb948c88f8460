package core

import (
	"math"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Similarity scores how much an existing entity resembles a candidate.
// Implementations must be deterministic and return a value in [0,1], with
// 1.0 reserved for entities equal on every identity field.
type Similarity interface {
	Score(kind EntityKind, candidate Candidate, entity Entity) float64
}

// SimilarityFunc adapts a function to the Similarity interface.
type SimilarityFunc func(kind EntityKind, candidate Candidate, entity Entity) float64

func (f SimilarityFunc) Score(kind EntityKind, candidate Candidate, entity Entity) float64 {
	return f(kind, candidate, entity)
}

// FieldSimilarity combines exact identity-field equality with a bounded
// edit-distance score on descriptive fields.
type FieldSimilarity struct {
	ExactWeight     float64
	FuzzyWeight     float64
	MaxEditDistance int
}

// DefaultFieldSimilarity weights descriptive text slightly above partial
// identity agreement.
func DefaultFieldSimilarity() FieldSimilarity {
	return FieldSimilarity{ExactWeight: 0.4, FuzzyWeight: 0.6, MaxEditDistance: 8}
}

// maxPartialScore keeps non-identical entities strictly below 1.0.
const maxPartialScore = 0.99

func (s FieldSimilarity) Score(kind EntityKind, candidate Candidate, entity Entity) float64 {
	if IdentityKey(kind, candidate.Fields) == IdentityKey(kind, entity.Fields) {
		return 1.0
	}

	equal := 0
	for _, name := range kind.IdentityFields {
		if NormalizeValue(candidate.Fields[name]) == NormalizeValue(entity.Fields[name]) {
			equal++
		}
	}
	exact := float64(equal) / float64(len(kind.IdentityFields))

	fuzzyScore := 0.0
	compared := 0
	for _, name := range kind.DescriptiveFields {
		a := NormalizeValue(candidate.Fields[name])
		b := NormalizeValue(entity.Fields[name])
		if a == "" && b == "" {
			continue
		}
		compared++
		fuzzyScore += s.editSimilarity(a, b)
	}
	if compared > 0 {
		fuzzyScore /= float64(compared)
	}

	total := s.ExactWeight + s.FuzzyWeight
	if total <= 0 {
		return 0
	}
	score := (s.ExactWeight*exact + s.FuzzyWeight*fuzzyScore) / total
	return round4(math.Min(score, maxPartialScore))
}

// editSimilarity is 1 - distance/length, or 0 once the distance passes
// the configured bound.
func (s FieldSimilarity) editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	d := fuzzy.LevenshteinDistance(a, b)
	if s.MaxEditDistance > 0 && d > s.MaxEditDistance {
		return 0
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	return math.Max(0, 1-float64(d)/float64(longest))
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
