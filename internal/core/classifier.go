package core

import (
	"fmt"
	"math"
)

// Thresholds are the classification policy constants.
type Thresholds struct {
	// Ambiguous is the lower bound of the ambiguous band [Ambiguous, 1.0).
	Ambiguous float64
	// Confidence is the score a lone top match needs to suggest a merge.
	Confidence float64
	// Tolerance is how close two scores must be to count as comparable.
	Tolerance float64
}

// DefaultThresholds returns the default classification policy.
func DefaultThresholds() Thresholds {
	return Thresholds{Ambiguous: 0.6, Confidence: 0.8, Tolerance: 0.05}
}

// Validate checks that the thresholds describe a usable band.
func (t Thresholds) Validate() error {
	switch {
	case t.Ambiguous <= 0 || t.Ambiguous >= 1:
		return fmt.Errorf("ambiguous threshold must be in (0,1), got %v", t.Ambiguous)
	case t.Confidence < t.Ambiguous || t.Confidence > 1:
		return fmt.Errorf("confidence threshold must be in [%v,1], got %v", t.Ambiguous, t.Confidence)
	case t.Tolerance < 0 || t.Tolerance >= 1:
		return fmt.Errorf("tolerance must be in [0,1), got %v", t.Tolerance)
	}
	return nil
}

// scoreEpsilon absorbs float noise when comparing scores.
const scoreEpsilon = 1e-9

// Classifier turns matcher output into conflicts.
type Classifier struct {
	t Thresholds
}

// NewClassifier creates a classifier with the given policy.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{t: t}
}

// ConflictID is the stable id of the conflict raised by row index.
func ConflictID(rowIndex int) string {
	return fmt.Sprintf("row-%d", rowIndex)
}

// Classify decides whether a row conflicts with existing data. matches
// must be sorted highest score first. The second result is false when
// the row proceeds as a create.
//
// Precedence:
//  1. nothing at or above the ambiguous threshold: no conflict
//  2. exactly one match at 1.0: exact_duplicate, skip
//  3. two or more in-band matches within tolerance of the top: multiple_candidates, manual_review
//  4. top match at or above the confidence threshold: ambiguous_match, merge
//  5. otherwise: ambiguous_match, manual_review
func (c *Classifier) Classify(row ParsedRow, matches []EntityMatch) (Conflict, bool) {
	var inBand []EntityMatch
	for _, m := range matches {
		if m.Score+scoreEpsilon >= c.t.Ambiguous {
			inBand = append(inBand, m)
		}
	}
	if len(inBand) == 0 {
		return Conflict{}, false
	}

	conflict := Conflict{
		ID:              ConflictID(row.Index),
		RowIndex:        row.Index,
		MatchedEntities: inBand,
	}

	exact := 0
	for _, m := range inBand {
		if m.Score >= 1.0 {
			exact++
		}
	}
	if exact == 1 {
		conflict.Kind = ConflictExactDuplicate
		conflict.MatchedEntities = inBand[:1]
		conflict.SuggestedAction = ActionSkip
		return conflict, true
	}

	top := inBand[0].Score
	comparable := 0
	for _, m := range inBand {
		if math.Abs(top-m.Score) <= c.t.Tolerance+scoreEpsilon {
			comparable++
		}
	}
	if comparable >= 2 {
		conflict.Kind = ConflictMultipleCandidates
		conflict.SuggestedAction = ActionManualReview
		return conflict, true
	}

	conflict.Kind = ConflictAmbiguousMatch
	if top+scoreEpsilon >= c.t.Confidence {
		conflict.SuggestedAction = ActionMerge
		conflict.SuggestedTarget = inBand[0].EntityID
	} else {
		conflict.SuggestedAction = ActionManualReview
	}
	return conflict, true
}
