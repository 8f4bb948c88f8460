package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchesOf(scores ...float64) []EntityMatch {
	out := make([]EntityMatch, len(scores))
	for i, s := range scores {
		out[i] = EntityMatch{EntityID: string(rune('a' + i)), Score: s, CreatedAt: time.Unix(int64(i), 0)}
	}
	return out
}

func TestClassifier_Precedence(t *testing.T) {
	c := NewClassifier(DefaultThresholds())
	row := ParsedRow{Index: 7}

	tests := []struct {
		name        string
		matches     []EntityMatch
		wantNone    bool
		wantKind    ConflictKind
		wantAction  Action
		wantMatched int
		wantTarget  string
	}{
		{name: "no matches", matches: nil, wantNone: true},
		{name: "below ambiguous band", matches: matchesOf(0.59, 0.3), wantNone: true},
		{name: "single exact", matches: matchesOf(1.0), wantKind: ConflictExactDuplicate, wantAction: ActionSkip, wantMatched: 1},
		{name: "exact beats near match", matches: matchesOf(1.0, 0.98), wantKind: ConflictExactDuplicate, wantAction: ActionSkip, wantMatched: 1},
		{name: "two exact", matches: matchesOf(1.0, 1.0), wantKind: ConflictMultipleCandidates, wantAction: ActionManualReview, wantMatched: 2},
		{name: "comparable scores", matches: matchesOf(0.75, 0.74), wantKind: ConflictMultipleCandidates, wantAction: ActionManualReview, wantMatched: 2},
		{name: "tolerance edge", matches: matchesOf(0.85, 0.80), wantKind: ConflictMultipleCandidates, wantAction: ActionManualReview, wantMatched: 2},
		{name: "confident single", matches: matchesOf(0.9, 0.7), wantKind: ConflictAmbiguousMatch, wantAction: ActionMerge, wantMatched: 2, wantTarget: "a"},
		{name: "confident with noise below band", matches: matchesOf(0.82, 0.2), wantKind: ConflictAmbiguousMatch, wantAction: ActionMerge, wantMatched: 1, wantTarget: "a"},
		{name: "low confidence single", matches: matchesOf(0.65), wantKind: ConflictAmbiguousMatch, wantAction: ActionManualReview, wantMatched: 1},
		{name: "band lower bound inclusive", matches: matchesOf(0.6), wantKind: ConflictAmbiguousMatch, wantAction: ActionManualReview, wantMatched: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflict, ok := c.Classify(row, tt.matches)
			if tt.wantNone {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, "row-7", conflict.ID)
			assert.Equal(t, 7, conflict.RowIndex)
			assert.Equal(t, tt.wantKind, conflict.Kind)
			assert.Equal(t, tt.wantAction, conflict.SuggestedAction)
			assert.Len(t, conflict.MatchedEntities, tt.wantMatched)
			assert.Equal(t, tt.wantTarget, conflict.SuggestedTarget)
		})
	}
}

func TestClassifier_ExactDuplicateInvariant(t *testing.T) {
	c := NewClassifier(DefaultThresholds())

	for _, scores := range [][]float64{{1.0}, {1.0, 0.9}, {1.0, 0.7, 0.65}, {1.0, 0.99, 0.98}} {
		conflict, ok := c.Classify(ParsedRow{Index: 1}, matchesOf(scores...))
		require.True(t, ok)
		require.Equal(t, ConflictExactDuplicate, conflict.Kind, "scores %v", scores)
		require.Len(t, conflict.MatchedEntities, 1)
		assert.Equal(t, 1.0, conflict.MatchedEntities[0].Score)
		assert.Equal(t, ActionSkip, conflict.SuggestedAction)
	}
}

func TestClassifier_ThresholdsAreConfigurable(t *testing.T) {
	strict := NewClassifier(Thresholds{Ambiguous: 0.8, Confidence: 0.9, Tolerance: 0.01})
	loose := NewClassifier(Thresholds{Ambiguous: 0.5, Confidence: 0.6, Tolerance: 0.2})
	matches := matchesOf(0.75, 0.6)

	_, ok := strict.Classify(ParsedRow{}, matches)
	assert.False(t, ok, "0.75 is below a 0.8 band")

	conflict, ok := loose.Classify(ParsedRow{}, matches)
	require.True(t, ok)
	assert.Equal(t, ConflictMultipleCandidates, conflict.Kind)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{Ambiguous: 0, Confidence: 0.8, Tolerance: 0.05}.Validate())
	assert.Error(t, Thresholds{Ambiguous: 0.6, Confidence: 0.5, Tolerance: 0.05}.Validate())
	assert.Error(t, Thresholds{Ambiguous: 0.6, Confidence: 0.8, Tolerance: 1}.Validate())
}
