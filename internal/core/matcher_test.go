package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_OrdersByScoreThenCreation(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeEntityStore{entities: []Entity{
		taxon("newer", "A", "a", "", "x", base.Add(2*time.Hour)),
		taxon("older", "A", "b", "", "x", base),
		taxon("top", "A", "c", "", "x", base.Add(time.Hour)),
		taxon("zero", "A", "d", "", "x", base),
	}}
	sim := SimilarityFunc(func(_ EntityKind, _ Candidate, e Entity) float64 {
		switch e.ID {
		case "top":
			return 0.9
		case "zero":
			return 0
		default:
			return 0.7
		}
	})
	kind, _ := testRegistry().Get("plant_taxon")
	m := NewMatcher(store, sim, DefaultMatcherConfig())

	matches, err := m.Match(context.Background(), kind, Candidate{Kind: "plant_taxon"})
	require.NoError(t, err)

	ids := make([]string, len(matches))
	for i, mt := range matches {
		ids[i] = mt.EntityID
	}
	assert.Equal(t, []string{"top", "older", "newer"}, ids, "zero scores are dropped and ties go to the oldest")
}

func TestMatcher_TruncatesToMaxResults(t *testing.T) {
	var entities []Entity
	for i := 0; i < 12; i++ {
		entities = append(entities, taxon(fmt.Sprintf("e%02d", i), "A", "a", "", "x", time.Unix(int64(i), 0)))
	}
	store := &fakeEntityStore{entities: entities}
	sim := SimilarityFunc(func(_ EntityKind, _ Candidate, e Entity) float64 { return 0.5 })
	kind, _ := testRegistry().Get("plant_taxon")

	m := NewMatcher(store, sim, MatcherConfig{MaxResults: 3, CandidateLimit: 20, Workers: 1})
	matches, err := m.Match(context.Background(), kind, Candidate{Kind: "plant_taxon"})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "e00", matches[0].EntityID)
	assert.Equal(t, "e02", matches[2].EntityID)
}

func TestMatcher_MatchRowsKeepsRowOrder(t *testing.T) {
	store := &fakeEntityStore{entities: []Entity{taxon("e1", "Ficus", "lyrata", "", "Fiddle leaf fig", time.Now())}}
	kind, _ := testRegistry().Get("plant_taxon")
	m := NewMatcher(store, nil, MatcherConfig{MaxResults: 5, CandidateLimit: 10, Workers: 8})

	var rows []ParsedRow
	for i := 0; i < 50; i++ {
		species := "lyrata"
		if i%2 == 1 {
			species = fmt.Sprintf("other%d", i)
		}
		rows = append(rows, ParsedRow{Index: i, Candidate: &Candidate{Kind: "plant_taxon", Fields: Fields{
			"genus": "Ficus", "species": species, "common_name": "Fiddle leaf fig",
		}}})
	}
	rows = append(rows, ParsedRow{Index: 50, ParseErrors: []RowError{{Message: "bad"}}})

	var mu sync.Mutex
	last := 0
	results, err := m.MatchRows(context.Background(), kind, rows, func(done int) {
		mu.Lock()
		defer mu.Unlock()
		if done > last {
			last = done
		}
	})
	require.NoError(t, err)
	require.Len(t, results, len(rows))

	for i := 0; i < 50; i += 2 {
		require.NotEmpty(t, results[i], "row %d", i)
		assert.Equal(t, 1.0, results[i][0].Score, "row %d", i)
	}
	for i := 1; i < 50; i += 2 {
		require.NotEmpty(t, results[i], "row %d", i)
		assert.Less(t, results[i][0].Score, 1.0, "row %d", i)
	}
	assert.Nil(t, results[50])
	assert.Equal(t, len(rows), last)
}

func TestMatcher_StoreFailureIsStorageError(t *testing.T) {
	store := &fakeEntityStore{findErr: errors.New("connection reset by peer")}
	kind, _ := testRegistry().Get("plant_taxon")
	m := NewMatcher(store, nil, DefaultMatcherConfig())

	_, err := m.MatchRows(context.Background(), kind, []ParsedRow{{Index: 0, Candidate: &Candidate{Kind: "plant_taxon"}}}, nil)
	require.Error(t, err)
	assert.Equal(t, KindStorage, KindOf(err))
}
