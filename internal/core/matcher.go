package core

import (
	"context"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// MatcherConfig controls candidate retrieval and ranking.
type MatcherConfig struct {
	MaxResults     int // matches kept per row
	CandidateLimit int // entities requested from the store per row
	Workers        int // rows matched concurrently
}

// DefaultMatcherConfig returns the matcher defaults.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{MaxResults: 5, CandidateLimit: 25, Workers: 4}
}

// Matcher finds existing entities that resemble candidates.
type Matcher struct {
	store      EntityStore
	similarity Similarity
	cfg        MatcherConfig
}

// NewMatcher creates a matcher over store. A nil similarity uses
// DefaultFieldSimilarity.
func NewMatcher(store EntityStore, similarity Similarity, cfg MatcherConfig) *Matcher {
	if similarity == nil {
		similarity = DefaultFieldSimilarity()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.CandidateLimit < cfg.MaxResults {
		cfg.CandidateLimit = cfg.MaxResults
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Matcher{store: store, similarity: similarity, cfg: cfg}
}

// Match returns the entities resembling candidate, highest score first,
// ties broken by creation order (oldest first) and then id.
func (m *Matcher) Match(ctx context.Context, kind EntityKind, candidate Candidate) ([]EntityMatch, error) {
	entities, err := m.store.FindSimilarEntities(ctx, candidate, m.cfg.CandidateLimit)
	if err != nil {
		return nil, StorageError("find similar entities", err)
	}

	matches := make([]EntityMatch, 0, len(entities))
	for _, e := range entities {
		score := m.similarity.Score(kind, candidate, e)
		if score <= 0 {
			continue
		}
		if score > 1 {
			score = 1
		}
		matches = append(matches, EntityMatch{
			EntityID:  e.ID,
			Score:     score,
			CreatedAt: e.CreatedAt,
			Fields:    e.Fields,
		})
	}

	SortMatches(matches)
	if len(matches) > m.cfg.MaxResults {
		matches = matches[:m.cfg.MaxResults]
	}
	return matches, nil
}

// SortMatches orders matches by score desc, then creation time, then id.
func SortMatches(matches []EntityMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.EntityID < b.EntityID
	})
}

// MatchRows matches every valid row concurrently. The result is indexed
// by position in rows, so its order never depends on scheduling. Invalid
// rows get a nil entry. progress, if set, is called with the number of
// rows finished so far.
func (m *Matcher) MatchRows(ctx context.Context, kind EntityKind, rows []ParsedRow, progress func(done int)) ([][]EntityMatch, error) {
	results := make([][]EntityMatch, len(rows))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)

	for i := range rows {
		if !rows[i].Valid() {
			n := done.Add(1)
			if progress != nil {
				progress(int(n))
			}
			continue
		}
		g.Go(func() error {
			matches, err := m.Match(gctx, kind, *rows[i].Candidate)
			if err != nil {
				return err
			}
			results[i] = matches
			n := done.Add(1)
			if progress != nil {
				progress(int(n))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
