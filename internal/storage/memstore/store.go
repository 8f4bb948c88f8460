// Package memstore is an in-process EntityStore. It backs the server when
// no database is configured and is the store used by the HTTP tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

// Store keeps entities in a copy-on-write map. Readers load the current
// snapshot without locking; writers build a new map and swap it in, so
// a write plan is visible all at once or not at all.
type Store struct {
	registry   *core.Registry
	similarity core.Similarity

	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[map[string]core.Entity]

	failNext atomic.Pointer[error]
	now      func() time.Time
}

// New creates an empty store. Similarity ranks FindSimilarEntities
// results; nil uses core.DefaultFieldSimilarity.
func New(reg *core.Registry, similarity core.Similarity) *Store {
	if similarity == nil {
		similarity = core.DefaultFieldSimilarity()
	}
	s := &Store{registry: reg, similarity: similarity, now: time.Now}
	empty := make(map[string]core.Entity)
	s.snapshot.Store(&empty)
	return s
}

// Seed adds entities directly, bypassing write plans.
func (s *Store) Seed(entities ...core.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clone()
	for _, e := range entities {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.now()
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = e.CreatedAt
		}
		next[e.ID] = e
	}
	s.snapshot.Store(&next)
}

// FailNextApply makes the next ApplyWritePlan return err without writing.
func (s *Store) FailNextApply(err error) {
	s.failNext.Store(&err)
}

// Get returns one entity.
func (s *Store) Get(id string) (core.Entity, bool) {
	e, ok := (*s.snapshot.Load())[id]
	return e, ok
}

// Len returns the number of stored entities.
func (s *Store) Len() int {
	return len(*s.snapshot.Load())
}

func (s *Store) clone() map[string]core.Entity {
	cur := *s.snapshot.Load()
	next := make(map[string]core.Entity, len(cur))
	for k, v := range cur {
		next[k] = v
	}
	return next
}

func (s *Store) visible(kind core.EntityKind, c core.Candidate, e core.Entity) bool {
	if e.Kind != c.Kind {
		return false
	}
	if kind.Scope == core.ScopeOwner {
		return e.OwnerID == c.OwnerID
	}
	return true
}

// FindSimilarEntities ranks every visible entity of the candidate's kind
// and returns the best limit with a positive score.
func (s *Store) FindSimilarEntities(ctx context.Context, c core.Candidate, limit int) ([]core.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind, ok := s.registry.Get(c.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", c.Kind)
	}

	type scored struct {
		e     core.Entity
		score float64
	}
	var hits []scored
	for _, e := range *s.snapshot.Load() {
		if !s.visible(kind, c, e) {
			continue
		}
		if score := s.similarity.Score(kind, c, e); score > 0 {
			hits = append(hits, scored{e, score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		// Ties go oldest first, as in the postgres query.
		if !hits[i].e.CreatedAt.Equal(hits[j].e.CreatedAt) {
			return hits[i].e.CreatedAt.Before(hits[j].e.CreatedAt)
		}
		return hits[i].e.ID < hits[j].e.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]core.Entity, len(hits))
	for i, h := range hits {
		out[i] = h.e
		out[i].Fields = h.e.Fields.Clone()
	}
	return out, nil
}

// ApplyWritePlan validates the whole plan against a private copy and
// publishes the copy only if every operation succeeds.
func (s *Store) ApplyWritePlan(ctx context.Context, plan core.WritePlan) (core.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return core.WriteResult{}, err
	}
	if errp := s.failNext.Swap(nil); errp != nil {
		return core.WriteResult{}, *errp
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clone()
	now := s.now()

	for _, ins := range plan.Inserts {
		if _, exists := next[ins.EntityID]; exists {
			return core.WriteResult{}, fmt.Errorf("insert row %d: entity %s already exists", ins.RowIndex, ins.EntityID)
		}
		next[ins.EntityID] = core.Entity{
			ID:        ins.EntityID,
			Kind:      ins.Kind,
			OwnerID:   ins.OwnerID,
			Fields:    ins.Fields.Clone(),
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	for _, up := range plan.Updates {
		cur, ok := next[up.EntityID]
		if !ok {
			return core.WriteResult{}, fmt.Errorf("update row %d: entity %s no longer exists", up.RowIndex, up.EntityID)
		}
		if cur.Kind != up.Kind {
			return core.WriteResult{}, fmt.Errorf("update row %d: entity %s is a %s, not a %s", up.RowIndex, up.EntityID, cur.Kind, up.Kind)
		}
		fields := cur.Fields.Clone()
		if fields == nil {
			fields = make(core.Fields)
		}
		for k, v := range up.Patch {
			fields[k] = v
		}
		cur.Fields = fields
		cur.UpdatedAt = now
		next[up.EntityID] = cur
	}

	s.snapshot.Store(&next)
	return core.WriteResult{Inserted: len(plan.Inserts), Updated: len(plan.Updates)}, nil
}

var _ core.EntityStore = (*Store)(nil)
