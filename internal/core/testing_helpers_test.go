package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// testRegistry registers plant kinds equivalent to the production ones.
func testRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(EntityKind{
		Key:   "plant_taxon",
		Label: "Plant taxonomy",
		Scope: ScopeShared,
		Fields: []FieldSpec{
			{Name: "family"},
			{Name: "genus", Required: true, Normalizer: Capitalize},
			{Name: "species", Required: true, Normalizer: strings.ToLower},
			{Name: "cultivar"},
			{Name: "common_name", Required: true},
			{Name: "care_level", Type: FieldEnum, EnumValues: []string{"easy", "moderate", "difficult"}},
			{Name: "image_url"},
		},
		IdentityFields:    []string{"genus", "species", "cultivar"},
		DescriptiveFields: []string{"common_name", "genus", "species"},
		AssetFields:       []string{"image_url"},
	})
	reg.Register(EntityKind{
		Key:   "plant_instance",
		Label: "My plants",
		Scope: ScopeOwner,
		Fields: []FieldSpec{
			{Name: "nickname", Required: true},
			{Name: "taxon"},
			{Name: "location"},
			{Name: "acquired_on", Type: FieldDate},
			{Name: "pot_size_cm", Type: FieldNumber},
			{Name: "outdoor", Type: FieldBool},
		},
		IdentityFields:    []string{"nickname", "location"},
		DescriptiveFields: []string{"nickname", "taxon"},
	})
	return reg
}

func taxonMapping() ColumnMapping {
	return ColumnMapping{
		Name: "taxa",
		Kind: "plant_taxon",
		Columns: []ColumnRule{
			{Source: "Family", Target: "family"},
			{Source: "Genus", Target: "genus", Required: true},
			{Source: "Species", Target: "species", Required: true},
			{Source: "Cultivar", Target: "cultivar"},
			{Source: "Common Name", Target: "common_name", Required: true, Transform: "collapse_space"},
			{Source: "Care", Target: "care_level"},
			{Source: "Image", Target: "image_url"},
		},
	}
}

func taxon(id, genus, species, cultivar, common string, created time.Time) Entity {
	fields := Fields{"genus": genus, "species": species, "common_name": common}
	if cultivar != "" {
		fields["cultivar"] = cultivar
	}
	return Entity{ID: id, Kind: "plant_taxon", Fields: fields, CreatedAt: created, UpdatedAt: created}
}

// fakeEntityStore is an in-memory EntityStore with failure injection.
type fakeEntityStore struct {
	mu       sync.Mutex
	entities []Entity
	applied  []WritePlan
	findErr  error
	applyErr error
	// findDelay stalls every lookup without watching ctx, like a slow
	// query that ignores cancellation.
	findDelay time.Duration
}

func (f *fakeEntityStore) FindSimilarEntities(ctx context.Context, c Candidate, limit int) ([]Entity, error) {
	if f.findDelay > 0 {
		time.Sleep(f.findDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []Entity
	for _, e := range f.entities {
		if e.Kind == c.Kind && (e.OwnerID == "" || e.OwnerID == c.OwnerID) {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeEntityStore) ApplyWritePlan(ctx context.Context, plan WritePlan) (WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return WriteResult{}, f.applyErr
	}
	f.applied = append(f.applied, plan)
	for _, ins := range plan.Inserts {
		f.entities = append(f.entities, Entity{ID: ins.EntityID, Kind: ins.Kind, OwnerID: ins.OwnerID, Fields: ins.Fields, CreatedAt: time.Now()})
	}
	for _, up := range plan.Updates {
		for i := range f.entities {
			if f.entities[i].ID == up.EntityID {
				f.entities[i].Fields = up.Merged
			}
		}
	}
	return WriteResult{Inserted: len(plan.Inserts), Updated: len(plan.Updates)}, nil
}

func (f *fakeEntityStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entities)
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	got  []CommitNotification
	fail bool
}

func (r *recordingNotifier) NotifyCommit(ctx context.Context, n CommitNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	if r.fail {
		return errors.New("broker unavailable")
	}
	return nil
}

// scoreTable scores by candidate common name and entity id.
type scoreTable map[string]map[string]float64

func (t scoreTable) Score(kind EntityKind, c Candidate, e Entity) float64 {
	name, _ := c.Fields["common_name"].(string)
	return t[name][e.ID]
}

func newTestService(store *fakeEntityStore, sim Similarity, notifier Notifier) (*Service, *MemoryStore) {
	sessions := NewMemoryStore(DefaultLifetime())
	svc, err := NewService(Options{
		Registry:   testRegistry(),
		Sessions:   sessions,
		Entities:   store,
		Notifier:   notifier,
		Similarity: sim,
		Matcher:    MatcherConfig{MaxResults: 5, CandidateLimit: 50, Workers: 4},
		Thresholds: DefaultThresholds(),
	})
	if err != nil {
		panic(err)
	}
	return svc, sessions
}

func csvSource(lines ...string) Source {
	return Source{FileName: "plants.csv", Reader: strings.NewReader(strings.Join(lines, "\n") + "\n")}
}

// storedSessions returns a snapshot of every session in the store.
func storedSessions(s *MemoryStore) []*ImportSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ImportSession, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e.snapshot.Load().Clone())
	}
	return out
}
