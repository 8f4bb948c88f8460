package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionStore owns all import session state. Callers only ever hold
// snapshots; changes go through Mutate.
type SessionStore interface {
	// Create registers a new session in StatusParsing owned by ownerID.
	Create(ctx context.Context, ownerID string) (*ImportSession, error)
	// Get returns a snapshot, NotFound for unknown ids, Forbidden for
	// another owner's session.
	Get(ctx context.Context, id, ownerID string) (*ImportSession, error)
	// Mutate runs fn on a private copy of the session and publishes the
	// copy only if fn returns nil. Mutations of one session are serialized.
	Mutate(ctx context.Context, id, ownerID string, fn func(*ImportSession) error) (*ImportSession, error)
	// Delete removes a session regardless of owner.
	Delete(ctx context.Context, id string) error
}

// Lifetime decides how long a session is kept.
type Lifetime struct {
	TTL       time.Duration // since last activity, for sessions still in progress
	Retention time.Duration // after completion or failure, for final status polling
}

// DefaultLifetime returns a 24h TTL and a 10 minute retention window.
func DefaultLifetime() Lifetime {
	return Lifetime{TTL: 24 * time.Hour, Retention: 10 * time.Minute}
}

// ExpiresAt returns when s should be evicted.
func (l Lifetime) ExpiresAt(s *ImportSession) time.Time {
	if s.Status.Terminal() && !s.retryable() {
		return s.UpdatedAt.Add(l.Retention)
	}
	return s.UpdatedAt.Add(l.TTL)
}

// NewSessionID returns an opaque session token.
func NewSessionID() string {
	return uuid.NewString()
}

type sessionEntry struct {
	mu       sync.Mutex // serializes mutations
	snapshot atomic.Pointer[ImportSession]
}

// MemoryStore is a process-local SessionStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	lifetime Lifetime
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(lifetime Lifetime) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*sessionEntry),
		lifetime: lifetime,
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, ownerID string) (*ImportSession, error) {
	if ownerID == "" {
		return nil, ForbiddenErrorf("create session", "owner is required")
	}
	now := s.now()
	sess := &ImportSession{
		ID:          NewSessionID(),
		OwnerID:     ownerID,
		Status:      StatusParsing,
		Conflicts:   make(map[string]Conflict),
		Resolutions: make(map[string]Resolution),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	entry := &sessionEntry{}
	entry.snapshot.Store(sess)

	s.mu.Lock()
	s.sessions[sess.ID] = entry
	s.mu.Unlock()

	sessionsActive.Inc()
	return sess.Clone(), nil
}

func (s *MemoryStore) entry(id, ownerID, op string) (*sessionEntry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, NotFoundErrorf(op, "session %s not found", id)
	}
	sess := e.snapshot.Load()
	if !s.now().Before(s.lifetime.ExpiresAt(sess)) {
		return nil, NotFoundErrorf(op, "session %s expired", id)
	}
	if sess.OwnerID != ownerID {
		return nil, ForbiddenErrorf(op, "session %s belongs to another user", id)
	}
	return e, nil
}

func (s *MemoryStore) Get(ctx context.Context, id, ownerID string) (*ImportSession, error) {
	e, err := s.entry(id, ownerID, "get session")
	if err != nil {
		return nil, err
	}
	return e.snapshot.Load().Clone(), nil
}

func (s *MemoryStore) Mutate(ctx context.Context, id, ownerID string, fn func(*ImportSession) error) (*ImportSession, error) {
	e, err := s.entry(id, ownerID, "update session")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := e.snapshot.Load().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	e.snapshot.Store(next)
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sessionsActive.Dec()
	}
	return nil
}

// Sweep evicts expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.sessions {
		if !now.Before(s.lifetime.ExpiresAt(e.snapshot.Load())) {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		sessionsActive.Sub(float64(evicted))
		sessionsEvicted.Add(float64(evicted))
	}
	return evicted
}

// Len returns the number of sessions held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
