// Package sessionstore provides a core.SessionStore backed by Redis, so
// import sessions survive restarts and can be served by any replica.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/logging"
)

var (
	// ErrLockNotAcquired is returned when a session lock stays busy for
	// longer than the lock wait.
	ErrLockNotAcquired = errors.New("session lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or was
	// taken over.
	ErrLockNotHeld = errors.New("session lock not held")
)

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Options tunes a RedisStore.
type Options struct {
	Prefix   string        // key prefix, default "planties:import:"
	LockTTL  time.Duration // upper bound on one mutation, default 30s
	LockWait time.Duration // how long Mutate waits for a busy session, default 5s
}

// RedisStore keeps each session as one JSON value whose key expires with
// the session. Mutations of one session are serialized by a lock key.
type RedisStore struct {
	rdb      redis.UniversalClient
	registry *core.Registry
	lifetime core.Lifetime
	opts     Options
	now      func() time.Time
}

// NewRedisStore creates a store on rdb. The registry is used to restore
// typed field values after decoding.
func NewRedisStore(rdb redis.UniversalClient, reg *core.Registry, lifetime core.Lifetime, opts Options) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = "planties:import:"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 5 * time.Second
	}
	return &RedisStore{rdb: rdb, registry: reg, lifetime: lifetime, opts: opts, now: time.Now}
}

func (s *RedisStore) sessionKey(id string) string { return s.opts.Prefix + "session:" + id }
func (s *RedisStore) lockKey(id string) string    { return s.opts.Prefix + "lock:" + id }

// ttl is how long the key should live from now.
func (s *RedisStore) ttl(sess *core.ImportSession) time.Duration {
	d := s.lifetime.ExpiresAt(sess).Sub(s.now())
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (s *RedisStore) Create(ctx context.Context, ownerID string) (*core.ImportSession, error) {
	if ownerID == "" {
		return nil, core.ForbiddenErrorf("create session", "owner is required")
	}
	now := s.now()
	sess := &core.ImportSession{
		ID:          core.NewSessionID(),
		OwnerID:     ownerID,
		Status:      core.StatusParsing,
		Conflicts:   make(map[string]core.Conflict),
		Resolutions: make(map[string]core.Resolution),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.save(ctx, sess, true); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *RedisStore) save(ctx context.Context, sess *core.ImportSession, create bool) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return core.StorageError("save session", fmt.Errorf("encode: %w", err))
	}
	key := s.sessionKey(sess.ID)
	if create {
		ok, err := s.rdb.SetNX(ctx, key, data, s.ttl(sess)).Result()
		if err != nil {
			return core.StorageError("save session", err)
		}
		if !ok {
			return core.StorageError("save session", fmt.Errorf("session id %s already in use", sess.ID))
		}
		return nil
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl(sess)).Err(); err != nil {
		return core.StorageError("save session", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, id, ownerID, op string) (*core.ImportSession, error) {
	data, err := s.rdb.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.NotFoundErrorf(op, "session %s not found", id)
	}
	if err != nil {
		return nil, core.StorageError(op, err)
	}
	sess, err := decodeSession(data, s.registry)
	if err != nil {
		return nil, core.StorageError(op, err)
	}
	if sess.OwnerID != ownerID {
		return nil, core.ForbiddenErrorf(op, "session %s belongs to another user", id)
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, id, ownerID string) (*core.ImportSession, error) {
	return s.load(ctx, id, ownerID, "get session")
}

func (s *RedisStore) Mutate(ctx context.Context, id, ownerID string, fn func(*core.ImportSession) error) (*core.ImportSession, error) {
	const op = "update session"

	// Check ownership before taking the lock so a foreign owner cannot
	// hold up the real one.
	if _, err := s.load(ctx, id, ownerID, op); err != nil {
		return nil, err
	}

	token, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.release(context.WithoutCancel(ctx), id, token); err != nil && !errors.Is(err, ErrLockNotHeld) {
			logging.FromContext(ctx).Warn("failed to release session lock", "session_id", id, "error", err)
		}
	}()

	sess, err := s.load(ctx, id, ownerID, op)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = s.now()
	if err := s.save(ctx, sess, false); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.sessionKey(id)).Err(); err != nil {
		return core.StorageError("delete session", err)
	}
	return nil
}

// acquire takes the session lock, retrying with backoff until LockWait.
func (s *RedisStore) acquire(ctx context.Context, id string) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(s.opts.LockWait)
	backoff := 10 * time.Millisecond

	for {
		ok, err := s.rdb.SetNX(ctx, s.lockKey(id), token, s.opts.LockTTL).Result()
		if err != nil {
			return "", core.StorageError("lock session", err)
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", core.StorageError("lock session", ErrLockNotAcquired)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 250*time.Millisecond {
				backoff = 250 * time.Millisecond
			}
		}
	}
}

func (s *RedisStore) release(ctx context.Context, id, token string) error {
	n, err := releaseScript.Run(ctx, s.rdb, []string{s.lockKey(id)}, token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// decodeSession parses a stored session and restores typed field values
// in rows, matched entity snapshots and overrides.
func decodeSession(data []byte, reg *core.Registry) (*core.ImportSession, error) {
	var sess core.ImportSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Conflicts == nil {
		sess.Conflicts = make(map[string]core.Conflict)
	}
	if sess.Resolutions == nil {
		sess.Resolutions = make(map[string]core.Resolution)
	}

	kind, ok := reg.Get(sess.Kind)
	if !ok {
		// Sessions still parsing have no kind yet.
		return &sess, nil
	}
	for _, row := range sess.Rows {
		if row.Candidate != nil {
			if err := core.RestoreFieldTypes(kind, row.Candidate.Fields); err != nil {
				return nil, fmt.Errorf("row %d: %w", row.Index, err)
			}
		}
	}
	for _, c := range sess.Conflicts {
		for _, m := range c.MatchedEntities {
			if err := core.RestoreFieldTypes(kind, m.Fields); err != nil {
				return nil, fmt.Errorf("conflict %s: %w", c.ID, err)
			}
		}
	}
	for _, r := range sess.Resolutions {
		if err := core.RestoreFieldTypes(kind, r.OverrideData); err != nil {
			return nil, fmt.Errorf("resolution %s: %w", r.ConflictID, err)
		}
	}
	return &sess, nil
}

var _ core.SessionStore = (*RedisStore)(nil)
