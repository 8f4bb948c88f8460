// Package postgres stores entities and the import audit log in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

// Store is a core.EntityStore over the entities table.
type Store struct {
	pool     *pgxpool.Pool
	registry *core.Registry
}

// NewStore creates a store on pool.
func NewStore(pool *pgxpool.Pool, reg *core.Registry) *Store {
	return &Store{pool: pool, registry: reg}
}

// findSimilarSQL returns exact identity hits first, then trigram matches on
// the normalized descriptive text.
const findSimilarSQL = `
SELECT id, kind, owner_id, properties, created_at, updated_at
FROM entities
WHERE kind = $1
  AND ($2 = '' OR owner_id = $2)
  AND (identity_key = $3 OR search_text % $4)
ORDER BY (identity_key = $3) DESC, similarity(search_text, $4) DESC, created_at ASC, id ASC
LIMIT $5`

// FindSimilarEntities prefilters candidates for the matcher. Owner-scoped
// kinds only see the candidate owner's rows.
func (s *Store) FindSimilarEntities(ctx context.Context, c core.Candidate, limit int) ([]core.Entity, error) {
	kind, ok := s.registry.Get(c.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", c.Kind)
	}
	owner := ""
	if kind.Scope == core.ScopeOwner {
		owner = c.OwnerID
	}

	rows, err := s.pool.Query(ctx, findSimilarSQL,
		kind.Key, owner, core.IdentityKey(kind, c.Fields), core.SearchText(kind, c.Fields), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar entities: %w", err)
	}
	defer rows.Close()

	var out []core.Entity
	for rows.Next() {
		var (
			e   core.Entity
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.OwnerID, &raw, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Fields, err = decodeFields(kind, raw)
		if err != nil {
			return nil, fmt.Errorf("decode entity %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

const insertEntitySQL = `
INSERT INTO entities (id, kind, owner_id, properties, identity_key, search_text, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

const updateEntitySQL = `
UPDATE entities
SET properties = properties || $2::jsonb,
    identity_key = $3,
    search_text = $4,
    updated_at = $5
WHERE id = $1 AND kind = $6`

// ApplyWritePlan runs the plan in one transaction. Every statement must
// touch exactly one row or the transaction rolls back.
func (s *Store) ApplyWritePlan(ctx context.Context, plan core.WritePlan) (core.WriteResult, error) {
	if plan.Empty() {
		return core.WriteResult{}, nil
	}
	now := time.Now().UTC()

	batch := &pgx.Batch{}
	labels := make([]string, 0, len(plan.Inserts)+len(plan.Updates))
	for _, ins := range plan.Inserts {
		props, err := json.Marshal(ins.Fields)
		if err != nil {
			return core.WriteResult{}, fmt.Errorf("encode row %d: %w", ins.RowIndex, err)
		}
		batch.Queue(insertEntitySQL, ins.EntityID, ins.Kind, ins.OwnerID, props, ins.IdentityKey, ins.SearchText, now)
		labels = append(labels, fmt.Sprintf("insert row %d", ins.RowIndex))
	}
	for _, up := range plan.Updates {
		patch, err := json.Marshal(up.Patch)
		if err != nil {
			return core.WriteResult{}, fmt.Errorf("encode row %d: %w", up.RowIndex, err)
		}
		batch.Queue(updateEntitySQL, up.EntityID, patch, up.IdentityKey, up.SearchText, now, up.Kind)
		labels = append(labels, fmt.Sprintf("update row %d (entity %s)", up.RowIndex, up.EntityID))
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for _, label := range labels {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return fmt.Errorf("%s: %w", label, err)
			}
			if tag.RowsAffected() != 1 {
				br.Close()
				return fmt.Errorf("%s: affected %d rows, expected 1", label, tag.RowsAffected())
			}
		}
		return br.Close()
	})
	if err != nil {
		return core.WriteResult{}, err
	}
	return core.WriteResult{Inserted: len(plan.Inserts), Updated: len(plan.Updates)}, nil
}

// decodeFields restores typed values from the properties JSON.
func decodeFields(kind core.EntityKind, raw []byte) (core.Fields, error) {
	fields := make(core.Fields)
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if err := core.RestoreFieldTypes(kind, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

var _ core.EntityStore = (*Store)(nil)
