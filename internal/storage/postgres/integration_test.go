package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

// newIntegrationPool connects to DATABASE_TEST_URL, migrates it and
// returns a pool plus a prefix unique to the test. Rows whose ids or
// session ids start with the prefix are removed on cleanup.
func newIntegrationPool(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	url := os.Getenv("DATABASE_TEST_URL")
	if url == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}
	require.NoError(t, Migrate(url, Up))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	prefix := "test-" + core.NewSessionID() + "-"
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM entities WHERE id LIKE $1::text || '%'`, prefix)
		pool.Exec(ctx, `DELETE FROM import_audit_log WHERE session_id LIKE $1::text || '%'`, prefix)
		pool.Close()
	})
	return pool, prefix
}

func insertFor(t *testing.T, id, kindKey, owner string, fields core.Fields) core.Insert {
	t.Helper()
	kind, ok := core.DefaultRegistry.Get(kindKey)
	require.True(t, ok)
	return core.Insert{
		EntityID:    id,
		Kind:        kindKey,
		OwnerID:     owner,
		Fields:      fields,
		IdentityKey: core.IdentityKey(kind, fields),
		SearchText:  core.SearchText(kind, fields),
	}
}

func countEntities(t *testing.T, pool *pgxpool.Pool, prefix string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT count(*) FROM entities WHERE id LIKE $1::text || '%'`, prefix).Scan(&n))
	return n
}

func TestStore_ApplyWritePlanRollsBack(t *testing.T) {
	pool, prefix := newIntegrationPool(t)
	store := NewStore(pool, core.DefaultRegistry)
	ctx := context.Background()

	seed := insertFor(t, prefix+"t1", "plant_taxon", "", core.Fields{"genus": "Hoya", "species": "carnosa", "common_name": "Wax plant"})
	_, err := store.ApplyWritePlan(ctx, core.WritePlan{Inserts: []core.Insert{seed}})
	require.NoError(t, err)

	plan := core.WritePlan{
		Inserts: []core.Insert{insertFor(t, prefix+"n1", "plant_taxon", "", core.Fields{"genus": "Hoya", "species": "kerrii", "common_name": "Sweetheart plant"})},
		Updates: []core.Update{{RowIndex: 1, EntityID: prefix + "missing", Kind: "plant_taxon", Patch: core.Fields{"notes": "x"}}},
	}
	_, err = store.ApplyWritePlan(ctx, plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "affected 0 rows")
	assert.Equal(t, 1, countEntities(t, pool, prefix), "the insert is rolled back with the failed update")

	plan.Updates[0].EntityID = prefix + "t1"
	res, err := store.ApplyWritePlan(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, core.WriteResult{Inserted: 1, Updated: 1}, res)
	assert.Equal(t, 2, countEntities(t, pool, prefix))

	var notes, common string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT properties->>'notes', properties->>'common_name' FROM entities WHERE id = $1`, prefix+"t1").Scan(&notes, &common))
	assert.Equal(t, "x", notes)
	assert.Equal(t, "Wax plant", common, "the patch merges into stored properties")
}

func TestStore_IdentityHitRanksFirst(t *testing.T) {
	pool, prefix := newIntegrationPool(t)
	store := NewStore(pool, core.DefaultRegistry)
	ctx := context.Background()

	// Species unique to this test keeps other rows out of the results.
	species := "deliciosa" + prefix[5:13]
	near := insertFor(t, prefix+"near", "plant_taxon", "", core.Fields{"genus": "Monstera", "species": species, "cultivar": "Thai Constellation", "common_name": "Swiss cheese plant"})
	exact := insertFor(t, prefix+"exact", "plant_taxon", "", core.Fields{"genus": "Monstera", "species": species, "common_name": "Cheese plant"})
	_, err := store.ApplyWritePlan(ctx, core.WritePlan{Inserts: []core.Insert{near}})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = store.ApplyWritePlan(ctx, core.WritePlan{Inserts: []core.Insert{exact}})
	require.NoError(t, err)

	got, err := store.FindSimilarEntities(ctx, core.Candidate{
		Kind:   "plant_taxon",
		Fields: core.Fields{"genus": "Monstera", "species": species, "common_name": "Swiss cheese plant"},
	}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, prefix+"exact", got[0].ID, "identity match outranks an older, textually closer entity")
	assert.Equal(t, "Cheese plant", got[0].Fields["common_name"])
}

func TestStore_OwnerScopedKindIsIsolated(t *testing.T) {
	pool, prefix := newIntegrationPool(t)
	store := NewStore(pool, core.DefaultRegistry)
	ctx := context.Background()

	fields := func() core.Fields {
		return core.Fields{"nickname": "Monty " + prefix[5:13], "location": "Kitchen"}
	}
	_, err := store.ApplyWritePlan(ctx, core.WritePlan{Inserts: []core.Insert{
		insertFor(t, prefix+"bob", "plant_instance", "bob", fields()),
		insertFor(t, prefix+"alice", "plant_instance", "alice", fields()),
	}})
	require.NoError(t, err)

	got, err := store.FindSimilarEntities(ctx, core.Candidate{Kind: "plant_instance", OwnerID: "alice", Fields: fields()}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, prefix+"alice", got[0].ID)
	assert.Equal(t, "alice", got[0].OwnerID)
}

func TestAuditLog_NotifyCommit(t *testing.T) {
	pool, prefix := newIntegrationPool(t)
	audit := NewAuditLog(pool)
	ctx := core.ContextWithRequestMeta(context.Background(), core.RequestMeta{IPAddress: "10.0.0.7", RequestID: "req-1"})

	n := core.CommitNotification{
		SessionID: prefix + "s1",
		OwnerID:   "alice",
		Kind:      "plant_taxon",
		FileName:  "plants.csv",
		Created:   []core.EntityChange{{RowIndex: 0, EntityID: "n1"}},
		Merged:    []core.EntityChange{{RowIndex: 1, EntityID: "e1"}},
		Invalid:   2,
	}
	require.NoError(t, audit.NotifyCommit(ctx, n))

	var (
		action, severity, ip string
		inserted, updated    int
		invalid              int
	)
	require.NoError(t, pool.QueryRow(context.Background(), `
SELECT action, severity, inserted, updated, invalid, ip_address
FROM import_audit_log WHERE session_id = $1`, n.SessionID).Scan(&action, &severity, &inserted, &updated, &invalid, &ip))
	assert.Equal(t, string(ActionImportCommit), action)
	assert.Equal(t, string(SeverityHigh), severity)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 2, invalid)
	assert.Equal(t, "10.0.0.7", ip)
}
