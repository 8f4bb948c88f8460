package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
	_ "github.com/cloudagrapher/fancy-planties-sub010/internal/core/kinds"
)

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db:5432/plants?sslmode=disable": "pgx5://u:p@db:5432/plants?sslmode=disable",
		"postgresql://u:p@db:5432/plants":               "pgx5://u:p@db:5432/plants",
		"pgx5://already/converted":                      "pgx5://already/converted",
	}
	for in, want := range tests {
		assert.Equal(t, want, MigrateURL(in), in)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, 2, ups)
	assert.Equal(t, ups, downs)
}

func TestDecodeFieldsRestoresDates(t *testing.T) {
	kind, ok := core.DefaultRegistry.Get("plant_instance")
	require.True(t, ok)

	acquired := time.Date(2022, 5, 14, 0, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(core.Fields{"nickname": "Fern", "acquired_on": acquired, "pot_size_cm": 12.5, "outdoor": true})
	require.NoError(t, err)

	fields, err := decodeFields(kind, raw)
	require.NoError(t, err)
	assert.Equal(t, acquired, fields["acquired_on"])
	assert.Equal(t, 12.5, fields["pot_size_cm"])
	assert.Equal(t, true, fields["outdoor"])
	assert.Equal(t, "Fern", fields["nickname"])

	_, err = decodeFields(kind, []byte(`{"acquired_on":"last spring"}`))
	assert.Error(t, err)

	empty, err := decodeFields(kind, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNewAuditRecord(t *testing.T) {
	ctx := core.ContextWithRequestMeta(context.Background(), core.RequestMeta{IPAddress: "10.0.0.7", UserAgent: "curl/8", RequestID: "req-1"})
	n := core.CommitNotification{
		SessionID: "s1",
		OwnerID:   "alice",
		Kind:      "plant_taxon",
		Created:   []core.EntityChange{{RowIndex: 0, EntityID: "n1"}},
		Merged:    []core.EntityChange{{RowIndex: 1, EntityID: "e1"}},
		Deferred:  []int{2},
		Invalid:   3,
	}

	rec, err := newAuditRecord(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, ActionImportCommit, rec.Action)
	assert.Equal(t, SeverityHigh, rec.Severity)
	assert.Equal(t, 1, rec.Inserted)
	assert.Equal(t, 1, rec.Updated)
	assert.Equal(t, 1, rec.Deferred)
	assert.Equal(t, 3, rec.Invalid)
	assert.Equal(t, "10.0.0.7", rec.IPAddress)
	assert.Equal(t, "req-1", rec.RequestID)

	var details auditDetails
	require.NoError(t, json.Unmarshal(rec.Details, &details))
	assert.Equal(t, n.Merged, details.Merged)
}

func TestDetermineSeverity(t *testing.T) {
	assert.Equal(t, SeverityLow, determineSeverity(core.CommitNotification{}))
	assert.Equal(t, SeverityMedium, determineSeverity(core.CommitNotification{Created: []core.EntityChange{{}}}))
	assert.Equal(t, SeverityHigh, determineSeverity(core.CommitNotification{Merged: []core.EntityChange{{}}}))
}
