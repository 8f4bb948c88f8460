package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

// AuditAction names an audited import event.
type AuditAction string

const (
	ActionImportCommit AuditAction = "import_commit"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// auditRecord is one row of import_audit_log.
type auditRecord struct {
	Action    AuditAction
	Severity  AuditSeverity
	SessionID string
	OwnerID   string
	Kind      string
	FileName  string
	Inserted  int
	Updated   int
	Skipped   int
	Deferred  int
	Invalid   int
	Details   []byte
	IPAddress string
	UserAgent string
	RequestID string
}

// auditDetails is the JSON stored in the details column.
type auditDetails struct {
	Created []core.EntityChange `json:"created,omitempty"`
	Merged  []core.EntityChange `json:"merged,omitempty"`
	Skipped []core.SkippedRow   `json:"skipped,omitempty"`
	Assets  []core.AssetRef     `json:"assets,omitempty"`
}

// determineSeverity rates a commit by how much curated data it touched.
// Merges rewrite existing records.
func determineSeverity(n core.CommitNotification) AuditSeverity {
	switch {
	case len(n.Merged) > 0:
		return SeverityHigh
	case len(n.Created) > 0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func newAuditRecord(ctx context.Context, n core.CommitNotification) (auditRecord, error) {
	details, err := json.Marshal(auditDetails{Created: n.Created, Merged: n.Merged, Skipped: n.Skipped, Assets: n.Assets})
	if err != nil {
		return auditRecord{}, fmt.Errorf("encode audit details: %w", err)
	}
	meta := core.RequestMetaFromContext(ctx)
	return auditRecord{
		Action:    ActionImportCommit,
		Severity:  determineSeverity(n),
		SessionID: n.SessionID,
		OwnerID:   n.OwnerID,
		Kind:      n.Kind,
		FileName:  n.FileName,
		Inserted:  len(n.Created),
		Updated:   len(n.Merged),
		Skipped:   len(n.Skipped),
		Deferred:  len(n.Deferred),
		Invalid:   n.Invalid,
		Details:   details,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
	}, nil
}

const insertAuditSQL = `
INSERT INTO import_audit_log (
    action, severity, session_id, owner_id, kind, file_name,
    inserted, updated, skipped, deferred, invalid, details,
    ip_address, user_agent, request_id
) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''))`

// AuditLog records every committed import. It is a core.Notifier.
type AuditLog struct {
	pool *pgxpool.Pool
}

// NewAuditLog creates an audit log writer on pool.
func NewAuditLog(pool *pgxpool.Pool) *AuditLog {
	return &AuditLog{pool: pool}
}

func (a *AuditLog) NotifyCommit(ctx context.Context, n core.CommitNotification) error {
	rec, err := newAuditRecord(ctx, n)
	if err != nil {
		return err
	}
	_, err = a.pool.Exec(ctx, insertAuditSQL,
		string(rec.Action), string(rec.Severity), rec.SessionID, rec.OwnerID, rec.Kind, rec.FileName,
		rec.Inserted, rec.Updated, rec.Skipped, rec.Deferred, rec.Invalid, rec.Details,
		rec.IPAddress, rec.UserAgent, rec.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

var _ core.Notifier = (*AuditLog)(nil)
