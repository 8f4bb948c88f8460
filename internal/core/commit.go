package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/logging"
)

// Insert creates one entity.
type Insert struct {
	RowIndex    int    `json:"rowIndex"`
	EntityID    string `json:"entityId"`
	Kind        string `json:"kind"`
	OwnerID     string `json:"ownerId,omitempty"`
	Fields      Fields `json:"fields"`
	IdentityKey string `json:"identityKey"`
	SearchText  string `json:"searchText"`
}

// Update patches one existing entity. Patch holds only the fields to
// write; Merged is the resulting record, used to refresh search keys.
type Update struct {
	RowIndex    int    `json:"rowIndex"`
	EntityID    string `json:"entityId"`
	Kind        string `json:"kind"`
	Patch       Fields `json:"patch"`
	Merged      Fields `json:"merged"`
	IdentityKey string `json:"identityKey"`
	SearchText  string `json:"searchText"`
}

// WritePlan is the conflict-free set of writes derived from a fully
// resolved session. It is applied as one unit of work.
type WritePlan struct {
	SessionID string   `json:"sessionId"`
	OwnerID   string   `json:"ownerId"`
	Inserts   []Insert `json:"inserts"`
	Updates   []Update `json:"updates"`
}

// Empty reports whether the plan writes nothing.
func (p WritePlan) Empty() bool {
	return len(p.Inserts) == 0 && len(p.Updates) == 0
}

// WriteResult reports what the store applied.
type WriteResult struct {
	Inserted int
	Updated  int
}

// SkippedRow is a row dropped by a skip resolution.
type SkippedRow struct {
	RowIndex   int    `json:"rowIndex"`
	ConflictID string `json:"conflictId"`
	EntityID   string `json:"entityId,omitempty"`
}

// AssetRef is an image reference on a written entity that the asset
// migration consumer should copy to object storage.
type AssetRef struct {
	EntityID string `json:"entityId"`
	Field    string `json:"field"`
	URL      string `json:"url"`
}

// CommitNotification is emitted after a successful commit.
type CommitNotification struct {
	SessionID   string         `json:"sessionId"`
	OwnerID     string         `json:"ownerId"`
	Kind        string         `json:"kind"`
	FileName    string         `json:"fileName,omitempty"`
	Created     []EntityChange `json:"created"`
	Merged      []EntityChange `json:"merged"`
	Skipped     []SkippedRow   `json:"skipped"`
	Deferred    []int          `json:"deferred,omitempty"`
	Invalid     int            `json:"invalid"`
	Assets      []AssetRef     `json:"assets,omitempty"`
	CommittedAt time.Time      `json:"committedAt"`
}

// planBuilder turns resolutions into writes.
type planBuilder struct {
	kind  EntityKind
	newID func() string

	plan     WritePlan
	skipped  []SkippedRow
	deferred []int
	assets   []AssetRef
}

var _ ResolutionVisitor = (*planBuilder)(nil)

func (b *planBuilder) insert(row ParsedRow, overrides Fields) {
	fields := row.Candidate.Fields.Clone()
	for k, v := range overrides {
		fields[k] = v
	}
	ins := Insert{
		RowIndex:    row.Index,
		EntityID:    b.newID(),
		Kind:        b.kind.Key,
		OwnerID:     row.Candidate.OwnerID,
		Fields:      fields,
		IdentityKey: IdentityKey(b.kind, fields),
		SearchText:  SearchText(b.kind, fields),
	}
	b.plan.Inserts = append(b.plan.Inserts, ins)
	b.collectAssets(ins.EntityID, fields)
}

func (b *planBuilder) collectAssets(entityID string, fields Fields) {
	for _, name := range b.kind.AssetFields {
		if url, ok := fields[name].(string); ok && url != "" {
			b.assets = append(b.assets, AssetRef{EntityID: entityID, Field: name, URL: url})
		}
	}
}

func (b *planBuilder) VisitSkip(row ParsedRow, c Conflict, r Resolution) error {
	sk := SkippedRow{RowIndex: row.Index, ConflictID: c.ID}
	if len(c.MatchedEntities) > 0 {
		sk.EntityID = c.MatchedEntities[0].EntityID
	}
	b.skipped = append(b.skipped, sk)
	return nil
}

func (b *planBuilder) VisitCreateNew(row ParsedRow, c Conflict, r Resolution) error {
	b.insert(row, r.OverrideData)
	return nil
}

// VisitMerge fills fields the stored record lacks from the row, then
// applies overrides on top. Stored values are only replaced by overrides.
func (b *planBuilder) VisitMerge(row ParsedRow, c Conflict, r Resolution) error {
	var target *EntityMatch
	for i := range c.MatchedEntities {
		if c.MatchedEntities[i].EntityID == r.TargetEntityID {
			target = &c.MatchedEntities[i]
			break
		}
	}
	if target == nil {
		return &Error{Kind: KindInternal, Op: "commit", Message: fmt.Sprintf("merge target %q of %s is not a match", r.TargetEntityID, c.ID)}
	}

	patch := make(Fields)
	for k, v := range row.Candidate.Fields {
		if isBlank(target.Fields[k]) && !isBlank(v) {
			patch[k] = v
		}
	}
	for k, v := range r.OverrideData {
		patch[k] = v
	}

	merged := target.Fields.Clone()
	if merged == nil {
		merged = make(Fields)
	}
	for k, v := range patch {
		merged[k] = v
	}

	b.plan.Updates = append(b.plan.Updates, Update{
		RowIndex:    row.Index,
		EntityID:    target.EntityID,
		Kind:        b.kind.Key,
		Patch:       patch,
		Merged:      merged,
		IdentityKey: IdentityKey(b.kind, merged),
		SearchText:  SearchText(b.kind, merged),
	})
	b.collectAssets(target.EntityID, patch)
	return nil
}

// VisitManualReview holds the row back. It produces no write.
func (b *planBuilder) VisitManualReview(row ParsedRow, c Conflict, r Resolution) error {
	b.deferred = append(b.deferred, row.Index)
	return nil
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}

// BuildWritePlan derives the write plan from a fully resolved session.
func BuildWritePlan(s *ImportSession, kind EntityKind, newID func() string) (WritePlan, CommitNotification, error) {
	if newID == nil {
		newID = uuid.NewString
	}
	b := &planBuilder{kind: kind, newID: newID, plan: WritePlan{SessionID: s.ID, OwnerID: s.OwnerID}}

	conflictByRow := make(map[int]Conflict, len(s.Conflicts))
	for _, c := range s.Conflicts {
		conflictByRow[c.RowIndex] = c
	}

	invalid := 0
	for _, row := range s.Rows {
		if !row.Valid() {
			invalid++
			continue
		}
		c, conflicted := conflictByRow[row.Index]
		if !conflicted {
			b.insert(row, nil)
			continue
		}
		r, resolved := s.Resolutions[c.ID]
		if !resolved {
			return WritePlan{}, CommitNotification{}, StateErrorf("commit", "conflict %s has no resolution", c.ID)
		}
		if err := r.Accept(b, row, c); err != nil {
			return WritePlan{}, CommitNotification{}, err
		}
	}

	n := CommitNotification{
		SessionID: s.ID,
		OwnerID:   s.OwnerID,
		Kind:      s.Kind,
		FileName:  s.FileName,
		Skipped:   b.skipped,
		Deferred:  b.deferred,
		Invalid:   invalid,
		Assets:    b.assets,
	}
	for _, ins := range b.plan.Inserts {
		n.Created = append(n.Created, EntityChange{RowIndex: ins.RowIndex, EntityID: ins.EntityID})
	}
	for _, up := range b.plan.Updates {
		n.Merged = append(n.Merged, EntityChange{RowIndex: up.RowIndex, EntityID: up.EntityID})
	}
	return b.plan, n, nil
}

// CommitOrchestrator applies fully resolved sessions to the entity store.
type CommitOrchestrator struct {
	sessions SessionStore
	entities EntityStore
	notifier Notifier
	registry *Registry
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

// NewCommitOrchestrator wires the orchestrator. notifier may be nil.
func NewCommitOrchestrator(sessions SessionStore, entities EntityStore, notifier Notifier, reg *Registry, timeout time.Duration) *CommitOrchestrator {
	return &CommitOrchestrator{
		sessions: sessions,
		entities: entities,
		notifier: notifier,
		registry: reg,
		timeout:  timeout,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Commit writes the session's plan as one unit of work. On storage
// failure the session moves to failed with its resolutions intact, and
// Commit may be called again.
func (o *CommitOrchestrator) Commit(ctx context.Context, sessionID, ownerID string) (CommitSummary, error) {
	const op = "commit"

	snapshot, err := o.sessions.Mutate(ctx, sessionID, ownerID, func(s *ImportSession) error {
		switch {
		case s.Status == StatusAwaitingResolution, s.Status == StatusResolving, s.retryable():
		default:
			return StateErrorf(op, "session %s is %s and cannot be committed", s.ID, s.Status)
		}
		if pending := len(s.PendingConflicts()); pending > 0 {
			return StateErrorf(op, "session %s has %d unresolved conflicts", s.ID, pending)
		}
		if err := s.advance(StatusCommitting, o.now()); err != nil {
			return err
		}
		s.CommitAttempts++
		s.LastError = ""
		return nil
	})
	if err != nil {
		return CommitSummary{}, err
	}

	log := logging.ForSession(ctx, sessionID, ownerID)

	kind, ok := o.registry.Get(snapshot.Kind)
	if !ok {
		err := &Error{Kind: KindInternal, Op: op, Message: fmt.Sprintf("unknown entity kind %q", snapshot.Kind)}
		o.fail(ctx, sessionID, ownerID, err)
		return CommitSummary{}, err
	}

	plan, notification, err := BuildWritePlan(snapshot, kind, o.newID)
	if err != nil {
		o.fail(ctx, sessionID, ownerID, err)
		return CommitSummary{}, err
	}

	writeCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := o.entities.ApplyWritePlan(writeCtx, plan)
	commitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		serr := StorageError(op, err)
		log.Error("write plan failed", "error", err, "inserts", len(plan.Inserts), "updates", len(plan.Updates))
		o.fail(ctx, sessionID, ownerID, serr)
		return CommitSummary{}, serr
	}

	committedAt := o.now()
	summary := CommitSummary{
		Inserted:    result.Inserted,
		Updated:     result.Updated,
		Skipped:     len(notification.Skipped),
		Deferred:    len(notification.Deferred),
		Invalid:     notification.Invalid,
		Created:     notification.Created,
		Merged:      notification.Merged,
		CommittedAt: committedAt,
	}
	notification.CommittedAt = committedAt

	// The write is durable; the session update must not be lost to a
	// cancelled request.
	bg := context.WithoutCancel(ctx)
	if _, err := o.sessions.Mutate(bg, sessionID, ownerID, func(s *ImportSession) error {
		s.Summary = &summary
		return s.advance(StatusCompleted, committedAt)
	}); err != nil {
		log.Error("failed to mark session completed", "error", err)
	}
	commitsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	log.Info("import committed",
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"deferred", summary.Deferred,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if o.notifier != nil {
		if err := o.notifier.NotifyCommit(bg, notification); err != nil {
			notifyFailures.Inc()
			log.Warn("post-commit notification failed", "error", err)
		}
	}

	return summary, nil
}

func (o *CommitOrchestrator) fail(ctx context.Context, sessionID, ownerID string, cause error) {
	commitsTotal.WithLabelValues(string(StatusFailed)).Inc()
	_, err := o.sessions.Mutate(context.WithoutCancel(ctx), sessionID, ownerID, func(s *ImportSession) error {
		s.LastError = cause.Error()
		return s.advance(StatusFailed, o.now())
	})
	if err != nil {
		slog.Error("failed to mark session failed", "session_id", sessionID, "error", err)
	}
}
