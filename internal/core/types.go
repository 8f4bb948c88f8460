package core

import (
	"context"
	"time"
)

// FieldType represents the expected data type of an entity field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumber
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumber:
		return "number"
	case FieldBool:
		return "bool"
	default:
		return "text"
	}
}

// FieldSpec describes one target field of an entity kind.
type FieldSpec struct {
	Name       string
	Type       FieldType
	Required   bool                // a row without a value for this field is invalid
	EnumValues []string            // valid values for FieldEnum
	Aliases    map[string]string   // lower-cased alias -> canonical enum value
	Normalizer func(string) string // applied after the mapping transform
}

// KindScope says whether entities of a kind are shared or belong to one owner.
type KindScope string

const (
	ScopeShared KindScope = "shared"
	ScopeOwner  KindScope = "owner"
)

// EntityKind is a registered kind of entity that rows can be imported into.
type EntityKind struct {
	Key   string
	Label string
	Scope KindScope

	Fields []FieldSpec

	// IdentityFields must all be equal for two records to be the same entity.
	IdentityFields []string
	// DescriptiveFields are compared with a bounded edit distance.
	DescriptiveFields []string
	// AssetFields hold references to images that live outside the store.
	AssetFields []string
}

// Field returns the spec for name.
func (k EntityKind) Field(name string) (FieldSpec, bool) {
	for _, f := range k.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Fields holds typed field values: string, float64, bool or time.Time.
type Fields map[string]any

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Entity is an existing record in the store.
type Entity struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	OwnerID   string    `json:"ownerId,omitempty"`
	Fields    Fields    `json:"fields"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Candidate is the typed entity a row would produce if committed.
type Candidate struct {
	Kind    string `json:"kind"`
	OwnerID string `json:"ownerId,omitempty"`
	Fields  Fields `json:"fields"`
}

// EntityMatch is an existing entity the candidate was compared against.
type EntityMatch struct {
	EntityID  string    `json:"entityId"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
	Fields    Fields    `json:"fields"` // snapshot at match time
}

// ParsedRow is one data row of the submitted batch.
type ParsedRow struct {
	Index       int               `json:"index"`
	Line        int               `json:"line"`
	RawFields   map[string]string `json:"rawFields"`
	Candidate   *Candidate        `json:"candidate,omitempty"`
	ParseErrors []RowError        `json:"parseErrors,omitempty"`
}

// Valid reports whether the row produced a candidate.
func (r ParsedRow) Valid() bool {
	return r.Candidate != nil && len(r.ParseErrors) == 0
}

// ConflictKind classifies a detected ambiguity.
type ConflictKind string

const (
	ConflictExactDuplicate     ConflictKind = "exact_duplicate"
	ConflictAmbiguousMatch     ConflictKind = "ambiguous_match"
	ConflictMultipleCandidates ConflictKind = "multiple_candidates"
)

// Conflict is a detected ambiguity between a candidate and existing data.
type Conflict struct {
	ID              string        `json:"id"`
	RowIndex        int           `json:"rowIndex"`
	Kind            ConflictKind  `json:"kind"`
	MatchedEntities []EntityMatch `json:"matchedEntities"`
	SuggestedAction Action        `json:"suggestedAction"`
	// SuggestedTarget is the entity a suggested merge applies to.
	SuggestedTarget string `json:"suggestedTarget,omitempty"`
}

// Resolution is an operator decision that settles one conflict.
type Resolution struct {
	ConflictID     string            `json:"conflictId"`
	Action         Action            `json:"action"`
	TargetEntityID string            `json:"targetEntityId,omitempty"`
	OverrideData   Fields            `json:"overrideData,omitempty"`
	RawOverrides   map[string]string `json:"rawOverrides,omitempty"`
	ResolvedAt     time.Time         `json:"resolvedAt"`
}

// Status is the lifecycle position of an import session.
type Status string

const (
	StatusParsing            Status = "parsing"
	StatusAwaitingResolution Status = "awaiting_resolution"
	StatusResolving          Status = "resolving"
	StatusCommitting         Status = "committing"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusParsing:
		return 0
	case StatusAwaitingResolution:
		return 1
	case StatusResolving:
		return 2
	case StatusCommitting:
		return 3
	case StatusCompleted, StatusFailed:
		return 4
	}
	return -1
}

// Terminal reports whether no further work happens in this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CommitSummary describes the outcome of a successful commit.
type CommitSummary struct {
	Inserted    int            `json:"inserted"`
	Updated     int            `json:"updated"`
	Skipped     int            `json:"skipped"`
	Deferred    int            `json:"deferred"`
	Invalid     int            `json:"invalid"`
	Created     []EntityChange `json:"created"`
	Merged      []EntityChange `json:"merged"`
	CommittedAt time.Time      `json:"committedAt"`
}

// EntityChange maps a source row to the entity it produced or touched.
type EntityChange struct {
	RowIndex int    `json:"rowIndex"`
	EntityID string `json:"entityId"`
}

// ImportSession is the bounded lifecycle of one submitted batch.
type ImportSession struct {
	ID       string `json:"id"`
	OwnerID  string `json:"ownerId"`
	Kind     string `json:"kind"`
	FileName string `json:"fileName"`
	Status   Status `json:"status"`

	Rows           []ParsedRow           `json:"rows"`
	Conflicts      map[string]Conflict   `json:"conflicts"`
	ConflictOrder  []string              `json:"conflictOrder"`
	Resolutions    map[string]Resolution `json:"resolutions"`
	ProcessedCount int                   `json:"processedCount"`

	Cancelled      bool           `json:"cancelled,omitempty"`
	LastError      string         `json:"lastError,omitempty"`
	CommitAttempts int            `json:"commitAttempts,omitempty"`
	Summary        *CommitSummary `json:"summary,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone copies the session's mutable containers. Rows are immutable once
// parsing finishes and are shared between clones.
func (s *ImportSession) Clone() *ImportSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.Conflicts != nil {
		c.Conflicts = make(map[string]Conflict, len(s.Conflicts))
		for k, v := range s.Conflicts {
			c.Conflicts[k] = v
		}
	}
	if s.Resolutions != nil {
		c.Resolutions = make(map[string]Resolution, len(s.Resolutions))
		for k, v := range s.Resolutions {
			c.Resolutions[k] = v
		}
	}
	c.ConflictOrder = append([]string(nil), s.ConflictOrder...)
	if s.Summary != nil {
		sum := *s.Summary
		c.Summary = &sum
	}
	return &c
}

// OrderedConflicts returns conflicts in detection (row) order.
func (s *ImportSession) OrderedConflicts() []Conflict {
	out := make([]Conflict, 0, len(s.ConflictOrder))
	for _, id := range s.ConflictOrder {
		if c, ok := s.Conflicts[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// PendingConflicts returns conflicts without a resolution, in row order.
func (s *ImportSession) PendingConflicts() []Conflict {
	var out []Conflict
	for _, c := range s.OrderedConflicts() {
		if _, ok := s.Resolutions[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// InvalidRowCount counts rows that failed parsing.
func (s *ImportSession) InvalidRowCount() int {
	n := 0
	for _, r := range s.Rows {
		if !r.Valid() {
			n++
		}
	}
	return n
}

// ReadyToCommit reports whether every conflict has a resolution and the
// session is in a status that accepts a commit.
func (s *ImportSession) ReadyToCommit() bool {
	switch s.Status {
	case StatusAwaitingResolution, StatusResolving:
	case StatusFailed:
		if !s.retryable() {
			return false
		}
	default:
		return false
	}
	return len(s.Resolutions) >= len(s.Conflicts) && len(s.PendingConflicts()) == 0
}

// retryable reports whether a failed session may be committed again.
// Only storage failures qualify; cancelled sessions never do.
func (s *ImportSession) retryable() bool {
	return s.Status == StatusFailed && !s.Cancelled && s.CommitAttempts > 0
}

// advance moves the session to next. Status only moves forward, with one
// exception: a storage-failed session may re-enter committing for a retry.
func (s *ImportSession) advance(next Status, now time.Time) error {
	if s.Status == next {
		s.UpdatedAt = now
		return nil
	}
	if next == StatusCommitting && s.retryable() {
		s.Status = next
		s.UpdatedAt = now
		return nil
	}
	if s.Status.Terminal() || next.rank() <= s.Status.rank() {
		return StateErrorf("transition", "session %s cannot move from %s to %s", s.ID, s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = now
	return nil
}

// Progress is the read model returned by GetImportProgress.
type Progress struct {
	SessionID      string         `json:"sessionId"`
	Kind           string         `json:"kind"`
	FileName       string         `json:"fileName"`
	Status         Status         `json:"status"`
	RowCount       int            `json:"rowCount"`
	ProcessedCount int            `json:"processedCount"`
	InvalidRows    int            `json:"invalidRows"`
	ConflictCount  int            `json:"conflictCount"`
	ResolvedCount  int            `json:"resolvedCount"`
	PendingCount   int            `json:"pendingCount"`
	ReadyToCommit  bool           `json:"readyToCommit"`
	Conflicts      []Conflict     `json:"conflicts"`
	LastError      string         `json:"lastError,omitempty"`
	Summary        *CommitSummary `json:"summary,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// EntityStore is the read and write interface over existing entities.
type EntityStore interface {
	// FindSimilarEntities returns a prefiltered set of entities of the
	// candidate's kind that may resemble it, at most limit.
	FindSimilarEntities(ctx context.Context, candidate Candidate, limit int) ([]Entity, error)
	// ApplyWritePlan applies every insert and update or none of them.
	ApplyWritePlan(ctx context.Context, plan WritePlan) (WriteResult, error)
}

// Notifier receives post-commit notifications.
type Notifier interface {
	NotifyCommit(ctx context.Context, n CommitNotification) error
}
