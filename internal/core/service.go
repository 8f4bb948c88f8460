package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/logging"
)

// DefaultImportTimeout bounds parsing and matching of one batch.
const DefaultImportTimeout = 5 * time.Minute

// Options wires a Service. Registry, Sessions and Entities are required.
type Options struct {
	Registry   *Registry
	Sessions   SessionStore
	Entities   EntityStore
	Notifier   Notifier
	Similarity Similarity

	Parse      ParseOptions
	Matcher    MatcherConfig
	Thresholds Thresholds

	ImportTimeout time.Duration
	CommitTimeout time.Duration
	MaxConcurrent int
	QueueWait     time.Duration
	// ProgressEvery is how many matched rows pass between progress updates.
	ProgressEvery int
}

// Service is the entry point for import operations. Every call takes the
// owner identity and enforces it.
type Service struct {
	registry    *Registry
	sessions    SessionStore
	parser      *Parser
	matcher     *Matcher
	classifier  *Classifier
	resolutions *ResolutionEngine
	committer   *CommitOrchestrator
	limiter     *ImportLimiter

	importTimeout time.Duration
	progressEvery int
}

// NewService creates a Service from opts.
func NewService(opts Options) (*Service, error) {
	if opts.Registry == nil || opts.Sessions == nil || opts.Entities == nil {
		return nil, errors.New("registry, session store and entity store are required")
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("thresholds: %w", err)
	}
	if opts.ImportTimeout <= 0 {
		opts.ImportTimeout = DefaultImportTimeout
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 100
	}

	return &Service{
		registry:      opts.Registry,
		sessions:      opts.Sessions,
		parser:        NewParser(opts.Registry, opts.Parse),
		matcher:       NewMatcher(opts.Entities, opts.Similarity, opts.Matcher),
		classifier:    NewClassifier(opts.Thresholds),
		resolutions:   NewResolutionEngine(opts.Sessions, opts.Registry),
		committer:     NewCommitOrchestrator(opts.Sessions, opts.Entities, opts.Notifier, opts.Registry, opts.CommitTimeout),
		limiter:       NewImportLimiter(opts.MaxConcurrent, opts.QueueWait),
		importTimeout: opts.ImportTimeout,
		progressEvery: opts.ProgressEvery,
	}, nil
}

// ImportRequest is one submitted batch.
type ImportRequest struct {
	OwnerID  string
	FileName string
	Data     io.Reader
	Mapping  ColumnMapping
}

// Kinds returns the registered entity kinds.
func (s *Service) Kinds() []EntityKind {
	return s.registry.All()
}

// Kind returns a registered entity kind by key.
func (s *Service) Kind(key string) (EntityKind, bool) {
	return s.registry.Get(key)
}

// ReadHeader returns the header row of a file so callers can pick a
// mapping profile before starting an import.
func (s *Service) ReadHeader(src Source, sheet string) ([]string, error) {
	return s.parser.ReadHeader(src, sheet)
}

// Limiter exposes the import limiter for status reporting and shutdown.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// StartImport parses, matches and classifies a batch and returns the new
// session awaiting resolution. Input problems are returned before any
// session exists.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (Progress, error) {
	const op = "start import"
	if req.OwnerID == "" {
		return Progress{}, ForbiddenErrorf(op, "owner is required")
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return Progress{}, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.importTimeout)
	defer cancel()

	kindLabel := req.Mapping.Kind
	rows, err := s.parser.Parse(ctx, Source{FileName: req.FileName, Reader: req.Data}, req.Mapping, req.OwnerID)
	if err != nil {
		importsStarted.WithLabelValues(kindLabel, "rejected").Inc()
		return Progress{}, err
	}
	kind, _ := s.registry.Get(req.Mapping.Kind)

	sess, err := s.sessions.Create(ctx, req.OwnerID)
	if err != nil {
		return Progress{}, err
	}
	log := logging.ForSession(ctx, sess.ID, req.OwnerID).With("kind", kind.Key)

	if _, err := s.sessions.Mutate(ctx, sess.ID, req.OwnerID, func(cur *ImportSession) error {
		cur.Kind = kind.Key
		cur.FileName = req.FileName
		cur.Rows = rows
		return nil
	}); err != nil {
		return Progress{}, s.abandonImport(ctx, sess.ID, req.OwnerID, op, err)
	}

	start := time.Now()
	results, err := s.matcher.MatchRows(ctx, kind, rows, s.progressReporter(ctx, sess.ID, req.OwnerID))
	matchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		importsStarted.WithLabelValues(kindLabel, "failed").Inc()
		log.Error("matching failed", "error", err)
		return Progress{}, s.abandonImport(ctx, sess.ID, req.OwnerID, op, err)
	}

	conflicts := make(map[string]Conflict)
	order := make([]string, 0)
	valid := 0
	for i, row := range rows {
		if !row.Valid() {
			continue
		}
		valid++
		if c, ok := s.classifier.Classify(row, results[i]); ok {
			conflicts[c.ID] = c
			order = append(order, c.ID)
			conflictsDetected.WithLabelValues(kind.Key, string(c.Kind)).Inc()
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return conflicts[order[a]].RowIndex < conflicts[order[b]].RowIndex
	})
	rowsParsed.WithLabelValues(kind.Key, "true").Add(float64(valid))
	rowsParsed.WithLabelValues(kind.Key, "false").Add(float64(len(rows) - valid))

	final, err := s.sessions.Mutate(ctx, sess.ID, req.OwnerID, func(cur *ImportSession) error {
		cur.Conflicts = conflicts
		cur.ConflictOrder = order
		cur.ProcessedCount = len(rows)
		return cur.advance(StatusAwaitingResolution, time.Now())
	})
	if err != nil {
		importsStarted.WithLabelValues(kindLabel, "failed").Inc()
		log.Error("storing conflicts failed", "error", err)
		return Progress{}, s.abandonImport(ctx, sess.ID, req.OwnerID, op, err)
	}

	importsStarted.WithLabelValues(kindLabel, "accepted").Inc()
	log.Info("import parsed",
		"file", req.FileName,
		"rows", len(rows),
		"invalid_rows", len(rows)-valid,
		"conflicts", len(conflicts),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return progressOf(final), nil
}

// progressReporter publishes ProcessedCount every progressEvery rows.
func (s *Service) progressReporter(ctx context.Context, id, ownerID string) func(int) {
	every := s.progressEvery
	return func(done int) {
		if done%every != 0 {
			return
		}
		_, err := s.sessions.Mutate(ctx, id, ownerID, func(cur *ImportSession) error {
			if done > cur.ProcessedCount {
				cur.ProcessedCount = done
			}
			return nil
		})
		if err != nil {
			slog.Debug("progress update failed", "session_id", id, "error", err)
		}
	}
}

// abandonImport fails a session that never reached awaiting_resolution and
// releases its rows. The update ignores ctx's deadline. Errors from outside
// the engine, the import timeout included, come back as storage errors
// naming the session.
func (s *Service) abandonImport(ctx context.Context, id, ownerID, op string, cause error) error {
	_, err := s.sessions.Mutate(context.WithoutCancel(ctx), id, ownerID, func(cur *ImportSession) error {
		if cur.Status.Terminal() {
			return nil
		}
		cur.LastError = cause.Error()
		cur.Rows = nil
		cur.Conflicts = make(map[string]Conflict)
		cur.ConflictOrder = nil
		return cur.advance(StatusFailed, time.Now())
	})
	if err != nil {
		slog.Error("failed to mark session failed", "session_id", id, "error", err)
	}

	if KindOf(cause) != KindInternal {
		return cause
	}
	return &Error{Kind: KindStorage, Op: op, Message: fmt.Sprintf("session %s failed", id), Err: cause}
}

// GetImportProgress returns the session's current state.
func (s *Service) GetImportProgress(ctx context.Context, sessionID, ownerID string) (Progress, error) {
	sess, err := s.sessions.Get(ctx, sessionID, ownerID)
	if err != nil {
		return Progress{}, err
	}
	return progressOf(sess), nil
}

func progressOf(sess *ImportSession) Progress {
	conflicts := sess.OrderedConflicts()
	return Progress{
		SessionID:      sess.ID,
		Kind:           sess.Kind,
		FileName:       sess.FileName,
		Status:         sess.Status,
		RowCount:       len(sess.Rows),
		ProcessedCount: sess.ProcessedCount,
		InvalidRows:    sess.InvalidRowCount(),
		ConflictCount:  len(conflicts),
		ResolvedCount:  len(sess.Resolutions),
		PendingCount:   len(sess.PendingConflicts()),
		ReadyToCommit:  sess.ReadyToCommit(),
		Conflicts:      conflicts,
		LastError:      sess.LastError,
		Summary:        sess.Summary,
		CreatedAt:      sess.CreatedAt,
		UpdatedAt:      sess.UpdatedAt,
	}
}

// ListRows returns the session's parsed rows, or only the rows that
// failed parsing when onlyErrors is set.
func (s *Service) ListRows(ctx context.Context, sessionID, ownerID string, onlyErrors bool) ([]ParsedRow, error) {
	sess, err := s.sessions.Get(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if !onlyErrors {
		return sess.Rows, nil
	}
	var out []ParsedRow
	for _, r := range sess.Rows {
		if !r.Valid() {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetSuggestedResolutions returns a suggestion per unresolved conflict.
func (s *Service) GetSuggestedResolutions(ctx context.Context, sessionID, ownerID string) ([]SuggestedResolution, error) {
	return s.resolutions.GetSuggestedResolutions(ctx, sessionID, ownerID)
}

// ResolveConflicts records operator decisions.
func (s *Service) ResolveConflicts(ctx context.Context, sessionID, ownerID string, items []ResolutionRequest) (ResolutionSummary, error) {
	return s.resolutions.ResolveConflicts(ctx, sessionID, ownerID, items)
}

// Commit applies the session's write plan.
func (s *Service) Commit(ctx context.Context, sessionID, ownerID string) (CommitSummary, error) {
	return s.committer.Commit(ctx, sessionID, ownerID)
}

// Cancel abandons a session that has not started committing. It moves to
// failed and its rows and conflicts are released.
func (s *Service) Cancel(ctx context.Context, sessionID, ownerID string) (Progress, error) {
	const op = "cancel"
	sess, err := s.sessions.Mutate(ctx, sessionID, ownerID, func(cur *ImportSession) error {
		if cur.Status.Terminal() && !cur.retryable() {
			return StateErrorf(op, "session %s is already %s", cur.ID, cur.Status)
		}
		if cur.Status == StatusCommitting {
			return StateErrorf(op, "session %s is committing", cur.ID)
		}
		if err := cur.advance(StatusFailed, time.Now()); err != nil {
			return err
		}
		cur.Cancelled = true
		cur.LastError = "cancelled"
		cur.Rows = nil
		cur.Conflicts = make(map[string]Conflict)
		cur.ConflictOrder = nil
		cur.Resolutions = make(map[string]Resolution)
		return nil
	})
	if err != nil {
		return Progress{}, err
	}
	logging.ForSession(ctx, sessionID, ownerID).Info("import cancelled")
	return progressOf(sess), nil
}
