package core

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ResolutionRequest is one operator decision as submitted.
type ResolutionRequest struct {
	ConflictID     string            `json:"conflictId" validate:"required"`
	Action         Action            `json:"action" validate:"required"`
	TargetEntityID string            `json:"targetEntityId,omitempty"`
	OverrideData   map[string]string `json:"overrideData,omitempty"`
}

// ItemResult reports the outcome of one submitted resolution.
type ItemResult struct {
	ConflictID string    `json:"conflictId"`
	Accepted   bool      `json:"accepted"`
	Kind       ErrorKind `json:"kind,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// ResolutionSummary is returned by ResolveConflicts.
type ResolutionSummary struct {
	SessionID     string       `json:"sessionId"`
	Status        Status       `json:"status"`
	Results       []ItemResult `json:"results"`
	Resolved      int          `json:"resolved"`
	Rejected      int          `json:"rejected"`
	Remaining     int          `json:"remaining"`
	ReadyToCommit bool         `json:"readyToCommit"`
}

// SuggestedResolution pre-fills an operator decision. Submitting it
// unchanged as a ResolutionRequest is always accepted.
type SuggestedResolution struct {
	ConflictID     string       `json:"conflictId"`
	RowIndex       int          `json:"rowIndex"`
	ConflictKind   ConflictKind `json:"conflictKind"`
	Action         Action       `json:"action"`
	TargetEntityID string       `json:"targetEntityId,omitempty"`
}

// Request converts the suggestion into a resolution request.
func (s SuggestedResolution) Request() ResolutionRequest {
	return ResolutionRequest{ConflictID: s.ConflictID, Action: s.Action, TargetEntityID: s.TargetEntityID}
}

// ResolutionEngine records operator decisions on pending conflicts.
type ResolutionEngine struct {
	store    SessionStore
	registry *Registry
	now      func() time.Time
}

// NewResolutionEngine creates a resolution engine over store.
func NewResolutionEngine(store SessionStore, reg *Registry) *ResolutionEngine {
	return &ResolutionEngine{store: store, registry: reg, now: time.Now}
}

// ResolveConflicts applies items to the session in one atomic mutation.
// Session-level problems fail the call and leave the session untouched;
// item-level problems are reported per item. A conflict that already has
// a resolution rejects further ones with a state error.
func (e *ResolutionEngine) ResolveConflicts(ctx context.Context, sessionID, ownerID string, items []ResolutionRequest) (ResolutionSummary, error) {
	const op = "resolve conflicts"
	var summary ResolutionSummary

	_, err := e.store.Mutate(ctx, sessionID, ownerID, func(s *ImportSession) error {
		if s.Status != StatusAwaitingResolution && s.Status != StatusResolving {
			return StateErrorf(op, "session %s is %s, resolutions are accepted only while awaiting resolution or resolving", s.ID, s.Status)
		}
		kind, ok := e.registry.Get(s.Kind)
		if !ok {
			return &Error{Kind: KindInternal, Op: op, Message: fmt.Sprintf("unknown entity kind %q", s.Kind)}
		}

		summary = ResolutionSummary{SessionID: s.ID, Results: make([]ItemResult, 0, len(items))}
		now := e.now()
		for _, req := range items {
			res, err := e.resolution(s, kind, req, now)
			if err != nil {
				summary.Rejected++
				summary.Results = append(summary.Results, ItemResult{
					ConflictID: req.ConflictID,
					Kind:       KindOf(err),
					Reason:     err.Error(),
				})
				resolutionsApplied.WithLabelValues(string(req.Action), "rejected").Inc()
				continue
			}
			s.Resolutions[res.ConflictID] = res
			summary.Resolved++
			summary.Results = append(summary.Results, ItemResult{ConflictID: req.ConflictID, Accepted: true})
			resolutionsApplied.WithLabelValues(string(res.Action), "accepted").Inc()
		}

		if summary.Resolved > 0 && s.Status == StatusAwaitingResolution {
			if err := s.advance(StatusResolving, now); err != nil {
				return err
			}
		}

		summary.Status = s.Status
		summary.Remaining = len(s.PendingConflicts())
		summary.ReadyToCommit = s.ReadyToCommit()
		return nil
	})
	if err != nil {
		return ResolutionSummary{}, err
	}
	return summary, nil
}

// resolution validates one request against the session and builds the
// Resolution to record.
func (e *ResolutionEngine) resolution(s *ImportSession, kind EntityKind, req ResolutionRequest, now time.Time) (Resolution, error) {
	const op = "resolve"

	conflict, ok := s.Conflicts[req.ConflictID]
	if !ok {
		return Resolution{}, NotFoundErrorf(op, "conflict %q not found", req.ConflictID)
	}
	if _, done := s.Resolutions[req.ConflictID]; done {
		return Resolution{}, StateErrorf(op, "conflict %q is already resolved", req.ConflictID)
	}
	action, err := ParseAction(string(req.Action))
	if err != nil {
		return Resolution{}, ValidationErrorf(op, "%v", err)
	}

	res := Resolution{ConflictID: conflict.ID, Action: action, ResolvedAt: now}

	if len(req.OverrideData) > 0 {
		if !action.AcceptsOverrides() {
			return Resolution{}, ValidationErrorf(op, "override data is only allowed with merge or create_new, not %s", action)
		}
		overrides, err := coerceOverrides(kind, req.OverrideData)
		if err != nil {
			return Resolution{}, err
		}
		res.OverrideData = overrides
		res.RawOverrides = req.OverrideData
	}

	switch {
	case action == ActionMerge:
		target := req.TargetEntityID
		if target == "" && len(conflict.MatchedEntities) > 0 {
			target = conflict.MatchedEntities[0].EntityID
		}
		if !hasMatch(conflict, target) {
			return Resolution{}, ValidationErrorf(op, "entity %q is not a match of conflict %q", target, conflict.ID)
		}
		res.TargetEntityID = target
	case req.TargetEntityID != "":
		return Resolution{}, ValidationErrorf(op, "a target entity is only allowed with merge")
	}

	return res, nil
}

func hasMatch(c Conflict, entityID string) bool {
	for _, m := range c.MatchedEntities {
		if m.EntityID == entityID {
			return true
		}
	}
	return false
}

// coerceOverrides types operator-supplied values with the kind's fields.
func coerceOverrides(kind EntityKind, raw map[string]string) (Fields, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Fields, len(raw))
	for _, name := range keys {
		spec, ok := kind.Field(name)
		if !ok {
			return nil, ValidationErrorf("resolve", "unknown override field %q", name)
		}
		value := CleanCell(raw[name])
		if value == "" {
			return nil, ValidationErrorf("resolve", "override for %q is empty", name)
		}
		v, err := Coerce(spec, value)
		if err != nil {
			return nil, ValidationErrorf("resolve", "override for %q: %v", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// GetSuggestedResolutions returns the suggestion for every unresolved
// conflict in row order. It never changes the session.
func (e *ResolutionEngine) GetSuggestedResolutions(ctx context.Context, sessionID, ownerID string) ([]SuggestedResolution, error) {
	s, err := e.store.Get(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	pending := s.PendingConflicts()
	out := make([]SuggestedResolution, 0, len(pending))
	for _, c := range pending {
		out = append(out, SuggestedResolution{
			ConflictID:     c.ID,
			RowIndex:       c.RowIndex,
			ConflictKind:   c.Kind,
			Action:         c.SuggestedAction,
			TargetEntityID: c.SuggestedTarget,
		})
	}
	return out, nil
}
