package core

import "fmt"

// Action is the decision taken for a conflict.
type Action string

const (
	ActionSkip         Action = "skip"
	ActionMerge        Action = "merge"
	ActionCreateNew    Action = "create_new"
	ActionManualReview Action = "manual_review"
)

// Actions lists every action in display order.
var Actions = []Action{ActionSkip, ActionMerge, ActionCreateNew, ActionManualReview}

// ParseAction validates s as an action.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// AcceptsOverrides reports whether overrideData may accompany the action.
func (a Action) AcceptsOverrides() bool {
	return a == ActionMerge || a == ActionCreateNew
}

// ResolutionVisitor handles each resolution action. Adding an action adds
// a method here, which breaks every implementation until it handles it.
type ResolutionVisitor interface {
	VisitSkip(row ParsedRow, c Conflict, r Resolution) error
	VisitMerge(row ParsedRow, c Conflict, r Resolution) error
	VisitCreateNew(row ParsedRow, c Conflict, r Resolution) error
	VisitManualReview(row ParsedRow, c Conflict, r Resolution) error
}

// Accept dispatches r to the visitor method for its action.
func (r Resolution) Accept(v ResolutionVisitor, row ParsedRow, c Conflict) error {
	switch r.Action {
	case ActionSkip:
		return v.VisitSkip(row, c, r)
	case ActionMerge:
		return v.VisitMerge(row, c, r)
	case ActionCreateNew:
		return v.VisitCreateNew(row, c, r)
	case ActionManualReview:
		return v.VisitManualReview(row, c, r)
	}
	return StateErrorf("commit", "unhandled resolution action %q for %s", r.Action, c.ID)
}
