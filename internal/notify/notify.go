package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/logging"
)

// Multi fans a notification out to several notifiers. Every notifier is
// called even when an earlier one fails; the failures are joined.
type Multi []core.Notifier

func (m Multi) NotifyCommit(ctx context.Context, n core.CommitNotification) error {
	var errs []error
	for i, target := range m {
		if target == nil {
			continue
		}
		if err := target.NotifyCommit(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d (%T): %w", i, target, err))
		}
	}
	return errors.Join(errs...)
}

// Log writes a one-line summary of each commit to the application log.
type Log struct{}

func (Log) NotifyCommit(ctx context.Context, n core.CommitNotification) error {
	logging.ForSession(ctx, n.SessionID, n.OwnerID).Info("import committed",
		"kind", n.Kind,
		"file", n.FileName,
		"created", len(n.Created),
		"merged", len(n.Merged),
		"skipped", len(n.Skipped),
		"deferred", len(n.Deferred),
		"invalid", n.Invalid,
		"assets", len(n.Assets),
	)
	return nil
}

var (
	_ core.Notifier = Multi(nil)
	_ core.Notifier = Log{}
)
