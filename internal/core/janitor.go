package core

// janitor.go evicts abandoned and finished sessions in the background.
//
// The janitor is long-running and context-aware for graceful shutdown.
// Stores that expire entries on their own (Redis) do not implement
// Sweeper and need no janitor.

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is a session store that must be swept for expired sessions.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// DefaultSweepInterval is how often the janitor runs when unset.
const DefaultSweepInterval = time.Minute

// RunJanitor sweeps store every interval until ctx is cancelled.
func RunJanitor(ctx context.Context, store Sweeper, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("session janitor started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session janitor stopped")
			return
		case <-ticker.C:
			start := time.Now()
			if n := store.Sweep(ctx); n > 0 {
				slog.Info("evicted expired import sessions",
					"evicted", n,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}
		}
	}
}
