package core

// scheduler.go runs background maintenance for the import service.
//
// The pruner is long-running and context-aware for graceful shutdown. It logs
// what it removes but never fails the application.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPruneInterval is used when StartPruner is given a non-positive interval.
const DefaultPruneInterval = time.Minute

// StartPruner removes expired outcomes every interval until ctx is cancelled.
// It blocks; run it in its own goroutine.
func (h *ImportHistory) StartPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	slog.Info("import history pruner started", "interval", interval, "ttl", h.ttl)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("import history pruner stopped")
			return
		case <-ticker.C:
			if n := h.Prune(); n > 0 {
				slog.Debug("pruned expired imports", "removed", n, "remaining", h.Len())
			}
		}
	}
}
