package store

import (
	"context"
	"log/slog"
	"time"
)

// StartShareSweeper runs a background worker that periodically deletes
// expired shared configurations. It stops when ctx is cancelled.
func StartShareSweeper(ctx context.Context, repo Repository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Share sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				sweepExpiredShares(ctx, repo)
			case <-ctx.Done():
				slog.Info("Share sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpiredShares(ctx context.Context, repo Repository) {
	deleted, err := repo.CleanupExpiredShares(ctx, time.Now())
	if err != nil {
		slog.Error("Share sweeper failed to delete expired shares", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Share sweeper removed expired shares", "count", deleted)
	}
}
