package engine

import (
	"context"
	"time"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/models"
)

// maintenanceInterval is how often background retention runs.
const maintenanceInterval = time.Hour

// lockSweepInterval is how often the expiration sweep checks that every
// active transaction still holds its lock acquisition.
const lockSweepInterval = 30 * time.Second

// RunMaintenance runs the background passes: a frequent sweep that rolls
// back transactions whose lock expired, and an hourly prune of terminal
// operation records older than the log_retention_days setting. It blocks
// until ctx is cancelled and is meant to run in its own goroutine.
func (e *Engine) RunMaintenance(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	sweep := time.NewTicker(lockSweepInterval)
	defer sweep.Stop()

	// Run once at startup so retention applies without waiting an hour.
	e.pruneOperationHistory(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			e.sweepExpiredTransactions(ctx)
		case <-ticker.C:
			e.pruneOperationHistory(ctx)
		}
	}
}

func (e *Engine) pruneOperationHistory(ctx context.Context) {
	days, err := e.store.GetSettingInt(ctx, models.SettingLogRetentionDays, defaultLogRetentionDays)
	if err != nil {
		logger.Warn("failed to read log retention setting", "error", err)
		return
	}
	if days <= 0 {
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	pruned, err := e.store.PruneOperations(ctx, cutoff)
	if err != nil {
		logger.Warn("failed to prune operation history", "error", err)
		return
	}
	if pruned > 0 {
		logger.Info("pruned operation history", "removed", pruned, "older_than_days", days)
	}
}
