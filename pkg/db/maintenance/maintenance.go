// Package maintenance runs the startup housekeeping pass over the archive.
package maintenance

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"racepulse/pkg/db"
)

// DefaultRetention keeps archived routes for 90 days after upload.
const DefaultRetention = 90 * 24 * time.Hour

// vacuumInterval throttles VACUUM across restarts; the last run is recorded
// in persistent_state.
const vacuumInterval = 24 * time.Hour

const lastVacuumKey = "last_vacuum"

// Run executes all maintenance tasks. It blocks until completion and never
// fails startup; problems are logged and skipped.
func Run(ctx context.Context, d *db.DB, retention time.Duration) error {
	slog.Info("Starting database maintenance...")

	if retention <= 0 {
		retention = DefaultRetention
	}

	if err := pruneRoutes(ctx, d, retention); err != nil {
		slog.Error("Route pruning failed", "error", err)
	} else {
		slog.Info("Route pruning completed")
	}

	if err := vacuum(ctx, d); err != nil {
		slog.Error("Vacuum failed", "error", err)
	}

	return nil
}

func pruneRoutes(_ context.Context, d *db.DB, retention time.Duration) error {
	return d.PruneRoutes(retention)
}

// vacuum reclaims space freed by pruning, at most once per interval even
// across restarts.
func vacuum(ctx context.Context, d *db.DB) error {
	raw, err := d.GetState(ctx, lastVacuumKey)
	if err == nil && raw != "" {
		if last, perr := strconv.ParseInt(raw, 10, 64); perr == nil &&
			time.Since(time.Unix(last, 0)) < vacuumInterval {
			slog.Info("Vacuum skipped, ran recently")
			return nil
		}
	}
	if _, err := d.ExecContext(ctx, "VACUUM"); err != nil {
		return err
	}
	return d.SetState(ctx, lastVacuumKey, strconv.FormatInt(time.Now().Unix(), 10))
}
