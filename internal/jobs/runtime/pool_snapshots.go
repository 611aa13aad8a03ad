package runtime

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"shrike/internal/database"
	"shrike/internal/pool"
)

const poolSnapshotInterval = 10 * time.Minute

// StartPoolSnapshotRoutine persists a pool snapshot on a fixed interval
// until the context is cancelled.
func StartPoolSnapshotRoutine(ctx context.Context, statsFn func() pool.Stats) {
	if ctx == nil {
		ctx = context.Background()
	}

	runPoolSnapshotOnce(ctx, statsFn)

	ticker := time.NewTicker(poolSnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runPoolSnapshotOnce(ctx, statsFn)
		}
	}
}

func runPoolSnapshotOnce(ctx context.Context, statsFn func() pool.Stats) {
	start := time.Now()
	if err := database.SavePoolSnapshot(ctx, statsFn()); err != nil {
		log.Error("Failed to persist pool snapshot", "error", err)
		return
	}
	log.Debug("Pool snapshot stored", "duration", time.Since(start))
}
