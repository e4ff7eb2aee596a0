package statsdb

import (
	"context"
	"time"

	"github.com/banshee-data/eventcam/internal/monitoring"
	"github.com/banshee-data/eventcam/internal/stats"
)

// RecordLoop samples the aggregator into the database every interval
// until ctx is cancelled. Quiet streams (no frames yet) are skipped.
// Run it on its own goroutine; failed inserts are logged, not fatal.
func (db *DB) RecordLoop(ctx context.Context, sessionID string, agg *stats.Aggregator, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := agg.Snapshot()
			if snap.TotalFrames == 0 {
				continue
			}
			if err := db.RecordSample(sessionID, snap); err != nil {
				monitoring.Logf("Failed to record stats sample: %v", err)
			}
		}
	}
}
