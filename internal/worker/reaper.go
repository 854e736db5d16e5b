package worker

import (
	"context"
	"time"

	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/queue"
)

// reapInterval is how often the stalled-job reaper scans for claimed
// jobs whose heartbeat has gone quiet.
const reapInterval = 10 * time.Second

// runReaper periodically reclaims jobs whose worker stopped
// heartbeating (crashed, deadlocked, or network-partitioned), returning
// them to waiting so another worker can pick them up.
func runReaper(ctx context.Context, q *queue.Queue, threshold time.Duration, log logger.Logger) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stalled, err := q.StalledJobIDs(ctx, threshold)
			if err != nil {
				log.Warn("reaper failed to list stalled jobs", "queue", q.Name(), "error", err)
				continue
			}
			for _, id := range stalled {
				if err := q.ReclaimStalled(ctx, id); err != nil {
					log.Warn("reaper failed to reclaim job", "queue", q.Name(), "job_id", id, "error", err)
					continue
				}
				log.Info("reclaimed stalled job", "queue", q.Name(), "job_id", id)
			}
		}
	}
}
