package worker

import (
	"context"
	"time"

	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/queue"
)

const promoteInterval = 250 * time.Millisecond

// runPromoter periodically moves delayed jobs whose due time has arrived
// (fresh delays and backoff retries alike) from Q:delayed into Q:waiting.
// Without this loop nothing ever claims a delayed job: Fail's retry path
// requeues into Q:delayed and would otherwise never run again.
func runPromoter(ctx context.Context, q *queue.Queue, log logger.Logger) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.PromoteDue(ctx); err != nil {
				log.Warn("promoter failed to promote delayed jobs", "queue", q.Name(), "error", err)
			}
		}
	}
}
