package worker

import (
	"context"
	"time"

	"github.com/autoweave/jobqueue/internal/config"
)

// autoscaleTick is how often the autoscaler samples queue depth.
const autoscaleTick = 5 * time.Second

// autoscaler watches backlog depth and grows or shrinks a Pool's worker
// slots between MinWorkers and MaxWorkers. Scale-up and scale-down each
// have their own cooldown, tracked independently: a recent scale-up
// never blocks a scale-down decision and vice versa (spec.md §9 — the
// two must not be merged into a single cooldown).
type autoscaler struct {
	pool *Pool
	cfg  config.WorkerPoolConfig

	lastScaleUp   time.Time
	lastScaleDown time.Time
}

func newAutoscaler(pool *Pool, cfg config.WorkerPoolConfig) *autoscaler {
	return &autoscaler{pool: pool, cfg: cfg}
}

func (a *autoscaler) run(ctx context.Context) {
	ticker := time.NewTicker(autoscaleTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.evaluate(ctx)
		}
	}
}

func (a *autoscaler) evaluate(ctx context.Context) {
	ready, delayed, _, err := a.pool.q.Depths(ctx)
	if err != nil {
		a.pool.log.Warn("autoscaler failed to read depths", "queue", a.pool.q.Name(), "error", err)
		return
	}
	backlog := ready + delayed
	now := time.Now()

	switch {
	case backlog >= a.cfg.ScaleUpThreshold:
		if now.Sub(a.lastScaleUp) < a.cfg.ScaleUpCooldown {
			return
		}
		if a.pool.addWorker(ctx) {
			a.lastScaleUp = now
			a.pool.log.Info("scaled up", "queue", a.pool.q.Name(), "backlog", backlog, "workers", a.pool.CurrentWorkers())
		}

	case backlog <= a.cfg.ScaleDownThreshold:
		if now.Sub(a.lastScaleDown) < a.cfg.ScaleDownCooldown {
			return
		}
		if a.pool.CurrentWorkers() <= int64(a.cfg.MinWorkers) {
			return
		}
		if a.pool.removeWorker() {
			a.lastScaleDown = now
			a.pool.log.Info("scaled down", "queue", a.pool.q.Name(), "backlog", backlog, "workers", a.pool.CurrentWorkers())
		}
	}
}
