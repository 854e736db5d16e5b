package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autoweave/jobqueue/internal/config"
	"github.com/autoweave/jobqueue/internal/job"
	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/queue"
)

// idlePollInterval is how long a worker slot sleeps after finding the
// queue empty before trying to claim again.
const idlePollInterval = 250 * time.Millisecond

// Pool is a per-queue elastic worker pool: a set of claim loops ("worker
// slots"), each running up to Concurrency jobs at once, scaled between
// MinWorkers and MaxWorkers by the autoscaler.
type Pool struct {
	executor *Executor
	q        *queue.Queue
	cfg      config.WorkerPoolConfig

	wg      sync.WaitGroup
	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
	nextID  atomic.Int64

	activeWorkers  atomic.Int64
	currentWorkers atomic.Int64

	scaler *autoscaler
	log    logger.Logger
}

// NewPool creates a Pool bound to a queue and executor, configured per
// the given worker pool settings.
func NewPool(executor *Executor, q *queue.Queue, cfg config.WorkerPoolConfig) *Pool {
	p := &Pool{
		executor: executor,
		q:        q,
		cfg:      cfg,
		cancels:  make(map[int64]context.CancelFunc),
		log:      logger.Default().WithComponent(logger.ComponentWorker),
	}
	p.scaler = newAutoscaler(p, cfg)
	return p
}

// Start brings the pool up to MinWorkers and, if configured, launches
// the autoscaler and stalled-job reaper loops.
func (p *Pool) Start(ctx context.Context) {
	p.log.Info("starting worker pool", "queue", p.q.Name(), "config", p.cfg.String())

	for i := 0; i < p.cfg.MinWorkers; i++ {
		p.addWorker(ctx)
	}

	if p.cfg.AutoScale {
		go p.scaler.run(ctx)
	}
	go runReaper(ctx, p.q, p.cfg.StalledThreshold, p.log)
	go runPromoter(ctx, p.q, p.log)
}

// Stop cancels every worker slot and waits (bounded) for them to exit.
func (p *Pool) Stop() {
	p.log.Info("stopping worker pool", "queue", p.q.Name())

	p.mu.Lock()
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cancels = make(map[int64]context.CancelFunc)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("worker pool stopped gracefully", "queue", p.q.Name())
	case <-time.After(30 * time.Second):
		p.log.Warn("worker pool shutdown timed out", "queue", p.q.Name(), "timeout", "30s")
	}
}

// CurrentWorkers reports the number of live worker slots.
func (p *Pool) CurrentWorkers() int64 { return p.currentWorkers.Load() }

// addWorker spawns one worker slot, provided doing so would not exceed
// MaxWorkers. The slot is reserved with a compare-and-swap that only
// succeeds below MaxWorkers, before the goroutine starts, so
// CurrentWorkers() never transiently reports more than MaxWorkers.
func (p *Pool) addWorker(ctx context.Context) bool {
	for {
		cur := p.currentWorkers.Load()
		if cur >= int64(p.cfg.MaxWorkers) {
			return false
		}
		if p.currentWorkers.CompareAndSwap(cur, cur+1) {
			break
		}
	}

	id := p.nextID.Add(1)
	workerCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancels[id] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.workerSlot(workerCtx, id)
	return true
}

// removeWorker cancels exactly one worker slot, if any remain above zero.
func (p *Pool) removeWorker() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, cancel := range p.cancels {
		cancel()
		delete(p.cancels, id)
		return true
	}
	return false
}

func (p *Pool) clearCancel(id int64) {
	p.mu.Lock()
	delete(p.cancels, id)
	p.mu.Unlock()
	p.currentWorkers.Add(-1)
}

// workerSlot claims jobs in a loop, running up to cfg.Concurrency of them
// at once via a local semaphore, until its context is cancelled.
func (p *Pool) workerSlot(ctx context.Context, id int64) {
	defer p.wg.Done()
	defer p.clearCancel(id)

	sem := make(chan struct{}, p.cfg.Concurrency)
	var inFlight sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			inFlight.Wait()
			return
		case sem <- struct{}{}:
		}

		j, err := p.q.Claim(ctx)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				inFlight.Wait()
				return
			}
			p.log.Warn("claim failed", "queue", p.q.Name(), "worker", id, "error", err)
			time.Sleep(idlePollInterval)
			continue
		}
		if j == nil {
			<-sem
			select {
			case <-ctx.Done():
				inFlight.Wait()
				return
			case <-time.After(idlePollInterval):
			}
			continue
		}

		inFlight.Add(1)
		active := p.activeWorkers.Add(1)
		p.q.Metrics().RecordWorkerActivity(active, p.currentWorkers.Load())

		go func(j *job.Job) {
			defer func() {
				<-sem
				inFlight.Done()
				active := p.activeWorkers.Add(-1)
				p.q.Metrics().RecordWorkerActivity(active, p.currentWorkers.Load())
			}()
			p.runJob(ctx, j)
		}(j)
	}
}

// runJob executes one claimed job, maintaining its heartbeat for the
// duration of execution so the stalled-job reaper leaves it alone.
func (p *Pool) runJob(ctx context.Context, j *job.Job) {
	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go p.heartbeatLoop(hbCtx, j.ID)

	p.executor.ExecuteJob(ctx, j)
}

func (p *Pool) heartbeatLoop(ctx context.Context, jobID string) {
	interval := p.cfg.StalledThreshold / 3
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.q.Heartbeat(ctx, jobID); err != nil {
				p.log.Warn("heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}
