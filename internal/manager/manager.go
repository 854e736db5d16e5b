// Package manager owns the Redis connection, every named queue and its
// worker pool, and the optional scheduler/bridge collaborators, wiring
// them together and coordinating startup and graceful shutdown.
package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autoweave/jobqueue/internal/bridge"
	"github.com/autoweave/jobqueue/internal/config"
	autoerrors "github.com/autoweave/jobqueue/internal/errors"
	"github.com/autoweave/jobqueue/internal/job"
	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/metrics"
	"github.com/autoweave/jobqueue/internal/queue"
	"github.com/autoweave/jobqueue/internal/result"
	"github.com/autoweave/jobqueue/internal/scheduler"
	"github.com/autoweave/jobqueue/internal/worker"
	"github.com/redis/go-redis/v9"
)

// Manager is the composition root for a running AutoWeave job-queue core:
// it creates queues and their pools, starts the stream bridge when
// configured, holds a scheduler attached with AttachScheduler, and
// sequences a graceful shutdown across all of them.
type Manager struct {
	client   *redis.Client
	cfg      *config.Config
	registry *worker.Registry

	metricsRegistry *metrics.Registry

	mu     sync.RWMutex
	queues map[string]*queue.Queue
	pools  map[string]*worker.Pool

	resultBackend result.Backend
	cronScheduler *scheduler.CronScheduler
	schedulerStop context.CancelFunc
	streamBridge  *bridge.Bridge

	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	shutdownDone chan struct{}

	log logger.Logger
}

// New constructs an uninitialized Manager bound to a processor registry.
// Initialize does not check the registry for missing processors; a job
// whose kind has no registered processor fails when a worker dispatches it.
func New(registry *worker.Registry) *Manager {
	return &Manager{
		registry:        registry,
		metricsRegistry: metrics.NewRegistry(),
		queues:          make(map[string]*queue.Queue),
		pools:           make(map[string]*worker.Pool),
		shutdownDone:    make(chan struct{}),
		log:             logger.Default().WithComponent(logger.ComponentManager),
	}
}

// Initialize connects to Redis, instantiates a Queue and its worker Pool
// per entry in cfg.Queues, and starts the stream bridge when enabled. It
// does not start a scheduler; see AttachScheduler.
func (m *Manager) Initialize(ctx context.Context, cfg *config.Config) error {
	m.cfg = cfg

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	m.client = client

	m.resultBackend = result.NewRedisBackend(client, 24*time.Hour, 7*24*time.Hour)

	for _, qc := range cfg.Queues {
		if _, err := m.CreateQueue(ctx, qc); err != nil {
			return fmt.Errorf("failed to create queue %s: %w", qc.Name, err)
		}
	}

	if cfg.USBBridge.Enabled {
		defaultQueue, ok := m.Queue("default")
		if !ok {
			m.log.Warn("usb bridge enabled but no default queue exists; skipping")
		} else {
			b := bridge.New(client, defaultQueue, cfg.USBBridge)
			m.streamBridge = b
			if err := b.Start(ctx); err != nil {
				return fmt.Errorf("failed to start stream bridge: %w", err)
			}
		}
	}

	m.log.Info("manager initialized", "queues", len(m.queues), "usb_bridge", cfg.USBBridge.Enabled)
	return nil
}

// CreateQueue instantiates a new named queue (and its worker pool),
// rejecting duplicates.
func (m *Manager) CreateQueue(ctx context.Context, qc config.QueueConfig) (*queue.Queue, error) {
	m.mu.Lock()
	if _, exists := m.queues[qc.Name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("queue already exists: %s", qc.Name)
	}
	m.mu.Unlock()

	poolCfg := m.cfg.DefaultWorkerPool
	if qc.WorkerPool != nil {
		poolCfg = *qc.WorkerPool
	}

	opts := queue.DefaultOptions()
	opts.StalledTimeout = poolCfg.StalledThreshold
	opts.DefaultJob = job.Options{
		Priority:    qc.DefaultPriority,
		MaxAttempts: qc.DefaultMaxRetries,
		TimeoutMs:   qc.DefaultTimeoutMs,
	}
	q := queue.New(m.client, qc.Name, opts, m.metricsRegistry)

	executor := worker.NewExecutor(m.registry, q)
	executor.SetResultBackend(m.resultBackend)
	pool := worker.NewPool(executor, q, poolCfg)
	pool.Start(ctx)

	m.mu.Lock()
	m.queues[qc.Name] = q
	m.pools[qc.Name] = pool
	m.mu.Unlock()

	m.log.Info("queue created", "queue", qc.Name, "pool", poolCfg.String())
	return q, nil
}

// Queue resolves a named queue; satisfies scheduler.QueueProvider.
func (m *Manager) Queue(name string) (*queue.Queue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[name]
	return q, ok
}

// AttachScheduler wires a cron scheduler into the manager so
// GracefulShutdown can stop it as part of the shutdown sequence. stop is
// the CancelFunc for the context the scheduler was started with.
func (m *Manager) AttachScheduler(cs *scheduler.CronScheduler, stop context.CancelFunc) {
	m.cronScheduler = cs
	m.schedulerStop = stop
}

// Health evaluates every queue's health against the configured alert
// thresholds.
func (m *Manager) Health() metrics.Health {
	return m.metricsRegistry.EvaluateAll(m.cfg.Monitoring.Alerting)
}

// GracefulShutdown implements the five-step sequence: stop ingress
// (scheduler + bridge), drain every worker pool (bounded by timeout),
// close queues, and close Redis. Concurrent callers share one completion
// signal via sync.Once.
func (m *Manager) GracefulShutdown(ctx context.Context, timeout time.Duration) error {
	var shutdownErr error
	m.shutdownOnce.Do(func() {
		m.shuttingDown.Store(true)
		m.log.Info("shutdown started")

		if m.schedulerStop != nil {
			m.schedulerStop()
			m.log.Info("scheduler ingress stopped")
		}
		if m.streamBridge != nil {
			m.streamBridge.Stop()
			m.log.Info("stream bridge ingress stopped")
		}

		m.mu.RLock()
		pools := make([]*worker.Pool, 0, len(m.pools))
		for _, p := range m.pools {
			pools = append(pools, p)
		}
		m.mu.RUnlock()

		drainDone := make(chan struct{})
		go func() {
			var wg sync.WaitGroup
			for _, p := range pools {
				wg.Add(1)
				go func(p *worker.Pool) {
					defer wg.Done()
					p.Stop()
				}(p)
			}
			wg.Wait()
			close(drainDone)
		}()

		select {
		case <-drainDone:
			m.log.Info("all worker pools drained")
		case <-time.After(timeout):
			m.log.Warn("shutdown timeout elapsed; abandoning in-flight jobs",
				"timeout", timeout)
		}

		m.mu.Lock()
		m.queues = make(map[string]*queue.Queue)
		m.mu.Unlock()
		m.log.Info("queues closed")

		// resultBackend shares m.client; closing Redis below closes it too.
		if m.client != nil {
			if err := m.client.Close(); err != nil {
				shutdownErr = autoerrors.NewInfrastructureError("failed to close redis", err)
			}
		}
		m.log.Info("redis closed")
		close(m.shutdownDone)
	})

	<-m.shutdownDone
	return shutdownErr
}
