package config

import (
	"fmt"
	"time"
)

// WorkerPoolConfig configures a per-queue elastic worker pool, per
// spec.md §4.3/§6's `defaultWorkerPool` option group.
type WorkerPoolConfig struct {
	MinWorkers int
	MaxWorkers int
	// Concurrency is the number of jobs a single worker runs at once.
	Concurrency int

	AutoScale bool
	// ScaleUpThreshold/ScaleDownThreshold are backlog sizes (waiting +
	// delayed-due) that trigger a scaling decision.
	ScaleUpThreshold   int64
	ScaleDownThreshold int64
	// ScaleUpCooldown/ScaleDownCooldown are independent on purpose
	// (spec.md §9: "do not merge into one").
	ScaleUpCooldown   time.Duration
	ScaleDownCooldown time.Duration

	// StalledThreshold is how long a claimed job may go without a
	// heartbeat before the reaper reclaims it.
	StalledThreshold time.Duration
}

// loadDefaultWorkerPoolConfig reads the process-wide worker pool defaults
// from the environment; per-queue overrides come from the queues YAML.
func loadDefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MinWorkers:         getEnvAsInt("WORKER_MIN_WORKERS", 1),
		MaxWorkers:         getEnvAsInt("WORKER_MAX_WORKERS", 10),
		Concurrency:        getEnvAsInt("WORKER_CONCURRENCY", 5),
		AutoScale:          getEnvAsBool("WORKER_AUTOSCALE", true),
		ScaleUpThreshold:   getEnvAsInt64("WORKER_SCALE_UP_THRESHOLD", 50),
		ScaleDownThreshold: getEnvAsInt64("WORKER_SCALE_DOWN_THRESHOLD", 5),
		ScaleUpCooldown:    getEnvAsDuration("WORKER_SCALE_UP_COOLDOWN", 30*time.Second),
		ScaleDownCooldown:  getEnvAsDuration("WORKER_SCALE_DOWN_COOLDOWN", 2*time.Minute),
		StalledThreshold:   getEnvAsDuration("WORKER_STALLED_THRESHOLD", 30*time.Second),
	}
}

// Validate checks the worker pool configuration for internal consistency.
func (c *WorkerPoolConfig) Validate() error {
	if c.MinWorkers < 0 {
		return fmt.Errorf("minWorkers cannot be negative (got %d)", c.MinWorkers)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("maxWorkers must be at least 1 (got %d)", c.MaxWorkers)
	}
	if c.MinWorkers > c.MaxWorkers {
		return fmt.Errorf("minWorkers (%d) cannot exceed maxWorkers (%d)", c.MinWorkers, c.MaxWorkers)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1 (got %d)", c.Concurrency)
	}
	if c.AutoScale {
		if c.ScaleUpThreshold <= c.ScaleDownThreshold {
			return fmt.Errorf("scaleUpThreshold (%d) must exceed scaleDownThreshold (%d)", c.ScaleUpThreshold, c.ScaleDownThreshold)
		}
	}
	if c.StalledThreshold <= 0 {
		return fmt.Errorf("stalledThreshold must be positive")
	}
	return nil
}

// String renders a human-readable summary of the pool configuration.
func (c WorkerPoolConfig) String() string {
	return fmt.Sprintf(
		"WorkerPoolConfig{min=%d, max=%d, concurrency=%d, autoScale=%v, scaleUp>%d/%v, scaleDown<%d/%v}",
		c.MinWorkers, c.MaxWorkers, c.Concurrency, c.AutoScale,
		c.ScaleUpThreshold, c.ScaleUpCooldown, c.ScaleDownThreshold, c.ScaleDownCooldown,
	)
}
