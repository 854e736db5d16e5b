package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

func parseDurationString(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

// queuesFile is the on-disk shape of a `queues:` YAML overlay, grounded
// on the layered static config pattern used for yaml.v3 elsewhere in the
// retrieved example pack.
type queuesFile struct {
	Queues []queueYAML `yaml:"queues"`
}

type queueYAML struct {
	Name              string         `yaml:"name"`
	DefaultPriority   int            `yaml:"default_priority"`
	DefaultMaxRetries int            `yaml:"default_max_retries"`
	DefaultTimeoutMs  int64          `yaml:"default_timeout_ms"`
	WorkerPool        *workerPoolYAML `yaml:"worker_pool"`
}

type workerPoolYAML struct {
	MinWorkers         *int    `yaml:"min_workers"`
	MaxWorkers         *int    `yaml:"max_workers"`
	Concurrency        *int    `yaml:"concurrency"`
	AutoScale          *bool   `yaml:"auto_scale"`
	ScaleUpThreshold   *int64  `yaml:"scale_up_threshold"`
	ScaleDownThreshold *int64  `yaml:"scale_down_threshold"`
	ScaleUpCooldown    *string `yaml:"scale_up_cooldown"`
	ScaleDownCooldown  *string `yaml:"scale_down_cooldown"`
}

// LoadQueuesYAML reads a `queues:` overlay file, applying fallback on each
// field not overridden.
func LoadQueuesYAML(path string, fallback WorkerPoolConfig) ([]QueueConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queues file %s: %w", path, err)
	}

	var f queuesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse queues file %s: %w", path, err)
	}

	queues := make([]QueueConfig, 0, len(f.Queues))
	for _, qy := range f.Queues {
		if qy.Name == "" {
			return nil, fmt.Errorf("queues file %s: queue entry missing name", path)
		}
		qc := QueueConfig{
			Name:              qy.Name,
			DefaultPriority:   qy.DefaultPriority,
			DefaultMaxRetries: qy.DefaultMaxRetries,
			DefaultTimeoutMs:  qy.DefaultTimeoutMs,
		}
		if qy.WorkerPool != nil {
			wp := fallback
			applyWorkerPoolOverride(&wp, qy.WorkerPool)
			qc.WorkerPool = &wp
		}
		queues = append(queues, qc)
	}
	return queues, nil
}

func applyWorkerPoolOverride(wp *WorkerPoolConfig, o *workerPoolYAML) {
	if o.MinWorkers != nil {
		wp.MinWorkers = *o.MinWorkers
	}
	if o.MaxWorkers != nil {
		wp.MaxWorkers = *o.MaxWorkers
	}
	if o.Concurrency != nil {
		wp.Concurrency = *o.Concurrency
	}
	if o.AutoScale != nil {
		wp.AutoScale = *o.AutoScale
	}
	if o.ScaleUpThreshold != nil {
		wp.ScaleUpThreshold = *o.ScaleUpThreshold
	}
	if o.ScaleDownThreshold != nil {
		wp.ScaleDownThreshold = *o.ScaleDownThreshold
	}
	if o.ScaleUpCooldown != nil {
		if d, err := parseDurationString(*o.ScaleUpCooldown); err == nil {
			wp.ScaleUpCooldown = d
		}
	}
	if o.ScaleDownCooldown != nil {
		if d, err := parseDurationString(*o.ScaleDownCooldown); err == nil {
			wp.ScaleDownCooldown = d
		}
	}
}
