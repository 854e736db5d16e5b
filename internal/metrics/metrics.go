// Package metrics tracks in-memory per-queue counters and rolls them up
// into a health verdict for operational visibility.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/autoweave/jobqueue/internal/job"
)

// Registry holds one Collector per queue name, created lazily. A
// Registry is owned by a single Manager and threaded down into every
// Queue and Pool it creates — there is no process-wide instance.
type Registry struct {
	mu         sync.RWMutex
	collectors map[string]*Collector
}

// NewRegistry creates an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{collectors: make(map[string]*Collector)}
}

// ForQueue returns the Collector for the named queue, creating it on
// first use.
func (r *Registry) ForQueue(name string) *Collector {
	r.mu.RLock()
	c, ok := r.collectors[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.collectors[name]; ok {
		return c
	}
	c = NewCollector()
	r.collectors[name] = c
	return c
}

// AllQueues returns the names of every queue with a registered collector.
func (r *Registry) AllQueues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	return names
}

// Collector tracks metrics for a single queue.
type Collector struct {
	totalJobsProcessed atomic.Int64
	totalJobsCompleted atomic.Int64
	totalJobsFailed    atomic.Int64
	totalJobsDead      atomic.Int64

	mu             sync.RWMutex
	jobsByStatus   map[job.JobStatus]int64
	jobsByKind     map[job.JobKind]int64
	queueDepth     int64
	delayedDepth   int64
	deadDepth      int64
	totalDuration  time.Duration
	startTime      time.Time
	activeWorkers  int64
	totalWorkers   int64
	errorCount     int64
	operationCount int64
}

// Metrics is a snapshot of a single queue's metrics at a point in time.
type Metrics struct {
	TotalJobsProcessed int64                   `json:"total_jobs_processed"`
	TotalJobsCompleted int64                   `json:"total_jobs_completed"`
	TotalJobsFailed    int64                   `json:"total_jobs_failed"`
	TotalJobsDead      int64                   `json:"total_jobs_dead_lettered"`
	JobsByStatus       map[job.JobStatus]int64 `json:"jobs_by_status"`
	JobsByKind         map[job.JobKind]int64   `json:"jobs_by_kind"`
	QueueDepth         int64                   `json:"queue_depth"`
	DelayedDepth       int64                   `json:"delayed_depth"`
	DeadLetterDepth    int64                   `json:"dead_letter_depth"`
	AvgJobDuration     time.Duration           `json:"avg_job_duration"`
	WorkerUtilization  float64                 `json:"worker_utilization"`
	ErrorRate          float64                 `json:"error_rate"`
	Uptime             time.Duration           `json:"uptime"`
}

// NewCollector creates a collector with zeroed counters.
func NewCollector() *Collector {
	return &Collector{
		jobsByStatus: make(map[job.JobStatus]int64),
		jobsByKind:   make(map[job.JobKind]int64),
		startTime:    time.Now(),
	}
}

// RecordJobStarted records a job transitioning into active processing.
func (c *Collector) RecordJobStarted(kind job.JobKind) {
	c.totalJobsProcessed.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsByKind[kind]++
	c.jobsByStatus[job.StatusActive]++
}

// RecordJobCompleted records a successful completion.
func (c *Collector) RecordJobCompleted(duration time.Duration) {
	c.totalJobsCompleted.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsByStatus[job.StatusActive]--
	c.jobsByStatus[job.StatusCompleted]++
	c.totalDuration += duration
	c.operationCount++
}

// RecordJobFailed records a failed attempt (retry or terminal).
func (c *Collector) RecordJobFailed(duration time.Duration) {
	c.totalJobsFailed.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsByStatus[job.StatusActive]--
	c.jobsByStatus[job.StatusFailed]++
	c.totalDuration += duration
	c.operationCount++
	c.errorCount++
}

// RecordJobDeadLettered records a job exhausting retries into the DLQ.
func (c *Collector) RecordJobDeadLettered() {
	c.totalJobsDead.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsByStatus[job.StatusDeadLettered]++
}

// RecordQueueDepth updates the ready/delayed/dead-letter depth gauges.
func (c *Collector) RecordQueueDepth(ready, delayed, dead int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueDepth = ready
	c.delayedDepth = delayed
	c.deadDepth = dead
}

// RecordWorkerActivity updates worker utilization gauges.
func (c *Collector) RecordWorkerActivity(active, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeWorkers = active
	c.totalWorkers = total
}

// GetMetrics returns a snapshot of this queue's metrics.
func (c *Collector) GetMetrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	jobsByStatus := make(map[job.JobStatus]int64, len(c.jobsByStatus))
	for k, v := range c.jobsByStatus {
		jobsByStatus[k] = v
	}
	jobsByKind := make(map[job.JobKind]int64, len(c.jobsByKind))
	for k, v := range c.jobsByKind {
		jobsByKind[k] = v
	}

	var avgDuration time.Duration
	if c.operationCount > 0 {
		avgDuration = c.totalDuration / time.Duration(c.operationCount)
	}

	var utilization float64
	if c.totalWorkers > 0 {
		utilization = float64(c.activeWorkers) / float64(c.totalWorkers) * 100
	}

	var errorRate float64
	if c.operationCount > 0 {
		errorRate = float64(c.errorCount) / float64(c.operationCount) * 100
	}

	return Metrics{
		TotalJobsProcessed: c.totalJobsProcessed.Load(),
		TotalJobsCompleted: c.totalJobsCompleted.Load(),
		TotalJobsFailed:    c.totalJobsFailed.Load(),
		TotalJobsDead:      c.totalJobsDead.Load(),
		JobsByStatus:       jobsByStatus,
		JobsByKind:         jobsByKind,
		QueueDepth:         c.queueDepth,
		DelayedDepth:       c.delayedDepth,
		DeadLetterDepth:    c.deadDepth,
		AvgJobDuration:     avgDuration,
		WorkerUtilization:  utilization,
		ErrorRate:          errorRate,
		Uptime:             time.Since(c.startTime),
	}
}

// Reset clears all counters. Intended for tests.
func (c *Collector) Reset() {
	c.totalJobsProcessed.Store(0)
	c.totalJobsCompleted.Store(0)
	c.totalJobsFailed.Store(0)
	c.totalJobsDead.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsByStatus = make(map[job.JobStatus]int64)
	c.jobsByKind = make(map[job.JobKind]int64)
	c.queueDepth = 0
	c.delayedDepth = 0
	c.deadDepth = 0
	c.totalDuration = 0
	c.startTime = time.Now()
	c.activeWorkers = 0
	c.totalWorkers = 0
	c.errorCount = 0
	c.operationCount = 0
}
