// Package scheduler provides cron-based job scheduling functionality.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/autoweave/jobqueue/internal/errors"
	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/queue"
	"github.com/redis/go-redis/v9"
)

// QueueProvider resolves a named queue, letting one scheduler fan a set
// of schedules out across every queue the manager owns.
type QueueProvider interface {
	Queue(name string) (*queue.Queue, bool)
}

// CronScheduler manages periodic task execution across a set of queues.
type CronScheduler struct {
	registry *Registry
	queues   QueueProvider
	client   *redis.Client
	interval time.Duration
	lockTTL  time.Duration
	log      logger.Logger

	// maxConcurrentJobs caps how many scheduled firings may be in flight
	// at once across every schedule. Zero means unbounded. The gate is
	// checked in fire(), which both the cron tick and RunJobNow go
	// through. A firing that fails to enqueue is recorded, not retried.
	maxConcurrentJobs int64
	runningJobs       atomic.Int64
}

// NewCronScheduler creates a new cron scheduler bound to a queue provider.
func NewCronScheduler(registry *Registry, queues QueueProvider, client *redis.Client, interval time.Duration, maxConcurrentJobs int64) *CronScheduler {
	return &CronScheduler{
		registry:          registry,
		queues:            queues,
		client:            client,
		interval:          interval,
		lockTTL:           60 * time.Second,
		maxConcurrentJobs: maxConcurrentJobs,
		log:               logger.Default().WithComponent(logger.ComponentScheduler),
	}
}

// SetLockTTL sets the distributed lock TTL (for testing or tuning).
func (cs *CronScheduler) SetLockTTL(ttl time.Duration) {
	cs.lockTTL = ttl
}

// Start begins the cron scheduler loop.
func (cs *CronScheduler) Start(ctx context.Context) {
	cs.log.Info("cron scheduler started", "interval", cs.interval, "schedules", cs.registry.Count())

	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cs.log.Info("cron scheduler stopping")
			return
		case <-ticker.C:
			cs.tick(ctx)
		}
	}
}

// tick checks all schedules and enqueues due jobs.
func (cs *CronScheduler) tick(ctx context.Context) {
	now := time.Now()
	for _, schedule := range cs.registry.List() {
		if !schedule.Enabled {
			continue
		}
		if cs.isDue(ctx, schedule, now) {
			cs.fire(ctx, schedule, now)
		}
	}
}

// RunJobNow fires a schedule immediately, bypassing the cron clock but
// still subject to the same maxConcurrentJobs gate and distributed lock.
func (cs *CronScheduler) RunJobNow(ctx context.Context, scheduleID string) error {
	schedule, ok := cs.registry.Get(scheduleID)
	if !ok {
		return fmt.Errorf("schedule not found: %s", scheduleID)
	}
	cs.fire(ctx, schedule, time.Now())
	return nil
}

// isDue checks if a schedule should run now.
func (cs *CronScheduler) isDue(ctx context.Context, schedule *Schedule, now time.Time) bool {
	state, err := cs.getState(ctx, schedule.ID)
	if err != nil {
		cs.log.Error("failed to get schedule state", "schedule_id", schedule.ID, "error", err)
		return false
	}

	nextRun, err := cs.registry.NextRun(schedule, state.LastRun)
	if err != nil {
		cs.log.Error("failed to calculate next run", "schedule_id", schedule.ID, "error", err)
		return false
	}

	// 1-second buffer accounts for tick timing jitter.
	return now.After(nextRun.Add(-1*time.Second)) || now.Equal(nextRun)
}

// fire acquires the distributed lock and concurrency gate, then enqueues
// the schedule's job template. Every call path that can enqueue a job —
// the regular tick and RunJobNow alike — goes through this one gate.
func (cs *CronScheduler) fire(ctx context.Context, schedule *Schedule, now time.Time) {
	if cs.maxConcurrentJobs > 0 && cs.runningJobs.Load() >= cs.maxConcurrentJobs {
		cs.log.Debug("schedule skipped: max concurrent scheduled jobs reached",
			"schedule_id", schedule.ID, "limit", cs.maxConcurrentJobs)
		return
	}

	lockKey := fmt.Sprintf("aw:schedule_lock:%s", schedule.ID)
	lock, err := AcquireLock(ctx, cs.client, lockKey, cs.lockTTL)
	if err != nil {
		cs.log.Error("failed to acquire schedule lock", "schedule_id", schedule.ID, "error", err)
		return
	}
	if lock == nil {
		cs.log.Debug("schedule already locked by another instance", "schedule_id", schedule.ID)
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			cs.log.Error("failed to release schedule lock", "schedule_id", schedule.ID, "error", err)
		}
	}()

	cs.runningJobs.Add(1)
	defer cs.runningJobs.Add(-1)

	cs.executeSchedule(ctx, schedule, now)
}

// executeSchedule enqueues the schedule's job template into its target
// queue and records the outcome.
func (cs *CronScheduler) executeSchedule(ctx context.Context, schedule *Schedule, now time.Time) {
	q, ok := cs.queues.Queue(schedule.Queue)
	if !ok {
		cs.recordFailure(ctx, schedule, now, fmt.Sprintf("queue not found: %s", schedule.Queue))
		return
	}

	tmpl := schedule.Job
	j, err := q.Enqueue(ctx, tmpl.Kind, tmpl.Payload, tmpl.Options)
	if err != nil {
		jobErr := errors.AsJobError(err)
		cs.recordFailure(ctx, schedule, now, jobErr.Error())
		return
	}

	cs.log.Info("scheduled job enqueued",
		"schedule_id", schedule.ID, "queue", schedule.Queue, "job_kind", tmpl.Kind, "job_id", j.ID)

	nextRun, err := cs.registry.NextRun(schedule, now)
	if err != nil {
		cs.log.Error("failed to calculate next run time", "schedule_id", schedule.ID, "error", err)
		nextRun = time.Time{}
	}

	runCount := cs.incrementCounter(ctx, schedule.ID, "run_count")
	if err := cs.updateState(ctx, schedule.ID, &ScheduleState{
		ID:          schedule.ID,
		LastRun:     now,
		NextRun:     nextRun,
		LastSuccess: now,
		RunCount:    runCount,
	}); err != nil {
		cs.log.Warn("failed to update schedule state", "schedule_id", schedule.ID, "error", err)
	}
}

func (cs *CronScheduler) recordFailure(ctx context.Context, schedule *Schedule, now time.Time, errMsg string) {
	cs.log.Error("scheduled job failed to enqueue", "schedule_id", schedule.ID, "error", errMsg)
	failureCount := cs.incrementCounter(ctx, schedule.ID, "failure_count")
	if err := cs.updateState(ctx, schedule.ID, &ScheduleState{
		ID:           schedule.ID,
		LastRun:      now,
		LastError:    errMsg,
		FailureCount: failureCount,
	}); err != nil {
		cs.log.Warn("failed to update schedule state", "schedule_id", schedule.ID, "error", err)
	}
}

// getState retrieves the current state of a schedule from Redis.
func (cs *CronScheduler) getState(ctx context.Context, scheduleID string) (*ScheduleState, error) {
	key := fmt.Sprintf("aw:schedules:%s", scheduleID)

	result, err := cs.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule state: %w", err)
	}

	if len(result) == 0 {
		return &ScheduleState{ID: scheduleID}, nil
	}

	state := &ScheduleState{ID: scheduleID}
	if v, ok := result["last_run"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			state.LastRun = t
		}
	}
	if v, ok := result["next_run"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			state.NextRun = t
		}
	}
	if v, ok := result["last_success"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			state.LastSuccess = t
		}
	}
	if v, ok := result["last_error"]; ok {
		state.LastError = v
	}
	if v, ok := result["run_count"]; ok && v != "" {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			state.RunCount = n
		}
	}
	if v, ok := result["failure_count"]; ok && v != "" {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			state.FailureCount = n
		}
	}

	return state, nil
}

// updateState updates the schedule state in Redis.
func (cs *CronScheduler) updateState(ctx context.Context, scheduleID string, state *ScheduleState) error {
	key := fmt.Sprintf("aw:schedules:%s", scheduleID)

	fields := map[string]interface{}{
		"last_run": state.LastRun.Format(time.RFC3339),
	}
	if !state.NextRun.IsZero() {
		fields["next_run"] = state.NextRun.Format(time.RFC3339)
	}
	if !state.LastSuccess.IsZero() {
		fields["last_success"] = state.LastSuccess.Format(time.RFC3339)
	}
	if state.LastError != "" {
		fields["last_error"] = state.LastError
	} else {
		cs.client.HDel(ctx, key, "last_error")
	}

	return cs.client.HSet(ctx, key, fields).Err()
}

// incrementCounter increments and returns a named counter field.
func (cs *CronScheduler) incrementCounter(ctx context.Context, scheduleID, field string) int64 {
	key := fmt.Sprintf("aw:schedules:%s", scheduleID)
	count, err := cs.client.HIncrBy(ctx, key, field, 1).Result()
	if err != nil {
		cs.log.Error("failed to increment counter", "schedule_id", scheduleID, "field", field, "error", err)
		return 0
	}
	return count
}

// GetState retrieves the current state of a schedule (public method for monitoring).
func (cs *CronScheduler) GetState(ctx context.Context, scheduleID string) (*ScheduleState, error) {
	return cs.getState(ctx, scheduleID)
}
