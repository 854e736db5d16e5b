// Package queue implements the per-named-queue Redis surface: enqueue,
// atomic priority-ordered claim, completion/retry/dead-letter routing,
// pause/drain/clean, and lifecycle event fan-out.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	autoerrors "github.com/autoweave/jobqueue/internal/errors"
	"github.com/autoweave/jobqueue/internal/job"
	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Options configures a Queue's defaults and retention policy.
type Options struct {
	KeyPrefix       string
	DefaultJob      job.Options
	DeadLetterOn    bool
	CompletedTTL    time.Duration
	FailedTTL       time.Duration
	StalledTimeout  time.Duration
	RetentionCap    int64 // max entries retained per terminal class list
	CleanBatchLimit int
}

// DefaultOptions returns sane defaults matching spec.md §4.2/§4.3/§8.
func DefaultOptions() Options {
	return Options{
		KeyPrefix:       "Q:",
		DefaultJob:      job.Options{},
		DeadLetterOn:    true,
		CompletedTTL:    24 * time.Hour,
		FailedTTL:       7 * 24 * time.Hour,
		StalledTimeout:  30 * time.Second,
		RetentionCap:    10000,
		CleanBatchLimit: 100,
	}
}

// Queue is the per-named-queue Redis surface.
type Queue struct {
	client  *redis.Client
	name    string
	k       keys
	opts    Options
	events  *emitter
	claimSH string // cached Lua SHA for the atomic claim script
	metrics *metrics.Collector
	log     logger.Logger
}

// New creates a Queue bound to the given Redis client and queue name. reg
// supplies this queue's metrics collector; callers share one Registry per
// process (owned by the Manager) rather than reaching for a global.
func New(client *redis.Client, name string, opts Options, reg *metrics.Registry) *Queue {
	return &Queue{
		client:  client,
		name:    name,
		k:       newKeys(opts.KeyPrefix, name),
		opts:    opts,
		events:  newEmitter(),
		metrics: reg.ForQueue(name),
		log:     logger.Default().WithComponent(logger.ComponentQueue),
	}
}

// Metrics returns this queue's metrics collector, for callers (the worker
// pool) that need to record against the same collector EvaluateAll reads.
func (q *Queue) Metrics() *metrics.Collector { return q.metrics }

func waitingScore(priority int, submittedAt time.Time) float64 {
	return -float64(priority)*1e13 + float64(submittedAt.UnixMilli())
}

// Enqueue validates payload against kind's schema, normalizes the job via
// job.NewJob, and stores it either into Q:delayed (if delayed) or
// Q:waiting (otherwise).
func (q *Queue) Enqueue(ctx context.Context, kind job.JobKind, payload json.RawMessage, opts job.Options) (*job.Job, error) {
	if !job.IsKnownKind(kind) {
		return nil, autoerrors.NewValidationError(fmt.Sprintf("unknown job kind: %s", kind))
	}
	if err := job.ValidatePayload(kind, payload); err != nil {
		return nil, autoerrors.NewValidationError(err.Error())
	}
	if err := job.ValidateOptions(opts); err != nil {
		return nil, autoerrors.NewValidationError(err.Error())
	}

	j := job.NewJob(kind, payload, opts)
	if err := q.store(ctx, j); err != nil {
		return nil, err
	}

	q.events.emit(Event{Type: EventJobAdded, Queue: q.name, JobID: j.ID, Payload: j})
	q.bestEffortMetrics(ctx)
	return j, nil
}

// EnqueueBulk enqueues every spec atomically from the caller's
// perspective: either all jobs are accepted, or none are (validation
// happens before any Redis write).
func (q *Queue) EnqueueBulk(ctx context.Context, specs []BulkSpec) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(specs))
	for _, s := range specs {
		if !job.IsKnownKind(s.Kind) {
			return nil, autoerrors.NewValidationError(fmt.Sprintf("unknown job kind: %s", s.Kind))
		}
		if err := job.ValidatePayload(s.Kind, s.Payload); err != nil {
			return nil, autoerrors.NewValidationError(err.Error())
		}
		if err := job.ValidateOptions(s.Options); err != nil {
			return nil, autoerrors.NewValidationError(err.Error())
		}
		jobs = append(jobs, job.NewJob(s.Kind, s.Payload, s.Options))
	}
	if len(jobs) == 0 {
		return jobs, nil
	}

	pipe := q.client.TxPipeline()
	for _, j := range jobs {
		if err := q.pipeStore(ctx, pipe, j); err != nil {
			return nil, err
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, autoerrors.NewInfrastructureError("failed to enqueue bulk jobs", err)
	}

	for _, j := range jobs {
		q.events.emit(Event{Type: EventJobAdded, Queue: q.name, JobID: j.ID, Payload: j})
	}
	q.bestEffortMetrics(ctx)
	return jobs, nil
}

// BulkSpec is one job specification within an EnqueueBulk call.
type BulkSpec struct {
	Kind    job.JobKind
	Payload json.RawMessage
	Options job.Options
}

func (q *Queue) store(ctx context.Context, j *job.Job) error {
	pipe := q.client.TxPipeline()
	if err := q.pipeStore(ctx, pipe, j); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return autoerrors.NewInfrastructureError("failed to enqueue job", err)
	}
	return nil
}

func (q *Queue) pipeStore(ctx context.Context, pipe redis.Pipeliner, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	pipe.Set(ctx, q.k.job(j.ID), data, 0)
	if j.Status == job.StatusDelayed {
		pipe.ZAdd(ctx, q.k.delayed, redis.Z{Score: float64(j.DueAt.UnixMilli()), Member: j.ID})
	} else {
		pipe.ZAdd(ctx, q.k.waiting, redis.Z{Score: waitingScore(j.Priority, j.CreatedAt), Member: j.ID})
	}
	return nil
}

// claimScript atomically pops the highest-priority, earliest-submitted
// waiting job (lowest ZSET score) and records it in the active set with a
// heartbeat timestamp, so no two workers can claim the same job.
const claimScript = `
local waiting = KEYS[1]
local active = KEYS[2]
local now = ARGV[1]

local popped = redis.call('ZPOPMIN', waiting)
if #popped == 0 then
	return nil
end

local jobID = popped[1]
redis.call('HSET', active, jobID, now)
return jobID
`

// activeEntry is the value stored per job ID in the active hash: a
// heartbeat timestamp and the claim token of whichever worker currently
// owns the job.
type activeEntry struct {
	HeartbeatMs int64  `json:"hb"`
	ClaimToken  string `json:"token"`
}

// Claim atomically moves the highest-priority waiting job into the active
// set and returns it, or (nil, nil) if the queue is empty or paused.
func (q *Queue) Claim(ctx context.Context) (*job.Job, error) {
	paused, err := q.IsPaused(ctx)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, nil
	}

	now := time.Now().UnixMilli()
	res, err := q.client.Eval(ctx, claimScript, []string{q.k.waiting, q.k.active}, now).Result()
	if err == redis.Nil || res == nil {
		return nil, nil
	}
	if err != nil {
		return nil, autoerrors.NewInfrastructureError("failed to claim job", err)
	}

	jobID, ok := res.(string)
	if !ok {
		return nil, nil
	}

	j, err := q.GetJob(ctx, jobID)
	if err != nil {
		// Active record exists but job data is gone: corrupted reference.
		q.client.HDel(ctx, q.k.active, jobID)
		return nil, autoerrors.NewInfrastructureError("claimed job has no data", err)
	}
	j.UpdateStatus(job.StatusActive)
	now2 := time.Now()
	j.ProcessedAt = &now2
	j.ClaimToken = uuid.New().String()
	if err := q.saveJob(ctx, j); err != nil {
		return nil, err
	}
	if err := q.setActiveEntry(ctx, jobID, j.ClaimToken, now2); err != nil {
		return nil, err
	}

	q.metrics.RecordJobStarted(j.Kind)
	return j, nil
}

// setActiveEntry writes the active-set record for jobID: heartbeat plus
// the claim token of whichever worker owns it.
func (q *Queue) setActiveEntry(ctx context.Context, jobID, claimToken string, heartbeat time.Time) error {
	data, err := json.Marshal(activeEntry{HeartbeatMs: heartbeat.UnixMilli(), ClaimToken: claimToken})
	if err != nil {
		return fmt.Errorf("failed to marshal active entry: %w", err)
	}
	return q.client.HSet(ctx, q.k.active, jobID, data).Err()
}

// getActiveEntry reads the active-set record for jobID. It returns
// (activeEntry{}, false, nil) if the job is not currently active.
func (q *Queue) getActiveEntry(ctx context.Context, jobID string) (activeEntry, bool, error) {
	raw, err := q.client.HGet(ctx, q.k.active, jobID).Result()
	if err == redis.Nil {
		return activeEntry{}, false, nil
	}
	if err != nil {
		return activeEntry{}, false, autoerrors.NewInfrastructureError("failed to read active entry", err)
	}
	var entry activeEntry
	if jsonErr := json.Unmarshal([]byte(raw), &entry); jsonErr != nil {
		// Pre-claim-token record (bare timestamp): no token to compare.
		return activeEntry{}, true, nil
	}
	return entry, true, nil
}

// Heartbeat refreshes the active-set timestamp for a claimed job, so the
// stalled-job reaper does not reclaim it. The claim token is preserved.
func (q *Queue) Heartbeat(ctx context.Context, jobID string) error {
	entry, ok, err := q.getActiveEntry(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return q.setActiveEntry(ctx, jobID, entry.ClaimToken, time.Now())
}

// GetJob retrieves a job by ID.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	data, err := q.client.Get(ctx, q.k.job(jobID)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, autoerrors.NewInfrastructureError("failed to get job", err)
	}
	var j job.Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &j, nil
}

func (q *Queue) saveJob(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.Set(ctx, q.k.job(j.ID), data, 0).Err()
}

// Complete marks a claimed job as completed and stores its result. claimToken
// must match the job's current owner (as recorded by the last Claim or
// ReclaimStalled); a mismatch means a stalled worker is reporting after
// someone else already took over the job, and the call is a no-op.
func (q *Queue) Complete(ctx context.Context, jobID string, claimToken string, result json.RawMessage) error {
	j, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.IsTerminal() {
		q.log.Warn("discarding completion for already-terminal job", "queue", q.name, "job_id", jobID, "status", j.Status)
		return nil
	}
	if stale, err := q.claimIsStale(ctx, jobID, claimToken); err != nil {
		return err
	} else if stale {
		q.log.Warn("discarding completion from stale claim", "queue", q.name, "job_id", jobID)
		return nil
	}

	var duration time.Duration
	if j.ProcessedAt != nil {
		duration = time.Since(*j.ProcessedAt)
	}

	j.UpdateStatus(job.StatusCompleted)
	j.Result = result
	now := time.Now()
	j.FinishedAt = &now
	j.Progress.Percent = 100

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.k.active, jobID)
	pipe.Set(ctx, q.k.job(jobID), data, q.opts.CompletedTTL)
	pipe.LPush(ctx, q.k.completed, jobID)
	pipe.LTrim(ctx, q.k.completed, 0, q.opts.RetentionCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return autoerrors.NewInfrastructureError("failed to complete job", err)
	}

	q.metrics.RecordJobCompleted(duration)
	q.events.emit(Event{Type: EventJobCompleted, Queue: q.name, JobID: jobID, Payload: j})
	return nil
}

// claimIsStale reports whether claimToken no longer matches the job's
// recorded owner: either the active entry is gone (already reclaimed) or
// it belongs to a different claim.
func (q *Queue) claimIsStale(ctx context.Context, jobID, claimToken string) (bool, error) {
	entry, ok, err := q.getActiveEntry(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if entry.ClaimToken == "" {
		// Pre-claim-token record: nothing to compare against, allow it.
		return false, nil
	}
	return entry.ClaimToken != claimToken, nil
}

// Fail handles a failed attempt: retries with backoff if attempts remain,
// otherwise transitions to failed and (if enabled) copies to dead-letter.
// claimToken is checked against the job's current owner, same as Complete.
func (q *Queue) Fail(ctx context.Context, jobID string, claimToken string, jobErr *autoerrors.JobError) error {
	j, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.IsTerminal() {
		q.log.Warn("discarding failure for already-terminal job", "queue", q.name, "job_id", jobID, "status", j.Status)
		return nil
	}
	if stale, err := q.claimIsStale(ctx, jobID, claimToken); err != nil {
		return err
	} else if stale {
		q.log.Warn("discarding failure from stale claim", "queue", q.name, "job_id", jobID)
		return nil
	}

	var duration time.Duration
	if j.ProcessedAt != nil {
		duration = time.Since(*j.ProcessedAt)
	}

	j.Attempts++
	prior := ""
	if j.Error != nil {
		prior = j.Error.Message
	}
	j.Error = &job.JobError{
		Message:      jobErr.Message,
		Type:         string(jobErr.Kind),
		Attempt:      j.Attempts,
		PriorSummary: prior,
	}

	retryable := jobErr.Kind.Retryable() && j.Attempts < j.MaxAttempts

	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.k.active, jobID)

	if retryable {
		delay := j.Backoff.Delay(j.Attempts)
		due := time.Now().Add(delay)
		j.DueAt = due
		j.UpdateStatus(job.StatusWaiting)
		data, merr := json.Marshal(j)
		if merr != nil {
			return fmt.Errorf("failed to marshal job: %w", merr)
		}
		pipe.Set(ctx, q.k.job(jobID), data, 0)
		pipe.ZAdd(ctx, q.k.delayed, redis.Z{Score: float64(due.UnixMilli()), Member: jobID})

		if _, err := pipe.Exec(ctx); err != nil {
			return autoerrors.NewInfrastructureError("failed to schedule retry", err)
		}
		q.metrics.RecordJobFailed(duration)
		q.events.emit(Event{Type: EventJobFailed, Queue: q.name, JobID: jobID, Payload: j})
		return nil
	}

	j.UpdateStatus(job.StatusFailed)
	now := time.Now()
	j.FailedAt = &now
	data, merr := json.Marshal(j)
	if merr != nil {
		return fmt.Errorf("failed to marshal job: %w", merr)
	}
	pipe.Set(ctx, q.k.job(jobID), data, q.opts.FailedTTL)
	pipe.LPush(ctx, q.k.failed, jobID)
	pipe.LTrim(ctx, q.k.failed, 0, q.opts.RetentionCap-1)

	if q.opts.DeadLetterOn {
		j.UpdateStatusForce(job.StatusDeadLettered)
		deadData, derr := json.Marshal(j)
		if derr == nil {
			pipe.Set(ctx, q.k.job(jobID), deadData, q.opts.FailedTTL)
		}
		pipe.LPush(ctx, q.k.dead, jobID)
		pipe.LTrim(ctx, q.k.dead, 0, q.opts.RetentionCap-1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return autoerrors.NewInfrastructureError("failed to finalize failed job", err)
	}

	q.metrics.RecordJobFailed(duration)
	if q.opts.DeadLetterOn {
		q.metrics.RecordJobDeadLettered()
	}
	q.events.emit(Event{Type: EventJobFailed, Queue: q.name, JobID: jobID, Payload: j})
	return nil
}

// CancelJob marks any non-terminal job cancelled and removes it from
// waiting and delayed. An active job is marked cancelled as well; its
// worker is not signalled and keeps running, and its later Complete or
// Fail is discarded because the job is already terminal.
func (q *Queue) CancelJob(ctx context.Context, jobID string) error {
	j, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.IsTerminal() {
		return fmt.Errorf("job %s is already in terminal status %s", jobID, j.Status)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.k.waiting, jobID)
	pipe.ZRem(ctx, q.k.delayed, jobID)

	j.UpdateStatusForce(job.StatusCancelled)
	now := time.Now()
	j.FinishedAt = &now
	data, merr := json.Marshal(j)
	if merr != nil {
		return fmt.Errorf("failed to marshal job: %w", merr)
	}
	pipe.Set(ctx, q.k.job(jobID), data, q.opts.CompletedTTL)
	pipe.LPush(ctx, q.k.cancelled, jobID)
	pipe.LTrim(ctx, q.k.cancelled, 0, q.opts.RetentionCap-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return autoerrors.NewInfrastructureError("failed to cancel job", err)
	}
	return nil
}

// RetryJob clears a failed job's error, resets attempts to 0, and returns
// it to waiting.
func (q *Queue) RetryJob(ctx context.Context, jobID string) error {
	j, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	j.Attempts = 0
	j.Error = nil
	j.FailedAt = nil
	j.DueAt = time.Time{}
	j.Status = job.StatusWaiting

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.k.failed, 1, jobID)
	pipe.LRem(ctx, q.k.dead, 1, jobID)
	pipe.Set(ctx, q.k.job(jobID), data, 0)
	pipe.ZAdd(ctx, q.k.waiting, redis.Z{Score: waitingScore(j.Priority, time.Now()), Member: jobID})

	if _, err := pipe.Exec(ctx); err != nil {
		return autoerrors.NewInfrastructureError("failed to retry job", err)
	}
	q.events.emit(Event{Type: EventJobAdded, Queue: q.name, JobID: jobID, Payload: j})
	return nil
}

// Pause sets the pause flag: workers stop claiming new waiting jobs.
func (q *Queue) Pause(ctx context.Context) error {
	return q.client.Set(ctx, q.k.pause, "1", 0).Err()
}

// Resume clears the pause flag.
func (q *Queue) Resume(ctx context.Context) error {
	return q.client.Del(ctx, q.k.pause).Err()
}

// IsPaused reports whether this queue currently refuses new claims.
func (q *Queue) IsPaused(ctx context.Context) (bool, error) {
	exists, err := q.client.Exists(ctx, q.k.pause).Result()
	if err != nil {
		return false, autoerrors.NewInfrastructureError("failed to check pause flag", err)
	}
	return exists > 0, nil
}

// Drain removes all currently-waiting jobs (not delayed, not active),
// marking them cancelled.
func (q *Queue) Drain(ctx context.Context) (int, error) {
	ids, err := q.client.ZRange(ctx, q.k.waiting, 0, -1).Result()
	if err != nil {
		return 0, autoerrors.NewInfrastructureError("failed to list waiting jobs", err)
	}
	count := 0
	for _, id := range ids {
		if err := q.CancelJob(ctx, id); err != nil {
			q.log.Warn("drain failed to cancel job", "queue", q.name, "job_id", id, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// PromoteDue moves delayed jobs whose due time has arrived into waiting.
// Called periodically by each worker pool's promoter loop.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := time.Now().UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.k.delayed, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return 0, autoerrors.NewInfrastructureError("failed to query delayed jobs", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	promoted := 0
	for _, id := range ids {
		j, err := q.GetJob(ctx, id)
		if err != nil {
			q.client.ZRem(ctx, q.k.delayed, id)
			continue
		}
		j.UpdateStatus(job.StatusWaiting)
		j.DueAt = time.Time{}
		data, merr := json.Marshal(j)
		if merr != nil {
			continue
		}

		pipe := q.client.TxPipeline()
		pipe.Set(ctx, q.k.job(id), data, 0)
		pipe.ZAdd(ctx, q.k.waiting, redis.Z{Score: waitingScore(j.Priority, j.CreatedAt), Member: id})
		pipe.ZRem(ctx, q.k.delayed, id)
		if _, err := pipe.Exec(ctx); err != nil {
			q.log.Warn("failed to promote delayed job", "queue", q.name, "job_id", id, "error", err)
			continue
		}
		promoted++
	}
	return promoted, nil
}

// Clean removes terminal jobs older than graceMs, capped at
// CleanBatchLimit per terminal class per call.
func (q *Queue) Clean(ctx context.Context, graceMs int64) (map[string]int, error) {
	classes := map[string]string{
		"completed": q.k.completed,
		"failed":    q.k.failed,
		"cancelled": q.k.cancelled,
		"dead":      q.k.dead,
	}
	cutoff := time.Now().Add(-time.Duration(graceMs) * time.Millisecond)
	removed := map[string]int{}

	for class, listKey := range classes {
		ids, err := q.client.LRange(ctx, listKey, 0, int64(q.opts.CleanBatchLimit-1)).Result()
		if err != nil {
			return removed, autoerrors.NewInfrastructureError("failed to list terminal jobs", err)
		}
		n := 0
		for _, id := range ids {
			j, err := q.GetJob(ctx, id)
			if err != nil {
				q.client.LRem(ctx, listKey, 1, id)
				continue
			}
			age := j.FinishedAt
			if age == nil {
				age = j.FailedAt
			}
			if age == nil || age.Before(cutoff) {
				pipe := q.client.TxPipeline()
				pipe.LRem(ctx, listKey, 1, id)
				pipe.Del(ctx, q.k.job(id))
				if _, err := pipe.Exec(ctx); err == nil {
					n++
				}
			}
		}
		removed[class] = n
	}
	return removed, nil
}

// Depths returns the current ready, delayed, and dead-letter depths, used
// for metrics and autoscaling backlog calculations.
func (q *Queue) Depths(ctx context.Context) (ready, delayed, dead int64, err error) {
	pipe := q.client.Pipeline()
	readyCmd := pipe.ZCard(ctx, q.k.waiting)
	delayedCmd := pipe.ZCard(ctx, q.k.delayed)
	deadCmd := pipe.LLen(ctx, q.k.dead)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, autoerrors.NewInfrastructureError("failed to read queue depths", err)
	}
	return readyCmd.Val(), delayedCmd.Val(), deadCmd.Val(), nil
}

// StalledJobIDs returns active job IDs whose heartbeat is older than
// threshold.
func (q *Queue) StalledJobIDs(ctx context.Context, threshold time.Duration) ([]string, error) {
	all, err := q.client.HGetAll(ctx, q.k.active).Result()
	if err != nil {
		return nil, autoerrors.NewInfrastructureError("failed to read active set", err)
	}
	cutoff := time.Now().Add(-threshold).UnixMilli()
	var stalled []string
	for id, raw := range all {
		var entry activeEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			// Pre-claim-token record: a bare timestamp.
			if _, serr := fmt.Sscanf(raw, "%d", &entry.HeartbeatMs); serr != nil {
				continue
			}
		}
		if entry.HeartbeatMs < cutoff {
			stalled = append(stalled, id)
		}
	}
	return stalled, nil
}

// ReclaimStalled returns a stalled job to waiting, incrementing attempts,
// discarding whatever the original worker eventually produces.
func (q *Queue) ReclaimStalled(ctx context.Context, jobID string) error {
	j, err := q.GetJob(ctx, jobID)
	if err != nil {
		q.client.HDel(ctx, q.k.active, jobID)
		return err
	}

	j.Attempts++
	j.UpdateStatus(job.StatusWaiting)
	j.ClaimToken = ""
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.k.active, jobID)
	pipe.Set(ctx, q.k.job(jobID), data, 0)
	pipe.ZAdd(ctx, q.k.waiting, redis.Z{Score: waitingScore(j.Priority, time.Now()), Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return autoerrors.NewInfrastructureError("failed to reclaim stalled job", err)
	}

	q.events.emit(Event{Type: EventJobStalled, Queue: q.name, JobID: jobID, Payload: j})
	return nil
}

// ReportProgress persists progress and emits job:progress.
func (q *Queue) ReportProgress(ctx context.Context, jobID string, percent int, detail json.RawMessage) error {
	j, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	j.Progress = job.Progress{Percent: percent, Detail: detail}
	if err := q.saveJob(ctx, j); err != nil {
		return err
	}
	q.events.emit(Event{Type: EventJobProgress, Queue: q.name, JobID: jobID, Payload: j.Progress})
	return nil
}

func (q *Queue) bestEffortMetrics(ctx context.Context) {
	ready, delayed, dead, err := q.Depths(ctx)
	if err != nil {
		q.log.Warn("failed to update depth metrics", "queue", q.name, "error", err)
		return
	}
	q.metrics.RecordQueueDepth(ready, delayed, dead)
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }
