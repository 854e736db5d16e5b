package worker

import (
	"context"
	"runtime/debug"
	"time"

	autoerrors "github.com/autoweave/jobqueue/internal/errors"
	"github.com/autoweave/jobqueue/internal/job"
	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/queue"
	"github.com/autoweave/jobqueue/internal/result"
)

// Executor runs a single claimed job through the processor registry and
// reports the outcome back to its queue.
type Executor struct {
	registry      *Registry
	queue         *queue.Queue
	resultBackend result.Backend
	log           logger.Logger
}

// NewExecutor creates an Executor bound to a queue and its processor registry.
func NewExecutor(registry *Registry, q *queue.Queue) *Executor {
	return &Executor{
		registry: registry,
		queue:    q,
		log:      logger.Default().WithComponent(logger.ComponentWorker),
	}
}

// SetResultBackend sets the result backend for storing job results. If
// never set, results are not persisted beyond the job record itself.
func (e *Executor) SetResultBackend(backend result.Backend) {
	e.resultBackend = backend
}

// ExecuteJob runs j through the registered processor for its kind,
// applying j.TimeoutMs as a deadline, and reports completion or failure
// back to the queue.
func (e *Executor) ExecuteJob(ctx context.Context, j *job.Job) {
	timeout := time.Duration(j.TimeoutMs) * time.Millisecond
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jc := newJobContext(execCtx, e.queue, j)
	startTime := time.Now()

	res := e.runWithRecovery(jc)
	duration := time.Since(startTime)

	if res.Success {
		e.log.Info("job completed", "job_id", j.ID, "kind", j.Kind, "duration", duration)
		e.storeResult(ctx, j.ID, job.StatusCompleted, res.Data, "", duration)
		if err := e.queue.Complete(ctx, j.ID, j.ClaimToken, res.Data); err != nil {
			e.log.Warn("job succeeded but queue.Complete failed", "job_id", j.ID, "error", err)
		}
		return
	}

	jobErr := autoerrors.AsJobError(res.Err)
	if execCtx.Err() != nil && jobErr.Kind != autoerrors.KindFatal {
		jobErr = autoerrors.NewTimeoutError("job exceeded timeout_ms")
	}

	e.log.Warn("job failed", "job_id", j.ID, "kind", j.Kind, "duration", duration, "error", jobErr)
	e.storeResult(ctx, j.ID, job.StatusFailed, nil, jobErr.Error(), duration)
	if err := e.queue.Fail(ctx, j.ID, j.ClaimToken, jobErr); err != nil {
		e.log.Warn("failed to mark job as failed in queue", "job_id", j.ID, "error", err)
	}
}

// runWithRecovery dispatches to the registry, converting a processor
// panic into a fatal, non-retryable Result rather than crashing the worker.
func (e *Executor) runWithRecovery(jc *JobContext) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			perr := &autoerrors.PanicError{Value: r, Stacktrace: string(debug.Stack())}
			e.log.Error(autoerrors.FormatPanicForLog(perr))
			res = Failed(autoerrors.NewFatalError(perr))
		}
	}()
	return e.registry.Dispatch(jc)
}

// storeResult persists the outcome to the result backend, if configured.
// Best-effort: failures are logged, never propagated to the caller.
func (e *Executor) storeResult(ctx context.Context, jobID string, status job.JobStatus, data []byte, errMsg string, duration time.Duration) {
	if e.resultBackend == nil {
		return
	}
	r := &job.JobResult{
		JobID:       jobID,
		Status:      status,
		Result:      data,
		Error:       errMsg,
		CompletedAt: time.Now(),
		Duration:    duration,
	}
	if err := e.resultBackend.StoreResult(ctx, r); err != nil {
		e.log.Warn("failed to store result for job", "job_id", jobID, "error", err)
	}
}
