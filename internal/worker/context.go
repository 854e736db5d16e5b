package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/autoweave/jobqueue/internal/job"
	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/queue"
)

// JobContext is the execution context handed to a processor: job data,
// progress/log helpers, a worker-local start timestamp, and a
// cancellation signal (per spec.md §4.3).
type JobContext struct {
	context.Context

	Job       *job.Job
	StartedAt time.Time

	queue  *queue.Queue
	logger logger.Logger
}

func newJobContext(ctx context.Context, q *queue.Queue, j *job.Job) *JobContext {
	return &JobContext{
		Context:   ctx,
		Job:       j,
		StartedAt: time.Now(),
		queue:     q,
		logger:    logger.Default().WithSource(logger.LogSourceJob),
	}
}

// Progress reports percent-complete plus optional structured detail,
// persisting it to the job record and emitting job:progress.
func (jc *JobContext) Progress(pct int, detail json.RawMessage) {
	if err := jc.queue.ReportProgress(jc.Context, jc.Job.ID, pct, detail); err != nil {
		jc.logger.Warn("failed to report job progress", "job_id", jc.Job.ID, "error", err)
	}
}

// withContext returns a shallow copy of jc bound to a different
// cancellation context, used by decorators that impose their own
// deadlines without mutating the original JobContext.
func (jc *JobContext) withContext(ctx context.Context) *JobContext {
	clone := *jc
	clone.Context = ctx
	return &clone
}

// Log appends a structured log line scoped to this job's execution.
func (jc *JobContext) Log(msg string, level logger.LogLevel) {
	switch level {
	case logger.LevelError:
		jc.logger.ErrorContext(jc.Context, msg, "job_id", jc.Job.ID)
	case logger.LevelWarn:
		jc.logger.WarnContext(jc.Context, msg, "job_id", jc.Job.ID)
	case logger.LevelDebug:
		jc.logger.DebugContext(jc.Context, msg, "job_id", jc.Job.ID)
	default:
		jc.logger.InfoContext(jc.Context, msg, "job_id", jc.Job.ID)
	}
}
