package worker

import (
	"context"
	"time"

	autoerrors "github.com/autoweave/jobqueue/internal/errors"
	"github.com/autoweave/jobqueue/internal/logger"
)

// Decorator wraps a ProcessorFunc to add cross-cutting behavior
// (logging, local retry, timeout) without the processor itself knowing
// about it. Decorators compose: Register applies them outermost-first.
type Decorator func(ProcessorFunc) ProcessorFunc

// WithLogging logs entry, exit, and failure of every invocation.
func WithLogging(fn ProcessorFunc) ProcessorFunc {
	return func(jc *JobContext) Result {
		jc.Log("processor started", logger.LevelDebug)
		res := fn(jc)
		if res.Success {
			jc.Log("processor completed", logger.LevelDebug)
		} else {
			jc.logger.Warn("processor failed", "job_id", jc.Job.ID, "kind", jc.Job.Kind, "error", res.Err)
		}
		return res
	}
}

// WithRetry retries a failing processor up to max additional times
// in-process, with a short fixed pause between attempts. This is
// distinct from the queue's own attempt/backoff bookkeeping: it lets a
// processor absorb a brief local hiccup (e.g. a flaky downstream call)
// without consuming one of the job's MaxAttempts.
func WithRetry(max int) Decorator {
	return func(fn ProcessorFunc) ProcessorFunc {
		return func(jc *JobContext) Result {
			var res Result
			for attempt := 0; attempt <= max; attempt++ {
				res = fn(jc)
				if res.Success {
					return res
				}
				if attempt < max {
					select {
					case <-jc.Context.Done():
						return res
					case <-time.After(200 * time.Millisecond):
					}
				}
			}
			return res
		}
	}
}

// WithTimeout bounds a single invocation to d, returning a timeout
// JobError if the processor does not finish in time.
func WithTimeout(d time.Duration) Decorator {
	return func(fn ProcessorFunc) ProcessorFunc {
		return func(jc *JobContext) Result {
			ctx, cancel := context.WithTimeout(jc.Context, d)
			defer cancel()
			bound := jc.withContext(ctx)

			done := make(chan Result, 1)
			go func() {
				done <- fn(bound)
			}()

			select {
			case res := <-done:
				return res
			case <-ctx.Done():
				return Failed(autoerrors.NewTimeoutError("processor exceeded timeout"))
			}
		}
	}
}
