package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/autoweave/jobqueue/internal/job"
)

func newTestJobContext(kind job.JobKind) *JobContext {
	j := &job.Job{ID: "job-1", Kind: kind}
	return newJobContext(context.Background(), nil, j)
}

func TestRegistry_DispatchUnknownKind(t *testing.T) {
	r := NewRegistry()
	jc := newTestJobContext(job.KindSystemHealth)

	res := r.Dispatch(jc)
	if res.Success {
		t.Fatal("expected failure for unregistered kind")
	}
}

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	r := NewRegistry()
	r.Register(job.KindSystemHealth, func(jc *JobContext) Result {
		return Ok(json.RawMessage(`{"status":"ok"}`))
	})

	jc := newTestJobContext(job.KindSystemHealth)
	res := r.Dispatch(jc)
	if !res.Success {
		t.Fatalf("expected success, got error: %v", res.Err)
	}
	if r.Count() != 1 {
		t.Errorf("expected count 1, got %d", r.Count())
	}
}

func TestRegistry_MissingKinds(t *testing.T) {
	r := NewRegistry()
	r.Register(job.KindSystemHealth, func(jc *JobContext) Result { return Ok(nil) })

	missing := r.MissingKinds([]job.JobKind{job.KindSystemHealth, job.KindUSBAttach})
	if len(missing) != 1 || missing[0] != job.KindUSBAttach {
		t.Errorf("expected only KindUSBAttach missing, got %v", missing)
	}
}

func TestRegistry_DecoratorsAppliedOutermostFirst(t *testing.T) {
	r := NewRegistry()
	var order []string
	outer := func(fn ProcessorFunc) ProcessorFunc {
		return func(jc *JobContext) Result {
			order = append(order, "outer")
			return fn(jc)
		}
	}
	inner := func(fn ProcessorFunc) ProcessorFunc {
		return func(jc *JobContext) Result {
			order = append(order, "inner")
			return fn(jc)
		}
	}
	r.Register(job.KindSystemHealth, func(jc *JobContext) Result {
		order = append(order, "processor")
		return Ok(nil)
	}, outer, inner)

	r.Dispatch(newTestJobContext(job.KindSystemHealth))

	want := []string{"outer", "inner", "processor"}
	if len(order) != len(want) {
		t.Fatalf("expected call order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected call order %v, got %v", want, order)
		}
	}
}

func TestWithRetry_RetriesOnFailure(t *testing.T) {
	attempts := 0
	fn := WithRetry(2)(func(jc *JobContext) Result {
		attempts++
		if attempts < 3 {
			return Failed(errors.New("transient failure"))
		}
		return Ok(nil)
	})

	res := fn(newTestJobContext(job.KindSystemHealth))
	if !res.Success {
		t.Fatalf("expected eventual success, got %v", res.Err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_GivesUpAfterMax(t *testing.T) {
	attempts := 0
	fn := WithRetry(1)(func(jc *JobContext) Result {
		attempts++
		return Failed(errors.New("always fails"))
	})

	res := fn(newTestJobContext(job.KindSystemHealth))
	if res.Success {
		t.Fatal("expected failure after exhausting retries")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts (1 initial + 1 retry), got %d", attempts)
	}
}

func TestWithTimeout_FailsSlowProcessor(t *testing.T) {
	fn := WithTimeout(10 * time.Millisecond)(func(jc *JobContext) Result {
		select {
		case <-jc.Context.Done():
			return Failed(jc.Context.Err())
		case <-time.After(100 * time.Millisecond):
			return Ok(nil)
		}
	})

	start := time.Now()
	res := fn(newTestJobContext(job.KindSystemHealth))
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if time.Since(start) > 80*time.Millisecond {
		t.Error("expected WithTimeout to cut the processor off early")
	}
}
