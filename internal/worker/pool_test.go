package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/autoweave/jobqueue/internal/config"
	"github.com/autoweave/jobqueue/internal/job"
	"github.com/autoweave/jobqueue/internal/metrics"
	"github.com/autoweave/jobqueue/internal/queue"
)

func setupPoolTest(t *testing.T) (*queue.Queue, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(client, "pool-test", queue.DefaultOptions(), metrics.NewRegistry())
	return q, mr
}

func testPoolConfig() config.WorkerPoolConfig {
	return config.WorkerPoolConfig{
		MinWorkers:         1,
		MaxWorkers:         2,
		Concurrency:        2,
		AutoScale:          false,
		ScaleUpThreshold:   50,
		ScaleDownThreshold: 5,
		ScaleUpCooldown:    time.Second,
		ScaleDownCooldown:  time.Second,
		StalledThreshold:   time.Minute,
	}
}

func TestPool_ClaimsAndCompletesJob(t *testing.T) {
	q, mr := setupPoolTest(t)
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := NewRegistry()
	done := make(chan struct{})
	registry.Register(job.KindSystemHealth, func(jc *JobContext) Result {
		close(done)
		return Ok(json.RawMessage(`{"status":"ok"}`))
	})

	executor := NewExecutor(registry, q)
	pool := NewPool(executor, q, testPoolConfig())
	pool.Start(ctx)
	defer pool.Stop()

	j, err := q.Enqueue(context.Background(), job.KindSystemHealth, json.RawMessage(`{}`), job.Options{})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for processor to run")
	}

	// Give the executor a moment to persist the completion after the
	// processor returns.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := q.GetJob(context.Background(), j.ID)
		if err != nil {
			t.Fatalf("get job failed: %v", err)
		}
		if got.Status == job.StatusCompleted {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected job to complete, last status: %s", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPool_FailureRoutesToRetryOrDeadLetter(t *testing.T) {
	q, mr := setupPoolTest(t)
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := NewRegistry()
	registry.Register(job.KindSystemHealth, func(jc *JobContext) Result {
		return Failed(context.DeadlineExceeded)
	})

	executor := NewExecutor(registry, q)
	pool := NewPool(executor, q, testPoolConfig())
	pool.Start(ctx)
	defer pool.Stop()

	j, err := q.Enqueue(context.Background(), job.KindSystemHealth, json.RawMessage(`{}`), job.Options{MaxAttempts: 1})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := q.GetJob(context.Background(), j.ID)
		if err != nil {
			t.Fatalf("get job failed: %v", err)
		}
		if got.Status == job.StatusDeadLettered || got.Status == job.StatusFailed {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected job to reach a terminal failure state, last status: %s", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPool_AddAndRemoveWorkerRespectsBounds(t *testing.T) {
	q, mr := setupPoolTest(t)
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := NewRegistry()
	executor := NewExecutor(registry, q)
	cfg := testPoolConfig()
	cfg.MinWorkers = 1
	cfg.MaxWorkers = 2
	pool := NewPool(executor, q, cfg)
	pool.Start(ctx)
	defer pool.Stop()

	if pool.CurrentWorkers() != 1 {
		t.Fatalf("expected 1 worker at start, got %d", pool.CurrentWorkers())
	}
	if !pool.addWorker(ctx) {
		t.Fatal("expected addWorker to succeed under MaxWorkers")
	}
	if pool.CurrentWorkers() != 2 {
		t.Fatalf("expected 2 workers, got %d", pool.CurrentWorkers())
	}
	if pool.addWorker(ctx) {
		t.Fatal("expected addWorker to refuse beyond MaxWorkers")
	}
	if !pool.removeWorker() {
		t.Fatal("expected removeWorker to succeed")
	}
}
