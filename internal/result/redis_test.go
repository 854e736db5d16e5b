package result

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/autoweave/jobqueue/internal/job"
)

func setupResultBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisBackend(client, time.Hour, time.Hour), mr
}

func TestRedisBackend_StoreAndGetResult(t *testing.T) {
	b, mr := setupResultBackend(t)
	defer mr.Close()
	ctx := context.Background()

	r := &job.JobResult{
		JobID:       "job-1",
		Status:      job.StatusCompleted,
		Result:      json.RawMessage(`{"ok":true}`),
		CompletedAt: time.Now(),
		Duration:    250 * time.Millisecond,
	}
	if err := b.StoreResult(ctx, r); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, err := b.GetResult(ctx, "job-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a stored result")
	}
	if got.Status != job.StatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if string(got.Result) != `{"ok":true}` {
		t.Errorf("expected result payload preserved, got %s", got.Result)
	}
	if got.Duration != 250*time.Millisecond {
		t.Errorf("expected duration preserved, got %v", got.Duration)
	}
}

func TestRedisBackend_GetResult_MissingReturnsNil(t *testing.T) {
	b, mr := setupResultBackend(t)
	defer mr.Close()

	got, err := b.GetResult(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != nil {
		t.Fatal("expected nil result for a job with no stored result")
	}
}

func TestRedisBackend_StoreFailedResult(t *testing.T) {
	b, mr := setupResultBackend(t)
	defer mr.Close()
	ctx := context.Background()

	r := &job.JobResult{
		JobID:       "job-2",
		Status:      job.StatusFailed,
		Error:       "boom",
		CompletedAt: time.Now(),
	}
	if err := b.StoreResult(ctx, r); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, err := b.GetResult(ctx, "job-2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Error != "boom" {
		t.Errorf("expected error message preserved, got %q", got.Error)
	}
}

func TestRedisBackend_WaitForResult_ReturnsImmediatelyIfAlreadyStored(t *testing.T) {
	b, mr := setupResultBackend(t)
	defer mr.Close()
	ctx := context.Background()

	if err := b.StoreResult(ctx, &job.JobResult{JobID: "job-3", Status: job.StatusCompleted, CompletedAt: time.Now()}); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, err := b.WaitForResult(ctx, "job-3", time.Second)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected an immediately-available result")
	}
}

func TestRedisBackend_WaitForResult_TimesOutWithoutResult(t *testing.T) {
	b, mr := setupResultBackend(t)
	defer mr.Close()

	got, err := b.WaitForResult(context.Background(), "never-completes", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("expected no error on timeout, got %v", err)
	}
	if got != nil {
		t.Fatal("expected nil result when the wait times out")
	}
}

func TestRedisBackend_DeleteResult(t *testing.T) {
	b, mr := setupResultBackend(t)
	defer mr.Close()
	ctx := context.Background()

	if err := b.StoreResult(ctx, &job.JobResult{JobID: "job-4", Status: job.StatusCompleted, CompletedAt: time.Now()}); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := b.DeleteResult(ctx, "job-4"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	got, err := b.GetResult(ctx, "job-4")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected result to be gone after delete")
	}
}
