package manager

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/autoweave/jobqueue/internal/config"
	"github.com/autoweave/jobqueue/internal/metrics"
	"github.com/autoweave/jobqueue/internal/worker"
)

func testConfig(addr string) *config.Config {
	return &config.Config{
		RedisURL: "redis://" + addr,
		Queues: []config.QueueConfig{
			{Name: "default", DefaultPriority: 5, DefaultMaxRetries: 3, DefaultTimeoutMs: 30000},
		},
		DefaultWorkerPool: config.WorkerPoolConfig{
			MinWorkers:         1,
			MaxWorkers:         2,
			Concurrency:        1,
			AutoScale:          false,
			ScaleUpThreshold:   50,
			ScaleDownThreshold: 5,
			ScaleUpCooldown:    time.Minute,
			ScaleDownCooldown:  time.Minute,
			StalledThreshold:   time.Minute,
		},
		Monitoring: config.MonitoringConfig{
			Alerting: metrics.DefaultAlertThresholds(),
		},
	}
}

func setupManagerTest(t *testing.T) (*Manager, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	mgr := New(worker.NewRegistry())
	if err := mgr.Initialize(context.Background(), testConfig(mr.Addr())); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	return mgr, mr
}

func TestManager_InitializeCreatesConfiguredQueues(t *testing.T) {
	mgr, mr := setupManagerTest(t)
	defer mr.Close()
	defer mgr.GracefulShutdown(context.Background(), time.Second)

	q, ok := mgr.Queue("default")
	if !ok || q == nil {
		t.Fatal("expected the default queue to exist after initialize")
	}
}

func TestManager_CreateQueueRejectsDuplicate(t *testing.T) {
	mgr, mr := setupManagerTest(t)
	defer mr.Close()
	defer mgr.GracefulShutdown(context.Background(), time.Second)

	_, err := mgr.CreateQueue(context.Background(), config.QueueConfig{Name: "default"})
	if err == nil {
		t.Fatal("expected duplicate queue creation to be rejected")
	}
}

func TestManager_CreateQueueAddsNewQueue(t *testing.T) {
	mgr, mr := setupManagerTest(t)
	defer mr.Close()
	defer mgr.GracefulShutdown(context.Background(), time.Second)

	_, err := mgr.CreateQueue(context.Background(), config.QueueConfig{Name: "extra"})
	if err != nil {
		t.Fatalf("expected new queue to be created, got %v", err)
	}
	if _, ok := mgr.Queue("extra"); !ok {
		t.Fatal("expected the new queue to be resolvable by name")
	}
}

func TestManager_QueueLookupMissingReturnsFalse(t *testing.T) {
	mgr, mr := setupManagerTest(t)
	defer mr.Close()
	defer mgr.GracefulShutdown(context.Background(), time.Second)

	if _, ok := mgr.Queue("nonexistent"); ok {
		t.Fatal("expected lookup of an unknown queue to return false")
	}
}

func TestManager_Health(t *testing.T) {
	mgr, mr := setupManagerTest(t)
	defer mr.Close()
	defer mgr.GracefulShutdown(context.Background(), time.Second)

	health := mgr.Health()
	if health.Status == "" {
		t.Fatal("expected a non-empty overall health status")
	}
}

func TestManager_GracefulShutdownClosesQueuesAndIsIdempotent(t *testing.T) {
	mgr, mr := setupManagerTest(t)
	defer mr.Close()

	ctx := context.Background()
	if err := mgr.GracefulShutdown(ctx, 2*time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if _, ok := mgr.Queue("default"); ok {
		t.Fatal("expected queues to be cleared after shutdown")
	}

	// A second call must not panic or block past the sync.Once guard.
	done := make(chan struct{})
	go func() {
		mgr.GracefulShutdown(ctx, 2*time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a second GracefulShutdown call to return promptly")
	}
}
