package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadQueuesYAML_ParsesQueueList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queues.yaml")
	contents := `
queues:
  - name: default
    default_priority: 5
    default_max_retries: 3
    default_timeout_ms: 30000
  - name: critical
    default_priority: 10
    default_max_retries: 5
    default_timeout_ms: 60000
    worker_pool:
      min_workers: 2
      max_workers: 20
      scale_up_cooldown: 10s
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture failed: %v", err)
	}

	fallback := validPoolConfig()
	queues, err := LoadQueuesYAML(path, fallback)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(queues) != 2 {
		t.Fatalf("expected 2 queues, got %d", len(queues))
	}

	if queues[0].Name != "default" || queues[0].DefaultPriority != 5 {
		t.Errorf("unexpected first queue: %+v", queues[0])
	}
	if queues[0].WorkerPool != nil {
		t.Error("expected no worker pool override for the default queue")
	}

	critical := queues[1]
	if critical.Name != "critical" {
		t.Fatalf("unexpected second queue: %+v", critical)
	}
	if critical.WorkerPool == nil {
		t.Fatal("expected a worker pool override for the critical queue")
	}
	if critical.WorkerPool.MinWorkers != 2 || critical.WorkerPool.MaxWorkers != 20 {
		t.Errorf("expected overridden min/max workers, got %+v", critical.WorkerPool)
	}
	if critical.WorkerPool.ScaleUpCooldown != 10*time.Second {
		t.Errorf("expected overridden scale up cooldown, got %v", critical.WorkerPool.ScaleUpCooldown)
	}
	if critical.WorkerPool.Concurrency != fallback.Concurrency {
		t.Errorf("expected unset fields to fall back to the default pool config, got concurrency=%d", critical.WorkerPool.Concurrency)
	}
}

func TestLoadQueuesYAML_RejectsMissingName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queues.yaml")
	contents := "queues:\n  - default_priority: 5\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture failed: %v", err)
	}

	if _, err := LoadQueuesYAML(path, validPoolConfig()); err == nil {
		t.Fatal("expected a queue entry without a name to be rejected")
	}
}

func TestLoadQueuesYAML_MissingFileReturnsError(t *testing.T) {
	if _, err := LoadQueuesYAML(filepath.Join(t.TempDir(), "missing.yaml"), validPoolConfig()); err == nil {
		t.Fatal("expected a missing file to return an error")
	}
}
