package metrics

import (
	"testing"
	"time"

	"github.com/autoweave/jobqueue/internal/job"
)

func TestCollector_RecordJobCompleted_UpdatesCountersAndDuration(t *testing.T) {
	c := NewCollector()
	c.RecordJobStarted(job.KindUSBAttach)
	c.RecordJobCompleted(100 * time.Millisecond)

	m := c.GetMetrics()
	if m.TotalJobsProcessed != 1 {
		t.Errorf("expected 1 processed, got %d", m.TotalJobsProcessed)
	}
	if m.TotalJobsCompleted != 1 {
		t.Errorf("expected 1 completed, got %d", m.TotalJobsCompleted)
	}
	if m.AvgJobDuration != 100*time.Millisecond {
		t.Errorf("expected avg duration 100ms, got %v", m.AvgJobDuration)
	}
	if m.ErrorRate != 0 {
		t.Errorf("expected 0%% error rate for an all-success collector, got %v", m.ErrorRate)
	}
}

func TestCollector_RecordJobFailed_RaisesErrorRate(t *testing.T) {
	c := NewCollector()
	c.RecordJobStarted(job.KindUSBAttach)
	c.RecordJobCompleted(50 * time.Millisecond)
	c.RecordJobStarted(job.KindUSBAttach)
	c.RecordJobFailed(50 * time.Millisecond)

	m := c.GetMetrics()
	if m.ErrorRate != 50 {
		t.Errorf("expected 50%% error rate for 1 failure out of 2 operations, got %v", m.ErrorRate)
	}
}

func TestCollector_RecordWorkerActivity_ComputesUtilization(t *testing.T) {
	c := NewCollector()
	c.RecordWorkerActivity(3, 10)

	m := c.GetMetrics()
	if m.WorkerUtilization != 30 {
		t.Errorf("expected 30%% worker utilization, got %v", m.WorkerUtilization)
	}
}

func TestCollector_Reset_ClearsCounters(t *testing.T) {
	c := NewCollector()
	c.RecordJobStarted(job.KindUSBAttach)
	c.RecordJobCompleted(time.Second)
	c.RecordQueueDepth(5, 2, 1)

	c.Reset()

	m := c.GetMetrics()
	if m.TotalJobsProcessed != 0 || m.TotalJobsCompleted != 0 || m.QueueDepth != 0 {
		t.Errorf("expected all counters cleared after reset, got %+v", m)
	}
}

func TestForQueue_ReturnsSameCollectorForSameName(t *testing.T) {
	r := NewRegistry()
	a := r.ForQueue("metrics-test-queue-a")
	b := r.ForQueue("metrics-test-queue-a")
	if a != b {
		t.Fatal("expected ForQueue to return the same collector instance for the same queue name")
	}
	a.Reset()
}
