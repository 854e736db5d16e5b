package job

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewJob_FillsDefaults(t *testing.T) {
	j := NewJob(KindSystemHealth, json.RawMessage(`{}`), Options{})

	if j.ID == "" {
		t.Error("expected a generated job ID")
	}
	if j.Priority != defaultPriority {
		t.Errorf("expected default priority %d, got %d", defaultPriority, j.Priority)
	}
	if j.MaxAttempts != defaultMaxAttempts {
		t.Errorf("expected default max attempts %d, got %d", defaultMaxAttempts, j.MaxAttempts)
	}
	if j.TimeoutMs != defaultTimeoutMs {
		t.Errorf("expected default timeout %d, got %d", defaultTimeoutMs, j.TimeoutMs)
	}
	if j.Backoff.Type != BackoffExponential {
		t.Errorf("expected default backoff exponential, got %s", j.Backoff.Type)
	}
	if j.Status != StatusWaiting {
		t.Errorf("expected status waiting, got %s", j.Status)
	}
	if j.Metadata.Source != SourceManual {
		t.Errorf("expected default source manual, got %s", j.Metadata.Source)
	}
	if j.Metadata.Version != CurrentVersion {
		t.Errorf("expected default version %s, got %s", CurrentVersion, j.Metadata.Version)
	}
}

func TestNewJob_DelayedStartsDelayed(t *testing.T) {
	j := NewJob(KindSystemHealth, json.RawMessage(`{}`), Options{DelayMs: 5000})
	if j.Status != StatusDelayed {
		t.Errorf("expected status delayed, got %s", j.Status)
	}
	if !j.DueAt.After(j.CreatedAt) {
		t.Error("expected due_at to be after created_at for a delayed job")
	}
}

func TestNewJob_ClampsPriority(t *testing.T) {
	j := NewJob(KindSystemHealth, json.RawMessage(`{}`), Options{Priority: 500})
	if j.Priority != maxPriority {
		t.Errorf("expected priority clamped to %d, got %d", maxPriority, j.Priority)
	}
}

func TestClampPriority(t *testing.T) {
	cases := map[int]int{-5: minPriority, 0: minPriority, 50: 50, 100: maxPriority, 1000: maxPriority}
	for in, want := range cases {
		if got := ClampPriority(in); got != want {
			t.Errorf("ClampPriority(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestUpdateStatus_RefusesPastTerminal(t *testing.T) {
	j := NewJob(KindSystemHealth, json.RawMessage(`{}`), Options{})
	j.UpdateStatus(StatusCompleted)
	j.UpdateStatus(StatusWaiting)
	if j.Status != StatusCompleted {
		t.Errorf("expected status to remain completed, got %s", j.Status)
	}
}

func TestUpdateStatusForce_OverridesTerminal(t *testing.T) {
	j := NewJob(KindSystemHealth, json.RawMessage(`{}`), Options{})
	j.UpdateStatus(StatusFailed)
	j.UpdateStatusForce(StatusDeadLettered)
	if j.Status != StatusDeadLettered {
		t.Errorf("expected forced transition to dead-lettered, got %s", j.Status)
	}
}

func TestValidateOptions_RejectsNegativeFields(t *testing.T) {
	cases := []Options{
		{DelayMs: -1},
		{MaxAttempts: -1},
		{TimeoutMs: -1},
		{Backoff: BackoffPolicy{Type: "bogus"}},
	}
	for _, opts := range cases {
		if err := ValidateOptions(opts); err == nil {
			t.Errorf("expected ValidateOptions to reject %+v", opts)
		}
	}
}

func TestValidateOptions_AcceptsZeroValue(t *testing.T) {
	if err := ValidateOptions(Options{}); err != nil {
		t.Errorf("expected zero-value options to validate, got %v", err)
	}
}

func TestBackoffPolicy_Delay(t *testing.T) {
	exp := BackoffPolicy{Type: BackoffExponential, BaseDelay: time.Second}
	if got := exp.Delay(1); got != time.Second {
		t.Errorf("attempt 1: expected 1s, got %v", got)
	}
	if got := exp.Delay(2); got != 2*time.Second {
		t.Errorf("attempt 2: expected 2s, got %v", got)
	}
	if got := exp.Delay(10); got != maxBackoffCeiling {
		t.Errorf("attempt 10: expected ceiling %v, got %v", maxBackoffCeiling, got)
	}

	fixed := BackoffPolicy{Type: BackoffFixed, BaseDelay: 5 * time.Second}
	if got := fixed.Delay(3); got != 5*time.Second {
		t.Errorf("fixed backoff: expected 5s regardless of attempt, got %v", got)
	}
}

func TestIsKnownKind(t *testing.T) {
	if !IsKnownKind(KindUSBAttach) {
		t.Error("expected usb.device.attach to be a known kind")
	}
	if IsKnownKind(JobKind("bogus.kind")) {
		t.Error("expected an unregistered kind to be unknown")
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	terminal := []JobStatus{StatusCompleted, StatusFailed, StatusCancelled, StatusDeadLettered}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	nonTerminal := []JobStatus{StatusWaiting, StatusDelayed, StatusActive}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}
