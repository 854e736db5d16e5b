// Package job defines the job data model: typed kinds, payloads, metadata,
// execution parameters, and runtime state shared by every other component.
package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current lifecycle state of a job.
type JobStatus string

const (
	StatusWaiting      JobStatus = "waiting"
	StatusDelayed      JobStatus = "delayed"
	StatusActive       JobStatus = "active"
	StatusCompleted    JobStatus = "completed"
	StatusFailed       JobStatus = "failed"
	StatusCancelled    JobStatus = "cancelled"
	StatusDeadLettered JobStatus = "dead-lettered"
)

// IsTerminal reports whether the status is one a job never leaves.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusDeadLettered:
		return true
	default:
		return false
	}
}

// JobKind is the closed set of job categories the core understands. Unlike
// the teacher's free-form Name string, a JobKind outside kindSchemas is
// unrepresentable: validation rejects it before a Job is ever constructed.
type JobKind string

const (
	KindUSBAttach JobKind = "usb.device.attach"
	KindUSBDetach JobKind = "usb.device.detach"
	KindUSBScan   JobKind = "usb.device.scan"

	KindPluginLoad     JobKind = "plugin.load"
	KindPluginUnload   JobKind = "plugin.unload"
	KindPluginExecute  JobKind = "plugin.execute"
	KindPluginValidate JobKind = "plugin.validate"
	KindPluginReload   JobKind = "plugin.reload"

	KindLLMBatch      JobKind = "llm.batch"
	KindLLMEmbeddings JobKind = "llm.embeddings"
	KindLLMCompletion JobKind = "llm.completion"

	KindSystemMaintenance JobKind = "system.maintenance"
	KindSystemCleanup     JobKind = "system.cleanup"
	KindSystemHealth      JobKind = "system.health"
	KindSystemBackup      JobKind = "system.backup"

	KindMemoryVectorize JobKind = "memory.vectorize"
	KindMemoryIndex     JobKind = "memory.index"
	KindMemorySearch    JobKind = "memory.search"
	KindMemoryCleanup   JobKind = "memory.cleanup"
)

// knownKinds is the closed enumeration. A kind absent from this set fails
// validation at submission time rather than at dispatch time.
var knownKinds = map[JobKind]bool{
	KindUSBAttach: true, KindUSBDetach: true, KindUSBScan: true,
	KindPluginLoad: true, KindPluginUnload: true, KindPluginExecute: true,
	KindPluginValidate: true, KindPluginReload: true,
	KindLLMBatch: true, KindLLMEmbeddings: true, KindLLMCompletion: true,
	KindSystemMaintenance: true, KindSystemCleanup: true, KindSystemHealth: true, KindSystemBackup: true,
	KindMemoryVectorize: true, KindMemoryIndex: true, KindMemorySearch: true, KindMemoryCleanup: true,
}

// IsKnownKind reports whether kind is a member of the closed enumeration.
func IsKnownKind(kind JobKind) bool {
	return knownKinds[kind]
}

// Source identifies what subsystem submitted a job.
type Source string

const (
	SourceUSBDaemon    Source = "usb-daemon"
	SourcePluginLoader Source = "plugin-loader"
	SourceManual       Source = "manual"
	SourceScheduled    Source = "scheduled"
	SourceWebhook      Source = "webhook"
)

// Metadata carries submission provenance and optional correlation IDs.
type Metadata struct {
	Source        Source    `json:"source"`
	SubmittedAt   time.Time `json:"submitted_at"`
	Version       string    `json:"version"`
	TenantID      string    `json:"tenant_id,omitempty"`
	PluginID      string    `json:"plugin_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	TraceID       string    `json:"trace_id,omitempty"`
	SpanID        string    `json:"span_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// CurrentVersion is the metadata.version stamped onto new jobs. Nothing
// checks it on read: a stored record is decoded whatever its version.
const CurrentVersion = "1.0.0"

// BackoffType selects how retry delay is computed between attempts.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// BackoffPolicy configures the delay inserted between failing attempts.
type BackoffPolicy struct {
	Type      BackoffType   `json:"type"`
	BaseDelay time.Duration `json:"base_delay"`
}

// DefaultBackoff matches spec default: exponential with a 1s base.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Type: BackoffExponential, BaseDelay: time.Second}
}

// maxBackoffCeiling caps exponential backoff growth, per spec.md §4.3.
const maxBackoffCeiling = 30 * time.Second

// Delay returns the backoff delay before the given 1-indexed attempt number.
func (b BackoffPolicy) Delay(attempt int) time.Duration {
	base := b.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	switch b.Type {
	case BackoffFixed:
		return base
	case BackoffExponential:
		fallthrough
	default:
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= maxBackoffCeiling {
				return maxBackoffCeiling
			}
		}
		if d > maxBackoffCeiling {
			return maxBackoffCeiling
		}
		return d
	}
}

// Progress reports completion percentage plus optional structured detail.
type Progress struct {
	Percent int             `json:"percent"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

// JobError records the terminal (or most recent) failure for a job. Per
// spec.md §7, previous attempts are summarized, not retained verbatim.
type JobError struct {
	Message      string `json:"message"`
	Type         string `json:"type,omitempty"`
	Attempt      int    `json:"attempt"`
	TraceID      string `json:"trace_id,omitempty"`
	PriorSummary string `json:"prior_summary,omitempty"`
}

// LogEntry is a single structured log line attached to a job's history.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Job is a single unit of work. Canonical state lives in Redis; this type
// is the in-process (de)serialization shape of a Q:job:<id> record.
type Job struct {
	ID       string          `json:"id"`
	Kind     JobKind         `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	Metadata Metadata        `json:"metadata"`

	Priority    int           `json:"priority"`
	DelayMs     int64         `json:"delay_ms"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	Backoff     BackoffPolicy `json:"backoff"`
	TimeoutMs   int64         `json:"timeout_ms"`

	Status   JobStatus       `json:"status"`
	Progress Progress        `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *JobError       `json:"error,omitempty"`

	// ClaimToken identifies the worker that currently owns this job,
	// minted fresh on every Claim/ReclaimStalled. Complete/Fail must
	// present the token they were handed; a mismatch means a stale
	// worker is reporting on a job someone else now owns.
	ClaimToken string `json:"claim_token,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	Logs []LogEntry `json:"logs,omitempty"`

	// DueAt is the wall-clock time a delayed job becomes eligible to run.
	// Zero for jobs that were never delayed.
	DueAt time.Time `json:"due_at,omitempty"`
}

// Options configures a single Enqueue call, overriding queue defaults.
type Options struct {
	Priority    int
	DelayMs     int64
	MaxAttempts int
	Backoff     BackoffPolicy
	TimeoutMs   int64
	Metadata    Metadata
}

const (
	minPriority        = 0
	maxPriority        = 100
	defaultPriority    = 5
	defaultMaxAttempts = 3
	defaultTimeoutMs   = 30000
)

// ClampPriority clamps p into [0,100] per spec.md §3.
func ClampPriority(p int) int {
	if p < minPriority {
		return minPriority
	}
	if p > maxPriority {
		return maxPriority
	}
	return p
}

// NewJob constructs a Job with defaults filled in and a fresh UUID, ready
// for validation and acceptance by a Queue. It does not validate the
// payload against the kind's schema; callers go through Queue.Enqueue for
// that.
func NewJob(kind JobKind, payload json.RawMessage, opts Options) *Job {
	now := time.Now()

	priority := opts.Priority
	if priority == 0 {
		priority = defaultPriority
	}
	priority = ClampPriority(priority)

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	backoff := opts.Backoff
	if backoff.Type == "" {
		backoff = DefaultBackoff()
	}

	timeout := opts.TimeoutMs
	if timeout <= 0 {
		timeout = defaultTimeoutMs
	}

	meta := opts.Metadata
	if meta.Source == "" {
		meta.Source = SourceManual
	}
	if meta.Version == "" {
		meta.Version = CurrentVersion
	}
	meta.SubmittedAt = now

	status := StatusWaiting
	var dueAt time.Time
	if opts.DelayMs > 0 {
		status = StatusDelayed
		dueAt = now.Add(time.Duration(opts.DelayMs) * time.Millisecond)
	}

	return &Job{
		ID:          uuid.New().String(),
		Kind:        kind,
		Payload:     payload,
		Metadata:    meta,
		Priority:    priority,
		DelayMs:     opts.DelayMs,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		TimeoutMs:   timeout,
		Status:      status,
		Progress:    Progress{Percent: 0},
		CreatedAt:   now,
		DueAt:       dueAt,
	}
}

// UpdateStatus transitions the job to a new status. Terminal statuses are
// refused once already set; callers (Queue) are responsible for not
// calling this past a terminal state except for retention bookkeeping.
func (j *Job) UpdateStatus(status JobStatus) {
	if j.Status.IsTerminal() {
		return
	}
	j.Status = status
}

// UpdateStatusForce transitions the job regardless of whether the current
// status is terminal. Reserved for the failed->dead-lettered bookkeeping
// transition, the one case where a terminal job legitimately changes
// status again.
func (j *Job) UpdateStatusForce(status JobStatus) {
	j.Status = status
}

// ValidateOptions checks the subset of Options a caller may override
// before NewJob fills in defaults. Out-of-range numeric fields are
// clamped elsewhere; this only rejects structurally invalid input.
func ValidateOptions(opts Options) error {
	if opts.DelayMs < 0 {
		return fmt.Errorf("delay must be non-negative, got %d", opts.DelayMs)
	}
	if opts.MaxAttempts < 0 {
		return fmt.Errorf("maxAttempts must be >= 0, got %d", opts.MaxAttempts)
	}
	if opts.TimeoutMs < 0 {
		return fmt.Errorf("timeoutMs must be non-negative, got %d", opts.TimeoutMs)
	}
	if opts.Backoff.Type != "" && opts.Backoff.Type != BackoffFixed && opts.Backoff.Type != BackoffExponential {
		return fmt.Errorf("invalid backoff type: %s", opts.Backoff.Type)
	}
	return nil
}
