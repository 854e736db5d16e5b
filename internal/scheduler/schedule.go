package scheduler

import (
	"time"

	"github.com/autoweave/jobqueue/internal/job"
)

// Schedule is a periodic entry: a cron expression that, when due, enqueues
// Job into Queue.
type Schedule struct {
	// ID is a unique identifier for the schedule.
	ID string

	// Cron expression (standard 5-field: minute hour day month weekday)
	// Examples:
	//   "0 * * * *"     - Every hour at minute 0
	//   "*/15 * * * *"  - Every 15 minutes
	//   "0 9 * * 1"     - Every Monday at 9:00 AM
	//   "0 0 1 * *"     - First day of every month at midnight
	Cron string

	// Queue is the name of the queue this schedule enqueues into.
	Queue string

	// Job is the template (kind + payload + options) enqueued on each fire.
	Job job.Template

	// Timezone for cron evaluation (default: UTC). Must be a valid IANA
	// timezone (e.g., "America/New_York", "UTC").
	Timezone string

	// Enabled flag (allows disabling without removing).
	Enabled bool

	// Description for logging/monitoring.
	Description string
}

// ScheduleState is the runtime bookkeeping for a schedule, persisted in
// Redis so it survives process restarts.
type ScheduleState struct {
	ID           string
	LastRun      time.Time
	NextRun      time.Time
	RunCount     int64
	FailureCount int64
	LastError    string
	LastSuccess  time.Time
}
