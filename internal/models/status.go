package models

import "time"

// RunStatus is the process-wide state of one job kind (sync or readme).
// It is owned and mutated only by the scheduler; everything else reads
// copies. Not persisted; resets to the zero state on process start.
type RunStatus struct {
	RunID          string     `json:"run_id,omitempty"`
	Running        bool       `json:"running"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	ProcessedCount int        `json:"processed_count"`
	Message        string     `json:"message"`
}

// ScheduledJob describes one timer-driven job for status queries.
type ScheduledJob struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NextRunAt time.Time `json:"next_run_at"`
}
