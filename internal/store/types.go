package store

import "time"

// Run is one recorded bulk install or upgrade.
type Run struct {
	ID                int64       `json:"id"`
	Operation         string      `json:"operation"` // "install" or "upgrade"
	StartedAt         time.Time   `json:"started_at"`
	DurationSeconds   float64     `json:"duration_seconds"`
	Success           bool        `json:"success"`
	DryRun            bool        `json:"dry_run"`
	Succeeded         int         `json:"succeeded"`
	Failed            int         `json:"failed"`
	Skipped           int         `json:"skipped"`
	Blocked           int         `json:"blocked"`
	RollbackScript    string      `json:"rollback_script,omitempty"`
	RollbackAttempted bool        `json:"rollback_attempted"`
	RollbackSucceeded bool        `json:"rollback_succeeded"`
	ErrorMessage      string      `json:"error_message,omitempty"`
	Results           []RunResult `json:"results,omitempty"`
}

// RunResult is the outcome of one tool within a run.
type RunResult struct {
	RunID           int64   `json:"run_id"`
	Tool            string  `json:"tool"`
	Manager         string  `json:"manager,omitempty"`
	Status          string  `json:"status"`
	Success         bool    `json:"success"`
	PreviousVersion string  `json:"previous_version,omitempty"`
	NewVersion      string  `json:"new_version,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

// ToolEvent is a RunResult together with when and how it ran.
type ToolEvent struct {
	RunResult
	Operation string    `json:"operation"`
	StartedAt time.Time `json:"started_at"`
}

// Reconciliation records one reconcile pass over a tool.
type Reconciliation struct {
	ID            int64     `json:"id"`
	Tool          string    `json:"tool"`
	Mode          string    `json:"mode"`
	Action        string    `json:"action"`
	Installations int       `json:"installations"`
	PreferredPath string    `json:"preferred_path,omitempty"`
	ActivePath    string    `json:"active_path,omitempty"`
	Success       bool      `json:"success"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
