package models

import (
	"encoding/json"
	"time"
)

// Job tracks one processing attempt for an Upload (1:1).
type Job struct {
	ID           string          `json:"id"`
	UploadID     string          `json:"upload_id"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	SuccessCount int             `json:"success_count"`
	FailureCount int             `json:"failure_count"`
	Config       json.RawMessage `json:"config,omitempty"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Job statuses
const (
	JobStatusQueued     = "queued"
	JobStatusStarted    = "started"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusError      = "error"
)

// JobTerminal reports whether the job status is terminal.
func JobTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusError
}
