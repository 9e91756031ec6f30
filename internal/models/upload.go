package models

import "time"

// Upload is the durable record of one submitted payload.
type Upload struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	Submitter   string     `json:"submitter"`
	Columns     []string   `json:"columns"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	RowCount    int        `json:"row_count"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Upload statuses
const (
	UploadStatusPending    = "pending"
	UploadStatusProcessing = "processing"
	UploadStatusCompleted  = "completed"
	UploadStatusFailed     = "failed"
)

// UploadTerminal reports whether the upload status is terminal.
func UploadTerminal(status string) bool {
	return status == UploadStatusCompleted || status == UploadStatusFailed
}
