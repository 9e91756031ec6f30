package models

import "time"

// Record is one canonical business row produced from an Upload.
// Name, ProfileURL and Website come from the ingested payload;
// CompanySize, Industry and Revenue are filled by enrichment.
type Record struct {
	ID          string     `json:"id"`
	UploadID    string     `json:"upload_id"`
	RowIndex    int        `json:"row_index"`
	Name        string     `json:"name"`
	ProfileURL  string     `json:"profile_url"`
	Website     string     `json:"website"`
	CompanySize string     `json:"company_size"`
	Industry    string     `json:"industry"`
	Revenue     string     `json:"revenue"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Record statuses
const (
	RecordStatusPending    = "pending"
	RecordStatusProcessing = "processing"
	RecordStatusCompleted  = "completed"
	RecordStatusFailed     = "failed"
)
