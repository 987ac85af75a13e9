package domain

import "time"

type JobType string

const (
	JobReminder     JobType = "reminder"
	JobReassignment JobType = "reassignment"
	JobStatusChange JobType = "status_change"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

type JobProgress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// BulkProcessingJob applies one operation to each target workflow
// independently. Terminal at completed (every target attempted) or failed
// (the processor itself could not run).
type BulkProcessingJob struct {
	ID         string            `json:"id"`
	OrgID      string            `json:"org_id"`
	Type       JobType           `json:"type"`
	Params     map[string]string `json:"params,omitempty"`
	Status     JobStatus         `json:"status"`
	TargetIDs  []string          `json:"target_ids"`
	Progress   JobProgress       `json:"progress"`
	LastError  string            `json:"last_error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}
