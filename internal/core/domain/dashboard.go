package domain

import "time"

// QueueEntry is one row of the priority work queue: the continuous score
// orders the queue, the bucket is exposed for coarse filtering.
type QueueEntry struct {
	WorkflowID     string    `json:"workflow_id"`
	ClientID       string    `json:"client_id"`
	Score          float64   `json:"score"`
	Bucket         Priority  `json:"bucket"`
	DeadlineDate   time.Time `json:"deadline_date"`
	DaysToDeadline int       `json:"days_to_deadline"`
	AssignedWorker string    `json:"assigned_worker,omitempty"`
}

type WorkerLoad struct {
	Worker         string  `json:"worker"`
	Workflows      int     `json:"workflows"`
	EstimatedHours float64 `json:"estimated_hours"`
}

// Dashboard is the aggregate read model served to the query surface.
type Dashboard struct {
	OrgID           string                 `json:"org_id"`
	GeneratedAt     time.Time              `json:"generated_at"`
	StatusCounts    map[WorkflowStatus]int `json:"status_counts"`
	BucketCounts    map[Priority]int       `json:"bucket_counts"`
	WorkerLoads     []WorkerLoad           `json:"worker_loads"`
	OverdueCount    int                    `json:"overdue_count"`
	OpenIncidents   int                    `json:"open_incidents"`
	ActiveBulkJobs  int                    `json:"active_bulk_jobs"`
	UnackedAlerts   int                    `json:"unacked_alerts"`
	TopOfQueue      []QueueEntry           `json:"top_of_queue"`
}
