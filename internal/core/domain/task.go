package domain

import "time"

type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskCompleted TaskStatus = "completed"
)

// Task is a follow-up item created by the rule engine's create_task action
// or by runbook escalation.
type Task struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"org_id"`
	WorkflowID string     `json:"workflow_id,omitempty"`
	Title      string     `json:"title"`
	Details    string     `json:"details,omitempty"`
	Assignee   string     `json:"assignee,omitempty"`
	Status     TaskStatus `json:"status"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is an operator-visible notice raised manually or by the urgent sweep.
type Alert struct {
	ID           string        `json:"id"`
	OrgID        string        `json:"org_id"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	IncidentID   string        `json:"incident_id,omitempty"`
	Acknowledged bool          `json:"acknowledged"`
	CreatedAt    time.Time     `json:"created_at"`
}
