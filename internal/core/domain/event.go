package domain

import "time"

type EventKind string

const (
	EventDocumentUploaded    EventKind = "document_uploaded"
	EventStatusChange        EventKind = "status_change"
	EventTimeBased           EventKind = "time_based"
	EventDeadlineApproaching EventKind = "deadline_approaching"
)

// Event is the unit of input to the rule engine. Context carries the
// event-specific fields rules can condition on (status, document_type,
// days_to_deadline, ...). Delivery is at-least-once; consumers must treat
// repeated events as convergent.
type Event struct {
	Kind       EventKind      `json:"kind"`
	OrgID      string         `json:"org_id"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	At         time.Time      `json:"at"`
}
