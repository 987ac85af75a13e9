package domain

import (
	"fmt"
	"time"
)

type WorkflowStatus string

const (
	StatusOrganizerSent     WorkflowStatus = "organizer_sent"
	StatusDocumentsPending  WorkflowStatus = "documents_pending"
	StatusDocumentsReceived WorkflowStatus = "documents_received"
	StatusInPreparation     WorkflowStatus = "in_preparation"
	StatusReadyForReview    WorkflowStatus = "ready_for_review"
	StatusClientReview      WorkflowStatus = "client_review"
	StatusReadyToFile       WorkflowStatus = "ready_to_file"
	StatusFiled             WorkflowStatus = "filed"
	StatusCompleted         WorkflowStatus = "completed"
)

// lifecycle is the linear status chain; transitions move one step at a time.
var lifecycle = []WorkflowStatus{
	StatusOrganizerSent,
	StatusDocumentsPending,
	StatusDocumentsReceived,
	StatusInPreparation,
	StatusReadyForReview,
	StatusClientReview,
	StatusReadyToFile,
	StatusFiled,
	StatusCompleted,
}

func statusIndex(s WorkflowStatus) int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

func ValidStatus(s WorkflowStatus) bool {
	return statusIndex(s) >= 0
}

// CanTransition reports whether from->to is a legal lifecycle move: the next
// state in the chain, or the single permitted reopen (client_review back to
// in_preparation when the client rejects the draft).
func CanTransition(from, to WorkflowStatus) bool {
	fi, ti := statusIndex(from), statusIndex(to)
	if fi < 0 || ti < 0 {
		return false
	}
	if ti == fi+1 {
		return true
	}
	return from == StatusClientReview && to == StatusInPreparation
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PriorityForDeadline derives the coarse bucket from days remaining.
func PriorityForDeadline(daysToDeadline int) Priority {
	switch {
	case daysToDeadline <= 3:
		return PriorityUrgent
	case daysToDeadline <= 7:
		return PriorityHigh
	case daysToDeadline <= 14:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

type ClientType string

const (
	ClientIndividual ClientType = "individual"
	ClientBusiness   ClientType = "business"
)

type DeadlineType string

const (
	DeadlineStandard  DeadlineType = "standard"
	DeadlineExtension DeadlineType = "extension"
)

type ChecklistItem struct {
	Item        string     `json:"item"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type TimeTracking struct {
	EstimatedHours float64 `json:"estimated_hours"`
	ActualHours    float64 `json:"actual_hours"`
	BillableHours  float64 `json:"billable_hours"`
}

type QualityControl struct {
	ReviewPassed bool   `json:"review_passed"`
	ReviewedBy   string `json:"reviewed_by,omitempty"`
}

type StatusChange struct {
	From  WorkflowStatus `json:"from"`
	To    WorkflowStatus `json:"to"`
	Actor string         `json:"actor,omitempty"`
	At    time.Time      `json:"at"`
}

type AssignmentChange struct {
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

type Workflow struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	ClientID     string         `json:"client_id"`
	ClientType   ClientType     `json:"client_type"`
	TaxYear      int            `json:"tax_year"`
	Status       WorkflowStatus `json:"status"`
	Priority     Priority       `json:"priority"`
	// PriorityOverride pins the bucket regardless of the derived value; nil
	// means the bucket always tracks the deadline.
	PriorityOverride    *Priority          `json:"priority_override,omitempty"`
	DeadlineType        DeadlineType       `json:"deadline_type"`
	DeadlineDate        time.Time          `json:"deadline_date"`
	AssignedWorker      string             `json:"assigned_worker,omitempty"`
	Documents           []Document         `json:"documents"`
	Checklist           []ChecklistItem    `json:"checklist,omitempty"`
	TimeTracking        TimeTracking       `json:"time_tracking"`
	QualityControl      QualityControl     `json:"quality_control"`
	EstimatedCompletion *time.Time         `json:"estimated_completion,omitempty"`
	StatusHistory       []StatusChange     `json:"status_history,omitempty"`
	AssignmentHistory   []AssignmentChange `json:"assignment_history,omitempty"`
	Archived            bool               `json:"archived,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// EffectivePriority returns the override when set, otherwise the bucket
// derived from the deadline at the given instant.
func (w *Workflow) EffectivePriority(now time.Time) Priority {
	if w.PriorityOverride != nil {
		return *w.PriorityOverride
	}
	return PriorityForDeadline(DaysToDeadline(w.DeadlineDate, now))
}

// DaysToDeadline counts whole calendar days from now until the deadline;
// past deadlines yield zero or negative values.
func DaysToDeadline(deadline, now time.Time) int {
	return int(deadline.Sub(now).Hours() / 24)
}

// StandardDeadline is April 15 of the year after the tax year.
func StandardDeadline(taxYear int) time.Time {
	return time.Date(taxYear+1, time.April, 15, 0, 0, 0, 0, time.UTC)
}

// ExtensionDeadline is October 15 of the year after the tax year.
func ExtensionDeadline(taxYear int) time.Time {
	return time.Date(taxYear+1, time.October, 15, 0, 0, 0, 0, time.UTC)
}

// DeadlineFor resolves the filing deadline for a workflow's deadline type.
func DeadlineFor(taxYear int, dt DeadlineType) (time.Time, error) {
	switch dt {
	case DeadlineStandard, "":
		return StandardDeadline(taxYear), nil
	case DeadlineExtension:
		return ExtensionDeadline(taxYear), nil
	default:
		return time.Time{}, WrapError(ErrValidation, "resolve deadline", fmt.Errorf("unknown deadline type %q", dt))
	}
}

// RequiredDocumentTypes is the deterministic required-document set for a
// workflow given its client profile. Tax-year dependence is reserved for
// years where the form set changed; the current sets are year-independent.
func RequiredDocumentTypes(ct ClientType, taxYear int) []DocumentType {
	switch ct {
	case ClientBusiness:
		return []DocumentType{Doc1099NEC, DocBalanceSheet, DocProfitLoss}
	default:
		return []DocumentType{DocW2, Doc1099INT}
	}
}

// HasDocumentType reports whether at least one owned document carries the type.
func (w *Workflow) HasDocumentType(t DocumentType) bool {
	for i := range w.Documents {
		if w.Documents[i].Type == t {
			return true
		}
	}
	return false
}

// MissingDocumentTypes returns the required types with no uploaded document.
func (w *Workflow) MissingDocumentTypes() []DocumentType {
	var missing []DocumentType
	for _, t := range RequiredDocumentTypes(w.ClientType, w.TaxYear) {
		if !w.HasDocumentType(t) {
			missing = append(missing, t)
		}
	}
	return missing
}
