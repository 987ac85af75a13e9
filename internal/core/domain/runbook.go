package domain

import "time"

type RunbookKind string

const (
	RunbookOperational      RunbookKind = "operational"
	RunbookDisasterRecovery RunbookKind = "disaster_recovery"
)

// RunbookStep is part of an immutable template. Verification names the
// post-condition check bound in the verifier registry; Escalation, when
// non-empty, names the failure class that triggers escalation.
type RunbookStep struct {
	Step          int           `json:"step" yaml:"step"`
	Title         string        `json:"title" yaml:"title"`
	Action        string        `json:"action" yaml:"action"`
	Responsible   string        `json:"responsible" yaml:"responsible"`
	EstimatedTime time.Duration `json:"estimated_time" yaml:"estimated_time"`
	Verification  string        `json:"verification,omitempty" yaml:"verification,omitempty"`
	Escalation    string        `json:"escalation,omitempty" yaml:"escalation,omitempty"`
}

// Runbook covers both operational runbooks and disaster-recovery plans;
// RTO/RPO and Critical apply to the disaster_recovery kind. Templates are
// never mutated by execution.
type Runbook struct {
	ID       string        `json:"id" yaml:"id"`
	OrgID    string        `json:"org_id" yaml:"org_id"`
	Name     string        `json:"name" yaml:"name"`
	Kind     RunbookKind   `json:"kind" yaml:"kind"`
	Critical bool          `json:"critical,omitempty" yaml:"critical,omitempty"`
	RTO      time.Duration `json:"rto,omitempty" yaml:"rto,omitempty"`
	RPO      time.Duration `json:"rpo,omitempty" yaml:"rpo,omitempty"`
	Steps    []RunbookStep `json:"steps" yaml:"steps"`
}

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

type StepResult struct {
	Step        int        `json:"step"`
	Status      StepStatus `json:"status"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	SoftWarning bool       `json:"soft_warning,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// RunbookExecution is the mutable per-invocation record tracking step
// progress against a template. Cancellation is cooperative: executors check
// the flag between steps.
type RunbookExecution struct {
	ID         string          `json:"id"`
	RunbookID  string          `json:"runbook_id"`
	OrgID      string          `json:"org_id"`
	Reason     string          `json:"reason,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	DryRun     bool            `json:"dry_run,omitempty"`
	Status     ExecutionStatus `json:"status"`
	Steps      []StepResult    `json:"steps"`
	IncidentID string          `json:"incident_id,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

type StepDelta struct {
	Step      int           `json:"step"`
	Estimated time.Duration `json:"estimated"`
	Actual    time.Duration `json:"actual"`
}

// DRTestResult is the persisted outcome of one dry-run disaster-recovery
// test, kept per plan for trend tracking.
type DRTestResult struct {
	PlanID          string      `json:"plan_id"`
	ExecutionID     string      `json:"execution_id"`
	RunAt           time.Time   `json:"run_at"`
	Passed          bool        `json:"passed"`
	StepDeltas      []StepDelta `json:"step_deltas"`
	Recommendations []string    `json:"recommendations,omitempty"`
}
