package ports

import (
	"context"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
)

// Record is a raw store value with the version backing optimistic
// compare-and-set; the store itself has no transactions.
type Record struct {
	Value   []byte
	Version uint64
}

// StateStore is the durable key-value system of record. Get returns
// domain.ErrNotFound for absent keys; SetIfVersion returns domain.ErrConflict
// on a version mismatch. Member sets back the per-entity indexes.
type StateStore interface {
	Get(ctx context.Context, key string) (Record, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetIfVersion(ctx context.Context, key string, value []byte, version uint64, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	AddMember(ctx context.Context, key, member string) error
	RemoveMember(ctx context.Context, key, member string) error
	Members(ctx context.Context, key string) ([]string, error)
}

// Notifier dispatches a templated message through the external channel.
type Notifier interface {
	Send(ctx context.Context, template, recipient string, payload map[string]string) error
}

// Classifier resolves a document type for an uploaded blob.
type Classifier interface {
	Classify(ctx context.Context, blobRef string) (domain.DocumentType, error)
}

// Telemetry records a metric sample with tags.
type Telemetry interface {
	Record(metric string, value float64, tags map[string]string)
}

// StepEffect performs a runbook step's action. Dry-run executions must not
// touch real infrastructure.
type StepEffect interface {
	Run(ctx context.Context, step domain.RunbookStep, dryRun bool) (output string, err error)
}

// StepVerifier checks a step's post-condition; a failed check returns an
// error wrapping domain.ErrVerification.
type StepVerifier interface {
	Verify(ctx context.Context, step domain.RunbookStep, output string) error
}

// WorkflowRepository persists workflows against the state store. Mutate
// performs a read-modify-write under the per-record concurrency contract
// (exclusive key lock plus versioned compare-and-set, bounded retries).
type WorkflowRepository interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	Get(ctx context.Context, id string) (*domain.Workflow, error)
	Mutate(ctx context.Context, id string, fn func(*domain.Workflow) error) (*domain.Workflow, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Workflow, error)
}

type IncidentRepository interface {
	Create(ctx context.Context, inc *domain.Incident) error
	Get(ctx context.Context, id string) (*domain.Incident, error)
	Mutate(ctx context.Context, id string, fn func(*domain.Incident) error) (*domain.Incident, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Incident, error)
}

type JobRepository interface {
	Create(ctx context.Context, job *domain.BulkProcessingJob) error
	Get(ctx context.Context, id string) (*domain.BulkProcessingJob, error)
	Mutate(ctx context.Context, id string, fn func(*domain.BulkProcessingJob) error) (*domain.BulkProcessingJob, error)
}

// RunbookRepository stores templates, executions and DR test results.
// Templates are written once and never mutated.
type RunbookRepository interface {
	SaveTemplate(ctx context.Context, rb *domain.Runbook) error
	GetTemplate(ctx context.Context, id string) (*domain.Runbook, error)
	CreateExecution(ctx context.Context, ex *domain.RunbookExecution) error
	GetExecution(ctx context.Context, id string) (*domain.RunbookExecution, error)
	MutateExecution(ctx context.Context, id string, fn func(*domain.RunbookExecution) error) (*domain.RunbookExecution, error)
	AppendTestResult(ctx context.Context, res *domain.DRTestResult) error
	ListTestResults(ctx context.Context, planID string) ([]*domain.DRTestResult, error)
}

type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	ListByOrg(ctx context.Context, orgID string) ([]domain.Task, error)
}

type AlertRepository interface {
	Create(ctx context.Context, alert *domain.Alert) error
	ListByOrg(ctx context.Context, orgID string) ([]domain.Alert, error)
}
