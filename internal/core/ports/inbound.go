package ports

import (
	"context"

	"github.com/taxops/season-orchestrator/internal/core/domain"
)

// WorkflowLifecycle is the inbound contract for workflow mutation.
type WorkflowLifecycle interface {
	CreateWorkflow(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error)
	UpdateStatus(ctx context.Context, workflowID string, newStatus domain.WorkflowStatus, metadata map[string]string) (*domain.Workflow, error)
	ProcessDocumentUpload(ctx context.Context, workflowID string, doc domain.Document) (*domain.Workflow, error)
}

// WorkScheduler exposes the priority queue and rebalancing.
type WorkScheduler interface {
	PriorityQueue(ctx context.Context, orgID string, limit int) ([]domain.QueueEntry, error)
	RebalanceWorkloads(ctx context.Context, orgID string) ([]domain.AssignmentChange, error)
}

// BulkSubmitter accepts batch operations and reports their progress.
type BulkSubmitter interface {
	Submit(ctx context.Context, orgID string, jobType domain.JobType, targetIDs []string, params map[string]string) (*domain.BulkProcessingJob, error)
	Progress(ctx context.Context, jobID string) (*domain.BulkProcessingJob, error)
}

// ContinuityCoordinator drives incidents, runbooks and DR plans.
type ContinuityCoordinator interface {
	ExecuteRunbook(ctx context.Context, runbookID, reason, actor string) (executionID string, err error)
	ActivateDisasterRecoveryPlan(ctx context.Context, planID, actor string) (executionID string, err error)
	RunDisasterRecoveryTest(ctx context.Context, planID string) (*domain.DRTestResult, error)
	Execution(ctx context.Context, executionID string) (*domain.RunbookExecution, error)
	CancelExecution(ctx context.Context, executionID string) error
}

// DashboardReader serves the aggregate query surface.
type DashboardReader interface {
	GetDashboard(ctx context.Context, orgID string) (*domain.Dashboard, error)
}
