package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
)

// BulkOperation applies one job's operation to a single target workflow.
type BulkOperation func(ctx context.Context, job *domain.BulkProcessingJob, targetID string) error

// BulkProcessor runs batch operations with per-target failure isolation: one
// bad target increments the error count and the batch keeps going. The job
// record is the progress source of truth and is queryable mid-run.
type BulkProcessor struct {
	jobs      ports.JobRepository
	ops       map[domain.JobType]BulkOperation
	telemetry ports.Telemetry
	now       func() time.Time

	// synchronous processing is used by tests; production submits run in a
	// background goroutine.
	synchronous bool
}

func NewBulkProcessor(jobs ports.JobRepository, telemetry ports.Telemetry) *BulkProcessor {
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	return &BulkProcessor{
		jobs:      jobs,
		ops:       make(map[domain.JobType]BulkOperation),
		telemetry: telemetry,
		now:       time.Now,
	}
}

func (p *BulkProcessor) RegisterOperation(jobType domain.JobType, op BulkOperation) {
	p.ops[jobType] = op
}

func (p *BulkProcessor) Synchronous() *BulkProcessor {
	p.synchronous = true
	return p
}

func (p *BulkProcessor) WithClock(now func() time.Time) *BulkProcessor {
	p.now = now
	return p
}

// Submit records the job as queued and starts processing. The returned job
// reflects the queued state; poll Progress for updates.
func (p *BulkProcessor) Submit(ctx context.Context, orgID string, jobType domain.JobType, targetIDs []string, params map[string]string) (*domain.BulkProcessingJob, error) {
	if _, ok := p.ops[jobType]; !ok {
		return nil, domain.WrapError(domain.ErrValidation, "submit bulk job", fmt.Errorf("unknown job type %q", jobType))
	}
	if len(targetIDs) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "submit bulk job", fmt.Errorf("no targets"))
	}

	job := &domain.BulkProcessingJob{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Type:      jobType,
		Params:    params,
		Status:    domain.JobQueued,
		TargetIDs: targetIDs,
		Progress:  domain.JobProgress{Total: len(targetIDs)},
		CreatedAt: p.now().UTC(),
	}
	if err := p.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if p.synchronous {
		p.Process(ctx, job.ID)
	} else {
		go p.Process(context.WithoutCancel(ctx), job.ID)
	}
	return job, nil
}

func (p *BulkProcessor) Progress(ctx context.Context, jobID string) (*domain.BulkProcessingJob, error) {
	return p.jobs.Get(ctx, jobID)
}

// Process drives a queued job to a terminal state. The job fails outright
// only when the processor itself cannot run; target-level errors are counted
// and the job still completes.
func (p *BulkProcessor) Process(ctx context.Context, jobID string) {
	startedAt := p.now().UTC()
	job, err := p.jobs.Mutate(ctx, jobID, func(job *domain.BulkProcessingJob) error {
		if job.Status != domain.JobQueued {
			return domain.WrapError(domain.ErrValidation, "start bulk job",
				fmt.Errorf("job %s already %s", job.ID, job.Status))
		}
		job.Status = domain.JobProcessing
		job.StartedAt = &startedAt
		return nil
	})
	if err != nil {
		slog.Error("bulk_job_start_failed", "job_id", jobID, "error", err)
		// Already-started jobs are left alone; anything else is a processor
		// failure.
		if !domain.IsKind(err, domain.ErrValidation) {
			p.fail(ctx, jobID, err)
		}
		return
	}

	op := p.ops[job.Type]
	if op == nil {
		p.fail(ctx, jobID, fmt.Errorf("no operation for job type %q", job.Type))
		return
	}

	for _, targetID := range job.TargetIDs {
		itemErr := op(ctx, job, targetID)
		if itemErr != nil {
			slog.Warn("bulk_job_item_failed", "job_id", job.ID, "target_id", targetID, "error", itemErr)
		}
		if _, err := p.jobs.Mutate(ctx, jobID, func(job *domain.BulkProcessingJob) error {
			job.Progress.Processed++
			if itemErr != nil {
				job.Progress.Errors++
				job.LastError = itemErr.Error()
			}
			return nil
		}); err != nil {
			slog.Error("bulk_job_progress_failed", "job_id", job.ID, "error", err)
			p.fail(ctx, jobID, err)
			return
		}
		p.telemetry.Record("bulk_job_items", 1, map[string]string{"org": job.OrgID})
	}

	finishedAt := p.now().UTC()
	if _, err := p.jobs.Mutate(ctx, jobID, func(job *domain.BulkProcessingJob) error {
		job.Status = domain.JobCompleted
		job.FinishedAt = &finishedAt
		return nil
	}); err != nil {
		slog.Error("bulk_job_finish_failed", "job_id", jobID, "error", err)
	}
}

// fail marks the job failed; a job that cannot even be marked is only logged.
func (p *BulkProcessor) fail(ctx context.Context, jobID string, cause error) {
	finishedAt := p.now().UTC()
	if _, err := p.jobs.Mutate(ctx, jobID, func(job *domain.BulkProcessingJob) error {
		if job.Status == domain.JobCompleted || job.Status == domain.JobFailed {
			return nil
		}
		job.Status = domain.JobFailed
		job.LastError = cause.Error()
		job.FinishedAt = &finishedAt
		return nil
	}); err != nil {
		slog.Error("bulk_job_fail_mark_failed", "job_id", jobID, "error", err)
	}
}
