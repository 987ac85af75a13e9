package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
)

// RegisterDefaultBulkOperations binds the built-in job types. Like rule
// actions, every operation converges under replay: re-sending a reminder is
// harmless, re-setting a status or worker is a no-op. Notification sends run
// under notifyTimeout so a hung broker cannot stall the batch loop.
func RegisterDefaultBulkOperations(
	bulk *BulkProcessor,
	workflows *WorkflowService,
	scheduler *Scheduler,
	notifier ports.Notifier,
	notifyTimeout time.Duration,
) {
	if notifyTimeout <= 0 {
		notifyTimeout = 15 * time.Second
	}
	bulk.RegisterOperation(domain.JobReminder, func(ctx context.Context, job *domain.BulkProcessingJob, targetID string) error {
		if notifier == nil {
			return nil
		}
		wf, err := workflows.Get(ctx, targetID)
		if err != nil {
			return err
		}
		template := job.Params["template"]
		if template == "" {
			template = "documents_reminder"
		}
		payload := map[string]string{
			"workflow_id": wf.ID,
			"missing":     fmt.Sprintf("%v", wf.MissingDocumentTypes()),
			"deadline":    wf.DeadlineDate.Format("2006-01-02"),
		}
		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		return notifier.Send(sendCtx, template, wf.ClientID, payload)
	})

	bulk.RegisterOperation(domain.JobReassignment, func(ctx context.Context, job *domain.BulkProcessingJob, targetID string) error {
		worker := job.Params["worker"]
		if worker == "" {
			return domain.WrapError(domain.ErrValidation, "bulk reassignment", fmt.Errorf("missing worker param"))
		}
		_, err := scheduler.Reassign(ctx, targetID, worker, "bulk")
		return err
	})

	bulk.RegisterOperation(domain.JobStatusChange, func(ctx context.Context, job *domain.BulkProcessingJob, targetID string) error {
		status := domain.WorkflowStatus(job.Params["status"])
		if status == "" {
			return domain.WrapError(domain.ErrValidation, "bulk status change", fmt.Errorf("missing status param"))
		}
		_, err := workflows.UpdateStatus(ctx, targetID, status, map[string]string{"actor": "bulk_job"})
		return err
	})
}
