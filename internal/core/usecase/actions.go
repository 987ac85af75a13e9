package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
)

// RegisterDefaultActions binds the built-in action kinds to their handlers.
// Every handler is written to converge under event replay: set-status not
// advance-status, assign-if-unassigned, open-incident-if-none. A nil clock
// falls back to wall time.
func RegisterDefaultActions(
	engine *RuleEngine,
	workflows *WorkflowService,
	scheduler *Scheduler,
	tasks ports.TaskRepository,
	notifier ports.Notifier,
	continuity *Continuity,
	clock func() time.Time,
) {
	if clock == nil {
		clock = time.Now
	}
	engine.RegisterAction(domain.ActionSendNotification, func(ctx context.Context, action domain.RuleAction, ev domain.Event) error {
		if notifier == nil {
			return nil
		}
		template := action.Params["template"]
		if template == "" {
			return domain.WrapError(domain.ErrValidation, "send notification", fmt.Errorf("missing template param"))
		}
		recipient := action.Params["recipient"]
		if recipient == "" {
			recipient = ev.OrgID
		}
		payload := map[string]string{"workflow_id": ev.WorkflowID}
		for key, value := range action.Params {
			if key != "template" && key != "recipient" {
				payload[key] = value
			}
		}
		return notifier.Send(ctx, template, recipient, payload)
	})

	engine.RegisterAction(domain.ActionCreateTask, func(ctx context.Context, action domain.RuleAction, ev domain.Event) error {
		now := clock().UTC()
		title := action.Params["title"]
		if title == "" {
			title = "follow up on workflow " + ev.WorkflowID
		}
		return tasks.Create(ctx, &domain.Task{
			ID:         uuid.NewString(),
			OrgID:      ev.OrgID,
			WorkflowID: ev.WorkflowID,
			Title:      title,
			Details:    action.Params["details"],
			Assignee:   action.Params["assignee"],
			Status:     domain.TaskOpen,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	})

	engine.RegisterAction(domain.ActionUpdateStatus, func(ctx context.Context, action domain.RuleAction, ev domain.Event) error {
		target := domain.WorkflowStatus(action.Params["status"])
		if target == "" {
			return domain.WrapError(domain.ErrValidation, "update status action", fmt.Errorf("missing status param"))
		}
		_, err := workflows.UpdateStatus(ctx, ev.WorkflowID, target, map[string]string{"actor": "rule_engine"})
		return err
	})

	engine.RegisterAction(domain.ActionAutoAssign, func(ctx context.Context, action domain.RuleAction, ev domain.Event) error {
		_, err := scheduler.AutoAssign(ctx, ev.WorkflowID)
		return err
	})

	engine.RegisterAction(domain.ActionEscalate, func(ctx context.Context, action domain.RuleAction, ev domain.Event) error {
		severity := domain.IncidentSeverity(action.Params["severity"])
		if severity == "" {
			severity = domain.SeverityHigh
		}
		summary := action.Params["summary"]
		if summary == "" {
			summary = fmt.Sprintf("escalation for workflow %s on %s", ev.WorkflowID, ev.Kind)
		}
		_, err := continuity.ReportIncident(ctx, ev.OrgID, "rule_escalation", summary, severity)
		return err
	})
}
