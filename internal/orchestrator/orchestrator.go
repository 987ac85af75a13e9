package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
	"github.com/taxops/season-orchestrator/internal/core/usecase"
	"github.com/taxops/season-orchestrator/internal/infrastructure/report/excel"
)

const (
	urgentSweepEvery = time.Minute
	hourlyEvery      = time.Hour
	dailyEvery       = 24 * time.Hour

	staleCriticalAfter = time.Hour
	reminderWindowDays = 7
	notifyTimeout      = 15 * time.Second
)

// Orchestrator registers the engine's periodic tasks on a Scheduler. All
// cadence decisions live here; usecases only expose one-shot operations.
type Orchestrator struct {
	clock     Clock
	workflows ports.WorkflowRepository
	incidents ports.IncidentRepository
	alerts    ports.AlertRepository
	notifier  ports.Notifier
	engine    *usecase.RuleEngine
	scheduler *usecase.Scheduler
	bulk      *usecase.BulkProcessor
	dashboard *usecase.DashboardService
	report    *excel.Writer

	escalationRecipient string
}

func New(
	clock Clock,
	workflows ports.WorkflowRepository,
	incidents ports.IncidentRepository,
	alerts ports.AlertRepository,
	notifier ports.Notifier,
	engine *usecase.RuleEngine,
	scheduler *usecase.Scheduler,
	bulk *usecase.BulkProcessor,
	dashboard *usecase.DashboardService,
	report *excel.Writer,
	escalationRecipient string,
) *Orchestrator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Orchestrator{
		clock:               clock,
		workflows:           workflows,
		incidents:           incidents,
		alerts:              alerts,
		notifier:            notifier,
		engine:              engine,
		scheduler:           scheduler,
		bulk:                bulk,
		dashboard:           dashboard,
		report:              report,
		escalationRecipient: escalationRecipient,
	}
}

// RegisterTasks wires the task set. Registration order is execution order
// within an org, so the cheap sweeps come first.
func (o *Orchestrator) RegisterTasks(s *Scheduler) {
	s.Register("urgent_sweep", urgentSweepEvery, o.UrgentSweep)
	s.Register("hourly_rules", hourlyEvery, o.HourlyRules)
	s.Register("security_check", hourlyEvery, o.SecurityCheck)
	s.Register("daily_rebalance", dailyEvery, o.DailyRebalance)
	s.Register("daily_reminders", dailyEvery, o.DailyReminders)
	if o.report != nil {
		s.Register("daily_report", dailyEvery, o.DailyReport)
	}
}

// UrgentSweep emits deadline_approaching events for active workflows whose
// effective priority is urgent, by deadline or by pinned override. Emission
// is unconditional per sweep; rules downstream must converge under repeats.
func (o *Orchestrator) UrgentSweep(ctx context.Context, orgID string) error {
	workflows, err := o.workflows.ListByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	now := o.clock.Now()
	for _, wf := range workflows {
		if wf.Archived || wf.Status == domain.StatusCompleted {
			continue
		}
		days := domain.DaysToDeadline(wf.DeadlineDate, now)
		if wf.EffectivePriority(now) != domain.PriorityUrgent {
			continue
		}
		o.engine.HandleEvent(ctx, domain.Event{
			Kind:       domain.EventDeadlineApproaching,
			OrgID:      orgID,
			WorkflowID: wf.ID,
			Context: map[string]any{
				"status":           string(wf.Status),
				"days_to_deadline": days,
				"assigned_worker":  wf.AssignedWorker,
			},
			At: now,
		})
	}
	return nil
}

// HourlyRules feeds one time_based event per org into the rule engine.
func (o *Orchestrator) HourlyRules(ctx context.Context, orgID string) error {
	o.engine.HandleEvent(ctx, domain.Event{
		Kind:  domain.EventTimeBased,
		OrgID: orgID,
		At:    o.clock.Now(),
	})
	return nil
}

// SecurityCheck raises a critical alert for any open critical incident that
// has gone unacknowledged past the stale threshold. One alert per incident;
// the check keys on the incident id to stay convergent across sweeps.
func (o *Orchestrator) SecurityCheck(ctx context.Context, orgID string) error {
	incidents, err := o.incidents.ListByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	existing, err := o.alerts.ListByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	alerted := make(map[string]bool, len(existing))
	for _, a := range existing {
		if a.IncidentID != "" {
			alerted[a.IncidentID] = true
		}
	}

	now := o.clock.Now()
	for _, inc := range incidents {
		if inc.Severity != domain.SeverityCritical || inc.AcknowledgedAt != nil {
			continue
		}
		if inc.Status == domain.IncidentResolved || inc.Status == domain.IncidentPostMortem {
			continue
		}
		if now.Sub(inc.DetectedAt) < staleCriticalAfter || alerted[inc.ID] {
			continue
		}
		_, err := o.dashboard.CreateStaleIncidentAlert(ctx, orgID, inc)
		if err != nil {
			slog.Warn("stale_incident_alert_failed", "org_id", orgID, "incident_id", inc.ID, "error", err)
			continue
		}
		if o.notifier != nil {
			payload := map[string]string{
				"incident_id": inc.ID,
				"type":        inc.Type,
				"detected_at": inc.DetectedAt.Format(time.RFC3339),
			}
			sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
			if err := o.notifier.Send(sendCtx, "incident_unacknowledged", o.escalationRecipient, payload); err != nil {
				slog.Warn("stale_incident_notify_failed", "incident_id", inc.ID, "error", err)
			}
			cancel()
		}
	}
	return nil
}

// DailyRebalance runs the workload redistribution pass.
func (o *Orchestrator) DailyRebalance(ctx context.Context, orgID string) error {
	moves, err := o.scheduler.RebalanceWorkloads(ctx, orgID)
	if err != nil {
		return err
	}
	if len(moves) > 0 {
		slog.Info("rebalance_applied", "org_id", orgID, "moves", len(moves))
	}
	return nil
}

// DailyReminders submits one reminder bulk job covering workflows still
// waiting on documents inside the reminder window.
func (o *Orchestrator) DailyReminders(ctx context.Context, orgID string) error {
	workflows, err := o.workflows.ListByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	now := o.clock.Now()
	var targets []string
	for _, wf := range workflows {
		if wf.Archived || wf.Status != domain.StatusDocumentsPending {
			continue
		}
		if domain.DaysToDeadline(wf.DeadlineDate, now) <= reminderWindowDays {
			targets = append(targets, wf.ID)
		}
	}
	if len(targets) == 0 {
		return nil
	}
	job, err := o.bulk.Submit(ctx, orgID, domain.JobReminder, targets, map[string]string{
		"template": "documents_reminder",
	})
	if err != nil {
		return fmt.Errorf("submit reminder job: %w", err)
	}
	slog.Info("reminder_job_submitted", "org_id", orgID, "job_id", job.ID, "targets", len(targets))
	return nil
}

// DailyReport renders the org's season snapshot to an Excel workbook.
func (o *Orchestrator) DailyReport(ctx context.Context, orgID string) error {
	dash, err := o.dashboard.GetDashboard(ctx, orgID)
	if err != nil {
		return err
	}
	workflows, err := o.workflows.ListByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	path, err := o.report.Write(dash, workflows, o.clock.Now())
	if err != nil {
		return fmt.Errorf("write season report: %w", err)
	}
	slog.Info("season_report_written", "org_id", orgID, "path", path)
	return nil
}
