package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/usecase"
	"github.com/taxops/season-orchestrator/internal/infrastructure/locking"
	"github.com/taxops/season-orchestrator/internal/infrastructure/repository/statestore"
	memorystate "github.com/taxops/season-orchestrator/internal/infrastructure/state/memory"
)

type recordingNotifier struct {
	sends     []string
	deadlines []bool
}

func (n *recordingNotifier) Send(ctx context.Context, template, recipient string, _ map[string]string) error {
	_, ok := ctx.Deadline()
	n.deadlines = append(n.deadlines, ok)
	n.sends = append(n.sends, template+":"+recipient)
	return nil
}

type orchEnv struct {
	clock     *fakeClock
	workflows *statestore.WorkflowRepository
	incidents *statestore.IncidentRepository
	jobs      *statestore.JobRepository
	alerts    *statestore.AlertRepository
	notifier  *recordingNotifier
	events    []domain.Event
	orch      *Orchestrator
}

func newOrchEnv(t *testing.T, start time.Time) *orchEnv {
	t.Helper()
	store := memorystate.New()
	locks := locking.NewKeyMutex()
	env := &orchEnv{
		clock:     &fakeClock{at: start},
		workflows: statestore.NewWorkflowRepository(store, locks),
		incidents: statestore.NewIncidentRepository(store, locks),
		jobs:      statestore.NewJobRepository(store, locks),
		alerts:    statestore.NewAlertRepository(store),
		notifier:  &recordingNotifier{},
	}

	rules := []domain.AutomationRule{{
		ID:      "urgent-notify",
		Trigger: domain.RuleTrigger{Event: domain.EventDeadlineApproaching},
		Actions: []domain.RuleAction{{Kind: domain.ActionSendNotification}},
		Active:  true,
	}}
	engine := usecase.NewRuleEngine(rules, nil, 0)
	engine.RegisterAction(domain.ActionSendNotification, func(_ context.Context, _ domain.RuleAction, ev domain.Event) error {
		env.events = append(env.events, ev)
		return nil
	})

	bulk := usecase.NewBulkProcessor(env.jobs, nil).Synchronous().WithClock(env.clock.Now)
	bulk.RegisterOperation(domain.JobReminder, func(context.Context, *domain.BulkProcessingJob, string) error {
		return nil
	})

	scheduler := usecase.NewScheduler(env.workflows).WithClock(env.clock.Now)
	dashboard := usecase.NewDashboardService(env.workflows, env.incidents, env.jobs.ListByOrg, env.alerts, scheduler).
		WithClock(env.clock.Now)

	env.orch = New(env.clock, env.workflows, env.incidents, env.alerts, env.notifier,
		engine, scheduler, bulk, dashboard, nil, "oncall@firm.example")
	return env
}

func (e *orchEnv) addWorkflow(t *testing.T, id string, status domain.WorkflowStatus, deadline time.Time) {
	t.Helper()
	err := e.workflows.Create(context.Background(), &domain.Workflow{
		ID:           id,
		OrgID:        "org-1",
		ClientID:     "client-" + id,
		Status:       status,
		DeadlineDate: deadline,
		CreatedAt:    e.clock.Now(),
	})
	if err != nil {
		t.Fatalf("create workflow %s: %v", id, err)
	}
}

func TestUrgentSweepEmitsOnlyForUrgentActiveWorkflows(t *testing.T) {
	start := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	env := newOrchEnv(t, start)

	env.addWorkflow(t, "wf-urgent", domain.StatusInPreparation, start.Add(48*time.Hour))
	env.addWorkflow(t, "wf-distant", domain.StatusInPreparation, start.Add(30*24*time.Hour))
	env.addWorkflow(t, "wf-done", domain.StatusCompleted, start.Add(24*time.Hour))

	// Pinned priority counts even when the deadline is far out.
	pin := domain.PriorityUrgent
	err := env.workflows.Create(context.Background(), &domain.Workflow{
		ID:               "wf-pinned",
		OrgID:            "org-1",
		ClientID:         "client-pinned",
		Status:           domain.StatusInPreparation,
		DeadlineDate:     start.Add(40 * 24 * time.Hour),
		PriorityOverride: &pin,
		CreatedAt:        start,
	})
	if err != nil {
		t.Fatalf("create pinned workflow: %v", err)
	}

	if err := env.orch.UrgentSweep(context.Background(), "org-1"); err != nil {
		t.Fatalf("urgent sweep: %v", err)
	}
	if len(env.events) != 2 {
		t.Fatalf("events = %d, want 2", len(env.events))
	}
	byWorkflow := make(map[string]domain.Event, len(env.events))
	for _, ev := range env.events {
		byWorkflow[ev.WorkflowID] = ev
	}
	ev, ok := byWorkflow["wf-urgent"]
	if !ok {
		t.Fatal("no event for wf-urgent")
	}
	if got := ev.Context["days_to_deadline"]; got != 2 {
		t.Errorf("days_to_deadline = %v, want 2", got)
	}
	if _, ok := byWorkflow["wf-pinned"]; !ok {
		t.Error("no event for pinned workflow")
	}
}

func TestSecurityCheckAlertsOnceRespectingThreshold(t *testing.T) {
	start := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
	env := newOrchEnv(t, start)
	ctx := context.Background()

	stale := &domain.Incident{
		ID:         "inc-stale",
		OrgID:      "org-1",
		Type:       "efile_outage",
		Severity:   domain.SeverityCritical,
		Status:     domain.IncidentDetected,
		DetectedAt: start.Add(-2 * time.Hour),
	}
	acked := start.Add(-90 * time.Minute)
	handled := &domain.Incident{
		ID:             "inc-handled",
		OrgID:          "org-1",
		Type:           "portal_down",
		Severity:       domain.SeverityCritical,
		Status:         domain.IncidentInvestigating,
		DetectedAt:     start.Add(-3 * time.Hour),
		AcknowledgedAt: &acked,
	}
	fresh := &domain.Incident{
		ID:         "inc-fresh",
		OrgID:      "org-1",
		Type:       "vpn_flap",
		Severity:   domain.SeverityCritical,
		Status:     domain.IncidentDetected,
		DetectedAt: start.Add(-10 * time.Minute),
	}
	for _, inc := range []*domain.Incident{stale, handled, fresh} {
		if err := env.incidents.Create(ctx, inc); err != nil {
			t.Fatalf("create incident %s: %v", inc.ID, err)
		}
	}

	if err := env.orch.SecurityCheck(ctx, "org-1"); err != nil {
		t.Fatalf("security check: %v", err)
	}
	alerts, err := env.alerts.ListByOrg(ctx, "org-1")
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].IncidentID != "inc-stale" {
		t.Errorf("alert incident = %q, want inc-stale", alerts[0].IncidentID)
	}
	if len(env.notifier.sends) != 1 {
		t.Fatalf("notifier sends = %d, want 1", len(env.notifier.sends))
	}
	if want := "incident_unacknowledged:oncall@firm.example"; env.notifier.sends[0] != want {
		t.Errorf("send = %q, want %q", env.notifier.sends[0], want)
	}
	if !env.notifier.deadlines[0] {
		t.Error("escalation send ran without a context deadline")
	}

	// Repeat sweeps must not raise a second alert for the same incident.
	if err := env.orch.SecurityCheck(ctx, "org-1"); err != nil {
		t.Fatalf("second security check: %v", err)
	}
	alerts, err = env.alerts.ListByOrg(ctx, "org-1")
	if err != nil {
		t.Fatalf("list alerts again: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("alerts after repeat = %d, want 1", len(alerts))
	}
	if len(env.notifier.sends) != 1 {
		t.Errorf("sends after repeat = %d, want 1", len(env.notifier.sends))
	}
}

func TestDailyRemindersTargetsWorkflowsInsideWindow(t *testing.T) {
	start := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	env := newOrchEnv(t, start)
	ctx := context.Background()

	env.addWorkflow(t, "wf-near", domain.StatusDocumentsPending, start.Add(5*24*time.Hour))
	env.addWorkflow(t, "wf-far", domain.StatusDocumentsPending, start.Add(45*24*time.Hour))
	env.addWorkflow(t, "wf-prep", domain.StatusInPreparation, start.Add(2*24*time.Hour))

	if err := env.orch.DailyReminders(ctx, "org-1"); err != nil {
		t.Fatalf("daily reminders: %v", err)
	}
	jobs, err := env.jobs.ListByOrg(ctx, "org-1")
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	job := jobs[0]
	if job.Type != domain.JobReminder {
		t.Errorf("job type = %q, want %q", job.Type, domain.JobReminder)
	}
	if job.Status != domain.JobCompleted {
		t.Errorf("job status = %q, want %q", job.Status, domain.JobCompleted)
	}
	if len(job.TargetIDs) != 1 || job.TargetIDs[0] != "wf-near" {
		t.Errorf("targets = %v, want [wf-near]", job.TargetIDs)
	}
}

func TestDailyRemindersSkipsWhenNothingIsDue(t *testing.T) {
	start := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	env := newOrchEnv(t, start)
	ctx := context.Background()

	env.addWorkflow(t, "wf-far", domain.StatusDocumentsPending, start.Add(60*24*time.Hour))

	if err := env.orch.DailyReminders(ctx, "org-1"); err != nil {
		t.Fatalf("daily reminders: %v", err)
	}
	jobs, err := env.jobs.ListByOrg(ctx, "org-1")
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs = %d, want 0", len(jobs))
	}
}
