package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
)

func newTestContinuity(t *testing.T, effect *scriptedEffect, verifier *scriptedVerifier, notifier *fakeNotifier) *Continuity {
	t.Helper()
	_, incidents, _, runbooks := newTestRepos()
	if effect == nil {
		effect = &scriptedEffect{}
	}
	if verifier == nil {
		verifier = &scriptedVerifier{}
	}
	return NewContinuity(incidents, runbooks, notifier, effect, verifier, nil, "oncall", time.Second).Synchronous()
}

func drPlan(id string, critical bool, steps ...domain.RunbookStep) *domain.Runbook {
	return &domain.Runbook{
		ID:       id,
		OrgID:    "org-1",
		Name:     "restore primary region",
		Kind:     domain.RunbookDisasterRecovery,
		Critical: critical,
		RTO:      time.Hour,
		Steps:    steps,
	}
}

func TestIncidentLifecycle(t *testing.T) {
	c := newTestContinuity(t, nil, nil, &fakeNotifier{})

	inc, err := c.ReportIncident(context.Background(), "org-1", "queue_outage", "notifications stalled", domain.SeverityMedium)
	if err != nil {
		t.Fatalf("ReportIncident: %v", err)
	}
	if inc.Status != domain.IncidentDetected || len(inc.Timeline) != 1 {
		t.Fatalf("fresh incident = %+v", inc)
	}

	inc, err = c.TransitionIncident(context.Background(), inc.ID, domain.IncidentInvestigating, "alice", "looking")
	if err != nil {
		t.Fatalf("transition to investigating: %v", err)
	}
	if inc.AcknowledgedAt == nil {
		t.Fatal("acknowledgedAt not set")
	}
	ackAt := *inc.AcknowledgedAt

	// Backward moves are rejected.
	if _, err := c.TransitionIncident(context.Background(), inc.ID, domain.IncidentDetected, "alice", ""); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("backward transition: got %v, want validation error", err)
	}

	inc, err = c.ResolveIncident(context.Background(), inc.ID, "alice", domain.Resolution{RootCause: "stuck consumer"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if inc.ResolvedAt == nil || inc.Resolution == nil {
		t.Fatalf("resolved incident = %+v", inc)
	}
	resolvedAt := *inc.ResolvedAt

	inc, err = c.ReopenIncident(context.Background(), inc.ID, "bob", "recurred")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if inc.Status != domain.IncidentInvestigating {
		t.Fatalf("reopened status = %s", inc.Status)
	}
	// Set-once timestamps survive the reopen and a second resolution.
	if inc.ResolvedAt == nil || !inc.ResolvedAt.Equal(resolvedAt) {
		t.Fatalf("resolvedAt changed on reopen: %v", inc.ResolvedAt)
	}

	inc, err = c.ResolveIncident(context.Background(), inc.ID, "bob", domain.Resolution{RootCause: "same consumer"})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !inc.ResolvedAt.Equal(resolvedAt) || !inc.AcknowledgedAt.Equal(ackAt) {
		t.Fatalf("set-once timestamps moved: ack %v resolved %v", inc.AcknowledgedAt, inc.ResolvedAt)
	}

	// Timeline only ever grows: detected, investigating, backward attempt
	// rejected (no entry), resolved, reopened, resolved.
	if len(inc.Timeline) != 5 {
		t.Fatalf("timeline length = %d, want 5: %+v", len(inc.Timeline), inc.Timeline)
	}
}

func TestCriticalIncidentEscalatesImmediately(t *testing.T) {
	notifier := &fakeNotifier{}
	c := newTestContinuity(t, nil, nil, notifier)

	if _, err := c.ReportIncident(context.Background(), "org-1", "data_loss", "primary store corrupt", domain.SeverityCritical); err != nil {
		t.Fatalf("ReportIncident: %v", err)
	}
	msgs := notifier.messages()
	if len(msgs) != 1 || msgs[0].Template != "critical_incident" || msgs[0].Recipient != "oncall" {
		t.Fatalf("escalation messages = %+v", msgs)
	}
}

func TestRunbookExecutionHaltsOnVerificationFailure(t *testing.T) {
	effect := &scriptedEffect{}
	verifier := &scriptedVerifier{fail: map[int]error{
		2: domain.WrapError(domain.ErrVerification, "verify step", errors.New("replica lag too high")),
	}}
	notifier := &fakeNotifier{}
	c := newTestContinuity(t, effect, verifier, notifier)

	rb, err := c.RegisterRunbook(context.Background(), drPlan("dr-1", true,
		domain.RunbookStep{Step: 1, Title: "freeze writes", Action: "freeze", Verification: "writes_frozen"},
		domain.RunbookStep{Step: 2, Title: "promote replica", Action: "promote", Verification: "replica_primary"},
		domain.RunbookStep{Step: 3, Title: "unfreeze writes", Action: "unfreeze"},
	))
	if err != nil {
		t.Fatalf("RegisterRunbook: %v", err)
	}

	execID, err := c.ActivateDisasterRecoveryPlan(context.Background(), rb.ID, "alice")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	ex, err := c.Execution(context.Background(), execID)
	if err != nil {
		t.Fatalf("Execution: %v", err)
	}
	if ex.Status != domain.ExecutionFailed {
		t.Fatalf("execution status = %s, want failed", ex.Status)
	}
	if ex.Steps[0].Status != domain.StepCompleted || ex.Steps[1].Status != domain.StepFailed || ex.Steps[2].Status != domain.StepPending {
		t.Fatalf("step statuses = %s %s %s", ex.Steps[0].Status, ex.Steps[1].Status, ex.Steps[2].Status)
	}
	// Step 3 never ran.
	ran := effect.ranSteps()
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Fatalf("effect ran steps %v, want [1 2]", ran)
	}

	// Critical DR failure escalates exactly once: one notification, one
	// linked incident.
	msgs := notifier.messages()
	var stepFailures, criticalAlerts int
	for _, m := range msgs {
		switch m.Template {
		case "runbook_step_failed":
			stepFailures++
		case "critical_incident":
			criticalAlerts++
		}
	}
	if stepFailures != 1 {
		t.Fatalf("step failure notifications = %d, want 1 (messages %+v)", stepFailures, msgs)
	}
	if ex.IncidentID == "" {
		// Refetch: the incident link lands after escalation.
		ex, _ = c.Execution(context.Background(), execID)
	}
	if ex.IncidentID == "" {
		t.Fatal("no incident linked to failed execution")
	}
	if criticalAlerts != 1 {
		t.Fatalf("critical incident alerts = %d, want 1", criticalAlerts)
	}
}

func TestRunbookStepEscalationClasses(t *testing.T) {
	effect := &scriptedEffect{fail: map[int]error{
		1: errors.New("ordinary failure"),
	}}
	notifier := &fakeNotifier{}
	c := newTestContinuity(t, effect, nil, notifier)

	// Non-critical operational runbook with no escalation criteria declared:
	// failure halts but never escalates.
	rb, err := c.RegisterRunbook(context.Background(), &domain.Runbook{
		OrgID: "org-1",
		Name:  "rotate keys",
		Kind:  domain.RunbookOperational,
		Steps: []domain.RunbookStep{{Step: 1, Title: "rotate", Action: "rotate"}},
	})
	if err != nil {
		t.Fatalf("RegisterRunbook: %v", err)
	}
	execID, err := c.ExecuteRunbook(context.Background(), rb.ID, "scheduled", "alice")
	if err != nil {
		t.Fatalf("ExecuteRunbook: %v", err)
	}
	ex, _ := c.Execution(context.Background(), execID)
	if ex.Status != domain.ExecutionFailed {
		t.Fatalf("status = %s, want failed", ex.Status)
	}
	if len(notifier.messages()) != 0 {
		t.Fatalf("unexpected escalation: %+v", notifier.messages())
	}
	if ex.IncidentID != "" {
		t.Fatal("incident opened without escalation criteria")
	}
}

func TestDisasterRecoveryDryRunTest(t *testing.T) {
	effect := &scriptedEffect{}
	notifier := &fakeNotifier{}
	c := newTestContinuity(t, effect, nil, notifier)

	rb, err := c.RegisterRunbook(context.Background(), drPlan("dr-2", true,
		domain.RunbookStep{Step: 1, Title: "freeze", Action: "freeze", EstimatedTime: time.Hour},
		domain.RunbookStep{Step: 2, Title: "promote", Action: "promote", EstimatedTime: time.Hour},
	))
	if err != nil {
		t.Fatalf("RegisterRunbook: %v", err)
	}

	res, err := c.RunDisasterRecoveryTest(context.Background(), rb.ID)
	if err != nil {
		t.Fatalf("RunDisasterRecoveryTest: %v", err)
	}
	if !res.Passed {
		t.Fatalf("dry run failed: %+v", res)
	}
	if len(res.StepDeltas) != 2 {
		t.Fatalf("step deltas = %+v", res.StepDeltas)
	}
	// Generous estimates produce no recommendations.
	if len(res.Recommendations) != 0 {
		t.Fatalf("recommendations = %v", res.Recommendations)
	}
	// Dry runs never page anyone.
	if len(notifier.messages()) != 0 {
		t.Fatalf("dry run notified: %+v", notifier.messages())
	}

	history, err := c.TestHistory(context.Background(), rb.ID)
	if err != nil {
		t.Fatalf("TestHistory: %v", err)
	}
	if len(history) != 1 || history[0].ExecutionID != res.ExecutionID {
		t.Fatalf("history = %+v", history)
	}
}

func TestDisasterRecoveryTestRecommendsOnOverrun(t *testing.T) {
	effect := &scriptedEffect{delay: map[int]time.Duration{1: 30 * time.Millisecond}}
	c := newTestContinuity(t, effect, nil, nil)

	rb, err := c.RegisterRunbook(context.Background(), drPlan("dr-3", false,
		domain.RunbookStep{Step: 1, Title: "promote", Action: "promote", EstimatedTime: 10 * time.Millisecond},
	))
	if err != nil {
		t.Fatalf("RegisterRunbook: %v", err)
	}

	res, err := c.RunDisasterRecoveryTest(context.Background(), rb.ID)
	if err != nil {
		t.Fatalf("RunDisasterRecoveryTest: %v", err)
	}
	if !res.Passed {
		t.Fatalf("dry run failed: %+v", res)
	}
	if len(res.Recommendations) != 1 {
		t.Fatalf("recommendations = %v, want one overrun note", res.Recommendations)
	}
}

func TestDRTestRejectsOperationalRunbook(t *testing.T) {
	c := newTestContinuity(t, nil, nil, nil)
	rb, err := c.RegisterRunbook(context.Background(), &domain.Runbook{
		OrgID: "org-1",
		Name:  "rotate keys",
		Kind:  domain.RunbookOperational,
		Steps: []domain.RunbookStep{{Step: 1, Title: "rotate", Action: "rotate"}},
	})
	if err != nil {
		t.Fatalf("RegisterRunbook: %v", err)
	}
	if _, err := c.RunDisasterRecoveryTest(context.Background(), rb.ID); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
	if _, err := c.ActivateDisasterRecoveryPlan(context.Background(), rb.ID, "alice"); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("activate operational: got %v, want validation error", err)
	}
}

func TestCancelExecution(t *testing.T) {
	c := newTestContinuity(t, nil, nil, nil)
	rb, err := c.RegisterRunbook(context.Background(), drPlan("dr-4", false,
		domain.RunbookStep{Step: 1, Title: "freeze", Action: "freeze"},
	))
	if err != nil {
		t.Fatalf("RegisterRunbook: %v", err)
	}
	execID, err := c.ExecuteRunbook(context.Background(), rb.ID, "drill", "alice")
	if err != nil {
		t.Fatalf("ExecuteRunbook: %v", err)
	}
	// Synchronous mode finished the run; cancelling a terminal execution is
	// an error.
	if err := c.CancelExecution(context.Background(), execID); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("cancel finished execution: got %v, want validation error", err)
	}
}
