package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
)

// softWarningFactor flags a step as slow once it exceeds its estimate by
// half again; overrunFactor drives post-test recommendations.
const (
	softWarningFactor = 1.5
	overrunFactor     = 1.2
)

// Continuity coordinates incident response and runbook / disaster-recovery
// execution.
type Continuity struct {
	incidents ports.IncidentRepository
	runbooks  ports.RunbookRepository
	notifier  ports.Notifier
	effect    ports.StepEffect
	verifier  ports.StepVerifier
	telemetry ports.Telemetry

	escalationRecipient string
	stepTimeout         time.Duration
	now                 func() time.Time

	// synchronous execution is used by tests and DR dry runs.
	synchronous bool
}

func NewContinuity(
	incidents ports.IncidentRepository,
	runbooks ports.RunbookRepository,
	notifier ports.Notifier,
	effect ports.StepEffect,
	verifier ports.StepVerifier,
	telemetry ports.Telemetry,
	escalationRecipient string,
	stepTimeout time.Duration,
) *Continuity {
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	if stepTimeout <= 0 {
		stepTimeout = 5 * time.Minute
	}
	return &Continuity{
		incidents:           incidents,
		runbooks:            runbooks,
		notifier:            notifier,
		effect:              effect,
		verifier:            verifier,
		telemetry:           telemetry,
		escalationRecipient: escalationRecipient,
		stepTimeout:         stepTimeout,
		now:                 time.Now,
	}
}

func (c *Continuity) WithClock(now func() time.Time) *Continuity {
	c.now = now
	return c
}

func (c *Continuity) Synchronous() *Continuity {
	c.synchronous = true
	return c
}

// ReportIncident opens a new incident in the detected state. Critical
// incidents escalate immediately.
func (c *Continuity) ReportIncident(ctx context.Context, orgID, incidentType, summary string, severity domain.IncidentSeverity) (*domain.Incident, error) {
	now := c.now().UTC()
	inc := &domain.Incident{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		Type:       incidentType,
		Summary:    summary,
		Severity:   severity,
		Status:     domain.IncidentDetected,
		DetectedAt: now,
		Timeline: []domain.TimelineEntry{
			{At: now, Event: "detected", Action: summary},
		},
	}
	if err := c.incidents.Create(ctx, inc); err != nil {
		return nil, err
	}
	c.telemetry.Record("incidents_opened", 1, map[string]string{"org": orgID})

	if severity == domain.SeverityCritical {
		c.notifyEscalation(ctx, orgID, "critical_incident", map[string]string{
			"incident_id": inc.ID,
			"type":        incidentType,
			"summary":     summary,
		})
	}
	return inc, nil
}

// TransitionIncident moves an incident forward. The timeline only ever
// grows; acknowledgedAt and resolvedAt are set exactly once.
func (c *Continuity) TransitionIncident(ctx context.Context, incidentID string, to domain.IncidentStatus, actor, note string) (*domain.Incident, error) {
	now := c.now().UTC()
	return c.incidents.Mutate(ctx, incidentID, func(inc *domain.Incident) error {
		if inc.Status == to {
			return nil
		}
		if !domain.IncidentCanTransition(inc.Status, to) {
			return domain.WrapError(domain.ErrValidation, "transition incident",
				fmt.Errorf("illegal transition %s -> %s", inc.Status, to))
		}
		inc.Timeline = append(inc.Timeline, domain.TimelineEntry{
			At: now, Event: string(to), Actor: actor, Action: note,
		})
		inc.Status = to
		if to == domain.IncidentInvestigating && inc.AcknowledgedAt == nil {
			t := now
			inc.AcknowledgedAt = &t
		}
		if to == domain.IncidentResolved && inc.ResolvedAt == nil {
			t := now
			inc.ResolvedAt = &t
		}
		return nil
	})
}

// ReopenIncident is the one sanctioned backward move. The original
// resolvedAt timestamp is preserved.
func (c *Continuity) ReopenIncident(ctx context.Context, incidentID, actor, reason string) (*domain.Incident, error) {
	now := c.now().UTC()
	return c.incidents.Mutate(ctx, incidentID, func(inc *domain.Incident) error {
		if inc.Status != domain.IncidentResolved && inc.Status != domain.IncidentPostMortem {
			return domain.WrapError(domain.ErrValidation, "reopen incident",
				fmt.Errorf("cannot reopen incident in state %s", inc.Status))
		}
		inc.Timeline = append(inc.Timeline, domain.TimelineEntry{
			At: now, Event: "reopened", Actor: actor, Action: reason,
		})
		inc.Status = domain.IncidentInvestigating
		return nil
	})
}

// ResolveIncident records the resolution and transitions to resolved.
func (c *Continuity) ResolveIncident(ctx context.Context, incidentID, actor string, resolution domain.Resolution) (*domain.Incident, error) {
	now := c.now().UTC()
	return c.incidents.Mutate(ctx, incidentID, func(inc *domain.Incident) error {
		if !domain.IncidentCanTransition(inc.Status, domain.IncidentResolved) {
			return domain.WrapError(domain.ErrValidation, "resolve incident",
				fmt.Errorf("illegal transition %s -> resolved", inc.Status))
		}
		inc.Timeline = append(inc.Timeline, domain.TimelineEntry{
			At: now, Event: string(domain.IncidentResolved), Actor: actor, Action: resolution.RootCause,
		})
		inc.Status = domain.IncidentResolved
		inc.Resolution = &resolution
		if inc.ResolvedAt == nil {
			t := now
			inc.ResolvedAt = &t
		}
		return nil
	})
}

// RegisterRunbook stores a runbook template after structural validation.
func (c *Continuity) RegisterRunbook(ctx context.Context, rb *domain.Runbook) (*domain.Runbook, error) {
	const op = "register runbook"
	if rb == nil || rb.Name == "" {
		return nil, domain.WrapError(domain.ErrValidation, op, fmt.Errorf("runbook name is required"))
	}
	if len(rb.Steps) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, op, fmt.Errorf("runbook needs at least one step"))
	}
	switch rb.Kind {
	case domain.RunbookOperational, domain.RunbookDisasterRecovery:
	default:
		return nil, domain.WrapError(domain.ErrValidation, op, fmt.Errorf("unknown runbook kind %q", rb.Kind))
	}
	if rb.ID == "" {
		rb.ID = uuid.NewString()
	}
	if err := c.runbooks.SaveTemplate(ctx, rb); err != nil {
		return nil, err
	}
	return rb, nil
}

// ExecuteRunbook starts a runbook execution and returns its id immediately;
// progress is polled through Execution.
func (c *Continuity) ExecuteRunbook(ctx context.Context, runbookID, reason, actor string) (string, error) {
	return c.startExecution(ctx, runbookID, reason, actor, false, nil)
}

// ActivateDisasterRecoveryPlan runs a disaster-recovery plan for real.
func (c *Continuity) ActivateDisasterRecoveryPlan(ctx context.Context, planID, actor string) (string, error) {
	rb, err := c.runbooks.GetTemplate(ctx, planID)
	if err != nil {
		return "", err
	}
	if rb.Kind != domain.RunbookDisasterRecovery {
		return "", domain.WrapError(domain.ErrValidation, "activate dr plan",
			fmt.Errorf("%s is not a disaster recovery plan", planID))
	}
	return c.startExecution(ctx, planID, "dr_activation", actor, false, rb)
}

func (c *Continuity) startExecution(ctx context.Context, runbookID, reason, actor string, dryRun bool, rb *domain.Runbook) (string, error) {
	if rb == nil {
		var err error
		rb, err = c.runbooks.GetTemplate(ctx, runbookID)
		if err != nil {
			return "", err
		}
	}
	if len(rb.Steps) == 0 {
		return "", domain.WrapError(domain.ErrValidation, "start execution",
			fmt.Errorf("runbook %s has no steps", runbookID))
	}

	steps := make([]domain.RunbookStep, len(rb.Steps))
	copy(steps, rb.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })

	results := make([]domain.StepResult, len(steps))
	for i, step := range steps {
		results[i] = domain.StepResult{Step: step.Step, Status: domain.StepPending}
	}

	ex := &domain.RunbookExecution{
		ID:        uuid.NewString(),
		RunbookID: rb.ID,
		OrgID:     rb.OrgID,
		Reason:    reason,
		Actor:     actor,
		DryRun:    dryRun,
		Status:    domain.ExecutionRunning,
		Steps:     results,
		StartedAt: c.now().UTC(),
	}
	if err := c.runbooks.CreateExecution(ctx, ex); err != nil {
		return "", err
	}

	if c.synchronous || dryRun {
		c.runExecution(ctx, rb, steps, ex.ID)
	} else {
		go c.runExecution(context.WithoutCancel(ctx), rb, steps, ex.ID)
	}
	return ex.ID, nil
}

func (c *Continuity) Execution(ctx context.Context, executionID string) (*domain.RunbookExecution, error) {
	return c.runbooks.GetExecution(ctx, executionID)
}

// CancelExecution flags the execution; the runner honors the flag between
// steps (cooperative, never mid-step).
func (c *Continuity) CancelExecution(ctx context.Context, executionID string) error {
	_, err := c.runbooks.MutateExecution(ctx, executionID, func(ex *domain.RunbookExecution) error {
		if ex.Status != domain.ExecutionRunning {
			return domain.WrapError(domain.ErrValidation, "cancel execution",
				fmt.Errorf("execution %s already %s", ex.ID, ex.Status))
		}
		ex.Status = domain.ExecutionCancelled
		return nil
	})
	return err
}

// runExecution walks the steps in ascending order. A verification failure
// halts the sequence, marks the step failed and escalates when the step (or
// a critical DR plan) calls for it. Overruns past 1.5x the estimate are
// soft warnings only.
func (c *Continuity) runExecution(ctx context.Context, rb *domain.Runbook, steps []domain.RunbookStep, executionID string) {
	dryRun := false
	for i, step := range steps {
		current, err := c.runbooks.GetExecution(ctx, executionID)
		if err != nil {
			slog.Error("execution_read_failed", "execution_id", executionID, "error", err)
			return
		}
		dryRun = current.DryRun
		if current.Status == domain.ExecutionCancelled {
			c.finishExecution(ctx, executionID, domain.ExecutionCancelled)
			return
		}

		startedAt := c.now().UTC()
		if !c.markStep(ctx, executionID, i, func(res *domain.StepResult) {
			res.Status = domain.StepRunning
			res.StartedAt = &startedAt
		}) {
			return
		}

		output, stepErr := c.runStep(ctx, step, dryRun)
		finishedAt := c.now().UTC()
		duration := finishedAt.Sub(startedAt)
		slow := step.EstimatedTime > 0 && duration > time.Duration(float64(step.EstimatedTime)*softWarningFactor)
		if slow {
			slog.Warn("runbook_step_slow",
				"execution_id", executionID,
				"step", step.Step,
				"estimated", step.EstimatedTime.String(),
				"actual", duration.String(),
			)
		}

		if stepErr != nil {
			c.markStep(ctx, executionID, i, func(res *domain.StepResult) {
				res.Status = domain.StepFailed
				res.Error = stepErr.Error()
				res.Output = output
				res.SoftWarning = slow
				res.FinishedAt = &finishedAt
			})
			c.telemetry.Record("runbook_step_failures", 1, map[string]string{"org": rb.OrgID})

			if !dryRun && c.shouldEscalate(rb, step, stepErr) {
				c.escalateStepFailure(ctx, rb, step, executionID, stepErr)
			}
			c.finishExecution(ctx, executionID, domain.ExecutionFailed)
			return
		}

		c.markStep(ctx, executionID, i, func(res *domain.StepResult) {
			res.Status = domain.StepCompleted
			res.Output = output
			res.SoftWarning = slow
			res.FinishedAt = &finishedAt
		})
	}
	c.finishExecution(ctx, executionID, domain.ExecutionCompleted)
}

// runStep runs the effect and then the verification, both under the step
// timeout.
func (c *Continuity) runStep(ctx context.Context, step domain.RunbookStep, dryRun bool) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	output, err := c.effect.Run(stepCtx, step, dryRun)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return output, domain.WrapError(domain.ErrTransientEffect, "run step", err)
		}
		return output, err
	}
	if c.verifier != nil && step.Verification != "" {
		if err := c.verifier.Verify(stepCtx, step, output); err != nil {
			return output, err
		}
	}
	return output, nil
}

// shouldEscalate: a step escalates when its declared criteria match the
// failure; failed steps of critical DR plans always escalate.
func (c *Continuity) shouldEscalate(rb *domain.Runbook, step domain.RunbookStep, err error) bool {
	if rb.Critical && rb.Kind == domain.RunbookDisasterRecovery {
		return true
	}
	switch step.Escalation {
	case "":
		return false
	case "any":
		return true
	case "verification_failure":
		return domain.IsKind(err, domain.ErrVerification)
	case "timeout":
		return domain.IsKind(err, domain.ErrTransientEffect)
	default:
		return false
	}
}

// escalateStepFailure notifies the on-call recipient and opens an incident
// unless this execution already has one.
func (c *Continuity) escalateStepFailure(ctx context.Context, rb *domain.Runbook, step domain.RunbookStep, executionID string, stepErr error) {
	c.notifyEscalation(ctx, rb.OrgID, "runbook_step_failed", map[string]string{
		"runbook_id":   rb.ID,
		"runbook_name": rb.Name,
		"step":         fmt.Sprintf("%d", step.Step),
		"step_title":   step.Title,
		"error":        stepErr.Error(),
	})

	ex, err := c.runbooks.GetExecution(ctx, executionID)
	if err != nil || ex.IncidentID != "" {
		return
	}
	severity := domain.SeverityHigh
	if rb.Critical {
		severity = domain.SeverityCritical
	}
	inc, err := c.ReportIncident(ctx, rb.OrgID, "runbook_failure",
		fmt.Sprintf("%s halted at step %d (%s)", rb.Name, step.Step, step.Title), severity)
	if err != nil {
		slog.Error("escalation_incident_failed", "execution_id", executionID, "error", err)
		return
	}
	if _, err := c.runbooks.MutateExecution(ctx, executionID, func(ex *domain.RunbookExecution) error {
		ex.IncidentID = inc.ID
		return nil
	}); err != nil {
		slog.Error("escalation_link_failed", "execution_id", executionID, "error", err)
	}
}

func (c *Continuity) notifyEscalation(ctx context.Context, orgID, template string, payload map[string]string) {
	if c.notifier == nil || c.escalationRecipient == "" {
		return
	}
	notifyCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()
	if err := c.notifier.Send(notifyCtx, template, c.escalationRecipient, payload); err != nil {
		slog.Warn("escalation_notify_failed", "org_id", orgID, "template", template, "error", err)
	}
}

func (c *Continuity) markStep(ctx context.Context, executionID string, idx int, apply func(*domain.StepResult)) bool {
	_, err := c.runbooks.MutateExecution(ctx, executionID, func(ex *domain.RunbookExecution) error {
		if idx < 0 || idx >= len(ex.Steps) {
			return fmt.Errorf("step index %d out of range", idx)
		}
		apply(&ex.Steps[idx])
		return nil
	})
	if err != nil {
		slog.Error("execution_step_update_failed", "execution_id", executionID, "step_index", idx, "error", err)
		return false
	}
	return true
}

func (c *Continuity) finishExecution(ctx context.Context, executionID string, status domain.ExecutionStatus) {
	finishedAt := c.now().UTC()
	if _, err := c.runbooks.MutateExecution(ctx, executionID, func(ex *domain.RunbookExecution) error {
		if ex.Status == domain.ExecutionRunning || status == domain.ExecutionCancelled {
			ex.Status = status
		}
		ex.FinishedAt = &finishedAt
		return nil
	}); err != nil {
		slog.Error("execution_finish_failed", "execution_id", executionID, "error", err)
	}
}

// RunDisasterRecoveryTest executes the plan in dry-run mode (simulated
// effects, no escalation, no incidents) and persists the aggregate result
// for trend tracking.
func (c *Continuity) RunDisasterRecoveryTest(ctx context.Context, planID string) (*domain.DRTestResult, error) {
	rb, err := c.runbooks.GetTemplate(ctx, planID)
	if err != nil {
		return nil, err
	}
	if rb.Kind != domain.RunbookDisasterRecovery {
		return nil, domain.WrapError(domain.ErrValidation, "dr test",
			fmt.Errorf("%s is not a disaster recovery plan", planID))
	}

	executionID, err := c.startExecution(ctx, planID, "dr_test", "system", true, rb)
	if err != nil {
		return nil, err
	}
	ex, err := c.runbooks.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	byStep := make(map[int]domain.RunbookStep, len(rb.Steps))
	for _, step := range rb.Steps {
		byStep[step.Step] = step
	}

	result := &domain.DRTestResult{
		PlanID:      planID,
		ExecutionID: executionID,
		RunAt:       ex.StartedAt,
		Passed:      ex.Status == domain.ExecutionCompleted,
	}
	for _, res := range ex.Steps {
		if res.StartedAt == nil || res.FinishedAt == nil {
			continue
		}
		step := byStep[res.Step]
		actual := res.FinishedAt.Sub(*res.StartedAt)
		result.StepDeltas = append(result.StepDeltas, domain.StepDelta{
			Step:      res.Step,
			Estimated: step.EstimatedTime,
			Actual:    actual,
		})
		if step.EstimatedTime > 0 && actual > time.Duration(float64(step.EstimatedTime)*overrunFactor) {
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("step %d (%s) ran %s against an estimate of %s; revise the estimate or split the step",
					res.Step, step.Title, actual.Round(time.Millisecond), step.EstimatedTime))
		}
	}

	if err := c.runbooks.AppendTestResult(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// TestHistory returns past DR test results for a plan, oldest first.
func (c *Continuity) TestHistory(ctx context.Context, planID string) ([]*domain.DRTestResult, error) {
	return c.runbooks.ListTestResults(ctx, planID)
}
