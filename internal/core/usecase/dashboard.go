package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
)

const dashboardQueueSize = 5

type DashboardService struct {
	workflows ports.WorkflowRepository
	incidents ports.IncidentRepository
	jobs      *jobLister
	alerts    ports.AlertRepository
	scheduler *Scheduler
	now       func() time.Time
}

// jobLister narrows the concrete job repository to the org listing the
// dashboard needs; the JobRepository port itself stays minimal.
type jobLister struct {
	list func(ctx context.Context, orgID string) ([]*domain.BulkProcessingJob, error)
}

func NewDashboardService(
	workflows ports.WorkflowRepository,
	incidents ports.IncidentRepository,
	listJobs func(ctx context.Context, orgID string) ([]*domain.BulkProcessingJob, error),
	alerts ports.AlertRepository,
	scheduler *Scheduler,
) *DashboardService {
	return &DashboardService{
		workflows: workflows,
		incidents: incidents,
		jobs:      &jobLister{list: listJobs},
		alerts:    alerts,
		scheduler: scheduler,
		now:       time.Now,
	}
}

func (s *DashboardService) WithClock(now func() time.Time) *DashboardService {
	s.now = now
	return s
}

func (s *DashboardService) GetDashboard(ctx context.Context, orgID string) (*domain.Dashboard, error) {
	workflows, err := s.workflows.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	dash := &domain.Dashboard{
		OrgID:        orgID,
		GeneratedAt:  now,
		StatusCounts: make(map[domain.WorkflowStatus]int),
		BucketCounts: make(map[domain.Priority]int),
	}
	for _, wf := range workflows {
		if wf.Archived {
			continue
		}
		dash.StatusCounts[wf.Status]++
		dash.BucketCounts[wf.EffectivePriority(now)]++
		if wf.Status != domain.StatusCompleted && domain.DaysToDeadline(wf.DeadlineDate, now) <= 0 {
			dash.OverdueCount++
		}
	}

	loads := WorkerLoads(workflows)
	perWorkerCount := make(map[string]int)
	for _, wf := range workflows {
		if !wf.Archived && wf.AssignedWorker != "" && wf.Status != domain.StatusCompleted {
			perWorkerCount[wf.AssignedWorker]++
		}
	}
	for _, worker := range sortedWorkers(loads) {
		dash.WorkerLoads = append(dash.WorkerLoads, domain.WorkerLoad{
			Worker:         worker,
			Workflows:      perWorkerCount[worker],
			EstimatedHours: loads[worker],
		})
	}

	incidents, err := s.incidents.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, inc := range incidents {
		if inc.Status != domain.IncidentResolved && inc.Status != domain.IncidentPostMortem {
			dash.OpenIncidents++
		}
	}

	if s.jobs.list != nil {
		jobs, err := s.jobs.list(ctx, orgID)
		if err != nil {
			return nil, err
		}
		for _, job := range jobs {
			if job.Status == domain.JobQueued || job.Status == domain.JobProcessing {
				dash.ActiveBulkJobs++
			}
		}
	}

	if s.alerts != nil {
		alerts, err := s.alerts.ListByOrg(ctx, orgID)
		if err != nil {
			return nil, err
		}
		for _, alert := range alerts {
			if !alert.Acknowledged {
				dash.UnackedAlerts++
			}
		}
	}

	queue, err := s.scheduler.PriorityQueue(ctx, orgID, dashboardQueueSize)
	if err != nil {
		return nil, err
	}
	dash.TopOfQueue = queue
	return dash, nil
}

// CreateAlert records an operator-visible alert.
func (s *DashboardService) CreateAlert(ctx context.Context, orgID string, severity domain.AlertSeverity, message string) (*domain.Alert, error) {
	if message == "" {
		return nil, domain.WrapError(domain.ErrValidation, "create alert", errEmptyMessage)
	}
	switch severity {
	case domain.AlertInfo, domain.AlertWarning, domain.AlertCritical:
	default:
		severity = domain.AlertInfo
	}
	alert := &domain.Alert{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Severity:  severity,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

var errEmptyMessage = errors.New("alert message is required")

// CreateStaleIncidentAlert raises a critical alert tied to an incident that
// sat unacknowledged past the staleness threshold. The incident link lets
// callers dedupe across repeated sweeps.
func (s *DashboardService) CreateStaleIncidentAlert(ctx context.Context, orgID string, inc *domain.Incident) (*domain.Alert, error) {
	alert := &domain.Alert{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		Severity:   domain.AlertCritical,
		Message:    fmt.Sprintf("critical incident %q unacknowledged since %s", inc.Type, inc.DetectedAt.Format(time.RFC3339)),
		IncidentID: inc.ID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}
