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

// preparationHoursPerDay is the fixed per-day capacity used to project
// completion once preparation starts.
const preparationHoursPerDay = 6.0

// EventSink receives domain events synchronously; delivery is at-least-once,
// so sinks must converge under replay.
type EventSink interface {
	HandleEvent(ctx context.Context, ev domain.Event)
}

// WorkerPicker selects the least-loaded worker in an org for auto-assignment.
type WorkerPicker interface {
	LeastLoadedWorker(ctx context.Context, orgID string) (string, error)
}

type WorkflowService struct {
	repo          ports.WorkflowRepository
	classifier    ports.Classifier
	picker        WorkerPicker
	events        EventSink
	telemetry     ports.Telemetry
	effectTimeout time.Duration
	now           func() time.Time
}

func NewWorkflowService(
	repo ports.WorkflowRepository,
	classifier ports.Classifier,
	picker WorkerPicker,
	events EventSink,
	telemetry ports.Telemetry,
	effectTimeout time.Duration,
) *WorkflowService {
	if effectTimeout <= 0 {
		effectTimeout = 10 * time.Second
	}
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	return &WorkflowService{
		repo:          repo,
		classifier:    classifier,
		picker:        picker,
		events:        events,
		telemetry:     telemetry,
		effectTimeout: effectTimeout,
		now:           time.Now,
	}
}

// WithClock overrides the service clock; tests drive virtual time through it.
func (s *WorkflowService) WithClock(now func() time.Time) *WorkflowService {
	s.now = now
	return s
}

func (s *WorkflowService) CreateWorkflow(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	if wf.OrgID == "" || wf.ClientID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "create workflow", fmt.Errorf("org and client ids are required"))
	}
	if wf.TaxYear < 2000 {
		return nil, domain.WrapError(domain.ErrValidation, "create workflow", fmt.Errorf("implausible tax year %d", wf.TaxYear))
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.ClientType == "" {
		wf.ClientType = domain.ClientIndividual
	}
	if wf.Status == "" {
		wf.Status = domain.StatusOrganizerSent
	}
	if !domain.ValidStatus(wf.Status) {
		return nil, domain.WrapError(domain.ErrValidation, "create workflow", fmt.Errorf("unknown status %q", wf.Status))
	}

	now := s.now().UTC()
	if wf.DeadlineDate.IsZero() {
		deadline, err := domain.DeadlineFor(wf.TaxYear, wf.DeadlineType)
		if err != nil {
			return nil, err
		}
		wf.DeadlineDate = deadline
		if wf.DeadlineType == "" {
			wf.DeadlineType = domain.DeadlineStandard
		}
	}
	wf.Priority = wf.EffectivePriority(now)
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if err := s.repo.Create(ctx, wf); err != nil {
		return nil, err
	}
	s.telemetry.Record("workflow_created", 1, map[string]string{"org": wf.OrgID})
	return wf, nil
}

func (s *WorkflowService) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	return s.repo.Get(ctx, id)
}

// UpdateStatus moves a workflow along the lifecycle chain. Setting the
// current status again is a converging no-op, which keeps replayed rule
// actions idempotent. Side effects on entry:
//   - documents_received with no assigned worker: auto-assignment
//   - in_preparation: estimated completion recomputed from remaining hours
//
// A successful transition emits a status_change event to the rule engine.
func (s *WorkflowService) UpdateStatus(ctx context.Context, workflowID string, newStatus domain.WorkflowStatus, metadata map[string]string) (*domain.Workflow, error) {
	if !domain.ValidStatus(newStatus) {
		return nil, domain.WrapError(domain.ErrValidation, "update status", fmt.Errorf("unknown status %q", newStatus))
	}

	now := s.now().UTC()
	var previous domain.WorkflowStatus
	changed := false

	wf, err := s.repo.Mutate(ctx, workflowID, func(wf *domain.Workflow) error {
		previous = wf.Status
		changed = false
		if wf.Status == newStatus {
			return nil
		}
		if !domain.CanTransition(wf.Status, newStatus) {
			return domain.WrapError(domain.ErrValidation, "update status",
				fmt.Errorf("illegal transition %s -> %s", wf.Status, newStatus))
		}

		wf.StatusHistory = append(wf.StatusHistory, domain.StatusChange{
			From:  wf.Status,
			To:    newStatus,
			Actor: metadata["actor"],
			At:    now,
		})
		wf.Status = newStatus
		wf.Priority = wf.EffectivePriority(now)
		wf.UpdatedAt = now
		changed = true

		if newStatus == domain.StatusDocumentsReceived && wf.AssignedWorker == "" {
			s.autoAssignLocked(ctx, wf, now)
		}
		if newStatus == domain.StatusInPreparation {
			s.recomputeCompletionLocked(wf, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.emit(ctx, domain.Event{
			Kind:       domain.EventStatusChange,
			OrgID:      wf.OrgID,
			WorkflowID: wf.ID,
			Context: map[string]any{
				"status":          string(wf.Status),
				"previous_status": string(previous),
			},
			At: now,
		})
	}
	return wf, nil
}

// ProcessDocumentUpload appends a document, classifying it first when the
// type is unknown. When every required type is present the workflow advances
// from documents_pending to documents_received automatically.
func (s *WorkflowService) ProcessDocumentUpload(ctx context.Context, workflowID string, doc domain.Document) (*domain.Workflow, error) {
	now := s.now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.WorkflowID = workflowID
	if doc.Status == "" {
		doc.Status = domain.DocPending
	}
	doc.UploadedAt = now

	if doc.Type == "" || doc.Type == domain.DocUnclassified {
		doc.Type = s.classify(ctx, doc.BlobRef)
		if doc.Type != domain.DocUnclassified {
			classifiedAt := now
			doc.ClassifiedAt = &classifiedAt
		}
	}

	allReceived := false
	wf, err := s.repo.Mutate(ctx, workflowID, func(wf *domain.Workflow) error {
		doc.DeadlineDate = wf.DeadlineDate
		wf.Documents = append(wf.Documents, doc)
		wf.UpdatedAt = now
		allReceived = wf.Status == domain.StatusDocumentsPending && len(wf.MissingDocumentTypes()) == 0
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, domain.Event{
		Kind:       domain.EventDocumentUploaded,
		OrgID:      wf.OrgID,
		WorkflowID: wf.ID,
		Context: map[string]any{
			"document_type": string(doc.Type),
			"status":        string(wf.Status),
		},
		At: now,
	})

	if allReceived {
		return s.UpdateStatus(ctx, workflowID, domain.StatusDocumentsReceived, map[string]string{"actor": "system"})
	}
	return wf, nil
}

// Archive marks a workflow at season close; records are never deleted.
func (s *WorkflowService) Archive(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	now := s.now().UTC()
	return s.repo.Mutate(ctx, workflowID, func(wf *domain.Workflow) error {
		wf.Archived = true
		wf.UpdatedAt = now
		return nil
	})
}

// classify calls the external classifier under the effect timeout. A failed
// classification is non-fatal: the document stays unclassified.
func (s *WorkflowService) classify(ctx context.Context, blobRef string) domain.DocumentType {
	if s.classifier == nil || blobRef == "" {
		return domain.DocUnclassified
	}
	callCtx, cancel := context.WithTimeout(ctx, s.effectTimeout)
	defer cancel()
	docType, err := s.classifier.Classify(callCtx, blobRef)
	if err != nil {
		slog.Warn("classification_failed", "blob_ref", blobRef, "error", err)
		return domain.DocUnclassified
	}
	return docType
}

func (s *WorkflowService) autoAssignLocked(ctx context.Context, wf *domain.Workflow, now time.Time) {
	if s.picker == nil {
		return
	}
	worker, err := s.picker.LeastLoadedWorker(ctx, wf.OrgID)
	if err != nil || worker == "" {
		slog.Warn("auto_assign_skipped", "workflow_id", wf.ID, "error", err)
		return
	}
	wf.AssignmentHistory = append(wf.AssignmentHistory, domain.AssignmentChange{
		From:   wf.AssignedWorker,
		To:     worker,
		Reason: "auto_assign",
		At:     now,
	})
	wf.AssignedWorker = worker
}

func (s *WorkflowService) recomputeCompletionLocked(wf *domain.Workflow, now time.Time) {
	remaining := wf.TimeTracking.EstimatedHours - wf.TimeTracking.ActualHours
	if remaining < 0 {
		remaining = 0
	}
	days := remaining / preparationHoursPerDay
	completion := now.Add(time.Duration(days * float64(24*time.Hour)))
	wf.EstimatedCompletion = &completion
}

func (s *WorkflowService) emit(ctx context.Context, ev domain.Event) {
	s.telemetry.Record("event_"+string(ev.Kind), 1, map[string]string{"org": ev.OrgID})
	if s.events != nil {
		s.events.HandleEvent(ctx, ev)
	}
}

type noopTelemetry struct{}

func (noopTelemetry) Record(string, float64, map[string]string) {}
