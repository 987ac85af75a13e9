package statestore

import (
	"context"
	"log/slog"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
	"github.com/taxops/season-orchestrator/internal/infrastructure/locking"
)

type WorkflowRepository struct {
	store ports.StateStore
	locks *locking.KeyMutex
}

func NewWorkflowRepository(store ports.StateStore, locks *locking.KeyMutex) *WorkflowRepository {
	return &WorkflowRepository{store: store, locks: locks}
}

func (r *WorkflowRepository) Create(ctx context.Context, wf *domain.Workflow) error {
	if err := create(ctx, r.store, workflowKey(wf.ID), wf); err != nil {
		return err
	}
	if err := r.store.AddMember(ctx, orgWorkflowsKey(wf.OrgID), wf.ID); err != nil {
		return err
	}
	return r.store.AddMember(ctx, orgsKey, wf.OrgID)
}

func (r *WorkflowRepository) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	wf, _, err := getTyped[domain.Workflow](ctx, r.store, workflowKey(id))
	return wf, err
}

func (r *WorkflowRepository) Mutate(ctx context.Context, id string, fn func(*domain.Workflow) error) (*domain.Workflow, error) {
	return mutate(ctx, r.store, r.locks, workflowKey(id), 0, fn)
}

// ListByOrg reads every workflow in the org index. Records that fail to load
// are skipped with a warning so one bad record cannot poison a sweep.
func (r *WorkflowRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Workflow, error) {
	ids, err := r.store.Members(ctx, orgWorkflowsKey(orgID))
	if err != nil {
		return nil, err
	}
	workflows := make([]*domain.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := r.Get(ctx, id)
		if err != nil {
			slog.Warn("workflow_index_skip", "org_id", orgID, "workflow_id", id, "error", err)
			continue
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// Orgs lists every organization that has ever created a workflow.
func (r *WorkflowRepository) Orgs(ctx context.Context) ([]string, error) {
	return r.store.Members(ctx, orgsKey)
}
