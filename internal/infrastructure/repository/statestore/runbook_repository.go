package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
	"github.com/taxops/season-orchestrator/internal/infrastructure/locking"
)

type RunbookRepository struct {
	store ports.StateStore
	locks *locking.KeyMutex
}

func NewRunbookRepository(store ports.StateStore, locks *locking.KeyMutex) *RunbookRepository {
	return &RunbookRepository{store: store, locks: locks}
}

// SaveTemplate overwrites the template wholesale; templates are config, not
// runtime state, and carry no version contract.
func (r *RunbookRepository) SaveTemplate(ctx context.Context, rb *domain.Runbook) error {
	raw, err := json.Marshal(rb)
	if err != nil {
		return fmt.Errorf("encode runbook %s: %w", rb.ID, err)
	}
	return r.store.Set(ctx, runbookKey(rb.ID), raw, 0)
}

func (r *RunbookRepository) GetTemplate(ctx context.Context, id string) (*domain.Runbook, error) {
	rb, _, err := getTyped[domain.Runbook](ctx, r.store, runbookKey(id))
	return rb, err
}

func (r *RunbookRepository) CreateExecution(ctx context.Context, ex *domain.RunbookExecution) error {
	return create(ctx, r.store, executionKey(ex.ID), ex)
}

func (r *RunbookRepository) GetExecution(ctx context.Context, id string) (*domain.RunbookExecution, error) {
	ex, _, err := getTyped[domain.RunbookExecution](ctx, r.store, executionKey(id))
	return ex, err
}

func (r *RunbookRepository) MutateExecution(ctx context.Context, id string, fn func(*domain.RunbookExecution) error) (*domain.RunbookExecution, error) {
	return mutate(ctx, r.store, r.locks, executionKey(id), 0, fn)
}

// AppendTestResult keeps the per-plan result list under the plan's test key
// so trend queries are a single read.
func (r *RunbookRepository) AppendTestResult(ctx context.Context, res *domain.DRTestResult) error {
	key := drTestKey(res.PlanID)
	r.locks.Lock(key)
	defer r.locks.Unlock(key)

	results, version, err := r.loadResults(ctx, res.PlanID)
	if err != nil {
		return err
	}
	results = append(results, res)
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode dr test results for %s: %w", res.PlanID, err)
	}
	return r.store.SetIfVersion(ctx, key, raw, version, 0)
}

func (r *RunbookRepository) ListTestResults(ctx context.Context, planID string) ([]*domain.DRTestResult, error) {
	results, _, err := r.loadResults(ctx, planID)
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].RunAt.Before(results[j].RunAt) })
	return results, nil
}

func (r *RunbookRepository) loadResults(ctx context.Context, planID string) ([]*domain.DRTestResult, uint64, error) {
	rec, err := r.store.Get(ctx, drTestKey(planID))
	if domain.IsKind(err, domain.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	var results []*domain.DRTestResult
	if err := json.Unmarshal(rec.Value, &results); err != nil {
		return nil, 0, fmt.Errorf("decode dr test results for %s: %w", planID, err)
	}
	return results, rec.Version, nil
}
