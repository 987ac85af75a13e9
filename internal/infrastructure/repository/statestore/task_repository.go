package statestore

import (
	"context"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
)

type TaskRepository struct {
	store ports.StateStore
}

func NewTaskRepository(store ports.StateStore) *TaskRepository {
	return &TaskRepository{store: store}
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	if err := create(ctx, r.store, taskKey(task.ID), task); err != nil {
		return err
	}
	return r.store.AddMember(ctx, orgTasksKey(task.OrgID), task.ID)
}

func (r *TaskRepository) ListByOrg(ctx context.Context, orgID string) ([]domain.Task, error) {
	ids, err := r.store.Members(ctx, orgTasksKey(orgID))
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		task, _, err := getTyped[domain.Task](ctx, r.store, taskKey(id))
		if err != nil {
			continue
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

type AlertRepository struct {
	store ports.StateStore
}

func NewAlertRepository(store ports.StateStore) *AlertRepository {
	return &AlertRepository{store: store}
}

func (r *AlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	if err := create(ctx, r.store, alertKey(alert.ID), alert); err != nil {
		return err
	}
	return r.store.AddMember(ctx, orgAlertsKey(alert.OrgID), alert.ID)
}

func (r *AlertRepository) ListByOrg(ctx context.Context, orgID string) ([]domain.Alert, error) {
	ids, err := r.store.Members(ctx, orgAlertsKey(orgID))
	if err != nil {
		return nil, err
	}
	alerts := make([]domain.Alert, 0, len(ids))
	for _, id := range ids {
		alert, _, err := getTyped[domain.Alert](ctx, r.store, alertKey(id))
		if err != nil {
			continue
		}
		alerts = append(alerts, *alert)
	}
	return alerts, nil
}
