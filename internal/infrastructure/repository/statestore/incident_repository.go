package statestore

import (
	"context"
	"log/slog"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
	"github.com/taxops/season-orchestrator/internal/infrastructure/locking"
)

type IncidentRepository struct {
	store ports.StateStore
	locks *locking.KeyMutex
}

func NewIncidentRepository(store ports.StateStore, locks *locking.KeyMutex) *IncidentRepository {
	return &IncidentRepository{store: store, locks: locks}
}

func (r *IncidentRepository) Create(ctx context.Context, inc *domain.Incident) error {
	if err := create(ctx, r.store, incidentKey(inc.ID), inc); err != nil {
		return err
	}
	return r.store.AddMember(ctx, orgIncidentsKey(inc.OrgID), inc.ID)
}

func (r *IncidentRepository) Get(ctx context.Context, id string) (*domain.Incident, error) {
	inc, _, err := getTyped[domain.Incident](ctx, r.store, incidentKey(id))
	return inc, err
}

func (r *IncidentRepository) Mutate(ctx context.Context, id string, fn func(*domain.Incident) error) (*domain.Incident, error) {
	return mutate(ctx, r.store, r.locks, incidentKey(id), 0, fn)
}

func (r *IncidentRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Incident, error) {
	ids, err := r.store.Members(ctx, orgIncidentsKey(orgID))
	if err != nil {
		return nil, err
	}
	incidents := make([]*domain.Incident, 0, len(ids))
	for _, id := range ids {
		inc, err := r.Get(ctx, id)
		if err != nil {
			slog.Warn("incident_index_skip", "org_id", orgID, "incident_id", id, "error", err)
			continue
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}
