package statestore

import (
	"context"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
	"github.com/taxops/season-orchestrator/internal/infrastructure/locking"
)

type JobRepository struct {
	store ports.StateStore
	locks *locking.KeyMutex
}

func NewJobRepository(store ports.StateStore, locks *locking.KeyMutex) *JobRepository {
	return &JobRepository{store: store, locks: locks}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.BulkProcessingJob) error {
	if err := create(ctx, r.store, jobKey(job.ID), job); err != nil {
		return err
	}
	return r.store.AddMember(ctx, orgJobsKey(job.OrgID), job.ID)
}

func (r *JobRepository) Get(ctx context.Context, id string) (*domain.BulkProcessingJob, error) {
	job, _, err := getTyped[domain.BulkProcessingJob](ctx, r.store, jobKey(id))
	return job, err
}

func (r *JobRepository) Mutate(ctx context.Context, id string, fn func(*domain.BulkProcessingJob) error) (*domain.BulkProcessingJob, error) {
	return mutate(ctx, r.store, r.locks, jobKey(id), 0, fn)
}

func (r *JobRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.BulkProcessingJob, error) {
	ids, err := r.store.Members(ctx, orgJobsKey(orgID))
	if err != nil {
		return nil, err
	}
	jobs := make([]*domain.BulkProcessingJob, 0, len(ids))
	for _, id := range ids {
		job, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
