// Package statestore implements the typed entity repositories on top of the
// StateStore port. Each entity lives under its own key with a versioned
// envelope; index member-sets replace keyspace scans. Read-modify-writes go
// through mutate, which holds the record's key lock and retries the
// compare-and-set with a fresh read on conflict.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
	"github.com/taxops/season-orchestrator/internal/infrastructure/locking"
)

const casAttempts = 5

func workflowKey(id string) string  { return "wf:" + id }
func incidentKey(id string) string  { return "incident:" + id }
func jobKey(id string) string       { return "job:" + id }
func runbookKey(id string) string   { return "runbook:" + id }
func executionKey(id string) string { return "exec:" + id }
func taskKey(id string) string      { return "task:" + id }
func alertKey(id string) string     { return "alert:" + id }
func drTestKey(planID string) string {
	return "drtest:" + planID
}

func orgWorkflowsKey(orgID string) string { return "org:" + orgID + ":workflows" }
func orgIncidentsKey(orgID string) string { return "org:" + orgID + ":incidents" }
func orgJobsKey(orgID string) string      { return "org:" + orgID + ":jobs" }
func orgTasksKey(orgID string) string     { return "org:" + orgID + ":tasks" }
func orgAlertsKey(orgID string) string    { return "org:" + orgID + ":alerts" }

const orgsKey = "orgs"

func getTyped[T any](ctx context.Context, store ports.StateStore, key string) (*T, uint64, error) {
	rec, err := store.Get(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	var out T
	if err := json.Unmarshal(rec.Value, &out); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return &out, rec.Version, nil
}

func create[T any](ctx context.Context, store ports.StateStore, key string, entity *T) error {
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := store.SetIfVersion(ctx, key, raw, 0, 0); err != nil {
		if domain.IsKind(err, domain.ErrConflict) {
			return domain.WrapError(domain.ErrValidation, "create", fmt.Errorf("key %s already exists", key))
		}
		return err
	}
	return nil
}

func mutate[T any](
	ctx context.Context,
	store ports.StateStore,
	locks *locking.KeyMutex,
	key string,
	ttl time.Duration,
	fn func(*T) error,
) (*T, error) {
	locks.Lock(key)
	defer locks.Unlock(key)

	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		entity, version, err := getTyped[T](ctx, store, key)
		if err != nil {
			return nil, err
		}
		if err := fn(entity); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(entity)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		err = store.SetIfVersion(ctx, key, raw, version, ttl)
		if err == nil {
			return entity, nil
		}
		if !domain.IsKind(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
