// Package orchestrator owns the periodic control loop. Components never
// self-schedule: every cadence lives here as a named task, dispatched from a
// single loop so tests can drive virtual time through RunPending.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taxops/season-orchestrator/internal/observability/metrics"
)

// Clock abstracts wall time; tests install a virtual clock.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// TaskFunc is one periodic task applied to one organization.
type TaskFunc func(ctx context.Context, orgID string) error

type periodicTask struct {
	name  string
	every time.Duration
	fn    TaskFunc

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func (t *periodicTask) due(orgID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastRun[orgID]
	return !ok || now.Sub(last) >= t.every
}

func (t *periodicTask) ran(orgID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRun[orgID] = now
}

// Scheduler dispatches named periodic tasks. Within one org, due tasks run
// sequentially in registration order (single logical worker per org);
// different orgs run in parallel.
type Scheduler struct {
	clock    Clock
	orgs     func(ctx context.Context) ([]string, error)
	metrics  *metrics.Metrics
	parallel int

	tasks []*periodicTask
}

func NewScheduler(clock Clock, orgs func(ctx context.Context) ([]string, error), m *metrics.Metrics) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		clock:    clock,
		orgs:     orgs,
		metrics:  m,
		parallel: 4,
	}
}

func (s *Scheduler) Register(name string, every time.Duration, fn TaskFunc) {
	s.tasks = append(s.tasks, &periodicTask{
		name:    name,
		every:   every,
		fn:      fn,
		lastRun: make(map[string]time.Time),
	})
}

// RunPending runs every task that is due at the given instant. Task errors
// are logged and never abort the sweep.
func (s *Scheduler) RunPending(ctx context.Context, now time.Time) error {
	orgIDs, err := s.orgs(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for _, orgID := range orgIDs {
		g.Go(func() error {
			s.runOrg(gctx, orgID, now)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) runOrg(ctx context.Context, orgID string, now time.Time) {
	for _, task := range s.tasks {
		if ctx.Err() != nil {
			return
		}
		if !task.due(orgID, now) {
			continue
		}
		started := s.clock.Now()
		err := task.fn(ctx, orgID)
		duration := s.clock.Now().Sub(started)
		task.ran(orgID, now)

		if s.metrics != nil {
			s.metrics.ObserveTask(task.name, duration)
		}
		if err != nil {
			slog.Warn("periodic_task_failed", "task", task.name, "org_id", orgID, "error", err)
			continue
		}
		slog.Debug("periodic_task_done", "task", task.name, "org_id", orgID, "duration_ms", duration.Milliseconds())
	}
}

// Run drives RunPending off a real ticker until the context ends.
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = time.Minute
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunPending(ctx, s.clock.Now()); err != nil {
				slog.Warn("control_loop_sweep_failed", "error", err)
			}
		}
	}
}
