package usecase

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
)

const (
	// Workers above overloadHours donate work until they drop to
	// balanceHours or below.
	overloadHours = 40.0
	balanceHours  = 35.0
)

// redistributable statuses: work already in review or later stays with its
// reviewer.
func redistributable(status domain.WorkflowStatus) bool {
	return status == domain.StatusDocumentsReceived || status == domain.StatusInPreparation
}

type Scheduler struct {
	repo ports.WorkflowRepository
	now  func() time.Time
}

func NewScheduler(repo ports.WorkflowRepository) *Scheduler {
	return &Scheduler{repo: repo, now: time.Now}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Score is the continuous priority: deadline urgency carries half the
// weight, document completeness 30 points, inverse complexity 20.
func Score(wf *domain.Workflow, now time.Time) float64 {
	days := domain.DaysToDeadline(wf.DeadlineDate, now)

	var urgency float64
	switch {
	case days <= 0:
		urgency = 100
	case days <= 3:
		urgency = 80
	case days <= 7:
		urgency = 60
	case days <= 14:
		urgency = 40
	default:
		urgency = 20
	}

	expected := len(domain.RequiredDocumentTypes(wf.ClientType, wf.TaxYear))
	completeness := 0.0
	if expected > 0 {
		ratio := float64(len(wf.Documents)) / float64(expected)
		if ratio > 1 {
			ratio = 1
		}
		completeness = ratio * 30
	}

	complexity := (1 - wf.TimeTracking.EstimatedHours/10) * 20
	if complexity < 0 {
		complexity = 0
	}
	if complexity > 20 {
		complexity = 20
	}

	return urgency*0.5 + completeness + complexity
}

func active(wf *domain.Workflow) bool {
	return !wf.Archived && wf.Status != domain.StatusCompleted
}

// PriorityQueue returns the top limit workflows ordered by descending score;
// ties break toward the earlier deadline.
func (s *Scheduler) PriorityQueue(ctx context.Context, orgID string, limit int) ([]domain.QueueEntry, error) {
	workflows, err := s.repo.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	entries := make([]domain.QueueEntry, 0, len(workflows))
	for _, wf := range workflows {
		if !active(wf) {
			continue
		}
		entries = append(entries, domain.QueueEntry{
			WorkflowID:     wf.ID,
			ClientID:       wf.ClientID,
			Score:          Score(wf, now),
			Bucket:         wf.EffectivePriority(now),
			DeadlineDate:   wf.DeadlineDate,
			DaysToDeadline: domain.DaysToDeadline(wf.DeadlineDate, now),
			AssignedWorker: wf.AssignedWorker,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].DeadlineDate.Before(entries[j].DeadlineDate)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// WorkerLoads aggregates estimated hours per assigned worker over active
// workflows.
func WorkerLoads(workflows []*domain.Workflow) map[string]float64 {
	loads := make(map[string]float64)
	for _, wf := range workflows {
		if !active(wf) || wf.AssignedWorker == "" {
			continue
		}
		loads[wf.AssignedWorker] += wf.TimeTracking.EstimatedHours
	}
	return loads
}

// LeastLoadedWorker picks the known worker with the fewest estimated hours.
// Returns empty when the org has no assigned workers yet.
func (s *Scheduler) LeastLoadedWorker(ctx context.Context, orgID string) (string, error) {
	workflows, err := s.repo.ListByOrg(ctx, orgID)
	if err != nil {
		return "", err
	}
	return leastLoaded(WorkerLoads(workflows), ""), nil
}

func leastLoaded(loads map[string]float64, exclude string) string {
	best := ""
	bestLoad := 0.0
	for worker, load := range loads {
		if worker == exclude {
			continue
		}
		if best == "" || load < bestLoad || (load == bestLoad && worker < best) {
			best = worker
			bestLoad = load
		}
	}
	return best
}

var bucketRank = map[domain.Priority]int{
	domain.PriorityLow:    0,
	domain.PriorityNormal: 1,
	domain.PriorityHigh:   2,
	domain.PriorityUrgent: 3,
}

// RebalanceWorkloads moves work off overloaded workers one workflow at a
// time: lowest bucket first, to the least-loaded other worker, until the
// donor is at or below the balance threshold. Every move appends an
// immutable assignment-history entry; nothing is deleted.
func (s *Scheduler) RebalanceWorkloads(ctx context.Context, orgID string) ([]domain.AssignmentChange, error) {
	workflows, err := s.repo.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	loads := WorkerLoads(workflows)

	byID := make(map[string]*domain.Workflow, len(workflows))
	for _, wf := range workflows {
		byID[wf.ID] = wf
	}

	var changes []domain.AssignmentChange
	for _, donor := range sortedWorkers(loads) {
		if loads[donor] <= overloadHours {
			continue
		}
		for loads[donor] > balanceHours {
			candidate := s.pickDonation(byID, donor, now)
			if candidate == nil {
				break
			}
			recipient := leastLoaded(loads, donor)
			if recipient == "" {
				break
			}

			change := domain.AssignmentChange{From: donor, To: recipient, Reason: "rebalance", At: now}
			moved, err := s.repo.Mutate(ctx, candidate.ID, func(wf *domain.Workflow) error {
				wf.AssignedWorker = recipient
				wf.AssignmentHistory = append(wf.AssignmentHistory, change)
				wf.UpdatedAt = now
				return nil
			})
			if err != nil {
				slog.Warn("rebalance_move_failed", "workflow_id", candidate.ID, "error", err)
				byID[candidate.ID].AssignedWorker = recipient // do not retry this one
				continue
			}

			loads[donor] -= moved.TimeTracking.EstimatedHours
			loads[recipient] += moved.TimeTracking.EstimatedHours
			byID[moved.ID] = moved
			changes = append(changes, change)
		}
	}
	return changes, nil
}

// pickDonation chooses the donor's lowest-bucket, lowest-score
// redistributable workflow.
func (s *Scheduler) pickDonation(byID map[string]*domain.Workflow, donor string, now time.Time) *domain.Workflow {
	var pick *domain.Workflow
	var pickRank int
	var pickScore float64
	for _, wf := range byID {
		if !active(wf) || wf.AssignedWorker != donor || !redistributable(wf.Status) {
			continue
		}
		rank := bucketRank[wf.EffectivePriority(now)]
		score := Score(wf, now)
		if pick == nil || rank < pickRank || (rank == pickRank && score < pickScore) {
			pick, pickRank, pickScore = wf, rank, score
		}
	}
	return pick
}

// Reassign explicitly moves one workflow to the named worker.
func (s *Scheduler) Reassign(ctx context.Context, workflowID, worker, reason string) (*domain.Workflow, error) {
	now := s.now().UTC()
	return s.repo.Mutate(ctx, workflowID, func(wf *domain.Workflow) error {
		if wf.AssignedWorker == worker {
			return nil
		}
		wf.AssignmentHistory = append(wf.AssignmentHistory, domain.AssignmentChange{
			From:   wf.AssignedWorker,
			To:     worker,
			Reason: reason,
			At:     now,
		})
		wf.AssignedWorker = worker
		wf.UpdatedAt = now
		return nil
	})
}

// AutoAssign assigns the least-loaded worker when the workflow has none.
// Safe under replay: an already-assigned workflow is untouched.
func (s *Scheduler) AutoAssign(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	wf, err := s.repo.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.AssignedWorker != "" {
		return wf, nil
	}
	worker, err := s.LeastLoadedWorker(ctx, wf.OrgID)
	if err != nil {
		return nil, err
	}
	if worker == "" {
		return wf, nil
	}
	return s.Reassign(ctx, workflowID, worker, "auto_assign")
}

func sortedWorkers(loads map[string]float64) []string {
	workers := make([]string, 0, len(loads))
	for worker := range loads {
		workers = append(workers, worker)
	}
	sort.Strings(workers)
	return workers
}
