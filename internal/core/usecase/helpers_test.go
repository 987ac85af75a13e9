package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/infrastructure/locking"
	"github.com/taxops/season-orchestrator/internal/infrastructure/repository/statestore"
	memorystate "github.com/taxops/season-orchestrator/internal/infrastructure/state/memory"
)

// testClock returns a fixed instant so scores and deadlines are stable.
func testClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestRepos() (*statestore.WorkflowRepository, *statestore.IncidentRepository, *statestore.JobRepository, *statestore.RunbookRepository) {
	store := memorystate.New()
	locks := locking.NewKeyMutex()
	return statestore.NewWorkflowRepository(store, locks),
		statestore.NewIncidentRepository(store, locks),
		statestore.NewJobRepository(store, locks),
		statestore.NewRunbookRepository(store, locks)
}

type sentMessage struct {
	Template  string
	Recipient string
	Payload   map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, template, recipient string, payload map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{Template: template, Recipient: recipient, Payload: payload})
	return nil
}

func (f *fakeNotifier) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeClassifier struct {
	byRef map[string]domain.DocumentType
	err   error
	calls int
}

func (f *fakeClassifier) Classify(_ context.Context, blobRef string) (domain.DocumentType, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if t, ok := f.byRef[blobRef]; ok {
		return t, nil
	}
	return domain.DocUnclassified, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) HandleEvent(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

type fixedPicker struct {
	worker string
}

func (p fixedPicker) LeastLoadedWorker(context.Context, string) (string, error) {
	return p.worker, nil
}

// scriptedEffect runs steps from a script keyed by step number; unscripted
// steps succeed with a canned output.
type scriptedEffect struct {
	mu    sync.Mutex
	fail  map[int]error
	delay map[int]time.Duration
	runs  []int
}

func (e *scriptedEffect) Run(_ context.Context, step domain.RunbookStep, _ bool) (string, error) {
	e.mu.Lock()
	e.runs = append(e.runs, step.Step)
	err := e.fail[step.Step]
	delay := e.delay[step.Step]
	e.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("done step %d", step.Step), nil
}

func (e *scriptedEffect) ranSteps() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, len(e.runs))
	copy(out, e.runs)
	return out
}

type scriptedVerifier struct {
	fail map[int]error
}

func (v *scriptedVerifier) Verify(_ context.Context, step domain.RunbookStep, _ string) error {
	if v.fail == nil {
		return nil
	}
	return v.fail[step.Step]
}
