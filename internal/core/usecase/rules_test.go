package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
)

func notifyRule(id string, priority int, event domain.EventKind, conditions map[string]any) domain.AutomationRule {
	return domain.AutomationRule{
		ID:       id,
		Name:     id,
		Priority: priority,
		Active:   true,
		Trigger:  domain.RuleTrigger{Event: event, Conditions: conditions},
		Actions:  []domain.RuleAction{{Kind: domain.ActionSendNotification, Params: map[string]string{"rule": id}}},
	}
}

type actionLog struct {
	mu   sync.Mutex
	runs []string
}

func (l *actionLog) handler(err error) ActionHandler {
	return func(_ context.Context, action domain.RuleAction, _ domain.Event) error {
		l.mu.Lock()
		l.runs = append(l.runs, action.Params["rule"])
		l.mu.Unlock()
		return err
	}
}

func (l *actionLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.runs))
	copy(out, l.runs)
	return out
}

func TestHandleEventMatchesAndOrders(t *testing.T) {
	rules := []domain.AutomationRule{
		notifyRule("second", 20, domain.EventStatusChange, nil),
		notifyRule("first", 10, domain.EventStatusChange, nil),
		notifyRule("other-kind", 5, domain.EventDocumentUploaded, nil),
	}
	inactive := notifyRule("inactive", 1, domain.EventStatusChange, nil)
	inactive.Active = false
	rules = append(rules, inactive)

	engine := NewRuleEngine(rules, nil, time.Second)
	log := &actionLog{}
	engine.RegisterAction(domain.ActionSendNotification, log.handler(nil))

	engine.HandleEvent(context.Background(), domain.Event{Kind: domain.EventStatusChange, OrgID: "org-1"})

	got := log.all()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("ran rules %v, want [first second]", got)
	}
}

func TestHandleEventConditions(t *testing.T) {
	rules := []domain.AutomationRule{
		notifyRule("status-set", 1, domain.EventStatusChange, map[string]any{
			"status": []any{"documents_received", "in_preparation"},
		}),
		notifyRule("exact-days", 2, domain.EventDeadlineApproaching, map[string]any{
			"days_to_deadline": 3,
		}),
		notifyRule("never", 3, domain.EventStatusChange, map[string]any{
			"status": "completed",
		}),
	}
	engine := NewRuleEngine(rules, nil, time.Second)
	log := &actionLog{}
	engine.RegisterAction(domain.ActionSendNotification, log.handler(nil))

	engine.HandleEvent(context.Background(), domain.Event{
		Kind:    domain.EventStatusChange,
		Context: map[string]any{"status": "in_preparation"},
	})
	engine.HandleEvent(context.Background(), domain.Event{
		Kind:    domain.EventDeadlineApproaching,
		Context: map[string]any{"days_to_deadline": 3},
	})
	engine.HandleEvent(context.Background(), domain.Event{
		Kind:    domain.EventDeadlineApproaching,
		Context: map[string]any{"days_to_deadline": 5},
	})
	// Missing condition field never matches.
	engine.HandleEvent(context.Background(), domain.Event{Kind: domain.EventStatusChange})

	got := log.all()
	if len(got) != 2 || got[0] != "status-set" || got[1] != "exact-days" {
		t.Fatalf("ran rules %v, want [status-set exact-days]", got)
	}
}

func TestHandleEventActionFailureDoesNotStopOthers(t *testing.T) {
	failing := notifyRule("failing", 1, domain.EventStatusChange, nil)
	failing.Actions = append(failing.Actions, domain.RuleAction{
		Kind:   domain.ActionCreateTask,
		Params: map[string]string{"rule": "failing-second-action"},
	})
	rules := []domain.AutomationRule{
		failing,
		notifyRule("after", 2, domain.EventStatusChange, nil),
	}

	engine := NewRuleEngine(rules, nil, time.Second)
	log := &actionLog{}
	engine.RegisterAction(domain.ActionSendNotification, func(ctx context.Context, action domain.RuleAction, ev domain.Event) error {
		if action.Params["rule"] == "failing" {
			return errors.New("boom")
		}
		return log.handler(nil)(ctx, action, ev)
	})
	engine.RegisterAction(domain.ActionCreateTask, log.handler(nil))

	// Must not panic and must reach the later action and rule.
	engine.HandleEvent(context.Background(), domain.Event{Kind: domain.EventStatusChange})

	got := log.all()
	if len(got) != 2 || got[0] != "failing-second-action" || got[1] != "after" {
		t.Fatalf("ran %v, want [failing-second-action after]", got)
	}
}

func TestHandleEventUnknownActionKind(t *testing.T) {
	rule := notifyRule("unknown", 1, domain.EventStatusChange, nil)
	rule.Actions = []domain.RuleAction{{Kind: "explode"}}
	engine := NewRuleEngine([]domain.AutomationRule{rule}, nil, time.Second)

	// No handler registered: the failure is swallowed and logged.
	engine.HandleEvent(context.Background(), domain.Event{Kind: domain.EventStatusChange})
}

func TestValueMatches(t *testing.T) {
	cases := []struct {
		expected, actual any
		want             bool
	}{
		{"a", "a", true},
		{"a", "b", false},
		{3, 3.0, true},
		{int64(5), 5, true},
		{[]string{"x", "y"}, "y", true},
		{[]any{1, 2}, 2, true},
		{[]any{1, 2}, 3, false},
		{"3", 3, false}, // no string-to-number coercion
	}
	for _, tc := range cases {
		if got := valueMatches(tc.expected, tc.actual); got != tc.want {
			t.Errorf("valueMatches(%v, %v) = %v, want %v", tc.expected, tc.actual, got, tc.want)
		}
	}
}
