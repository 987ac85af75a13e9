package usecase

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
)

// ActionHandler executes one rule action for one event. Handlers must be
// safe under at-least-once delivery: mutations converge rather than compound.
type ActionHandler func(ctx context.Context, action domain.RuleAction, ev domain.Event) error

// RuleEngine evaluates the declarative automation rules against each event.
// Rules are immutable configuration; handlers are registered per action kind
// so new kinds plug in without touching the engine.
type RuleEngine struct {
	rules         []domain.AutomationRule
	handlers      map[domain.ActionKind]ActionHandler
	telemetry     ports.Telemetry
	actionTimeout time.Duration
}

func NewRuleEngine(rules []domain.AutomationRule, telemetry ports.Telemetry, actionTimeout time.Duration) *RuleEngine {
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	if actionTimeout <= 0 {
		actionTimeout = 15 * time.Second
	}
	sorted := make([]domain.AutomationRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &RuleEngine{
		rules:         sorted,
		handlers:      make(map[domain.ActionKind]ActionHandler),
		telemetry:     telemetry,
		actionTimeout: actionTimeout,
	}
}

func (e *RuleEngine) RegisterAction(kind domain.ActionKind, handler ActionHandler) {
	e.handlers[kind] = handler
}

// HandleEvent runs every matching rule's actions in rule-priority order,
// synchronously. Rules are not transactional: an action failure is logged
// and counted, and the remaining actions and rules still run.
func (e *RuleEngine) HandleEvent(ctx context.Context, ev domain.Event) {
	e.telemetry.Record("rule_engine_events", 1, map[string]string{"org": ev.OrgID})

	for _, rule := range e.rules {
		if !rule.Active || rule.Trigger.Event != ev.Kind {
			continue
		}
		if !conditionsMatch(rule.Trigger.Conditions, ev.Context) {
			continue
		}
		slog.Debug("rule_matched", "rule_id", rule.ID, "event", string(ev.Kind), "workflow_id", ev.WorkflowID)

		for _, action := range rule.Actions {
			if err := e.runAction(ctx, action, ev); err != nil {
				slog.Warn("rule_action_failed",
					"rule_id", rule.ID,
					"action", string(action.Kind),
					"workflow_id", ev.WorkflowID,
					"error", err,
				)
				e.telemetry.Record("rule_action_failures", 1, map[string]string{"org": ev.OrgID})
			}
		}
	}
}

func (e *RuleEngine) runAction(ctx context.Context, action domain.RuleAction, ev domain.Event) error {
	handler, ok := e.handlers[action.Kind]
	if !ok {
		return domain.WrapError(domain.ErrValidation, "run action",
			&unknownActionError{kind: action.Kind})
	}
	actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()
	return handler(actionCtx, action, ev)
}

type unknownActionError struct {
	kind domain.ActionKind
}

func (e *unknownActionError) Error() string {
	return "no handler registered for action kind " + string(e.kind)
}

// conditionsMatch requires every condition to hold against the event
// context. A list condition is a membership test (used for status sets);
// scalars compare by exact string or numeric equality.
func conditionsMatch(conditions map[string]any, evCtx map[string]any) bool {
	for field, expected := range conditions {
		actual, ok := evCtx[field]
		if !ok {
			return false
		}
		if !valueMatches(expected, actual) {
			return false
		}
	}
	return true
}

func valueMatches(expected, actual any) bool {
	switch exp := expected.(type) {
	case []any:
		for _, candidate := range exp {
			if valueMatches(candidate, actual) {
				return true
			}
		}
		return false
	case []string:
		for _, candidate := range exp {
			if valueMatches(candidate, actual) {
				return true
			}
		}
		return false
	}

	if en, eok := asFloat(expected); eok {
		if an, aok := asFloat(actual); aok {
			return en == an
		}
		return false
	}
	es, eok := expected.(string)
	as, aok := actual.(string)
	return eok && aok && es == as
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
