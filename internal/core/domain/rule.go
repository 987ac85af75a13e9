package domain

type ActionKind string

const (
	ActionSendNotification ActionKind = "send_notification"
	ActionCreateTask       ActionKind = "create_task"
	ActionUpdateStatus     ActionKind = "update_status"
	ActionAutoAssign       ActionKind = "auto_assign"
	ActionEscalate         ActionKind = "escalate"
)

type RuleAction struct {
	Kind   ActionKind        `json:"kind" yaml:"kind"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// RuleTrigger matches an event kind plus a conjunction of conditions against
// the event context. A condition value may be a scalar (exact or numeric
// equality) or a list (membership test, used for status sets).
type RuleTrigger struct {
	Event      EventKind      `json:"event" yaml:"event"`
	Conditions map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// AutomationRule is read-only configuration; the engine never mutates it.
// Priority orders execution among rules matching the same event, ascending.
type AutomationRule struct {
	ID       string       `json:"id" yaml:"id"`
	Name     string       `json:"name" yaml:"name"`
	Trigger  RuleTrigger  `json:"trigger" yaml:"trigger"`
	Actions  []RuleAction `json:"actions" yaml:"actions"`
	Priority int          `json:"priority" yaml:"priority"`
	Active   bool         `json:"active" yaml:"active"`
}
