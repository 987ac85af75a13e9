// Package yamlrules loads automation rule definitions from a YAML file.
// Rules are configuration: loaded once at startup, immutable at runtime.
package yamlrules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taxops/season-orchestrator/internal/core/domain"
)

type file struct {
	Rules []domain.AutomationRule `yaml:"rules"`
}

// Load reads the rule file. A missing file is an empty rule set, not an
// error, so deployments without automation still start.
func Load(path string) ([]domain.AutomationRule, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) ([]domain.AutomationRule, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	for i := range f.Rules {
		if err := validate(&f.Rules[i]); err != nil {
			return nil, err
		}
	}
	return f.Rules, nil
}

func validate(rule *domain.AutomationRule) error {
	if rule.ID == "" {
		return domain.WrapError(domain.ErrValidation, "load rules", fmt.Errorf("rule with empty id"))
	}
	if rule.Trigger.Event == "" {
		return domain.WrapError(domain.ErrValidation, "load rules", fmt.Errorf("rule %s: empty trigger event", rule.ID))
	}
	if len(rule.Actions) == 0 {
		return domain.WrapError(domain.ErrValidation, "load rules", fmt.Errorf("rule %s: no actions", rule.ID))
	}
	for _, action := range rule.Actions {
		switch action.Kind {
		case domain.ActionSendNotification, domain.ActionCreateTask, domain.ActionUpdateStatus,
			domain.ActionAutoAssign, domain.ActionEscalate:
		default:
			return domain.WrapError(domain.ErrValidation, "load rules",
				fmt.Errorf("rule %s: unknown action kind %q", rule.ID, action.Kind))
		}
	}
	return nil
}
