package yamlrules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxops/season-orchestrator/internal/core/domain"
)

const sampleRules = `
rules:
  - id: urgent-escalation
    name: Escalate urgent deadlines
    priority: 10
    active: true
    trigger:
      event: deadline_approaching
      conditions:
        status: [documents_pending, in_preparation]
        days_to_deadline: 3
    actions:
      - kind: escalate
        params:
          recipient: oncall
      - kind: send_notification
        params:
          template: deadline_warning
  - id: auto-assign-intake
    name: Assign fresh intakes
    priority: 20
    active: true
    trigger:
      event: status_change
      conditions:
        status: intake
    actions:
      - kind: auto_assign
`

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o644))

	rules, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	first := rules[0]
	assert.Equal(t, "urgent-escalation", first.ID)
	assert.Equal(t, 10, first.Priority)
	assert.True(t, first.Active)
	assert.Equal(t, domain.EventDeadlineApproaching, first.Trigger.Event)
	require.Len(t, first.Actions, 2)
	assert.Equal(t, domain.ActionEscalate, first.Actions[0].Kind)
	assert.Equal(t, "oncall", first.Actions[0].Params["recipient"])

	// YAML scalars keep their native types for condition matching.
	statuses, ok := first.Trigger.Conditions["status"].([]any)
	require.True(t, ok, "status condition should decode as a list")
	assert.Len(t, statuses, 2)
	assert.Equal(t, 3, first.Trigger.Conditions["days_to_deadline"])

	second := rules[1]
	assert.Equal(t, domain.EventStatusChange, second.Trigger.Event)
	require.Len(t, second.Actions, 1)
	assert.Equal(t, domain.ActionAutoAssign, second.Actions[0].Kind)
}

func TestLoadMissingFileIsEmptySet(t *testing.T) {
	rules, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestParseRejectsInvalidRules(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{
			name: "empty id",
			raw: `
rules:
  - name: nameless
    trigger:
      event: status_change
    actions:
      - kind: escalate
`,
		},
		{
			name: "empty trigger event",
			raw: `
rules:
  - id: r1
    trigger:
      conditions:
        status: intake
    actions:
      - kind: escalate
`,
		},
		{
			name: "no actions",
			raw: `
rules:
  - id: r1
    trigger:
      event: status_change
`,
		},
		{
			name: "unknown action kind",
			raw: `
rules:
  - id: r1
    trigger:
      event: status_change
    actions:
      - kind: launch_missiles
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.ErrValidation), "err = %v", err)
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("rules: ["))
	require.Error(t, err)
}
