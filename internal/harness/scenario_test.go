package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cepsnap/internal/testutil"
)

// writeScenario writes content next to an empty rules directory and returns
// the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "rules"), 0755))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalScenario = `
name: minimal
description: "one event"
rules: rules
before_snapshot:
  - {id: "1", timestamp: "20150223:090000000"}
assertions:
  - type: fired_count
    rule: p-R
    count: 0
`

func TestLoadScenario_ShippedScenarios(t *testing.T) {
	s, err := LoadScenario(filepath.Join(testutil.ScenariosDir(), "same_rule_base.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "same_rule_base", s.Name)
	assert.Equal(t, testutil.RulesDir(), s.Rules)
	assert.Empty(t, s.RestoreRuleBase)
	assert.Len(t, s.BeforeSnapshot, 2)
	assert.Len(t, s.AfterSnapshot, 1)
	assert.Equal(t, "20150223:090021000", s.AfterSnapshot[0].Timestamp)

	s, err = LoadScenario(filepath.Join(testutil.ScenariosDir(), "new_rule_base.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "newRules", s.RestoreRuleBase)
}

func TestLoadScenario_ResolvesRulesRelativeToFile(t *testing.T) {
	path := writeScenario(t, minimalScenario)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "rules"), s.Rules)
	require.NotNil(t, s.Assertions[0].Count)
	assert.Equal(t, 0, *s.Assertions[0].Count)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, minimalScenario+"assertion: []\n")

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "missing name",
			content: `
description: d
rules: rules
before_snapshot: [{id: "1", timestamp: "20150223:090000000"}]
assertions: [{type: fired_count, rule: r, count: 1}]
`,
			want: "name is required",
		},
		{
			name: "missing rules dir",
			content: `
name: n
description: d
rules: elsewhere
before_snapshot: [{id: "1", timestamp: "20150223:090000000"}]
assertions: [{type: fired_count, rule: r, count: 1}]
`,
			want: "rules directory not found",
		},
		{
			name: "empty first batch",
			content: `
name: n
description: d
rules: rules
assertions: [{type: fired_count, rule: r, count: 1}]
`,
			want: "before_snapshot list is required",
		},
		{
			name: "bad timestamp",
			content: `
name: n
description: d
rules: rules
before_snapshot: [{id: "1", timestamp: "2015-02-23T09:00:00Z"}]
assertions: [{type: fired_count, rule: r, count: 1}]
`,
			want: "before_snapshot[0]",
		},
		{
			name: "timestamps go backwards across batches",
			content: `
name: n
description: d
rules: rules
before_snapshot: [{id: "1", timestamp: "20150223:090005000"}]
after_snapshot: [{id: "2", timestamp: "20150223:090000000"}]
assertions: [{type: fired_count, rule: r, count: 1}]
`,
			want: "earlier than the previous event",
		},
		{
			name: "duplicate event id",
			content: `
name: n
description: d
rules: rules
before_snapshot: [{id: "1", timestamp: "20150223:090000000"}]
after_snapshot: [{id: "1", timestamp: "20150223:090001000"}]
assertions: [{type: fired_count, rule: r, count: 1}]
`,
			want: "duplicate event id",
		},
		{
			name: "count missing",
			content: `
name: n
description: d
rules: rules
before_snapshot: [{id: "1", timestamp: "20150223:090000000"}]
assertions: [{type: fired_count, rule: r}]
`,
			want: "count is required",
		},
		{
			name: "fired_for unknown event",
			content: `
name: n
description: d
rules: rules
before_snapshot: [{id: "1", timestamp: "20150223:090000000"}]
assertions: [{type: fired_for, rule: r, event: "9"}]
`,
			want: `unknown event "9"`,
		},
		{
			name: "unknown assertion type",
			content: `
name: n
description: d
rules: rules
before_snapshot: [{id: "1", timestamp: "20150223:090000000"}]
assertions: [{type: trace_contains}]
`,
			want: "unknown assertion type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEventStep_Event(t *testing.T) {
	ev, err := EventStep{ID: "2", Timestamp: "20150223:090005007"}.Event()
	require.NoError(t, err)
	assert.Equal(t, "2", ev.ID())
	assert.Equal(t, testutil.MustTimestamp(t, "20150223:090005007"), ev.Timestamp())
}
