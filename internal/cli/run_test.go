package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cepsnap/internal/testutil"
)

const (
	ruleOne   = "org.jboss.ddoyle.drools.cep.sample-SimpleTestRule-One"
	ruleTwo   = "org.jboss.ddoyle.drools.cep.sample-SimpleTestRule-Two"
	ruleThree = "org.jboss.ddoyle.drools.cep.sample-SimpleTestRule-Three"
)

// copyScenario copies a shipped scenario into dir with its rules path made
// absolute, applying edit to the YAML text.
func copyScenario(t *testing.T, dir, name string, edit func(string) string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(testutil.ScenariosDir(), name+".yaml"))
	require.NoError(t, err)
	text := strings.Replace(string(data), "rules: ../rules", "rules: "+testutil.RulesDir(), 1)
	if edit != nil {
		text = edit(text)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(text), 0644))
}

func executeRun(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunShippedScenarios(t *testing.T) {
	out, err := executeRun(t, testOptions("text"))
	require.NoError(t, err)

	assert.Contains(t, out, "✓ new_rule_base")
	assert.Contains(t, out, "✓ same_rule_base")
	assert.Contains(t, out, "Run Summary: 2 passed, 0 failed, 2 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestRunShippedScenariosJSON(t *testing.T) {
	out, err := executeRun(t, testOptions("json"), testutil.ScenariosDir())
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 2)

	// Sorted by file name.
	newRB, sameRB := resp.Data.Scenarios[0], resp.Data.Scenarios[1]
	assert.Equal(t, "new_rule_base", newRB.Name)
	assert.Equal(t, map[string]int{ruleOne: 3, ruleTwo: 1, ruleThree: 3}, newRB.Counts)
	assert.Equal(t, "same_rule_base", sameRB.Name)
	assert.Equal(t, map[string]int{ruleOne: 3, ruleTwo: 1}, sameRB.Counts)
	assert.Nil(t, resp.Data.Metrics)
}

func TestRunFilter(t *testing.T) {
	out, err := executeRun(t, testOptions("text"), "--filter", "new_*")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ new_rule_base")
	assert.NotContains(t, out, "same_rule_base")
	assert.Contains(t, out, "1 total")
}

func TestRunInvalidFilter(t *testing.T) {
	_, err := executeRun(t, testOptions("text"), "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunMetrics(t *testing.T) {
	out, err := executeRun(t, testOptions("json"), "--metrics")
	require.NoError(t, err)

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]float64{ruleOne: 6, ruleTwo: 2, ruleThree: 3}, resp.Data.Metrics)

	text, err := executeRun(t, testOptions("text"), "--metrics", "--filter", "same_*")
	require.NoError(t, err)
	assert.Contains(t, text, `cepsnap_rules_fired_total{rule="`+ruleOne+`"} 3`)
}

func TestRunFailingScenario(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "same_rule_base", func(s string) string {
		return strings.Replace(s, "count: 3", "count: 4", 1)
	})

	out, err := executeRun(t, testOptions("text"), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ same_rule_base")
	assert.Contains(t, out, "fired 3 times")
	assert.Contains(t, out, "Run Summary: 0 passed, 1 failed, 1 total")
}

func TestRunFailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "same_rule_base", func(s string) string {
		return strings.Replace(s, "count: 3", "count: 4", 1)
	})

	out, err := executeRun(t, testOptions("json"), dir)
	require.Error(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_RUN_FAILED", resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestRunBrokenScenarioFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0644))

	out, err := executeRun(t, testOptions("text"), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestRunUpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "new_rule_base", nil)

	out, err := executeRun(t, testOptions("text"), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ new_rule_base (golden updated)")

	written, err := os.ReadFile(filepath.Join(dir, "golden", "new_rule_base.golden"))
	require.NoError(t, err)
	shipped, err := os.ReadFile(filepath.Join(testutil.ScenariosDir(), "golden", "new_rule_base.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(shipped), string(written))

	// A second run compares against the file just written.
	_, err = executeRun(t, testOptions("text"), dir)
	require.NoError(t, err)
}

func TestRunGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "same_rule_base", nil)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "same_rule_base.golden"), []byte("{}"), 0644))

	out, err := executeRun(t, testOptions("text"), dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestRunSnapshotDir(t *testing.T) {
	snaps := filepath.Join(t.TempDir(), "snaps")

	_, err := executeRun(t, testOptions("text"), "--snapshot-dir", snaps)
	require.NoError(t, err)

	for _, name := range []string{"same_rule_base", "new_rule_base"} {
		info, err := os.Stat(filepath.Join(snaps, name+".snap"))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size())
	}
}

func TestRunMissingDirectory(t *testing.T) {
	_, err := executeRun(t, testOptions("text"), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestRunEmptyDirectory(t *testing.T) {
	out, err := executeRun(t, testOptions("text"), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
