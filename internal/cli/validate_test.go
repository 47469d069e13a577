package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cepsnap/internal/compiler"
	"github.com/roach88/cepsnap/internal/testutil"
)

// undeclaredRules passes the schema but references a type nobody declares.
const undeclaredRules = `package rules

kbase: rules: {
	default: true
	resources: ["bad"]
	session: {
		name:       "ks"
		clock:      "pseudo"
		event_mode: "stream"
	}
}

resource: bad: {
	package: "p"
	rule: "Orphan": {
		when: [{bind: "e", type: "model.Missing"}]
		then: log: "never"
	}
}
`

func writeRulesDir(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.cue"), []byte(content), 0644))
	return dir
}

func TestValidateShippedRules(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(testOptions("text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{testutil.RulesDir()})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ All rules valid (2 kbase(s): ")
	assert.Contains(t, buf.String(), "newRules")
}

func TestValidateDefaultsToConfiguredDir(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(testOptions("text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ All rules valid")
}

func TestValidateShippedRulesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(testOptions("json"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{testutil.RulesDir()})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.KBases, 2)

	byName := map[string]KBaseSummary{}
	for _, kb := range resp.Data.KBases {
		byName[kb.Name] = kb
	}
	assert.True(t, byName["rules"].Default)
	assert.Len(t, byName["rules"].Rules, 2)
	assert.Len(t, byName["newRules"].Rules, 3)
	assert.NotEqual(t, byName["rules"].Fingerprint, byName["newRules"].Fingerprint)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(testOptions("text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/directory/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), compiler.ErrCodeNotFound)
	assert.Contains(t, buf.String(), "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(testOptions("text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), compiler.ErrCodeNoFiles)
}

func TestValidateUndeclaredType(t *testing.T) {
	dir := writeRulesDir(t, undeclaredRules)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(testOptions("text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, buf.String(), "✗ Validation failed")
	assert.Contains(t, buf.String(), compiler.ErrUndeclaredType)
	assert.Contains(t, buf.String(), "kbase.rules.")
}

func TestValidateUndeclaredTypeJSON(t *testing.T) {
	dir := writeRulesDir(t, undeclaredRules)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(testOptions("json"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, compiler.ErrUndeclaredType, resp.Error.Code)
}

func TestValidateRulesDir(t *testing.T) {
	summaries, errs, err := ValidateRulesDir(testutil.RulesDir())
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Len(t, summaries, 2)
}

func TestMapCompileErrorToCode(t *testing.T) {
	tests := map[string]string{
		"package":        compiler.ErrPackageEmpty,
		"when":           compiler.ErrWhenEmpty,
		"declare.role":   compiler.ErrInvalidRole,
		"when.type":      compiler.ErrUndeclaredType,
		"when.after.of":  compiler.ErrUndefinedBinding,
		"when.after.max": compiler.ErrInvalidWindow,
		"cue":            compiler.ErrCodeBuildFailed,
		"resources":      compiler.ErrCodeGeneric,
	}
	for field, want := range tests {
		assert.Equal(t, want, mapCompileErrorToCode(field), field)
	}
}
