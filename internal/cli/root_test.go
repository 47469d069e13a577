package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cepsnap/internal/config"
	"github.com/roach88/cepsnap/internal/testutil"
)

// testOptions returns root options pointing at the shipped testdata.
func testOptions(format string) *RootOptions {
	return &RootOptions{
		Format: format,
		Config: &config.Config{
			LogLevel:     "warn",
			LogFormat:    "text",
			RulesDir:     testutil.RulesDir(),
			ScenariosDir: testutil.ScenariosDir(),
		},
	}
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(nil)
	require.NotNil(t, cmd)
	assert.Equal(t, "cepsnap", cmd.Use)
	assert.Contains(t, cmd.Long, "pseudo clock")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)

	for _, cmdName := range []string{"validate", "run", "inspect"} {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(&config.Config{LogLevel: "info", LogFormat: "json"})

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
	assert.Equal(t, "info", cmd.PersistentFlags().Lookup("log-level").DefValue)
	assert.Equal(t, "json", cmd.PersistentFlags().Lookup("log-format").DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand(&config.Config{LogLevel: "warn", LogFormat: "text", Metrics: true})
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"update", "filter", "snapshot-dir"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "true", runCmd.Flags().Lookup("metrics").DefValue)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	cmd := NewRootCommand(nil)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", testutil.RulesDir(), "--format", "yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	cmd := NewRootCommand(nil)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", testutil.RulesDir(), "--log-level", "loud"})

	require.Error(t, cmd.Execute())
}

func TestRootCommand_VerboseLogsToStderr(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand(&config.Config{LogLevel: "warn", LogFormat: "text", ScenariosDir: testutil.ScenariosDir()})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"run", "--verbose", "--filter", "same_*"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "✓ same_rule_base")
	assert.Contains(t, errOut.String(), "scenario finished")
	assert.NotContains(t, out.String(), "scenario finished")
}
