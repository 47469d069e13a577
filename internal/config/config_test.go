package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, &Config{
		LogLevel:     "warn",
		LogFormat:    "text",
		RulesDir:     "testdata/rules",
		ScenariosDir: "testdata/scenarios",
	}, cfg)
}

func TestLoad_Environment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CEPSNAP_LOG_LEVEL", "debug")
	t.Setenv("CEPSNAP_LOG_FORMAT", "json")
	t.Setenv("CEPSNAP_RULES_DIR", "/rules")
	t.Setenv("CEPSNAP_METRICS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/rules", cfg.RulesDir)
	assert.True(t, cfg.Metrics)
}

func TestLoadFiles_DotenvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CEPSNAP_RULES_DIR=/from-file\nCEPSNAP_LOG_LEVEL=error\n"), 0644))
	t.Setenv("CEPSNAP_LOG_LEVEL", "info")
	// Registered so the value godotenv sets is restored after the test.
	t.Setenv("CEPSNAP_RULES_DIR", "")
	require.NoError(t, os.Unsetenv("CEPSNAP_RULES_DIR"))

	cfg, err := LoadFiles(path)
	require.NoError(t, err)
	assert.Equal(t, "/from-file", cfg.RulesDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFiles_Missing(t *testing.T) {
	_, err := LoadFiles(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"level", "CEPSNAP_LOG_LEVEL", "loud"},
		{"format", "CEPSNAP_LOG_FORMAT", "xml"},
		{"metrics", "CEPSNAP_METRICS", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "info", "json")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(&buf, "info", "xml")
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
