package testutil

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/roach88/cepsnap/internal/model"
)

// RepoRoot returns the module root directory.
func RepoRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..")
}

// RulesDir returns testdata/rules, the sample rule artifacts.
func RulesDir() string {
	return filepath.Join(RepoRoot(), "testdata", "rules")
}

// ScenariosDir returns testdata/scenarios.
func ScenariosDir() string {
	return filepath.Join(RepoRoot(), "testdata", "scenarios")
}

// MustTimestamp parses a yyyyMMdd:HHmmssSSS timestamp or fails the test.
func MustTimestamp(t testing.TB, s string) time.Time {
	t.Helper()
	ts, err := model.ParseTimestamp(s)
	if err != nil {
		t.Fatalf("MustTimestamp(%q): %v", s, err)
	}
	return ts
}
