package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cepsnap/internal/ir"
	"github.com/roach88/cepsnap/internal/store"
)

// TraceSnapshot is the golden form of a run: the tally, the final clock and
// every journaled firing, written as canonical JSON.
type TraceSnapshot struct {
	Scenario   string         `json:"scenario"`
	Counts     map[string]int `json:"counts"`
	FinalClock int64          `json:"final_clock"`
	Trace      []store.Firing `json:"trace"`
}

// MarshalTrace renders result as canonical JSON for golden comparison.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	return ir.Canonicalize(TraceSnapshot{
		Scenario:   scenarioName,
		Counts:     result.Counts,
		FinalClock: result.FinalClock,
		Trace:      result.Trace,
	})
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can assert on it further. Test failure
// (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against
// testdata/golden/{scenarioName}.golden.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
