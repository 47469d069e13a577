package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/cepsnap/internal/harness"
	"github.com/roach88/cepsnap/internal/listener"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Update      bool   // regenerate golden files
	Filter      string // scenario filter (glob pattern)
	Metrics     bool   // print fire counters after the run
	SnapshotDir string // write each scenario's snapshot here
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string         `json:"name"`
	Pass   bool           `json:"pass"`
	Counts map[string]int `json:"counts,omitempty"`
	Errors []string       `json:"errors,omitempty"`
}

// RunResult holds the overall run result.
type RunResult struct {
	Scenarios []ScenarioResult   `json:"scenarios"`
	Passed    int                `json:"passed"`
	Failed    int                `json:"failed"`
	Total     int                `json:"total"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [scenarios-dir]",
		Short: "Run snapshot scenarios",
		Long: `Run every scenario file in a directory.

Each scenario feeds its first batch of events, snapshots the session,
restores it and feeds the second batch, then checks its assertions. When
golden/<scenario>.golden exists next to the scenario file the firing trace
must match it byte for byte. The directory defaults to CEPSNAP_SCENARIOS_DIR.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  cepsnap run ./testdata/scenarios
  cepsnap run ./testdata/scenarios --filter "new_*"
  cepsnap run ./testdata/scenarios --update
  cepsnap run ./testdata/scenarios --format json --metrics`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.config().ScenariosDir
			if len(args) == 1 {
				dir = args[0]
			}
			return runScenarios(opts, dir, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", rootOpts.config().Metrics, "report rule fire counters")
	cmd.Flags().StringVar(&opts.SnapshotDir, "snapshot-dir", "", "write each scenario's snapshot to <dir>/<scenario>.snap")

	return cmd
}

func runScenarios(opts *RunOptions, scenariosDir string, cmd *cobra.Command) error {
	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	if opts.SnapshotDir != "" {
		if err := os.MkdirAll(opts.SnapshotDir, 0755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create snapshot directory", err)
		}
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	var (
		reg     *prometheus.Registry
		metrics *listener.Metrics
	)
	if opts.Metrics {
		reg = prometheus.NewRegistry()
		if metrics, err = listener.NewMetrics(reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
	}

	result := RunResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	for _, scenarioFile := range scenarioFiles {
		sr := runScenario(scenarioFile, opts, metrics, cmd)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if reg != nil {
		if result.Metrics, err = gatherFireCounts(reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
	}

	if opts.Format == "json" {
		return outputRunJSON(cmd, result)
	}
	return outputRunText(cmd, result)
}

// findScenarioFiles finds all YAML scenario files in a directory, sorted.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// runScenario executes a single scenario and returns the result.
func runScenario(scenarioFile string, opts *RunOptions, metrics *listener.Metrics, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	text := opts.Format != "json"
	fail := func(name string, errs ...string) ScenarioResult {
		if text {
			fmt.Fprintf(w, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		return ScenarioResult{Name: name, Pass: false, Errors: errs}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return fail(filepath.Base(scenarioFile), fmt.Sprintf("failed to load scenario: %v", err))
	}

	runOpts := []harness.Option{harness.WithLogger(opts.logger())}
	if metrics != nil {
		runOpts = append(runOpts, harness.WithListeners(metrics))
	}
	var snap bytes.Buffer
	if opts.SnapshotDir != "" {
		runOpts = append(runOpts, harness.WithSnapshotCopy(&snap))
	}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}
	opts.logger().Info("scenario finished", "scenario", scenario.Name, "pass", result.Pass, "firings", len(result.Trace))

	if opts.SnapshotDir != "" {
		path := filepath.Join(opts.SnapshotDir, scenario.Name+".snap")
		if err := os.WriteFile(path, snap.Bytes(), 0644); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to write snapshot: %v", err))
		}
	}

	traceJSON, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("failed to marshal trace: %v", err))
	}
	goldenPath := goldenFilePath(scenarioFile)

	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to create golden directory: %v", err))
		}
		if err := os.WriteFile(goldenPath, traceJSON, 0644); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to write golden file: %v", err))
		}
		if text {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", scenario.Name)
		}
		return ScenarioResult{Name: scenario.Name, Pass: true, Counts: result.Counts}
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// No golden file - assertion-based validation only
	case err != nil:
		return fail(scenario.Name, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(golden, traceJSON):
		return fail(scenario.Name, "trace does not match golden file (run with --update to regenerate)")
	}

	if !result.Pass {
		sr := fail(scenario.Name, result.Errors...)
		sr.Counts = result.Counts
		return sr
	}
	if text {
		fmt.Fprintf(w, "✓ %s\n", scenario.Name)
		if opts.Verbose {
			for _, rule := range sortedKeys(result.Counts) {
				fmt.Fprintf(w, "  %s: %d\n", rule, result.Counts[rule])
			}
		}
	}
	return ScenarioResult{Name: scenario.Name, Pass: true, Counts: result.Counts}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// gatherFireCounts reads cepsnap_rules_fired_total back out of reg, keyed
// by rule.
func gatherFireCounts(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != listener.FiredMetricName {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "rule" {
					out[lp.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// outputRunJSON outputs the run result as JSON.
func outputRunJSON(cmd *cobra.Command, result RunResult) error {
	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	if result.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
		if err := formatter.Failure(result, "E_RUN_FAILED", msg); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return formatter.Success(result)
}

// outputRunText outputs the run summary as text.
func outputRunText(cmd *cobra.Command, result RunResult) error {
	w := cmd.OutOrStdout()

	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	if result.Metrics != nil {
		fmt.Fprintln(w)
		for _, rule := range sortedKeys(result.Metrics) {
			fmt.Fprintf(w, "%s{rule=%q} %g\n", listener.FiredMetricName, rule, result.Metrics[rule])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
