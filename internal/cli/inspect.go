package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cepsnap/internal/container"
	"github.com/roach88/cepsnap/internal/engine"
	"github.com/roach88/cepsnap/internal/model"
	"github.com/roach88/cepsnap/internal/snapshot"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	RuleBase string // restore against this kbase instead of the embedded one
	Rules    string // rules directory holding RuleBase
}

// InspectResult describes a restored snapshot.
type InspectResult struct {
	RuleBase    string        `json:"rule_base"`
	Fingerprint string        `json:"fingerprint"`
	Rules       []string      `json:"rules"`
	Session     string        `json:"session"`
	Clock       string        `json:"clock"`
	ClockMS     int64         `json:"clock_ms"`
	Facts       []FactSummary `json:"facts"`
	Agenda      int           `json:"agenda"`
	Timers      int           `json:"timers"`
}

// FactSummary is one live fact.
type FactSummary struct {
	Handle    int64  `json:"handle"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Value     string `json:"value"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <snapshot-file>",
		Short: "Restore a snapshot and describe the session",
		Long: `Restore a snapshot written by "cepsnap run --snapshot-dir" and print the
restored session: rule base, clock, live facts, pending activations and
timers.

With --rule-base the snapshot is restored against that kbase from --rules
instead of the rule base embedded in the snapshot. Rules new to the kbase
are evaluated against the restored facts and show up as pending
activations.

Examples:
  cepsnap inspect snaps/same_rule_base.snap
  cepsnap inspect snaps/same_rule_base.snap --rule-base newRules --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RuleBase, "rule-base", "", "restore against this kbase")
	cmd.Flags().StringVar(&opts.Rules, "rules", rootOpts.config().RulesDir, "rules directory for --rule-base")

	return cmd
}

func runInspect(opts *InspectOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var rb *engine.RuleBase
	if opts.RuleBase != "" {
		c, err := container.Load(opts.Rules)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load rules", err)
		}
		if rb, err = c.RuleBase(opts.RuleBase); err != nil {
			return WrapExitError(ExitCommandError, "failed to select kbase", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open snapshot", err)
	}
	defer f.Close()

	s, err := snapshot.Load(f, rb, snapshot.WithLogger(opts.logger()))
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to restore snapshot", err)
	}
	defer s.Dispose()

	result := describe(s)
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "rule base:   %s (%s)\n", result.RuleBase, result.Fingerprint)
	fmt.Fprintf(w, "rules:       %s\n", strings.Join(result.Rules, ", "))
	fmt.Fprintf(w, "clock:       %s (%d)\n", result.Clock, result.ClockMS)
	fmt.Fprintf(w, "agenda:      %d\n", result.Agenda)
	fmt.Fprintf(w, "timers:      %d\n", result.Timers)
	fmt.Fprintf(w, "facts:       %d\n", len(result.Facts))
	for _, fs := range result.Facts {
		fmt.Fprintf(w, "  [%d] %s %s\n", fs.Handle, fs.Type, fs.Value)
	}
	return nil
}

func describe(s *engine.Session) InspectResult {
	rb := s.RuleBase()
	clock := s.Clock()
	result := InspectResult{
		RuleBase:    rb.Name(),
		Fingerprint: rb.Fingerprint(),
		Rules:       rb.RuleKeys(),
		Session:     s.ID(),
		Clock:       model.FormatTimestamp(clock.CurrentTime()),
		ClockMS:     clock.Current(),
		Facts:       []FactSummary{},
		Agenda:      s.AgendaSize(),
		Timers:      s.PendingTimers(),
	}
	for _, h := range s.Facts() {
		result.Facts = append(result.Facts, FactSummary{
			Handle:    h.ID(),
			Type:      h.Type(),
			Timestamp: model.FormatTimestamp(time.UnixMilli(h.Timestamp())),
			Value:     fmt.Sprint(h.Fact()),
		})
	}
	return result
}

// errorCode names the engine error kind of err for JSON output.
func errorCode(err error) string {
	switch {
	case engine.IsEncodingError(err):
		return string(engine.ErrCodeEncoding)
	case engine.IsSchemaError(err):
		return string(engine.ErrCodeSchema)
	case engine.IsConfigError(err):
		return string(engine.ErrCodeConfig)
	case engine.IsContractError(err):
		return string(engine.ErrCodeContract)
	default:
		return "E001"
	}
}
