package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/cepsnap/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	LogLevel  string
	LogFormat string

	// Config supplies flag defaults.
	Config *config.Config

	// Logger is built from the log flags before any subcommand runs.
	// Logs go to stderr so they never mix with command output.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cepsnap CLI. cfg supplies
// flag defaults; nil means built-in defaults.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	if cfg == nil {
		cfg = &config.Config{LogLevel: "warn", LogFormat: "text"}
	}
	opts := &RootOptions{Config: cfg}

	cmd := &cobra.Command{
		Use:   "cepsnap",
		Short: "cepsnap - CEP session snapshot harness",
		Long: `Drive rule sessions on a pseudo clock, snapshot them between two batches
of events, restore them (optionally against a different kbase) and check
which rules fired.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := opts.LogLevel
			if opts.Verbose {
				level = "debug"
			}
			logger, err := config.NewLogger(cmd.ErrOrStderr(), level, opts.LogFormat)
			if err != nil {
				return err
			}
			opts.Logger = logger
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", cfg.LogFormat, "log format (text|json)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))

	return cmd
}

// config returns the flag defaults, empty when unset.
func (o *RootOptions) config() *config.Config {
	if o.Config != nil {
		return o.Config
	}
	return &config.Config{}
}

// logger returns the configured logger, or a discarding one when a
// subcommand runs without the root command.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
