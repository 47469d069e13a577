package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cepsnap/internal/compiler"
	"github.com/roach88/cepsnap/internal/engine"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	KBases []KBaseSummary             `json:"kbases,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// KBaseSummary describes one valid kbase.
type KBaseSummary struct {
	Name        string   `json:"name"`
	Default     bool     `json:"default"`
	Rules       []string `json:"rules"`
	Fingerprint string   `json:"fingerprint"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rules-dir]",
		Short: "Compile and validate rule artifacts",
		Long: `Compile and validate the CUE rule artifacts in a directory.

Every kbase is linked against its resources and checked; all problems are
reported at once. The directory defaults to CEPSNAP_RULES_DIR.

Exit codes:
  0 - All kbases valid
  1 - Validation failed
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.config().RulesDir
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	summaries, validationErrors, err := ValidateRulesDir(rulesDir)
	if err != nil {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, compiler.ErrCodeGeneric, err.Error())
	}

	for _, s := range summaries {
		formatter.VerboseLog("kbase %s: %d rule(s), fingerprint %s", s.Name, len(s.Rules), s.Fingerprint)
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}
	return outputValidateSuccess(formatter, summaries)
}

// ValidateRulesDir compiles every kbase in rulesDir and validates it.
// A non-nil error means the directory could not be loaded at all; compile
// and semantic problems are returned as validation errors.
func ValidateRulesDir(rulesDir string) ([]KBaseSummary, []compiler.ValidationError, error) {
	loadResult, loadErrors := compiler.LoadDir(rulesDir, compiler.LoadModeCollectAll)
	if loadResult == nil {
		return nil, nil, loadErrors[0]
	}

	var all []compiler.ValidationError
	for _, err := range loadErrors {
		all = append(all, toValidationError(err))
	}

	var summaries []KBaseSummary
	for _, kb := range loadResult.KBases {
		def, err := compiler.Link(kb, loadResult.Resources)
		if err != nil {
			all = append(all, toValidationError(err))
			continue
		}
		if errs := compiler.Validate(def); len(errs) > 0 {
			for _, e := range errs {
				e.Field = "kbase." + kb.Name + "." + e.Field
				all = append(all, e)
			}
			continue
		}
		rb, err := engine.NewRuleBase(def)
		if err != nil {
			all = append(all, compiler.ValidationError{
				Field:   "kbase." + kb.Name,
				Message: err.Error(),
				Code:    compiler.ErrCodeGeneric,
			})
			continue
		}
		summaries = append(summaries, KBaseSummary{
			Name:        kb.Name,
			Default:     kb.Default,
			Rules:       rb.RuleKeys(),
			Fingerprint: rb.Fingerprint(),
		})
	}
	return summaries, all, nil
}

// toValidationError converts a load or compile error, keeping its line.
func toValidationError(err error) compiler.ValidationError {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return compiler.ValidationError{
			Field:   "load",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    lineOf(loadErr.Pos),
		}
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.ValidationError{
			Field:   compileErr.Field,
			Message: compileErr.Message,
			Code:    mapCompileErrorToCode(compileErr.Field),
			Line:    lineOf(compileErr.Pos),
		}
	}
	return compiler.ValidationError{
		Field:   "rules",
		Message: err.Error(),
		Code:    compiler.ErrCodeGeneric,
	}
}

// mapCompileErrorToCode maps a compile error field to a validation error code.
func mapCompileErrorToCode(field string) string {
	switch {
	case field == "package":
		return compiler.ErrPackageEmpty
	case field == "when":
		return compiler.ErrWhenEmpty
	case field == "declare.role":
		return compiler.ErrInvalidRole
	case field == "when.type", field == "declare":
		return compiler.ErrUndeclaredType
	case field == "when.after.of":
		return compiler.ErrUndefinedBinding
	case strings.HasPrefix(field, "when.after"):
		return compiler.ErrInvalidWindow
	case field == "cue":
		return compiler.ErrCodeBuildFailed
	default:
		return compiler.ErrCodeGeneric
	}
}

// lineOf extracts the line number from a CUE position.
func lineOf(pos interface {
	IsValid() bool
	Line() int
}) int {
	if pos != nil && pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, summaries []KBaseSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, KBases: summaries})
	}

	names := make([]string, len(summaries))
	for i, s := range summaries {
		names[i] = s.Name
	}
	fmt.Fprintf(formatter.Writer, "✓ All rules valid (%d kbase(s): %s)\n", len(summaries), strings.Join(names, ", "))
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		if err := formatter.Failure(ValidationResult{Valid: false, Errors: errs}, errs[0].Code, errs[0].Message); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
