package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vicbeneder/micruler/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Source   string                  `json:"source"`
	Files    int                     `json:"files"`
	Rules    int                     `json:"rules"`
	Errors   []CLIError              `json:"errors,omitempty"`
	Cycles   []compiler.CycleWarning `json:"cycles,omitempty"`
	Warnings []string                `json:"-"`
}

func (r ValidationResult) String() string {
	return fmt.Sprintf("✓ %d rule(s) in %d file(s) valid (%s)", r.Rules, r.Files, r.Source)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rules-dir]",
		Short: "Validate an interpretive rule set",
		Long: `Validate the CUE rule files of a directory without running them.

Every file is compiled, rule IDs and bindings are checked, compound
classes are checked against the catalog, and the rule graph is analysed
for cycles. Cycles are reported as warnings: refraction settles most of
them and the iteration cap catches the rest.

Without an argument the configured paths.rules directory is used, or the
embedded rule set when none is configured.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.Config.Paths.Rules
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := LoadRules(dir, LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil {
		code, message := parseLoadError(loadErrors[0])
		return formatter.Fail(ExitCommandError, code, message)
	}
	formatter.VerboseLog("Compiled %d rule(s) from %d file(s) in %s", len(loadResult.Rules), loadResult.FileCount, loadResult.Source)

	catalog, err := loadCatalog(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
	}
	errs := append(loadErrors, CheckClasses(loadResult.Rules, catalog)...)

	result := ValidationResult{
		Valid:  len(errs) == 0,
		Source: loadResult.Source,
		Files:  loadResult.FileCount,
		Rules:  len(loadResult.Rules),
	}
	if len(errs) > 0 {
		for _, e := range errs {
			code, message := parseLoadError(e)
			result.Errors = append(result.Errors, CLIError{Code: code, Message: message})
		}
		return outputValidationErrors(formatter, result, errs)
	}

	result.Cycles = compiler.AnalyzeCycles(loadResult.Rules, catalog)
	for _, c := range result.Cycles {
		formatter.VerboseLog("Cycle: %s", strings.Join(c.Path, " → "))
		result.Warnings = append(result.Warnings, c.Message)
	}
	return formatter.SuccessWithWarnings(result, result.Warnings)
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Pos.IsValid() {
			return loadErr.Code, fmt.Sprintf("%s:%d:%d: %s",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), loadErr.Message)
		}
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult, errs []error) error {
	if formatter.IsJSON() {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &result.Errors[0],
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range result.Errors {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", e.Code, e.Message)
	}
	fmt.Fprintln(formatter.Writer)

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
