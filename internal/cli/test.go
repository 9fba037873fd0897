package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vicbeneder/micruler/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (substring of the file name)
	GoldenDir string // golden file directory (default <scenario dir>/golden)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run phenotype scenarios",
		Long: `Run scenario files against the rule set and check their assertions.

<scenarios> is a scenario file or a directory of .yaml files. When a golden
file named after the scenario exists, the sample outcomes must also match
it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  micruler test ./scenarios
  micruler test ./scenarios --filter mrsa
  micruler test ./scenarios --update
  micruler test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name contains this")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory (default <scenario dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	files, err := harness.FindScenarios(path, opts.Filter)
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error())
		}
		return formatter.Fail(ExitCommandError, ErrCodeScanError, err.Error())
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	if len(files) == 0 {
		if formatter.IsJSON() {
			return formatter.Success(result)
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	catalog, err := loadCatalog(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
	}
	h, err := harness.New(harness.WithCatalog(catalog))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
	}

	entries, err := h.RunSuite(cmd.Context(), files)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	var w io.Writer = io.Discard
	if !formatter.IsJSON() {
		w = formatter.Writer
	}
	for _, entry := range entries {
		sr := checkEntry(opts, entry)
		printScenario(w, sr, opts.Update)
		result.Scenarios = append(result.Scenarios, sr)
		result.Total++
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.IsJSON() {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter.Writer, result)
}

// checkEntry turns a suite entry into a scenario result, comparing or
// updating its golden file.
func checkEntry(opts *TestOptions, entry harness.SuiteEntry) ScenarioResult {
	name := entry.Name
	if name == "" {
		name = filepath.Base(entry.Path)
	}
	sr := ScenarioResult{Name: name}

	if entry.Err != nil {
		sr.Errors = []string{entry.Err.Error()}
		return sr
	}

	snapshot := &harness.Snapshot{ScenarioName: entry.Name, Samples: entry.Result.Samples}
	current, err := snapshot.MarshalCanonical()
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("marshal outcomes: %v", err)}
		return sr
	}
	goldenPath := goldenFilePath(opts.GoldenDir, entry)

	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			sr.Errors = []string{fmt.Sprintf("create golden directory: %v", err)}
			return sr
		}
		if err := os.WriteFile(goldenPath, current, 0644); err != nil {
			sr.Errors = []string{fmt.Sprintf("write golden file: %v", err)}
			return sr
		}
	} else {
		golden, err := os.ReadFile(goldenPath)
		switch {
		case os.IsNotExist(err):
			// No golden file: assertions only.
		case err != nil:
			sr.Errors = append(sr.Errors, fmt.Sprintf("read golden file: %v", err))
		case !bytes.Equal(golden, current):
			sr.Errors = append(sr.Errors, "outcomes do not match golden file (run with --update to regenerate)")
		}
	}

	sr.Errors = append(sr.Errors, entry.Result.Errors...)
	sr.Pass = len(sr.Errors) == 0
	return sr
}

// goldenFilePath returns <dir>/<scenario name>.golden, where dir defaults
// to the golden directory next to the scenario file.
func goldenFilePath(dir string, entry harness.SuiteEntry) string {
	if dir == "" {
		dir = filepath.Join(filepath.Dir(entry.Path), "golden")
	}
	return filepath.Join(dir, entry.Name+".golden")
}

func printScenario(w io.Writer, sr ScenarioResult, updated bool) {
	if sr.Pass {
		if updated {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
		} else {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
		}
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := formatter.encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(w io.Writer, result TestResult) error {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
