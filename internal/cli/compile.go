package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vicbeneder/micruler/internal/breakpoint"
	"github.com/vicbeneder/micruler/internal/ir"
	"github.com/vicbeneder/micruler/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output CSV path
	Table  string // store table name; empty skips the store
	DB     string // store path override
}

// DroppedRow is one row removed by the merge, as reported.
type DroppedRow struct {
	Organism string `json:"organism"`
	Compound string `json:"compound"`
	Route    string `json:"route,omitempty"`
	Source   string `json:"source"`
	Reason   string `json:"reason"`
}

func droppedRow(d breakpoint.Dropped) DroppedRow {
	return DroppedRow{
		Organism: d.Record.Organism,
		Compound: d.Record.Compound,
		Route:    d.Record.Route,
		Source:   string(d.Record.Source),
		Reason:   string(d.Reason),
	}
}

// CompilationResult summarises a compiled breakpoint table.
type CompilationResult struct {
	Guideline  int              `json:"guideline"`
	Intrinsic  int              `json:"intrinsic"`
	Rows       int              `json:"rows"`
	Dropped    []DroppedRow     `json:"dropped"`
	Duplicates []string         `json:"duplicates"`
	Output     string           `json:"output,omitempty"`
	Table      *store.TableInfo `json:"table,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <guideline.csv> [intrinsic.csv]",
		Short: "Compile breakpoint tables into one resolver table",
		Long: `Merge a guideline breakpoint table with an optional intrinsic resistance
table into the compiled table the resolver reads.

Oral rows are dropped where the combination has other rows, indication-only
rows where the combination and route have other rows, and intrinsic rows
where the guideline covers the combination. Remaining duplicate
combinations are reported, not fixed.

The result is written as CSV (--output) and/or into the SQLite store
(--table). Rows of the intrinsic file are marked intrinsic regardless of
their source column.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output CSV path")
	cmd.Flags().StringVar(&opts.Table, "table", "", "store the compiled table under this name")
	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite store (default paths.database)")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	guideline, err := readTableCSV(args[0])
	if err != nil {
		return outputCompileError(formatter, args[0], err)
	}
	var intrinsic []ir.BreakpointRecord
	if len(args) == 2 {
		intrinsic, err = readTableCSV(args[1])
		if err != nil {
			return outputCompileError(formatter, args[1], err)
		}
		for i := range intrinsic {
			intrinsic[i].Source = ir.SourceIntrinsic
		}
	}
	formatter.VerboseLog("Read %d guideline and %d intrinsic row(s)", len(guideline), len(intrinsic))

	merged := breakpoint.Merge(guideline, intrinsic)
	result := &CompilationResult{
		Guideline:  len(guideline),
		Intrinsic:  len(intrinsic),
		Rows:       len(merged.Records),
		Dropped:    make([]DroppedRow, len(merged.Dropped)),
		Duplicates: make([]string, len(merged.Duplicates)),
	}
	for i, d := range merged.Dropped {
		result.Dropped[i] = droppedRow(d)
		formatter.VerboseLog("Dropped %s (%s)", d.Record.Combination(), d.Reason)
	}
	for i, w := range merged.Duplicates {
		result.Duplicates[i] = w.String()
	}

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeTableCSV(opts.Output, merged.Records); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
		result.Output = opts.Output
	}

	if opts.Table != "" {
		dbPath := opts.DB
		if dbPath == "" {
			dbPath = opts.Config.Paths.Database
		}
		info, err := writeStoreTable(cmd, dbPath, opts.Table, merged)
		if err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing table: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing table", err)
		}
		result.Table = &info
	}

	return outputCompileSuccess(formatter, result)
}

func writeTableCSV(path string, records []ir.BreakpointRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := breakpoint.WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeStoreTable(cmd *cobra.Command, dbPath, name string, merged breakpoint.MergeResult) (store.TableInfo, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return store.TableInfo{}, err
	}
	defer st.Close()
	return st.WriteTable(cmd.Context(), name, merged)
}

func (r *CompilationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Compiled %d row(s) from %d guideline and %d intrinsic row(s)\n",
		r.Rows, r.Guideline, r.Intrinsic)

	if len(r.Dropped) > 0 {
		fmt.Fprintf(&b, "\nDropped %d row(s):\n", len(r.Dropped))
		for _, d := range r.Dropped {
			fmt.Fprintf(&b, "  %s %s [%s]: %s\n", d.Organism, d.Compound, d.Source, d.Reason)
		}
	}
	if len(r.Duplicates) > 0 {
		fmt.Fprintf(&b, "\nDuplicate combinations (%d):\n", len(r.Duplicates))
		for _, d := range r.Duplicates {
			fmt.Fprintf(&b, "  %s\n", d)
		}
	}
	if r.Output != "" {
		fmt.Fprintf(&b, "\nWrote compiled table to %s\n", r.Output)
	}
	if r.Table != nil {
		fmt.Fprintf(&b, "\nStored table %q (seq %d)\n", r.Table.Name, r.Table.Seq)
	}
	return strings.TrimRight(b.String(), "\n")
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult) error {
	return formatter.Success(result)
}

// outputCompileError outputs an input error. Unreadable input is a
// command-level error (exit code 2).
func outputCompileError(formatter *OutputFormatter, path string, err error) error {
	code := ErrCodeInvalidInput
	if os.IsNotExist(err) {
		code = ErrCodeNotFound
	}
	_ = formatter.Error(code, err.Error(), map[string]string{"file": path})
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: reading %s", code, path), err)
}
