package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vicbeneder/micruler/internal/breakpoint"
	"github.com/vicbeneder/micruler/internal/ir"
	"github.com/vicbeneder/micruler/internal/store"
)

// TablesOptions holds flags for the tables command group.
type TablesOptions struct {
	*RootOptions
	DB       string
	Dropped  bool
	Organism string
	Compound string
}

// NewTablesCommand creates the tables command group.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect compiled breakpoint tables in the store",
	}
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "SQLite store (default paths.database)")

	cmd.AddCommand(
		&cobra.Command{
			Use:           "list",
			Short:         "List stored tables",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTablesList(opts, cmd)
			},
		},
		newTablesShowCommand(opts),
		&cobra.Command{
			Use:           "delete <name>",
			Short:         "Delete a stored table",
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTablesDelete(opts, args[0], cmd)
			},
		},
	)
	return cmd
}

func newTablesShowCommand(opts *TablesOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a stored table as CSV",
		Long: `Print the rows of a stored table in compiled-table CSV form.

--dropped prints the rows the merge removed, with their reason, instead.
--organism and --compound together restrict the output to one exact pair.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTablesShow(opts, args[0], cmd)
		},
	}
	cmd.Flags().BoolVar(&opts.Dropped, "dropped", false, "show rows removed by the merge")
	cmd.Flags().StringVar(&opts.Organism, "organism", "", "exact organism name")
	cmd.Flags().StringVar(&opts.Compound, "compound", "", "exact compound name")
	return cmd
}

// openStore opens the configured store, refusing to create a new one.
func (o *TablesOptions) openStore() (*store.Store, string, error) {
	path := o.DB
	if path == "" {
		path = o.Config.Paths.Database
	}
	if _, err := os.Stat(path); err != nil {
		return nil, path, fmt.Errorf("store not found: %s", path)
	}
	st, err := store.Open(path)
	return st, path, err
}

func runTablesList(opts *TablesOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, path, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error())
	}
	defer st.Close()

	tables, err := st.Tables(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
	}
	formatter.VerboseLog("Store: %s", path)

	if formatter.IsJSON() {
		return formatter.Success(tables)
	}
	if len(tables) == 0 {
		fmt.Fprintln(formatter.Writer, "no tables")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSEQ\tROWS\tDROPPED\tDUPLICATES")
	for _, t := range tables {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", t.Name, t.Seq, t.Rows, t.Dropped, t.Duplicates)
	}
	return tw.Flush()
}

// DroppedResult is the JSON payload of tables show --dropped.
type DroppedResult struct {
	Table   string       `json:"table"`
	Dropped []DroppedRow `json:"dropped"`
}

// ShowResult is the JSON payload of tables show.
type ShowResult struct {
	Table   string                `json:"table"`
	Records []ir.BreakpointRecord `json:"records"`
}

func runTablesShow(opts *TablesOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if (opts.Organism == "") != (opts.Compound == "") {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "--organism and --compound must be given together")
	}
	if opts.Dropped && opts.Organism != "" {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "--dropped cannot be combined with --organism")
	}

	st, _, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error())
	}
	defer st.Close()

	ctx := cmd.Context()
	if opts.Dropped {
		dropped, err := st.ReadDropped(ctx, name)
		if err != nil {
			return failStoreRead(formatter, err)
		}
		rows := make([]DroppedRow, len(dropped))
		for i, d := range dropped {
			rows[i] = droppedRow(d)
		}
		if formatter.IsJSON() {
			return formatter.Success(DroppedResult{Table: name, Dropped: rows})
		}
		return writeDroppedTable(formatter, dropped)
	}

	var records []ir.BreakpointRecord
	if opts.Organism != "" {
		records, err = st.Lookup(ctx, name, opts.Organism, opts.Compound)
	} else {
		records, err = st.ReadTable(ctx, name)
	}
	if err != nil {
		return failStoreRead(formatter, err)
	}
	if formatter.IsJSON() {
		return formatter.Success(ShowResult{Table: name, Records: records})
	}
	return breakpoint.WriteCSV(formatter.Writer, records)
}

func writeDroppedTable(formatter *OutputFormatter, dropped []breakpoint.Dropped) error {
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORGANISM\tCOMPOUND\tS\tR\tROUTE\tINDICATION\tSOURCE\tREASON")
	for _, d := range dropped {
		r := d.Record
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Organism, r.Compound, ir.FormatMIC(r.SThreshold), ir.FormatMIC(r.RThreshold),
			r.Route, r.Indication, r.Source, d.Reason)
	}
	return tw.Flush()
}

func failStoreRead(formatter *OutputFormatter, err error) error {
	if errors.Is(err, store.ErrTableNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error())
	}
	return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
}

func runTablesDelete(opts *TablesOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, _, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error())
	}
	defer st.Close()

	deleted, err := st.DeleteTable(cmd.Context(), name)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error())
	}
	if !deleted {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("%s: %v", name, store.ErrTableNotFound))
	}
	if formatter.IsJSON() {
		return formatter.Success(map[string]string{"deleted": name})
	}
	fmt.Fprintf(formatter.Writer, "✓ deleted %s\n", name)
	return nil
}
