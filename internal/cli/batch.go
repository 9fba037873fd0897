package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vicbeneder/micruler/internal/ir"
	"github.com/vicbeneder/micruler/internal/phenotype"
)

// BatchOptions holds flags shared by lookup, classify and phenotype.
type BatchOptions struct {
	*RootOptions
	tableOptions
	Workers       int
	MaxIterations int
}

func addBatchFlags(cmd *cobra.Command, o *BatchOptions) {
	addTableFlags(cmd, &o.tableOptions)
	cmd.Flags().IntVar(&o.Workers, "workers", 0, "concurrent samples (default batch.workers)")
	cmd.Flags().IntVar(&o.MaxIterations, "max-iterations", 0, "rule firings per sample (default engine.max_iterations)")
}

// applyOverrides copies set flags over the loaded config.
func (o *BatchOptions) applyOverrides() {
	if o.Workers > 0 {
		o.Config.Batch.Workers = o.Workers
	}
	if o.MaxIterations > 0 {
		o.Config.Engine.MaxIterations = o.MaxIterations
	}
}

// BatchResult is the JSON payload of the batch commands.
type BatchResult struct {
	Rows []phenotype.Row `json:"rows"`
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lookup <queries.csv>",
		Short: "Resolve breakpoints for organism/compound pairs",
		Long: `Resolve the applicable breakpoint for each organism/compound pair.

The input is a CSV with an organism,compound header, or a YAML/JSON list of
{organism, compound}. "-" reads stdin. Pairs that cannot be resolved are
reported with "Organism not found" or "Breakpoint not found".`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(opts, args[0], cmd)
		},
	}
	addBatchFlags(cmd, opts)
	return cmd
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "classify <measurements.csv>",
		Short: "Classify MICs, filling unclassified rows from the expert rules",
		Long: `Classify each measurement against its breakpoint.

The input CSV needs organism and compound columns; sample_id, mic and label
are optional. Rows sharing a sample_id form one sample and run through the
expert rules; a row the breakpoint table cannot classify takes its
sample's inferred label. Rows without a sample_id are classified on their
own. One output row per input row, in input order.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeasurements(opts, args[0], cmd, (*phenotype.Ruler).ClassifySamples)
		},
	}
	addBatchFlags(cmd, opts)
	return cmd
}

// NewPhenotypeCommand creates the phenotype command.
func NewPhenotypeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "phenotype <measurements.csv>",
		Short: "Infer whole phenotypes",
		Long: `Classify each measurement and append, after each sample's last row, one
row per compound the expert rules inferred for that sample.

Inferred rows carry origin "inferred" and no MIC. Conflicts between
measured and inferred labels are kept on the measured row. A sample whose
rules do not settle within the iteration cap keeps its measured labels and
is noted NON_TERMINATION.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeasurements(opts, args[0], cmd, (*phenotype.Ruler).WholePhenotype)
		},
	}
	addBatchFlags(cmd, opts)
	return cmd
}

func runLookup(opts *BatchOptions, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	queries, err := ReadQueries(input)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("%s: %v", input, err))
	}
	opts.applyOverrides()
	ruler, err := newRuler(cmd.Context(), opts.RootOptions, &opts.tableOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
	}

	rows, err := ruler.QueryBreakpoints(cmd.Context(), queries)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeEngineFailed, err.Error())
	}
	return outputRows(formatter, rows, false)
}

type batchFunc func(*phenotype.Ruler, context.Context, []phenotype.Measurement) ([]phenotype.Row, error)

func runMeasurements(opts *BatchOptions, input string, cmd *cobra.Command, run batchFunc) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ms, err := ReadMeasurements(input)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("%s: %v", input, err))
	}
	opts.applyOverrides()
	ruler, err := newRuler(cmd.Context(), opts.RootOptions, &opts.tableOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
	}
	formatter.VerboseLog("Classifying %d row(s) with %d worker(s)", len(ms), ruler.Workers())

	rows, err := run(ruler, cmd.Context(), ms)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeEngineFailed, err.Error())
	}
	return outputRows(formatter, rows, true)
}

// outputRows prints rows as JSON or as an aligned text table.
func outputRows(formatter *OutputFormatter, rows []phenotype.Row, withLabels bool) error {
	if formatter.IsJSON() {
		return formatter.Success(BatchResult{Rows: rows})
	}
	return writeRowTable(formatter.Writer, rows, withLabels)
}

func writeRowTable(w io.Writer, rows []phenotype.Row, withLabels bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if withLabels {
		fmt.Fprintln(tw, "SAMPLE\tORGANISM\tCOMPOUND\tMIC\tS\tR\tMATCHED\tLABEL\tORIGIN\tQUALIFIER\tNOTE")
	} else {
		fmt.Fprintln(tw, "ORGANISM\tCOMPOUND\tS\tR\tMATCHED\tNOTE")
	}
	for _, r := range rows {
		note := r.Note
		if r.Conflict != "" {
			if note != "" {
				note += "; "
			}
			note += r.Conflict
		}
		if withLabels {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.SampleID, r.Organism, r.Compound, optFloat(r.MIC), optFloat(r.SThreshold), optFloat(r.RThreshold),
				r.MatchedOrganism, r.Label, r.Origin, r.Qualifier, note)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Organism, r.Compound, optFloat(r.SThreshold), optFloat(r.RThreshold), r.MatchedOrganism, note)
		}
	}
	return tw.Flush()
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return ir.FormatMIC(*v)
}
