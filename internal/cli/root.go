package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vicbeneder/micruler/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string // explicit config file; empty searches the working directory
	MetricsOut string // file receiving a metrics dump after the command

	// Config is loaded before any subcommand runs.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the micruler CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "micruler",
		Short: "micruler - MIC interpretation and expert rules",
		Long: `Interpret minimum inhibitory concentrations against clinical breakpoints
and apply interpretive expert rules to infer whole antimicrobial phenotypes.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return setup(opts, cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.MetricsOut == "" {
				return nil
			}
			if err := WriteMetrics(opts.MetricsOut); err != nil {
				return WrapExitError(ExitCommandError, "writing metrics", err)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./"+config.DefaultFileName+" if present)")
	cmd.PersistentFlags().StringVar(&opts.MetricsOut, "metrics-out", "", "write Prometheus metrics to this file after the command")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewLookupCommand(opts))
	cmd.AddCommand(NewClassifyCommand(opts))
	cmd.AddCommand(NewPhenotypeCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))

	return cmd
}

// setup loads the configuration and installs the default logger.
// Logs go to stderr so JSON output on stdout stays parseable.
func setup(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	opts.Config = cfg
	slog.SetDefault(cfg.Logging.NewLogger(cmd.ErrOrStderr()))
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
