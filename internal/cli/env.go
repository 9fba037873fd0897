package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vicbeneder/micruler/internal/breakpoint"
	"github.com/vicbeneder/micruler/internal/config"
	"github.com/vicbeneder/micruler/internal/engine"
	"github.com/vicbeneder/micruler/internal/ir"
	"github.com/vicbeneder/micruler/internal/phenotype"
	"github.com/vicbeneder/micruler/internal/reference"
	"github.com/vicbeneder/micruler/internal/store"
	"github.com/vicbeneder/micruler/internal/taxonomy"
)

// tableOptions selects the breakpoint table a command runs against.
type tableOptions struct {
	Breakpoints string // compiled table CSV
	Table       string // stored table name
	DB          string // SQLite store
}

func addTableFlags(cmd *cobra.Command, o *tableOptions) {
	cmd.Flags().StringVar(&o.Breakpoints, "breakpoints", "", "compiled breakpoint table CSV (default paths.breakpoints)")
	cmd.Flags().StringVar(&o.Table, "table", "", "stored breakpoint table name (default: most recent)")
	cmd.Flags().StringVar(&o.DB, "db", "", "SQLite store (default paths.database)")
}

// dbPath returns the store path from the flag or the config.
func (o *tableOptions) dbPath(cfg *config.Config) string {
	if o.DB != "" {
		return o.DB
	}
	return cfg.Paths.Database
}

// loadTable returns the breakpoint rows and a description of where they
// came from. A CSV (flag, then config) wins over the store; in the store
// an explicit table name wins over the most recent table.
func (o *tableOptions) loadTable(ctx context.Context, cfg *config.Config) ([]ir.BreakpointRecord, string, error) {
	csvPath := o.Breakpoints
	if csvPath == "" && o.Table == "" {
		csvPath = cfg.Paths.Breakpoints
	}
	if csvPath != "" {
		records, err := readTableCSV(csvPath)
		return records, csvPath, err
	}

	dbPath := o.dbPath(cfg)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, "", fmt.Errorf("no breakpoint table: set --breakpoints or compile a table into %s", dbPath)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, "", err
	}
	defer st.Close()

	name := o.Table
	if name == "" {
		latest, err := st.Latest(ctx)
		if errors.Is(err, store.ErrTableNotFound) {
			return nil, "", fmt.Errorf("no breakpoint table in %s", dbPath)
		}
		if err != nil {
			return nil, "", err
		}
		name = latest.Name
	}
	records, err := st.ReadTable(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return records, fmt.Sprintf("%s#%s", dbPath, name), nil
}

func readTableCSV(path string) ([]ir.BreakpointRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := breakpoint.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// loadCatalog returns the configured compound catalog or the embedded one.
func loadCatalog(cfg *config.Config) (*reference.Catalog, error) {
	if cfg.Paths.Catalog != "" {
		return reference.Load(cfg.Paths.Catalog)
	}
	return reference.Default()
}

// loadTaxonomy returns the configured taxonomy or the embedded one,
// memoised for batch use.
func loadTaxonomy(cfg *config.Config) (taxonomy.Service, error) {
	var (
		static *taxonomy.Static
		err    error
	)
	if cfg.Paths.Taxonomy != "" {
		static, err = taxonomy.Load(cfg.Paths.Taxonomy)
	} else {
		static, err = taxonomy.Default()
	}
	if err != nil {
		return nil, err
	}
	return taxonomy.NewCached(static), nil
}

// newRuler wires the rule set, catalog, taxonomy and breakpoint table
// into a batch runner.
func newRuler(ctx context.Context, opts *RootOptions, tables *tableOptions) (*phenotype.Ruler, error) {
	cfg := opts.Config

	loadResult, loadErrors := LoadRules(cfg.Paths.Rules, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, fmt.Errorf("loading rules: %w", loadErrors[0])
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	if errs := CheckClasses(loadResult.Rules, catalog); len(errs) > 0 {
		return nil, fmt.Errorf("checking rules: %w", errors.Join(errs...))
	}
	taxa, err := loadTaxonomy(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading taxonomy: %w", err)
	}

	eng, err := engine.New(loadResult.Rules, catalog, engine.WithMaxIterations(cfg.Engine.MaxIterations))
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}

	records, source, err := tables.loadTable(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading breakpoints: %w", err)
	}
	index := breakpoint.NewIndex(records)

	slog.Info("ruler ready",
		"rules", len(loadResult.Rules),
		"rule_source", loadResult.Source,
		"breakpoints", index.Len(),
		"table", source,
		"workers", cfg.Batch.Workers)

	agg := phenotype.NewAggregator(eng, index, taxa, catalog)
	return phenotype.NewRuler(agg, phenotype.WithWorkers(cfg.Batch.Workers)), nil
}
