package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/vicbeneder/micruler/internal/breakpoint"
	"github.com/vicbeneder/micruler/internal/engine"
	"github.com/vicbeneder/micruler/internal/ir"
	"github.com/vicbeneder/micruler/internal/phenotype"
	"github.com/vicbeneder/micruler/internal/reference"
	"github.com/vicbeneder/micruler/internal/rulebase"
	"github.com/vicbeneder/micruler/internal/taxonomy"
	"github.com/vicbeneder/micruler/internal/testutil"
)

// Harness runs scenarios against one catalog and taxonomy.
type Harness struct {
	catalog *reference.Catalog
	taxa    taxonomy.Service
	logger  *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithCatalog replaces the embedded compound catalog.
func WithCatalog(c *reference.Catalog) Option {
	return func(h *Harness) { h.catalog = c }
}

// WithTaxonomy replaces the embedded taxonomy.
func WithTaxonomy(t taxonomy.Service) Option {
	return func(h *Harness) { h.taxa = t }
}

// WithLogger sets the logger for scenario progress.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a harness over the embedded catalog and taxonomy unless
// options replace them.
func New(opts ...Option) (*Harness, error) {
	h := &Harness{logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	if h.catalog == nil {
		c, err := reference.Default()
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		h.catalog = c
	}
	if h.taxa == nil {
		t, err := taxonomy.Default()
		if err != nil {
			return nil, fmt.Errorf("load taxonomy: %w", err)
		}
		h.taxa = t
	}
	return h, nil
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	h, err := New()
	if err != nil {
		return nil, err
	}
	return h.Run(context.Background(), scenario)
}

// Run executes a scenario and evaluates its assertions.
//
// Execution flow:
//  1. Load the rule set (embedded or the scenario's directory)
//  2. Build the breakpoint index from the scenario rows
//  3. Infer every sample in order with sequential run IDs
//  4. Evaluate assertions against the outcomes
//
// Setup failures (rules that do not compile, a cancelled context) are
// returned as errors. Engine failures of a sample are recorded in its
// outcome so error assertions can match them.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	rules, err := h.loadRules(scenario)
	if err != nil {
		return nil, err
	}

	prefix := scenario.RunID
	if prefix == "" {
		prefix = scenario.Name
	}
	opts := []engine.EngineOption{engine.WithRunIDGenerator(testutil.NewSequentialRunIDs(prefix))}
	if scenario.MaxIterations > 0 {
		opts = append(opts, engine.WithMaxIterations(scenario.MaxIterations))
	}
	eng, err := engine.New(rules, h.catalog, opts...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	records := make([]ir.BreakpointRecord, len(scenario.Breakpoints))
	for i, b := range scenario.Breakpoints {
		records[i] = b.Record()
	}
	agg := phenotype.NewAggregator(eng, breakpoint.NewIndex(records), h.taxa, h.catalog)

	h.logger.Debug("running scenario",
		"scenario", scenario.Name,
		"samples", len(scenario.Samples),
		"rules", len(rules))

	result := NewResult()
	for _, sample := range scenario.Samples {
		outcome, err := h.runSample(ctx, agg, sample)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", sample.ID, err)
		}
		result.Samples = append(result.Samples, outcome)
	}

	for i, a := range scenario.Assertions {
		outcome, ok := result.Sample(a.Sample)
		if !ok {
			result.AddError(fmt.Sprintf("assertions[%d]: unknown sample %q", i, a.Sample))
			continue
		}
		if err := evaluateAssertion(outcome, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"errors", len(result.Errors))
	return result, nil
}

func (h *Harness) runSample(ctx context.Context, agg *phenotype.Aggregator, sample phenotype.Sample) (SampleOutcome, error) {
	outcome := SampleOutcome{
		ID:       sample.ID,
		Organism: sample.Organism,
		Firings:  []string{},
		Results:  []ir.PhenotypeResult{},
	}

	report, err := agg.InferPhenotype(ctx, sample)
	if report == nil {
		return outcome, err
	}
	if err != nil {
		var re *engine.RuntimeError
		if !errors.As(err, &re) || re.Code == engine.ErrCodeCancelled {
			return outcome, err
		}
		outcome.ErrorCode = string(re.Code)
	}

	if report.Run != nil {
		outcome.RunID = report.Run.RunID
		for _, f := range report.Run.Firings {
			outcome.Firings = append(outcome.Firings, f.RuleID)
		}
	}
	outcome.Results = append(outcome.Results, report.Results...)
	return outcome, nil
}

func (h *Harness) loadRules(scenario *Scenario) ([]ir.Rule, error) {
	var (
		rules []ir.Rule
		err   error
	)
	if scenario.Rules == "" {
		rules, err = rulebase.Default()
	} else {
		rules, err = rulebase.Load(os.DirFS(scenario.Rules), ".")
	}
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if err := rulebase.Check(rules, h.catalog); err != nil {
		return nil, fmt.Errorf("check rules: %w", err)
	}
	return rules, nil
}
