// Package phenotype derives per-compound phenotypes for samples.
//
// The Aggregator handles one sample: it resolves the organism's lineage,
// classifies measured MICs against the breakpoint index, seeds a fresh
// fact store, runs the inference engine to a fixpoint and reconciles the
// measured labels with the inferred ones. The Ruler fans batches of
// samples out over a bounded worker pool.
//
// An Aggregator holds only read-only collaborators and is safe for
// concurrent use. Every run owns its fact store.
package phenotype

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vicbeneder/micruler/internal/breakpoint"
	"github.com/vicbeneder/micruler/internal/engine"
	"github.com/vicbeneder/micruler/internal/facts"
	"github.com/vicbeneder/micruler/internal/ir"
	"github.com/vicbeneder/micruler/internal/taxonomy"
)

// GroupResolver lists the phenotype groups a taxon belongs to.
// Implemented by reference.Catalog.
type GroupResolver interface {
	GroupsOf(taxon string) []string
}

// Test is one compound tested on a sample. A test carries an MIC, a
// declared label, or both; a declared label is used as measured without
// consulting the breakpoint index.
type Test struct {
	Compound string   `json:"compound" yaml:"compound"`
	MIC      *float64 `json:"mic,omitempty" yaml:"mic,omitempty"`
	Label    ir.Label `json:"label,omitempty" yaml:"label,omitempty"`
}

// Sample is one isolate submitted for phenotype inference.
type Sample struct {
	ID       string    `json:"id" yaml:"id"`
	Organism string    `json:"organism" yaml:"organism"`
	Tests    []Test    `json:"tests" yaml:"tests"`
	Markers  []ir.Fact `json:"markers,omitempty" yaml:"markers,omitempty"`
}

// Classified is the direct classification of one test.
type Classified struct {
	Compound   string               `json:"compound"`
	MIC        *float64             `json:"mic,omitempty"`
	Label      ir.Label             `json:"label"`
	Breakpoint *ir.BreakpointRecord `json:"breakpoint,omitempty"`
}

// Measured reports whether the test produced a label.
func (c Classified) Measured() bool {
	return c.Label != ir.LabelUnknown && c.Label != ""
}

// Report is the outcome of one InferPhenotype call.
type Report struct {
	SampleID      string               `json:"sample_id"`
	Organism      string               `json:"organism"`
	OrganismFound bool                 `json:"organism_found"`
	Lineage       ir.Lineage           `json:"lineage"`
	Tests         []Classified         `json:"tests"`
	Results       []ir.PhenotypeResult `json:"results"`
	Run           *engine.Result       `json:"run,omitempty"`
	Warnings      []string             `json:"warnings,omitempty"`

	// Err is set when the engine failed for this sample. Results then
	// hold the measured labels only.
	Err error `json:"-"`
}

// Result returns the reconciled result for compound.
func (r *Report) Result(compound string) (ir.PhenotypeResult, bool) {
	for _, res := range r.Results {
		if res.Compound == compound {
			return res, true
		}
	}
	return ir.PhenotypeResult{}, false
}

// Conflicts returns the results carrying a conflict note.
func (r *Report) Conflicts() []ir.PhenotypeResult {
	var out []ir.PhenotypeResult
	for _, res := range r.Results {
		if res.Conflict != "" {
			out = append(out, res)
		}
	}
	return out
}

// Aggregator runs phenotype inference for single samples.
type Aggregator struct {
	engine *engine.Engine
	index  *breakpoint.Index
	taxa   taxonomy.Service
	groups GroupResolver
}

// NewAggregator creates an aggregator. groups may be nil, in which case
// no phenotype-group organism facts are seeded.
func NewAggregator(e *engine.Engine, index *breakpoint.Index, taxa taxonomy.Service, groups GroupResolver) *Aggregator {
	return &Aggregator{
		engine: e,
		index:  index,
		taxa:   taxa,
		groups: groups,
	}
}

// Lineage resolves organism through the taxonomy service. When the
// organism cannot be resolved the lineage is the organism name alone and
// found is false. Only context errors are returned.
func (a *Aggregator) Lineage(ctx context.Context, organism string) (lineage ir.Lineage, found bool, err error) {
	lineage, err = a.taxa.LineageFor(ctx, organism)
	if err == nil {
		return lineage, true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, false, ctxErr
	}
	if !errors.Is(err, taxonomy.ErrUnknownOrganism) {
		slog.Warn("taxonomy lookup failed",
			"organism", organism,
			"error", err)
	}
	unresolvedTotal.WithLabelValues(reasonOrganism).Inc()
	return ir.Lineage{organism}, false, nil
}

// Classify classifies one test along lineage. Tests without a declared
// label and without an applicable breakpoint or a usable MIC come back
// LabelUnknown.
func (a *Aggregator) Classify(lineage ir.Lineage, t Test) Classified {
	c := Classified{Compound: t.Compound, MIC: t.MIC, Label: ir.LabelUnknown}
	if t.Label != "" && t.Label != ir.LabelUnknown {
		c.Label = t.Label
		return c
	}
	if t.MIC == nil {
		return c
	}
	if err := ir.CheckMIC(*t.MIC); err != nil {
		slog.Warn("unusable mic", "compound", t.Compound, "error", err)
		return c
	}
	label, bp, err := a.index.ClassifyLineage(lineage, t.Compound, *t.MIC)
	if err != nil {
		unresolvedTotal.WithLabelValues(reasonBreakpoint).Inc()
		return c
	}
	c.Label = label
	c.Breakpoint = &bp
	return c
}

// InferPhenotype classifies the sample's tests, runs the rule engine over
// a fresh fact store and reconciles measured with inferred labels.
//
// Engine failures (iteration cap, cancellation) are returned together
// with a report holding the measured labels, and recorded in Report.Err.
func (a *Aggregator) InferPhenotype(ctx context.Context, s Sample) (*Report, error) {
	start := time.Now()
	defer func() {
		inferenceDuration.Observe(time.Since(start).Seconds())
	}()

	lineage, found, err := a.Lineage(ctx, s.Organism)
	if err != nil {
		samplesTotal.WithLabelValues(resultCancelled).Inc()
		return nil, err
	}

	report := &Report{
		SampleID:      s.ID,
		Organism:      s.Organism,
		OrganismFound: found,
		Lineage:       lineage,
		Tests:         make([]Classified, 0, len(s.Tests)),
	}

	seen := make(map[string]bool, len(s.Tests))
	for _, t := range s.Tests {
		if seen[t.Compound] {
			slog.Warn("duplicate test ignored",
				"sample", s.ID,
				"compound", t.Compound)
			continue
		}
		seen[t.Compound] = true
		report.Tests = append(report.Tests, a.Classify(lineage, t))
	}

	seed, err := a.seed(lineage, report.Tests, s.Markers)
	if err != nil {
		samplesTotal.WithLabelValues(resultError).Inc()
		return nil, fmt.Errorf("sample %s: %w", s.ID, err)
	}

	store := facts.New()
	res, err := a.engine.Run(ctx, store, seed)
	report.Run = res
	if res != nil {
		firingsTotal.Add(float64(len(res.Firings)))
	}
	if err != nil {
		report.Err = err
		report.Results = measuredOnly(report.Tests)
		switch {
		case engine.IsNonTerminationError(err):
			samplesTotal.WithLabelValues(resultNonTermination).Inc()
		case engine.IsCancelledError(err):
			samplesTotal.WithLabelValues(resultCancelled).Inc()
		default:
			samplesTotal.WithLabelValues(resultError).Inc()
		}
		slog.Error("inference failed",
			"sample", s.ID,
			"organism", s.Organism,
			"error", err)
		return report, err
	}

	report.Results = Reconcile(report.Tests, store.Facts())
	report.Warnings = res.Warnings()
	for _, r := range report.Results {
		if r.Conflict == "" {
			continue
		}
		kind := conflictInferred
		if r.Origin == ir.OriginMeasured {
			kind = conflictMeasured
		}
		conflictsTotal.WithLabelValues(kind).Inc()
		slog.Warn("phenotype conflict",
			"sample", s.ID,
			"compound", r.Compound,
			"conflict", r.Conflict)
	}

	samplesTotal.WithLabelValues(resultOK).Inc()
	slog.Debug("sample inferred",
		"sample", s.ID,
		"run", res.RunID,
		"firings", len(res.Firings),
		"results", len(report.Results))
	return report, nil
}

// seed builds the engine's seed facts: one organism fact per lineage
// taxon and per phenotype group, then MIC facts, measured labels and
// markers.
func (a *Aggregator) seed(lineage ir.Lineage, tests []Classified, markers []ir.Fact) (engine.Seed, error) {
	var seed engine.Seed
	seen := make(map[string]bool)
	addOrganism := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		seed.Lineage = append(seed.Lineage, ir.Organism(name))
	}
	for _, taxon := range lineage {
		addOrganism(taxon)
	}
	if a.groups != nil {
		for _, taxon := range lineage {
			for _, g := range a.groups.GroupsOf(taxon) {
				addOrganism(g)
			}
		}
	}

	for _, t := range tests {
		if t.MIC != nil && ir.CheckMIC(*t.MIC) == nil {
			seed.Measurements = append(seed.Measurements, ir.MIC(t.Compound, *t.MIC))
		}
		if !t.Measured() {
			continue
		}
		f, err := ir.LabelFact(t.Compound, t.Label)
		if err != nil {
			return seed, err
		}
		seed.Measurements = append(seed.Measurements, f)
	}
	for _, m := range markers {
		if !m.Kind.IsMarker() {
			return seed, fmt.Errorf("marker %s: not a marker fact", m)
		}
		seed.Measurements = append(seed.Measurements, m)
	}
	return seed, nil
}

func measuredOnly(tests []Classified) []ir.PhenotypeResult {
	out := []ir.PhenotypeResult{}
	for _, t := range tests {
		if t.Measured() {
			out = append(out, ir.PhenotypeResult{
				Compound: t.Compound,
				Label:    t.Label,
				Origin:   ir.OriginMeasured,
			})
		}
	}
	return out
}
