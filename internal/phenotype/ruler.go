package phenotype

import (
	"context"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/vicbeneder/micruler/internal/ir"
)

// Markers written to Row.Note.
const (
	NoteOrganismNotFound   = "Organism not found"
	NoteBreakpointNotFound = "Breakpoint not found"
)

// Query asks for the breakpoint of one organism/compound pair.
type Query struct {
	Organism string `json:"organism" yaml:"organism"`
	Compound string `json:"compound" yaml:"compound"`
}

// Measurement is one input row of a classification batch. Rows sharing a
// SampleID (and organism) form one sample; rows without a SampleID are
// classified on their own and never reach the engine.
//
// Markers belong to the sample: the markers of every row of a sample are
// seeded together, once each. Markers on rows without a SampleID are
// ignored.
type Measurement struct {
	SampleID string    `json:"sample_id,omitempty" yaml:"sample_id,omitempty"`
	Organism string    `json:"organism" yaml:"organism"`
	Compound string    `json:"compound" yaml:"compound"`
	MIC      *float64  `json:"mic,omitempty" yaml:"mic,omitempty"`
	Label    ir.Label  `json:"label,omitempty" yaml:"label,omitempty"`
	Markers  []ir.Fact `json:"markers,omitempty" yaml:"markers,omitempty"`
}

// Row is one output row of a batch operation.
type Row struct {
	SampleID        string    `json:"sample_id,omitempty"`
	Organism        string    `json:"organism"`
	Compound        string    `json:"compound"`
	MIC             *float64  `json:"mic,omitempty"`
	SThreshold      *float64  `json:"s_threshold,omitempty"`
	RThreshold      *float64  `json:"r_threshold,omitempty"`
	MatchedOrganism string    `json:"matched_organism,omitempty"`
	Label           ir.Label  `json:"label,omitempty"`
	Origin          ir.Origin `json:"origin,omitempty"`
	Qualifier       string    `json:"qualifier,omitempty"`
	Conflict        string    `json:"conflict,omitempty"`
	Note            string    `json:"note,omitempty"`
}

// Ruler runs batches over an Aggregator.
type Ruler struct {
	agg     *Aggregator
	workers int
}

// RulerOption configures a Ruler.
type RulerOption func(*Ruler)

// WithWorkers bounds the number of samples processed concurrently.
//
// Default: runtime.NumCPU().
func WithWorkers(n int) RulerOption {
	return func(r *Ruler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewRuler creates a batch runner.
func NewRuler(agg *Aggregator, opts ...RulerOption) *Ruler {
	r := &Ruler{agg: agg, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Workers returns the concurrency limit.
func (r *Ruler) Workers() int {
	return r.workers
}

// QueryBreakpoints resolves the breakpoint of every query. Output order is
// input order; unresolvable rows carry a not-found marker in Note.
func (r *Ruler) QueryBreakpoints(ctx context.Context, queries []Query) ([]Row, error) {
	rows := make([]Row, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, q := range queries {
		g.Go(func() error {
			row := Row{Organism: q.Organism, Compound: q.Compound}
			lineage, found, err := r.agg.Lineage(ctx, q.Organism)
			if err != nil {
				return err
			}
			bp, err := r.agg.index.Resolve(lineage, q.Compound)
			switch {
			case err == nil:
				setBreakpoint(&row, bp)
			case !found:
				row.Note = NoteOrganismNotFound
			default:
				row.Note = NoteBreakpointNotFound
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// ClassifySamples labels every row. Rows that carry a SampleID are run
// through the engine as part of their sample, and rows left unclassified
// take the inferred label when there is one.
func (r *Ruler) ClassifySamples(ctx context.Context, ms []Measurement) ([]Row, error) {
	return r.run(ctx, ms, false)
}

// WholePhenotype is ClassifySamples plus one extra row per compound that
// a sample never tested but the engine inferred, flagged origin inferred.
// Extra rows follow the last input row of their sample.
func (r *Ruler) WholePhenotype(ctx context.Context, ms []Measurement) ([]Row, error) {
	return r.run(ctx, ms, true)
}

// sampleGroup is the set of input rows forming one sample.
type sampleGroup struct {
	sample Sample
	rows   []int
	report *Report
}

type groupKey struct {
	sampleID string
	organism string
}

func (r *Ruler) run(ctx context.Context, ms []Measurement, whole bool) ([]Row, error) {
	groups, groupOf := groupMeasurements(ms)

	rows := make([]Row, len(ms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, grp := range groups {
		g.Go(func() error {
			report, err := r.agg.InferPhenotype(gctx, grp.sample)
			if report == nil {
				return err
			}
			grp.report = report
			return nil
		})
	}
	for i, m := range ms {
		if groupOf[i] != nil {
			continue
		}
		g.Go(func() error {
			lineage, found, err := r.agg.Lineage(gctx, m.Organism)
			if err != nil {
				return err
			}
			c := r.agg.Classify(lineage, Test{Compound: m.Compound, MIC: m.MIC, Label: m.Label})
			rows[i] = classifiedRow(m, c, found)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, grp := range groups {
		for j, idx := range grp.rows {
			rows[idx] = sampleRow(ms[idx], grp.report, grp.report.Tests[j])
		}
	}

	if !whole {
		return rows, nil
	}

	out := make([]Row, 0, len(rows))
	for i, row := range rows {
		out = append(out, row)
		grp := groupOf[i]
		if grp == nil || grp.rows[len(grp.rows)-1] != i {
			continue
		}
		out = append(out, inferredRows(grp)...)
	}
	return out, nil
}

// groupMeasurements groups rows with a SampleID by (sample, organism) in
// first-appearance order. A compound repeated within a sample is split
// into its own single-row sample so every row maps to exactly one test;
// split samples share the markers of their (sample, organism) key.
func groupMeasurements(ms []Measurement) ([]*sampleGroup, []*sampleGroup) {
	var groups []*sampleGroup
	groupOf := make([]*sampleGroup, len(ms))
	byKey := make(map[groupKey]*sampleGroup)
	compounds := make(map[*sampleGroup]map[string]bool)
	markers := make(map[groupKey][]ir.Fact)
	keys := make(map[*sampleGroup]groupKey)

	for i, m := range ms {
		if m.SampleID == "" {
			continue
		}
		key := groupKey{sampleID: m.SampleID, organism: m.Organism}
		grp, ok := byKey[key]
		if ok && compounds[grp][m.Compound] {
			ok = false
		}
		if !ok {
			grp = &sampleGroup{sample: Sample{ID: m.SampleID, Organism: m.Organism}}
			groups = append(groups, grp)
			keys[grp] = key
			compounds[grp] = make(map[string]bool)
			if _, exists := byKey[key]; !exists {
				byKey[key] = grp
			}
		}
		compounds[grp][m.Compound] = true
		grp.sample.Tests = append(grp.sample.Tests, Test{Compound: m.Compound, MIC: m.MIC, Label: m.Label})
		for _, f := range m.Markers {
			if !slices.ContainsFunc(markers[key], func(g ir.Fact) bool { return g.Key() == f.Key() }) {
				markers[key] = append(markers[key], f)
			}
		}
		grp.rows = append(grp.rows, i)
		groupOf[i] = grp
	}
	for _, grp := range groups {
		grp.sample.Markers = markers[keys[grp]]
	}
	return groups, groupOf
}

func setBreakpoint(row *Row, bp ir.BreakpointRecord) {
	s, r := bp.SThreshold, bp.RThreshold
	row.SThreshold = &s
	row.RThreshold = &r
	row.MatchedOrganism = bp.Organism
}

func classifiedRow(m Measurement, c Classified, organismFound bool) Row {
	row := Row{
		SampleID: m.SampleID,
		Organism: m.Organism,
		Compound: m.Compound,
		MIC:      m.MIC,
		Label:    c.Label,
	}
	if c.Breakpoint != nil {
		setBreakpoint(&row, *c.Breakpoint)
	}
	if c.Measured() {
		row.Origin = ir.OriginMeasured
		return row
	}
	if m.MIC != nil {
		if organismFound {
			row.Note = NoteBreakpointNotFound
		} else {
			row.Note = NoteOrganismNotFound
		}
	}
	return row
}

func sampleRow(m Measurement, report *Report, c Classified) Row {
	row := classifiedRow(m, c, report.OrganismFound)
	if report.Err != nil {
		row.Note = report.Err.Error()
		return row
	}
	res, ok := report.Result(m.Compound)
	if !ok {
		return row
	}
	row.Conflict = res.Conflict
	row.Qualifier = res.Qualifier
	if !c.Measured() {
		row.Label = res.Label
		row.Origin = res.Origin
	}
	return row
}

func inferredRows(grp *sampleGroup) []Row {
	if grp.report.Err != nil {
		return nil
	}
	tested := make(map[string]bool, len(grp.sample.Tests))
	for _, t := range grp.sample.Tests {
		tested[t.Compound] = true
	}
	var out []Row
	for _, res := range grp.report.Results {
		if tested[res.Compound] {
			continue
		}
		out = append(out, Row{
			SampleID:  grp.sample.ID,
			Organism:  grp.sample.Organism,
			Compound:  res.Compound,
			Label:     res.Label,
			Origin:    res.Origin,
			Qualifier: res.Qualifier,
			Conflict:  res.Conflict,
		})
	}
	return out
}
