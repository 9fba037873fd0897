package phenotype

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vicbeneder/micruler/internal/breakpoint"
	"github.com/vicbeneder/micruler/internal/engine"
	"github.com/vicbeneder/micruler/internal/ir"
	"github.com/vicbeneder/micruler/internal/reference"
	"github.com/vicbeneder/micruler/internal/rulebase"
	"github.com/vicbeneder/micruler/internal/taxonomy"
	"github.com/vicbeneder/micruler/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	mic = testutil.MIC
	bp  = testutil.Breakpoint
)

var testRecords = []ir.BreakpointRecord{
	bp("Staphylococcus", "Cefoxitin", 4, 4),
	bp("Staphylococcus", "Benzylpenicillin", 0.125, 0.125),
	bp("Staphylococcus", "Erythromycin", 1, 2),
	bp("Staphylococcus", "Clindamycin", 0.25, 0.5),
	bp("Enterococcus", "Ampicillin", 4, 8),
	testutil.Intrinsic("Enterococcus", "Fusidic acid"),
}

func newTestAggregator(t *testing.T, rules []ir.Rule, opts ...engine.EngineOption) *Aggregator {
	t.Helper()
	catalog := reference.MustDefault()
	opts = append([]engine.EngineOption{engine.WithRunIDGenerator(testutil.NewFixedRunID("run-1"))}, opts...)
	e, err := engine.New(rules, catalog, opts...)
	require.NoError(t, err)

	taxa, err := taxonomy.Default()
	require.NoError(t, err)

	return NewAggregator(e, breakpoint.NewIndex(testRecords), taxonomy.NewCached(taxa), catalog)
}

func newDefaultAggregator(t *testing.T) *Aggregator {
	t.Helper()
	return newTestAggregator(t, rulebase.MustDefault())
}

// =============================================================================
// InferPhenotype
// =============================================================================

func TestInferPhenotype_MRSACefoxitin(t *testing.T) {
	agg := newDefaultAggregator(t)

	report, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Staphylococcus aureus",
		Tests:    []Test{{Compound: "Cefoxitin", MIC: mic(8)}},
	})
	require.NoError(t, err)
	require.NoError(t, report.Err)

	assert.True(t, report.OrganismFound)
	assert.Equal(t, "run-1", report.Run.RunID)
	require.Len(t, report.Tests, 1)
	assert.Equal(t, ir.LabelR, report.Tests[0].Label)
	require.NotNil(t, report.Tests[0].Breakpoint)
	assert.Equal(t, "Staphylococcus", report.Tests[0].Breakpoint.Organism)

	first := report.Results[0]
	assert.Equal(t, ir.PhenotypeResult{Compound: "Cefoxitin", Label: ir.LabelR, Origin: ir.OriginMeasured}, first)

	catalog := reference.MustDefault()
	for _, class := range []string{"Penicillins", "Carbapenems", "Monobactams"} {
		members, err := catalog.MembersOf(class)
		require.NoError(t, err)
		for _, compound := range members {
			res, ok := report.Result(compound)
			require.True(t, ok, "missing result for %s", compound)
			assert.Equal(t, ir.LabelR, res.Label, compound)
			assert.Equal(t, ir.OriginInferred, res.Origin, compound)
		}
	}
	cephs, err := catalog.MembersOf("Cephalosporins", "Ceftaroline", "Ceftobiprole", "Cefoxitin")
	require.NoError(t, err)
	for _, compound := range cephs {
		res, ok := report.Result(compound)
		require.True(t, ok, "missing result for %s", compound)
		assert.Equal(t, ir.LabelR, res.Label, compound)
	}

	_, ok := report.Result("Ceftaroline")
	assert.False(t, ok)
	_, ok = report.Result("Ceftobiprole")
	assert.False(t, ok)
	assert.Empty(t, report.Conflicts())
}

func TestInferPhenotype_GroupFactsSeeded(t *testing.T) {
	agg := newTestAggregator(t, []ir.Rule{{
		ID:        "local-cons",
		Condition: ir.Match{Kind: ir.KindOrganism, Name: "Coagulase-negative"},
		Actions:   []ir.Action{{Op: ir.ActionAssert, Fact: ir.Resistant("Fosfomycin")}},
	}})

	report, err := agg.InferPhenotype(context.Background(), Sample{ID: "s1", Organism: "Staphylococcus epidermidis"})
	require.NoError(t, err)

	res, ok := report.Result("Fosfomycin")
	require.True(t, ok)
	assert.Equal(t, ir.OriginInferred, res.Origin)
}

func TestInferPhenotype_MeasuredConflictKeepsMeasurement(t *testing.T) {
	agg := newDefaultAggregator(t)

	report, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Staphylococcus aureus",
		Tests: []Test{
			{Compound: "Erythromycin", MIC: mic(8)},
			{Compound: "Clindamycin", MIC: mic(0.125)},
		},
		Markers: []ir.Fact{ir.InducibleMLSB(true)},
	})
	require.NoError(t, err)

	res, ok := report.Result("Clindamycin")
	require.True(t, ok)
	assert.Equal(t, ir.LabelS, res.Label)
	assert.Equal(t, ir.OriginMeasured, res.Origin)
	assert.Equal(t, "measured S, inferred R", res.Conflict)

	azi, ok := report.Result("Azithromycin")
	require.True(t, ok)
	assert.Equal(t, ir.LabelR, azi.Label)
}

func TestInferPhenotype_ContradictionSymmetric(t *testing.T) {
	ruleR := ir.Rule{
		ID:        "local-r",
		Condition: ir.Match{Kind: ir.KindOrganism, Name: "Staphylococcus"},
		Actions:   []ir.Action{{Op: ir.ActionAssert, Fact: ir.Resistant("Fosfomycin")}},
	}
	ruleS := ir.Rule{
		ID:        "local-s",
		Condition: ir.Match{Kind: ir.KindOrganism, Name: "Staphylococcus"},
		Actions:   []ir.Action{{Op: ir.ActionAssert, Fact: ir.Susceptible("Fosfomycin")}},
	}
	sample := Sample{ID: "s1", Organism: "Staphylococcus aureus"}

	var results []ir.PhenotypeResult
	for _, rules := range [][]ir.Rule{{ruleR, ruleS}, {ruleS, ruleR}} {
		report, err := newTestAggregator(t, rules).InferPhenotype(context.Background(), sample)
		require.NoError(t, err)
		res, ok := report.Result("Fosfomycin")
		require.True(t, ok)
		results = append(results, res)
	}

	assert.Equal(t, ir.LabelUnknown, results[0].Label)
	assert.NotEmpty(t, results[0].Conflict)
	assert.Equal(t, results[0], results[1])
}

func TestInferPhenotype_UnknownOrganism(t *testing.T) {
	agg := newDefaultAggregator(t)

	report, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Nonexistentia",
		Tests:    []Test{{Compound: "Cefoxitin", MIC: mic(8)}},
	})
	require.NoError(t, err)

	assert.False(t, report.OrganismFound)
	assert.Equal(t, ir.Lineage{"Nonexistentia"}, report.Lineage)
	assert.Equal(t, ir.LabelUnknown, report.Tests[0].Label)
	assert.Nil(t, report.Tests[0].Breakpoint)
	assert.Empty(t, report.Results)
}

func TestInferPhenotype_IntrinsicResistance(t *testing.T) {
	agg := newDefaultAggregator(t)

	report, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Enterococcus faecalis",
		Tests:    []Test{{Compound: "Fusidic acid", MIC: mic(0.001)}},
	})
	require.NoError(t, err)

	assert.Equal(t, ir.LabelR, report.Tests[0].Label)
	require.NotNil(t, report.Tests[0].Breakpoint)
	assert.Equal(t, ir.SourceIntrinsic, report.Tests[0].Breakpoint.Source)
}

func TestInferPhenotype_DeclaredLabelSkipsBreakpoint(t *testing.T) {
	agg := newDefaultAggregator(t)

	report, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Enterococcus faecalis",
		Tests:    []Test{{Compound: "Ampicillin", MIC: mic(16), Label: ir.LabelS}},
	})
	require.NoError(t, err)

	assert.Equal(t, ir.LabelS, report.Tests[0].Label)
	assert.Nil(t, report.Tests[0].Breakpoint)
}

func TestInferPhenotype_UnclassifiedMICStillSeeded(t *testing.T) {
	agg := newDefaultAggregator(t)

	// No gentamicin breakpoint in the index; the MIC fact still drives
	// the enterococcal low-level rule.
	report, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Enterococcus faecalis",
		Tests:    []Test{{Compound: "Gentamicin", MIC: mic(16)}},
	})
	require.NoError(t, err)

	res, ok := report.Result("Gentamicin")
	require.True(t, ok)
	assert.Equal(t, ir.LabelR, res.Label)
	assert.Equal(t, ir.OriginInferred, res.Origin)
	assert.Equal(t, "low-level", res.Qualifier)
}

func TestInferPhenotype_UnusableMICNotClassified(t *testing.T) {
	agg := newDefaultAggregator(t)

	report, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Staphylococcus aureus",
		Tests: []Test{
			{Compound: "Cefoxitin", MIC: mic(math.NaN())},
			{Compound: "Erythromycin", MIC: mic(-2)},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Tests, 2)
	for _, c := range report.Tests {
		assert.Equal(t, ir.LabelUnknown, c.Label, c.Compound)
		assert.Nil(t, c.Breakpoint, c.Compound)
	}

	seed, err := agg.seed(ir.Lineage{"Staphylococcus aureus"}, report.Tests, nil)
	require.NoError(t, err)
	assert.Empty(t, seed.Measurements)
}

func TestInferPhenotype_RuleWarnings(t *testing.T) {
	agg := newDefaultAggregator(t)

	report, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Staphylococcus aureus",
		Tests:    []Test{{Compound: "Clindamycin", MIC: mic(4)}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bactericidal activity of quinupristin-dalfopristin is reduced"}, report.Warnings)
	assert.Empty(t, report.Conflicts())
}

func TestInferPhenotype_DuplicateTestIgnored(t *testing.T) {
	agg := newDefaultAggregator(t)

	report, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Staphylococcus aureus",
		Tests: []Test{
			{Compound: "Cefoxitin", MIC: mic(2)},
			{Compound: "Cefoxitin", MIC: mic(8)},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Tests, 1)
	assert.Equal(t, ir.LabelS, report.Tests[0].Label)
}

func TestInferPhenotype_InvalidMarker(t *testing.T) {
	agg := newDefaultAggregator(t)

	_, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Staphylococcus aureus",
		Markers:  []ir.Fact{ir.Resistant("Cefoxitin")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a marker fact")
}

func TestInferPhenotype_NonTermination(t *testing.T) {
	flip := []ir.Rule{
		{
			ID:        "local-up",
			Condition: ir.Match{Kind: ir.KindSusceptible, Name: "Fosfomycin", As: "f"},
			Actions: []ir.Action{
				{Op: ir.ActionRetract, Ref: "f"},
				{Op: ir.ActionAssert, Fact: ir.Resistant("Fosfomycin")},
			},
		},
		{
			ID:        "local-down",
			Condition: ir.Match{Kind: ir.KindResistant, Name: "Fosfomycin", As: "f"},
			Actions: []ir.Action{
				{Op: ir.ActionRetract, Ref: "f"},
				{Op: ir.ActionAssert, Fact: ir.Susceptible("Fosfomycin")},
			},
		},
	}
	agg := newTestAggregator(t, flip, engine.WithMaxIterations(20))

	report, err := agg.InferPhenotype(context.Background(), Sample{
		ID:       "s1",
		Organism: "Staphylococcus aureus",
		Tests:    []Test{{Compound: "Fosfomycin", Label: ir.LabelS}},
	})
	require.Error(t, err)
	assert.True(t, engine.IsNonTerminationError(err))
	require.NotNil(t, report)
	assert.Equal(t, err, report.Err)
	assert.Equal(t, []ir.PhenotypeResult{{Compound: "Fosfomycin", Label: ir.LabelS, Origin: ir.OriginMeasured}}, report.Results)
}

func TestInferPhenotype_Cancelled(t *testing.T) {
	agg := newDefaultAggregator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agg.InferPhenotype(ctx, Sample{ID: "s1", Organism: "Staphylococcus aureus"})
	require.Error(t, err)
}
