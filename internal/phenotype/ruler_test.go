package phenotype

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicbeneder/micruler/internal/ir"
)

// =============================================================================
// QueryBreakpoints
// =============================================================================

func TestQueryBreakpoints(t *testing.T) {
	r := NewRuler(newDefaultAggregator(t), WithWorkers(2))

	rows, err := r.QueryBreakpoints(context.Background(), []Query{
		{Organism: "Staphylococcus aureus", Compound: "Cefoxitin"},
		{Organism: "Staphylococcus aureus", Compound: "Vancomycin"},
		{Organism: "Nonexistentia", Compound: "Cefoxitin"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Staphylococcus", rows[0].MatchedOrganism)
	require.NotNil(t, rows[0].SThreshold)
	assert.Equal(t, 4.0, *rows[0].SThreshold)
	assert.Equal(t, 4.0, *rows[0].RThreshold)
	assert.Empty(t, rows[0].Note)

	assert.Equal(t, NoteBreakpointNotFound, rows[1].Note)
	assert.Nil(t, rows[1].SThreshold)

	assert.Equal(t, NoteOrganismNotFound, rows[2].Note)
}

// =============================================================================
// ClassifySamples
// =============================================================================

func TestClassifySamples_WithoutSampleID(t *testing.T) {
	r := NewRuler(newDefaultAggregator(t))

	rows, err := r.ClassifySamples(context.Background(), []Measurement{
		{Organism: "Staphylococcus aureus", Compound: "Cefoxitin", MIC: mic(4)},
		{Organism: "Staphylococcus aureus", Compound: "Cefoxitin", MIC: mic(9)},
		{Organism: "Staphylococcus aureus", Compound: "Gentamicin", MIC: mic(2)},
		{Organism: "Nonexistentia", Compound: "Cefoxitin", MIC: mic(2)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, ir.LabelS, rows[0].Label)
	assert.Equal(t, ir.OriginMeasured, rows[0].Origin)
	assert.Equal(t, ir.LabelR, rows[1].Label)
	assert.Equal(t, ir.LabelUnknown, rows[2].Label)
	assert.Equal(t, NoteBreakpointNotFound, rows[2].Note)
	assert.Equal(t, NoteOrganismNotFound, rows[3].Note)
}

func TestClassifySamples_FillsFromEngine(t *testing.T) {
	r := NewRuler(newDefaultAggregator(t))

	rows, err := r.ClassifySamples(context.Background(), []Measurement{
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Cefoxitin", MIC: mic(8)},
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Meropenem", MIC: mic(0.5)},
		{Organism: "Staphylococcus aureus", Compound: "Meropenem", MIC: mic(0.5)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, ir.LabelR, rows[0].Label)
	assert.Equal(t, ir.OriginMeasured, rows[0].Origin)

	assert.Equal(t, ir.LabelR, rows[1].Label)
	assert.Equal(t, ir.OriginInferred, rows[1].Origin)
	assert.Equal(t, NoteBreakpointNotFound, rows[1].Note)

	// No sample ID: never reaches the engine.
	assert.Equal(t, ir.LabelUnknown, rows[2].Label)
}

func TestClassifySamples_NonTerminationIsPerSample(t *testing.T) {
	flipping := NewRuler(newTestAggregator(t, []ir.Rule{
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
	}))

	rows, err := flipping.ClassifySamples(context.Background(), []Measurement{
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Fosfomycin", Label: ir.LabelS},
		{SampleID: "s2", Organism: "Staphylococcus aureus", Compound: "Cefoxitin", MIC: mic(2)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, ir.LabelS, rows[0].Label)
	assert.Contains(t, rows[0].Note, "NON_TERMINATION")
	assert.Equal(t, ir.LabelS, rows[1].Label)
	assert.Empty(t, rows[1].Note)
}

func TestClassifySamples_MarkersSeedTheSample(t *testing.T) {
	r := NewRuler(newDefaultAggregator(t))
	ms := []Measurement{
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Erythromycin", MIC: mic(8),
			Markers: []ir.Fact{ir.InducibleMLSB(true)}},
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Clindamycin", MIC: mic(0.125)},
	}

	rows, err := r.ClassifySamples(context.Background(), ms)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ir.LabelS, rows[1].Label)
	assert.Equal(t, "measured S, inferred R", rows[1].Conflict)

	ms[0].Markers = nil
	rows, err = r.ClassifySamples(context.Background(), ms)
	require.NoError(t, err)
	assert.Empty(t, rows[1].Conflict)
}

func TestGroupMeasurements_MarkersSharedAcrossSplitSamples(t *testing.T) {
	groups, _ := groupMeasurements([]Measurement{
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Cefoxitin", Markers: []ir.Fact{ir.Mec(true)}},
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Cefoxitin", Markers: []ir.Fact{ir.Mec(true)}},
	})
	require.Len(t, groups, 2)
	for _, g := range groups {
		assert.Equal(t, []ir.Fact{ir.Mec(true)}, g.sample.Markers)
	}
}

func TestClassifySamples_RepeatedCompoundInSample(t *testing.T) {
	r := NewRuler(newDefaultAggregator(t))

	rows, err := r.ClassifySamples(context.Background(), []Measurement{
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Cefoxitin", MIC: mic(2)},
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Cefoxitin", MIC: mic(8)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ir.LabelS, rows[0].Label)
	assert.Equal(t, ir.LabelR, rows[1].Label)
}

func TestClassifySamples_Cancelled(t *testing.T) {
	r := NewRuler(newDefaultAggregator(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ClassifySamples(ctx, []Measurement{
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Cefoxitin", MIC: mic(8)},
	})
	require.Error(t, err)
}

// =============================================================================
// WholePhenotype
// =============================================================================

func TestWholePhenotype_AppendsInferredRowsAfterSample(t *testing.T) {
	r := NewRuler(newDefaultAggregator(t), WithWorkers(4))

	rows, err := r.WholePhenotype(context.Background(), []Measurement{
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Erythromycin", MIC: mic(8)},
		{SampleID: "s2", Organism: "Enterococcus faecalis", Compound: "Ampicillin", MIC: mic(2)},
		{SampleID: "s1", Organism: "Staphylococcus aureus", Compound: "Clindamycin", MIC: mic(0.125)},
	})
	require.NoError(t, err)

	var order []string
	for _, row := range rows {
		order = append(order, fmt.Sprintf("%s/%s/%s", row.SampleID, row.Compound, row.Origin))
	}
	assert.Equal(t, []string{
		"s1/Erythromycin/measured",
		"s2/Ampicillin/measured",
		"s2/Amoxicillin/inferred",
		"s2/Amoxicillin-clavulanic acid/inferred",
		"s2/Ampicillin-sulbactam/inferred",
		"s2/Piperacillin/inferred",
		"s2/Piperacillin-tazobactam/inferred",
		"s1/Clindamycin/measured",
		"s1/Azithromycin/inferred",
		"s1/Clarithromycin/inferred",
		"s1/Roxithromycin/inferred",
	}, order)

	for _, row := range rows {
		if row.Origin == ir.OriginInferred {
			assert.Nil(t, row.MIC)
			assert.NotEmpty(t, row.Label)
		}
	}
}

func TestNewRuler_DefaultWorkers(t *testing.T) {
	r := NewRuler(newDefaultAggregator(t))
	assert.Equal(t, runtime.NumCPU(), r.Workers())

	r = NewRuler(newDefaultAggregator(t), WithWorkers(0))
	assert.Equal(t, runtime.NumCPU(), r.Workers())

	r = NewRuler(newDefaultAggregator(t), WithWorkers(3))
	assert.Equal(t, 3, r.Workers())
}
