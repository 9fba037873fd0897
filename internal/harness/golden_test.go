package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicbeneder/micruler/internal/ir"
)

// Golden files live in testdata/golden. Regenerate with:
//
//	go test ./internal/harness -update

func TestRunWithGolden_Macrolides(t *testing.T) {
	require.NoError(t, RunWithGolden(t, loadTestScenario(t, "macrolides")))
}

func TestRunWithGolden_MeasuredConflict(t *testing.T) {
	require.NoError(t, RunWithGolden(t, loadTestScenario(t, "measured-conflict")))
}

func TestRunWithGolden_NonTermination(t *testing.T) {
	require.NoError(t, RunWithGolden(t, loadTestScenario(t, "non-termination")))
}

func TestAssertGolden_ExistingResult(t *testing.T) {
	s := loadTestScenario(t, "macrolides")
	result, err := Run(s)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, s.Name, result))
}

func TestSnapshot_CanonicalShape(t *testing.T) {
	snap := Snapshot{
		ScenarioName: "shape",
		Samples: []SampleOutcome{{
			ID:       "s1",
			Organism: "Enterococcus faecalis",
			RunID:    "shape-1",
			Firings:  []string{},
			Results: []ir.PhenotypeResult{
				{Compound: "Gentamicin", Label: ir.LabelR, Origin: ir.OriginInferred, Qualifier: "low-level"},
			},
		}},
	}

	data, err := snap.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"samples":[{"error":"","firings":[],"id":"s1","organism":"Enterococcus faecalis",`+
			`"results":[{"compound":"Gentamicin","conflict":"","label":"R","origin":"inferred","qualifier":"low-level"}],`+
			`"run_id":"shape-1"}],"scenario":"shape"}`,
		string(data))
}
