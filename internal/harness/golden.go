package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/vicbeneder/micruler/internal/ir"
)

// Snapshot captures the sample outcomes of one scenario execution.
// It serializes through canonical JSON so golden files are byte-stable.
type Snapshot struct {
	ScenarioName string
	Samples      []SampleOutcome
}

// canonical converts the snapshot to IR values for ir.MarshalCanonical.
// Empty qualifier and conflict fields are kept so every result has the
// same shape.
func (s *Snapshot) canonical() ir.IRObject {
	samples := make(ir.IRArray, len(s.Samples))
	for i, o := range s.Samples {
		firings := make(ir.IRArray, len(o.Firings))
		for j, id := range o.Firings {
			firings[j] = ir.IRString(id)
		}
		results := make(ir.IRArray, len(o.Results))
		for j, r := range o.Results {
			results[j] = ir.IRObject{
				"compound":  ir.IRString(r.Compound),
				"label":     ir.IRString(r.Label),
				"origin":    ir.IRString(r.Origin),
				"qualifier": ir.IRString(r.Qualifier),
				"conflict":  ir.IRString(r.Conflict),
			}
		}
		samples[i] = ir.IRObject{
			"id":       ir.IRString(o.ID),
			"organism": ir.IRString(o.Organism),
			"run_id":   ir.IRString(o.RunID),
			"firings":  firings,
			"results":  results,
			"error":    ir.IRString(o.ErrorCode),
		}
	}
	return ir.IRObject{
		"scenario": ir.IRString(s.ScenarioName),
		"samples":  samples,
	}
}

// MarshalCanonical returns the snapshot as canonical JSON.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.canonical())
}

// RunWithGolden executes a scenario and compares its outcomes against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the outcomes don't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{ScenarioName: scenarioName, Samples: result.Samples}
	data, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
