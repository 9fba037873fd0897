package engine

import (
	"slices"

	"github.com/vicbeneder/micruler/internal/ir"
)

// SeedSalience is the salience of the seed rules. Domain rules must stay
// below it.
const SeedSalience = 1000

// Seed rule identifiers.
const (
	SeedLineageRuleID      = "seed-lineage"
	SeedMeasurementsRuleID = "seed-measurements"
)

// Seed holds the per-run input facts asserted by the seed rules.
type Seed struct {
	// Lineage holds one organism fact per lineage taxon and per phenotype
	// group containing one of them.
	Lineage []ir.Fact

	// Measurements holds the MIC facts, measured label facts and markers.
	Measurements []ir.Fact
}

// facts returns the seed facts for one seed set.
func (s Seed) facts(set ir.SeedSet) []ir.Fact {
	switch set {
	case ir.SeedLineage:
		return slices.Clone(s.Lineage)
	case ir.SeedMeasurements:
		return slices.Clone(s.Measurements)
	}
	return nil
}

// SeedRules returns the two rules that bootstrap every run.
//
// Both hold only while the init marker is absent, so each fires exactly
// once: seed-lineage first, then seed-measurements, which also asserts the
// marker.
func SeedRules() []ir.Rule {
	notInit := ir.Not{Child: ir.Match{Kind: ir.KindInit}}
	return []ir.Rule{
		{
			ID:        SeedLineageRuleID,
			Salience:  SeedSalience + 1,
			Seed:      true,
			Condition: notInit,
			Actions:   []ir.Action{{Op: ir.ActionSeed, Seed: ir.SeedLineage}},
			Doc:       "Assert organism facts for the lineage and its phenotype groups.",
		},
		{
			ID:        SeedMeasurementsRuleID,
			Salience:  SeedSalience,
			Seed:      true,
			Condition: notInit,
			Actions: []ir.Action{
				{Op: ir.ActionSeed, Seed: ir.SeedMeasurements},
				{Op: ir.ActionAssert, Fact: ir.Init()},
			},
			Doc: "Assert measured MICs and labels, then mark the run as seeded.",
		},
	}
}
