package testutil

import "github.com/vicbeneder/micruler/internal/ir"

// MIC returns a pointer to v, for Test and Measurement literals.
func MIC(v float64) *float64 { return &v }

// Breakpoint builds an unrestricted guideline row.
func Breakpoint(organism, compound string, s, r float64) ir.BreakpointRecord {
	return ir.BreakpointRecord{
		Organism:   organism,
		Compound:   compound,
		SThreshold: s,
		RThreshold: r,
		Source:     ir.SourceGuideline,
	}
}

// Intrinsic builds an intrinsic resistance row: any MIC classifies R.
func Intrinsic(organism, compound string) ir.BreakpointRecord {
	return ir.BreakpointRecord{
		Organism:   organism,
		Compound:   compound,
		SThreshold: -1,
		RThreshold: -1,
		Source:     ir.SourceIntrinsic,
	}
}

// StaphAureus is the lineage of Staphylococcus aureus in the embedded
// taxonomy, most specific first.
func StaphAureus() ir.Lineage {
	return ir.Lineage{
		"Staphylococcus aureus",
		"Staphylococcus",
		"Staphylococcaceae",
		"Bacillales",
		"Bacilli",
		"Bacillota",
		"Bacteria",
	}
}
