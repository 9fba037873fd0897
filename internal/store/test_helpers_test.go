package store

import (
	"path/filepath"
	"testing"

	"github.com/vicbeneder/micruler/internal/breakpoint"
	"github.com/vicbeneder/micruler/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a guideline row with the given thresholds.
func createTestRecord(organism, compound string, s, r float64) ir.BreakpointRecord {
	return ir.BreakpointRecord{
		Organism:   organism,
		Compound:   compound,
		SThreshold: s,
		RThreshold: r,
		Source:     ir.SourceGuideline,
	}
}

// createTestMerge creates a compiled table with three rows and one drop.
func createTestMerge() breakpoint.MergeResult {
	oral := createTestRecord("Staphylococcus", "Cefalexin", 8, 8)
	oral.Route = "oral"
	return breakpoint.MergeResult{
		Records: []ir.BreakpointRecord{
			createTestRecord("Staphylococcus", "Cefoxitin", 4, 4),
			createTestRecord("Enterococcus", "Ampicillin", 4, 8),
			{
				Organism:   "Enterococcus",
				Compound:   "Cefoxitin",
				SThreshold: -1,
				RThreshold: -1,
				Source:     ir.SourceIntrinsic,
			},
		},
		Dropped: []breakpoint.Dropped{
			{Record: oral, Reason: breakpoint.DropOralDuplicate},
		},
	}
}
