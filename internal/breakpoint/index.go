// Package breakpoint resolves and applies clinical breakpoints.
//
// An Index is built once from a compiled breakpoint table and is read-only
// afterwards; it is safe to share between goroutines.
package breakpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/vicbeneder/micruler/internal/ir"
)

// ErrNotFound is returned when no breakpoint applies to a lineage/compound
// pair. It is a per-compound outcome, not a failure of the batch.
var ErrNotFound = errors.New("breakpoint not found")

// foldKey normalises a taxon or compound name for lookup.
func foldKey(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

func pairKey(organism, compound string) string {
	return foldKey(organism) + "\x00" + foldKey(compound)
}

// Index maps (organism, compound) to breakpoint records in table order.
type Index struct {
	byPair    map[string][]ir.BreakpointRecord
	compounds map[string]bool
	records   []ir.BreakpointRecord
	warnings  []DuplicateWarning
}

// NewIndex builds an index over records. Duplicate applicable records are
// kept, reported through Warnings and logged.
func NewIndex(records []ir.BreakpointRecord) *Index {
	ix := &Index{
		byPair:    make(map[string][]ir.BreakpointRecord),
		compounds: make(map[string]bool),
		records:   slices.Clone(records),
	}
	for _, r := range ix.records {
		key := pairKey(r.Organism, r.Compound)
		ix.byPair[key] = append(ix.byPair[key], r)
		ix.compounds[foldKey(r.Compound)] = true
	}

	ix.warnings = CheckDuplicates(ix.records)
	for _, w := range ix.warnings {
		slog.Warn("duplicate applicable breakpoints",
			"organism", w.Organism,
			"compound", w.Compound,
			"count", len(w.Records))
	}
	return ix
}

// Len returns the number of records.
func (ix *Index) Len() int {
	return len(ix.records)
}

// Records returns the records in table order.
func (ix *Index) Records() []ir.BreakpointRecord {
	return slices.Clone(ix.records)
}

// Warnings returns the duplicate report computed at construction.
func (ix *Index) Warnings() []DuplicateWarning {
	return slices.Clone(ix.warnings)
}

// HasCompound reports whether any record mentions compound.
func (ix *Index) HasCompound(compound string) bool {
	return ix.compounds[foldKey(compound)]
}

// Lookup returns every record for exactly (organism, compound), in table
// order. Returns an empty slice, never nil.
func (ix *Index) Lookup(organism, compound string) []ir.BreakpointRecord {
	recs := ix.byPair[pairKey(organism, compound)]
	if len(recs) == 0 {
		return []ir.BreakpointRecord{}
	}
	return slices.Clone(recs)
}

// ResolveOption narrows which records a Resolve call may return.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	route      string
	indication string
}

// WithRoute restricts candidates to records for route r or for no route.
func WithRoute(r string) ResolveOption {
	return func(o *resolveOptions) { o.route = foldKey(r) }
}

// WithIndication restricts candidates to records for indication i or for
// no indication.
func WithIndication(i string) ResolveOption {
	return func(o *resolveOptions) { o.indication = foldKey(i) }
}

// Resolve finds the most specific breakpoint for compound along lineage.
//
// The lineage is walked species first. At each taxon the best candidate is
// taken; if its exception names a taxon in the lineage it is rejected and
// the walk continues toward the root. A more specific taxon always wins
// over its ancestors.
func (ix *Index) Resolve(lineage ir.Lineage, compound string, opts ...ResolveOption) (ir.BreakpointRecord, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	folded := make([]string, len(lineage))
	for i, taxon := range lineage {
		folded[i] = foldKey(taxon)
	}

	for _, taxon := range lineage {
		rec, ok := best(ix.byPair[pairKey(taxon, compound)], o)
		if !ok {
			continue
		}
		if rec.Exception != "" && slices.Contains(folded, foldKey(rec.Exception)) {
			continue
		}
		return rec, nil
	}

	organism := ""
	if len(lineage) > 0 {
		organism = lineage[0]
	}
	return ir.BreakpointRecord{}, fmt.Errorf("%w: %s for %s", ErrNotFound, compound, organism)
}

// best picks the candidate with the highest restriction score; ties go to
// table order. Unrestricted records outrank restricted ones unless an
// option asks for the restriction.
func best(candidates []ir.BreakpointRecord, o resolveOptions) (ir.BreakpointRecord, bool) {
	bestScore := -1
	var out ir.BreakpointRecord
	for _, c := range candidates {
		rs, ok := restrictionScore(c.Route, o.route)
		if !ok {
			continue
		}
		is, ok := restrictionScore(c.Indication, o.indication)
		if !ok {
			continue
		}
		if score := rs + is; score > bestScore {
			bestScore = score
			out = c
		}
	}
	return out, bestScore >= 0
}

func restrictionScore(value, want string) (int, bool) {
	switch {
	case want == "" && value == "":
		return 1, true
	case want == "":
		return 0, true
	case value == "":
		return 1, true
	case foldKey(value) == want:
		return 2, true
	}
	return 0, false
}
