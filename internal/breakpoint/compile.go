package breakpoint

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/vicbeneder/micruler/internal/ir"
)

// RouteOral is the route whose rows yield to other routes of the same
// organism/compound combination.
const RouteOral = "oral"

// IndicationOnly lists indications that restrict a breakpoint to one
// clinical use. Such rows yield to an unrestricted row for the same
// combination and route.
var IndicationOnly = []string{
	"meningitis",
	"UTI",
	"uncomplicated UTI",
	"pneumonia",
	"prophylaxis for meningococcal disease",
	"prophylaxis for meningitis",
}

// DropReason explains why Merge removed a row.
type DropReason string

const (
	DropOralDuplicate       DropReason = "oral_duplicate"
	DropIndicationDuplicate DropReason = "indication_duplicate"
	DropIntrinsicOverridden DropReason = "intrinsic_overridden"
)

// Dropped is one row removed during compilation.
type Dropped struct {
	Record ir.BreakpointRecord
	Reason DropReason
}

// DuplicateWarning reports an organism/compound combination with more than
// one applicable row after compilation.
type DuplicateWarning struct {
	Organism string
	Compound string
	Records  []ir.BreakpointRecord
}

// String renders the warning the way the compile report prints it.
func (w DuplicateWarning) String() string {
	parts := make([]string, len(w.Records))
	for i, r := range w.Records {
		parts[i] = fmt.Sprintf("[route=%q indication=%q]", r.Route, r.Indication)
	}
	return fmt.Sprintf("%s %s: %d entries %s", w.Organism, w.Compound, len(w.Records), strings.Join(parts, " "))
}

// MergeResult is the outcome of compiling guideline and intrinsic tables.
type MergeResult struct {
	Records    []ir.BreakpointRecord
	Dropped    []Dropped
	Duplicates []DuplicateWarning
}

// Merge compiles a guideline table with an intrinsic resistance table:
//
//  1. oral rows are dropped where the combination has other rows
//  2. indication-only rows are dropped where the combination and route
//     have other rows
//  3. intrinsic rows are dropped where the guideline covers the combination
//  4. remaining duplicate combinations are reported, not fixed
//
// Row order is preserved: guideline rows first, then intrinsic rows.
func Merge(guideline, intrinsic []ir.BreakpointRecord) MergeResult {
	res := MergeResult{Records: []ir.BreakpointRecord{}}

	rows := make([]ir.BreakpointRecord, len(guideline))
	for i, r := range guideline {
		r.Source = ir.SourceGuideline
		rows[i] = r
	}

	rows = dropWhere(rows, &res, DropOralDuplicate,
		func(r ir.BreakpointRecord) string { return pairKey(r.Organism, r.Compound) },
		func(r ir.BreakpointRecord) bool { return foldKey(r.Route) == RouteOral })

	rows = dropWhere(rows, &res, DropIndicationDuplicate,
		func(r ir.BreakpointRecord) string { return pairKey(r.Organism, r.Compound) + "\x00" + foldKey(r.Route) },
		isIndicationOnly)

	covered := make(map[string]bool, len(rows))
	for _, r := range rows {
		covered[pairKey(r.Organism, r.Compound)] = true
	}
	for _, r := range intrinsic {
		r.Source = ir.SourceIntrinsic
		if covered[pairKey(r.Organism, r.Compound)] {
			res.Dropped = append(res.Dropped, Dropped{Record: r, Reason: DropIntrinsicOverridden})
			continue
		}
		rows = append(rows, r)
	}

	res.Records = rows
	res.Duplicates = CheckDuplicates(rows)
	if len(res.Duplicates) > 0 {
		slog.Warn("duplicated entries after compilation", "count", len(res.Duplicates))
	}
	return res
}

// dropWhere removes rows matching drop whose group (by key) has more than
// one member. Groups are counted before any row is removed.
func dropWhere(rows []ir.BreakpointRecord, res *MergeResult, reason DropReason,
	key func(ir.BreakpointRecord) string, drop func(ir.BreakpointRecord) bool) []ir.BreakpointRecord {

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[key(r)]++
	}
	kept := make([]ir.BreakpointRecord, 0, len(rows))
	for _, r := range rows {
		if counts[key(r)] > 1 && drop(r) {
			res.Dropped = append(res.Dropped, Dropped{Record: r, Reason: reason})
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func isIndicationOnly(r ir.BreakpointRecord) bool {
	ind := foldKey(r.Indication)
	return slices.ContainsFunc(IndicationOnly, func(s string) bool { return foldKey(s) == ind })
}

// combinationKey identifies a row by organism, compound, route and
// indication. Rows differing only in route or indication are distinct
// breakpoints that Resolve selects between.
func combinationKey(r ir.BreakpointRecord) string {
	return pairKey(r.Organism, r.Compound) + "\x00" + foldKey(r.Route) + "\x00" + foldKey(r.Indication)
}

// CheckDuplicates reports every (organism, compound, route, indication)
// combination carried by more than one record, in order of first
// appearance. Returns an empty slice, never nil.
func CheckDuplicates(records []ir.BreakpointRecord) []DuplicateWarning {
	groups := make(map[string][]ir.BreakpointRecord)
	var order []string
	for _, r := range records {
		k := combinationKey(r)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	out := []DuplicateWarning{}
	for _, k := range order {
		recs := groups[k]
		if len(recs) < 2 {
			continue
		}
		out = append(out, DuplicateWarning{
			Organism: recs[0].Organism,
			Compound: recs[0].Compound,
			Records:  recs,
		})
	}
	return out
}
