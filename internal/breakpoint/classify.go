package breakpoint

import "github.com/vicbeneder/micruler/internal/ir"

// Classify labels a measured MIC against a breakpoint.
//
//	mic > R  -> R
//	mic <= S -> S
//	else     -> I
//
// The R test runs first, so a record with S >= R never yields I. A mic
// rejected by ir.CheckMIC is LabelUnknown.
func Classify(mic float64, bp ir.BreakpointRecord) ir.Label {
	switch {
	case ir.CheckMIC(mic) != nil:
		return ir.LabelUnknown
	case mic > bp.RThreshold:
		return ir.LabelR
	case mic <= bp.SThreshold:
		return ir.LabelS
	default:
		return ir.LabelI
	}
}

// ClassifyLineage resolves the breakpoint for compound along lineage and
// classifies mic against it. ErrNotFound is returned unchanged when no
// breakpoint applies.
func (ix *Index) ClassifyLineage(lineage ir.Lineage, compound string, mic float64, opts ...ResolveOption) (ir.Label, ir.BreakpointRecord, error) {
	bp, err := ix.Resolve(lineage, compound, opts...)
	if err != nil {
		return ir.LabelUnknown, ir.BreakpointRecord{}, err
	}
	return Classify(mic, bp), bp, nil
}
