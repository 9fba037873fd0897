package phenotype

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vicbeneder/micruler/internal/ir"
)

// labelOrder fixes the order labels are listed in conflict notes, so the
// note does not depend on firing order.
var labelOrder = []ir.Label{ir.LabelR, ir.LabelI, ir.LabelS}

// inferredLabels collects the labels the fact store holds for one compound.
type inferredLabels struct {
	labels     map[ir.Label]bool
	qualifiers []string
	plainR     bool
}

func (l *inferredLabels) add(f ir.Fact) {
	label := f.Kind.Label()
	l.labels[label] = true
	if label != ir.LabelR {
		return
	}
	if f.Qualifier == "" {
		l.plainR = true
	} else {
		l.qualifiers = append(l.qualifiers, f.Qualifier)
	}
}

// qualifier is empty when any unqualified R is present, otherwise the
// lexically first qualifier.
func (l *inferredLabels) qualifier() string {
	if l.plainR || len(l.qualifiers) == 0 {
		return ""
	}
	sort.Strings(l.qualifiers)
	return l.qualifiers[0]
}

// sorted returns the labels in labelOrder, skipping except.
func (l *inferredLabels) sorted(except ir.Label) []string {
	var out []string
	for _, label := range labelOrder {
		if l.labels[label] && label != except {
			out = append(out, string(label))
		}
	}
	return out
}

// Reconcile merges the direct classification of tests with the label
// facts left in the store after inference.
//
//   - measured, store agrees: measured label, origin measured
//   - measured, store disagrees: measured label kept, conflict set
//   - not measured, one inferred label: origin inferred
//   - not measured, contradictory labels: unknown, conflict set
//
// Tested compounds come first in test order, then compounds that were
// never tested, sorted by name. Tests that could not be classified count
// as not measured.
func Reconcile(tests []Classified, stored []ir.Fact) []ir.PhenotypeResult {
	byCompound := make(map[string]*inferredLabels)
	for _, f := range stored {
		if !f.Kind.IsLabel() {
			continue
		}
		l, ok := byCompound[f.Name]
		if !ok {
			l = &inferredLabels{labels: make(map[ir.Label]bool)}
			byCompound[f.Name] = l
		}
		l.add(f)
	}

	results := []ir.PhenotypeResult{}
	tested := make(map[string]bool, len(tests))
	for _, t := range tests {
		tested[t.Compound] = true
		l := byCompound[t.Compound]
		if !t.Measured() {
			if l != nil {
				results = append(results, inferredResult(t.Compound, l))
			}
			continue
		}

		res := ir.PhenotypeResult{
			Compound: t.Compound,
			Label:    t.Label,
			Origin:   ir.OriginMeasured,
		}
		if l != nil {
			if t.Label == ir.LabelR {
				res.Qualifier = l.qualifier()
			}
			if others := l.sorted(t.Label); len(others) > 0 {
				res.Conflict = fmt.Sprintf("measured %s, inferred %s", t.Label, strings.Join(others, ", "))
			}
		}
		results = append(results, res)
	}

	var untested []string
	for compound := range byCompound {
		if !tested[compound] {
			untested = append(untested, compound)
		}
	}
	sort.Strings(untested)
	for _, compound := range untested {
		results = append(results, inferredResult(compound, byCompound[compound]))
	}
	return results
}

func inferredResult(compound string, l *inferredLabels) ir.PhenotypeResult {
	res := ir.PhenotypeResult{Compound: compound, Origin: ir.OriginInferred}
	labels := l.sorted("")
	if len(labels) > 1 {
		res.Label = ir.LabelUnknown
		res.Conflict = "contradictory inferred labels: " + strings.Join(labels, ", ")
		return res
	}
	res.Label = ir.Label(labels[0])
	if res.Label == ir.LabelR {
		res.Qualifier = l.qualifier()
	}
	return res
}
