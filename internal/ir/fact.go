package ir

import (
	"fmt"
	"math"
	"slices"
)

// FactKind tags the variant of a Fact.
type FactKind string

const (
	KindOrganism      FactKind = "organism"
	KindMIC           FactKind = "mic"
	KindResistant     FactKind = "resistant"
	KindSusceptible   FactKind = "susceptible"
	KindIntermediate  FactKind = "intermediate"
	KindBetaLactamase FactKind = "beta_lactamase"
	KindMec           FactKind = "mec"
	KindInducibleMLSB FactKind = "inducible_mlsb"

	// KindInit marks that seeding has happened for the current run.
	KindInit FactKind = "init"
)

// ValidFactKinds lists every kind a rule may mention.
var ValidFactKinds = map[FactKind]bool{
	KindOrganism:      true,
	KindMIC:           true,
	KindResistant:     true,
	KindSusceptible:   true,
	KindIntermediate:  true,
	KindBetaLactamase: true,
	KindMec:           true,
	KindInducibleMLSB: true,
	KindInit:          true,
}

// IsLabel reports whether facts of this kind carry an S/I/R label.
func (k FactKind) IsLabel() bool {
	return k == KindResistant || k == KindSusceptible || k == KindIntermediate
}

// IsMarker reports whether facts of this kind are boolean markers.
func (k FactKind) IsMarker() bool {
	return k == KindBetaLactamase || k == KindMec || k == KindInducibleMLSB
}

// Label returns the S/I/R label carried by a label kind, or LabelUnknown.
func (k FactKind) Label() Label {
	switch k {
	case KindResistant:
		return LabelR
	case KindSusceptible:
		return LabelS
	case KindIntermediate:
		return LabelI
	}
	return LabelUnknown
}

// KindForLabel returns the fact kind that declares the given label.
func KindForLabel(l Label) (FactKind, error) {
	switch l {
	case LabelR:
		return KindResistant, nil
	case LabelS:
		return KindSusceptible, nil
	case LabelI:
		return KindIntermediate, nil
	}
	return "", fmt.Errorf("label %q has no fact kind", l)
}

// Fact is one assertion about an isolate.
//
// Field use by kind:
//   - organism: Name is a taxon or phenotype group name
//   - mic: Name is the compound, MIC the measured concentration
//   - resistant/susceptible/intermediate: Name is the compound;
//     resistant may carry a Qualifier (e.g. "low-level")
//   - beta_lactamase/mec/inducible_mlsb: Present
//   - init: no fields
type Fact struct {
	Kind      FactKind `json:"kind"`
	Name      string   `json:"name,omitempty"`
	MIC       float64  `json:"mic,omitempty"`
	Present   bool     `json:"present,omitempty"`
	Qualifier string   `json:"qualifier,omitempty"`
}

// Organism creates an organism fact.
func Organism(name string) Fact { return Fact{Kind: KindOrganism, Name: name} }

// MIC creates a measured-concentration fact.
func MIC(compound string, value float64) Fact {
	return Fact{Kind: KindMIC, Name: compound, MIC: value}
}

// CheckMIC rejects values that cannot be a measured concentration: NaN,
// infinities and negative numbers.
func CheckMIC(v float64) error {
	switch {
	case math.IsNaN(v), math.IsInf(v, 0):
		return fmt.Errorf("mic %v is not a finite number", v)
	case v < 0:
		return fmt.Errorf("mic %v is negative", v)
	}
	return nil
}

// Resistant creates a resistance fact with an optional qualifier.
func Resistant(compound string, qualifier ...string) Fact {
	f := Fact{Kind: KindResistant, Name: compound}
	if len(qualifier) > 0 {
		f.Qualifier = qualifier[0]
	}
	return f
}

// Susceptible creates a susceptibility fact.
func Susceptible(compound string) Fact { return Fact{Kind: KindSusceptible, Name: compound} }

// Intermediate creates an intermediate fact.
func Intermediate(compound string) Fact { return Fact{Kind: KindIntermediate, Name: compound} }

// LabelFact creates the label fact for a compound.
func LabelFact(compound string, l Label) (Fact, error) {
	kind, err := KindForLabel(l)
	if err != nil {
		return Fact{}, err
	}
	return Fact{Kind: kind, Name: compound}, nil
}

// BetaLactamase creates a beta-lactamase production marker.
func BetaLactamase(present bool) Fact { return Fact{Kind: KindBetaLactamase, Present: present} }

// Mec creates a mec gene marker.
func Mec(present bool) Fact { return Fact{Kind: KindMec, Present: present} }

// InducibleMLSB creates an inducible MLSb resistance marker.
func InducibleMLSB(present bool) Fact { return Fact{Kind: KindInducibleMLSB, Present: present} }

// Init creates the seeding marker.
func Init() Fact { return Fact{Kind: KindInit} }

// Key returns the identity of the fact.
func (f Fact) Key() string {
	return MustFactKey(f)
}

// String renders the fact for logs and traces.
func (f Fact) String() string {
	switch {
	case f.Kind == KindMIC:
		return fmt.Sprintf("mic(%s=%s)", f.Name, FormatMIC(f.MIC))
	case f.Kind.IsMarker():
		return fmt.Sprintf("%s(%t)", f.Kind, f.Present)
	case f.Qualifier != "":
		return fmt.Sprintf("%s(%s, %s)", f.Kind, f.Name, f.Qualifier)
	case f.Name != "":
		return fmt.Sprintf("%s(%s)", f.Kind, f.Name)
	}
	return string(f.Kind)
}

func (f Fact) canonical() IRObject {
	return IRObject{
		"kind":      IRString(f.Kind),
		"name":      IRString(f.Name),
		"mic":       IRString(FormatMIC(f.MIC)),
		"present":   IRBool(f.Present),
		"qualifier": IRString(f.Qualifier),
	}
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
