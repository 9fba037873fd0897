package ir

// Label is an S/I/R classification.
type Label string

const (
	LabelS       Label = "S"
	LabelI       Label = "I"
	LabelR       Label = "R"
	LabelUnknown Label = "unknown"
)

// ParseLabel converts a table cell into a Label. Empty input yields
// LabelUnknown and ok=false.
func ParseLabel(s string) (Label, bool) {
	switch s {
	case "S", "s":
		return LabelS, true
	case "I", "i":
		return LabelI, true
	case "R", "r":
		return LabelR, true
	}
	return LabelUnknown, false
}

// Origin records whether a label was measured or derived by the engine.
type Origin string

const (
	OriginMeasured Origin = "measured"
	OriginInferred Origin = "inferred"
)

// PhenotypeResult is the reconciled phenotype for one compound of one
// sample. Conflict is empty when measurement and inference agree.
type PhenotypeResult struct {
	Compound  string `json:"compound"`
	Label     Label  `json:"label"`
	Origin    Origin `json:"origin"`
	Qualifier string `json:"qualifier,omitempty"`
	Conflict  string `json:"conflict,omitempty"`
}
