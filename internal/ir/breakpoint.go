package ir

// Source records where a breakpoint row came from.
type Source string

const (
	// SourceGuideline rows come from the clinical breakpoint tables.
	SourceGuideline Source = "guideline"
	// SourceIntrinsic rows come from the intrinsic resistance tables.
	SourceIntrinsic Source = "intrinsic"
)

// ValidSources lists the accepted Source values.
var ValidSources = map[Source]bool{
	SourceGuideline: true,
	SourceIntrinsic: true,
}

// BreakpointRecord is one applicable guideline from the compiled table.
// Records are immutable once compiled.
type BreakpointRecord struct {
	Organism     string  `json:"organism"`
	Compound     string  `json:"compound"`
	SThreshold   float64 `json:"s_threshold"`
	RThreshold   float64 `json:"r_threshold"`
	Exception    string  `json:"exception,omitempty"`
	Route        string  `json:"route_of_administration,omitempty"`
	Indication   string  `json:"indication,omitempty"`
	HighExposure bool    `json:"high_exposure,omitempty"`
	Source       Source  `json:"source"`
}

// ID returns the content-addressed identity of the record.
func (r BreakpointRecord) ID() string {
	id, err := BreakpointID(r)
	if err != nil {
		panic(err)
	}
	return id
}

// Combination identifies the (organism, compound) pair the record covers.
func (r BreakpointRecord) Combination() string {
	return r.Organism + " " + r.Compound
}

func (r BreakpointRecord) canonical() IRObject {
	return IRObject{
		"organism":      IRString(r.Organism),
		"compound":      IRString(r.Compound),
		"s_threshold":   IRString(FormatMIC(r.SThreshold)),
		"r_threshold":   IRString(FormatMIC(r.RThreshold)),
		"exception":     IRString(r.Exception),
		"route":         IRString(r.Route),
		"indication":    IRString(r.Indication),
		"high_exposure": IRBool(r.HighExposure),
		"source":        IRString(r.Source),
	}
}

// Lineage is the ordered taxonomic ancestry of an organism, most specific
// (species) first and most general (root) last.
type Lineage []string

// Contains reports whether the taxon appears anywhere in the lineage.
func (l Lineage) Contains(taxon string) bool {
	for _, t := range l {
		if t == taxon {
			return true
		}
	}
	return false
}
