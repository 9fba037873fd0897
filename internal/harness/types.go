package harness

import "github.com/vicbeneder/micruler/internal/ir"

// SampleOutcome is what one sample's run produced.
type SampleOutcome struct {
	ID        string               `json:"id"`
	Organism  string               `json:"organism"`
	RunID     string               `json:"run_id"`
	Firings   []string             `json:"firings"`
	Results   []ir.PhenotypeResult `json:"results"`
	ErrorCode string               `json:"error,omitempty"`
}

// Fired counts the firings of ruleID.
func (o *SampleOutcome) Fired(ruleID string) int {
	n := 0
	for _, id := range o.Firings {
		if id == ruleID {
			n++
		}
	}
	return n
}

// Result returns the result for compound.
func (o *SampleOutcome) Result(compound string) (ir.PhenotypeResult, bool) {
	for _, r := range o.Results {
		if r.Compound == compound {
			return r, true
		}
	}
	return ir.PhenotypeResult{}, false
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	// Samples holds one outcome per scenario sample, in scenario order.
	Samples []SampleOutcome `json:"samples"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Samples: []SampleOutcome{},
		Errors:  []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Sample returns the outcome for a sample ID.
func (r *Result) Sample(id string) (*SampleOutcome, bool) {
	for i := range r.Samples {
		if r.Samples[i].ID == id {
			return &r.Samples[i], true
		}
	}
	return nil, false
}
