package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the sample's firings and results to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Outcome  *SampleOutcome // Sample outcome for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Outcome != nil {
		fmt.Fprintf(&buf, "\nSample %s (%s):\n", e.Outcome.ID, e.Outcome.Organism)
		for i, id := range e.Outcome.Firings {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, id)
		}
		for _, r := range e.Outcome.Results {
			fmt.Fprintf(&buf, "  %s = %s (%s)\n", r.Compound, r.Label, r.Origin)
		}
	}

	return buf.String()
}

func evaluateAssertion(o *SampleOutcome, a Assertion) error {
	switch a.Type {
	case AssertResult:
		return assertResult(o, a)
	case AssertAbsent:
		return assertAbsent(o, a)
	case AssertFired:
		return assertFired(o, a)
	case AssertFiredOrder:
		return assertFiredOrder(o, a)
	case AssertFiredCount:
		return assertFiredCount(o, a)
	case AssertError:
		return assertError(o, a)
	case AssertNoConflicts:
		return assertNoConflicts(o)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertResult checks the sample's result for a compound. Only fields set
// on the assertion are compared.
func assertResult(o *SampleOutcome, a Assertion) error {
	got, ok := o.Result(a.Compound)
	if !ok {
		return &AssertionError{
			Type:     AssertResult,
			Expected: fmt.Sprintf("result for %s", a.Compound),
			Actual:   "no result",
			Outcome:  o,
		}
	}

	var diffs []string
	if a.Label != "" && got.Label != a.Label {
		diffs = append(diffs, fmt.Sprintf("label %s, want %s", got.Label, a.Label))
	}
	if a.Origin != "" && got.Origin != a.Origin {
		diffs = append(diffs, fmt.Sprintf("origin %s, want %s", got.Origin, a.Origin))
	}
	if a.Qualifier != nil && got.Qualifier != *a.Qualifier {
		diffs = append(diffs, fmt.Sprintf("qualifier %q, want %q", got.Qualifier, *a.Qualifier))
	}
	if a.Conflict != nil && got.Conflict != *a.Conflict {
		diffs = append(diffs, fmt.Sprintf("conflict %q, want %q", got.Conflict, *a.Conflict))
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertResult,
		Expected: fmt.Sprintf("%s matches", a.Compound),
		Actual:   strings.Join(diffs, "; "),
		Outcome:  o,
	}
}

func assertAbsent(o *SampleOutcome, a Assertion) error {
	got, ok := o.Result(a.Compound)
	if !ok {
		return nil
	}
	return &AssertionError{
		Type:     AssertAbsent,
		Expected: fmt.Sprintf("no result for %s", a.Compound),
		Actual:   fmt.Sprintf("%s (%s)", got.Label, got.Origin),
		Outcome:  o,
	}
}

func assertFired(o *SampleOutcome, a Assertion) error {
	if o.Fired(a.Rule) > 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFired,
		Expected: fmt.Sprintf("rule %s fired", a.Rule),
		Actual:   "not fired",
		Outcome:  o,
	}
}

// assertFiredOrder checks that the first firing of each rule comes in the
// given order. Other firings may come in between.
func assertFiredOrder(o *SampleOutcome, a Assertion) error {
	positions := make(map[string]int)
	for i, id := range o.Firings {
		if _, seen := positions[id]; !seen {
			positions[id] = i + 1 // 1-indexed for readability
		}
	}

	for _, rule := range a.Rules {
		if positions[rule] == 0 {
			return &AssertionError{
				Type:     AssertFiredOrder,
				Expected: fmt.Sprintf("all rules fired: %v", a.Rules),
				Actual:   fmt.Sprintf("missing rule: %s", rule),
				Outcome:  o,
			}
		}
	}

	for i := 1; i < len(a.Rules); i++ {
		prev, curr := a.Rules[i-1], a.Rules[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertFiredOrder,
				Expected: fmt.Sprintf("rules in order: %v", a.Rules),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Outcome: o,
			}
		}
	}
	return nil
}

func assertFiredCount(o *SampleOutcome, a Assertion) error {
	if n := o.Fired(a.Rule); n != a.Count {
		return &AssertionError{
			Type:     AssertFiredCount,
			Expected: fmt.Sprintf("rule %s fired %d time(s)", a.Rule, a.Count),
			Actual:   fmt.Sprintf("fired %d time(s)", n),
			Outcome:  o,
		}
	}
	return nil
}

func assertError(o *SampleOutcome, a Assertion) error {
	if o.ErrorCode == a.Code {
		return nil
	}
	actual := o.ErrorCode
	if actual == "" {
		actual = "no error"
	}
	return &AssertionError{
		Type:     AssertError,
		Expected: a.Code,
		Actual:   actual,
		Outcome:  o,
	}
}

func assertNoConflicts(o *SampleOutcome) error {
	var conflicts []string
	for _, r := range o.Results {
		if r.Conflict != "" {
			conflicts = append(conflicts, fmt.Sprintf("%s: %s", r.Compound, r.Conflict))
		}
	}
	if len(conflicts) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoConflicts,
		Expected: "no conflicts",
		Actual:   strings.Join(conflicts, "; "),
		Outcome:  o,
	}
}
