package ir

import "fmt"

// Rule is one interpretive rule: a condition over the fact store and the
// actions applied when it fires. Rules are static after compilation.
type Rule struct {
	ID        string    `json:"id"`
	Salience  int       `json:"salience"`
	Seed      bool      `json:"seed,omitempty"`
	Condition Condition `json:"-"`
	Actions   []Action  `json:"actions"`

	// Doc is the free-text description carried over from the rule source.
	Doc string `json:"doc,omitempty"`
}

// Condition is a sealed tagged variant over condition nodes.
// Implemented by All, Any, Not, Test, Match and ValueIn only.
type Condition interface {
	conditionNode()
}

// All holds when every child holds under one consistent binding (AND).
type All struct {
	Children []Condition
}

// Any holds when at least one child holds (OR). Each satisfied child
// contributes its own bindings.
type Any struct {
	Children []Condition
}

// Not holds when its child has no satisfying binding in the current store
// (negation as failure). It binds nothing.
type Not struct {
	Child Condition
}

// Test holds when the numeric variable Var, bound earlier in the same
// conjunction, compares true against Value.
type Test struct {
	Var   string
	Op    CompareOp
	Value float64
}

// Match is a pattern over one fact.
//
// An empty Name matches any name. Present is only compared for marker
// kinds. As binds the matched fact for a later retract; MICVar binds the
// MIC value of a mic fact for later Test nodes.
type Match struct {
	Kind    FactKind
	Name    string
	Present *bool
	As      string
	MICVar  string
}

// ValueIn is a pattern over one fact whose name is any of Values.
type ValueIn struct {
	Kind   FactKind
	Values []string
	As     string
	MICVar string
}

func (All) conditionNode()     {}
func (Any) conditionNode()     {}
func (Not) conditionNode()     {}
func (Test) conditionNode()    {}
func (Match) conditionNode()   {}
func (ValueIn) conditionNode() {}

// CompareOp is a numeric comparison used by Test.
type CompareOp string

const (
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpEQ CompareOp = "=="
)

// ValidCompareOps lists the accepted comparison operators.
var ValidCompareOps = map[CompareOp]bool{
	OpGT: true, OpGE: true, OpLT: true, OpLE: true, OpEQ: true,
}

// Compare applies the operator to lhs and rhs.
func (op CompareOp) Compare(lhs, rhs float64) bool {
	switch op {
	case OpGT:
		return lhs > rhs
	case OpGE:
		return lhs >= rhs
	case OpLT:
		return lhs < rhs
	case OpLE:
		return lhs <= rhs
	case OpEQ:
		return lhs == rhs
	}
	return false
}

// ActionOp tags the variant of an Action.
type ActionOp string

const (
	// ActionAssert asserts Fact.
	ActionAssert ActionOp = "assert"
	// ActionAssertClass asserts Label for every member of Class not in Except.
	ActionAssertClass ActionOp = "assert_class"
	// ActionRetract retracts the fact bound to Ref.
	ActionRetract ActionOp = "retract"
	// ActionSeed asserts the run's seed facts for Seed.
	ActionSeed ActionOp = "seed"
	// ActionWarn reports Message without changing any fact.
	ActionWarn ActionOp = "warn"
)

// SeedSet names a group of per-run seed facts.
type SeedSet string

const (
	SeedLineage      SeedSet = "lineage"
	SeedMeasurements SeedSet = "measurements"
)

// Action is one effect of a rule firing.
type Action struct {
	Op     ActionOp `json:"op"`
	Fact   Fact     `json:"fact,omitempty"`
	Class  string   `json:"class,omitempty"`
	Label  Label    `json:"label,omitempty"`
	Except []string `json:"except,omitempty"`
	Ref    string   `json:"ref,omitempty"`
	Seed    SeedSet  `json:"seed,omitempty"`
	Message string   `json:"message,omitempty"`
}

// String renders the action for logs and traces.
func (a Action) String() string {
	switch a.Op {
	case ActionAssert:
		return "assert " + a.Fact.String()
	case ActionAssertClass:
		if len(a.Except) > 0 {
			return fmt.Sprintf("assert_class %s=%s except %v", a.Class, a.Label, a.Except)
		}
		return fmt.Sprintf("assert_class %s=%s", a.Class, a.Label)
	case ActionRetract:
		return "retract " + a.Ref
	case ActionSeed:
		return "seed " + string(a.Seed)
	case ActionWarn:
		return fmt.Sprintf("warn %q", a.Message)
	}
	return string(a.Op)
}

// BoolPtr returns a pointer to b, for Match.Present literals.
func BoolPtr(b bool) *bool {
	return &b
}
