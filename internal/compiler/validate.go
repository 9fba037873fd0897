package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vicbeneder/micruler/internal/engine"
	"github.com/vicbeneder/micruler/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Rule errors (E120-E139)
	ErrInvalidRuleID        = "E120" // rule id missing or malformed
	ErrDuplicateRuleID      = "E121" // duplicate rule id
	ErrMissingCondition     = "E122" // rule has no condition
	ErrMissingActions       = "E123" // rule has no actions
	ErrUnknownFactKind      = "E124" // pattern or assertion uses an unknown fact kind
	ErrInvalidComparison    = "E125" // test uses an unknown comparison
	ErrUndefinedVariable    = "E126" // test var or retract ref not bound by the condition
	ErrSalienceTooHigh      = "E127" // salience reaches the seed level
	ErrUnknownCompoundClass = "E128" // assert_class names an unknown class
	ErrEmptyValueIn         = "E129" // in pattern with no names
	ErrInvalidLabel         = "E130" // assert_class label is not S, I or R
	ErrSeedReserved         = "E131" // seed flag or seed action in a domain rule
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Rule    string `json:"rule,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Rule != "" {
		prefix += " " + e.Rule
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: %s: %s", prefix, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", prefix, e.Field, e.Message)
}

// ClassChecker reports whether a compound class exists. Implemented by
// reference.Catalog.
type ClassChecker interface {
	HasClass(class string) bool
}

// Validate validates compiled rules against schema rules.
// Returns all errors found (does not fail-fast).
// Supports Rule and []Rule; the slice form also checks ID uniqueness.
func Validate(v any) []ValidationError {
	switch r := v.(type) {
	case *ir.Rule:
		return validateRule(r)
	case ir.Rule:
		return validateRule(&r)
	case []ir.Rule:
		return validateRules(r)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// ValidateClasses checks that every assert_class action names a class the
// catalog knows.
func ValidateClasses(rules []ir.Rule, classes ClassChecker) []ValidationError {
	var errs []ValidationError
	for _, r := range rules {
		for i, a := range r.Actions {
			if a.Op != ir.ActionAssertClass || classes.HasClass(a.Class) {
				continue
			}
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("then[%d].assert_class", i),
				Message: fmt.Sprintf("unknown compound class %q", a.Class),
				Code:    ErrUnknownCompoundClass,
				Rule:    r.ID,
			})
		}
	}
	return errs
}

func validateRules(rules []ir.Rule) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		r := &rules[i]
		if r.ID != "" && seen[r.ID] {
			errs = append(errs, ValidationError{
				Field:   "id",
				Message: fmt.Sprintf("duplicate rule id %q", r.ID),
				Code:    ErrDuplicateRuleID,
				Rule:    r.ID,
			})
		}
		seen[r.ID] = true
		errs = append(errs, validateRule(r)...)
	}
	return errs
}

// ruleIDPattern matches "eucast-8.1", "eucast-bp-t-staph-pen-1.3", "local-1".
var ruleIDPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9.]+)*$`)

func validateRule(r *ir.Rule) []ValidationError {
	var errs []ValidationError
	add := func(field, code, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg, Code: code, Rule: r.ID})
	}

	// E120: id
	if strings.TrimSpace(r.ID) == "" {
		add("id", ErrInvalidRuleID, "rule id is required")
	} else if !ruleIDPattern.MatchString(r.ID) {
		add("id", ErrInvalidRuleID, fmt.Sprintf("invalid rule id %q, expected lowercase words joined by '-'", r.ID))
	}

	// E127: domain rules stay below the seed rules
	if r.Salience >= engine.SeedSalience {
		add("salience", ErrSalienceTooHigh,
			fmt.Sprintf("salience %d must be below %d (reserved for seed rules)", r.Salience, engine.SeedSalience))
	}

	// E131: seeding is built in
	if r.Seed {
		add("seed", ErrSeedReserved, "domain rules cannot be seed rules")
	}

	// E122: condition
	bound := boundNames{vars: map[string]bool{}, refs: map[string]bool{}}
	if r.Condition == nil {
		add("when", ErrMissingCondition, "when clause is required")
	} else {
		bound = validateCondition(r.Condition, "when", bound, add)
	}

	// E123: actions
	if len(r.Actions) == 0 {
		add("then", ErrMissingActions, "at least one action is required")
	}
	for i, a := range r.Actions {
		field := fmt.Sprintf("then[%d]", i)
		switch a.Op {
		case ir.ActionAssert:
			if !ir.ValidFactKinds[a.Fact.Kind] || a.Fact.Kind == ir.KindInit {
				add(field+".assert", ErrUnknownFactKind, fmt.Sprintf("cannot assert fact kind %q", a.Fact.Kind))
			}
		case ir.ActionAssertClass:
			if _, err := ir.KindForLabel(a.Label); err != nil {
				add(field+".label", ErrInvalidLabel, fmt.Sprintf("invalid label %q, must be S, I or R", a.Label))
			}
		case ir.ActionRetract:
			// E126: retract must name a fact bound by the condition
			if !bound.refs[a.Ref] {
				add(field+".retract", ErrUndefinedVariable, fmt.Sprintf("retract of unbound fact %q", a.Ref))
			}
		case ir.ActionSeed:
			add(field, ErrSeedReserved, "seed actions are reserved for seed rules")
		case ir.ActionWarn:
			if a.Message == "" {
				add(field+".warn", ErrMissingActions, "warn needs a message")
			}
		default:
			add(field, ErrMissingActions, fmt.Sprintf("unknown action %q", a.Op))
		}
	}

	return errs
}

// boundNames tracks what a condition binds on every path through it.
type boundNames struct {
	vars map[string]bool
	refs map[string]bool
}

func (b boundNames) clone() boundNames {
	out := boundNames{vars: make(map[string]bool, len(b.vars)), refs: make(map[string]bool, len(b.refs))}
	for k := range b.vars {
		out.vars[k] = true
	}
	for k := range b.refs {
		out.refs[k] = true
	}
	return out
}

// validateCondition walks a condition in evaluation order and returns the
// names bound after it. Any binds only what every branch binds; Not binds
// nothing.
func validateCondition(c ir.Condition, field string, in boundNames, add func(field, code, msg string)) boundNames {
	switch n := c.(type) {
	case ir.All:
		out := in
		for i, child := range n.Children {
			out = validateCondition(child, fmt.Sprintf("%s.all[%d]", field, i), out, add)
		}
		return out

	case ir.Any:
		var out *boundNames
		for i, child := range n.Children {
			branch := validateCondition(child, fmt.Sprintf("%s.any[%d]", field, i), in.clone(), add)
			if out == nil {
				out = &branch
				continue
			}
			for k := range out.vars {
				if !branch.vars[k] {
					delete(out.vars, k)
				}
			}
			for k := range out.refs {
				if !branch.refs[k] {
					delete(out.refs, k)
				}
			}
		}
		if out == nil {
			return in
		}
		return *out

	case ir.Not:
		validateCondition(n.Child, field+".not", in.clone(), add)
		return in

	case ir.Test:
		if !ir.ValidCompareOps[n.Op] {
			add(field+".test.op", ErrInvalidComparison, fmt.Sprintf("invalid comparison %q", n.Op))
		}
		if !in.vars[n.Var] {
			add(field+".test.var", ErrUndefinedVariable, fmt.Sprintf("test on unbound variable %q", n.Var))
		}
		return in

	case ir.Match:
		return validatePattern(n.Kind, n.As, n.MICVar, field, in, add)

	case ir.ValueIn:
		if len(n.Values) == 0 {
			add(field+".in.names", ErrEmptyValueIn, "in pattern needs at least one name")
		}
		return validatePattern(n.Kind, n.As, n.MICVar, field, in, add)
	}

	add(field, ErrUnsupportedIRType, fmt.Sprintf("unsupported condition %T", c))
	return in
}

func validatePattern(kind ir.FactKind, as, micVar, field string, in boundNames, add func(field, code, msg string)) boundNames {
	if !ir.ValidFactKinds[kind] {
		add(field+".kind", ErrUnknownFactKind, fmt.Sprintf("unknown fact kind %q", kind))
	}
	if micVar != "" && kind != ir.KindMIC {
		add(field+".var", ErrUnknownFactKind, fmt.Sprintf("var binds a MIC value but the pattern matches %q", kind))
	}
	out := in.clone()
	if as != "" {
		out.refs[as] = true
	}
	if micVar != "" {
		out.vars[micVar] = true
	}
	return out
}
