package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/vicbeneder/micruler/internal/ir"
)

// CompileRule parses a CUE value into a Rule.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the rule struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: "eucast-8.6": { ... }`)
//	rule, err := CompileRule(v.LookupPath(cue.ParsePath(`rule."eucast-8.6"`)))
//
// Rule shape:
//
//	rule: "eucast-13.5": {
//		salience: 0                 // optional, default 0
//		doc:      "..."             // optional
//		when: {all: [{organism: "Enterobacterales"}, {resistant: "Ciprofloxacin"}]}
//		then: [{assert_class: "Fluoroquinolones", label: "R"}]
//	}
func CompileRule(v cue.Value) (*ir.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rule := &ir.Rule{}

	// Parse rule ID from struct label
	// e.g., `rule: "eucast-8.1": { ... }` → id is "eucast-8.1"
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		rule.ID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	salienceVal := v.LookupPath(cue.ParsePath("salience"))
	if salienceVal.Exists() {
		s, err := salienceVal.Int64()
		if err != nil {
			return nil, &CompileError{
				Field:   "salience",
				Message: "salience must be an integer",
				Pos:     salienceVal.Pos(),
			}
		}
		rule.Salience = int(s)
	}

	docVal := v.LookupPath(cue.ParsePath("doc"))
	if docVal.Exists() {
		doc, err := docVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		rule.Doc = doc
	}

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return nil, &CompileError{
			Field:   "when",
			Message: "when clause is required",
			Pos:     v.Pos(),
		}
	}
	cond, err := parseCondition(whenVal, "when")
	if err != nil {
		return nil, err
	}
	rule.Condition = cond

	rule.Actions, err = parseThenClause(v)
	if err != nil {
		return nil, err
	}

	return rule, nil
}

// CompileRules compiles every rule under the top-level "rule" struct of v,
// in declaration order.
func CompileRules(v cue.Value) ([]ir.Rule, error) {
	rulesVal := v.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return []ir.Rule{}, nil
	}
	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	rules := []ir.Rule{}
	for iter.Next() {
		r, err := CompileRule(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", iter.Label(), err)
		}
		rules = append(rules, *r)
	}
	return rules, nil
}

// Condition keys. A condition node is a struct with exactly one head key;
// pattern shorthands additionally accept "as" (and "var" for mic).
var labelKinds = map[string]ir.FactKind{
	"resistant":    ir.KindResistant,
	"susceptible":  ir.KindSusceptible,
	"intermediate": ir.KindIntermediate,
}

var markerKinds = map[string]ir.FactKind{
	"beta_lactamase": ir.KindBetaLactamase,
	"mec":            ir.KindMec,
	"inducible_mlsb": ir.KindInducibleMLSB,
}

// parseCondition parses one condition node.
func parseCondition(v cue.Value, field string) (ir.Condition, error) {
	fields, err := structFields(v, field)
	if err != nil {
		return nil, err
	}

	head, headVal, err := conditionHead(v, fields, field)
	if err != nil {
		return nil, err
	}
	as, err := optionalString(fields, "as", field)
	if err != nil {
		return nil, err
	}

	switch {
	case head == "all" || head == "any":
		children, err := parseConditionList(headVal, field+"."+head)
		if err != nil {
			return nil, err
		}
		if head == "all" {
			return ir.All{Children: children}, nil
		}
		return ir.Any{Children: children}, nil

	case head == "not":
		child, err := parseCondition(headVal, field+".not")
		if err != nil {
			return nil, err
		}
		return ir.Not{Child: child}, nil

	case head == "test":
		return parseTest(headVal, field+".test")

	case head == "fact":
		return parseFactPattern(headVal, field+".fact")

	case head == "any_of":
		return parseValueIn(headVal, field+".any_of")

	case head == "organism":
		return parseNames(headVal, field+".organism", ir.KindOrganism, as, "")

	case head == "mic":
		micVar, err := optionalString(fields, "var", field)
		if err != nil {
			return nil, err
		}
		return parseNames(headVal, field+".mic", ir.KindMIC, as, micVar)

	case labelKinds[head] != "":
		return parseNames(headVal, field+"."+head, labelKinds[head], as, "")

	case markerKinds[head] != "":
		present, err := headVal.Bool()
		if err != nil {
			return nil, &CompileError{
				Field:   field + "." + head,
				Message: "marker pattern must be true or false",
				Pos:     headVal.Pos(),
			}
		}
		return ir.Match{Kind: markerKinds[head], Present: ir.BoolPtr(present), As: as}, nil
	}

	return nil, &CompileError{
		Field:   field,
		Message: fmt.Sprintf("unknown condition %q", head),
		Pos:     v.Pos(),
	}
}

// conditionHead finds the single head key of a condition node.
func conditionHead(v cue.Value, fields map[string]cue.Value, field string) (string, cue.Value, error) {
	var heads []string
	for name := range fields {
		if name == "as" || name == "var" {
			continue
		}
		heads = append(heads, name)
	}
	if len(heads) != 1 {
		return "", cue.Value{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("condition must have exactly one of all, any, not, test, fact, any_of, organism, mic, resistant, susceptible, intermediate or a marker; got %d keys", len(heads)),
			Pos:     v.Pos(),
		}
	}
	return heads[0], fields[heads[0]], nil
}

func parseConditionList(v cue.Value, field string) ([]ir.Condition, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "expected a list of conditions",
			Pos:     v.Pos(),
		}
	}
	var children []ir.Condition
	for i := 0; iter.Next(); i++ {
		child, err := parseCondition(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 0 {
		return nil, &CompileError{
			Field:   field,
			Message: "condition list must not be empty",
			Pos:     v.Pos(),
		}
	}
	return children, nil
}

// parseTest parses {var: "m", op: ">", value: 8}.
func parseTest(v cue.Value, field string) (ir.Condition, error) {
	fields, err := structFields(v, field)
	if err != nil {
		return nil, err
	}
	name, err := requiredString(v, fields, "var", field)
	if err != nil {
		return nil, err
	}
	op, err := requiredString(v, fields, "op", field)
	if err != nil {
		return nil, err
	}
	valueVal, ok := fields["value"]
	if !ok {
		return nil, &CompileError{
			Field:   field + ".value",
			Message: "test requires 'value'",
			Pos:     v.Pos(),
		}
	}
	value, err := valueVal.Float64()
	if err != nil {
		return nil, &CompileError{
			Field:   field + ".value",
			Message: "test value must be a number",
			Pos:     valueVal.Pos(),
		}
	}
	return ir.Test{Var: name, Op: ir.CompareOp(op), Value: value}, nil
}

// parseFactPattern parses the general {kind, name?, present?, as?, var?} form.
func parseFactPattern(v cue.Value, field string) (ir.Condition, error) {
	fields, err := structFields(v, field)
	if err != nil {
		return nil, err
	}
	kind, err := requiredString(v, fields, "kind", field)
	if err != nil {
		return nil, err
	}
	m := ir.Match{Kind: ir.FactKind(kind)}
	if m.Name, err = optionalString(fields, "name", field); err != nil {
		return nil, err
	}
	if m.As, err = optionalString(fields, "as", field); err != nil {
		return nil, err
	}
	if m.MICVar, err = optionalString(fields, "var", field); err != nil {
		return nil, err
	}
	if pv, ok := fields["present"]; ok {
		present, err := pv.Bool()
		if err != nil {
			return nil, &CompileError{
				Field:   field + ".present",
				Message: "present must be a bool",
				Pos:     pv.Pos(),
			}
		}
		m.Present = ir.BoolPtr(present)
	}
	return m, nil
}

// parseValueIn parses any_of: {kind, names: [...], as?, var?}.
func parseValueIn(v cue.Value, field string) (ir.Condition, error) {
	fields, err := structFields(v, field)
	if err != nil {
		return nil, err
	}
	kind, err := requiredString(v, fields, "kind", field)
	if err != nil {
		return nil, err
	}
	namesVal, ok := fields["names"]
	if !ok {
		return nil, &CompileError{
			Field:   field + ".names",
			Message: "any_of requires 'names'",
			Pos:     v.Pos(),
		}
	}
	names, err := stringList(namesVal, field+".names")
	if err != nil {
		return nil, err
	}
	in := ir.ValueIn{Kind: ir.FactKind(kind), Values: names}
	if in.As, err = optionalString(fields, "as", field); err != nil {
		return nil, err
	}
	if in.MICVar, err = optionalString(fields, "var", field); err != nil {
		return nil, err
	}
	return in, nil
}

// parseNames turns a shorthand value into a Match (single string) or a
// ValueIn (list of strings).
func parseNames(v cue.Value, field string, kind ir.FactKind, as, micVar string) (ir.Condition, error) {
	if v.Kind() == cue.ListKind {
		names, err := stringList(v, field)
		if err != nil {
			return nil, err
		}
		return ir.ValueIn{Kind: kind, Values: names, As: as, MICVar: micVar}, nil
	}
	name, err := v.String()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "expected a name or a list of names",
			Pos:     v.Pos(),
		}
	}
	return ir.Match{Kind: kind, Name: name, As: as, MICVar: micVar}, nil
}

// parseThenClause extracts the action list of a rule.
func parseThenClause(v cue.Value) ([]ir.Action, error) {
	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return nil, &CompileError{
			Field:   "then",
			Message: "then clause is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := thenVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "then",
			Message: "then clause must be a list of actions",
			Pos:     thenVal.Pos(),
		}
	}

	var actions []ir.Action
	for i := 0; iter.Next(); i++ {
		parsed, err := parseAction(iter.Value(), fmt.Sprintf("then[%d]", i))
		if err != nil {
			return nil, err
		}
		actions = append(actions, parsed...)
	}
	if len(actions) == 0 {
		return nil, &CompileError{
			Field:   "then",
			Message: "at least one action is required",
			Pos:     thenVal.Pos(),
		}
	}
	return actions, nil
}

// parseAction parses one entry of a then clause. Label shorthands with a
// list of compounds expand into one assert per compound.
func parseAction(v cue.Value, field string) ([]ir.Action, error) {
	fields, err := structFields(v, field)
	if err != nil {
		return nil, err
	}

	if rv, ok := fields["retract"]; ok {
		ref, err := rv.String()
		if err != nil {
			return nil, &CompileError{
				Field:   field + ".retract",
				Message: "retract takes the name of a bound fact",
				Pos:     rv.Pos(),
			}
		}
		return []ir.Action{{Op: ir.ActionRetract, Ref: ref}}, nil
	}

	if wv, ok := fields["warn"]; ok {
		msg, err := wv.String()
		if err != nil || msg == "" {
			return nil, &CompileError{
				Field:   field + ".warn",
				Message: "warn takes a non-empty message",
				Pos:     wv.Pos(),
			}
		}
		return []ir.Action{{Op: ir.ActionWarn, Message: msg}}, nil
	}

	if cv, ok := fields["assert_class"]; ok {
		class, err := cv.String()
		if err != nil {
			return nil, &CompileError{
				Field:   field + ".assert_class",
				Message: "assert_class takes a compound class name",
				Pos:     cv.Pos(),
			}
		}
		label, err := requiredString(v, fields, "label", field)
		if err != nil {
			return nil, err
		}
		a := ir.Action{Op: ir.ActionAssertClass, Class: class, Label: ir.Label(label)}
		if ev, ok := fields["except"]; ok {
			if a.Except, err = stringList(ev, field+".except"); err != nil {
				return nil, err
			}
		}
		return []ir.Action{a}, nil
	}

	if av, ok := fields["assert"]; ok {
		m, err := parseFactPattern(av, field+".assert")
		if err != nil {
			return nil, err
		}
		pattern := m.(ir.Match)
		f := ir.Fact{Kind: pattern.Kind, Name: pattern.Name}
		if pattern.Present != nil {
			f.Present = *pattern.Present
		}
		if f.Qualifier, err = optionalString(fields, "qualifier", field); err != nil {
			return nil, err
		}
		return []ir.Action{{Op: ir.ActionAssert, Fact: f}}, nil
	}

	for key, kind := range markerKinds {
		mv, ok := fields[key]
		if !ok {
			continue
		}
		present, err := mv.Bool()
		if err != nil {
			return nil, &CompileError{
				Field:   field + "." + key,
				Message: "marker assertion must be true or false",
				Pos:     mv.Pos(),
			}
		}
		return []ir.Action{{Op: ir.ActionAssert, Fact: ir.Fact{Kind: kind, Present: present}}}, nil
	}

	for key, kind := range labelKinds {
		lv, ok := fields[key]
		if !ok {
			continue
		}
		qualifier, err := optionalString(fields, "qualifier", field)
		if err != nil {
			return nil, err
		}
		var names []string
		if lv.Kind() == cue.ListKind {
			if names, err = stringList(lv, field+"."+key); err != nil {
				return nil, err
			}
		} else {
			name, err := lv.String()
			if err != nil {
				return nil, &CompileError{
					Field:   field + "." + key,
					Message: "expected a compound or a list of compounds",
					Pos:     lv.Pos(),
				}
			}
			names = []string{name}
		}
		actions := make([]ir.Action, 0, len(names))
		for _, name := range names {
			actions = append(actions, ir.Action{
				Op:   ir.ActionAssert,
				Fact: ir.Fact{Kind: kind, Name: name, Qualifier: qualifier},
			})
		}
		return actions, nil
	}

	return nil, &CompileError{
		Field:   field,
		Message: "action must be one of assert, assert_class, retract, warn, a label or a marker",
		Pos:     v.Pos(),
	}
}

// structFields collects the regular fields of a struct value.
func structFields(v cue.Value, field string) (map[string]cue.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "expected a struct",
			Pos:     v.Pos(),
		}
	}
	fields := make(map[string]cue.Value)
	for iter.Next() {
		fields[iter.Label()] = iter.Value()
	}
	return fields, nil
}

func requiredString(parent cue.Value, fields map[string]cue.Value, name, field string) (string, error) {
	fv, ok := fields[name]
	if !ok {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: fmt.Sprintf("'%s' is required", name),
			Pos:     parent.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: fmt.Sprintf("'%s' must be a string", name),
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

func optionalString(fields map[string]cue.Value, name, field string) (string, error) {
	fv, ok := fields[name]
	if !ok {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: fmt.Sprintf("'%s' must be a string", name),
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "expected a list of strings",
			Pos:     v.Pos(),
		}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: "expected a list of strings",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileSource compiles one CUE source file and returns its rules in
// declaration order. Syntax and evaluation errors carry the file position.
func CompileSource(ctx *cue.Context, filename string, src []byte) ([]ir.Rule, error) {
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileRules(v)
}
