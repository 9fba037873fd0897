package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicbeneder/micruler/internal/ir"
)

func compileOne(t *testing.T, src, id string) (*ir.Rule, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileRule(v.LookupPath(cue.ParsePath(`rule."` + id + `"`)))
}

func TestCompileRuleBasic(t *testing.T) {
	rule, err := compileOne(t, `
		rule: "eucast-13.5": {
			salience: 5
			doc: "Enterobacterales resistant to ciprofloxacin"
			when: all: [
				{organism: "Enterobacterales"},
				{resistant: "Ciprofloxacin"},
			]
			then: [{assert_class: "Fluoroquinolones", label: "R"}]
		}
	`, "eucast-13.5")

	require.NoError(t, err)
	assert.Equal(t, "eucast-13.5", rule.ID)
	assert.Equal(t, 5, rule.Salience)
	assert.Equal(t, "Enterobacterales resistant to ciprofloxacin", rule.Doc)
	assert.Equal(t, ir.All{Children: []ir.Condition{
		ir.Match{Kind: ir.KindOrganism, Name: "Enterobacterales"},
		ir.Match{Kind: ir.KindResistant, Name: "Ciprofloxacin"},
	}}, rule.Condition)
	assert.Equal(t, []ir.Action{
		{Op: ir.ActionAssertClass, Class: "Fluoroquinolones", Label: ir.LabelR},
	}, rule.Actions)
}

func TestCompileRuleDefaultSalience(t *testing.T) {
	rule, err := compileOne(t, `
		rule: "r": {
			when: {organism: "Staphylococcus"}
			then: [{mec: true}]
		}
	`, "r")

	require.NoError(t, err)
	assert.Equal(t, 0, rule.Salience)
	assert.Equal(t, ir.Match{Kind: ir.KindOrganism, Name: "Staphylococcus"}, rule.Condition)
	assert.Equal(t, []ir.Action{{Op: ir.ActionAssert, Fact: ir.Mec(true)}}, rule.Actions)
}

func TestCompileRuleShorthandLists(t *testing.T) {
	rule, err := compileOne(t, `
		rule: "r": {
			when: all: [
				{organism: ["Group A", "Group C"]},
				{susceptible: "Benzylpenicillin"},
			]
			then: [{susceptible: ["Ampicillin", "Amoxicillin"]}]
		}
	`, "r")

	require.NoError(t, err)
	all := rule.Condition.(ir.All)
	assert.Equal(t, ir.ValueIn{Kind: ir.KindOrganism, Values: []string{"Group A", "Group C"}}, all.Children[0])
	assert.Equal(t, []ir.Action{
		{Op: ir.ActionAssert, Fact: ir.Susceptible("Ampicillin")},
		{Op: ir.ActionAssert, Fact: ir.Susceptible("Amoxicillin")},
	}, rule.Actions)
}

func TestCompileRuleWarn(t *testing.T) {
	rule, err := compileOne(t, `
		rule: "w": {
			when: all: [{organism: "Staphylococcus"}, {resistant: "Clindamycin"}]
			then: [{warn: "reduced activity"}]
		}
	`, "w")

	require.NoError(t, err)
	assert.Equal(t, []ir.Action{{Op: ir.ActionWarn, Message: "reduced activity"}}, rule.Actions)
	assert.Equal(t, `warn "reduced activity"`, rule.Actions[0].String())
}

func TestCompileRuleMICTestAndRetract(t *testing.T) {
	rule, err := compileOne(t, `
		rule: "eucast-11.4": {
			when: any: [
				{all: [
					{organism: "Peptostreptococcus"},
					{mic: "Erythromycin", var: "m"},
					{test: {var: "m", op: ">", value: 8}},
					{susceptible: "Clindamycin", as: "fct"},
				]},
				{all: [
					{organism: "Bacteroides"},
					{mic: "Erythromycin", var: "m"},
					{test: {var: "m", op: ">", value: 32}},
					{susceptible: "Clindamycin", as: "fct"},
				]},
			]
			then: [{retract: "fct"}, {resistant: "Clindamycin"}]
		}
	`, "eucast-11.4")

	require.NoError(t, err)
	anyNode := rule.Condition.(ir.Any)
	require.Len(t, anyNode.Children, 2)
	first := anyNode.Children[0].(ir.All)
	assert.Equal(t, ir.Match{Kind: ir.KindMIC, Name: "Erythromycin", MICVar: "m"}, first.Children[1])
	assert.Equal(t, ir.Test{Var: "m", Op: ir.OpGT, Value: 8}, first.Children[2])
	assert.Equal(t, ir.Match{Kind: ir.KindSusceptible, Name: "Clindamycin", As: "fct"}, first.Children[3])
	assert.Equal(t, []ir.Action{
		{Op: ir.ActionRetract, Ref: "fct"},
		{Op: ir.ActionAssert, Fact: ir.Resistant("Clindamycin")},
	}, rule.Actions)
}

func TestCompileRuleFractionalThreshold(t *testing.T) {
	rule, err := compileOne(t, `
		rule: "r": {
			when: all: [{mic: "Ciprofloxacin", var: "m"}, {test: {var: "m", op: ">", value: 0.06}}]
			then: [{assert_class: "Fluoroquinolones", label: "R"}]
		}
	`, "r")

	require.NoError(t, err)
	test := rule.Condition.(ir.All).Children[1].(ir.Test)
	assert.InDelta(t, 0.06, test.Value, 1e-12)
}

func TestCompileRuleNotAndMarkers(t *testing.T) {
	rule, err := compileOne(t, `
		rule: "r": {
			when: all: [
				{beta_lactamase: false},
				{not: {organism: "Staphylococcus saprophyticus"}},
			]
			then: [{resistant: "Gentamicin", qualifier: "low-level"}]
		}
	`, "r")

	require.NoError(t, err)
	all := rule.Condition.(ir.All)
	assert.Equal(t, ir.Match{Kind: ir.KindBetaLactamase, Present: ir.BoolPtr(false)}, all.Children[0])
	assert.Equal(t, ir.Not{Child: ir.Match{Kind: ir.KindOrganism, Name: "Staphylococcus saprophyticus"}}, all.Children[1])
	assert.Equal(t, []ir.Action{{Op: ir.ActionAssert, Fact: ir.Resistant("Gentamicin", "low-level")}}, rule.Actions)
}

func TestCompileRuleGeneralForms(t *testing.T) {
	rule, err := compileOne(t, `
		rule: "r": {
			when: all: [
				{fact: {kind: "mec", present: true}},
				{any_of: {kind: "resistant", names: ["Moxifloxacin", "Levofloxacin"], as: "q"}},
			]
			then: [
				{assert: {kind: "intermediate", name: "Amikacin"}},
				{assert_class: "Penicillins", label: "R", except: ["Oxacillin"]},
			]
		}
	`, "r")

	require.NoError(t, err)
	all := rule.Condition.(ir.All)
	assert.Equal(t, ir.Match{Kind: ir.KindMec, Present: ir.BoolPtr(true)}, all.Children[0])
	assert.Equal(t, ir.ValueIn{Kind: ir.KindResistant, Values: []string{"Moxifloxacin", "Levofloxacin"}, As: "q"}, all.Children[1])
	assert.Equal(t, []ir.Action{
		{Op: ir.ActionAssert, Fact: ir.Intermediate("Amikacin")},
		{Op: ir.ActionAssertClass, Class: "Penicillins", Label: ir.LabelR, Except: []string{"Oxacillin"}},
	}, rule.Actions)
}

// =============================================================================
// Compile errors
// =============================================================================

func TestCompileRuleErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing when", `rule: "r": { then: [{mec: true}] }`, "when"},
		{"missing then", `rule: "r": { when: {organism: "X"} }`, "then"},
		{"empty then", `rule: "r": { when: {organism: "X"}, then: [] }`, "then"},
		{"two heads", `rule: "r": { when: {organism: "X", resistant: "Y"}, then: [{mec: true}] }`, "when"},
		{"unknown head", `rule: "r": { when: {bogus: "X"}, then: [{mec: true}] }`, "when"},
		{"empty all", `rule: "r": { when: {all: []}, then: [{mec: true}] }`, "when.all"},
		{"test without value", `rule: "r": { when: {test: {var: "m", op: ">"}}, then: [{mec: true}] }`, "when.test.value"},
		{"marker not bool", `rule: "r": { when: {mec: "yes"}, then: [{mec: true}] }`, "when.mec"},
		{"assert_class without label", `rule: "r": { when: {organism: "X"}, then: [{assert_class: "Penicillins"}] }`, "then[0].label"},
		{"unknown action", `rule: "r": { when: {organism: "X"}, then: [{launch: "X"}] }`, "then[0]"},
		{"warn without message", `rule: "r": { when: {organism: "X"}, then: [{warn: ""}] }`, "then[0].warn"},
		{"warn not string", `rule: "r": { when: {organism: "X"}, then: [{warn: 3}] }`, "then[0].warn"},
		{"salience not int", `rule: "r": { salience: "high", when: {organism: "X"}, then: [{mec: true}] }`, "salience"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileOne(t, tt.src, "r")
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "when", Message: "when clause is required"}
	assert.Equal(t, "when: when clause is required", err.Error())
}

// =============================================================================
// CompileRules
// =============================================================================

func TestCompileRulesDeclarationOrder(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		rule: "b-second": { when: {organism: "X"}, then: [{mec: true}] }
		rule: "a-first":  { when: {organism: "Y"}, then: [{mec: false}] }
	`)
	require.NoError(t, v.Err())

	rules, err := CompileRules(v)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "b-second", rules[0].ID)
	assert.Equal(t, "a-first", rules[1].ID)
}

func TestCompileRulesNoRules(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`other: 1`)

	rules, err := CompileRules(v)
	require.NoError(t, err)
	assert.NotNil(t, rules)
	assert.Empty(t, rules)
}

func TestCompileRulesWrapsRuleID(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`rule: "broken": { then: [{mec: true}] }`)

	_, err := CompileRules(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule broken")
}

func TestCompileSource(t *testing.T) {
	ctx := cuecontext.New()
	rules, err := CompileSource(ctx, "13_fluoroquinolones.cue", []byte(`package rules

rule: "eucast-13.8": {
	when: all: [{organism: "Neisseria gonorrhoeae"}, {resistant: "Ciprofloxacin"}]
	then: [{assert_class: "Fluoroquinolones", label: "R"}]
}
`))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "eucast-13.8", rules[0].ID)
}

func TestCompileSourceSyntaxErrorHasPosition(t *testing.T) {
	ctx := cuecontext.New()
	_, err := CompileSource(ctx, "broken.cue", []byte("rule: \"x\": {\n\twhen: [\n}\n"))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "broken.cue", ce.Pos.Filename())
}
