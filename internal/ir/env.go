package ir

import "maps"

// Env is the binding environment produced by condition evaluation.
//
// Envs are treated as immutable: Bind and BindFact return extended copies,
// so sibling branches of an Any never observe each other's bindings.
type Env struct {
	// Vars holds numeric variables (MIC values bound by MICVar).
	Vars map[string]float64
	// Refs holds facts bound by As, the targets of retract actions.
	Refs map[string]Fact
	// Matched lists every fact a positive pattern matched, in match order.
	Matched []Fact
}

// EmptyEnv returns an environment with no bindings.
func EmptyEnv() Env {
	return Env{}
}

// Var returns a numeric variable.
func (e Env) Var(name string) (float64, bool) {
	v, ok := e.Vars[name]
	return v, ok
}

// Ref returns a bound fact.
func (e Env) Ref(name string) (Fact, bool) {
	f, ok := e.Refs[name]
	return f, ok
}

// Bind returns a copy of e with name bound to v.
func (e Env) Bind(name string, v float64) Env {
	out := e.clone()
	if out.Vars == nil {
		out.Vars = make(map[string]float64)
	}
	out.Vars[name] = v
	return out
}

// BindFact returns a copy of e that records f as matched and, when ref is
// non-empty, binds it to ref.
func (e Env) BindFact(ref string, f Fact) Env {
	out := e.clone()
	out.Matched = append(out.Matched, f)
	if ref != "" {
		if out.Refs == nil {
			out.Refs = make(map[string]Fact)
		}
		out.Refs[ref] = f
	}
	return out
}

// MatchedKeys returns the identity keys of the matched facts.
func (e Env) MatchedKeys() []string {
	keys := make([]string, len(e.Matched))
	for i, f := range e.Matched {
		keys[i] = f.Key()
	}
	return keys
}

// Hash returns the binding hash used for refraction.
func (e Env) Hash() string {
	return MustBindingHash(e.MatchedKeys())
}

func (e Env) clone() Env {
	out := Env{
		Vars: maps.Clone(e.Vars),
		Refs: maps.Clone(e.Refs),
	}
	if len(e.Matched) > 0 {
		out.Matched = make([]Fact, len(e.Matched), len(e.Matched)+1)
		copy(out.Matched, e.Matched)
	}
	return out
}
