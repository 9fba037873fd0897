package facts

import (
	"fmt"
	"slices"

	"github.com/vicbeneder/micruler/internal/ir"
)

// Query returns one extended environment per fact matching pattern under
// env, in assertion order. pattern must be an ir.Match or ir.ValueIn.
//
// Variables already bound in env act as join constraints: a MICVar that is
// bound must equal the candidate's MIC, and an As that is bound must name
// the same fact.
func (s *Store) Query(pattern ir.Condition, env ir.Env) ([]ir.Env, error) {
	var (
		accept func(ir.Fact) bool
		as     string
		micVar string
	)

	switch p := pattern.(type) {
	case ir.Match:
		accept = func(f ir.Fact) bool { return matchOne(p, f) }
		as, micVar = p.As, p.MICVar
	case *ir.Match:
		accept = func(f ir.Fact) bool { return matchOne(*p, f) }
		as, micVar = p.As, p.MICVar
	case ir.ValueIn:
		accept = func(f ir.Fact) bool { return f.Kind == p.Kind && slices.Contains(p.Values, f.Name) }
		as, micVar = p.As, p.MICVar
	case *ir.ValueIn:
		accept = func(f ir.Fact) bool { return f.Kind == p.Kind && slices.Contains(p.Values, f.Name) }
		as, micVar = p.As, p.MICVar
	default:
		return nil, fmt.Errorf("query: %T is not a fact pattern", pattern)
	}

	out := []ir.Env{}
	for _, e := range s.order {
		f := e.fact
		if !accept(f) {
			continue
		}
		next, ok := bind(env, f, as, micVar)
		if !ok {
			continue
		}
		out = append(out, next)
	}
	return out, nil
}

// Exists reports whether any fact matches pattern under env.
func (s *Store) Exists(pattern ir.Condition, env ir.Env) (bool, error) {
	envs, err := s.Query(pattern, env)
	if err != nil {
		return false, err
	}
	return len(envs) > 0, nil
}

func matchOne(p ir.Match, f ir.Fact) bool {
	if f.Kind != p.Kind {
		return false
	}
	if p.Name != "" && f.Name != p.Name {
		return false
	}
	if p.Present != nil && p.Kind.IsMarker() && f.Present != *p.Present {
		return false
	}
	return true
}

func bind(env ir.Env, f ir.Fact, as, micVar string) (ir.Env, bool) {
	if micVar != "" {
		if f.Kind != ir.KindMIC {
			return env, false
		}
		if v, ok := env.Var(micVar); ok {
			if v != f.MIC {
				return env, false
			}
		} else {
			env = env.Bind(micVar, f.MIC)
		}
	}
	if as != "" {
		if prev, ok := env.Ref(as); ok && prev.Key() != f.Key() {
			return env, false
		}
	}
	return env.BindFact(as, f), true
}
