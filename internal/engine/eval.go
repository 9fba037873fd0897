package engine

import (
	"fmt"

	"github.com/vicbeneder/micruler/internal/facts"
	"github.com/vicbeneder/micruler/internal/ir"
)

// evaluate returns every binding of c over store that extends env.
//
//   - All threads each binding through its children in order (AND)
//   - Any concatenates the bindings of every child (OR)
//   - Not yields env unchanged iff its child has no binding
//   - Test filters env on a variable bound earlier in the conjunction
//   - Match and ValueIn extend env by one fact each
func evaluate(ruleID string, c ir.Condition, store *facts.Store, env ir.Env) ([]ir.Env, error) {
	switch n := c.(type) {
	case ir.All:
		envs := []ir.Env{env}
		for _, child := range n.Children {
			var next []ir.Env
			for _, e := range envs {
				out, err := evaluate(ruleID, child, store, e)
				if err != nil {
					return nil, err
				}
				next = append(next, out...)
			}
			if len(next) == 0 {
				return nil, nil
			}
			envs = next
		}
		return envs, nil

	case ir.Any:
		var envs []ir.Env
		for _, child := range n.Children {
			out, err := evaluate(ruleID, child, store, env)
			if err != nil {
				return nil, err
			}
			envs = append(envs, out...)
		}
		return envs, nil

	case ir.Not:
		switch child := n.Child.(type) {
		case ir.Match, ir.ValueIn:
			found, err := store.Exists(child, env)
			if err != nil {
				return nil, NewInvalidRuleError(ruleID, err.Error())
			}
			if found {
				return nil, nil
			}
			return []ir.Env{env}, nil
		}
		out, err := evaluate(ruleID, n.Child, store, env)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			return nil, nil
		}
		return []ir.Env{env}, nil

	case ir.Test:
		v, ok := env.Var(n.Var)
		if !ok {
			return nil, NewInvalidRuleError(ruleID, fmt.Sprintf("test on unbound variable %q", n.Var))
		}
		if !ir.ValidCompareOps[n.Op] {
			return nil, NewInvalidRuleError(ruleID, fmt.Sprintf("unknown comparison %q", n.Op))
		}
		if n.Op.Compare(v, n.Value) {
			return []ir.Env{env}, nil
		}
		return nil, nil

	case ir.Match, ir.ValueIn:
		out, err := store.Query(n, env)
		if err != nil {
			return nil, NewInvalidRuleError(ruleID, err.Error())
		}
		return out, nil
	}
	return nil, NewInvalidRuleError(ruleID, fmt.Sprintf("unsupported condition %T", c))
}
