package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vicbeneder/micruler/internal/facts"
	"github.com/vicbeneder/micruler/internal/ir"
)

// DefaultMaxIterations is the default iteration cap per run.
const DefaultMaxIterations = 1000

// ClassResolver expands a compound class into its members. Implemented by
// reference.Catalog.
type ClassResolver interface {
	MembersOf(class string, except ...string) ([]string, error)
}

// Engine holds a prepared rule base.
//
// INVARIANTS:
//   - rules order NEVER changes after construction (declaration order)
//   - rule IDs are unique
//   - seed rules are the only rules at or above SeedSalience
type Engine struct {
	rules         []preparedRule // declaration order: seed rules, then domain rules
	agenda        []int          // indexes into rules, salience desc, stable
	maxIterations int
	runIDs        RunIDGenerator
}

// preparedRule is a rule with assert_class actions already expanded.
type preparedRule struct {
	rule    ir.Rule
	actions []preparedAction
}

type preparedAction struct {
	action ir.Action
	facts  []ir.Fact // expanded facts for assert and assert_class
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxIterations sets the iteration cap per run.
//
// Default: 1000 (DefaultMaxIterations).
func WithMaxIterations(n int) EngineOption {
	return func(e *Engine) {
		e.maxIterations = n
	}
}

// WithRunIDGenerator sets the generator used for run IDs.
//
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// New prepares domain rules for execution. The seed rules are prepended
// automatically. classes expands assert_class actions; it may be nil when
// no rule uses assert_class.
//
// The rules slice is copied, so later mutation by the caller does not
// change declaration order.
func New(rules []ir.Rule, classes ClassResolver, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		maxIterations: DefaultMaxIterations,
		runIDs:        UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", e.maxIterations)
	}

	all := append(SeedRules(), rules...)
	seen := make(map[string]bool, len(all))
	for i, r := range all {
		domain := i >= len(all)-len(rules)
		if err := checkRule(r, domain, seen); err != nil {
			return nil, err
		}
		seen[r.ID] = true

		pr, err := prepare(r, classes)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, pr)
	}

	e.agenda = make([]int, len(e.rules))
	for i := range e.agenda {
		e.agenda[i] = i
	}
	sort.SliceStable(e.agenda, func(a, b int) bool {
		return e.rules[e.agenda[a]].rule.Salience > e.rules[e.agenda[b]].rule.Salience
	})

	return e, nil
}

func checkRule(r ir.Rule, domain bool, seen map[string]bool) error {
	if r.ID == "" {
		return NewInvalidRuleError("", "rule id is required")
	}
	if seen[r.ID] {
		return NewInvalidRuleError(r.ID, "duplicate rule id")
	}
	if r.Condition == nil {
		return NewInvalidRuleError(r.ID, "rule has no condition")
	}
	if len(r.Actions) == 0 {
		return NewInvalidRuleError(r.ID, "rule has no actions")
	}
	if !domain {
		return nil
	}
	if r.Seed {
		return NewInvalidRuleError(r.ID, "domain rules cannot be seed rules")
	}
	if r.Salience >= SeedSalience {
		return NewInvalidRuleError(r.ID, fmt.Sprintf("salience %d must be below seed salience %d", r.Salience, SeedSalience))
	}
	for _, a := range r.Actions {
		if a.Op == ir.ActionSeed {
			return NewInvalidRuleError(r.ID, "seed actions are reserved for seed rules")
		}
	}
	return nil
}

func prepare(r ir.Rule, classes ClassResolver) (preparedRule, error) {
	pr := preparedRule{rule: r}
	for _, a := range r.Actions {
		pa := preparedAction{action: a}
		switch a.Op {
		case ir.ActionAssert:
			pa.facts = []ir.Fact{a.Fact}
		case ir.ActionAssertClass:
			if classes == nil {
				return pr, NewInvalidRuleError(r.ID, "assert_class needs a compound class resolver")
			}
			kind, err := ir.KindForLabel(a.Label)
			if err != nil {
				return pr, NewInvalidRuleError(r.ID, err.Error())
			}
			members, err := classes.MembersOf(a.Class, a.Except...)
			if err != nil {
				return pr, NewInvalidRuleError(r.ID, err.Error())
			}
			for _, m := range members {
				pa.facts = append(pa.facts, ir.Fact{Kind: kind, Name: m})
			}
		case ir.ActionRetract:
			if a.Ref == "" {
				return pr, NewInvalidRuleError(r.ID, "retract needs a reference")
			}
		case ir.ActionSeed:
			if a.Seed != ir.SeedLineage && a.Seed != ir.SeedMeasurements {
				return pr, NewInvalidRuleError(r.ID, fmt.Sprintf("unknown seed set %q", a.Seed))
			}
		case ir.ActionWarn:
			if a.Message == "" {
				return pr, NewInvalidRuleError(r.ID, "warn needs a message")
			}
		default:
			return pr, NewInvalidRuleError(r.ID, fmt.Sprintf("unknown action %q", a.Op))
		}
		pr.actions = append(pr.actions, pa)
	}
	return pr, nil
}

// Rules returns the prepared rules in declaration order, seed rules first.
func (e *Engine) Rules() []ir.Rule {
	out := make([]ir.Rule, len(e.rules))
	for i, pr := range e.rules {
		out[i] = pr.rule
	}
	return out
}

// MaxIterations returns the iteration cap.
func (e *Engine) MaxIterations() int {
	return e.maxIterations
}

// Firing records one rule firing.
type Firing struct {
	Seq         int      `json:"seq"`
	RuleID      string   `json:"rule_id"`
	BindingHash string   `json:"binding_hash"`
	Asserted    int      `json:"asserted"`
	Retracted   int      `json:"retracted"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Result is the outcome of one run.
type Result struct {
	RunID      string   `json:"run_id"`
	Firings    []Firing `json:"firings"`
	Iterations int      `json:"iterations"`
}

// Warnings returns the messages of every warn action fired, in firing
// order.
func (r *Result) Warnings() []string {
	out := []string{}
	for _, f := range r.Firings {
		out = append(out, f.Warnings...)
	}
	return out
}

// activation is one (rule, binding) eligible to fire.
type activation struct {
	rule *preparedRule
	env  ir.Env
	hash string
}

// Run seeds the store through the seed rules and runs the
// match–select–act cycle to a fixpoint.
//
// The store is used as given; callers isolate samples by passing a fresh
// or Reset store. On error the returned Result holds the firings made
// before the failure.
func (e *Engine) Run(ctx context.Context, store *facts.Store, seed Seed) (*Result, error) {
	runID := e.runIDs.Generate()
	res := &Result{RunID: runID, Firings: []Firing{}}
	quota := NewIterationQuota(e.maxIterations)
	refr := newRefraction()

	for {
		if err := ctx.Err(); err != nil {
			return res, NewCancelledError(runID, err)
		}

		act, ok, err := e.selectActivation(store, refr)
		if err != nil {
			if re, isRE := err.(*RuntimeError); isRE {
				re.RunID = runID
			}
			return res, err
		}
		if !ok {
			break
		}

		if err := quota.Check(runID); err != nil {
			qe := err.(*IterationsExceededError)
			slog.Warn("iteration cap exceeded",
				"run", runID,
				"limit", qe.Limit,
				"last_rule", act.rule.rule.ID)
			return res, NewNonTerminationError(runID, qe)
		}

		cs, warnings, err := act.changeSet(seed)
		if err != nil {
			if re, isRE := err.(*RuntimeError); isRE {
				re.RunID = runID
			}
			return res, err
		}

		refr.Record(act.rule.rule.ID, act.hash, act.env.MatchedKeys())
		var applied facts.Applied
		if !cs.Empty() {
			applied = store.Apply(cs)
		}
		for _, f := range applied.Retracted {
			refr.Invalidate(f.Key())
		}

		res.Iterations = quota.Current()
		res.Firings = append(res.Firings, Firing{
			Seq:         res.Iterations,
			RuleID:      act.rule.rule.ID,
			BindingHash: act.hash,
			Asserted:    len(applied.Asserted),
			Retracted:   len(applied.Retracted),
			Warnings:    warnings,
		})
		for _, w := range warnings {
			slog.Warn("rule warning",
				"run", runID,
				"rule", act.rule.rule.ID,
				"message", w)
		}
		if !applied.Changed() {
			slog.Debug("rule fired without changing facts",
				"run", runID,
				"seq", res.Iterations,
				"rule", act.rule.rule.ID)
			continue
		}
		slog.Debug("rule fired",
			"run", runID,
			"seq", res.Iterations,
			"rule", act.rule.rule.ID,
			"binding", act.hash,
			"asserted", len(applied.Asserted),
			"retracted", len(applied.Retracted))
	}

	slog.Debug("fixpoint reached",
		"run", runID,
		"iterations", res.Iterations,
		"facts", store.Len())
	return res, nil
}

// selectActivation walks the agenda (salience desc, then declaration
// order) and returns the first activation that has not fired.
func (e *Engine) selectActivation(store *facts.Store, refr *refraction) (activation, bool, error) {
	for _, idx := range e.agenda {
		pr := &e.rules[idx]
		envs, err := evaluate(pr.rule.ID, pr.rule.Condition, store, ir.EmptyEnv())
		if err != nil {
			return activation{}, false, err
		}
		for _, env := range envs {
			hash := env.Hash()
			if refr.HasFired(pr.rule.ID, hash) {
				continue
			}
			return activation{rule: pr, env: env, hash: hash}, true, nil
		}
	}
	return activation{}, false, nil
}

// changeSet turns the activation's actions into one atomic change and
// collects its warnings.
func (a activation) changeSet(seed Seed) (facts.ChangeSet, []string, error) {
	var cs facts.ChangeSet
	var warnings []string
	for _, pa := range a.rule.actions {
		switch pa.action.Op {
		case ir.ActionAssert, ir.ActionAssertClass:
			cs.Assert = append(cs.Assert, pa.facts...)
		case ir.ActionRetract:
			f, ok := a.env.Ref(pa.action.Ref)
			if !ok {
				return cs, nil, NewInvalidRuleError(a.rule.rule.ID,
					fmt.Sprintf("retract of unbound reference %q", pa.action.Ref))
			}
			cs.Retract = append(cs.Retract, f)
		case ir.ActionSeed:
			cs.Assert = append(cs.Assert, seed.facts(pa.action.Seed)...)
		case ir.ActionWarn:
			warnings = append(warnings, pa.action.Message)
		}
	}
	return cs, warnings, nil
}
