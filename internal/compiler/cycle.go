package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vicbeneder/micruler/internal/ir"
)

// CycleWarning represents a potential cycle in the rule base.
//
// Cycles are warnings, not errors. Refraction stops a rule from re-firing
// on the same facts, so most cycles reach a fixpoint; the engine's iteration
// cap catches the ones that alternate (retract/assert loops).
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["rule-a", "rule-b", "rule-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// MemberResolver expands compound classes for dependency analysis.
// Implemented by reference.Catalog.
type MemberResolver interface {
	MembersOf(class string, except ...string) ([]string, error)
}

// AnalyzeCycles performs static cycle analysis on rules.
//
// The algorithm:
//  1. Build a rule → rule dependency graph: A → B when a fact A asserts or
//     retracts can change whether a pattern of B matches
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a potential cycle warning
//
// classes expands assert_class actions; when nil, a class assertion is
// treated as touching every compound of its label kind.
//
// An acyclic rule base returns an empty warning list. Warnings follow rule
// declaration order.
func AnalyzeCycles(rules []ir.Rule, classes MemberResolver) []CycleWarning {
	if len(rules) == 0 {
		return []CycleWarning{}
	}

	// Build dependency graph: rule_id → rules that could be triggered
	graph, order := buildDependencyGraph(rules, classes)

	// Detect strongly connected components (cycles)
	sccs := tarjanSCC(graph, order)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}

	return warnings
}

// dependencyGraph maps rule_id → list of rule_ids that could be triggered.
type dependencyGraph map[string][]string

// factRef is the (kind, name) a rule reads or writes. An empty name is a
// wildcard.
type factRef struct {
	kind ir.FactKind
	name string
}

func (r factRef) overlaps(o factRef) bool {
	return r.kind == o.kind && (r.name == "" || o.name == "" || r.name == o.name)
}

// buildDependencyGraph constructs the rule dependency graph.
//
// For each rule:
//   - Collect the facts its actions write (asserts, class expansions and
//     the patterns bound to retract refs)
//   - Find all rules whose conditions read any of those facts
//   - Add edges: this_rule → triggered_rules
func buildDependencyGraph(rules []ir.Rule, classes MemberResolver) (dependencyGraph, []string) {
	graph := make(dependencyGraph)
	order := make([]string, 0, len(rules))

	reads := make(map[string][]factRef, len(rules))
	for _, r := range rules {
		order = append(order, r.ID)
		reads[r.ID] = conditionReads(r.Condition, nil)
	}

	for _, r := range rules {
		writes := actionWrites(r, classes)

		// Initialize with empty slice if no edges (ensures node exists in graph)
		graph[r.ID] = []string{}
		for _, other := range order {
			if touches(writes, reads[other]) {
				graph[r.ID] = append(graph[r.ID], other)
			}
		}
	}

	return graph, order
}

func touches(writes, reads []factRef) bool {
	for _, w := range writes {
		for _, r := range reads {
			if w.overlaps(r) {
				return true
			}
		}
	}
	return false
}

// conditionReads lists every fact pattern in c, negated ones included.
func conditionReads(c ir.Condition, out []factRef) []factRef {
	switch n := c.(type) {
	case ir.All:
		for _, child := range n.Children {
			out = conditionReads(child, out)
		}
	case ir.Any:
		for _, child := range n.Children {
			out = conditionReads(child, out)
		}
	case ir.Not:
		out = conditionReads(n.Child, out)
	case ir.Match:
		out = append(out, factRef{kind: n.Kind, name: n.Name})
	case ir.ValueIn:
		for _, v := range n.Values {
			out = append(out, factRef{kind: n.Kind, name: v})
		}
	}
	return out
}

// boundPatterns maps As names to the pattern that binds them.
func boundPatterns(c ir.Condition, out map[string][]factRef) {
	switch n := c.(type) {
	case ir.All:
		for _, child := range n.Children {
			boundPatterns(child, out)
		}
	case ir.Any:
		for _, child := range n.Children {
			boundPatterns(child, out)
		}
	case ir.Match:
		if n.As != "" {
			out[n.As] = append(out[n.As], factRef{kind: n.Kind, name: n.Name})
		}
	case ir.ValueIn:
		if n.As != "" {
			for _, v := range n.Values {
				out[n.As] = append(out[n.As], factRef{kind: n.Kind, name: v})
			}
		}
	}
}

func actionWrites(r ir.Rule, classes MemberResolver) []factRef {
	var writes []factRef
	var bound map[string][]factRef
	for _, a := range r.Actions {
		switch a.Op {
		case ir.ActionAssert:
			writes = append(writes, factRef{kind: a.Fact.Kind, name: a.Fact.Name})
		case ir.ActionAssertClass:
			kind, err := ir.KindForLabel(a.Label)
			if err != nil {
				continue
			}
			if classes == nil {
				writes = append(writes, factRef{kind: kind})
				continue
			}
			members, err := classes.MembersOf(a.Class, a.Except...)
			if err != nil {
				writes = append(writes, factRef{kind: kind})
				continue
			}
			for _, m := range members {
				writes = append(writes, factRef{kind: kind, name: m})
			}
		case ir.ActionRetract:
			if bound == nil {
				bound = make(map[string][]factRef)
				boundPatterns(r.Condition, bound)
			}
			writes = append(writes, bound[a.Ref]...)
		}
	}
	return writes
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of rule IDs. Nodes are
// visited in order, so the result is deterministic.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Reverse(scc) // visit order, root first
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// For self-loops, the path is [rule-id, rule-id].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		ruleID := scc[0]
		return CycleWarning{
			Path:    []string{ruleID, ruleID},
			Message: fmt.Sprintf("Self-triggering rule detected: %s → %s", ruleID, ruleID),
			Level:   "info",
		}
	}

	path := reconstructCyclePath(scc, graph)

	pathStr := strings.Join(path, " → ")
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential cycle detected: %s", pathStr),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if neighbor != current && sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}

	return path
}
