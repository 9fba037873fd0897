// Package facts implements the working memory of one inference run.
//
// A Store is a set of ir.Fact values keyed by identity. It is owned by
// exactly one run and is not safe for concurrent use; batches give every
// worker its own Store.
package facts

import (
	"slices"

	"github.com/vicbeneder/micruler/internal/ir"
)

type entry struct {
	fact ir.Fact
	seq  int64
}

// Store is the fact set for one sample.
//
// INVARIANTS:
//   - no two entries share a key (the store is a set)
//   - iteration order is assertion order (seq ascending)
type Store struct {
	byKey map[string]*entry
	order []*entry
	seq   int64
}

// New creates an empty store.
func New() *Store {
	return &Store{byKey: make(map[string]*entry)}
}

// Assert adds f. Re-asserting an existing fact is a no-op and returns false.
func (s *Store) Assert(f ir.Fact) bool {
	key := f.Key()
	if _, ok := s.byKey[key]; ok {
		return false
	}
	s.seq++
	e := &entry{fact: f, seq: s.seq}
	s.byKey[key] = e
	s.order = append(s.order, e)
	return true
}

// Retract removes f. Retracting an absent fact is a no-op and returns false.
func (s *Store) Retract(f ir.Fact) bool {
	key := f.Key()
	e, ok := s.byKey[key]
	if !ok {
		return false
	}
	delete(s.byKey, key)
	s.order = slices.DeleteFunc(s.order, func(o *entry) bool { return o == e })
	return true
}

// Contains reports whether f is currently asserted.
func (s *Store) Contains(f ir.Fact) bool {
	_, ok := s.byKey[f.Key()]
	return ok
}

// Reset clears every fact. Used to isolate successive samples.
func (s *Store) Reset() {
	clear(s.byKey)
	s.order = s.order[:0]
	s.seq = 0
}

// Len returns the number of facts.
func (s *Store) Len() int {
	return len(s.order)
}

// Facts returns a snapshot of every fact in assertion order.
func (s *Store) Facts() []ir.Fact {
	out := make([]ir.Fact, len(s.order))
	for i, e := range s.order {
		out[i] = e.fact
	}
	return out
}

// OfKind returns a snapshot of the facts of one kind in assertion order.
func (s *Store) OfKind(kind ir.FactKind) []ir.Fact {
	out := []ir.Fact{}
	for _, e := range s.order {
		if e.fact.Kind == kind {
			out = append(out, e.fact)
		}
	}
	return out
}

// ChangeSet is the effect of one rule firing.
type ChangeSet struct {
	Retract []ir.Fact
	Assert  []ir.Fact
}

// Empty reports whether the change set does nothing.
func (c ChangeSet) Empty() bool {
	return len(c.Retract) == 0 && len(c.Assert) == 0
}

// Applied reports what a ChangeSet actually changed.
type Applied struct {
	Retracted []ir.Fact
	Asserted  []ir.Fact
}

// Changed reports whether the store was modified.
func (a Applied) Changed() bool {
	return len(a.Retracted) > 0 || len(a.Asserted) > 0
}

// Apply performs every retract and then every assert of c as one step.
// Callers never observe the store between the two phases, so a
// retract+assert pair replaces a fact atomically.
func (s *Store) Apply(c ChangeSet) Applied {
	var applied Applied
	for _, f := range c.Retract {
		if s.Retract(f) {
			applied.Retracted = append(applied.Retracted, f)
		}
	}
	for _, f := range c.Assert {
		if s.Assert(f) {
			applied.Asserted = append(applied.Asserted, f)
		}
	}
	return applied
}
