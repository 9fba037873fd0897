// Package engine implements the forward-chaining interpretive-rule engine.
//
// The engine runs a match–select–act cycle over one facts.Store until no
// rule instance remains to fire:
//
//  1. Match: every rule's condition is evaluated against the store; each
//     distinct satisfying binding is one activation.
//  2. Select: among activations not yet fired (refraction), the highest
//     salience wins; ties go to the first-declared rule, then to the first
//     binding in match order.
//  3. Act: the rule's actions are applied to the store as one change set.
//
// Refraction is keyed on (rule ID, binding hash). Retracting a fact that a
// fired activation matched makes that activation eligible again, so rule
// sets that alternate between contradicting facts do not terminate on
// their own; the iteration cap reports them as NON_TERMINATION.
//
// An Engine is immutable after New and may be shared by any number of
// concurrent runs, each with its own store.
package engine
