package engine

// refraction tracks which (rule, binding) activations have fired in one
// run.
//
// An activation is identified by its rule ID and the binding hash of the
// facts it matched. When one of those facts is retracted the entry is
// dropped: a later re-assertion is a new fact occurrence and may enable
// the activation again.
//
// A refraction belongs to exactly one run and is not safe for concurrent
// use.
type refraction struct {
	fired  map[string]bool
	byFact map[string][]string // fact key -> activation keys that matched it
}

func newRefraction() *refraction {
	return &refraction{
		fired:  make(map[string]bool),
		byFact: make(map[string][]string),
	}
}

func activationKey(ruleID, bindingHash string) string {
	return ruleID + ":" + bindingHash
}

// HasFired reports whether this activation already fired.
func (r *refraction) HasFired(ruleID, bindingHash string) bool {
	return r.fired[activationKey(ruleID, bindingHash)]
}

// Record marks the activation as fired. factKeys are the identities of the
// facts it matched.
func (r *refraction) Record(ruleID, bindingHash string, factKeys []string) {
	key := activationKey(ruleID, bindingHash)
	r.fired[key] = true
	for _, fk := range factKeys {
		r.byFact[fk] = append(r.byFact[fk], key)
	}
}

// Invalidate forgets every activation that matched the fact with key
// factKey.
func (r *refraction) Invalidate(factKey string) {
	for _, key := range r.byFact[factKey] {
		delete(r.fired, key)
	}
	delete(r.byFact, factKey)
}

// Len returns the number of fired activations currently remembered.
func (r *refraction) Len() int {
	return len(r.fired)
}
