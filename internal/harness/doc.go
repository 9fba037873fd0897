// Package harness runs phenotype scenarios written in YAML.
//
// A scenario names a breakpoint table, an optional rule directory, and
// samples to infer, then asserts on the reconciled phenotypes and the
// rule firings of each sample's run.
//
// # Scenario Format
//
//	name: mrsa-cefoxitin
//	description: "Cefoxitin resistance marks beta-lactams resistant"
//	rules: ../rules/local        # optional; default rule set when empty
//	run_id: mrsa                 # optional; run IDs become mrsa-1, mrsa-2, ...
//	max_iterations: 100          # optional; engine default when zero
//	breakpoints:
//	  - {organism: Staphylococcus, compound: Cefoxitin, s_threshold: 4, r_threshold: 4}
//	samples:
//	  - id: s1
//	    organism: Staphylococcus aureus
//	    tests:
//	      - {compound: Cefoxitin, mic: 8}
//	    markers:
//	      - {kind: mec, present: true}
//	assertions:
//	  - {type: result, sample: s1, compound: Oxacillin, label: R, origin: inferred}
//	  - {type: absent, sample: s1, compound: Ceftaroline}
//	  - {type: fired, sample: s1, rule: eucast-bp-t-staph-pen-1.1}
//
// # Assertion Types
//
//   - result: the sample has a result for compound; label, origin,
//     qualifier and conflict are compared when given
//   - absent: the sample has no result for compound
//   - fired: rule fired at least once in the sample's run
//   - fired_order: rules fired in the given relative order
//   - fired_count: rule fired exactly count times
//   - error: the run failed with the given engine error code
//   - no_conflicts: no result of the sample carries a conflict
//
// # Deterministic Testing
//
// Run IDs come from testutil.SequentialRunIDs and samples run one after
// another, so a scenario's snapshot is byte-identical across executions
// and can be compared against a golden file.
package harness
