package harness

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vicbeneder/micruler/internal/ir"
	"github.com/vicbeneder/micruler/internal/phenotype"
)

// Scenario defines one phenotype scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is a directory of .cue rule files. Relative paths resolve
	// against the scenario file. Empty selects the embedded rule set.
	Rules string `yaml:"rules,omitempty"`

	// RunID prefixes the run IDs of the scenario's samples.
	// Defaults to the scenario name.
	RunID string `yaml:"run_id,omitempty"`

	// MaxIterations overrides the engine's iteration cap when positive.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// Breakpoints is the compiled breakpoint table, in table order.
	Breakpoints []BreakpointRow `yaml:"breakpoints"`

	// Samples are inferred one after another, in order.
	Samples []phenotype.Sample `yaml:"samples"`

	// Assertions validate the sample outcomes.
	Assertions []Assertion `yaml:"assertions"`
}

// BreakpointRow is one breakpoint table row in scenario YAML.
type BreakpointRow struct {
	Organism     string    `yaml:"organism"`
	Compound     string    `yaml:"compound"`
	SThreshold   float64   `yaml:"s_threshold"`
	RThreshold   float64   `yaml:"r_threshold"`
	Exception    string    `yaml:"exception,omitempty"`
	Route        string    `yaml:"route,omitempty"`
	Indication   string    `yaml:"indication,omitempty"`
	HighExposure bool      `yaml:"high_exposure,omitempty"`
	Source       ir.Source `yaml:"source,omitempty"`
}

// Record converts the row. An empty source means guideline.
func (b BreakpointRow) Record() ir.BreakpointRecord {
	src := b.Source
	if src == "" {
		src = ir.SourceGuideline
	}
	return ir.BreakpointRecord{
		Organism:     b.Organism,
		Compound:     b.Compound,
		SThreshold:   b.SThreshold,
		RThreshold:   b.RThreshold,
		Exception:    b.Exception,
		Route:        b.Route,
		Indication:   b.Indication,
		HighExposure: b.HighExposure,
		Source:       src,
	}
}

// Assertion validates one sample outcome.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Sample is the sample ID the assertion applies to.
	Sample string `yaml:"sample"`

	// Compound is used by result and absent.
	Compound string `yaml:"compound,omitempty"`

	// Label, Origin, Qualifier and Conflict are compared by result when
	// set. Qualifier and Conflict compare against the empty string when
	// given as "".
	Label     ir.Label  `yaml:"label,omitempty"`
	Origin    ir.Origin `yaml:"origin,omitempty"`
	Qualifier *string   `yaml:"qualifier,omitempty"`
	Conflict  *string   `yaml:"conflict,omitempty"`

	// Rule is used by fired and fired_count.
	Rule string `yaml:"rule,omitempty"`

	// Rules is the expected relative order for fired_order.
	Rules []string `yaml:"rules,omitempty"`

	// Count is the expected number of firings for fired_count.
	Count int `yaml:"count,omitempty"`

	// Code is the expected engine error code for error.
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertResult      = "result"
	AssertAbsent      = "absent"
	AssertFired       = "fired"
	AssertFiredOrder  = "fired_order"
	AssertFiredCount  = "fired_count"
	AssertError       = "error"
	AssertNoConflicts = "no_conflicts"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative rules directory is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Rules != "" && !filepath.IsAbs(scenario.Rules) {
		scenario.Rules = filepath.Join(filepath.Dir(path), scenario.Rules)
	}
	if scenario.Rules != "" {
		info, err := os.Stat(scenario.Rules)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("invalid scenario: rules directory not found: %s", scenario.Rules)
		}
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be non-negative")
	}
	if len(s.Samples) == 0 {
		return fmt.Errorf("samples list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, b := range s.Breakpoints {
		if b.Organism == "" || b.Compound == "" {
			return fmt.Errorf("breakpoints[%d]: organism and compound are required", i)
		}
		if b.Source != "" && !ir.ValidSources[b.Source] {
			return fmt.Errorf("breakpoints[%d]: unknown source %q", i, b.Source)
		}
		for _, v := range []float64{b.SThreshold, b.RThreshold} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("breakpoints[%d]: threshold %v is not a finite number", i, v)
			}
		}
	}

	ids := make(map[string]bool, len(s.Samples))
	for i, sample := range s.Samples {
		if sample.ID == "" {
			return fmt.Errorf("samples[%d]: id is required", i)
		}
		if ids[sample.ID] {
			return fmt.Errorf("samples[%d]: duplicate id %q", i, sample.ID)
		}
		ids[sample.ID] = true
		if sample.Organism == "" {
			return fmt.Errorf("samples[%d]: organism is required", i)
		}
		for j, t := range sample.Tests {
			if t.Compound == "" {
				return fmt.Errorf("samples[%d].tests[%d]: compound is required", i, j)
			}
			if t.Label != "" {
				if _, ok := ir.ParseLabel(string(t.Label)); !ok {
					return fmt.Errorf("samples[%d].tests[%d]: invalid label %q", i, j, t.Label)
				}
			}
			if t.MIC != nil {
				if err := ir.CheckMIC(*t.MIC); err != nil {
					return fmt.Errorf("samples[%d].tests[%d]: %w", i, j, err)
				}
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, ids); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, samples map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if !samples[a.Sample] {
		return fmt.Errorf("assertions[%d]: unknown sample %q", index, a.Sample)
	}

	switch a.Type {
	case AssertResult, AssertAbsent:
		if a.Compound == "" {
			return fmt.Errorf("assertions[%d]: compound is required for %s", index, a.Type)
		}
	case AssertFired:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for fired", index)
		}
	case AssertFiredOrder:
		if len(a.Rules) < 2 {
			return fmt.Errorf("assertions[%d]: at least two rules are required for fired_order", index)
		}
	case AssertFiredCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for fired_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fired_count", index)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	case AssertNoConflicts:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
