// Package reference holds the static reference data the interpretive rules
// consult: compound classes and phenotypically defined organism groups.
//
// A Catalog is immutable after Load and safe for concurrent use.
package reference

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed data/catalog.yaml
var defaultCatalog []byte

// ErrUnknownClass is returned when a compound class is not in the catalog.
var ErrUnknownClass = errors.New("unknown compound class")

// classSpec is one class entry in the catalog file.
// A class lists its members directly, includes other classes, or both.
type classSpec struct {
	Members  []string `yaml:"members,omitempty"`
	Includes []string `yaml:"includes,omitempty"`
}

type catalogFile struct {
	Classes      map[string]classSpec `yaml:"classes"`
	Unclassified []string             `yaml:"unclassified,omitempty"`
	Groups       map[string][]string  `yaml:"groups,omitempty"`
}

// Catalog resolves compound classes and organism group membership.
type Catalog struct {
	classes  map[string][]string // class -> expanded members, declaration order
	known    map[string]bool
	groupsOf map[string][]string // taxon -> groups, sorted
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustDefault is Default for package-level initialisation and tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(fmt.Sprintf("reference: embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalog YAML. Unknown fields are rejected.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	if len(file.Classes) == 0 {
		return nil, fmt.Errorf("catalog declares no classes")
	}

	c := &Catalog{
		classes:  make(map[string][]string, len(file.Classes)),
		known:    make(map[string]bool),
		groupsOf: make(map[string][]string),
	}

	for name := range file.Classes {
		members, err := expand(file.Classes, name, nil)
		if err != nil {
			return nil, err
		}
		c.classes[name] = members
		for _, m := range members {
			c.known[m] = true
		}
	}
	for _, m := range file.Unclassified {
		c.known[m] = true
	}

	for group, taxa := range file.Groups {
		for _, taxon := range taxa {
			c.groupsOf[taxon] = append(c.groupsOf[taxon], group)
		}
	}
	for taxon := range c.groupsOf {
		sort.Strings(c.groupsOf[taxon])
	}

	return c, nil
}

// expand flattens a class and its includes, keeping first-seen order.
func expand(specs map[string]classSpec, name string, path []string) ([]string, error) {
	if slices.Contains(path, name) {
		return nil, fmt.Errorf("class %q includes itself via %v", name, append(path, name))
	}
	spec, ok := specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, name)
	}

	var out []string
	seen := make(map[string]bool)
	add := func(m string) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for _, m := range spec.Members {
		add(m)
	}
	for _, inc := range spec.Includes {
		members, err := expand(specs, inc, append(path, name))
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			add(m)
		}
	}
	return out, nil
}

// MembersOf returns every compound of class except those listed, in
// catalog order.
func (c *Catalog) MembersOf(class string, except ...string) ([]string, error) {
	members, ok := c.classes[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		if !slices.Contains(except, m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// HasClass reports whether class is defined.
func (c *Catalog) HasClass(class string) bool {
	_, ok := c.classes[class]
	return ok
}

// Classes returns every class name, sorted.
func (c *Catalog) Classes() []string {
	out := make([]string, 0, len(c.classes))
	for name := range c.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Known reports whether compound appears in any class or in the
// unclassified list.
func (c *Catalog) Known(compound string) bool {
	return c.known[compound]
}

// GroupsOf returns the phenotype groups containing taxon, sorted.
// Returns an empty slice, never nil.
func (c *Catalog) GroupsOf(taxon string) []string {
	groups := c.groupsOf[taxon]
	if len(groups) == 0 {
		return []string{}
	}
	return slices.Clone(groups)
}
