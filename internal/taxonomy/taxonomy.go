// Package taxonomy provides organism lineages.
//
// The Service interface is what the rest of the system consumes; Static is
// a YAML-backed implementation and Cached memoises any Service so that a
// batch resolves each distinct organism once.
package taxonomy

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vicbeneder/micruler/internal/ir"
)

//go:embed data/taxonomy.yaml
var defaultTaxonomy []byte

// ErrUnknownOrganism is returned when a name cannot be resolved.
var ErrUnknownOrganism = errors.New("organism not found")

// Service resolves organism names to taxonomy identifiers and lineages.
type Service interface {
	// LineageFor returns the lineage of name, species first, root last.
	LineageFor(ctx context.Context, name string) (ir.Lineage, error)

	// ResolveTaxonID returns the identifier of name.
	ResolveTaxonID(ctx context.Context, name string) (int64, error)
}

// Node is one taxon in a static taxonomy file.
type Node struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Parent int64  `yaml:"parent,omitempty"`
}

type taxonomyFile struct {
	Nodes []Node `yaml:"nodes"`
}

// Static is an in-memory taxonomy. Immutable after construction.
type Static struct {
	byID   map[int64]Node
	byName map[string]int64
}

var _ Service = (*Static)(nil)

// Default returns the taxonomy embedded in the binary.
func Default() (*Static, error) {
	return Parse(defaultTaxonomy)
}

// Load reads a taxonomy YAML file.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes taxonomy YAML and checks that every parent exists and
// that the parent graph has no cycles.
func Parse(data []byte) (*Static, error) {
	var file taxonomyFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy YAML: %w", err)
	}
	return NewStatic(file.Nodes)
}

// NewStatic builds a taxonomy from nodes. A zero Parent marks a root.
func NewStatic(nodes []Node) (*Static, error) {
	s := &Static{
		byID:   make(map[int64]Node, len(nodes)),
		byName: make(map[string]int64, len(nodes)),
	}
	for _, n := range nodes {
		if n.ID <= 0 {
			return nil, fmt.Errorf("node %q: id must be positive", n.Name)
		}
		if n.Name == "" {
			return nil, fmt.Errorf("node %d: name is required", n.ID)
		}
		if _, dup := s.byID[n.ID]; dup {
			return nil, fmt.Errorf("node %d: duplicate id", n.ID)
		}
		key := nameKey(n.Name)
		if _, dup := s.byName[key]; dup {
			return nil, fmt.Errorf("node %q: duplicate name", n.Name)
		}
		s.byID[n.ID] = n
		s.byName[key] = n.ID
	}

	for _, n := range s.byID {
		if n.Parent != 0 {
			if _, ok := s.byID[n.Parent]; !ok {
				return nil, fmt.Errorf("node %q: unknown parent %d", n.Name, n.Parent)
			}
		}
		if _, err := s.lineage(n.ID); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ResolveTaxonID implements Service.
func (s *Static) ResolveTaxonID(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id, ok := s.byName[nameKey(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOrganism, name)
	}
	return id, nil
}

// LineageFor implements Service.
func (s *Static) LineageFor(ctx context.Context, name string) (ir.Lineage, error) {
	id, err := s.ResolveTaxonID(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.lineage(id)
}

// Len returns the number of taxa.
func (s *Static) Len() int {
	return len(s.byID)
}

func (s *Static) lineage(id int64) (ir.Lineage, error) {
	var out ir.Lineage
	seen := make(map[int64]bool)
	for id != 0 {
		if seen[id] {
			return nil, fmt.Errorf("taxon %d: parent cycle", id)
		}
		seen[id] = true
		n := s.byID[id]
		out = append(out, n.Name)
		id = n.Parent
	}
	return out, nil
}
