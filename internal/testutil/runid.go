// Package testutil holds deterministic helpers shared by tests and the
// scenario harness.
package testutil

import (
	"fmt"
	"sync"
)

// FixedRunID returns the same run ID every time.
//
// Unlike engine.FixedGenerator, which walks a list, every run shares the
// one ID. Safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a fixed run ID generator. An empty id yields
// "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run ID.
//
// Implements engine.RunIDGenerator.
func (g *FixedRunID) Generate() string {
	return g.id
}

// SequentialRunIDs numbers runs "<prefix>-1", "<prefix>-2", ... so a
// scenario with several samples produces the same IDs on every execution.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialRunIDs creates a generator starting at 1. An empty prefix
// yields "test-run".
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "test-run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next run ID.
//
// Implements engine.RunIDGenerator.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Current returns the number of IDs handed out.
func (g *SequentialRunIDs) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts numbering; the next ID ends in -1.
func (g *SequentialRunIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
