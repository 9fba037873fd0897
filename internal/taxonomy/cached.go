package taxonomy

import (
	"context"
	"errors"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vicbeneder/micruler/internal/ir"
)

// Cached memoises lineage lookups of an underlying Service.
//
// Concurrent lookups of the same name share one call to the inner
// service. Successful lineages and ErrUnknownOrganism results are cached;
// other errors (timeouts, cancellation) are not.
type Cached struct {
	inner  Service
	flight singleflight.Group

	mu       sync.RWMutex
	lineages map[string]ir.Lineage
	unknown  map[string]error
}

var _ Service = (*Cached)(nil)

// NewCached wraps inner.
func NewCached(inner Service) *Cached {
	return &Cached{
		inner:    inner,
		lineages: make(map[string]ir.Lineage),
		unknown:  make(map[string]error),
	}
}

// LineageFor implements Service.
func (c *Cached) LineageFor(ctx context.Context, name string) (ir.Lineage, error) {
	key := nameKey(name)

	c.mu.RLock()
	lineage, ok := c.lineages[key]
	cachedErr := c.unknown[key]
	c.mu.RUnlock()
	if ok {
		return slices.Clone(lineage), nil
	}
	if cachedErr != nil {
		return nil, cachedErr
	}

	result, err, _ := c.flight.Do(key, func() (interface{}, error) {
		l, err := c.inner.LineageFor(ctx, name)
		c.mu.Lock()
		defer c.mu.Unlock()
		switch {
		case err == nil:
			c.lineages[key] = l
		case errors.Is(err, ErrUnknownOrganism):
			c.unknown[key] = err
		}
		return l, err
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(result.(ir.Lineage)), nil
}

// ResolveTaxonID implements Service. Identifier lookups are not cached.
func (c *Cached) ResolveTaxonID(ctx context.Context, name string) (int64, error) {
	return c.inner.ResolveTaxonID(ctx, name)
}

// Len returns the number of cached lineages.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lineages)
}
