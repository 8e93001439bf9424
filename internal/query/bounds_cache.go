package query

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type boundsKey struct {
	version     string
	lowQ, highQ float64
}

// BoundsCache memoises quantile bounds per dataset version. Lookups and
// fills share one mutex, so a given entry is computed by a single writer.
type BoundsCache struct {
	mu      sync.Mutex
	entries *lru.Cache[boundsKey, Bounds]
}

// NewBoundsCache creates a cache holding up to size entries
func NewBoundsCache(size int) (*BoundsCache, error) {
	entries, err := lru.New[boundsKey, Bounds](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create bounds cache: %w", err)
	}
	return &BoundsCache{entries: entries}, nil
}

// Get returns the bounds for version, computing them from values on a miss.
// An empty version is never cached. Errors are not cached.
func (c *BoundsCache) Get(version string, values func() []*float64, lowQ, highQ float64) (Bounds, error) {
	if version == "" {
		return QuantileBounds(values(), lowQ, highQ)
	}

	key := boundsKey{version: version, lowQ: lowQ, highQ: highQ}

	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.entries.Get(key); ok {
		return b, nil
	}

	b, err := QuantileBounds(values(), lowQ, highQ)
	if err != nil {
		return Bounds{}, err
	}
	c.entries.Add(key, b)
	return b, nil
}

// Len returns the number of cached entries
func (c *BoundsCache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry
func (c *BoundsCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}
