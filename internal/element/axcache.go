package element

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultAxCacheSize = 16

// CachedExtractor memoizes accessibility trees per tab so repeated grounding
// calls against an unchanged page skip the extraction round trip. Callers
// invalidate with ClearCache when the page mutates.
type CachedExtractor struct {
	inner TreeExtractor
	cache *lru.Cache[string, []AxNode]
}

// NewCachedExtractor wraps an extractor with an LRU memo of the given size.
// size <= 0 falls back to a small default.
func NewCachedExtractor(inner TreeExtractor, size int) (*CachedExtractor, error) {
	if size <= 0 {
		size = defaultAxCacheSize
	}
	cache, err := lru.New[string, []AxNode](size)
	if err != nil {
		return nil, err
	}
	return &CachedExtractor{inner: inner, cache: cache}, nil
}

// ExtractTree returns the memoized tree for tabID, extracting on miss.
// Errors are never cached.
func (c *CachedExtractor) ExtractTree(ctx context.Context, tabID string) ([]AxNode, error) {
	if nodes, ok := c.cache.Get(tabID); ok {
		return nodes, nil
	}
	nodes, err := c.inner.ExtractTree(ctx, tabID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(tabID, nodes)
	return nodes, nil
}

// ClearCache invalidates the memoized tree for one tab, or every tab when
// tabID is empty.
func (c *CachedExtractor) ClearCache(tabID string) {
	if tabID == "" {
		c.cache.Purge()
		return
	}
	c.cache.Remove(tabID)
}
