package doccache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is the in-process fallback used when Redis is not
// configured. Bounded by entry count; eviction is plain LRU.
type LRUCache struct {
	entries *lru.Cache[string, string]
}

func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = 128
	}
	entries, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("init lru cache: %w", err)
	}
	return &LRUCache{entries: entries}, nil
}

func (c *LRUCache) Get(_ context.Context, documentID string) (string, bool) {
	return c.entries.Get(documentID)
}

func (c *LRUCache) Set(_ context.Context, documentID, content string) {
	c.entries.Add(documentID, content)
}

func (c *LRUCache) Invalidate(_ context.Context, documentID string) {
	c.entries.Remove(documentID)
}

func (c *LRUCache) Close() error {
	return nil
}
