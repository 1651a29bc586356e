package doccache

import (
	"context"
	"fmt"
	"testing"
)

func TestLRUCacheSetGet(t *testing.T) {
	cache, err := NewLRUCache(4)
	if err != nil {
		t.Fatalf("NewLRUCache failed: %v", err)
	}
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "doc-1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	cache.Set(ctx, "doc-1", "text")
	content, ok := cache.Get(ctx, "doc-1")
	if !ok || content != "text" {
		t.Fatalf("Get = %q, %v", content, ok)
	}
}

func TestLRUCacheInvalidate(t *testing.T) {
	cache, _ := NewLRUCache(4)
	ctx := context.Background()

	cache.Set(ctx, "doc-1", "text")
	cache.Invalidate(ctx, "doc-1")
	if _, ok := cache.Get(ctx, "doc-1"); ok {
		t.Fatal("hit after invalidation")
	}
}

func TestLRUCacheEvictsBeyondCapacity(t *testing.T) {
	cache, _ := NewLRUCache(2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("doc-%d", i)
		cache.Set(ctx, id, "text")
	}
	if _, ok := cache.Get(ctx, "doc-0"); ok {
		t.Fatal("oldest entry survived past capacity")
	}
	if _, ok := cache.Get(ctx, "doc-2"); !ok {
		t.Fatal("newest entry evicted")
	}
}

func TestLRUCacheDefaultSize(t *testing.T) {
	cache, err := NewLRUCache(0)
	if err != nil {
		t.Fatalf("NewLRUCache(0) failed: %v", err)
	}
	ctx := context.Background()
	cache.Set(ctx, "doc-1", "text")
	if _, ok := cache.Get(ctx, "doc-1"); !ok {
		t.Fatal("default-sized cache dropped the entry")
	}
}
