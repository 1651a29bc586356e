// Package doccache caches document text. Document content is
// immutable once ingested, so cached entries never go stale; entries
// are only invalidated when a document is deleted.
package doccache

import "context"

// Cache stores document text keyed by document id.
type Cache interface {
	Get(ctx context.Context, documentID string) (string, bool)
	Set(ctx context.Context, documentID, content string)
	Invalidate(ctx context.Context, documentID string)
	Close() error
}
