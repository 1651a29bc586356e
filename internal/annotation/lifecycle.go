package annotation

import (
	"context"
	"errors"
	"log"
)

// Lifecycle drives pending spans through review:
// pending_batch --accept--> ai, pending_batch --reject--> removed.
// Every operation ends in a full reload; bulk operations are
// sequential and best-effort.
type Lifecycle struct {
	store *Store
}

func NewLifecycle(store *Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// BulkResult reports how a bulk accept/reject went. Failed items keep
// their pending state and show up again in the reloaded span list.
type BulkResult struct {
	Processed int
	Failed    int
	Spans     []Span
}

// Accept confirms one pending span. A span that is already confirmed,
// or that no longer exists, is an idempotent no-op.
func (l *Lifecycle) Accept(ctx context.Context, documentID, spanID string) ([]Span, error) {
	return l.transition(ctx, documentID, spanID, l.store.persister.AcceptSpan, "accept")
}

// Reject removes one pending span. Same idempotency rules as Accept.
func (l *Lifecycle) Reject(ctx context.Context, documentID, spanID string) ([]Span, error) {
	return l.transition(ctx, documentID, spanID, l.store.persister.RejectSpan, "reject")
}

func (l *Lifecycle) transition(
	ctx context.Context,
	documentID, spanID string,
	call func(context.Context, string, string) error,
	op string,
) ([]Span, error) {
	lock := l.store.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	spans, err := l.store.persister.ListSpans(ctx, documentID)
	if err != nil {
		return nil, &PersistenceError{Op: op + " span: list", Err: err}
	}
	target, found := findSpan(spans, spanID)
	if !found || !target.Source.Pending() {
		// Already resolved (or never pending); current list is the answer.
		return spans, nil
	}

	if err := call(ctx, documentID, spanID); err != nil {
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			return nil, &PersistenceError{Op: op + " span", Err: err}
		}
		// Raced with another resolution; fall through to the reload.
	}
	reloaded, err := l.store.persister.ListSpans(ctx, documentID)
	if err != nil {
		return nil, &PersistenceError{Op: op + " span: reload", Err: err}
	}
	return reloaded, nil
}

// AcceptAll confirms every pending span for the document. Individual
// failures are logged and skipped; a single reload at the end reflects
// whatever subset succeeded. Iteration is sequential.
func (l *Lifecycle) AcceptAll(ctx context.Context, documentID string) (BulkResult, error) {
	return l.bulk(ctx, documentID, l.store.persister.AcceptSpan, "accept")
}

// RejectAll removes every pending span for the document, with the same
// best-effort semantics as AcceptAll.
func (l *Lifecycle) RejectAll(ctx context.Context, documentID string) (BulkResult, error) {
	return l.bulk(ctx, documentID, l.store.persister.RejectSpan, "reject")
}

func (l *Lifecycle) bulk(
	ctx context.Context,
	documentID string,
	call func(context.Context, string, string) error,
	op string,
) (BulkResult, error) {
	lock := l.store.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	spans, err := l.store.persister.ListSpans(ctx, documentID)
	if err != nil {
		return BulkResult{}, &PersistenceError{Op: op + " all: list", Err: err}
	}
	pending, _ := Partition(spans)

	result := BulkResult{}
	for _, span := range pending {
		if err := call(ctx, documentID, span.ID); err != nil {
			var notFound *NotFoundError
			if errors.As(err, &notFound) {
				result.Processed++
				continue
			}
			result.Failed++
			log.Printf("annotation: bulk %s span %s on document %s: %v", op, span.ID, documentID, err)
			continue
		}
		result.Processed++
	}

	reloaded, err := l.store.persister.ListSpans(ctx, documentID)
	if err != nil {
		return BulkResult{}, &PersistenceError{Op: op + " all: reload", Err: err}
	}
	result.Spans = reloaded
	return result, nil
}

func findSpan(spans []Span, spanID string) (Span, bool) {
	for _, span := range spans {
		if span.ID == spanID {
			return span, true
		}
	}
	return Span{}, false
}
