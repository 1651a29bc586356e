package annotation

import (
	"context"
	"errors"
	"sync"
)

// Persister is the external document/annotation collaborator. Accept
// and Reject act on pending spans only; Reject removes the record.
type Persister interface {
	ListSpans(ctx context.Context, documentID string) ([]Span, error)
	CreateSpan(ctx context.Context, documentID string, draft Draft) (Span, error)
	DeleteSpan(ctx context.Context, documentID, spanID string) error
	AcceptSpan(ctx context.Context, documentID, spanID string) error
	RejectSpan(ctx context.Context, documentID, spanID string) error
}

// Store owns the span set for open documents. Every mutation runs a
// list → mutate → reload sequence under a per-document mutex, so the
// in-memory view callers receive always equals a server-confirmed
// state; nothing is patched in place.
type Store struct {
	persister Persister

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(persister Persister) *Store {
	return &Store{
		persister: persister,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing mutations for one document.
func (s *Store) lockFor(documentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[documentID] = lock
	}
	return lock
}

// List returns all spans for a document in arrival order.
func (s *Store) List(ctx context.Context, documentID string) ([]Span, error) {
	spans, err := s.persister.ListSpans(ctx, documentID)
	if err != nil {
		return nil, &PersistenceError{Op: "list spans", Err: err}
	}
	return spans, nil
}

// Create validates the draft against the document text, persists it,
// and reloads the full span list so the caller picks up the
// server-assigned id and timestamp. Validation failures never reach
// the persister.
func (s *Store) Create(ctx context.Context, documentID, docText string, draft Draft) (Span, []Span, error) {
	normalized, err := NormalizeDraft(docText, draft)
	if err != nil {
		return Span{}, nil, err
	}

	lock := s.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	created, err := s.persister.CreateSpan(ctx, documentID, normalized)
	if err != nil {
		return Span{}, nil, &PersistenceError{Op: "create span", Err: err}
	}
	spans, err := s.persister.ListSpans(ctx, documentID)
	if err != nil {
		return Span{}, nil, &PersistenceError{Op: "reload spans", Err: err}
	}
	return created, spans, nil
}

// Remove deletes a span and reloads. A span that no longer exists is
// reported as NotFoundError; callers generally treat that as already
// resolved.
func (s *Store) Remove(ctx context.Context, documentID, spanID string) ([]Span, error) {
	lock := s.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.persister.DeleteSpan(ctx, documentID, spanID); err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "delete span", Err: err}
	}
	spans, err := s.persister.ListSpans(ctx, documentID)
	if err != nil {
		return nil, &PersistenceError{Op: "reload spans", Err: err}
	}
	return spans, nil
}
