// Package annotation implements the span annotation engine: the span
// model and its validation rules, the persistence-backed span store,
// the suggestion reconciler, the highlight compositor, and the
// pending-span lifecycle controller.
package annotation

import (
	"strings"
	"time"
)

// Source identifies how a span came to exist and doubles as its
// lifecycle state: manual and ai are confirmed, pending_batch awaits
// human review.
type Source string

const (
	SourceManual       Source = "manual"
	SourceAI           Source = "ai"
	SourcePendingBatch Source = "pending_batch"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceAI, SourcePendingBatch:
		return true
	}
	return false
}

// Pending reports whether a span with this source awaits review.
func (s Source) Pending() bool {
	return s == SourcePendingBatch
}

// Span is a labeled character range over a document's text. Start and
// End are rune offsets into the raw document string; Text caches the
// substring document[Start:End] as it was at creation time.
type Span struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Label      string    `json:"label"`
	Start      int       `json:"spanStart"`
	End        int       `json:"spanEnd"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Source     Source    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Draft is a span candidate that has not been persisted yet. The
// persistence layer assigns ID and CreatedAt on insert.
type Draft struct {
	Label      string
	Start      int
	End        int
	Text       string
	Confidence float64
	Source     Source
}

// NormalizeDraft validates a draft against the document text and
// returns the canonical form: label upper-cased, text filled from the
// document when absent. Offsets are rune offsets. The document is
// never consulted again after creation.
func NormalizeDraft(docText string, draft Draft) (Draft, error) {
	draft.Label = strings.ToUpper(strings.TrimSpace(draft.Label))
	if draft.Label == "" {
		return Draft{}, &ValidationError{Reason: "label is required"}
	}
	if draft.Start < 0 {
		return Draft{}, &ValidationError{Reason: "spanStart must be >= 0"}
	}
	if draft.Start >= draft.End {
		return Draft{}, &ValidationError{Reason: "spanStart must be less than spanEnd"}
	}
	runes := []rune(docText)
	if draft.End > len(runes) {
		return Draft{}, &ValidationError{Reason: "spanEnd exceeds document length"}
	}
	if draft.Confidence < 0 || draft.Confidence > 1 {
		return Draft{}, &ValidationError{Reason: "confidence must be within [0,1]"}
	}
	if draft.Source == "" {
		draft.Source = SourceManual
	}
	if !draft.Source.Valid() {
		return Draft{}, &ValidationError{Reason: "source must be manual, ai, or pending_batch"}
	}
	live := string(runes[draft.Start:draft.End])
	if draft.Text == "" {
		draft.Text = live
	} else if draft.Text != live {
		return Draft{}, &ValidationError{Reason: "text does not match the document at the given offsets"}
	}
	return draft, nil
}

// Partition splits spans into the pending-review subset and everything
// else, preserving order. Pure function; both the compositor callers
// and the lifecycle controller rely on it.
func Partition(spans []Span) (pending, confirmed []Span) {
	pending = make([]Span, 0)
	confirmed = make([]Span, 0)
	for _, span := range spans {
		if span.Source.Pending() {
			pending = append(pending, span)
			continue
		}
		confirmed = append(confirmed, span)
	}
	return pending, confirmed
}
