package annotation

import (
	"errors"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestReconcileLocatesTextByForwardSearch(t *testing.T) {
	doc := "Apple works with Google."
	resolution, err := Reconcile(doc, Suggestion{Label: "org", Text: "Google", Confidence: 0.9}, SourcePendingBatch)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	draft := resolution.Draft
	if draft.Start != 17 || draft.End != 23 {
		t.Fatalf("offsets = [%d,%d), want [17,23)", draft.Start, draft.End)
	}
	if draft.Label != "ORG" {
		t.Fatalf("label = %q, want ORG", draft.Label)
	}
	if draft.Source != SourcePendingBatch {
		t.Fatalf("source = %q", draft.Source)
	}
	if resolution.Occurrences != 1 {
		t.Fatalf("occurrences = %d, want 1", resolution.Occurrences)
	}
}

func TestReconcileTextAbsentFromDocument(t *testing.T) {
	doc := "Apple works with Google."
	_, err := Reconcile(doc, Suggestion{Label: "ORG", Text: "Nvidia"}, SourcePendingBatch)
	var unresolvable *UnresolvableSuggestionError
	if !errors.As(err, &unresolvable) {
		t.Fatalf("expected UnresolvableSuggestionError, got %v", err)
	}
	if unresolvable.Text != "Nvidia" {
		t.Fatalf("error text = %q", unresolvable.Text)
	}
}

func TestReconcileEmptyText(t *testing.T) {
	_, err := Reconcile("some document", Suggestion{Label: "ORG"}, SourcePendingBatch)
	var unresolvable *UnresolvableSuggestionError
	if !errors.As(err, &unresolvable) {
		t.Fatalf("expected UnresolvableSuggestionError, got %v", err)
	}
}

func TestReconcileTrustsValidOffsets(t *testing.T) {
	doc := "Alpha Beta Gamma"
	resolution, err := Reconcile(doc, Suggestion{
		Label:     "OTHER",
		Text:      "Beta",
		SpanStart: intPtr(6),
		SpanEnd:   intPtr(10),
	}, SourceAI)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if resolution.Draft.Start != 6 || resolution.Draft.End != 10 {
		t.Fatalf("offsets = [%d,%d), want [6,10)", resolution.Draft.Start, resolution.Draft.End)
	}
}

func TestReconcileOffsetsWithoutTextFillFromDocument(t *testing.T) {
	doc := "Alpha Beta Gamma"
	resolution, err := Reconcile(doc, Suggestion{
		Label:     "OTHER",
		SpanStart: intPtr(11),
		SpanEnd:   intPtr(16),
	}, SourceAI)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if resolution.Draft.Text != "Gamma" {
		t.Fatalf("text = %q, want Gamma", resolution.Draft.Text)
	}
}

func TestReconcileOutOfRangeOffsetsFallBackToText(t *testing.T) {
	doc := "Alpha Beta Gamma"
	resolution, err := Reconcile(doc, Suggestion{
		Label:     "OTHER",
		Text:      "Beta",
		SpanStart: intPtr(100),
		SpanEnd:   intPtr(200),
	}, SourceAI)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if resolution.Draft.Start != 6 || resolution.Draft.End != 10 {
		t.Fatalf("offsets = [%d,%d), want [6,10)", resolution.Draft.Start, resolution.Draft.End)
	}
}

func TestReconcileDisagreeingOffsetsFallBackToText(t *testing.T) {
	doc := "Alpha Beta Gamma"
	// Offsets point at "Alpha" but the text says "Gamma".
	resolution, err := Reconcile(doc, Suggestion{
		Label:     "OTHER",
		Text:      "Gamma",
		SpanStart: intPtr(0),
		SpanEnd:   intPtr(5),
	}, SourceAI)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if resolution.Draft.Start != 11 || resolution.Draft.End != 16 {
		t.Fatalf("offsets = [%d,%d), want [11,16)", resolution.Draft.Start, resolution.Draft.End)
	}
}

func TestReconcileFirstOccurrenceWins(t *testing.T) {
	doc := "go went go gone go"
	resolution, err := Reconcile(doc, Suggestion{Label: "OTHER", Text: "go"}, SourcePendingBatch)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if resolution.Draft.Start != 0 || resolution.Draft.End != 2 {
		t.Fatalf("offsets = [%d,%d), want [0,2)", resolution.Draft.Start, resolution.Draft.End)
	}
	if resolution.Occurrences != 4 {
		t.Fatalf("occurrences = %d, want 4", resolution.Occurrences)
	}
}

func TestReconcileRuneOffsetsWithMultibytePrefix(t *testing.T) {
	doc := "naïve café Google"
	resolution, err := Reconcile(doc, Suggestion{Label: "ORG", Text: "Google"}, SourcePendingBatch)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if resolution.Draft.Start != 11 || resolution.Draft.End != 17 {
		t.Fatalf("offsets = [%d,%d), want [11,17)", resolution.Draft.Start, resolution.Draft.End)
	}
	runes := []rune(doc)
	if got := string(runes[resolution.Draft.Start:resolution.Draft.End]); got != "Google" {
		t.Fatalf("offsets select %q, want Google", got)
	}
}
