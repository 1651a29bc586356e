package annotation

import (
	"strings"
	"unicode/utf8"
)

// Suggestion is what the external suggester returns: a label and
// matched text, optionally with offsets, plus a confidence score.
// Offsets from the suggester are not trusted blindly.
type Suggestion struct {
	Label      string  `json:"label"`
	Text       string  `json:"text"`
	SpanStart  *int    `json:"spanStart,omitempty"`
	SpanEnd    *int    `json:"spanEnd,omitempty"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Resolution is a suggestion resolved into a concrete, offset-bearing
// draft. Occurrences counts how many times the suggested text appears
// in the document; values above 1 flag the first-occurrence ambiguity.
type Resolution struct {
	Draft       Draft
	Occurrences int
}

// Reconcile resolves a suggestion against the live document text.
//
// Offsets that are in bounds and (when text is given) agree with the
// document are used directly. Otherwise the text is located by forward
// search from position 0; multiple occurrences deterministically pick
// the first. A suggestion whose text is empty or absent from the
// document yields UnresolvableSuggestionError and produces no span.
func Reconcile(docText string, sug Suggestion, source Source) (Resolution, error) {
	label := strings.ToUpper(strings.TrimSpace(sug.Label))
	runes := []rune(docText)

	occurrences := 1
	if sug.Text != "" {
		occurrences = strings.Count(docText, sug.Text)
	}

	if sug.SpanStart != nil && sug.SpanEnd != nil {
		start, end := *sug.SpanStart, *sug.SpanEnd
		if start >= 0 && start < end && end <= len(runes) {
			value := string(runes[start:end])
			if sug.Text == "" || sug.Text == value {
				return Resolution{
					Draft: Draft{
						Label:      label,
						Start:      start,
						End:        end,
						Text:       value,
						Confidence: sug.Confidence,
						Source:     source,
					},
					Occurrences: occurrences,
				}, nil
			}
		}
		// Offsets disagree with the document; fall through to matching
		// on text alone.
	}

	if sug.Text == "" {
		return Resolution{}, &UnresolvableSuggestionError{Label: label}
	}
	byteIndex := strings.Index(docText, sug.Text)
	if byteIndex < 0 {
		return Resolution{}, &UnresolvableSuggestionError{Label: label, Text: sug.Text}
	}
	start := utf8.RuneCountInString(docText[:byteIndex])
	end := start + utf8.RuneCountInString(sug.Text)

	return Resolution{
		Draft: Draft{
			Label:      label,
			Start:      start,
			End:        end,
			Text:       sug.Text,
			Confidence: sug.Confidence,
			Source:     source,
		},
		Occurrences: occurrences,
	}, nil
}
