package annotation

import "sort"

// SegmentKind distinguishes plain text runs from annotated runs.
type SegmentKind string

const (
	SegmentText       SegmentKind = "text"
	SegmentAnnotation SegmentKind = "annotation"
)

// Segment is one renderable run of the composited document. Annotation
// segments carry their label, lifecycle source, owning span id, and a
// provenance title for accessibility.
type Segment struct {
	Kind   SegmentKind `json:"kind"`
	Value  string      `json:"value"`
	Label  string      `json:"label,omitempty"`
	Source Source      `json:"source,omitempty"`
	SpanID string      `json:"spanId,omitempty"`
	Title  string      `json:"title,omitempty"`
}

// Compose converts the raw document string plus its span set into an
// ordered segment list covering the whole document exactly once.
//
// Spans are stable-sorted by start offset (ties keep arrival order)
// and walked with a cursor. Overlap is permitted by the data model:
// a span starting before the cursor is re-sliced from the cursor so no
// character is emitted twice, and a span fully consumed by a prior one
// emits nothing. Substrings pass through byte for byte; the offset
// mapper depends on that.
func Compose(docText string, spans []Span) []Segment {
	runes := []rune(docText)
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	segments := make([]Segment, 0, 2*len(sorted)+1)
	cursor := 0
	for _, span := range sorted {
		start, end := span.Start, span.End
		if end > len(runes) {
			end = len(runes)
		}
		if end <= cursor || start >= len(runes) {
			continue
		}
		if start < cursor {
			start = cursor
		}
		if start > cursor {
			segments = append(segments, Segment{
				Kind:  SegmentText,
				Value: string(runes[cursor:start]),
			})
		}
		segments = append(segments, Segment{
			Kind:   SegmentAnnotation,
			Value:  string(runes[start:end]),
			Label:  span.Label,
			Source: span.Source,
			SpanID: span.ID,
			Title:  span.Label + " · " + string(span.Source),
		})
		cursor = end
	}
	if cursor < len(runes) {
		segments = append(segments, Segment{
			Kind:  SegmentText,
			Value: string(runes[cursor:]),
		})
	}
	return segments
}
