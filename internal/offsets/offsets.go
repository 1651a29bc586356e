// Package offsets maps a selection over a rendered fragment tree back
// to rune offsets in the raw document string. It works because the
// compositor only wraps substrings, never alters them: concatenating
// every text run under the root, in document order, reproduces the
// document exactly.
package offsets

import (
	"strings"
	"unicode"
)

// Node is one node of the rendered fragment tree. A node is either a
// text run (Value set, no children) or an annotation wrapper (children
// holding text runs). SpanID is set on wrappers for inspection only;
// measurement ignores node boundaries entirely.
type Node struct {
	Value    string
	SpanID   string
	Children []*Node
}

// NewText builds a text-run node.
func NewText(value string) *Node {
	return &Node{Value: value}
}

// NewWrapper builds an annotation wrapper around text runs.
func NewWrapper(spanID string, children ...*Node) *Node {
	return &Node{SpanID: spanID, Children: children}
}

// Position addresses a rune offset inside one text-run node.
type Position struct {
	Node   *Node
	Offset int
}

// Selection is a pair of positions bound to the same tree. Start and
// End may arrive reversed (backwards selections are legal).
type Selection struct {
	Start Position
	End   Position
}

// Collapsed reports whether the selection spans zero runes.
func (s Selection) Collapsed() bool {
	return s.Start.Node == s.End.Node && s.Start.Offset == s.End.Offset
}

// Range is a resolved selection: Text is the trimmed selected text and
// Start/End are rune offsets into the raw document string, with
// End-Start always equal to the rune length of Text.
type Range struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Resolve measures a selection against the tree rooted at root. It
// returns false for collapsed selections, selections whose text trims
// to nothing, and positions that do not belong to the tree.
//
// Start is the rune length of all text preceding the selection start.
// The prefix measurement survives wrapper boundaries because it sums
// text runs regardless of intervening elements. Trimming whitespace
// then shifts Start past the trimmed prefix, so offsets and text never
// desynchronize.
func Resolve(root *Node, sel Selection) (Range, bool) {
	if root == nil || sel.Start.Node == nil || sel.End.Node == nil || sel.Collapsed() {
		return Range{}, false
	}

	start, ok := absoluteOffset(root, sel.Start)
	if !ok {
		return Range{}, false
	}
	end, ok := absoluteOffset(root, sel.End)
	if !ok {
		return Range{}, false
	}
	if start > end {
		start, end = end, start
	}
	if start == end {
		return Range{}, false
	}

	full := []rune(Text(root))
	if end > len(full) {
		return Range{}, false
	}
	raw := string(full[start:end])
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Range{}, false
	}
	leading := 0
	for _, r := range raw {
		if !unicode.IsSpace(r) {
			break
		}
		leading++
	}
	start += leading
	return Range{
		Text:  trimmed,
		Start: start,
		End:   start + len([]rune(trimmed)),
	}, true
}

// Text concatenates every text run under n in document order.
func Text(n *Node) string {
	if n == nil {
		return ""
	}
	if len(n.Children) == 0 {
		return n.Value
	}
	var b strings.Builder
	for _, child := range n.Children {
		b.WriteString(Text(child))
	}
	return b.String()
}

// absoluteOffset walks the tree in document order, accumulating rune
// lengths of text runs until it reaches the position's node.
func absoluteOffset(root *Node, pos Position) (int, bool) {
	total := 0
	found := false
	var walk func(n *Node) bool
	walk = func(n *Node) bool {
		if len(n.Children) == 0 {
			if n == pos.Node {
				length := len([]rune(n.Value))
				offset := pos.Offset
				if offset < 0 || offset > length {
					return true
				}
				total += offset
				found = true
				return true
			}
			total += len([]rune(n.Value))
			return false
		}
		for _, child := range n.Children {
			if walk(child) {
				return true
			}
		}
		return false
	}
	walk(root)
	return total, found
}
