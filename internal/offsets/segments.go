package offsets

import "marginalia/api/internal/annotation"

// FromSegments rebuilds the fragment tree a client renders from the
// compositor's output: text segments become text runs, annotation
// segments become wrappers holding a single text run. The tree's
// children align one-to-one with the segment list, which lets a
// selection be addressed by segment index.
func FromSegments(segments []annotation.Segment) *Node {
	root := &Node{Children: make([]*Node, 0, len(segments))}
	for _, segment := range segments {
		if segment.Kind == annotation.SegmentAnnotation {
			root.Children = append(root.Children, NewWrapper(segment.SpanID, NewText(segment.Value)))
			continue
		}
		root.Children = append(root.Children, NewText(segment.Value))
	}
	return root
}

// TextNodeAt returns the text run backing segment index i, reaching
// through wrapper nodes. Returns nil when i is out of range.
func TextNodeAt(root *Node, i int) *Node {
	if root == nil || i < 0 || i >= len(root.Children) {
		return nil
	}
	node := root.Children[i]
	if len(node.Children) > 0 {
		return node.Children[0]
	}
	return node
}
