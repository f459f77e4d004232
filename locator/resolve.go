package locator

import (
	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/page"
)

// Resolve evaluates a descriptor against root and returns the single node it
// identifies, or nil. Zero matches, multiple matches, and malformed
// descriptors all resolve to nil; resolution never panics and never mutates
// the tree.
func Resolve(root *html.Node, d *PathDescriptor) *html.Node {
	if root == nil || d.IsZero() {
		return nil
	}
	switch {
	case d.ID != "":
		return uniqueMatch(root, func(n *html.Node) bool {
			return page.GetAttr(n, "id") == d.ID
		})
	case d.Anchor != "":
		return uniqueMatch(root, func(n *html.Node) bool {
			return page.GetAttr(n, page.AttrAnchor) == d.Anchor
		})
	default:
		return uniqueMatch(root, func(n *html.Node) bool {
			return matchesChain(n, d.Segments)
		})
	}
}

// uniqueMatch walks the tree and returns the matching element only when it is
// the sole match. Ambiguity is a resolution failure, not a pick-the-first.
func uniqueMatch(root *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	ambiguous := false
	page.Walk(root, func(n *html.Node) bool {
		if ambiguous {
			return false
		}
		if page.IsElement(n) && match(n) {
			if found != nil {
				ambiguous = true
				return false
			}
			found = n
		}
		return true
	})
	if ambiguous {
		return nil
	}
	return found
}

// matchesChain reports whether n matches the final segment and its ancestor
// element chain matches the preceding segments contiguously. The chain is a
// suffix path: the first segment may sit at any depth below the root.
func matchesChain(n *html.Node, segs []Segment) bool {
	if len(segs) == 0 {
		return false
	}
	if !matchesSegment(n, segs[len(segs)-1]) {
		return false
	}
	cur := n
	for i := len(segs) - 2; i >= 0; i-- {
		cur = parentElement(cur)
		if cur == nil || !matchesSegment(cur, segs[i]) {
			return false
		}
	}
	return true
}

func matchesSegment(n *html.Node, s Segment) bool {
	if s.Tag != "" && page.Tag(n) != s.Tag {
		return false
	}
	for _, c := range s.Classes {
		if !page.HasClass(n, c) {
			return false
		}
	}
	if s.Index > 0 && sameTagIndex(n) != s.Index {
		return false
	}
	return true
}
