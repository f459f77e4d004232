package locator

import (
	"golang.org/x/net/html"
)

// Relax re-resolves a degraded descriptor by progressively loosening it:
// positional indexes first, then everything but the final segment, then the
// class tokens, ending at the bare tag of the final segment. The first
// relaxation that resolves to exactly one node wins; ambiguity at every step
// means nil. ID and anchor descriptors have nothing to loosen and return nil
// directly.
func Relax(root *html.Node, d *PathDescriptor) *html.Node {
	if root == nil || d == nil || len(d.Segments) == 0 {
		return nil
	}
	for _, relaxed := range relaxations(d) {
		if n := Resolve(root, relaxed); n != nil {
			return n
		}
	}
	return nil
}

// relaxations returns the loosened variants in strictness order. Variants
// identical to the original are skipped; resolving them again buys nothing.
func relaxations(d *PathDescriptor) []*PathDescriptor {
	var out []*PathDescriptor
	add := func(v *PathDescriptor) {
		if v.String() == d.String() {
			return
		}
		for _, prev := range out {
			if prev.String() == v.String() {
				return
			}
		}
		out = append(out, v)
	}

	noIndex := d.clone()
	for i := range noIndex.Segments {
		noIndex.Segments[i].Index = 0
	}
	add(noIndex)

	tail := d.clone()
	tail.Segments = tail.Segments[len(tail.Segments)-1:]
	add(tail)

	tailNoIndex := tail.clone()
	tailNoIndex.Segments[0].Index = 0
	add(tailNoIndex)

	noClasses := noIndex.clone()
	for i := range noClasses.Segments {
		noClasses.Segments[i].Classes = nil
	}
	add(noClasses)

	bareTag := &PathDescriptor{Segments: []Segment{{Tag: d.Segments[len(d.Segments)-1].Tag}}}
	add(bareTag)

	return out
}
