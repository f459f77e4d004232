// CLAUDE:SUMMARY Durable node locators: descriptor model, synthesis, resolution, relaxation.
// Package locator synthesizes durable descriptors for nodes in trees that
// offer no stable identifiers, and re-resolves them later against trees that
// may have changed shape. A descriptor is self-contained: resolving needs the
// descriptor and a tree, nothing else.
package locator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvable is returned by Synthesize when the target is not an
// element attached to the given root. Resolution failures are reported as a
// nil node, never as an error.
var ErrUnresolvable = errors.New("locator: unresolvable")

// Segment is one level of a descriptor chain: a tag, up to MaxClasses
// stable class tokens, and a positional index only when same-tag siblings
// force disambiguation.
type Segment struct {
	Tag     string   `json:"tag"`
	Classes []string `json:"classes,omitempty"`
	Index   int      `json:"index,omitempty"` // 1-based among same-tag siblings; 0 = unconstrained
}

// PathDescriptor locates one node. Exactly one of the three forms is set:
// a stable element ID, a synthetic anchor imprinted by the synthesizer, or
// an ordered segment chain ending at the target. A chain, when it resolves,
// resolves to exactly one node.
type PathDescriptor struct {
	ID       string    `json:"id,omitempty"`
	Anchor   string    `json:"anchor,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// IsZero reports whether the descriptor carries no reference at all.
func (d *PathDescriptor) IsZero() bool {
	return d == nil || (d.ID == "" && d.Anchor == "" && len(d.Segments) == 0)
}

// String renders the descriptor in selector-ish form for logs and traces.
func (d *PathDescriptor) String() string {
	if d == nil {
		return "<nil>"
	}
	switch {
	case d.ID != "":
		return "#" + d.ID
	case d.Anchor != "":
		return "[anchor=" + d.Anchor + "]"
	}
	parts := make([]string, 0, len(d.Segments))
	for _, s := range d.Segments {
		var sb strings.Builder
		sb.WriteString(s.Tag)
		for _, c := range s.Classes {
			sb.WriteByte('.')
			sb.WriteString(c)
		}
		if s.Index > 0 {
			fmt.Fprintf(&sb, ":%d", s.Index)
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, ">")
}

// clone returns a deep copy so relaxation never mutates a stored descriptor.
func (d *PathDescriptor) clone() *PathDescriptor {
	if d == nil {
		return nil
	}
	c := &PathDescriptor{ID: d.ID, Anchor: d.Anchor}
	if len(d.Segments) > 0 {
		c.Segments = make([]Segment, len(d.Segments))
		copy(c.Segments, d.Segments)
		for i := range c.Segments {
			if len(d.Segments[i].Classes) > 0 {
				c.Segments[i].Classes = append([]string(nil), d.Segments[i].Classes...)
			}
		}
	}
	return c
}
