package effect

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/page"
)

// Text marks wrap only the literal selected run in a minimal synthetic
// inline container. Wrapping is refused when the selection spans block
// structure: forcing a wrap there would corrupt the tree, which is strictly
// worse than a missed mark.

// Selection is a text range in the document: offsets are rune counts into
// the start and end text nodes. Start and End may be the same node.
type Selection struct {
	Start       *html.Node
	StartOffset int
	End         *html.Node
	EndOffset   int
}

// Literal returns the selected text, concatenated across leaves.
func (s Selection) Literal() string {
	if s.Start == nil || s.End == nil {
		return ""
	}
	if s.Start == s.End {
		runes := []rune(s.Start.Data)
		if s.StartOffset < 0 || s.EndOffset > len(runes) || s.StartOffset >= s.EndOffset {
			return ""
		}
		return string(runes[s.StartOffset:s.EndOffset])
	}
	var sb strings.Builder
	started := false
	walkLeaves(commonAncestor(s.Start, s.End), func(leaf *html.Node) bool {
		switch leaf {
		case s.Start:
			started = true
			sb.WriteString(string([]rune(leaf.Data)[s.StartOffset:]))
		case s.End:
			sb.WriteString(string([]rune(leaf.Data)[:s.EndOffset]))
			return false
		default:
			if started {
				sb.WriteString(leaf.Data)
			}
		}
		return true
	})
	return sb.String()
}

// WrapSelection wraps the selected run in a synthetic inline container
// carrying the effect. The selection must either sit inside one text node,
// or exactly cover whole siblings under one non-spanning parent; anything
// that would cross a block boundary is refused with ErrInvalidGesture.
func (a *Applier) WrapSelection(sel Selection, markID string, intensity int) (*Applied, error) {
	if sel.Start == nil || sel.End == nil ||
		sel.Start.Type != html.TextNode || sel.End.Type != html.TextNode {
		return nil, fmt.Errorf("%w: selection endpoints must be text", ErrInvalidGesture)
	}
	if err := checkSpan(sel); err != nil {
		return nil, err
	}

	if sel.Start == sel.End {
		return a.wrapWithin(sel.Start, sel.StartOffset, sel.EndOffset, markID, intensity)
	}

	// Cross-node: only exact whole-sibling coverage is expressible without
	// restructuring, mirroring what a range surround can do safely.
	if sel.Start.Parent != sel.End.Parent ||
		sel.StartOffset != 0 || sel.EndOffset != len([]rune(sel.End.Data)) {
		return nil, fmt.Errorf("%w: selection spans incompatible structure", ErrInvalidGesture)
	}
	parent := sel.Start.Parent
	wrap := newTextWrap(intensity)
	parent.InsertBefore(wrap, sel.Start)
	for {
		c := wrap.NextSibling
		if c == nil {
			break
		}
		parent.RemoveChild(c)
		wrap.AppendChild(c)
		if c == sel.End {
			break
		}
	}
	return a.finishWrap(wrap, markID, intensity), nil
}

// WrapLiteral wraps the first occurrence of literal inside the text leaf.
// The restoration fallback scan lands here after locating a leaf whose text
// matches a stored mark.
func (a *Applier) WrapLiteral(leaf *html.Node, literal, markID string, intensity int) (*Applied, error) {
	if leaf == nil || leaf.Type != html.TextNode || literal == "" {
		return nil, fmt.Errorf("%w: no text to wrap", ErrInvalidGesture)
	}
	idx := strings.Index(leaf.Data, literal)
	if idx < 0 {
		return nil, fmt.Errorf("%w: literal not found in leaf", ErrInvalidGesture)
	}
	start := len([]rune(leaf.Data[:idx]))
	return a.wrapWithin(leaf, start, start+len([]rune(literal)), markID, intensity)
}

// wrapWithin splits one text node around [start,end) and wraps the middle.
func (a *Applier) wrapWithin(leaf *html.Node, start, end int, markID string, intensity int) (*Applied, error) {
	runes := []rune(leaf.Data)
	if start < 0 || end > len(runes) || start >= end {
		return nil, fmt.Errorf("%w: empty or out-of-range selection", ErrInvalidGesture)
	}
	parent := leaf.Parent
	if parent == nil {
		return nil, fmt.Errorf("%w: detached text", ErrInvalidGesture)
	}

	before, mid, after := string(runes[:start]), string(runes[start:end]), string(runes[end:])
	wrap := newTextWrap(intensity)
	wrap.AppendChild(&html.Node{Type: html.TextNode, Data: mid})

	parent.InsertBefore(wrap, leaf)
	if before != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: before}, wrap)
	}
	if after != "" {
		next := &html.Node{Type: html.TextNode, Data: after}
		if wrap.NextSibling != nil {
			parent.InsertBefore(next, wrap.NextSibling)
		} else {
			parent.AppendChild(next)
		}
	}
	parent.RemoveChild(leaf)
	return a.finishWrap(wrap, markID, intensity), nil
}

func newTextWrap(intensity int) *html.Node {
	wrap := &html.Node{Type: html.ElementNode, Data: "span"}
	page.SetAttr(wrap, page.AttrWrap, "1")
	page.SetAttr(wrap, "style", "filter: "+blurValue(intensity))
	return wrap
}

func (a *Applier) finishWrap(wrap *html.Node, markID string, intensity int) *Applied {
	page.SetAttr(wrap, page.AttrMark, markID)
	page.SetAttr(wrap, page.AttrIntensity, strconv.Itoa(intensity))
	page.AddClass(wrap, page.MarkClass)
	return &Applied{MarkID: markID, Intensity: intensity, Method: MethodWrap, Node: wrap}
}

// checkSpan refuses selections whose leaves sit below different block
// ancestors under the minimal common ancestor.
func checkSpan(sel Selection) error {
	if sel.Start == sel.End {
		return nil
	}
	ca := commonAncestor(sel.Start, sel.End)
	if ca == nil {
		return fmt.Errorf("%w: endpoints in different trees", ErrInvalidGesture)
	}
	for _, end := range []*html.Node{sel.Start, sel.End} {
		for p := end.Parent; p != nil && p != ca; p = p.Parent {
			if page.IsBlock(p) {
				return fmt.Errorf("%w: selection crosses block boundary", ErrInvalidGesture)
			}
		}
	}
	return nil
}

func commonAncestor(a, b *html.Node) *html.Node {
	seen := map[*html.Node]bool{}
	for p := a; p != nil; p = p.Parent {
		seen[p] = true
	}
	for p := b; p != nil; p = p.Parent {
		if seen[p] {
			return p
		}
	}
	return nil
}

// walkLeaves visits text leaves under root in document order until fn
// returns false.
func walkLeaves(root *html.Node, fn func(*html.Node) bool) {
	stop := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if stop {
			return
		}
		if n.Type == html.TextNode {
			if !fn(n) {
				stop = true
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}
