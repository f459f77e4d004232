// CLAUDE:SUMMARY Reversible obscuring effects: layered apply fallback, convergent removal, overlays, text wraps.
// Package effect applies and removes the visual obscuring treatment on nodes
// of a parsed document. It owns no persistent state: everything it does to a
// tree is carried by marker attributes in the data-bsh-* namespace, so
// removal converges from the tree alone without remembering how the effect
// was applied.
package effect

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/page"
)

// ErrApplicationFailed is returned when every fallback method failed to take.
// The mark stays in the store; the next restoration pass retries.
var ErrApplicationFailed = errors.New("effect: application failed")

// ErrInvalidGesture is returned for wraps the tree cannot express safely
// (selection spanning block structure). User-facing; the operation is simply
// not performed.
var ErrInvalidGesture = errors.New("effect: invalid gesture")

// Method identifies which fallback path carried an application.
type Method string

const (
	// MethodStyle mutates the parsed inline style, strict about what it
	// finds there.
	MethodStyle Method = "style"
	// MethodProps rewrites the style property table leniently, dropping
	// malformed declarations.
	MethodProps Method = "props"
	// MethodAttr appends to the raw attribute string without parsing it.
	MethodAttr Method = "attr"
	// MethodWrap wraps the target in a synthetic container that carries
	// the effect instead of mutating the target.
	MethodWrap Method = "wrap"
)

// Applied describes one successful application.
type Applied struct {
	MarkID    string
	Intensity int
	Method    Method
	// Node carries the effect markers: the target itself, or the synthetic
	// container for MethodWrap.
	Node *html.Node
}

// Config tunes the applier.
type Config struct {
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Applier applies and removes obscuring effects. Stateless; safe to share
// across documents of one session scheduler.
type Applier struct {
	cfg Config
}

// New creates an Applier.
func New(cfg Config) *Applier {
	cfg.applyDefaults()
	return &Applier{cfg: cfg}
}

// blurRadius maps intensity [1,100] to a blur radius in pixels.
func blurRadius(intensity int) int {
	r := (intensity + 9) / 10
	if r < 1 {
		r = 1
	}
	return r
}

func blurValue(intensity int) string {
	return fmt.Sprintf("blur(%dpx)", blurRadius(intensity))
}

// Apply obscures target at the given intensity. Idempotent: re-applying the
// same mark at the same intensity is a no-op, a different intensity updates
// in place. The fallback chain runs strict style mutation, lenient property
// rewrite, raw attribute append, then a synthetic carrier wrap; the first
// method whose effect verifiably took wins.
func (a *Applier) Apply(target *html.Node, markID string, intensity int) (*Applied, error) {
	if !page.IsElement(target) {
		return nil, fmt.Errorf("%w: target is not an element", ErrApplicationFailed)
	}
	tag := page.Tag(target)
	if tag == "html" || tag == "body" || tag == "head" {
		return nil, fmt.Errorf("%w: refusing to obscure <%s>", ErrApplicationFailed, tag)
	}

	// Already carried by a wrap container around the target?
	if w := carrierWrap(target); w != nil {
		target = w
	}
	if cur := page.GetAttr(target, page.AttrMark); cur != "" {
		if cur != markID {
			return nil, fmt.Errorf("%w: node already owned by mark %s", ErrApplicationFailed, cur)
		}
		if page.GetAttr(target, page.AttrIntensity) == strconv.Itoa(intensity) {
			return &Applied{MarkID: markID, Intensity: intensity, Method: appliedMethod(target), Node: target}, nil
		}
	}

	type attempt struct {
		method Method
		fn     func(*html.Node, int) bool
	}
	chain := []attempt{
		{MethodStyle, styleMutate},
		{MethodProps, propsRewrite},
		{MethodAttr, attrRewrite},
		{MethodWrap, a.wrapCarrier},
	}
	for _, at := range chain {
		node := target
		if at.method == MethodWrap {
			// wrapCarrier replaces target with a container; markers go
			// on the container.
			if !at.fn(target, intensity) {
				continue
			}
			node = target.Parent
		} else if !at.fn(target, intensity) {
			continue
		}
		page.SetAttr(node, page.AttrMark, markID)
		page.SetAttr(node, page.AttrIntensity, strconv.Itoa(intensity))
		page.AddClass(node, page.MarkClass)
		return &Applied{MarkID: markID, Intensity: intensity, Method: at.method, Node: node}, nil
	}
	a.cfg.Logger.Warn("effect: all methods failed", "mark", markID, "tag", tag)
	return nil, fmt.Errorf("%w: <%s>", ErrApplicationFailed, tag)
}

// styleMutate sets the filter through a strict parse of the existing inline
// style. Refuses foreign-namespace nodes (inline style semantics differ
// there) and malformed style attributes.
func styleMutate(n *html.Node, intensity int) bool {
	if n.Namespace != "" {
		return false
	}
	decls, ok := parseStyle(page.GetAttr(n, "style"), true)
	if !ok {
		return false
	}
	decls = setDecl(decls, "filter", blurValue(intensity))
	page.SetAttr(n, "style", renderStyle(decls))
	return verifyBlur(n, intensity)
}

// propsRewrite rebuilds the style property table leniently, dropping
// declarations the strict path choked on.
func propsRewrite(n *html.Node, intensity int) bool {
	if n.Namespace != "" {
		return false
	}
	decls, _ := parseStyle(page.GetAttr(n, "style"), false)
	decls = setDecl(decls, "filter", blurValue(intensity))
	page.SetAttr(n, "style", renderStyle(decls))
	return verifyBlur(n, intensity)
}

// attrRewrite appends to the raw attribute string without interpreting
// whatever is already there.
func attrRewrite(n *html.Node, intensity int) bool {
	if n.Namespace != "" {
		return false
	}
	cur := page.GetAttr(n, "style")
	sep := ""
	if cur != "" && !strings.HasSuffix(strings.TrimSpace(cur), ";") {
		sep = "; "
	}
	page.SetAttr(n, "style", cur+sep+"filter: "+blurValue(intensity))
	return verifyBlur(n, intensity)
}

// wrapCarrier wraps target in a synthetic container that carries the effect.
// Needs a parent to splice into; the container inherits display category from
// the target so layout is not disturbed.
func (a *Applier) wrapCarrier(target *html.Node, intensity int) bool {
	if target.Parent == nil {
		return false
	}
	containerTag := "span"
	if page.IsBlock(target) {
		containerTag = "div"
	}
	wrap := &html.Node{Type: html.ElementNode, Data: containerTag}
	page.SetAttr(wrap, page.AttrWrap, "1")
	page.SetAttr(wrap, "style", "filter: "+blurValue(intensity))

	parent := target.Parent
	parent.InsertBefore(wrap, target)
	parent.RemoveChild(target)
	wrap.AppendChild(target)
	return true
}

// verifyBlur reads the attribute back and confirms the effect took.
func verifyBlur(n *html.Node, intensity int) bool {
	style := page.GetAttr(n, "style")
	decls, _ := parseStyle(style, false)
	return strings.Contains(getDecl(decls, "filter"), blurValue(intensity))
}

// Remove clears the effect from target, converging regardless of which
// method applied it: unwraps a synthetic carrier, strips every blur artifact
// from the style attribute whichever path wrote it, neutralizes any filter
// declaration it cannot account for, and removes all marker classes and
// attributes.
func (a *Applier) Remove(target *html.Node) {
	if target == nil {
		return
	}
	// A carrier wrap around the target, or the target being the carrier
	// itself, is undone by splicing children back.
	if w := carrierWrap(target); w != nil {
		target = w
	}
	if isCarrier(target) {
		unwrap(target)
		return
	}

	style := page.GetAttr(target, "style")
	if style != "" {
		decls, _ := parseStyle(style, false)
		cleaned := decls[:0]
		for _, d := range decls {
			if d.prop == "filter" && isOwnBlur(d.val) {
				continue
			}
			cleaned = append(cleaned, d)
		}
		// A competing filter we did not write still blurs the node;
		// neutral wins with maximum priority.
		if f := getDecl(cleaned, "filter"); strings.Contains(f, "blur(") {
			cleaned = setDecl(cleaned, "filter", "none !important")
		}
		if len(cleaned) == 0 {
			page.RemoveAttr(target, "style")
		} else {
			page.SetAttr(target, "style", renderStyle(cleaned))
		}
	}
	page.RemoveAttr(target, page.AttrMark)
	page.RemoveAttr(target, page.AttrIntensity)
	page.RemoveClass(target, page.MarkClass)
}

// RemoveByMark locates whatever carries markID (node, overlay, or wrap) and
// removes it. Returns false when nothing in the tree carries the mark.
func (a *Applier) RemoveByMark(root *html.Node, markID string) bool {
	n := FindApplied(root, markID)
	if n == nil {
		return false
	}
	if page.HasAttr(n, page.AttrOverlay) {
		page.Detach(n)
		return true
	}
	a.Remove(n)
	return true
}

// FindApplied returns the node carrying markID's effect markers, or nil.
func FindApplied(root *html.Node, markID string) *html.Node {
	var found *html.Node
	page.Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if page.IsElement(n) && page.GetAttr(n, page.AttrMark) == markID {
			found = n
		}
		return true
	})
	return found
}

// IsApplied reports whether markID's effect is present anywhere under root.
// Restoration passes check this before re-applying.
func IsApplied(root *html.Node, markID string) bool {
	return FindApplied(root, markID) != nil
}

// MarkIDAt returns the mark ID carried by n or its nearest marked ancestor.
// The erase gesture resolves clicks through this.
func MarkIDAt(n *html.Node) string {
	for p := n; p != nil; p = p.Parent {
		if page.IsElement(p) {
			if id := page.GetAttr(p, page.AttrMark); id != "" {
				return id
			}
		}
	}
	return ""
}

// isOwnBlur reports whether a filter value is exactly the form every apply
// method writes. Composite filters belong to the page and are neutralized,
// not deleted.
func isOwnBlur(val string) bool {
	val = strings.TrimSpace(val)
	if !strings.HasPrefix(val, "blur(") || !strings.HasSuffix(val, "px)") {
		return false
	}
	digits := val[len("blur(") : len(val)-len("px)")]
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// carrierWrap returns the synthetic effect container that wraps exactly this
// target, if any.
func carrierWrap(target *html.Node) *html.Node {
	p := target.Parent
	if p != nil && isCarrier(p) && p.FirstChild == target && p.LastChild == target {
		return p
	}
	return nil
}

func isCarrier(n *html.Node) bool {
	return page.IsElement(n) && page.HasAttr(n, page.AttrWrap) && page.HasAttr(n, page.AttrMark)
}

// unwrap splices a container's children into its place and drops it.
func unwrap(wrap *html.Node) {
	parent := wrap.Parent
	if parent == nil {
		return
	}
	for wrap.FirstChild != nil {
		c := wrap.FirstChild
		wrap.RemoveChild(c)
		parent.InsertBefore(c, wrap)
	}
	parent.RemoveChild(wrap)
	mergeAdjacentText(parent)
}

// mergeAdjacentText coalesces sibling text nodes, so unwrap leaves the tree
// byte-identical to its pre-wrap shape.
func mergeAdjacentText(parent *html.Node) {
	c := parent.FirstChild
	for c != nil {
		next := c.NextSibling
		if next != nil && c.Type == html.TextNode && next.Type == html.TextNode {
			c.Data += next.Data
			parent.RemoveChild(next)
			continue
		}
		c = next
	}
}

// appliedMethod reconstructs the method for an already-marked node; only
// wrap is distinguishable after the fact, which is all removal ever needs.
func appliedMethod(n *html.Node) Method {
	if isCarrier(n) {
		return MethodWrap
	}
	return MethodStyle
}
