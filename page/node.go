package page

import (
	"strings"

	"golang.org/x/net/html"
)

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Tag returns the lowercase tag name of an element node, "" otherwise.
func Tag(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return strings.ToLower(n.Data)
}

// GetAttr returns the value of the named attribute, or "".
func GetAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the named attribute is present.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces the named attribute.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes the named attribute if present.
func RemoveAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// ClassList splits the class attribute into tokens.
func ClassList(n *html.Node) []string {
	return strings.Fields(GetAttr(n, "class"))
}

// HasClass reports whether the class attribute contains token.
func HasClass(n *html.Node, token string) bool {
	for _, c := range ClassList(n) {
		if c == token {
			return true
		}
	}
	return false
}

// AddClass appends token to the class attribute if absent.
func AddClass(n *html.Node, token string) {
	if HasClass(n, token) {
		return
	}
	cur := GetAttr(n, "class")
	if cur == "" {
		SetAttr(n, "class", token)
		return
	}
	SetAttr(n, "class", cur+" "+token)
}

// RemoveClass strips token from the class attribute, deleting the attribute
// when it empties.
func RemoveClass(n *html.Node, token string) {
	classes := ClassList(n)
	kept := classes[:0]
	for _, c := range classes {
		if c != token {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(kept, " "))
}

// TextContent concatenates all text descendants of n.
func TextContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// Walk visits n and every descendant in document order. Returning false from
// fn prunes the subtree below the current node.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// IsSynthetic reports whether n itself is an engine-created or engine-managed
// node (overlay, wrap, anchor) or a control-surface root.
func IsSynthetic(n *html.Node) bool {
	if !IsElement(n) {
		return false
	}
	return HasAttr(n, AttrOverlay) || HasAttr(n, AttrWrap) || HasAttr(n, AttrUI)
}

// InsideSynthetic reports whether n or any ancestor is synthetic. Restoration
// scans use this to skip content the engine itself produced.
func InsideSynthetic(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if IsSynthetic(p) {
			return true
		}
	}
	return false
}

// Detach removes n from its parent, keeping the node intact for reinsertion.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// blockTags are tags that establish block structure. A text wrap must never
// span across one of these.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"body": true, "div": true, "dl": true, "dd": true, "dt": true,
	"fieldset": true, "figure": true, "figcaption": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "header": true, "hr": true, "html": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "tbody": true, "td": true, "tfoot": true,
	"th": true, "thead": true, "tr": true, "ul": true,
}

// IsBlock reports whether n is a block-structural element.
func IsBlock(n *html.Node) bool {
	return blockTags[Tag(n)]
}
