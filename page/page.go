// CLAUDE:SUMMARY Parsed document model: tree handle, identity, synthetic-attribute vocabulary.
// Package page models the document a blurshield session operates on: a parsed
// HTML tree plus the normalized identity it is keyed by. Everything the engine
// does to a page goes through the small node vocabulary defined here, so the
// whole pipeline runs headless against any parsed tree.
package page

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attribute namespace imprinted on nodes by the engine. Everything the engine
// adds to a tree carries one of these, so removal and scan-skipping never
// depend on remembering what was done.
const (
	// AttrAnchor marks a node that received a synthetic locator anchor.
	AttrAnchor = "data-bsh-anchor"
	// AttrMark carries the mark ID on a node with an applied effect.
	AttrMark = "data-bsh-mark"
	// AttrOverlay marks a region overlay container.
	AttrOverlay = "data-bsh-overlay"
	// AttrWrap marks a synthetic inline container around obscured text.
	AttrWrap = "data-bsh-wrap"
	// AttrUI marks control-surface subtrees; restoration scans never
	// descend into them.
	AttrUI = "data-bsh-ui"
	// AttrIntensity records the applied obscuring intensity so re-apply
	// with the same value can be detected without runtime state.
	AttrIntensity = "data-bsh-intensity"

	// MarkClass is added alongside AttrMark for style targeting.
	MarkClass = "bsh-obscured"
)

// Doc is one parsed document plus the identity it is stored under.
type Doc struct {
	Root     *html.Node
	URL      string
	Identity string
}

// Parse reads an HTML document and computes its identity from rawURL.
// rawURL may be empty for synthetic documents (tests, fixtures); Identity is
// then empty and the caller keys the session however it likes.
func Parse(r io.Reader, rawURL string) (*Doc, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("page: parse: %w", err)
	}
	d := &Doc{Root: root, URL: rawURL}
	if rawURL != "" {
		id, err := Identity(rawURL)
		if err != nil {
			return nil, err
		}
		d.Identity = id
	}
	return d, nil
}

// ParseString is Parse over a string, for fixtures and tests.
func ParseString(src, rawURL string) (*Doc, error) {
	return Parse(strings.NewReader(src), rawURL)
}

// Body returns the document's body element, or the root when the tree has no
// body (fragment parses).
func (d *Doc) Body() *html.Node {
	if b := findElement(d.Root, atom.Body); b != nil {
		return b
	}
	return d.Root
}

// Title returns the text of the first <title> element, trimmed.
func (d *Doc) Title() string {
	t := findElement(d.Root, atom.Title)
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return strings.TrimSpace(t.FirstChild.Data)
}

// Render serialises the tree back to HTML.
func (d *Doc) Render() (string, error) {
	return Render(d.Root)
}

// Render serialises a subtree to HTML.
func Render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("page: render: %w", err)
	}
	return buf.String(), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
