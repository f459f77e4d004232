package page

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Fingerprint generates a structural hash of the tree: tags plus nesting
// depth, ignoring text, attributes, and synthetic engine nodes. Two passes
// over the same fingerprint mean the structure did not move underneath the
// marks; a changed fingerprint is recorded with restoration diagnostics.
func Fingerprint(root *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node, depth int)
	walk = func(n *html.Node, depth int) {
		if IsSynthetic(n) {
			return
		}
		if n.Type == html.ElementNode {
			fmt.Fprintf(&b, "%d:%s;", depth, Tag(n))
			depth++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, depth)
		}
	}
	walk(root, 0)

	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", h[:16])
}
