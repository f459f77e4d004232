package locator

import (
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/idgen"
	"github.com/bakharlabs/blurshield/page"
)

// Config tunes the synthesizer.
type Config struct {
	// MaxDepth caps the segment chain length. Default: 6.
	MaxDepth int
	// MaxClasses caps the class tokens recorded per segment. Default: 3.
	MaxClasses int
	// AnchorGen produces values for synthetic anchor attributes.
	// Default: NanoID(10).
	AnchorGen idgen.Generator
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 6
	}
	if c.MaxClasses <= 0 {
		c.MaxClasses = 3
	}
	if c.AnchorGen == nil {
		c.AnchorGen = idgen.NanoID(10)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Synthesizer builds descriptors for nodes. Safe for reuse across documents;
// it keeps no per-tree state.
type Synthesizer struct {
	cfg Config
}

// NewSynthesizer creates a Synthesizer with cfg's zero values filled in.
func NewSynthesizer(cfg Config) *Synthesizer {
	cfg.applyDefaults()
	return &Synthesizer{cfg: cfg}
}

// Synthesize produces a descriptor for target that resolves back to target
// against the current tree. Preference order: a globally-unique stable id,
// then the shortest segment chain that resolves uniquely, then a synthetic
// anchor attribute imprinted on the node. The anchor path mutates the tree
// (one attribute on the target) and is the only mutation this package makes.
func (s *Synthesizer) Synthesize(root, target *html.Node) (*PathDescriptor, error) {
	if !page.IsElement(target) || !contains(root, target) {
		return nil, ErrUnresolvable
	}

	// Stable id, validated round-trip before trusting it.
	if id := page.GetAttr(target, "id"); id != "" && validID(id) {
		d := &PathDescriptor{ID: id}
		if Resolve(root, d) == target {
			return d, nil
		}
	}

	// Segment chain, shortest-first: after each prepended ancestor level,
	// stop as soon as the partial chain already pins down the target.
	var chain []Segment
	cur := target
	for depth := 0; depth < s.cfg.MaxDepth && page.IsElement(cur); depth++ {
		tag := page.Tag(cur)
		if tag == "html" || tag == "body" {
			break
		}
		seg := Segment{Tag: tag, Classes: s.stableClasses(cur)}
		if needsIndex(cur) {
			seg.Index = sameTagIndex(cur)
		}
		chain = append([]Segment{seg}, chain...)

		d := &PathDescriptor{Segments: chain}
		if Resolve(root, d) == target {
			return d, nil
		}
		cur = parentElement(cur)
		if cur == nil {
			break
		}
	}

	// The capped chain is ambiguous. Imprint a synthetic anchor instead:
	// deterministic construction, not search, so it cannot fail.
	anchor := s.cfg.AnchorGen()
	page.SetAttr(target, page.AttrAnchor, anchor)
	s.cfg.Logger.Debug("locator: anchored node",
		"anchor", anchor, "tag", page.Tag(target), "chain", (&PathDescriptor{Segments: chain}).String())
	return &PathDescriptor{Anchor: anchor}, nil
}

// stableClasses picks up to MaxClasses tokens that look hand-authored.
// Generated noise (hashes, scoped-style suffixes, utility variants) churns
// between builds and would poison the descriptor.
func (s *Synthesizer) stableClasses(n *html.Node) []string {
	var out []string
	for _, c := range page.ClassList(n) {
		if !stableClassToken(c) {
			continue
		}
		out = append(out, c)
		if len(out) == s.cfg.MaxClasses {
			break
		}
	}
	return out
}

func stableClassToken(c string) bool {
	if c == "" || len(c) > 24 {
		return false
	}
	if c[0] >= '0' && c[0] <= '9' {
		return false
	}
	if strings.ContainsAny(c, ":[()/\\") {
		return false
	}
	if c == page.MarkClass {
		return false
	}
	digits, digitRun, hexRun := 0, 0, 0
	for _, r := range c {
		// Hand-authored class tokens are lowercase-kebab in practice;
		// uppercase means a styled-components / CSS-modules suffix.
		if r >= 'A' && r <= 'Z' {
			return false
		}
		if r >= '0' && r <= '9' {
			digits++
			digitRun++
			hexRun++
		} else {
			digitRun = 0
			if r >= 'a' && r <= 'f' {
				hexRun++
			} else {
				hexRun = 0
			}
		}
		if digits >= 3 || digitRun >= 4 || hexRun >= 8 {
			return false
		}
	}
	return true
}

// validID accepts ids that are safe to embed in a descriptor and plausibly
// author-assigned rather than generated per render.
func validID(id string) bool {
	if len(id) > 64 {
		return false
	}
	first := rune(id[0])
	if !(first == '_' || (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return false
	}
	for _, r := range id {
		ok := r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

// needsIndex reports whether n has same-tag element siblings, which is the
// only case where a positional index buys disambiguation. Skipping the index
// otherwise keeps descriptors robust to sibling insertion and removal.
func needsIndex(n *html.Node) bool {
	if n.Parent == nil {
		return false
	}
	tag := page.Tag(n)
	count := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if page.Tag(c) == tag {
			count++
			if count > 1 {
				return true
			}
		}
	}
	return false
}

// sameTagIndex returns the 1-based position of n among its parent's children
// with the same tag.
func sameTagIndex(n *html.Node) int {
	tag := page.Tag(n)
	idx := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if page.Tag(c) == tag {
			idx++
			if c == n {
				return idx
			}
		}
	}
	return 0
}

func parentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if page.IsElement(p) {
			return p
		}
	}
	return nil
}

func contains(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}
