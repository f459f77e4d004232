// CLAUDE:SUMMARY Markdown export of a shielded document — obscured text masked with block runs, regions summarized.
// Package export renders a shielded document to markdown. Text under an
// obscuring effect is masked with block characters so the export never leaks
// what the shield hides; region overlays do not sit in content flow, so they
// are summarized in a trailing section instead.
package export

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/page"
)

// maskWordCap bounds the block run for one masked word so the export does
// not telegraph exact word lengths.
const maskWordCap = 12

// Exporter renders shielded documents to markdown. Safe for reuse across
// documents.
type Exporter struct {
	conv   *converter.Converter
	logger *slog.Logger
}

// New creates an Exporter. logger may be nil.
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
}

// Markdown renders doc with every obscured run masked. set supplies the
// region marks for the trailing summary; it may be nil when the document
// carries no region overlays.
func (e *Exporter) Markdown(doc *page.Doc, set *mark.Set) (string, error) {
	masked := cloneTree(doc.Root)
	scrub(masked)

	src, err := page.Render(masked)
	if err != nil {
		return "", fmt.Errorf("export: render: %w", err)
	}

	md, err := e.conv.ConvertString(src, converter.WithDomain(doc.URL))
	if err != nil {
		return "", fmt.Errorf("export: convert: %w", err)
	}
	md = strings.TrimSpace(md)

	var out strings.Builder
	if title := doc.Title(); title != "" {
		out.WriteString("# " + title + "\n\n")
	}
	out.WriteString(md)

	if regions := regionMarks(set); len(regions) > 0 {
		out.WriteString("\n\n---\n\nObscured regions:\n")
		for _, m := range regions {
			fmt.Fprintf(&out, "- %gx%g at (%g, %g)\n",
				m.Region.Width, m.Region.Height, m.Region.X, m.Region.Y)
		}
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

func regionMarks(set *mark.Set) []*mark.Mark {
	if set == nil {
		return nil
	}
	var regions []*mark.Mark
	for _, m := range set.Snapshot() {
		if m.Kind == mark.KindRegion && m.Region != nil {
			regions = append(regions, m)
		}
	}
	return regions
}

// scrub rewrites the cloned tree in place: overlay and control-surface
// nodes are dropped, and the text under any effect carrier is replaced by
// block runs.
func scrub(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if page.IsElement(c) {
			if page.HasAttr(c, page.AttrOverlay) || page.HasAttr(c, page.AttrUI) {
				n.RemoveChild(c)
				continue
			}
			if page.HasAttr(c, page.AttrMark) {
				maskSubtree(c)
				continue
			}
		}
		scrub(c)
	}
}

// maskSubtree replaces every text node under n with its masked form,
// preserving element structure so headings and list items keep their shape.
func maskSubtree(n *html.Node) {
	if n.Type == html.TextNode {
		n.Data = maskText(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		maskSubtree(c)
	}
}

// maskText replaces each word with a block run of the same length, capped.
// Whitespace survives so line and word boundaries render naturally.
func maskText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	run := 0
	flush := func() {
		if run == 0 {
			return
		}
		if run > maskWordCap {
			run = maskWordCap
		}
		b.WriteString(strings.Repeat("█", run))
		run = 0
	}
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			flush()
			b.WriteRune(r)
			continue
		}
		run++
	}
	flush()
	return b.String()
}

func cloneTree(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		clone.Attr = make([]html.Attribute, len(n.Attr))
		copy(clone.Attr, n.Attr)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(cloneTree(c))
	}
	return clone
}
