// CLAUDE:SUMMARY Offline locator-quality audit: resolve archived marks against archived pages, report fallback depth.
// Package snapaudit measures locator durability offline. It walks a snapshot
// archive (captured pages plus the marks stored for them) and reports which
// marks still resolve and how deep into the fallback chain each one had to
// go. The probe mirrors the restoration order exactly but applies nothing;
// the output is QA signal for locator synthesis, not a rendering.
package snapaudit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/grab"
	"github.com/bakharlabs/blurshield/locator"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/page"
)

// Method is how (or whether) a mark resolved.
type Method string

const (
	// MethodDirect means the stored locator matched unchanged.
	MethodDirect Method = "direct"
	// MethodRelaxed means a relaxed variant of the locator matched.
	MethodRelaxed Method = "relaxed"
	// MethodText means only the stored text signal found the node.
	MethodText Method = "text"
	// MethodOverlay marks region marks, which resolve unconditionally.
	MethodOverlay Method = "overlay"
	// MethodDead means nothing found the node; restoration would drop it.
	MethodDead Method = "dead"
)

// defaultMaxScanLeaves bounds the text-signal scans, matching restoration.
const defaultMaxScanLeaves = 5000

// MarkResult is the probe outcome for one mark.
type MarkResult struct {
	MarkID string    `json:"mark_id"`
	Kind   mark.Kind `json:"kind"`
	Method Method    `json:"method"`
}

// PageResult groups the probe outcomes for one archived page.
type PageResult struct {
	Entry grab.Entry   `json:"entry"`
	Marks []MarkResult `json:"marks"`
	// Err is set when the page itself could not be loaded; its marks are
	// then unprobed, not dead.
	Err string `json:"error,omitempty"`
}

// Report is a full archive audit.
type Report struct {
	ArchivePath string         `json:"archive_path"`
	StartedAt   time.Time      `json:"started_at"`
	Duration    time.Duration  `json:"duration"`
	Pages       []PageResult   `json:"pages"`
	Totals      map[Method]int `json:"totals"`
}

// Resolved counts marks that restoration would still place somewhere.
func (r *Report) Resolved() int {
	return r.Totals[MethodDirect] + r.Totals[MethodRelaxed] +
		r.Totals[MethodText] + r.Totals[MethodOverlay]
}

// Total counts probed marks.
func (r *Report) Total() int {
	n := 0
	for _, c := range r.Totals {
		n += c
	}
	return n
}

// WriteText renders the report for a terminal.
func (r *Report) WriteText(w io.Writer) {
	fmt.Fprintf(w, "audit of %s: %d pages, %d marks, %d resolved (%s)\n",
		r.ArchivePath, len(r.Pages), r.Total(), r.Resolved(),
		r.Duration.Round(time.Millisecond))
	methods := make([]string, 0, len(r.Totals))
	for m := range r.Totals {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(w, "  %-8s %d\n", m, r.Totals[Method(m)])
	}
	for _, p := range r.Pages {
		if p.Err != "" {
			fmt.Fprintf(w, "  page %s (%s): %s\n", p.Entry.ID, p.Entry.URL, p.Err)
			continue
		}
		for _, m := range p.Marks {
			if m.Method == MethodDead {
				fmt.Fprintf(w, "  dead: %s (%s) on %s\n", m.MarkID, m.Kind, p.Entry.URL)
			}
		}
	}
}

// Config configures an Auditor.
type Config struct {
	// MaxScanLeaves bounds the text-signal scans.
	// Default: defaultMaxScanLeaves.
	MaxScanLeaves int
	Logger        *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxScanLeaves <= 0 {
		c.MaxScanLeaves = defaultMaxScanLeaves
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Auditor probes archived marks against archived pages.
type Auditor struct {
	cfg Config
}

// New creates an Auditor.
func New(cfg Config) *Auditor {
	cfg.applyDefaults()
	return &Auditor{cfg: cfg}
}

// Audit walks the archive at path and probes every stored mark against its
// page. Pages that fail to load are reported, not fatal.
func (a *Auditor) Audit(ctx context.Context, path string) (*Report, error) {
	arch, err := grab.OpenArchive(path)
	if err != nil {
		return nil, err
	}
	defer arch.Close()

	start := time.Now()
	rep := &Report{
		ArchivePath: path,
		StartedAt:   start.UTC(),
		Totals:      map[Method]int{},
	}
	for _, e := range arch.Manifest.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep.Pages = append(rep.Pages, a.auditPage(arch, e, rep.Totals))
	}
	rep.Duration = time.Since(start)
	a.cfg.Logger.Info("snapaudit: done", "archive", path,
		"pages", len(rep.Pages), "marks", rep.Total(),
		"resolved", rep.Resolved(), "duration", rep.Duration)
	return rep, nil
}

func (a *Auditor) auditPage(arch *grab.Archive, e grab.Entry, totals map[Method]int) PageResult {
	res := PageResult{Entry: e}
	doc, err := arch.Page(e)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	marks, err := arch.Marks(e)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	for _, m := range marks {
		method := a.probe(doc.Root, m)
		res.Marks = append(res.Marks, MarkResult{MarkID: m.ID, Kind: m.Kind, Method: method})
		totals[method]++
	}
	return res
}

// probe replays the restoration fallback chain without applying anything.
func (a *Auditor) probe(root *html.Node, m *mark.Mark) Method {
	switch m.Kind {
	case mark.KindRegion:
		// Document-relative rectangle; no node needed.
		return MethodOverlay

	case mark.KindPoint:
		if locator.Resolve(root, m.Locator) != nil {
			return MethodDirect
		}
		if locator.Relax(root, m.Locator) != nil {
			return MethodRelaxed
		}
		if m.Text != "" && a.relocateByText(root, m.Text) != nil {
			return MethodText
		}
		return MethodDead

	case mark.KindText:
		if locator.Resolve(root, m.Locator) != nil {
			return MethodDirect
		}
		if leaf, _ := a.findLiteralLeaf(root, m.Text); leaf != nil {
			return MethodText
		}
		return MethodDead
	}
	return MethodDead
}

// findLiteralLeaf scans text leaves in document order for the stored
// literal, exact first, whitespace-normalized as the fallback.
func (a *Auditor) findLiteralLeaf(root *html.Node, literal string) (leaf *html.Node, exact bool) {
	if literal == "" {
		return nil, false
	}
	normLiteral := normalize(literal)
	scanned := 0
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if page.IsSynthetic(n) {
			return true
		}
		if n.Type == html.TextNode {
			scanned++
			if scanned > a.cfg.MaxScanLeaves {
				return false
			}
			if strings.Contains(n.Data, literal) {
				leaf, exact = n, true
				return false
			}
			if leaf == nil && normalize(n.Data) == normLiteral {
				leaf = n
			}
			return true
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if !walk(ch) {
				return false
			}
		}
		return true
	}
	walk(root)
	return leaf, exact
}

// relocateByText finds the unique element whose normalized text equals the
// hint. Ambiguity counts as unresolved; an equivocal locator is the exact
// defect this audit exists to surface.
func (a *Auditor) relocateByText(root *html.Node, hint string) *html.Node {
	normHint := normalize(hint)
	if normHint == "" {
		return nil
	}
	var found *html.Node
	scanned := 0
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if page.IsSynthetic(n) {
			return true
		}
		if page.IsElement(n) {
			scanned++
			if scanned > a.cfg.MaxScanLeaves {
				return false
			}
			if normalize(page.TextContent(n)) == normHint {
				switch {
				case found == nil:
					found = n
				case descends(found, n):
					found = n
				default:
					found = nil
					return false
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if !walk(ch) {
				return false
			}
		}
		return true
	}
	walk(root)
	return found
}

func descends(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
