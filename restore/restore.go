// CLAUDE:SUMMARY Restoration coordinator: resolve stored marks against a fresh tree, clean up dead ones.
// Package restore re-applies a document's persisted marks after the tree has
// been rebuilt (reload, navigation, remote sync arrival). One pass walks a
// snapshot of the mark set in store order, resolves each mark through its
// locator (falling back to relaxation and literal-text relocation), applies
// the missing effects, and flushes marks that are confirmed dead.
//
// A pass never mutates the set mid-scan: dead marks are queued and removed
// once at the end, then the caller-supplied save hook runs. The worst
// outcome of a pass is "mark not visually restored"; it never corrupts the
// tree.
package restore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/effect"
	"github.com/bakharlabs/blurshield/locator"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/page"
	"github.com/bakharlabs/blurshield/trace"
)

// ErrLocatorUnresolvable marks a stored locator that no longer matches any
// node. Recoverable: the mark is queued for cleanup, never surfaced to the
// user.
var ErrLocatorUnresolvable = errors.New("restore: locator unresolvable")

// DefaultSecondPassDelay is the fixed interval between the immediate
// restoration pass and the retry that catches late-building page regions.
const DefaultSecondPassDelay = 1500 * time.Millisecond

// DefaultMaxScanLeaves bounds the literal-text fallback scan.
const DefaultMaxScanLeaves = 5000

// Outcome is the per-mark result of one pass.
type Outcome string

const (
	// OutcomeApplied means the mark's effect was (re)applied this pass.
	OutcomeApplied Outcome = "applied"
	// OutcomePresent means the effect was already on the tree.
	OutcomePresent Outcome = "present"
	// OutcomeFailed means the node resolved but every effect method
	// failed; the mark stays stored for the next pass.
	OutcomeFailed Outcome = "failed"
	// OutcomeDead means the mark could not be resolved at all and was
	// queued for cleanup.
	OutcomeDead Outcome = "dead"
)

// SaveFunc persists the set after dead-mark cleanup. Typically bound to the
// persistence gateway's shadow save.
type SaveFunc func(ctx context.Context, identity string, marks []*mark.Mark) error

// Config configures a Coordinator.
type Config struct {
	Applier *effect.Applier
	// Save runs once per pass, only when dead marks were flushed. Nil
	// disables persistence (tests, audits).
	Save SaveFunc
	// MaxScanLeaves bounds the text-relocation scan.
	// Default: DefaultMaxScanLeaves.
	MaxScanLeaves int
	Logger        *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Applier == nil {
		c.Applier = effect.New(effect.Config{})
	}
	if c.MaxScanLeaves <= 0 {
		c.MaxScanLeaves = DefaultMaxScanLeaves
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Coordinator runs restoration passes. It holds no per-document state; the
// session scheduler owns the set and calls Pass from its own goroutine.
type Coordinator struct {
	cfg Config
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{cfg: cfg}
}

// Report summarizes one pass.
type Report struct {
	Applied  int
	Present  int
	Failed   int
	Dead     []string
	Duration time.Duration
}

// Pass restores every mark in the set against the document, in store order,
// and flushes dead marks once at the end. Safe to run repeatedly: applying
// is idempotent and a mark already on the tree is skipped.
func (c *Coordinator) Pass(ctx context.Context, doc *page.Doc, set *mark.Set) *Report {
	start := time.Now()
	rep := &Report{}
	body := doc.Body()

	for _, m := range set.Snapshot() {
		var out Outcome
		switch m.Kind {
		case mark.KindPoint:
			out = c.restorePoint(doc.Root, m)
		case mark.KindRegion:
			out = c.restoreRegion(doc.Root, body, m)
		case mark.KindText:
			out = c.restoreText(doc.Root, m)
		default:
			out = OutcomeDead
		}
		switch out {
		case OutcomeApplied:
			rep.Applied++
		case OutcomePresent:
			rep.Present++
		case OutcomeFailed:
			rep.Failed++
			trace.Emit(&trace.Event{Kind: trace.EventApplyFail,
				MarkID: m.ID, Identity: set.Identity()})
		case OutcomeDead:
			rep.Dead = append(rep.Dead, m.ID)
		}
	}

	// Flush the dead queue once, after the scan.
	if len(rep.Dead) > 0 {
		set.RemoveAll(rep.Dead)
		for _, id := range rep.Dead {
			trace.Emit(&trace.Event{Kind: trace.EventDead, MarkID: id, Identity: set.Identity()})
		}
		if c.cfg.Save != nil {
			if err := c.cfg.Save(ctx, set.Identity(), set.Snapshot()); err != nil {
				c.cfg.Logger.Warn("restore: dead-mark cleanup not persisted",
					"identity", set.Identity(), "error", err)
			}
		}
	}

	rep.Duration = time.Since(start)
	trace.Emit(&trace.Event{
		Kind:       trace.EventPass,
		Identity:   set.Identity(),
		Detail:     rep.detail(),
		DurationUs: rep.Duration.Microseconds(),
	})
	c.cfg.Logger.Debug("restore: pass complete", "identity", set.Identity(),
		"applied", rep.Applied, "present", rep.Present,
		"failed", rep.Failed, "dead", len(rep.Dead))
	return rep
}

func (r *Report) detail() string {
	return fmt.Sprintf("applied=%d present=%d failed=%d dead=%d",
		r.Applied, r.Present, r.Failed, len(r.Dead))
}

// restorePoint resolves the mark's locator, relaxing and then relocating by
// stored text before giving up.
func (c *Coordinator) restorePoint(root *html.Node, m *mark.Mark) Outcome {
	if effect.IsApplied(root, m.ID) {
		return OutcomePresent
	}
	t0 := time.Now()
	n := locator.Resolve(root, m.Locator)
	depth := "direct"
	if n == nil {
		n = locator.Relax(root, m.Locator)
		depth = "relaxed"
	}
	if n == nil && m.Text != "" {
		n = c.relocateByText(root, m.Text)
		depth = "relocated"
	}
	if n == nil {
		return OutcomeDead
	}
	if _, err := c.cfg.Applier.Apply(n, m.ID, m.Intensity); err != nil {
		return OutcomeFailed
	}
	trace.Emit(&trace.Event{Kind: trace.EventResolved, MarkID: m.ID,
		Detail: depth, DurationUs: time.Since(t0).Microseconds()})
	return OutcomeApplied
}

// restoreRegion recreates the overlay unless one with the exact coordinates
// already exists. Region marks are never dead: the rectangle is document-
// relative and needs no node to survive.
func (c *Coordinator) restoreRegion(root, body *html.Node, m *mark.Mark) Outcome {
	if effect.FindOverlay(root, *m.Region) != nil {
		return OutcomePresent
	}
	if _, err := c.cfg.Applier.ApplyRegion(body, m.ID, *m.Region, m.Intensity); err != nil {
		return OutcomeFailed
	}
	trace.Emit(&trace.Event{Kind: trace.EventResolved, MarkID: m.ID, Detail: "overlay"})
	return OutcomeApplied
}

// restoreText tries the stored locator as a fast path, then scans text
// leaves for the stored literal. The literal is the durable signal; the
// locator pointed at a synthetic wrap that rarely survives a reload.
func (c *Coordinator) restoreText(root *html.Node, m *mark.Mark) Outcome {
	if effect.IsApplied(root, m.ID) {
		return OutcomePresent
	}
	if n := locator.Resolve(root, m.Locator); n != nil && effect.MarkIDAt(n) == m.ID {
		return OutcomePresent
	}

	t0 := time.Now()
	leaf, exact := c.findLiteralLeaf(root, m.Text)
	if leaf == nil {
		return OutcomeDead
	}
	literal := m.Text
	if !exact {
		// Whitespace shifted around the literal; wrap the whole leaf.
		literal = leaf.Data
	}
	if _, err := c.cfg.Applier.WrapLiteral(leaf, literal, m.ID, m.Intensity); err != nil {
		return OutcomeFailed
	}
	trace.Emit(&trace.Event{Kind: trace.EventResolved, MarkID: m.ID,
		Detail: "text_scan", DurationUs: time.Since(t0).Microseconds()})
	return OutcomeApplied
}

// findLiteralLeaf scans text leaves in document order for the stored
// literal, skipping engine-created and control-surface subtrees. exact
// reports whether the literal occurs verbatim (wrappable in place) rather
// than only under whitespace normalization.
func (c *Coordinator) findLiteralLeaf(root *html.Node, literal string) (leaf *html.Node, exact bool) {
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
			if scanned > c.cfg.MaxScanLeaves {
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

// relocateByText finds the unique element whose normalized text content
// equals the stored hint. Ambiguity means no relocation: obscuring the
// wrong node is worse than a dead mark.
func (c *Coordinator) relocateByText(root *html.Node, hint string) *html.Node {
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
			if scanned > c.cfg.MaxScanLeaves {
				return false
			}
			if normalize(page.TextContent(n)) == normHint {
				switch {
				case found == nil:
					found = n
				case contains(found, n):
					// A wrapper and its only content both match; the
					// deepest match is the real target.
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

func contains(root, n *html.Node) bool {
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
