// CLAUDE:SUMMARY Interaction mode state machine: point/region/text/erase gestures over one session's tree.
// Package mode is the gesture side of a document session: which interaction
// mode is active, which gesture listeners are attached, and how a raw
// gesture becomes a stored mark with an applied effect. The machine is owned
// by the session scheduler and is not safe for concurrent use; every entry
// point runs on the scheduler goroutine, the same one that owns the tree and
// the mark set.
package mode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/effect"
	"github.com/bakharlabs/blurshield/locator"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/page"
	"github.com/bakharlabs/blurshield/trace"
)

// State is the active interaction mode.
type State string

const (
	Inactive   State = "inactive"
	PointMark  State = "point"
	RegionDraw State = "region"
	TextMark   State = "text"
	Erase      State = "erase"
)

// MinRegionSide is the minimum width and height a drawn region must reach
// before release commits a mark.
const MinRegionSide = 10

// ErrDisabled is returned while an external disable is in force; mode-entry
// requests are suppressed until re-enabled.
var ErrDisabled = errors.New("mode: externally disabled")

// ErrUpgradeRequired is the capability refusal: the account's tier cannot
// create this mark. User-facing as an upgrade affordance, never as a
// failure.
var ErrUpgradeRequired = errors.New("mode: tier cannot create this mark")

// ErrWrongMode is returned when a gesture arrives without its listener
// attached. Gestures race mode switches in flight; dropping them is the
// correct outcome, but callers may want to log it.
var ErrWrongMode = errors.New("mode: no listener for gesture")

// Capability gates mark creation. Checked before every commit; false blocks
// the mark and surfaces ErrUpgradeRequired.
type Capability interface {
	CanCreateMark(kind mark.Kind) bool
	CanAddMark() bool
}

type allowAll struct{}

func (allowAll) CanCreateMark(mark.Kind) bool { return true }
func (allowAll) CanAddMark() bool             { return true }

// SaveFunc persists the set after a commit or an erase. Typically the
// gateway's shadow save.
type SaveFunc func(ctx context.Context, identity string, marks []*mark.Mark) error

// Config configures a Machine.
type Config struct {
	Applier     *effect.Applier
	Synthesizer *locator.Synthesizer
	// Capability gates creation. Nil allows everything.
	Capability Capability
	// MaxRegion is the caller-supplied maximum-size policy for drawn
	// regions. Nil means no maximum.
	MaxRegion func(mark.Region) bool
	// Save runs after every set mutation. Nil disables persistence.
	Save SaveFunc
	// Notify receives mode transitions for the control surface. Nil is
	// fine.
	Notify func(old, new State)
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Applier == nil {
		c.Applier = effect.New(effect.Config{})
	}
	if c.Synthesizer == nil {
		c.Synthesizer = locator.NewSynthesizer(locator.Config{})
	}
	if c.Capability == nil {
		c.Capability = allowAll{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// gesture listener names; exactly one mode's set is attached at a time.
const (
	listenClick  = "click"
	listenDraw   = "draw"
	listenSelect = "select"
)

var modeListeners = map[State][]string{
	Inactive:   nil,
	PointMark:  {listenClick},
	RegionDraw: {listenDraw},
	TextMark:   {listenSelect},
	Erase:      {listenClick},
}

// cursors per mode; the affordance attribute on body follows the active
// mode and resets when Inactive.
var modeCursors = map[State]string{
	PointMark:  "crosshair",
	RegionDraw: "crosshair",
	TextMark:   "text",
	Erase:      "pointer",
}

const cursorAttr = "data-bsh-cursor"

// draw is the in-flight RegionDraw sub-protocol state.
type draw struct {
	anchorX, anchorY float64
	rect             mark.Region
	preview          *html.Node
}

// Machine is one session's interaction mode machine. Not safe for
// concurrent use; the session scheduler owns it.
type Machine struct {
	cfg       Config
	state     State
	disabled  bool
	listeners map[string]bool
	draw      *draw
}

// New creates a Machine in Inactive.
func New(cfg Config) *Machine {
	cfg.applyDefaults()
	return &Machine{cfg: cfg, state: Inactive, listeners: map[string]bool{}}
}

// State returns the active mode.
func (m *Machine) State() State { return m.state }

// Disabled reports whether an external disable is in force.
func (m *Machine) Disabled() bool { return m.disabled }

// SetMode requests a transition. Requesting the active mode toggles to
// Inactive. While disabled, any non-Inactive request fails with
// ErrDisabled. The transition detaches the old mode's listeners and
// attaches the new mode's as one step: there is no point where both sets,
// or neither's cleanup, are live.
func (m *Machine) SetMode(doc *page.Doc, s State) (State, error) {
	if s == m.state {
		s = Inactive
	}
	if m.disabled && s != Inactive {
		return m.state, ErrDisabled
	}
	m.transition(doc, s)
	return m.state, nil
}

// Disable forces Inactive immediately and suppresses mode entry until
// Enable.
func (m *Machine) Disable(doc *page.Doc) {
	m.transition(doc, Inactive)
	m.disabled = true
}

// Enable lifts an external disable. The machine stays Inactive until the
// next SetMode.
func (m *Machine) Enable() { m.disabled = false }

func (m *Machine) transition(doc *page.Doc, s State) {
	old := m.state

	// Leaving any mode clears its transient UI before the new listeners
	// exist.
	m.clearTransient()

	next := map[string]bool{}
	for _, l := range modeListeners[s] {
		next[l] = true
	}
	m.listeners = next
	m.state = s

	if doc != nil {
		if cursor := modeCursors[s]; cursor != "" {
			page.SetAttr(doc.Body(), cursorAttr, cursor)
		} else {
			page.RemoveAttr(doc.Body(), cursorAttr)
		}
	}

	if old != s {
		trace.Emit(&trace.Event{Kind: trace.EventModeChange,
			Detail: string(old) + ">" + string(s)})
		m.cfg.Logger.Debug("mode: transition", "from", old, "to", s)
		if m.cfg.Notify != nil {
			m.cfg.Notify(old, s)
		}
	}
}

// clearTransient drops the draw preview and any other mode-scoped UI.
func (m *Machine) clearTransient() {
	if m.draw != nil {
		if m.draw.preview != nil {
			page.Detach(m.draw.preview)
		}
		m.draw = nil
	}
}

// Click handles a click gesture on node. In PointMark it commits a point
// mark; in Erase it removes the mark the node carries. Every other state
// drops the gesture with ErrWrongMode.
func (m *Machine) Click(ctx context.Context, doc *page.Doc, set *mark.Set, node *html.Node) (*mark.Mark, error) {
	if !m.listeners[listenClick] {
		return nil, ErrWrongMode
	}
	switch m.state {
	case PointMark:
		return m.commitPoint(ctx, doc, set, node)
	case Erase:
		return m.erase(ctx, doc, set, node)
	}
	return nil, ErrWrongMode
}

func (m *Machine) commitPoint(ctx context.Context, doc *page.Doc, set *mark.Set, node *html.Node) (*mark.Mark, error) {
	if err := m.checkCapability(mark.KindPoint); err != nil {
		return nil, err
	}
	d, err := m.cfg.Synthesizer.Synthesize(doc.Root, node)
	if err != nil {
		return nil, fmt.Errorf("point mark: %w", err)
	}
	mk := mark.NewPoint(d, mark.DefaultIntensity)
	mk.Text = textHint(node)

	if _, err := m.cfg.Applier.Apply(node, mk.ID, mk.Intensity); err != nil {
		return nil, err
	}
	if err := set.Append(mk); err != nil {
		// Roll the effect back rather than leave an orphaned marker.
		m.cfg.Applier.Remove(node)
		return nil, err
	}
	m.persist(ctx, set)
	return mk, nil
}

// Press starts a region draw at document coordinates (x, y).
func (m *Machine) Press(doc *page.Doc, x, y float64) error {
	if !m.listeners[listenDraw] {
		return ErrWrongMode
	}
	m.clearTransient()
	m.draw = &draw{anchorX: x, anchorY: y}
	return nil
}

// Move resizes the live preview toward (x, y). No-op without a press.
func (m *Machine) Move(doc *page.Doc, x, y float64) error {
	if !m.listeners[listenDraw] {
		return ErrWrongMode
	}
	if m.draw == nil {
		return nil
	}
	m.draw.rect = rectBetween(m.draw.anchorX, m.draw.anchorY, x, y)
	m.updatePreview(doc)
	return nil
}

// Release ends the draw. A rectangle at least MinRegionSide in both
// dimensions that passes the maximum-size policy commits a region mark;
// anything else discards the preview with no mark and no error surfaced as
// failure.
func (m *Machine) Release(ctx context.Context, doc *page.Doc, set *mark.Set, x, y float64) (*mark.Mark, error) {
	if !m.listeners[listenDraw] {
		return nil, ErrWrongMode
	}
	if m.draw == nil {
		return nil, nil
	}
	rect := rectBetween(m.draw.anchorX, m.draw.anchorY, x, y)
	m.clearTransient()

	if rect.Width < MinRegionSide || rect.Height < MinRegionSide {
		return nil, nil
	}
	if m.cfg.MaxRegion != nil && !m.cfg.MaxRegion(rect) {
		return nil, nil
	}
	if err := m.checkCapability(mark.KindRegion); err != nil {
		return nil, err
	}

	mk := mark.NewRegion(rect, mark.DefaultIntensity)
	if _, err := m.cfg.Applier.ApplyRegion(doc.Body(), mk.ID, rect, mk.Intensity); err != nil {
		return nil, err
	}
	if err := set.Append(mk); err != nil {
		m.cfg.Applier.RemoveRegion(doc.Root, rect)
		return nil, err
	}
	m.persist(ctx, set)
	return mk, nil
}

// Select commits a text mark for the selection.
func (m *Machine) Select(ctx context.Context, doc *page.Doc, set *mark.Set, sel effect.Selection) (*mark.Mark, error) {
	if !m.listeners[listenSelect] {
		return nil, ErrWrongMode
	}
	if err := m.checkCapability(mark.KindText); err != nil {
		return nil, err
	}
	literal := sel.Literal()
	if strings.TrimSpace(literal) == "" {
		return nil, fmt.Errorf("%w: empty selection", effect.ErrInvalidGesture)
	}

	mk := mark.NewText(nil, literal, mark.DefaultIntensity)
	applied, err := m.cfg.Applier.WrapSelection(sel, mk.ID, mk.Intensity)
	if err != nil {
		return nil, err
	}
	// The wrap exists now; its locator is the fast path for the next pass.
	if d, serr := m.cfg.Synthesizer.Synthesize(doc.Root, applied.Node); serr == nil {
		mk.Locator = d
	}
	if err := set.Append(mk); err != nil {
		m.cfg.Applier.Remove(applied.Node)
		return nil, err
	}
	m.persist(ctx, set)
	return mk, nil
}

// erase removes the specific mark whose effect the clicked node carries.
// Clicking anywhere else is a no-op.
func (m *Machine) erase(ctx context.Context, doc *page.Doc, set *mark.Set, node *html.Node) (*mark.Mark, error) {
	carrier := effectCarrier(node)
	if carrier == nil {
		return nil, nil
	}
	id := effect.MarkIDAt(carrier)
	mk := set.Get(id)

	switch {
	case page.HasAttr(carrier, page.AttrOverlay):
		if mk != nil && mk.Region != nil {
			m.cfg.Applier.RemoveRegion(doc.Root, *mk.Region)
		} else {
			page.Detach(carrier)
		}
	default:
		m.cfg.Applier.Remove(carrier)
	}

	if mk == nil {
		// Orphaned effect with no stored mark: the tree is clean now and
		// there is nothing to persist.
		return nil, nil
	}
	set.Remove(mk.ID)
	m.persist(ctx, set)
	return mk, nil
}

func (m *Machine) checkCapability(kind mark.Kind) error {
	if !m.cfg.Capability.CanCreateMark(kind) {
		return fmt.Errorf("%w: kind %s", ErrUpgradeRequired, kind)
	}
	if !m.cfg.Capability.CanAddMark() {
		return fmt.Errorf("%w: mark limit reached", ErrUpgradeRequired)
	}
	return nil
}

func (m *Machine) persist(ctx context.Context, set *mark.Set) {
	if m.cfg.Save == nil {
		return
	}
	if err := m.cfg.Save(ctx, set.Identity(), set.Snapshot()); err != nil {
		m.cfg.Logger.Warn("mode: save failed", "identity", set.Identity(), "error", err)
	}
}

// updatePreview keeps one preview node under body, restyled as the draw
// grows. It carries the UI attribute so scans and erase never treat it as
// content.
func (m *Machine) updatePreview(doc *page.Doc) {
	if m.draw.preview == nil {
		p := &html.Node{Type: html.ElementNode, Data: "div"}
		page.SetAttr(p, page.AttrUI, "draw-preview")
		doc.Body().AppendChild(p)
		m.draw.preview = p
	}
	r := m.draw.rect
	page.SetAttr(m.draw.preview, "style", fmt.Sprintf(
		"position: absolute; left: %gpx; top: %gpx; width: %gpx; height: %gpx; "+
			"border: 1px dashed currentColor; pointer-events: none;",
		r.X, r.Y, r.Width, r.Height))
}

// effectCarrier walks from node upward to the nearest element carrying an
// applied effect marker.
func effectCarrier(node *html.Node) *html.Node {
	for p := node; p != nil; p = p.Parent {
		if page.IsElement(p) && (effect.MarkIDAt(p) != "" || page.HasAttr(p, page.AttrOverlay)) {
			return p
		}
	}
	return nil
}

func rectBetween(x1, y1, x2, y2 float64) mark.Region {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return mark.Region{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// textHint is the relocation hint stored on point marks: the node's
// normalized text, truncated to a stable prefix.
func textHint(node *html.Node) string {
	text := strings.Join(strings.Fields(page.TextContent(node)), " ")
	runes := []rune(text)
	if len(runes) > 120 {
		return string(runes[:120])
	}
	return text
}
