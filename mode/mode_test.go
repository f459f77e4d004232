package mode

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/effect"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/page"
)

func parseDoc(t *testing.T, src string) *page.Doc {
	t.Helper()
	doc, err := page.ParseString(src, "https://example.com/a")
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return doc
}

func findByTag(root *html.Node, tag string) *html.Node {
	var found *html.Node
	page.Walk(root, func(n *html.Node) bool {
		if found == nil && page.Tag(n) == tag {
			found = n
		}
		return found == nil
	})
	return found
}

func TestSetModeToggleAndCursor(t *testing.T) {
	doc := parseDoc(t, `<p>hello</p>`)
	m := New(Config{})

	got, err := m.SetMode(doc, PointMark)
	if err != nil || got != PointMark {
		t.Fatalf("SetMode(PointMark) = %v, %v", got, err)
	}
	if page.GetAttr(doc.Body(), cursorAttr) != "crosshair" {
		t.Error("cursor affordance not set on mode entry")
	}

	// Requesting the active mode toggles off.
	got, err = m.SetMode(doc, PointMark)
	if err != nil || got != Inactive {
		t.Fatalf("toggle = %v, %v; want Inactive", got, err)
	}
	if page.HasAttr(doc.Body(), cursorAttr) {
		t.Error("cursor affordance not reset on Inactive")
	}
}

func TestListenersAreExclusive(t *testing.T) {
	doc := parseDoc(t, `<p>hello</p>`)
	set := mark.NewSet(doc.Identity)
	m := New(Config{})

	if _, err := m.SetMode(doc, RegionDraw); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	// A click has no listener in RegionDraw.
	if _, err := m.Click(context.Background(), doc, set, findByTag(doc.Root, "p")); !errors.Is(err, ErrWrongMode) {
		t.Errorf("Click in RegionDraw = %v, want ErrWrongMode", err)
	}
	// And a press has none in PointMark.
	if _, err := m.SetMode(doc, PointMark); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if err := m.Press(doc, 0, 0); !errors.Is(err, ErrWrongMode) {
		t.Errorf("Press in PointMark = %v, want ErrWrongMode", err)
	}
}

func TestExternalDisable(t *testing.T) {
	doc := parseDoc(t, `<p>hello</p>`)
	m := New(Config{})

	if _, err := m.SetMode(doc, Erase); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	m.Disable(doc)
	if m.State() != Inactive {
		t.Errorf("state after Disable = %v, want Inactive", m.State())
	}
	if _, err := m.SetMode(doc, PointMark); !errors.Is(err, ErrDisabled) {
		t.Errorf("SetMode while disabled = %v, want ErrDisabled", err)
	}

	m.Enable()
	if got, err := m.SetMode(doc, PointMark); err != nil || got != PointMark {
		t.Errorf("SetMode after Enable = %v, %v", got, err)
	}
}

func TestPointClickCommitsMark(t *testing.T) {
	doc := parseDoc(t, `<main class="content"><h1 class="headline">Numbers</h1></main>`)
	set := mark.NewSet(doc.Identity)
	saves := 0
	m := New(Config{Save: func(ctx context.Context, identity string, marks []*mark.Mark) error {
		saves++
		return nil
	}})

	if _, err := m.SetMode(doc, PointMark); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	h1 := findByTag(doc.Root, "h1")
	mk, err := m.Click(context.Background(), doc, set, h1)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if mk.Kind != mark.KindPoint || mk.Locator.IsZero() {
		t.Errorf("mark = %+v, want a point mark with a locator", mk)
	}
	if mk.Text != "Numbers" {
		t.Errorf("relocation hint = %q, want the node text", mk.Text)
	}
	if !effect.IsApplied(doc.Root, mk.ID) {
		t.Error("effect not applied on commit")
	}
	if set.Len() != 1 || saves != 1 {
		t.Errorf("set len %d, saves %d; want 1 and 1", set.Len(), saves)
	}
}

func TestRegionDrawBoundary(t *testing.T) {
	tests := []struct {
		name   string
		w, h   float64
		commit bool
	}{
		{"exactly minimum", 10, 10, true},
		{"width short", 9, 30, false},
		{"height short", 30, 9, false},
		{"comfortably above", 100, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseDoc(t, `<p>hello</p>`)
			set := mark.NewSet(doc.Identity)
			m := New(Config{})
			if _, err := m.SetMode(doc, RegionDraw); err != nil {
				t.Fatalf("SetMode: %v", err)
			}

			if err := m.Press(doc, 50, 50); err != nil {
				t.Fatalf("Press: %v", err)
			}
			if err := m.Move(doc, 50+tt.w/2, 50+tt.h/2); err != nil {
				t.Fatalf("Move: %v", err)
			}
			mk, err := m.Release(context.Background(), doc, set, 50+tt.w, 50+tt.h)
			if err != nil {
				t.Fatalf("Release: %v", err)
			}

			if tt.commit {
				if mk == nil || set.Len() != 1 {
					t.Fatal("expected a committed region mark")
				}
				want := mark.Region{X: 50, Y: 50, Width: tt.w, Height: tt.h}
				if !mk.Region.Equal(want) {
					t.Errorf("region = %v, want %v", mk.Region, want)
				}
				if effect.FindOverlay(doc.Root, want) == nil {
					t.Error("overlay missing after commit")
				}
			} else if mk != nil || set.Len() != 0 {
				t.Error("undersized draw committed a mark")
			}

			// The preview never outlives the draw.
			page.Walk(doc.Root, func(n *html.Node) bool {
				if page.GetAttr(n, page.AttrUI) == "draw-preview" {
					t.Error("draw preview left in the tree")
				}
				return true
			})
		})
	}
}

func TestRegionDrawMaxPolicy(t *testing.T) {
	doc := parseDoc(t, `<p>hello</p>`)
	set := mark.NewSet(doc.Identity)
	m := New(Config{MaxRegion: func(r mark.Region) bool {
		return r.Width*r.Height <= 10000
	}})
	if _, err := m.SetMode(doc, RegionDraw); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	if err := m.Press(doc, 0, 0); err != nil {
		t.Fatalf("Press: %v", err)
	}
	mk, err := m.Release(context.Background(), doc, set, 500, 500)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if mk != nil || set.Len() != 0 {
		t.Error("oversized draw committed despite the maximum-size policy")
	}
}

func TestTextSelectCommitsMark(t *testing.T) {
	doc := parseDoc(t, `<p>the secret number is 42 today</p>`)
	set := mark.NewSet(doc.Identity)
	m := New(Config{})
	if _, err := m.SetMode(doc, TextMark); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	leaf := findByTag(doc.Root, "p").FirstChild
	sel := effect.Selection{Start: leaf, StartOffset: 4, End: leaf, EndOffset: 20}
	mk, err := m.Select(context.Background(), doc, set, sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if mk.Kind != mark.KindText || mk.Text != "secret number is" {
		t.Errorf("mark = %+v, want text %q", mk, "secret number is")
	}
	if !effect.IsApplied(doc.Root, mk.ID) {
		t.Error("wrap not applied")
	}
}

func TestEraseRemovesSpecificMark(t *testing.T) {
	doc := parseDoc(t, `<main class="content"><h1 class="headline">Numbers</h1><p class="lede">Body text.</p></main>`)
	set := mark.NewSet(doc.Identity)
	m := New(Config{})
	ctx := context.Background()

	if _, err := m.SetMode(doc, PointMark); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	h1 := findByTag(doc.Root, "h1")
	mk, err := m.Click(ctx, doc, set, h1)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}

	if _, err := m.SetMode(doc, Erase); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	// Clicking an unmarked node is a no-op.
	removed, err := m.Click(ctx, doc, set, findByTag(doc.Root, "p"))
	if err != nil || removed != nil {
		t.Errorf("erase on unmarked node = %v, %v; want nil, nil", removed, err)
	}
	if set.Len() != 1 {
		t.Fatal("no-op erase mutated the set")
	}

	// Clicking a child of the marked node removes that mark.
	removed, err = m.Click(ctx, doc, set, h1.FirstChild)
	if err != nil {
		t.Fatalf("erase: %v", err)
	}
	if removed == nil || removed.ID != mk.ID {
		t.Fatalf("erase removed %v, want %s", removed, mk.ID)
	}
	if set.Len() != 0 {
		t.Error("mark still stored after erase")
	}
	if effect.IsApplied(doc.Root, mk.ID) {
		t.Error("effect still on tree after erase")
	}
}

func TestEraseRemovesRegionOverlay(t *testing.T) {
	doc := parseDoc(t, `<p>hello</p>`)
	set := mark.NewSet(doc.Identity)
	m := New(Config{})
	ctx := context.Background()

	if _, err := m.SetMode(doc, RegionDraw); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if err := m.Press(doc, 20, 20); err != nil {
		t.Fatalf("Press: %v", err)
	}
	mk, err := m.Release(ctx, doc, set, 120, 120)
	if err != nil || mk == nil {
		t.Fatalf("Release = %v, %v", mk, err)
	}
	overlay := effect.FindOverlay(doc.Root, *mk.Region)
	if overlay == nil {
		t.Fatal("no overlay to erase")
	}

	if _, err := m.SetMode(doc, Erase); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	removed, err := m.Click(ctx, doc, set, overlay)
	if err != nil || removed == nil || removed.ID != mk.ID {
		t.Fatalf("erase overlay = %v, %v", removed, err)
	}
	if effect.FindOverlay(doc.Root, *mk.Region) != nil {
		t.Error("overlay still present after erase")
	}
	if set.Len() != 0 {
		t.Error("region mark still stored after erase")
	}
}

type denyAll struct{}

func (denyAll) CanCreateMark(mark.Kind) bool { return false }
func (denyAll) CanAddMark() bool             { return true }

func TestCapabilityBlocksCreation(t *testing.T) {
	doc := parseDoc(t, `<main class="content"><h1 class="headline">Numbers</h1></main>`)
	set := mark.NewSet(doc.Identity)
	m := New(Config{Capability: denyAll{}})

	if _, err := m.SetMode(doc, PointMark); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	h1 := findByTag(doc.Root, "h1")
	mk, err := m.Click(context.Background(), doc, set, h1)
	if !errors.Is(err, ErrUpgradeRequired) {
		t.Fatalf("Click = %v, want ErrUpgradeRequired", err)
	}
	if mk != nil || set.Len() != 0 {
		t.Error("capability refusal still created a mark")
	}
	if effect.MarkIDAt(h1) != "" {
		t.Error("capability refusal left an effect on the tree")
	}
}
