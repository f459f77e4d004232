package mark_test

import (
	"errors"
	"testing"

	"github.com/bakharlabs/blurshield/locator"
	"github.com/bakharlabs/blurshield/mark"
)

func pointLocator() *locator.PathDescriptor {
	return &locator.PathDescriptor{Segments: []locator.Segment{{Tag: "p", Index: 2}}}
}

func TestConstructorsValidate(t *testing.T) {
	cases := []struct {
		name string
		m    *mark.Mark
		kind mark.Kind
	}{
		{"point", mark.NewPoint(pointLocator(), 80), mark.KindPoint},
		{"region", mark.NewRegion(mark.Region{X: 50, Y: 50, Width: 100, Height: 100}, 0), mark.KindRegion},
		{"text", mark.NewText(nil, "secret words", 60), mark.KindText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.m.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if tc.m.Kind != tc.kind {
				t.Fatalf("kind = %q", tc.m.Kind)
			}
			if tc.m.ID == "" || tc.m.ID[:3] != "mk_" {
				t.Fatalf("id = %q", tc.m.ID)
			}
		})
	}
	if got := mark.NewRegion(mark.Region{X: 1, Y: 1, Width: 5, Height: 5}, 0).Intensity; got != mark.DefaultIntensity {
		t.Fatalf("default intensity = %d", got)
	}
	if got := mark.NewPoint(pointLocator(), 500).Intensity; got != 100 {
		t.Fatalf("clamped intensity = %d", got)
	}
}

func TestValidateRejectsMixedFields(t *testing.T) {
	bad := []*mark.Mark{
		{ID: "mk_1", Kind: mark.KindPoint, Intensity: 60},                                                             // no locator
		{ID: "mk_2", Kind: mark.KindRegion, Intensity: 60},                                                            // no region
		{ID: "mk_3", Kind: mark.KindRegion, Intensity: 60, Region: &mark.Region{X: -1, Y: 0, Width: 10, Height: 10}},  // negative origin
		{ID: "mk_4", Kind: mark.KindRegion, Intensity: 60, Region: &mark.Region{X: 0, Y: 0, Width: 0, Height: 10}},    // zero width
		{ID: "mk_5", Kind: mark.KindText, Intensity: 60},                                                              // no text
		{ID: "mk_6", Kind: mark.KindText, Intensity: 60, Text: "x", Region: &mark.Region{X: 0, Y: 0, Width: 1, Height: 1}}, // both
		{ID: "", Kind: mark.KindText, Intensity: 60, Text: "x"},                                                       // no id
		{ID: "mk_7", Kind: "blob", Intensity: 60},                                                                     // unknown kind
		{ID: "mk_8", Kind: mark.KindText, Intensity: 0, Text: "x"},                                                    // intensity floor
	}
	for _, m := range bad {
		if err := m.Validate(); !errors.Is(err, mark.ErrInvalid) {
			t.Fatalf("mark %q: want ErrInvalid, got %v", m.ID, err)
		}
	}
}

func TestSetOrderAndRemoval(t *testing.T) {
	s := mark.NewSet("example.com/page")
	a := mark.NewText(nil, "aaa", 60)
	b := mark.NewRegion(mark.Region{X: 0, Y: 0, Width: 20, Height: 20}, 60)
	c := mark.NewPoint(pointLocator(), 60)

	for _, m := range []*mark.Mark{a, b, c} {
		if err := s.Append(m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if s.Len() != 3 {
		t.Fatalf("len = %d", s.Len())
	}

	snap := s.Snapshot()
	if snap[0] != a || snap[1] != b || snap[2] != c {
		t.Fatal("snapshot lost insertion order")
	}

	if err := s.Append(a); !errors.Is(err, mark.ErrInvalid) {
		t.Fatalf("duplicate append: %v", err)
	}

	if !s.Remove(b.ID) {
		t.Fatal("remove existing = false")
	}
	if s.Remove(b.ID) {
		t.Fatal("remove removed = true")
	}
	if s.Get(b.ID) != nil {
		t.Fatal("removed mark still retrievable")
	}
	if got := s.RemoveAll([]string{a.ID, "mk_ghost", c.ID}); got != 2 {
		t.Fatalf("RemoveAll = %d", got)
	}
	if s.Len() != 0 {
		t.Fatalf("len after removals = %d", s.Len())
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := mark.NewSet("id")
	a := mark.NewText(nil, "aaa", 60)
	if err := s.Append(a); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	s.Remove(a.ID)
	if len(snap) != 1 || snap[0] != a {
		t.Fatal("snapshot affected by later mutation")
	}
}

func TestReplaceAllOrNothing(t *testing.T) {
	s := mark.NewSet("id")
	if err := s.Append(mark.NewText(nil, "keep", 60)); err != nil {
		t.Fatal(err)
	}
	bad := []*mark.Mark{
		mark.NewText(nil, "ok", 60),
		{ID: "mk_bad", Kind: mark.KindPoint, Intensity: 60},
	}
	if err := s.Replace(bad); !errors.Is(err, mark.ErrInvalid) {
		t.Fatalf("Replace: %v", err)
	}
	if s.Len() != 1 || s.Snapshot()[0].Text != "keep" {
		t.Fatal("failed Replace mutated the set")
	}
}

func TestSummary(t *testing.T) {
	s := mark.NewSet("id")
	s.Append(mark.NewPoint(pointLocator(), 60))
	s.Append(mark.NewPoint(pointLocator(), 60))
	s.Append(mark.NewRegion(mark.Region{X: 0, Y: 0, Width: 10, Height: 10}, 60))
	s.Append(mark.NewText(nil, "t", 60))

	got := s.Summary()
	want := mark.Summary{PointMarks: 2, RegionMarks: 1, TextMarks: 1, Total: 4}
	if got != want {
		t.Fatalf("summary = %+v", got)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	in := []*mark.Mark{
		mark.NewPoint(pointLocator(), 75),
		mark.NewRegion(mark.Region{X: 50, Y: 50, Width: 100, Height: 100}, 60),
		mark.NewText(nil, "twelve chars", 60),
	}
	data, err := mark.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := mark.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if !mark.EqualSets(in, out) {
		t.Fatal("round trip lost marks")
	}
	if out[0].Locator.String() != in[0].Locator.String() {
		t.Fatalf("locator degraded: %s vs %s", out[0].Locator, in[0].Locator)
	}
	if out[1].Region == nil || !out[1].Region.Equal(*in[1].Region) {
		t.Fatal("region degraded")
	}
}

func TestUnmarshalRejectsInvalidEntry(t *testing.T) {
	payload := []byte(`[{"id":"mk_x","kind":"region","intensity":60}]`)
	if _, err := mark.Unmarshal(payload); !errors.Is(err, mark.ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
	if _, err := mark.Unmarshal([]byte(`{`)); err == nil {
		t.Fatal("syntax error accepted")
	}
}

func TestEqualSetsOrderInsensitive(t *testing.T) {
	a := mark.NewText(nil, "a", 60)
	b := mark.NewText(nil, "b", 60)
	if !mark.EqualSets([]*mark.Mark{a, b}, []*mark.Mark{b, a}) {
		t.Fatal("order should not matter")
	}
	if mark.EqualSets([]*mark.Mark{a}, []*mark.Mark{b}) {
		t.Fatal("different sets reported equal")
	}
}
