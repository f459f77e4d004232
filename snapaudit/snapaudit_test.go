package snapaudit_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bakharlabs/blurshield/grab"
	"github.com/bakharlabs/blurshield/locator"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/page"
	"github.com/bakharlabs/blurshield/snapaudit"
)

const auditPage = `<html><body><main>
<h1 id="title">Quarterly Report</h1>
<div class="content"><p class="lede">Revenue rose sharply.</p></div>
<p class="footer">Contact the desk.</p>
</main></body></html>`

func snapshotFor(t *testing.T, html string) *grab.Snapshot {
	t.Helper()
	identity, err := page.Identity("https://example.com/report")
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	sum := sha256.Sum256([]byte(html))
	return &grab.Snapshot{
		URL:      "https://example.com/report",
		Identity: identity,
		HTML:     []byte(html),
		SHA256:   hex.EncodeToString(sum[:]),
	}
}

func buildArchive(t *testing.T, snap *grab.Snapshot, marks []*mark.Mark) string {
	t.Helper()
	var buf bytes.Buffer
	w := grab.NewWriter(&buf)
	if err := w.Add(snap, marks); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	path := filepath.Join(t.TempDir(), "audit.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestAuditFallbackDepths(t *testing.T) {
	direct := mark.NewPoint(&locator.PathDescriptor{ID: "title"}, 60)
	relaxed := mark.NewPoint(&locator.PathDescriptor{Segments: []locator.Segment{
		{Tag: "section", Classes: []string{"gone"}},
		{Tag: "p", Classes: []string{"lede"}},
	}}, 60)
	relocated := &mark.Mark{
		ID: "mk_reloc", Kind: mark.KindPoint,
		Locator: &locator.PathDescriptor{ID: "missing"},
		Text:    "Contact the desk.", Intensity: 60,
	}
	literal := mark.NewText(nil, "rose sharply", 60)
	region := mark.NewRegion(mark.Region{X: 5, Y: 5, Width: 80, Height: 40}, 60)
	dead := mark.NewPoint(&locator.PathDescriptor{ID: "nope"}, 60)

	path := buildArchive(t, snapshotFor(t, auditPage),
		[]*mark.Mark{direct, relaxed, relocated, literal, region, dead})

	rep, err := snapaudit.New(snapaudit.Config{}).Audit(context.Background(), path)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}

	want := map[snapaudit.Method]int{
		snapaudit.MethodDirect:  1,
		snapaudit.MethodRelaxed: 1,
		snapaudit.MethodText:    2,
		snapaudit.MethodOverlay: 1,
		snapaudit.MethodDead:    1,
	}
	for m, n := range want {
		if rep.Totals[m] != n {
			t.Errorf("Totals[%s] = %d, want %d", m, rep.Totals[m], n)
		}
	}
	if rep.Resolved() != 5 || rep.Total() != 6 {
		t.Errorf("Resolved/Total = %d/%d, want 5/6", rep.Resolved(), rep.Total())
	}

	byID := map[string]snapaudit.Method{}
	for _, p := range rep.Pages {
		for _, m := range p.Marks {
			byID[m.MarkID] = m.Method
		}
	}
	if byID[direct.ID] != snapaudit.MethodDirect {
		t.Errorf("direct mark resolved via %s", byID[direct.ID])
	}
	if byID[relaxed.ID] != snapaudit.MethodRelaxed {
		t.Errorf("relaxed mark resolved via %s", byID[relaxed.ID])
	}
	if byID["mk_reloc"] != snapaudit.MethodText {
		t.Errorf("relocated mark resolved via %s", byID["mk_reloc"])
	}
	if byID[dead.ID] != snapaudit.MethodDead {
		t.Errorf("dead mark resolved via %s", byID[dead.ID])
	}
}

func TestAuditReportsUnloadablePage(t *testing.T) {
	snap := snapshotFor(t, auditPage)
	snap.SHA256 = strings.Repeat("0", 64)
	path := buildArchive(t, snap, []*mark.Mark{
		mark.NewPoint(&locator.PathDescriptor{ID: "title"}, 60),
	})

	rep, err := snapaudit.New(snapaudit.Config{}).Audit(context.Background(), path)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(rep.Pages) != 1 || rep.Pages[0].Err == "" {
		t.Fatalf("pages = %+v, want one entry with error", rep.Pages)
	}
	if rep.Total() != 0 {
		t.Errorf("marks probed on an unloadable page: %d", rep.Total())
	}
}

func TestWriteTextNamesDeadMarks(t *testing.T) {
	dead := mark.NewPoint(&locator.PathDescriptor{ID: "nope"}, 60)
	path := buildArchive(t, snapshotFor(t, auditPage), []*mark.Mark{dead})

	rep, err := snapaudit.New(snapaudit.Config{}).Audit(context.Background(), path)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	var out bytes.Buffer
	rep.WriteText(&out)
	if !strings.Contains(out.String(), dead.ID) {
		t.Errorf("report does not name the dead mark:\n%s", out.String())
	}
}
