package export_test

import (
	"strings"
	"testing"

	"github.com/bakharlabs/blurshield/export"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/page"
)

const shieldedSrc = `<!DOCTYPE html>
<html><head><title>Quarterly Statement</title></head><body>
<h1>Statement</h1>
<p>Your balance is <span data-bsh-wrap="1" data-bsh-mark="mk-1" data-bsh-intensity="60" class="bsh-obscured">4417 2291</span> this month.</p>
<p data-bsh-mark="mk-2" data-bsh-intensity="60" class="bsh-obscured">Routing code QX-7781 stays private.</p>
<p>Public footer text.</p>
<div data-bsh-ui="1"><button>erase</button></div>
<div data-bsh-overlay="(8,16)120x40" data-bsh-mark="mk-3">overlay chrome</div>
</body></html>`

func exportDoc(t *testing.T) string {
	t.Helper()
	doc, err := page.ParseString(shieldedSrc, "https://bank.example/statement")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	set := mark.NewSet("https://bank.example/statement")
	rm := mark.NewRegion(mark.Region{X: 8, Y: 16, Width: 120, Height: 40}, 60)
	if err := set.Append(rm); err != nil {
		t.Fatalf("append: %v", err)
	}

	md, err := export.New(nil).Markdown(doc, set)
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	return md
}

func TestMarkdownMasksObscuredText(t *testing.T) {
	md := exportDoc(t)

	for _, leaked := range []string{"4417", "2291", "QX-7781", "Routing"} {
		if strings.Contains(md, leaked) {
			t.Errorf("export leaks obscured text %q:\n%s", leaked, md)
		}
	}
	if !strings.Contains(md, "████ ████") {
		t.Errorf("masked run missing:\n%s", md)
	}
	if !strings.Contains(md, "Your balance is") || !strings.Contains(md, "Public footer text.") {
		t.Errorf("unmarked text mangled:\n%s", md)
	}
}

func TestMarkdownIncludesTitleAndRegionSummary(t *testing.T) {
	md := exportDoc(t)

	if !strings.HasPrefix(md, "# Quarterly Statement") {
		t.Errorf("title heading missing:\n%s", md)
	}
	if !strings.Contains(md, "Obscured regions:") || !strings.Contains(md, "- 120x40 at (8, 16)") {
		t.Errorf("region summary missing:\n%s", md)
	}
}

func TestMarkdownDropsControlSurface(t *testing.T) {
	md := exportDoc(t)

	for _, chrome := range []string{"erase", "overlay chrome"} {
		if strings.Contains(md, chrome) {
			t.Errorf("control surface leaked %q:\n%s", chrome, md)
		}
	}
}

func TestMarkdownNoRegions(t *testing.T) {
	doc, err := page.ParseString(`<html><head></head><body><p>plain</p></body></html>`, "https://a.example/x")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	md, err := export.New(nil).Markdown(doc, nil)
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if strings.Contains(md, "Obscured regions") {
		t.Errorf("empty summary rendered:\n%s", md)
	}
	if !strings.Contains(md, "plain") {
		t.Errorf("content missing:\n%s", md)
	}
}
