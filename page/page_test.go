package page_test

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/page"
)

const sampleDoc = `<!DOCTYPE html>
<html><head><title>Quarterly Report</title></head>
<body>
  <div id="app" class="wrapper main">
    <h1 class="title">Numbers</h1>
    <p>First paragraph.</p>
    <p>Second <em>paragraph</em>.</p>
  </div>
</body></html>`

func mustParse(t *testing.T, src string) *page.Doc {
	t.Helper()
	d, err := page.ParseString(src, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func findByTag(t *testing.T, d *page.Doc, tag string) *html.Node {
	t.Helper()
	var found *html.Node
	page.Walk(d.Root, func(n *html.Node) bool {
		if found == nil && page.Tag(n) == tag {
			found = n
		}
		return true
	})
	if found == nil {
		t.Fatalf("no <%s> in fixture", tag)
	}
	return found
}

func TestParseAndTitle(t *testing.T) {
	d := mustParse(t, sampleDoc)
	if d.Title() != "Quarterly Report" {
		t.Fatalf("title = %q", d.Title())
	}
	if page.Tag(d.Body()) != "body" {
		t.Fatalf("body tag = %q", page.Tag(d.Body()))
	}
}

func TestAttrHelpers(t *testing.T) {
	d := mustParse(t, sampleDoc)
	div := findByTag(t, d, "div")

	if page.GetAttr(div, "id") != "app" {
		t.Fatalf("id = %q", page.GetAttr(div, "id"))
	}
	if !page.HasAttr(div, "class") {
		t.Fatal("class attr missing")
	}

	page.SetAttr(div, "data-x", "1")
	if page.GetAttr(div, "data-x") != "1" {
		t.Fatal("SetAttr did not add")
	}
	page.SetAttr(div, "data-x", "2")
	if page.GetAttr(div, "data-x") != "2" {
		t.Fatal("SetAttr did not replace")
	}
	page.RemoveAttr(div, "data-x")
	if page.HasAttr(div, "data-x") {
		t.Fatal("RemoveAttr did not remove")
	}
}

func TestClassHelpers(t *testing.T) {
	d := mustParse(t, sampleDoc)
	div := findByTag(t, d, "div")

	got := page.ClassList(div)
	if len(got) != 2 || got[0] != "wrapper" || got[1] != "main" {
		t.Fatalf("classes = %v", got)
	}
	if !page.HasClass(div, "main") {
		t.Fatal("HasClass(main) = false")
	}

	page.AddClass(div, "extra")
	if !page.HasClass(div, "extra") {
		t.Fatal("AddClass failed")
	}
	page.AddClass(div, "extra") // no duplicate
	if strings.Count(page.GetAttr(div, "class"), "extra") != 1 {
		t.Fatalf("duplicate class token: %q", page.GetAttr(div, "class"))
	}

	page.RemoveClass(div, "extra")
	if page.HasClass(div, "extra") {
		t.Fatal("RemoveClass failed")
	}

	page.RemoveClass(div, "wrapper")
	page.RemoveClass(div, "main")
	if page.HasAttr(div, "class") {
		t.Fatalf("class attr should be gone, got %q", page.GetAttr(div, "class"))
	}
}

func TestTextContent(t *testing.T) {
	d := mustParse(t, sampleDoc)
	var second *html.Node
	count := 0
	page.Walk(d.Root, func(n *html.Node) bool {
		if page.Tag(n) == "p" {
			count++
			if count == 2 {
				second = n
			}
		}
		return true
	})
	if got := page.TextContent(second); got != "Second paragraph." {
		t.Fatalf("text = %q", got)
	}
}

func TestWalkPrunes(t *testing.T) {
	d := mustParse(t, sampleDoc)
	sawP := false
	page.Walk(d.Root, func(n *html.Node) bool {
		if page.Tag(n) == "div" {
			return false
		}
		if page.Tag(n) == "p" {
			sawP = true
		}
		return true
	})
	if sawP {
		t.Fatal("walk descended into pruned subtree")
	}
}

func TestSyntheticDetection(t *testing.T) {
	d := mustParse(t, `<html><body><div data-bsh-wrap="1"><span>hidden</span></div><p>plain</p></body></html>`)
	span := findByTag(t, d, "span")
	p := findByTag(t, d, "p")

	if !page.InsideSynthetic(span) {
		t.Fatal("span inside wrap should be synthetic")
	}
	if page.InsideSynthetic(p) {
		t.Fatal("plain paragraph flagged synthetic")
	}
}

func TestIsBlock(t *testing.T) {
	d := mustParse(t, sampleDoc)
	if !page.IsBlock(findByTag(t, d, "p")) {
		t.Fatal("p should be block")
	}
	if page.IsBlock(findByTag(t, d, "em")) {
		t.Fatal("em should be inline")
	}
}

func TestFingerprintStableAndStructural(t *testing.T) {
	a := mustParse(t, sampleDoc)
	b := mustParse(t, strings.Replace(sampleDoc, "First paragraph.", "Different words.", 1))
	if page.Fingerprint(a.Root) != page.Fingerprint(b.Root) {
		t.Fatal("text change altered structural fingerprint")
	}

	c := mustParse(t, strings.Replace(sampleDoc, "<p>First paragraph.</p>", "<section><p>First paragraph.</p></section>", 1))
	if page.Fingerprint(a.Root) == page.Fingerprint(c.Root) {
		t.Fatal("structural change did not alter fingerprint")
	}
}

func TestSanitizerStripsScripts(t *testing.T) {
	s := page.NewSanitizer()
	dirty := `<div class="a" onclick="steal()"><script>evil()</script><p style="color:red" data-k="v">keep</p></div>`
	clean := s.Clean(dirty)

	if strings.Contains(clean, "script") || strings.Contains(clean, "onclick") {
		t.Fatalf("active content survived: %q", clean)
	}
	if !strings.Contains(clean, `class="a"`) || !strings.Contains(clean, "keep") {
		t.Fatalf("structure lost: %q", clean)
	}
	if !strings.Contains(clean, `data-k="v"`) {
		t.Fatalf("data attribute lost: %q", clean)
	}
}

func TestRenderRoundTrip(t *testing.T) {
	d := mustParse(t, sampleDoc)
	out, err := d.Render()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<h1 class=\"title\">Numbers</h1>") {
		t.Fatalf("render lost content: %s", out)
	}
}
