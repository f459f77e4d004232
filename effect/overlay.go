package effect

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/page"
)

// Region marks never mutate underlying content: a rectangle has no single
// owning node, so the effect lives on a synthetic overlay appended to the
// body, absolutely positioned in document coordinates.

// regionKey encodes exact coordinates into the overlay attribute so an
// existing overlay for a region is detectable without parsing styles.
func regionKey(r mark.Region) string {
	return fmt.Sprintf("%g,%g,%g,%g", r.X, r.Y, r.Width, r.Height)
}

// ApplyRegion ensures an overlay exists for the region. Idempotent: an
// overlay at the exact coordinates is reused, its intensity refreshed.
func (a *Applier) ApplyRegion(body *html.Node, markID string, r mark.Region, intensity int) (*Applied, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: no body to attach overlay", ErrApplicationFailed)
	}
	ov := FindOverlay(body, r)
	if ov == nil {
		ov = &html.Node{Type: html.ElementNode, Data: "div"}
		page.SetAttr(ov, page.AttrOverlay, regionKey(r))
		body.AppendChild(ov)
	}
	page.SetAttr(ov, page.AttrMark, markID)
	page.SetAttr(ov, page.AttrIntensity, fmt.Sprintf("%d", intensity))
	page.SetAttr(ov, "style", overlayStyle(r, intensity))
	return &Applied{MarkID: markID, Intensity: intensity, Method: MethodWrap, Node: ov}, nil
}

func overlayStyle(r mark.Region, intensity int) string {
	return fmt.Sprintf(
		"position: absolute; left: %gpx; top: %gpx; width: %gpx; height: %gpx; "+
			"backdrop-filter: %s; pointer-events: none; z-index: 2147483646",
		r.X, r.Y, r.Width, r.Height, blurValue(intensity))
}

// FindOverlay returns the overlay for the exact region coordinates, or nil.
func FindOverlay(root *html.Node, r mark.Region) *html.Node {
	key := regionKey(r)
	var found *html.Node
	page.Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if page.IsElement(n) && page.GetAttr(n, page.AttrOverlay) == key {
			found = n
		}
		return true
	})
	return found
}

// RemoveRegion detaches the overlay for the region, if present.
func (a *Applier) RemoveRegion(root *html.Node, r mark.Region) bool {
	ov := FindOverlay(root, r)
	if ov == nil {
		return false
	}
	page.Detach(ov)
	return true
}
