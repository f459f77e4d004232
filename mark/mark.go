// CLAUDE:SUMMARY Mark records and the ordered per-document mark set.
// Package mark defines the persisted record of one obscuring action and the
// ordered collection of such records for a document identity. These are pure
// data: no tree access, no I/O. Every consumer (effect, restore, persist,
// synchub) imports this package for the contract.
package mark

import (
	"errors"
	"fmt"
	"time"

	"github.com/bakharlabs/blurshield/idgen"
	"github.com/bakharlabs/blurshield/locator"
)

// Kind is the tagged variant of a mark.
type Kind string

const (
	// KindPoint obscures a single located node.
	KindPoint Kind = "point"
	// KindRegion obscures a document-relative rectangle via an overlay.
	KindRegion Kind = "region"
	// KindText obscures a literal run of text via an inline wrap.
	KindText Kind = "text"
)

// DefaultIntensity is the obscuring strength used when a gesture does not
// specify one.
const DefaultIntensity = 60

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("mark: invalid")

// Region is a document-relative rectangle. X/Y are offsets from the document
// origin, not the viewport, so the overlay survives scrolling.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Equal reports exact coordinate equality. Restoration uses it to detect an
// overlay that already exists for a region mark.
func (r Region) Equal(o Region) bool {
	return r.X == o.X && r.Y == o.Y && r.Width == o.Width && r.Height == o.Height
}

func (r Region) String() string {
	return fmt.Sprintf("(%g,%g)%gx%g", r.X, r.Y, r.Width, r.Height)
}

// Mark is the persisted record of one obscuring action. Kind determines which
// optional fields are populated: point and text marks carry a locator (text
// marks may lose theirs and survive on Text alone), region marks carry Region,
// text marks carry Text. No mark has both Region and Text.
type Mark struct {
	ID        string                  `json:"id"`
	Kind      Kind                    `json:"kind"`
	Locator   *locator.PathDescriptor `json:"locator,omitempty"`
	Region    *Region                 `json:"region,omitempty"`
	Text      string                  `json:"text,omitempty"`
	Intensity int                     `json:"intensity"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewPoint builds a point mark for a synthesized locator.
func NewPoint(d *locator.PathDescriptor, intensity int) *Mark {
	return &Mark{
		ID:        idgen.Mark(),
		Kind:      KindPoint,
		Locator:   d,
		Intensity: clampIntensity(intensity),
		CreatedAt: time.Now().UTC(),
	}
}

// NewRegion builds a region mark for a drawn rectangle.
func NewRegion(r Region, intensity int) *Mark {
	return &Mark{
		ID:        idgen.Mark(),
		Kind:      KindRegion,
		Region:    &r,
		Intensity: clampIntensity(intensity),
		CreatedAt: time.Now().UTC(),
	}
}

// NewText builds a text mark carrying the literal obscured run. The locator
// points at the synthetic wrap and is a fast path only; text is the durable
// signal.
func NewText(d *locator.PathDescriptor, text string, intensity int) *Mark {
	return &Mark{
		ID:        idgen.Mark(),
		Kind:      KindText,
		Locator:   d,
		Text:      text,
		Intensity: clampIntensity(intensity),
		CreatedAt: time.Now().UTC(),
	}
}

func clampIntensity(i int) int {
	if i <= 0 {
		return DefaultIntensity
	}
	if i > 100 {
		return 100
	}
	return i
}

// Validate enforces the kind/field invariant. Every codec path calls it
// before accepting a mark from outside the process.
func (m *Mark) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil mark", ErrInvalid)
	}
	if m.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalid)
	}
	if m.Intensity < 1 || m.Intensity > 100 {
		return fmt.Errorf("%w: intensity %d out of [1,100]", ErrInvalid, m.Intensity)
	}
	if m.Region != nil && m.Text != "" {
		return fmt.Errorf("%w: mark %s has both region and text", ErrInvalid, m.ID)
	}
	switch m.Kind {
	case KindPoint:
		if m.Locator.IsZero() {
			return fmt.Errorf("%w: point mark %s without locator", ErrInvalid, m.ID)
		}
		if m.Region != nil {
			return fmt.Errorf("%w: point mark %s with region", ErrInvalid, m.ID)
		}
	case KindRegion:
		if m.Region == nil {
			return fmt.Errorf("%w: region mark %s without region", ErrInvalid, m.ID)
		}
		r := m.Region
		if r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0 {
			return fmt.Errorf("%w: region mark %s has degenerate rect %s", ErrInvalid, m.ID, r)
		}
		if !m.Locator.IsZero() {
			return fmt.Errorf("%w: region mark %s with locator", ErrInvalid, m.ID)
		}
	case KindText:
		if m.Text == "" {
			return fmt.Errorf("%w: text mark %s without text", ErrInvalid, m.ID)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalid, m.Kind)
	}
	return nil
}

// Summary is the mark-count breakdown sent to the control surface.
type Summary struct {
	PointMarks  int `json:"point_marks"`
	RegionMarks int `json:"region_marks"`
	TextMarks   int `json:"text_marks"`
	Total       int `json:"total"`
}
