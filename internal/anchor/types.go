// Package anchor detects the L-shaped corner marks printed on each
// form page. The four marks define the correspondence between the
// scanned raster and the template's canonical page.
package anchor

import (
	"errors"

	"formscan/internal/template"
	"formscan/pkg/geometry"
)

// ErrAnchorNotFound reports that a corner's search window contained no
// admissible contour. Non-fatal: it reduces the anchor count for the
// page, and alignment decides what that means.
var ErrAnchorNotFound = errors.New("no anchor mark found in search window")

// Corner identifies one of the four page corners, in template order.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomRight
	BottomLeft
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomRight:
		return "bottom-right"
	case BottomLeft:
		return "bottom-left"
	default:
		return "unknown"
	}
}

// Short returns the two-letter corner tag used in overlays and logs.
func (c Corner) Short() string {
	switch c {
	case TopLeft:
		return "TL"
	case TopRight:
		return "TR"
	case BottomRight:
		return "BR"
	case BottomLeft:
		return "BL"
	default:
		return "??"
	}
}

// Corners lists all four corners in template order.
func Corners() [4]Corner {
	return [4]Corner{TopLeft, TopRight, BottomRight, BottomLeft}
}

// Spec describes where to look for one corner's mark on a particular
// page: the expected position already converted into that page's raw
// pixel space, and the half-extent of the square search window.
type Spec struct {
	Corner       Corner
	Expected     geometry.RawPixelPoint
	WindowHalfPx int
}

// SpecsForPage builds the four corner specs for a page of the given
// pixel size from the template's normalized anchor positions.
func SpecsForPage(tpl *template.Template, width, height, windowHalfPx int) []Spec {
	specs := make([]Spec, 0, len(tpl.AnchorsNorm))
	for i, a := range tpl.AnchorsNorm {
		specs = append(specs, Spec{
			Corner: Corner(i),
			Expected: geometry.RawPixelPoint{
				X: a.X * float64(width),
				Y: a.Y * float64(height),
			},
			WindowHalfPx: windowHalfPx,
		})
	}
	return specs
}

// Candidate is a detected anchor mark.
type Candidate struct {
	Corner        Corner                 `json:"corner"`
	Position      geometry.RawPixelPoint `json:"position"`
	Area          float64                `json:"area"`
	ShapeScore    float64                `json:"shape_score"`
	DistanceScore float64                `json:"distance_score"`
	Confidence    float64                `json:"confidence"`

	// DistancePx is the raw distance from the expected position,
	// kept for tie-breaking and diagnostics.
	DistancePx float64 `json:"distance_px"`
}

// betterThan ranks candidates deterministically: higher confidence
// wins, ties go to the candidate closer to the expected position, and
// exact ties fall back to scan order (top-most, then left-most). The
// fallback keeps repeated runs on identical input byte-stable.
func (c Candidate) betterThan(other Candidate) bool {
	if c.Confidence != other.Confidence {
		return c.Confidence > other.Confidence
	}
	if c.DistancePx != other.DistancePx {
		return c.DistancePx < other.DistancePx
	}
	if c.Position.Y != other.Position.Y {
		return c.Position.Y < other.Position.Y
	}
	return c.Position.X < other.Position.X
}

// Result holds one page's anchor detection outcome.
type Result struct {
	Found   []Candidate `json:"found"`             // in corner order, misses omitted
	Missing []Corner    `json:"missing,omitempty"` // corners with no admissible contour
}

// Count returns the number of corners that produced a candidate.
func (r Result) Count() int {
	return len(r.Found)
}
