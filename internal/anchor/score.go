package anchor

import (
	"math"

	"formscan/pkg/geometry"
)

// Compactness returns the isoperimetric ratio 4*pi*area/perimeter^2.
// A circle scores 1, a square pi/4, and elongated or concave shapes
// like the printed L-marks score well below that. Degenerate inputs
// (near-zero area or perimeter) are rejected rather than scored.
func Compactness(area, perimeter float64) (float64, bool) {
	if area < 1e-9 || perimeter < 1e-9 {
		return 0, false
	}
	return 4 * math.Pi * area / (perimeter * perimeter), true
}

// ContourCompactness computes the compactness of a closed contour
// given as ordered vertices.
func ContourCompactness(points []geometry.Point2D) (float64, bool) {
	return Compactness(geometry.PolygonArea(points), geometry.PolygonPerimeter(points))
}

// shapeScore converts compactness into a score where L-like marks rank
// high: the marks are thin and concave, so low compactness is the
// signature being rewarded.
func shapeScore(compactness float64) float64 {
	return clamp01(1 - compactness)
}

// distanceScore rewards candidates near the expected position,
// falling linearly to zero at the window edge.
func distanceScore(distance, windowHalf float64) float64 {
	if windowHalf <= 0 {
		return 0
	}
	return clamp01(1 - distance/windowHalf)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
