package geometry

import "math"

// PolygonArea computes the unsigned area of a closed polygon using the
// shoelace formula. Vertices may wind in either direction. Polygons with
// fewer than 3 vertices have zero area.
func PolygonArea(points []Point2D) float64 {
	return math.Abs(polygonSignedArea(points))
}

// polygonSignedArea returns the signed shoelace area: positive for
// counter-clockwise winding in a y-down coordinate system.
func polygonSignedArea(points []Point2D) float64 {
	if len(points) < 3 {
		return 0
	}
	var sum float64
	n := len(points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return sum / 2
}

// PolygonPerimeter computes the perimeter of a closed polygon, including
// the closing edge from the last vertex back to the first.
func PolygonPerimeter(points []Point2D) float64 {
	if len(points) < 2 {
		return 0
	}
	var sum float64
	n := len(points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += points[i].Distance(points[j])
	}
	return sum
}

// PolygonCentroid computes the area-weighted centroid of a closed polygon.
// For degenerate polygons (fewer than 3 vertices, or collinear vertices
// enclosing no area) it falls back to the vertex mean.
func PolygonCentroid(points []Point2D) Point2D {
	if len(points) < 3 {
		return Centroid(points)
	}
	signed := polygonSignedArea(points)
	if math.Abs(signed) < 1e-9 {
		return Centroid(points)
	}
	var cx, cy float64
	n := len(points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := points[i].X*points[j].Y - points[j].X*points[i].Y
		cx += (points[i].X + points[j].X) * cross
		cy += (points[i].Y + points[j].Y) * cross
	}
	f := 1.0 / (6.0 * signed)
	return Point2D{X: cx * f, Y: cy * f}
}

// PointInPolygon tests whether a point lies inside a polygon using
// ray casting. Points exactly on an edge may report either way.
func PointInPolygon(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)
	j := n - 1

	for i := 0; i < n; i++ {
		pi := polygon[i]
		pj := polygon[j]

		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
		j = i
	}

	return inside
}
