package geometry

import (
	"math"
)

// ProjectiveTransform represents a 3x3 planar projective transformation
// (homography) acting on homogeneous coordinates.
// [m00 m01 m02]
// [m10 m11 m12]
// [m20 m21 m22]
type ProjectiveTransform struct {
	M [3][3]float64
}

// IdentityProjective returns the identity projective transform.
func IdentityProjective() ProjectiveTransform {
	return ProjectiveTransform{M: [3][3]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}}
}

// FromAffineTransform lifts an affine transform into projective form
// with a unit bottom row.
func FromAffineTransform(t AffineTransform) ProjectiveTransform {
	return ProjectiveTransform{M: [3][3]float64{
		{t.A, t.B, t.TX},
		{t.C, t.D, t.TY},
		{0, 0, 1},
	}}
}

// Apply maps a point through the transform, dividing out the
// homogeneous coordinate. Points on the horizon (w near zero) map to
// infinity.
func (t ProjectiveTransform) Apply(p Point2D) Point2D {
	x := t.M[0][0]*p.X + t.M[0][1]*p.Y + t.M[0][2]
	y := t.M[1][0]*p.X + t.M[1][1]*p.Y + t.M[1][2]
	w := t.M[2][0]*p.X + t.M[2][1]*p.Y + t.M[2][2]
	return Point2D{X: x / w, Y: y / w}
}

// Inverse returns the inverse transform, if it exists.
func (t ProjectiveTransform) Inverse() (ProjectiveTransform, bool) {
	m := t.M

	// Cofactor expansion along the first row.
	c00 := m[1][1]*m[2][2] - m[1][2]*m[2][1]
	c01 := m[1][2]*m[2][0] - m[1][0]*m[2][2]
	c02 := m[1][0]*m[2][1] - m[1][1]*m[2][0]

	det := m[0][0]*c00 + m[0][1]*c01 + m[0][2]*c02
	if math.Abs(det) < 1e-12 {
		return ProjectiveTransform{}, false
	}

	invDet := 1.0 / det
	var inv ProjectiveTransform
	inv.M[0][0] = c00 * invDet
	inv.M[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * invDet
	inv.M[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * invDet
	inv.M[1][0] = c01 * invDet
	inv.M[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * invDet
	inv.M[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * invDet
	inv.M[2][0] = c02 * invDet
	inv.M[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * invDet
	inv.M[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * invDet
	return inv, true
}

// IsAffine reports whether the bottom row is (0, 0, 1) within tolerance,
// meaning the transform preserves parallel lines.
func (t ProjectiveTransform) IsAffine() bool {
	const eps = 1e-9
	return math.Abs(t.M[2][0]) < eps &&
		math.Abs(t.M[2][1]) < eps &&
		math.Abs(t.M[2][2]-1) < eps
}
