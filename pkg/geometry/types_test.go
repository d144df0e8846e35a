package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectInflateGrowsOutward(t *testing.T) {
	r := NewRect(100, 200, 50, 80)
	out := r.Inflate(10)

	assert.Equal(t, 90.0, out.X)
	assert.Equal(t, 190.0, out.Y)
	assert.Equal(t, 70.0, out.Width)
	assert.Equal(t, 100.0, out.Height)

	// Every point of the original stays inside the inflated rect.
	assert.True(t, out.Contains(r.TopLeft()))
	assert.True(t, out.Contains(r.BottomRight()))
}

func TestRectInflateNegativeCollapses(t *testing.T) {
	r := NewRect(0, 0, 10, 10)
	out := r.Inflate(-20)
	assert.Equal(t, 0.0, out.Width)
	assert.Equal(t, 0.0, out.Height)
	assert.Equal(t, 5.0, out.X)
	assert.Equal(t, 5.0, out.Y)
}

func TestRectIntersect(t *testing.T) {
	a := NewRect(0, 0, 100, 100)
	b := NewRect(50, 50, 100, 100)
	got := a.Intersect(b)
	assert.Equal(t, NewRect(50, 50, 50, 50), got)

	// Disjoint rectangles intersect to nothing.
	c := NewRect(500, 500, 10, 10)
	assert.Equal(t, Rect{}, a.Intersect(c))
}

func TestRectOuterInt(t *testing.T) {
	r := NewRect(10.3, 20.7, 5.1, 4.2)
	got := r.OuterInt()
	assert.Equal(t, 10, got.X)
	assert.Equal(t, 20, got.Y)
	// Far edge at (15.4, 24.9) rounds up to (16, 25).
	assert.Equal(t, 6, got.Width)
	assert.Equal(t, 5, got.Height)
}

func TestRectIntClamp(t *testing.T) {
	bounds := RectInt{X: 0, Y: 0, Width: 100, Height: 100}

	tests := []struct {
		name string
		in   RectInt
		want RectInt
	}{
		{"inside", RectInt{10, 10, 20, 20}, RectInt{10, 10, 20, 20}},
		{"hangs left and top", RectInt{-5, -8, 20, 20}, RectInt{0, 0, 15, 12}},
		{"hangs right and bottom", RectInt{90, 95, 30, 30}, RectInt{90, 95, 10, 5}},
		{"fully outside", RectInt{200, 200, 10, 10}, RectInt{100, 100, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Clamp(bounds))
		})
	}
}

func TestAffineInverseRoundTrip(t *testing.T) {
	tr := Translation(12, -7).Compose(Rotation(0.3)).Compose(Scale(1.2, 0.9))
	inv, ok := tr.Inverse()
	require.True(t, ok)

	p := NewPoint2D(123.4, 56.7)
	back := inv.Apply(tr.Apply(p))
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)
}

func TestAffineInverseSingular(t *testing.T) {
	degenerate := AffineTransform{A: 1, B: 2, C: 2, D: 4}
	_, ok := degenerate.Inverse()
	assert.False(t, ok)
}

func TestAffineMatrixRoundTrip(t *testing.T) {
	tr := AffineTransform{A: 1.1, B: 0.2, TX: 30, C: -0.1, D: 0.95, TY: -12}
	assert.Equal(t, tr, FromMatrix(tr.ToMatrix()))
}

func TestCentroidAndBoundingBox(t *testing.T) {
	pts := []Point2D{{0, 0}, {10, 0}, {10, 4}, {0, 4}}
	c := Centroid(pts)
	assert.InDelta(t, 5, c.X, 1e-12)
	assert.InDelta(t, 2, c.Y, 1e-12)

	bb := BoundingBox(pts)
	assert.Equal(t, NewRect(0, 0, 10, 4), bb)

	assert.Equal(t, Point2D{}, Centroid(nil))
	assert.Equal(t, Rect{}, BoundingBox(nil))
}

func TestRotationPreservesDistance(t *testing.T) {
	tr := Rotation(math.Pi / 3)
	a := NewPoint2D(3, 4)
	b := NewPoint2D(-1, 2)
	assert.InDelta(t, a.Distance(b), tr.Apply(a).Distance(tr.Apply(b)), 1e-9)
}
