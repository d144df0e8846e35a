package align

import (
	"image"
	"image/color"

	"formscan/pkg/geometry"

	"gocv.io/x/gocv"
)

// WarpToCanonical resamples the raw page into the canonical raster of
// the given size. Regions the scan does not cover fill with white so
// downstream binarization reads them as blank paper.
func WarpToCanonical(src gocv.Mat, t geometry.ProjectiveTransform, width, height int) gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, t.M[r][c])
		}
	}

	dst := gocv.NewMat()
	gocv.WarpPerspectiveWithParams(src, &dst, m, image.Pt(width, height),
		gocv.InterpolationLinear, gocv.BorderConstant,
		color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return dst
}

// CropRect computes the canonical crop rectangle: the bounding box of
// the template's anchor positions, expanded outward by the physical
// margin, clamped to the canonical raster. Anchors mark the inner
// content boundary, so the margin always grows the box; shrinking it
// would cut real content.
func CropRect(anchors []geometry.CanonicalPoint, marginInches, dpi float64, bounds geometry.RectInt) geometry.RectInt {
	pts := make([]geometry.Point2D, len(anchors))
	for i, a := range anchors {
		pts[i] = a.Point()
	}

	marginPx := marginInches * dpi
	if marginPx < 0 {
		marginPx = 0
	}

	box := geometry.BoundingBox(pts).Inflate(marginPx)
	return box.OuterInt().Clamp(bounds)
}
