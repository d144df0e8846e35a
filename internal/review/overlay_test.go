package review

import (
	"image"
	"image/color"
	"testing"

	"formscan/internal/checkbox"
	"formscan/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func whiteMat(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), rows, cols, gocv.MatTypeCV8UC1)
}

// bgrAt reads one pixel of a 3-channel Mat.
func bgrAt(m gocv.Mat, x, y int) (b, g, r uint8) {
	return m.GetUCharAt(y, x*3), m.GetUCharAt(y, x*3+1), m.GetUCharAt(y, x*3+2)
}

func hasGreenPixel(m gocv.Mat, x0, x1, y int) bool {
	for x := x0; x <= x1; x++ {
		b, g, r := bgrAt(m, x, y)
		if g > 150 && r < 100 && b < 100 {
			return true
		}
	}
	return false
}

func hasOrangePixel(m gocv.Mat, x0, x1, y int) bool {
	for x := x0; x <= x1; x++ {
		b, g, r := bgrAt(m, x, y)
		if r > 200 && g > 120 && g < 200 && b < 80 {
			return true
		}
	}
	return false
}

func TestOverlayDrawsDecisions(t *testing.T) {
	img := whiteMat(160, 220)
	defer img.Close()

	specs := []checkbox.Spec{
		{ID: "Q1_1", Group: "Q1", Rect: geometry.RectInt{X: 40, Y: 40, Width: 30, Height: 20}},
		{ID: "Q1_2", Group: "Q1", Rect: geometry.RectInt{X: 120, Y: 40, Width: 30, Height: 20}},
	}
	results := []checkbox.Result{
		{ID: "Q1_1", Group: "Q1", Marked: true, Score: 0.62},
		{ID: "Q1_2", Group: "Q1", Score: 0.01},
	}
	cutoff := func(string) float64 { return 0.115 }

	canvas := Overlay(img, specs, results, cutoff, DefaultStyle())
	defer canvas.Close()

	assert.Equal(t, 3, canvas.Channels())
	assert.Equal(t, img.Rows(), canvas.Rows())
	assert.Equal(t, img.Cols(), canvas.Cols())

	assert.True(t, hasGreenPixel(canvas, 38, 72, 40), "marked box border should be lime green")
	assert.True(t, hasOrangePixel(canvas, 118, 152, 40), "unmarked box border should be orange")

	// Box interiors stay untouched.
	b, g, r := bgrAt(canvas, 55, 50)
	assert.Equal(t, uint8(255), b)
	assert.Equal(t, uint8(255), g)
	assert.Equal(t, uint8(255), r)
}

func TestOverlayDegenerateBox(t *testing.T) {
	img := whiteMat(120, 120)
	defer img.Close()

	specs := []checkbox.Spec{
		{ID: "edge", Group: "edge", Rect: geometry.RectInt{X: 50, Y: 50, Width: 24, Height: 24}},
	}
	results := []checkbox.Result{{ID: "edge", Group: "edge", Degenerate: true}}

	canvas := Overlay(img, specs, results, func(string) float64 { return 0.115 }, DefaultStyle())
	defer canvas.Close()

	// Magenta outline, no score label.
	found := false
	for x := 48; x <= 76 && !found; x++ {
		b, g, r := bgrAt(canvas, x, 50)
		found = r > 200 && b > 200 && g < 80
	}
	assert.True(t, found, "degenerate box should be outlined in magenta")
}

func TestOverlayAcceptsColorInput(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 80, 80, gocv.MatTypeCV8UC3)
	defer img.Close()

	canvas := Overlay(img, nil, nil, func(string) float64 { return 0.5 }, DefaultStyle())
	defer canvas.Close()
	assert.Equal(t, 3, canvas.Channels())
}

func testSheet(w, h int, dark image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			if image.Pt(x, y).In(dark) {
				c = color.NRGBA{A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestThumbnailScalesWithContext(t *testing.T) {
	img := testSheet(100, 100, image.Rect(40, 40, 60, 60))

	thumb := Thumbnail(img, geometry.RectInt{X: 40, Y: 40, Width: 20, Height: 20}, 5, 60)
	require.Equal(t, 60, thumb.Bounds().Dx())
	require.Equal(t, 60, thumb.Bounds().Dy())

	r, g, b, _ := thumb.At(30, 30).RGBA()
	assert.Less(t, int(r>>8)+int(g>>8)+int(b>>8), 150, "center should keep the ink dark")

	r, g, b, _ = thumb.At(2, 2).RGBA()
	assert.Greater(t, int(r>>8)+int(g>>8)+int(b>>8), 600, "padding context should stay white")
}

func TestThumbnailClampsAtEdges(t *testing.T) {
	img := testSheet(50, 50, image.Rectangle{})
	thumb := Thumbnail(img, geometry.RectInt{X: 0, Y: 0, Width: 10, Height: 10}, 20, 40)
	assert.Equal(t, 40, thumb.Bounds().Dx())
}

func TestMontageLayout(t *testing.T) {
	img := testSheet(300, 300, image.Rect(10, 10, 44, 44))
	specs := []checkbox.Spec{
		{ID: "Q1_1", Rect: geometry.RectInt{X: 8, Y: 8, Width: 38, Height: 38}},
		{ID: "Q1_2", Rect: geometry.RectInt{X: 100, Y: 8, Width: 38, Height: 38}},
		{ID: "Q2_1", Rect: geometry.RectInt{X: 8, Y: 100, Width: 38, Height: 38}},
		{ID: "Q2_2", Rect: geometry.RectInt{X: 100, Y: 100, Width: 38, Height: 38}},
	}

	sheet := Montage(img, specs, 2, DefaultMontageOptions())

	// Two columns, two rows, 120px cells with 6px gaps all around.
	assert.Equal(t, 2*120+3*6, sheet.Bounds().Dx())
	assert.Equal(t, 2*120+3*6, sheet.Bounds().Dy())

	r, g, b, _ := sheet.At(66, 66).RGBA()
	assert.Less(t, int(r>>8)+int(g>>8)+int(b>>8), 400, "first cell holds the inked crop")

	r, g, b, _ = sheet.At(192, 66).RGBA()
	assert.Greater(t, int(r>>8)+int(g>>8)+int(b>>8), 700, "second cell crop is blank paper")

	r, g, b, _ = sheet.At(129, 66).RGBA()
	assert.Greater(t, int(r>>8)+int(g>>8)+int(b>>8), 700, "gap between cells stays white")
}

func TestMontageSkipsRegionsOutsideImage(t *testing.T) {
	img := testSheet(60, 60, image.Rectangle{})
	specs := []checkbox.Spec{
		{ID: "offpage", Rect: geometry.RectInt{X: -40, Y: -40, Width: 20, Height: 20}},
	}
	sheet := Montage(img, specs, 1, DefaultMontageOptions())
	assert.Equal(t, 120+2*6, sheet.Bounds().Dx())
}
