package review

import (
	"fmt"
	"image"
	"image/color"

	"formscan/internal/checkbox"
	"formscan/pkg/colorutil"
	"formscan/pkg/geometry"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Style controls overlay rendering.
type Style struct {
	Checked            color.RGBA
	Unchecked          color.RGBA
	Degenerate         color.RGBA
	CheckedThickness   int
	UncheckedThickness int
	LabelScale         float64
}

// DefaultStyle renders checked boxes in heavy lime green and unchecked
// ones in lighter orange, with the score label tinted by how far the
// score sits from the decision threshold.
func DefaultStyle() Style {
	return Style{
		Checked:            colorutil.LimeGreen,
		Unchecked:          colorutil.Orange,
		Degenerate:         colorutil.Magenta,
		CheckedThickness:   3,
		UncheckedThickness: 2,
		LabelScale:         0.4,
	}
}

// Overlay draws every checkbox decision onto a copy of the aligned
// cropped page. The input may be grayscale or color; the returned BGR
// Mat is owned by the caller.
func Overlay(img gocv.Mat, specs []checkbox.Spec, results []checkbox.Result, cutoff func(group string) float64, style Style) gocv.Mat {
	var canvas gocv.Mat
	if img.Channels() == 1 {
		canvas = gocv.NewMat()
		gocv.CvtColor(img, &canvas, gocv.ColorGrayToBGR)
	} else {
		canvas = img.Clone()
	}

	byID := make(map[string]checkbox.Result, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}

	for _, spec := range specs {
		res, ok := byID[spec.ID]
		if !ok {
			continue
		}

		rect := image.Rect(spec.Rect.X, spec.Rect.Y,
			spec.Rect.X+spec.Rect.Width, spec.Rect.Y+spec.Rect.Height)

		boxColor := style.Unchecked
		thickness := style.UncheckedThickness
		switch {
		case res.Degenerate:
			boxColor = style.Degenerate
		case res.Marked:
			boxColor = style.Checked
			thickness = style.CheckedThickness
		}
		gocv.Rectangle(&canvas, rect, boxColor, thickness)

		if res.Degenerate {
			continue
		}
		label := fmt.Sprintf("%.1f%%", res.Score*100)
		org := image.Pt(spec.Rect.X-20, spec.Rect.Y-10)
		gocv.PutText(&canvas, label, org, gocv.FontHersheySimplex,
			style.LabelScale, labelColor(res.Score, cutoff(spec.Group)), 1)
	}
	return canvas
}

// labelColor tints the score label by decisiveness: green when the
// score is far from the threshold, through yellow down to red right on
// top of it.
func labelColor(score, threshold float64) color.RGBA {
	dist := score - threshold
	if dist < 0 {
		dist = -dist
	}
	return colorutil.ConfidenceRamp(dist / 0.10)
}

// Thumbnail cuts a checkbox region out of the aligned page with pad
// pixels of surrounding context and scales it to the given width for
// the review sheet.
func Thumbnail(img image.Image, rect geometry.RectInt, pad, width int) image.Image {
	b := img.Bounds()
	r := geometry.RectInt{
		X:      rect.X - pad,
		Y:      rect.Y - pad,
		Width:  rect.Width + 2*pad,
		Height: rect.Height + 2*pad,
	}.Clamp(geometry.RectInt{X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()})
	if r.Empty() {
		return imaging.New(width, width, color.White)
	}

	crop := imaging.Crop(img, image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height))
	return imaging.Resize(crop, width, 0, imaging.Lanczos)
}
