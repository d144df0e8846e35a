package review

import (
	"image"
	"image/color"

	"formscan/internal/checkbox"
	"formscan/pkg/geometry"

	"github.com/disintegration/imaging"
)

// MontageOptions sizes the checkbox contact sheet.
type MontageOptions struct {
	CellWidth  int
	CellHeight int
	Gap        int // white separator between cells
	Inset      int // pixels shaved off each region before cropping
}

// DefaultMontageOptions returns the stock contact sheet geometry.
func DefaultMontageOptions() MontageOptions {
	return MontageOptions{
		CellWidth:  120,
		CellHeight: 120,
		Gap:        6,
		Inset:      2,
	}
}

// Montage lays every checkbox crop of one aligned page out on a white
// contact sheet, cols cells per row in spec order. Reviewers scan the
// sheet instead of hunting boxes across the full page. Regions that
// fall outside the image leave their cell blank.
func Montage(img image.Image, specs []checkbox.Spec, cols int, opts MontageOptions) *image.NRGBA {
	if cols <= 0 {
		cols = 5
	}
	if opts.CellWidth <= 0 || opts.CellHeight <= 0 {
		def := DefaultMontageOptions()
		opts.CellWidth = def.CellWidth
		opts.CellHeight = def.CellHeight
	}

	rows := (len(specs) + cols - 1) / cols
	if rows == 0 {
		rows = 1
	}
	width := cols*opts.CellWidth + (cols+1)*opts.Gap
	height := rows*opts.CellHeight + (rows+1)*opts.Gap
	canvas := imaging.New(width, height, color.White)

	b := img.Bounds()
	bounds := geometry.RectInt{X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()}

	for i, spec := range specs {
		r := geometry.RectInt{
			X:      spec.Rect.X + opts.Inset,
			Y:      spec.Rect.Y + opts.Inset,
			Width:  spec.Rect.Width - 2*opts.Inset,
			Height: spec.Rect.Height - 2*opts.Inset,
		}.Clamp(bounds)
		if r.Empty() {
			continue
		}

		crop := imaging.Crop(img, image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height))
		cell := imaging.Resize(crop, opts.CellWidth, opts.CellHeight, imaging.Lanczos)

		col := i % cols
		row := i / cols
		x0 := opts.Gap + col*(opts.CellWidth+opts.Gap)
		y0 := opts.Gap + row*(opts.CellHeight+opts.Gap)
		canvas = imaging.Paste(canvas, cell, image.Pt(x0, y0))
	}
	return canvas
}
