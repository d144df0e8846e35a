package align

import (
	"fmt"
	"image"

	"formscan/internal/anchor"
	"formscan/internal/page"
	"formscan/internal/template"
	"formscan/pkg/geometry"

	"gocv.io/x/gocv"
)

// Aligner warps scanned pages onto a template's canonical raster.
// Safe for concurrent use: it holds only read-only template data and
// options.
type Aligner struct {
	tpl  *template.Template
	opts Options
	crop geometry.RectInt
}

// New creates an aligner for the template. Residuals are measured in
// raw page pixels, so the ceilings in opts must already match the
// resolution of the pages this aligner will see; use Options.WithDPI
// for pages scanned away from the 300 DPI reference.
func New(tpl *template.Template, opts Options) *Aligner {
	a := &Aligner{tpl: tpl, opts: opts}
	a.crop = CropRect(tpl.AnchorsCanonical(), opts.MarginInches,
		tpl.PageSize.EffectiveDPI(), tpl.CanonicalBounds())
	return a
}

// Options returns the aligner's options.
func (a *Aligner) Options() Options {
	return a.opts
}

// Crop returns the canonical crop rectangle. It depends only on the
// template and margin, so every page of a run shares it.
func (a *Aligner) Crop() geometry.RectInt {
	return a.crop
}

// Align fits the page-to-canonical transform from detected anchors,
// gates it by reprojection residual, and produces the cropped
// canonical image.
//
// Per page: 0-2 anchors is a terminal failure with no output image;
// exactly 3 solves the affine transform exactly; 4 solves a
// least-squares projective fit. A fail-tier residual only aborts the
// page when StopOnFail is set; otherwise the page proceeds flagged.
func (a *Aligner) Align(raw gocv.Mat, anchors anchor.Result) (*Result, error) {
	found := anchors.Found
	if len(found) < 3 {
		return nil, fmt.Errorf("%d of %d anchors: %w", len(found), template.AnchorCount, ErrInsufficientAnchors)
	}

	detected := make([]geometry.RawPixelPoint, len(found))
	canonical := make([]geometry.CanonicalPoint, len(found))
	src := make([]geometry.Point2D, len(found))
	dst := make([]geometry.Point2D, len(found))
	for i, cand := range found {
		detected[i] = cand.Position
		canonical[i] = a.tpl.AnchorCanonical(int(cand.Corner))
		src[i] = detected[i].Point()
		dst[i] = canonical[i].Point()
	}

	var t geometry.ProjectiveTransform
	if len(found) == 3 {
		aff, err := FitAffineExact(src, dst)
		if err != nil {
			return nil, err
		}
		t = geometry.FromAffineTransform(aff)
	} else {
		var err error
		t, err = FitProjective(src, dst)
		if err != nil {
			return nil, err
		}
	}

	residuals, err := Residuals(t, detected, canonical)
	if err != nil {
		return nil, err
	}
	mean := MeanResidual(residuals)
	tier := ClassifyResidual(mean, a.opts.OKMaxPx, a.opts.WarnMaxPx)

	if tier == QualityFail && a.opts.StopOnFail {
		return nil, fmt.Errorf("mean residual %.2f px: %w", mean, ErrAlignmentQuality)
	}

	warped := WarpToCanonical(raw, t, a.tpl.PageSize.WidthPx, a.tpl.PageSize.HeightPx)
	defer warped.Close()

	crop := a.crop
	cropped := page.SubImage(warped, image.Rect(crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height))

	return &Result{
		Transform:    t,
		AnchorsUsed:  len(found),
		Residuals:    residuals,
		MeanResidual: mean,
		Tier:         tier,
		Crop:         crop,
		Image:        cropped,
	}, nil
}
