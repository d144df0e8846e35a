// Package align computes the transform between a scanned page and its
// template's canonical raster, gates the result by reprojection
// residual, and produces the cropped canonical image the checkbox
// stages consume.
package align

import (
	"errors"

	"formscan/pkg/geometry"

	"gocv.io/x/gocv"
)

var (
	// ErrInsufficientAnchors means fewer than 3 anchors were detected.
	// The page cannot be aligned and no checkbox classification is
	// attempted for it.
	ErrInsufficientAnchors = errors.New("fewer than 3 anchors detected")

	// ErrAlignmentQuality means a transform was computed but its mean
	// residual landed in the fail tier and the caller asked for hard
	// failure instead of opportunistic processing.
	ErrAlignmentQuality = errors.New("alignment residual exceeds fail threshold")
)

// Quality is the alignment quality tier.
type Quality int

const (
	QualityOK Quality = iota
	QualityWarn
	QualityFail
)

func (q Quality) String() string {
	switch q {
	case QualityOK:
		return "ok"
	case QualityWarn:
		return "warn"
	case QualityFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ClassifyResidual maps a mean residual onto the quality tiers. The
// tier is monotone in the residual: anything at or below okMax is ok,
// at or below warnMax is warn, above that fail.
func ClassifyResidual(meanResidual, okMax, warnMax float64) Quality {
	switch {
	case meanResidual <= okMax:
		return QualityOK
	case meanResidual <= warnMax:
		return QualityWarn
	default:
		return QualityFail
	}
}

// Options configures page alignment. Residual ceilings are in pixels
// at the 300 DPI reference resolution; WithDPI rescales them.
type Options struct {
	OKMaxPx      float64 // mean residual ceiling for the ok tier
	WarnMaxPx    float64 // mean residual ceiling for the warn tier
	MarginInches float64 // outward crop margin beyond the anchor bounding box
	StopOnFail   bool    // treat fail-tier alignment as a hard page failure
}

// DefaultOptions returns the standard alignment gates.
func DefaultOptions() Options {
	return Options{
		OKMaxPx:      4.5,
		WarnMaxPx:    6.0,
		MarginInches: 0.125,
	}
}

// WithDPI returns a copy with the residual ceilings scaled from the
// 300 DPI reference to the given resolution. The physical margin is
// resolution-independent and stays put.
func (o Options) WithDPI(dpi float64) Options {
	if dpi <= 0 || dpi == 300 {
		return o
	}
	scale := dpi / 300.0

	out := o
	out.OKMaxPx = o.OKMaxPx * scale
	out.WarnMaxPx = o.WarnMaxPx * scale
	return out
}

// Result is the outcome of aligning one page.
type Result struct {
	Transform    geometry.ProjectiveTransform // raw page pixels to canonical pixels
	AnchorsUsed  int
	Residuals    []float64 // per-anchor, in raw pixel space, corner order of the used anchors
	MeanResidual float64
	Tier         Quality
	Crop         geometry.RectInt // crop rectangle in canonical pixels
	Image        gocv.Mat         // cropped canonical raster
}

// Close releases the cropped image. Safe to call on a nil result.
func (r *Result) Close() {
	if r == nil {
		return
	}
	r.Image.Close()
}
