// Package checkbox measures and classifies checkbox regions on
// aligned, cropped page images.
package checkbox

import (
	"fmt"
	"image"
	"math"

	"formscan/internal/page"
	"formscan/pkg/geometry"

	"gocv.io/x/gocv"
)

// FeatureCount is the fixed length of a feature vector.
const FeatureCount = 7

// FeatureVector holds the measurements for one checkbox region, in a
// fixed order shared with trained model weights. The first three are
// fractions of the region area; counts and ratios stay raw.
type FeatureVector struct {
	FillRatio      float64 `json:"fill_ratio"`
	EdgeDensity    float64 `json:"edge_density"`
	StrokeLength   float64 `json:"stroke_length"`
	CornerCount    float64 `json:"corner_count"`
	ComponentCount float64 `json:"component_count"`
	HVRatio        float64 `json:"hv_ratio"`
	Variance       float64 `json:"variance"`
}

// Slice returns the features in model weight order.
func (fv FeatureVector) Slice() []float64 {
	return []float64{
		fv.FillRatio, fv.EdgeDensity, fv.StrokeLength, fv.CornerCount,
		fv.ComponentCount, fv.HVRatio, fv.Variance,
	}
}

// FeatureVectorFromSlice is the inverse of Slice.
func FeatureVectorFromSlice(vals []float64) (FeatureVector, error) {
	if len(vals) != FeatureCount {
		return FeatureVector{}, fmt.Errorf("feature vector needs %d values, got %d", FeatureCount, len(vals))
	}
	return FeatureVector{
		FillRatio:      vals[0],
		EdgeDensity:    vals[1],
		StrokeLength:   vals[2],
		CornerCount:    vals[3],
		ComponentCount: vals[4],
		HVRatio:        vals[5],
		Variance:       vals[6],
	}, nil
}

// FeatureNames lists the features in Slice order.
func FeatureNames() []string {
	return []string{
		"fill_ratio", "edge_density", "stroke_length", "corner_count",
		"component_count", "hv_ratio", "variance",
	}
}

// Extractor measures feature vectors from checkbox regions of a
// grayscale cropped page. Safe for concurrent use.
type Extractor struct {
	// MarginPx is inset from every region edge before measuring, so
	// the printed box border does not read as ink.
	MarginPx int
}

// NewExtractor returns an extractor with the default 2 px safety
// margin.
func NewExtractor() *Extractor {
	return &Extractor{MarginPx: 2}
}

// minROISide is the smallest usable region edge after margin inset.
// Regions thinner than the measurement kernels classify as degenerate.
const minROISide = 4

// Extract measures one region of a single-channel image. The second
// return is false when the region is degenerate: outside the image,
// or too small to measure once clamped and inset. Degenerate regions
// yield a zero vector rather than an error, so one corrupt region
// never aborts a page.
func (e *Extractor) Extract(gray gocv.Mat, rect geometry.RectInt) (FeatureVector, bool) {
	bounds := geometry.RectInt{Width: gray.Cols(), Height: gray.Rows()}
	inner := geometry.RectInt{
		X:      rect.X + e.MarginPx,
		Y:      rect.Y + e.MarginPx,
		Width:  rect.Width - 2*e.MarginPx,
		Height: rect.Height - 2*e.MarginPx,
	}.Clamp(bounds)
	if inner.Width < minROISide || inner.Height < minROISide {
		return FeatureVector{}, false
	}

	crop := page.SubImage(gray, image.Rect(inner.X, inner.Y, inner.X+inner.Width, inner.Y+inner.Height))
	defer crop.Close()

	area := float64(inner.Width * inner.Height)
	var fv FeatureVector

	// Ink mask: Otsu splits ink from paper per region, so shading and
	// print density do not need a tuned constant.
	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(crop, &binary, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)
	fv.FillRatio = float64(gocv.CountNonZero(binary)) / area

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(crop, &edges, 50, 150)
	fv.EdgeDensity = float64(gocv.CountNonZero(edges)) / area

	// Morphological gradient of the ink mask traces stroke outlines,
	// approximating total stroke length.
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(2, 2))
	defer kernel.Close()
	grad := gocv.NewMat()
	defer grad.Close()
	gocv.MorphologyEx(binary, &grad, gocv.MorphGradient, kernel)
	fv.StrokeLength = float64(gocv.CountNonZero(grad)) / area

	fv.CornerCount = float64(countHarrisCorners(crop))

	labels := gocv.NewMat()
	defer labels.Close()
	// Label count includes the background.
	fv.ComponentCount = float64(gocv.ConnectedComponents(binary, &labels) - 1)

	fv.HVRatio = gradientRatio(crop)
	fv.Variance = intensityVariance(crop)

	return fv, true
}

// countHarrisCorners counts Harris responses above 1% of the peak
// response. A flat region has no positive peak and counts zero.
func countHarrisCorners(crop gocv.Mat) int {
	f32 := gocv.NewMat()
	defer f32.Close()
	crop.ConvertTo(&f32, gocv.MatTypeCV32F)

	resp := gocv.NewMat()
	defer resp.Close()
	gocv.CornerHarris(f32, &resp, 2, 3, 0.04)

	_, maxVal, _, _ := gocv.MinMaxLoc(resp)
	if maxVal <= 0 {
		return 0
	}

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(resp, &mask, 0.01*maxVal, 1, gocv.ThresholdBinary)
	return gocv.CountNonZero(mask)
}

// gradientRatio compares horizontal to vertical gradient energy.
// Values above 1 mean predominantly vertical strokes.
func gradientRatio(crop gocv.Mat) float64 {
	sx := gocv.NewMat()
	defer sx.Close()
	gocv.Sobel(crop, &sx, gocv.MatTypeCV64F, 1, 0, 3, 1, 0, gocv.BorderDefault)

	sy := gocv.NewMat()
	defer sy.Close()
	gocv.Sobel(crop, &sy, gocv.MatTypeCV64F, 0, 1, 3, 1, 0, gocv.BorderDefault)

	return absSum(sx) / (absSum(sy) + 1e-6)
}

func absSum(m gocv.Mat) float64 {
	data, err := m.DataPtrFloat64()
	if err != nil {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += math.Abs(v)
	}
	return sum
}

// intensityVariance is the population variance of raw intensities on
// the 0-255 scale.
func intensityVariance(crop gocv.Mat) float64 {
	meanMat := gocv.NewMat()
	defer meanMat.Close()
	stdMat := gocv.NewMat()
	defer stdMat.Close()
	gocv.MeanStdDev(crop, &meanMat, &stdMat)
	std := stdMat.GetDoubleAt(0, 0)
	return std * std
}
