package anchor

// DetectionParams controls anchor mark detection. The pixel-denominated
// defaults are tuned for 300 DPI letter pages; use WithDPI for other
// resolutions.
type DetectionParams struct {
	// Search window
	WindowHalfPx int // half-extent of the square window around the expected position

	// Contour area band, in pixels squared. Contours below the floor
	// are scanner noise; contours above the ceiling are headers, text
	// blocks, or fold shadows rather than corner marks.
	MinAreaPx float64
	MaxAreaPx float64

	// Confidence weighting between shape and proximity. The two
	// weights should sum to 1.
	ShapeWeight    float64
	DistanceWeight float64

	// Preprocessing
	BlurKernel int // Gaussian kernel size before binarization, odd
}

// DefaultParams returns detection parameters for 300 DPI pages.
func DefaultParams() DetectionParams {
	return DetectionParams{
		WindowHalfPx:   80,
		MinAreaPx:      10,
		MaxAreaPx:      5000,
		ShapeWeight:    0.6,
		DistanceWeight: 0.4,
		BlurKernel:     5,
	}
}

// WithDPI returns a copy with pixel-denominated parameters scaled from
// the 300 DPI reference to the given resolution. Linear quantities
// scale with dpi, areas with dpi squared.
func (p DetectionParams) WithDPI(dpi float64) DetectionParams {
	if dpi <= 0 || dpi == 300 {
		return p
	}
	scale := dpi / 300.0

	out := p
	out.WindowHalfPx = int(float64(p.WindowHalfPx)*scale + 0.5)
	if out.WindowHalfPx < 8 {
		out.WindowHalfPx = 8
	}
	out.MinAreaPx = p.MinAreaPx * scale * scale
	out.MaxAreaPx = p.MaxAreaPx * scale * scale
	return out
}
