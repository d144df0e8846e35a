// Package colorutil provides shared color utilities for review overlays.
package colorutil

import (
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Common overlay colors used throughout the application.
var (
	Black     = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red       = color.RGBA{R: 220, G: 20, B: 60, A: 255}
	Yellow    = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	LimeGreen = color.RGBA{R: 50, G: 205, B: 50, A: 255}
	Orange    = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	Magenta   = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

// ConfidenceRamp maps a confidence value in [0, 1] onto a red-yellow-green
// ramp. Low confidence renders red, mid renders yellow, high renders
// green. Values outside [0, 1] are clamped. Blending happens in Lab
// space so the midpoints stay perceptually even.
func ConfidenceRamp(confidence float64) color.RGBA {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	low, _ := colorful.MakeColor(Red)
	mid, _ := colorful.MakeColor(Yellow)
	high, _ := colorful.MakeColor(LimeGreen)

	var c colorful.Color
	if confidence < 0.5 {
		c = low.BlendLab(mid, confidence*2)
	} else {
		c = mid.BlendLab(high, (confidence-0.5)*2)
	}

	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// WithAlpha returns the color with its alpha channel replaced.
func WithAlpha(c color.RGBA, a uint8) color.RGBA {
	c.A = a
	return c
}
