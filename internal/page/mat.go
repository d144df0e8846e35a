package page

import (
	"image"

	"gocv.io/x/gocv"
)

// ToMat converts a decoded image into a 3-channel BGR matrix for
// OpenCV processing. The caller owns the returned Mat and must Close it.
func ToMat(img image.Image) gocv.Mat {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			mat.SetUCharAt(y, x*3+0, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}
	return mat
}

// Mat converts the page image to a BGR matrix. The caller owns the
// returned Mat.
func (p *Page) Mat() gocv.Mat {
	return ToMat(p.Image)
}

// Gray converts a matrix to single-channel grayscale. Single-channel
// inputs are cloned unchanged. The caller owns the returned Mat.
func Gray(m gocv.Mat) gocv.Mat {
	if m.Channels() == 1 {
		return m.Clone()
	}
	gray := gocv.NewMat()
	gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
	return gray
}

// FusedGray converts a matrix to grayscale and darkens it with the
// blue channel, taking the per-pixel minimum of the two. Blue ink
// photographs bright in plain grayscale; the fusion keeps pen marks
// as dark as pencil ones. Single-channel inputs are cloned unchanged.
// The caller owns the returned Mat.
func FusedGray(m gocv.Mat) gocv.Mat {
	gray := Gray(m)
	if m.Channels() < 3 {
		return gray
	}

	channels := gocv.Split(m)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()

	fused := gocv.NewMat()
	gocv.Min(gray, channels[0], &fused)
	gray.Close()
	return fused
}

// SubImage returns the region of a matrix described by an integer
// rectangle, as an owned copy independent of the source. An empty
// rectangle yields an empty Mat.
func SubImage(m gocv.Mat, r image.Rectangle) gocv.Mat {
	if r.Empty() {
		return gocv.NewMat()
	}
	region := m.Region(r)
	defer region.Close()
	return region.Clone()
}
