package anchor

import (
	"fmt"
	"image"
	"sync"

	"formscan/pkg/geometry"

	"gocv.io/x/gocv"
)

// Detector finds corner anchor marks in grayscale page images.
type Detector struct {
	params DetectionParams
}

// NewDetector creates a detector with the given parameters.
func NewDetector(params DetectionParams) *Detector {
	return &Detector{params: params}
}

// Params returns the detector's parameters.
func (d *Detector) Params() DetectionParams {
	return d.params
}

// Find searches one corner's window for the best anchor candidate. The
// input must be a single-channel grayscale image. Returns
// ErrAnchorNotFound when no contour inside the window passes the area
// band.
func (d *Detector) Find(gray gocv.Mat, spec Spec) (Candidate, error) {
	w := gray.Cols()
	h := gray.Rows()

	half := spec.WindowHalfPx
	if half <= 0 {
		half = d.params.WindowHalfPx
	}

	ax := int(spec.Expected.X)
	ay := int(spec.Expected.Y)

	x0 := ax - half
	y0 := ay - half
	x1 := ax + half
	y1 := ay + half
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > w {
		x1 = w
	}
	if y1 > h {
		y1 = h
	}
	if x1 <= x0 || y1 <= y0 {
		return Candidate{}, fmt.Errorf("%s window outside image: %w", spec.Corner, ErrAnchorNotFound)
	}

	roi := gray.Region(image.Rect(x0, y0, x1, y1))
	defer roi.Close()

	blur := gocv.NewMat()
	defer blur.Close()
	k := d.params.BlurKernel
	if k < 1 {
		k = 1
	}
	if k%2 == 0 {
		k++
	}
	gocv.GaussianBlur(roi, &blur, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	// Otsu picks the ink/paper split per window, which rides out
	// uneven page lighting.
	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(blur, &binary, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var best Candidate
	found := false

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)

		area := gocv.ContourArea(contour)
		if area < d.params.MinAreaPx || area > d.params.MaxAreaPx {
			continue
		}

		perimeter := gocv.ArcLength(contour, true)
		compactness, ok := Compactness(area, perimeter)
		if !ok {
			continue
		}

		centroid := contourCentroid(contour)
		pos := geometry.RawPixelPoint{
			X: float64(x0) + centroid.X,
			Y: float64(y0) + centroid.Y,
		}

		dist := pos.Point().Distance(spec.Expected.Point())
		shape := shapeScore(compactness)
		prox := distanceScore(dist, float64(half))

		cand := Candidate{
			Corner:        spec.Corner,
			Position:      pos,
			Area:          area,
			ShapeScore:    shape,
			DistanceScore: prox,
			Confidence:    clamp01(d.params.ShapeWeight*shape + d.params.DistanceWeight*prox),
			DistancePx:    dist,
		}

		if !found || cand.betterThan(best) {
			best = cand
			found = true
		}
	}

	if !found {
		return Candidate{}, fmt.Errorf("%s: %w", spec.Corner, ErrAnchorNotFound)
	}
	return best, nil
}

// contourCentroid returns the area-weighted centroid of a contour,
// falling back to the vertex mean for degenerate outlines.
func contourCentroid(contour gocv.PointVector) geometry.Point2D {
	pts := contour.ToPoints()
	poly := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		poly[i] = geometry.Point2D{X: float64(p.X), Y: float64(p.Y)}
	}
	return geometry.PolygonCentroid(poly)
}

// FindAll detects all corners concurrently. Corner searches are
// independent reads of the shared image, so they fan out to goroutines
// and join before returning. Candidates come back in corner order.
func (d *Detector) FindAll(gray gocv.Mat, specs []Spec) Result {
	type slot struct {
		cand Candidate
		err  error
	}
	slots := make([]slot, len(specs))

	var wg sync.WaitGroup
	for i := range specs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			slots[idx].cand, slots[idx].err = d.Find(gray, specs[idx])
		}(i)
	}
	wg.Wait()

	var result Result
	for i, s := range slots {
		if s.err != nil {
			result.Missing = append(result.Missing, specs[i].Corner)
			continue
		}
		result.Found = append(result.Found, s.cand)
	}
	return result
}
