package align

import (
	"fmt"
	"math"

	"formscan/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// FitAffineExact solves the unique affine transform mapping three
// source points onto three destination points.
func FitAffineExact(src, dst []geometry.Point2D) (geometry.AffineTransform, error) {
	if len(src) != 3 || len(dst) != 3 {
		return geometry.AffineTransform{}, fmt.Errorf("exact affine fit needs 3 point pairs, got %d/%d", len(src), len(dst))
	}

	// Six unknowns (a b tx c d ty), two equations per correspondence.
	A := mat.NewDense(6, 6, nil)
	B := mat.NewVecDense(6, nil)

	for i := 0; i < 3; i++ {
		A.Set(i*2, 0, src[i].X)
		A.Set(i*2, 1, src[i].Y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dst[i].X)

		A.Set(i*2+1, 3, src[i].X)
		A.Set(i*2+1, 4, src[i].Y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, dst[i].Y)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return geometry.AffineTransform{}, fmt.Errorf("degenerate anchor geometry: %w", err)
	}

	return geometry.AffineTransform{
		A: params.AtVec(0), B: params.AtVec(1), TX: params.AtVec(2),
		C: params.AtVec(3), D: params.AtVec(4), TY: params.AtVec(5),
	}, nil
}

// FitProjective computes the least-squares projective transform for
// four or more point correspondences, with the bottom-right matrix
// entry fixed at 1. Scan noise means four detected corners are never
// perfectly consistent, so the fit minimizes algebraic error over all
// of them instead of trusting any subset.
func FitProjective(src, dst []geometry.Point2D) (geometry.ProjectiveTransform, error) {
	if len(src) != len(dst) || len(src) < 4 {
		return geometry.ProjectiveTransform{}, fmt.Errorf("projective fit needs at least 4 point pairs, got %d/%d", len(src), len(dst))
	}

	// Eight unknowns h0..h7, two rows per correspondence:
	//   h0*x + h1*y + h2 - h6*x*u - h7*y*u = u
	//   h3*x + h4*y + h5 - h6*x*v - h7*y*v = v
	n := len(src)
	A := mat.NewDense(n*2, 8, nil)
	B := mat.NewVecDense(n*2, nil)

	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		A.Set(i*2, 6, -x*u)
		A.Set(i*2, 7, -y*u)
		B.SetVec(i*2, u)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		A.Set(i*2+1, 6, -x*v)
		A.Set(i*2+1, 7, -y*v)
		B.SetVec(i*2+1, v)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return geometry.ProjectiveTransform{}, fmt.Errorf("degenerate anchor geometry: %w", err)
	}

	var t geometry.ProjectiveTransform
	t.M[0] = [3]float64{params.AtVec(0), params.AtVec(1), params.AtVec(2)}
	t.M[1] = [3]float64{params.AtVec(3), params.AtVec(4), params.AtVec(5)}
	t.M[2] = [3]float64{params.AtVec(6), params.AtVec(7), 1}
	return t, nil
}

// Residuals maps each canonical anchor back through the inverse
// transform into raw pixel space and measures the distance to the
// detected position there. Measuring in the detected frame keeps the
// number comparable to the detector's own pixel error.
func Residuals(t geometry.ProjectiveTransform, detected []geometry.RawPixelPoint, canonical []geometry.CanonicalPoint) ([]float64, error) {
	if len(detected) != len(canonical) {
		return nil, fmt.Errorf("residuals need matched point lists, got %d/%d", len(detected), len(canonical))
	}
	inv, ok := t.Inverse()
	if !ok {
		return nil, fmt.Errorf("transform is not invertible")
	}

	out := make([]float64, len(detected))
	for i := range detected {
		back := canonical[i].MapToRaw(inv)
		out[i] = back.Point().Distance(detected[i].Point())
	}
	return out, nil
}

// MeanResidual averages per-anchor residuals. An empty list means
// nothing constrained the fit, which reads as infinitely bad.
func MeanResidual(residuals []float64) float64 {
	if len(residuals) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, r := range residuals {
		sum += r
	}
	return sum / float64(len(residuals))
}
