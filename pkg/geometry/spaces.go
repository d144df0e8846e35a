package geometry

// The scanning pipeline works in three pixel coordinate frames:
//
//   - raw: the scanned input image, as it came off the scanner, with
//     whatever skew and offset the feeder introduced
//   - canonical: the idealized page after warping, where template
//     coordinates are defined
//   - cropped: the canonical page after the margin crop, which is what
//     feature extraction and overlays operate on
//
// Each frame gets its own point type so a location from one frame
// cannot be passed where another is expected without an explicit
// conversion.

// RawPixelPoint is a location in the original scanned image.
type RawPixelPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point returns the location as a frameless Point2D.
func (p RawPixelPoint) Point() Point2D {
	return Point2D{X: p.X, Y: p.Y}
}

// MapToCanonical maps the raw location through a page alignment
// transform into the canonical frame.
func (p RawPixelPoint) MapToCanonical(t ProjectiveTransform) CanonicalPoint {
	q := t.Apply(p.Point())
	return CanonicalPoint{X: q.X, Y: q.Y}
}

// CanonicalPoint is a location on the full canonical page.
type CanonicalPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point returns the location as a frameless Point2D.
func (p CanonicalPoint) Point() Point2D {
	return Point2D{X: p.X, Y: p.Y}
}

// ToCropped rebases the canonical location onto a cropped image whose
// origin is the crop rectangle's top-left corner.
func (p CanonicalPoint) ToCropped(crop RectInt) CroppedPoint {
	return CroppedPoint{X: p.X - float64(crop.X), Y: p.Y - float64(crop.Y)}
}

// MapToRaw maps the canonical location back into the raw scan frame
// using the inverse alignment transform.
func (p CanonicalPoint) MapToRaw(inv ProjectiveTransform) RawPixelPoint {
	q := inv.Apply(p.Point())
	return RawPixelPoint{X: q.X, Y: q.Y}
}

// CroppedPoint is a location in the cropped canonical image.
type CroppedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point returns the location as a frameless Point2D.
func (p CroppedPoint) Point() Point2D {
	return Point2D{X: p.X, Y: p.Y}
}

// ToCanonical rebases the cropped location back onto the full
// canonical page.
func (p CroppedPoint) ToCanonical(crop RectInt) CanonicalPoint {
	return CanonicalPoint{X: p.X + float64(crop.X), Y: p.Y + float64(crop.Y)}
}
