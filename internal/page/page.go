// Package page provides scanned page loading and pixel format conversion.
package page

import (
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"formscan/pkg/geometry"

	_ "golang.org/x/image/tiff"
)

// DefaultDPI is assumed for page images that carry no resolution
// metadata. Templates are defined against 300 DPI letter pages.
const DefaultDPI = 300.0

// Page is a single scanned page image awaiting processing.
type Page struct {
	Path   string      // Source file path, empty for in-memory pages
	Number int         // 1-based page number within the run
	Image  image.Image // Decoded pixel data
	DPI    float64     // From TIFF metadata when present, else the default
}

// Load reads a page image from disk. TIFF files carry their scan
// resolution in metadata; other formats fall back to DefaultDPI. The
// page number is recovered from file names of the form page_0007.png.
func Load(path string) (*Page, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}

	p := &Page{
		Path:   path,
		Image:  img,
		DPI:    DefaultDPI,
		Number: pageNumberFromFilename(path),
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".tiff" || ext == ".tif" {
		if dpi, err := extractTIFFDPI(path); err == nil {
			p.DPI = dpi
		}
	}

	return p, nil
}

// FromImage wraps an already-decoded image as a page.
func FromImage(img image.Image, dpi float64) *Page {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Page{Image: img, DPI: dpi}
}

// Width returns the image width in pixels.
func (p *Page) Width() int {
	if p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (p *Page) Height() int {
	if p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dy()
}

// Size returns the image dimensions.
func (p *Page) Size() geometry.Size {
	return geometry.Size{
		Width:  float64(p.Width()),
		Height: float64(p.Height()),
	}
}

// Bounds returns the pixel bounds as an integer rectangle anchored at
// the origin.
func (p *Page) Bounds() geometry.RectInt {
	return geometry.RectInt{Width: p.Width(), Height: p.Height()}
}

// WidthInches returns the page width in inches if DPI is known.
func (p *Page) WidthInches() float64 {
	if p.DPI == 0 {
		return 0
	}
	return float64(p.Width()) / p.DPI
}

// HeightInches returns the page height in inches if DPI is known.
func (p *Page) HeightInches() float64 {
	if p.DPI == 0 {
		return 0
	}
	return float64(p.Height()) / p.DPI
}

// pageNumberFromFilename recovers the page number from names like
// page_0007.png. Returns 0 when the name does not match.
func pageNumberFromFilename(path string) int {
	base := strings.ToLower(filepath.Base(path))
	var n int
	if _, err := fmt.Sscanf(base, "page_%d", &n); err == nil {
		return n
	}
	return 0
}

// extractTIFFDPI attempts to extract DPI from TIFF metadata.
func extractTIFFDPI(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	// Read TIFF header to determine byte order
	header := make([]byte, 8)
	if _, err := file.Read(header); err != nil {
		return 0, err
	}

	var byteOrder binary.ByteOrder
	if header[0] == 'I' && header[1] == 'I' {
		byteOrder = binary.LittleEndian
	} else if header[0] == 'M' && header[1] == 'M' {
		byteOrder = binary.BigEndian
	} else {
		return 0, fmt.Errorf("not a valid TIFF file")
	}

	// Get offset to first IFD
	ifdOffset := byteOrder.Uint32(header[4:8])

	// Seek to IFD
	if _, err := file.Seek(int64(ifdOffset), 0); err != nil {
		return 0, err
	}

	// Read number of directory entries
	var numEntries uint16
	if err := binary.Read(file, byteOrder, &numEntries); err != nil {
		return 0, err
	}

	var xRes, yRes float64
	var resUnit uint16 = 2 // Default to inches

	// Read directory entries
	for i := uint16(0); i < numEntries; i++ {
		entry := make([]byte, 12)
		if _, err := file.Read(entry); err != nil {
			return 0, err
		}

		tag := byteOrder.Uint16(entry[0:2])
		fieldType := byteOrder.Uint16(entry[2:4])
		valueOffset := byteOrder.Uint32(entry[8:12])

		switch tag {
		case 282: // XResolution
			if fieldType == 5 { // RATIONAL
				xRes = readTIFFRational(file, int64(valueOffset), byteOrder)
			}
		case 283: // YResolution
			if fieldType == 5 { // RATIONAL
				yRes = readTIFFRational(file, int64(valueOffset), byteOrder)
			}
		case 296: // ResolutionUnit
			if fieldType == 3 { // SHORT
				resUnit = uint16(valueOffset)
			}
		}
	}

	if xRes == 0 && yRes == 0 {
		return 0, fmt.Errorf("no resolution tags found")
	}

	// Use X resolution (or Y if X is 0)
	dpi := xRes
	if dpi == 0 {
		dpi = yRes
	}

	// Convert from centimeters to inches if needed
	if resUnit == 3 {
		dpi *= 2.54
	}

	if dpi == 0 {
		return 0, fmt.Errorf("DPI is zero")
	}

	return dpi, nil
}

// readTIFFRational reads a RATIONAL value (two uint32s) from a TIFF file.
func readTIFFRational(file *os.File, offset int64, byteOrder binary.ByteOrder) float64 {
	currentPos, _ := file.Seek(0, 1) // Save current position
	defer file.Seek(currentPos, 0)   // Restore position

	file.Seek(offset, 0)
	var num, denom uint32
	binary.Read(file, byteOrder, &num)
	binary.Read(file, byteOrder, &denom)

	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}

// SupportedFormats returns the list of supported page image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
