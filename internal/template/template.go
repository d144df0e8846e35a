// Package template defines document templates: the canonical page
// raster, the four corner anchor positions, and the checkbox regions,
// all normalized to page size so one template serves any scan DPI.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"formscan/pkg/geometry"
)

// AnchorCount is the number of corner anchors a template defines,
// in top-left, top-right, bottom-right, bottom-left order.
const AnchorCount = 4

// NormPoint is a position normalized to page size, each coordinate
// in [0, 1].
type NormPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NormROI is a rectangular region normalized to page size.
type NormROI struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
}

// PageSize describes the canonical page raster the template is
// defined against.
type PageSize struct {
	WidthPx  int     `json:"width_px"`
	HeightPx int     `json:"height_px"`
	DPI      float64 `json:"dpi,omitempty"`
}

// EffectiveDPI returns the declared scan resolution, defaulting to
// 300 when the template does not carry one.
func (s PageSize) EffectiveDPI() float64 {
	if s.DPI > 0 {
		return s.DPI
	}
	return 300
}

// DetectionSettings carries per-template tuning. Every field is
// optional; zero values defer to run configuration defaults.
// Threshold fields are percentages (11.5 means a 0.115 fill ratio) to
// keep hand-edited template files readable.
type DetectionSettings struct {
	FillThresholdPercent  float64            `json:"fill_threshold_percent,omitempty"`
	PerQuestionThresholds map[string]float64 `json:"per_question_thresholds,omitempty"`
	UseColorFusion        bool               `json:"use_color_fusion,omitempty"`
	AnchorWindowHalfPx    int                `json:"anchor_window_half_px,omitempty"`
	ResidualOKPx          float64            `json:"residual_ok_px,omitempty"`
	ResidualWarnPx        float64            `json:"residual_warn_px,omitempty"`
	CropMarginInches      float64            `json:"crop_margin_inches,omitempty"`
}

// Template describes one document type.
type Template struct {
	DocumentTypeID string             `json:"document_type_id"`
	Version        string             `json:"version"`
	Description    string             `json:"description,omitempty"`
	PageSize       PageSize           `json:"page_size"`
	AnchorsNorm    []NormPoint        `json:"anchors_norm"`
	CheckboxROIs   []NormROI          `json:"checkbox_rois_norm"`
	Grid           *Grid              `json:"checkbox_grid,omitempty"`
	Detection      *DetectionSettings `json:"detection_settings,omitempty"`
}

// FillThreshold returns the template's global fill threshold as a
// fraction, or ok=false when the template does not set one.
func (t *Template) FillThreshold() (float64, bool) {
	if t.Detection == nil || t.Detection.FillThresholdPercent <= 0 {
		return 0, false
	}
	return t.Detection.FillThresholdPercent / 100, true
}

// QuestionThresholds returns per-question fill thresholds as
// fractions, keyed by question label. Nil when the template sets none.
func (t *Template) QuestionThresholds() map[string]float64 {
	if t.Detection == nil || len(t.Detection.PerQuestionThresholds) == 0 {
		return nil
	}
	out := make(map[string]float64, len(t.Detection.PerQuestionThresholds))
	for q, pct := range t.Detection.PerQuestionThresholds {
		out[q] = pct / 100
	}
	return out
}

// Load reads a template from a JSON file. Templates that define their
// checkboxes as a grid get the grid expanded into explicit regions,
// unless explicit regions are already present.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal template %s: %w", filepath.Base(path), err)
	}

	if len(t.CheckboxROIs) == 0 && t.Grid != nil {
		rois, err := t.Grid.Expand()
		if err != nil {
			return nil, fmt.Errorf("expand checkbox grid: %w", err)
		}
		t.CheckboxROIs = rois
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("template %s: %w", filepath.Base(path), err)
	}
	return &t, nil
}

// Save writes the template to a JSON file, creating parent directories
// as needed.
func (t *Template) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create template dir: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the template for internal consistency.
func (t *Template) Validate() error {
	if t.DocumentTypeID == "" {
		return fmt.Errorf("missing document_type_id")
	}
	if t.PageSize.WidthPx <= 0 || t.PageSize.HeightPx <= 0 {
		return fmt.Errorf("page_size must be positive, got %dx%d",
			t.PageSize.WidthPx, t.PageSize.HeightPx)
	}
	if len(t.AnchorsNorm) != AnchorCount {
		return fmt.Errorf("expected %d anchors, got %d", AnchorCount, len(t.AnchorsNorm))
	}
	for i, a := range t.AnchorsNorm {
		if a.X < 0 || a.X > 1 || a.Y < 0 || a.Y > 1 {
			return fmt.Errorf("anchor %d outside [0,1]: (%g, %g)", i, a.X, a.Y)
		}
	}

	seen := make(map[string]bool, len(t.CheckboxROIs))
	for _, roi := range t.CheckboxROIs {
		if roi.ID == "" {
			return fmt.Errorf("checkbox roi with empty id")
		}
		if seen[roi.ID] {
			return fmt.Errorf("duplicate checkbox roi id %q", roi.ID)
		}
		seen[roi.ID] = true
		if roi.W <= 0 || roi.H <= 0 {
			return fmt.Errorf("checkbox roi %s has non-positive size", roi.ID)
		}
		if roi.X < 0 || roi.Y < 0 || roi.X+roi.W > 1 || roi.Y+roi.H > 1 {
			return fmt.Errorf("checkbox roi %s outside [0,1]", roi.ID)
		}
	}
	if d := t.Detection; d != nil {
		if d.FillThresholdPercent < 0 || d.FillThresholdPercent >= 100 {
			return fmt.Errorf("fill_threshold_percent out of range: %g", d.FillThresholdPercent)
		}
		for q, pct := range d.PerQuestionThresholds {
			if pct <= 0 || pct >= 100 {
				return fmt.Errorf("per_question threshold for %s out of range: %g", q, pct)
			}
		}
	}
	return nil
}

// CanonicalSize returns the canonical page raster in pixels.
func (t *Template) CanonicalSize() geometry.Size {
	return geometry.Size{
		Width:  float64(t.PageSize.WidthPx),
		Height: float64(t.PageSize.HeightPx),
	}
}

// CanonicalBounds returns the canonical raster as an origin-anchored
// integer rectangle.
func (t *Template) CanonicalBounds() geometry.RectInt {
	return geometry.RectInt{Width: t.PageSize.WidthPx, Height: t.PageSize.HeightPx}
}

// AnchorCanonical returns the i-th anchor's expected position in
// canonical pixels.
func (t *Template) AnchorCanonical(i int) geometry.CanonicalPoint {
	a := t.AnchorsNorm[i]
	return geometry.CanonicalPoint{
		X: a.X * float64(t.PageSize.WidthPx),
		Y: a.Y * float64(t.PageSize.HeightPx),
	}
}

// AnchorsCanonical returns all anchor positions in canonical pixels,
// in template order.
func (t *Template) AnchorsCanonical() []geometry.CanonicalPoint {
	out := make([]geometry.CanonicalPoint, len(t.AnchorsNorm))
	for i := range t.AnchorsNorm {
		out[i] = t.AnchorCanonical(i)
	}
	return out
}

// ROICanonical converts a normalized region to canonical pixels.
func (t *Template) ROICanonical(roi NormROI) geometry.Rect {
	w := float64(t.PageSize.WidthPx)
	h := float64(t.PageSize.HeightPx)
	return geometry.Rect{
		X:      roi.X * w,
		Y:      roi.Y * h,
		Width:  roi.W * w,
		Height: roi.H * h,
	}
}

// ROIByID looks up a checkbox region by id.
func (t *Template) ROIByID(id string) (NormROI, bool) {
	for _, roi := range t.CheckboxROIs {
		if roi.ID == id {
			return roi, true
		}
	}
	return NormROI{}, false
}
