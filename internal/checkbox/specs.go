package checkbox

import (
	"strconv"
	"strings"

	"formscan/internal/template"
	"formscan/pkg/geometry"
)

// Spec is one checkbox region resolved into cropped-image pixels.
// Rect is not clamped to the image: out-of-bounds regions are kept so
// the extractor can report them as degenerate instead of silently
// measuring a sliver.
type Spec struct {
	ID    string
	Group string
	Col   int
	Rect  geometry.RectInt
}

// SpecsFromTemplate denormalizes every checkbox region of the template
// into the pixel space of a cropped canonical image with the given
// crop rectangle. Order follows the template.
func SpecsFromTemplate(tpl *template.Template, crop geometry.RectInt) []Spec {
	specs := make([]Spec, 0, len(tpl.CheckboxROIs))
	for _, roi := range tpl.CheckboxROIs {
		canonical := tpl.ROICanonical(roi).OuterInt()
		specs = append(specs, Spec{
			ID:    roi.ID,
			Group: template.QuestionOf(roi.ID),
			Col:   columnOf(roi.ID),
			Rect: geometry.RectInt{
				X:      canonical.X - crop.X,
				Y:      canonical.Y - crop.Y,
				Width:  canonical.Width,
				Height: canonical.Height,
			},
		})
	}
	return specs
}

// columnOf parses the 1-based column from ids of the form
// "<group>_<col>". Ids without a numeric suffix report column 0.
func columnOf(id string) int {
	i := strings.LastIndex(id, "_")
	if i < 0 {
		return 0
	}
	col, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return 0
	}
	return col
}
