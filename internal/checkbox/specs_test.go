package checkbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formscan/internal/template"
	"formscan/pkg/geometry"
)

func TestSpecsFromTemplate(t *testing.T) {
	tpl := &template.Template{
		PageSize: template.PageSize{WidthPx: 1600, HeightPx: 1600},
		CheckboxROIs: []template.NormROI{
			{ID: "Q1_1", X: 0.125, Y: 0.25, W: 0.0625, H: 0.03125},
			{ID: "Q1_2", X: 0.25, Y: 0.25, W: 0.0625, H: 0.03125},
			{ID: "Q2_1", X: 0.125, Y: 0.5, W: 0.0625, H: 0.03125},
		},
	}
	crop := geometry.RectInt{X: 50, Y: 60, Width: 1500, Height: 1500}

	specs := SpecsFromTemplate(tpl, crop)
	require.Len(t, specs, 3)

	// Order follows the template.
	assert.Equal(t, "Q1_1", specs[0].ID)
	assert.Equal(t, "Q1_2", specs[1].ID)
	assert.Equal(t, "Q2_1", specs[2].ID)

	assert.Equal(t, "Q1", specs[0].Group)
	assert.Equal(t, 1, specs[0].Col)
	assert.Equal(t, 2, specs[1].Col)
	assert.Equal(t, "Q2", specs[2].Group)

	// 0.125*1600 = 200 canonical, shifted by the crop origin.
	assert.Equal(t, geometry.RectInt{X: 150, Y: 340, Width: 100, Height: 50}, specs[0].Rect)
	assert.Equal(t, geometry.RectInt{X: 350, Y: 340, Width: 100, Height: 50}, specs[1].Rect)
	assert.Equal(t, geometry.RectInt{X: 150, Y: 740, Width: 100, Height: 50}, specs[2].Rect)
}

func TestSpecsFromTemplateRoundsOutward(t *testing.T) {
	tpl := &template.Template{
		PageSize: template.PageSize{WidthPx: 1000, HeightPx: 1000},
		CheckboxROIs: []template.NormROI{
			{ID: "Q1_1", X: 0.1003, Y: 0.2007, W: 0.0301, H: 0.0301},
		},
	}

	specs := SpecsFromTemplate(tpl, geometry.RectInt{Width: 1000, Height: 1000})
	require.Len(t, specs, 1)

	// 100.3..130.4 px widens to the 100..131 integer span.
	assert.Equal(t, geometry.RectInt{X: 100, Y: 200, Width: 31, Height: 31}, specs[0].Rect)
}

func TestSpecsFromTemplateKeepsOutOfBounds(t *testing.T) {
	tpl := &template.Template{
		PageSize: template.PageSize{WidthPx: 1600, HeightPx: 1600},
		CheckboxROIs: []template.NormROI{
			{ID: "Q1_1", X: 0.0, Y: 0.0, W: 0.0625, H: 0.03125},
		},
	}

	// A crop origin past the region leaves a negative rect rather than
	// clamping it away.
	specs := SpecsFromTemplate(tpl, geometry.RectInt{X: 300, Y: 300, Width: 1000, Height: 1000})
	require.Len(t, specs, 1)
	assert.Equal(t, -300, specs[0].Rect.X)
	assert.Equal(t, -300, specs[0].Rect.Y)
	assert.Equal(t, 100, specs[0].Rect.Width)
}

func TestColumnOf(t *testing.T) {
	assert.Equal(t, 1, columnOf("Q1_1"))
	assert.Equal(t, 12, columnOf("Q3_12"))
	assert.Equal(t, 3, columnOf("part_a_3"))
	assert.Equal(t, 0, columnOf("total"))
	assert.Equal(t, 0, columnOf("Q1_x"))
	assert.Equal(t, 0, columnOf("Q1_"))
}
