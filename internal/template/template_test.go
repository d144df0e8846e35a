package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTemplate() *Template {
	return &Template{
		DocumentTypeID: "crc_survey_l_anchors_v1",
		Version:        "1.0.0",
		PageSize:       PageSize{WidthPx: 2550, HeightPx: 3300},
		AnchorsNorm: []NormPoint{
			{X: 0.055, Y: 0.059},
			{X: 0.945, Y: 0.059},
			{X: 0.945, Y: 0.941},
			{X: 0.055, Y: 0.941},
		},
		CheckboxROIs: []NormROI{
			{ID: "Q1_1", X: 0.1, Y: 0.2, W: 0.02, H: 0.012},
			{ID: "Q1_2", X: 0.2, Y: 0.2, W: 0.02, H: 0.012},
		},
	}
}

func TestValidateAcceptsGoodTemplate(t *testing.T) {
	require.NoError(t, validTemplate().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Template)
	}{
		{"missing doc id", func(tpl *Template) { tpl.DocumentTypeID = "" }},
		{"zero page size", func(tpl *Template) { tpl.PageSize.WidthPx = 0 }},
		{"three anchors", func(tpl *Template) { tpl.AnchorsNorm = tpl.AnchorsNorm[:3] }},
		{"anchor out of range", func(tpl *Template) { tpl.AnchorsNorm[2].X = 1.2 }},
		{"empty roi id", func(tpl *Template) { tpl.CheckboxROIs[0].ID = "" }},
		{"duplicate roi id", func(tpl *Template) { tpl.CheckboxROIs[1].ID = "Q1_1" }},
		{"roi outside page", func(tpl *Template) { tpl.CheckboxROIs[0].X = 0.995 }},
		{"roi zero size", func(tpl *Template) { tpl.CheckboxROIs[0].W = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := validTemplate()
			tt.mutate(tpl)
			assert.Error(t, tpl.Validate())
		})
	}
}

func TestGridExpandFiveByFive(t *testing.T) {
	g := &Grid{
		Origin:     NormPoint{X: 0.10, Y: 0.30},
		Cell:       CellSize{Width: 0.04, Height: 0.02},
		RowSpacing: 0.05,
		ColSpacing: 0.06,
		Rows:       5,
		Cols:       5,
		Labels:     []string{"Q1", "Q2", "Q3", "Q4", "Q5"},
	}

	rois, err := g.Expand()
	require.NoError(t, err)
	require.Len(t, rois, 25)

	assert.Equal(t, "Q1_1", rois[0].ID)
	assert.Equal(t, "Q1_5", rois[4].ID)
	assert.Equal(t, "Q3_2", rois[11].ID)
	assert.Equal(t, "Q5_5", rois[24].ID)

	// Default fraction: width 0.04*0.28, centered in the cell.
	first := rois[0]
	assert.InDelta(t, 0.04*0.28, first.W, 1e-12)
	assert.InDelta(t, 0.02*0.60, first.H, 1e-12)
	assert.InDelta(t, 0.10+(0.04-first.W)/2, first.X, 1e-12)
	assert.InDelta(t, 0.30+(0.02-first.H)/2, first.Y, 1e-12)

	// Row 3, column 2 sits one column and two rows in from the origin.
	q32 := rois[11]
	assert.InDelta(t, 0.10+0.06+(0.04-q32.W)/2, q32.X, 1e-12)
	assert.InDelta(t, 0.30+2*0.05+(0.02-q32.H)/2, q32.Y, 1e-12)
}

func TestGridExpandErrors(t *testing.T) {
	base := Grid{
		Origin: NormPoint{X: 0.1, Y: 0.1},
		Cell:   CellSize{Width: 0.04, Height: 0.02},
		Rows:   2, Cols: 2,
		Labels: []string{"Q1", "Q2"},
	}

	g := base
	g.Rows = 0
	_, err := g.Expand()
	assert.Error(t, err)

	g = base
	g.Labels = []string{"Q1"}
	_, err = g.Expand()
	assert.Error(t, err)

	g = base
	g.ROIFraction = &ROIFraction{W: 1.5, H: 0.5}
	_, err = g.Expand()
	assert.Error(t, err)
}

func TestQuestionOf(t *testing.T) {
	assert.Equal(t, "Q1", QuestionOf("Q1_3"))
	assert.Equal(t, "part_a", QuestionOf("part_a_2"))
	assert.Equal(t, "solo", QuestionOf("solo"))
}

func TestLoadExpandsGrid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.json")

	body := `{
  "document_type_id": "crc_survey_l_anchors_v1",
  "version": "1.0.0",
  "page_size": {"width_px": 2550, "height_px": 3300},
  "anchors_norm": [
    {"x": 0.055, "y": 0.059},
    {"x": 0.945, "y": 0.059},
    {"x": 0.945, "y": 0.941},
    {"x": 0.055, "y": 0.941}
  ],
  "checkbox_grid": {
    "origin": {"x": 0.1, "y": 0.3},
    "cell": {"width": 0.04, "height": 0.02},
    "row_spacing": 0.05,
    "col_spacing": 0.06,
    "rows": 2,
    "cols": 3,
    "labels": ["Q1", "Q2"]
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	tpl, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, tpl.CheckboxROIs, 6)
	assert.Equal(t, "Q2_3", tpl.CheckboxROIs[5].ID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "template.json")

	tpl := validTemplate()
	require.NoError(t, tpl.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, tpl.DocumentTypeID, got.DocumentTypeID)
	assert.Equal(t, tpl.AnchorsNorm, got.AnchorsNorm)
	assert.Equal(t, tpl.CheckboxROIs, got.CheckboxROIs)
}

func TestCanonicalConversions(t *testing.T) {
	tpl := validTemplate()

	tl := tpl.AnchorCanonical(0)
	assert.InDelta(t, 0.055*2550, tl.X, 1e-9)
	assert.InDelta(t, 0.059*3300, tl.Y, 1e-9)

	all := tpl.AnchorsCanonical()
	require.Len(t, all, 4)
	assert.Equal(t, tl, all[0])

	r := tpl.ROICanonical(tpl.CheckboxROIs[0])
	assert.InDelta(t, 0.1*2550, r.X, 1e-9)
	assert.InDelta(t, 0.2*3300, r.Y, 1e-9)
	assert.InDelta(t, 0.02*2550, r.Width, 1e-9)
	assert.InDelta(t, 0.012*3300, r.Height, 1e-9)

	_, ok := tpl.ROIByID("Q1_2")
	assert.True(t, ok)
	_, ok = tpl.ROIByID("nope")
	assert.False(t, ok)
}

func TestEffectiveDPI(t *testing.T) {
	assert.Equal(t, 300.0, PageSize{WidthPx: 2550, HeightPx: 3300}.EffectiveDPI())
	assert.Equal(t, 600.0, PageSize{WidthPx: 5100, HeightPx: 6600, DPI: 600}.EffectiveDPI())
}

func TestDetectionSettings(t *testing.T) {
	tpl := validTemplate()

	// Absent settings defer to configuration defaults.
	_, ok := tpl.FillThreshold()
	assert.False(t, ok)
	assert.Nil(t, tpl.QuestionThresholds())

	tpl.Detection = &DetectionSettings{
		FillThresholdPercent:  11.5,
		PerQuestionThresholds: map[string]float64{"Q3": 14.0},
	}
	require.NoError(t, tpl.Validate())

	th, ok := tpl.FillThreshold()
	require.True(t, ok)
	assert.InDelta(t, 0.115, th, 1e-12)
	assert.InDelta(t, 0.14, tpl.QuestionThresholds()["Q3"], 1e-12)

	tpl.Detection.FillThresholdPercent = 250
	assert.Error(t, tpl.Validate())

	tpl.Detection.FillThresholdPercent = 11.5
	tpl.Detection.PerQuestionThresholds["Q3"] = -2
	assert.Error(t, tpl.Validate())
}
