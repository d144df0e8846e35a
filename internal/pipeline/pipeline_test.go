package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"formscan/internal/checkbox"
	"formscan/internal/page"
	"formscan/internal/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridTemplate is a 600x800 canonical page at 300 DPI with anchors 10%
// in from each corner and a 5x5 checkbox grid for questions Q1..Q5,
// plus one region in the page margin that the crop cuts off.
func gridTemplate(t *testing.T) *template.Template {
	t.Helper()
	grid := &template.Grid{
		Origin:     template.NormPoint{X: 0.25, Y: 0.25},
		Cell:       template.CellSize{Width: 0.08, Height: 0.05},
		RowSpacing: 0.10,
		ColSpacing: 0.10,
		Rows:       5,
		Cols:       5,
		Labels:     []string{"Q1", "Q2", "Q3", "Q4", "Q5"},
	}
	rois, err := grid.Expand()
	require.NoError(t, err)
	rois = append(rois, template.NormROI{ID: "margin_note", X: 0.01, Y: 0.5, W: 0.02, H: 0.02})

	return &template.Template{
		DocumentTypeID: "intake_v2",
		Version:        "2",
		PageSize:       template.PageSize{WidthPx: 600, HeightPx: 800, DPI: 300},
		AnchorsNorm: []template.NormPoint{
			{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.1}, {X: 0.9, Y: 0.9}, {X: 0.1, Y: 0.9},
		},
		CheckboxROIs: rois,
		Grid:         grid,
	}
}

// drawL paints an L-shaped corner bracket with its elbow at (x, y),
// arms running right and down. Arm 40, thickness 8, same ink shape
// the detector's scoring favors.
func drawL(img *image.Gray, x, y int) {
	for dy := 0; dy < 8; dy++ {
		for dx := 0; dx < 40; dx++ {
			img.SetGray(x+dx, y+dy, color.Gray{Y: 0})
		}
	}
	for dy := 0; dy < 40; dy++ {
		for dx := 0; dx < 8; dx++ {
			img.SetGray(x+dx, y+dy, color.Gray{Y: 0})
		}
	}
}

// formPage renders the template's page: white background, an anchor
// bracket at each corner, a 1px outline around every grid cell, and
// solid ink filling the cells named in marked. The bracket elbow is
// offset so the ink centroid lands on the anchor position.
func formPage(tpl *template.Template, marked map[string]bool) *image.Gray {
	w := tpl.PageSize.WidthPx
	h := tpl.PageSize.HeightPx
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	const centroidOffset = 12.9
	for i := range tpl.AnchorsNorm {
		cp := tpl.AnchorCanonical(i)
		drawL(img, int(cp.X-centroidOffset+0.5), int(cp.Y-centroidOffset+0.5))
	}

	g := tpl.Grid
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			x0 := int((g.Origin.X + float64(c)*g.ColSpacing) * float64(w))
			y0 := int((g.Origin.Y + float64(r)*g.RowSpacing) * float64(h))
			x1 := x0 + int(g.Cell.Width*float64(w))
			y1 := y0 + int(g.Cell.Height*float64(h))

			if marked[fmt.Sprintf("%s_%d", g.Labels[r], c+1)] {
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						img.SetGray(x, y, color.Gray{Y: 0})
					}
				}
				continue
			}
			for x := x0; x < x1; x++ {
				img.SetGray(x, y0, color.Gray{Y: 0})
				img.SetGray(x, y1-1, color.Gray{Y: 0})
			}
			for y := y0; y < y1; y++ {
				img.SetGray(x0, y, color.Gray{Y: 0})
				img.SetGray(x1-1, y, color.Gray{Y: 0})
			}
		}
	}
	return img
}

func newTestPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	p, err := New(gridTemplate(t), checkbox.DefaultParams(), opts)
	require.NoError(t, err)
	return p
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestProcessPageSingleMark(t *testing.T) {
	p := newTestPipeline(t, DefaultOptions())
	tpl := gridTemplate(t)
	pg := page.FromImage(formPage(tpl, map[string]bool{"Q3_2": true}), 300)

	res := p.ProcessPage(pg)

	require.Empty(t, res.Error)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 4, res.AnchorsFound)
	assert.Equal(t, 4, res.AnchorsUsed)
	assert.Empty(t, res.MissingCorners)
	assert.Less(t, res.MeanResidual, 3.0)
	require.Len(t, res.Checkboxes, 26)

	var markedIDs []string
	for _, cb := range res.Checkboxes {
		if cb.Marked {
			markedIDs = append(markedIDs, cb.ID)
			continue
		}
		if cb.Degenerate {
			continue
		}
		assert.Less(t, cb.Score, 0.05, "unmarked %s should measure blank", cb.ID)
	}
	require.Equal(t, []string{"Q3_2"}, markedIDs)

	for _, cb := range res.Checkboxes {
		switch cb.ID {
		case "Q3_2":
			assert.Greater(t, cb.Score, 0.9)
			assert.Equal(t, "Q3", cb.Group)
		case "margin_note":
			assert.True(t, cb.Degenerate, "region outside the crop must be flagged")
			assert.False(t, cb.Marked)
		}
	}
}

func TestRunKeepsInputOrder(t *testing.T) {
	tpl := gridTemplate(t)
	dir := t.TempDir()

	blank := image.NewGray(image.Rect(0, 0, 600, 800))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}

	paths := []string{
		filepath.Join(dir, "page_0001.png"),
		filepath.Join(dir, "page_0002.png"),
		filepath.Join(dir, "page_0003.png"),
	}
	writePNG(t, paths[0], formPage(tpl, map[string]bool{"Q1_1": true, "Q5_5": true}))
	writePNG(t, paths[1], formPage(tpl, nil))
	writePNG(t, paths[2], blank)

	opts := DefaultOptions()
	opts.Workers = 2
	p := newTestPipeline(t, opts)

	rep := p.Run(paths)

	require.Len(t, rep.Pages, 3)
	for i, pr := range rep.Pages {
		assert.Equal(t, paths[i], pr.Path, "results must stay in input order")
		assert.Equal(t, i+1, pr.Page)
	}

	assert.Equal(t, 2, rep.Pages[0].MarkedCount())
	assert.Equal(t, 0, rep.Pages[1].MarkedCount())

	unaligned := rep.Pages[2]
	assert.Equal(t, StatusUnaligned, unaligned.Status)
	assert.NotEmpty(t, unaligned.Error)
	assert.Empty(t, unaligned.Checkboxes, "pages that fail alignment produce no checkbox results")

	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Aligned)
	assert.Equal(t, 1, rep.Unaligned)
	assert.Equal(t, 0, rep.Errors)
	assert.Equal(t, 2, rep.Marked)
}

func TestProcessFileMissingFile(t *testing.T) {
	p := newTestPipeline(t, DefaultOptions())
	res := p.ProcessFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "load")
	assert.Empty(t, res.Checkboxes)
}

func TestNewValidatesInputs(t *testing.T) {
	tpl := gridTemplate(t)
	tpl.AnchorsNorm = tpl.AnchorsNorm[:3]
	_, err := New(tpl, checkbox.DefaultParams(), DefaultOptions())
	assert.Error(t, err)

	bad := checkbox.Params{Mode: "neither"}
	_, err = New(gridTemplate(t), bad, DefaultOptions())
	assert.Error(t, err)
}

func TestTemplateSettingsOverlay(t *testing.T) {
	tpl := gridTemplate(t)
	tpl.Detection = &template.DetectionSettings{
		AnchorWindowHalfPx: 40,
		ResidualOKPx:       3,
		ResidualWarnPx:     5.5,
		CropMarginInches:   0.25,
		UseColorFusion:     true,
	}

	opts := DefaultOptions()
	applyTemplateSettings(tpl, &opts)
	assert.Equal(t, 40, opts.Anchor.WindowHalfPx)
	assert.Equal(t, 3.0, opts.Align.OKMaxPx)
	assert.Equal(t, 5.5, opts.Align.WarnMaxPx)
	assert.Equal(t, 0.25, opts.Align.MarginInches)
	assert.True(t, opts.ColorFusion)

	plain := DefaultOptions()
	applyTemplateSettings(gridTemplate(t), &plain)
	assert.Equal(t, DefaultOptions(), plain)

	// A caller-set ceiling wins over the template's.
	pinned := DefaultOptions()
	pinned.Align.OKMaxPx = 5.0
	applyTemplateSettings(tpl, &pinned)
	assert.Equal(t, 5.0, pinned.Align.OKMaxPx)
	assert.Equal(t, 5.5, pinned.Align.WarnMaxPx)
}

func TestReportCSV(t *testing.T) {
	tpl := gridTemplate(t)
	results := []PageResult{
		{
			Page:         1,
			Path:         "page_0001.png",
			Status:       StatusOK,
			MeanResidual: 1.5,
			Checkboxes: []checkbox.Result{
				{ID: "Q1_1", Group: "Q1", Marked: true, Score: 0.42},
				{ID: "Q1_2", Group: "Q1", Score: 0.01},
			},
		},
		{Page: 2, Path: "page_0002.png", Status: StatusUnaligned, Error: "1 of 4 anchors"},
	}

	rep := NewReport(tpl, results)
	assert.Equal(t, "intake_v2", rep.Template)
	assert.Equal(t, 1, rep.Aligned)
	assert.Equal(t, 1, rep.Unaligned)
	assert.Equal(t, 1, rep.Marked)

	var sb strings.Builder
	require.NoError(t, rep.WriteCSV(&sb))
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
	assert.Contains(t, lines[1], "Q1_1")
	assert.Contains(t, lines[1], "true")
	assert.Contains(t, lines[3], "unaligned")
}
