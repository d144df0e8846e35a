package template

import (
	"fmt"
)

// CellSize is the grid cell extent in page-normalized units.
type CellSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ROIFraction is the fraction of each cell that the sampled region
// covers, centered within the cell.
type ROIFraction struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// DefaultROIFraction keeps the sampled region well inside the printed
// box so row labels and neighboring boxes stay out of frame.
var DefaultROIFraction = ROIFraction{W: 0.28, H: 0.60}

// Grid describes a rectangular block of checkboxes on even row and
// column spacing, in page-normalized units. Row labels name the
// question each row belongs to; region ids come out as label_column
// with 1-based columns, e.g. Q3_2 for row Q3, second column.
type Grid struct {
	Origin      NormPoint    `json:"origin"`
	Cell        CellSize     `json:"cell"`
	RowSpacing  float64      `json:"row_spacing"`
	ColSpacing  float64      `json:"col_spacing"`
	Rows        int          `json:"rows"`
	Cols        int          `json:"cols"`
	Labels      []string     `json:"labels"`
	ROIFraction *ROIFraction `json:"roi_fraction_of_cell,omitempty"`
}

// Expand generates one normalized region per grid cell, row-major.
func (g *Grid) Expand() ([]NormROI, error) {
	if g.Rows <= 0 || g.Cols <= 0 {
		return nil, fmt.Errorf("grid needs positive rows and cols, got %dx%d", g.Rows, g.Cols)
	}
	if len(g.Labels) != g.Rows {
		return nil, fmt.Errorf("grid has %d rows but %d labels", g.Rows, len(g.Labels))
	}
	if g.Cell.Width <= 0 || g.Cell.Height <= 0 {
		return nil, fmt.Errorf("grid cell must have positive size")
	}

	frac := DefaultROIFraction
	if g.ROIFraction != nil {
		frac = *g.ROIFraction
	}
	if frac.W <= 0 || frac.W > 1 || frac.H <= 0 || frac.H > 1 {
		return nil, fmt.Errorf("roi fraction must be in (0,1], got w=%g h=%g", frac.W, frac.H)
	}

	rois := make([]NormROI, 0, g.Rows*g.Cols)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			cellX := g.Origin.X + float64(c)*g.ColSpacing
			cellY := g.Origin.Y + float64(r)*g.RowSpacing
			w := g.Cell.Width * frac.W
			h := g.Cell.Height * frac.H
			rois = append(rois, NormROI{
				ID: fmt.Sprintf("%s_%d", g.Labels[r], c+1),
				X:  cellX + (g.Cell.Width-w)/2,
				Y:  cellY + (g.Cell.Height-h)/2,
				W:  w,
				H:  h,
			})
		}
	}
	return rois, nil
}

// QuestionOf returns the question label portion of a region id, the
// text before the final underscore. Ids without an underscore are
// their own question.
func QuestionOf(id string) string {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '_' {
			return id[:i]
		}
	}
	return id
}
