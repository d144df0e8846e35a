package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"formscan/internal/anchor"
	"formscan/internal/checkbox"
	"formscan/internal/template"
)

// Page status values. The first three mirror the alignment quality
// tiers; the last two are page-scoped failures that leave the rest of
// the batch running.
const (
	StatusOK        = "ok"
	StatusWarn      = "warn"
	StatusFail      = "fail"
	StatusUnaligned = "unaligned"
	StatusError     = "error"
)

// PageResult is the outcome of processing one scanned page.
type PageResult struct {
	Page           int                `json:"page"`
	Path           string             `json:"path,omitempty"`
	AnchorsFound   int                `json:"anchors_found"`
	Anchors        []anchor.Candidate `json:"anchors,omitempty"`
	MissingCorners []string           `json:"missing_corners,omitempty"`
	AnchorsUsed    int                `json:"anchors_used,omitempty"`
	Residuals      []float64          `json:"residuals,omitempty"`
	MeanResidual   float64            `json:"mean_residual,omitempty"`
	Status         string             `json:"status"`
	Error          string             `json:"error,omitempty"`
	Checkboxes     []checkbox.Result  `json:"checkboxes,omitempty"`
	ElapsedMS      int64              `json:"elapsed_ms"`
}

// Aligned reports whether the page produced checkbox results.
func (r PageResult) Aligned() bool {
	switch r.Status {
	case StatusOK, StatusWarn, StatusFail:
		return r.Error == ""
	}
	return false
}

// MarkedCount returns the number of checkboxes classified as marked.
func (r PageResult) MarkedCount() int {
	n := 0
	for _, cb := range r.Checkboxes {
		if cb.Marked {
			n++
		}
	}
	return n
}

// Report aggregates a whole run.
type Report struct {
	Template  string       `json:"template"`
	Started   time.Time    `json:"started"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Total     int          `json:"total_pages"`
	Aligned   int          `json:"aligned"`
	Warned    int          `json:"warned"`
	Failed    int          `json:"failed"`
	Unaligned int          `json:"unaligned"`
	Errors    int          `json:"errors"`
	Marked    int          `json:"marked_total"`
	Pages     []PageResult `json:"pages"`
}

// NewReport tallies per-page results into a run report. Results keep
// their input order regardless of worker scheduling.
func NewReport(tpl *template.Template, results []PageResult) *Report {
	rep := &Report{
		Template: tpl.DocumentTypeID,
		Started:  time.Now(),
		Total:    len(results),
		Pages:    results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusOK, StatusWarn:
			rep.Aligned++
			if r.Status == StatusWarn {
				rep.Warned++
			}
		case StatusFail:
			if r.Error == "" {
				rep.Aligned++
			}
			rep.Failed++
		case StatusUnaligned:
			rep.Unaligned++
		default:
			rep.Errors++
		}
		rep.Marked += r.MarkedCount()
	}
	return rep
}

// SaveJSON writes the full report as indented JSON.
func (r *Report) SaveJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// csvHeader is the flat per-checkbox export schema.
var csvHeader = []string{
	"page", "path", "checkbox_id", "group", "score", "marked",
	"degenerate", "status", "mean_residual",
}

// WriteCSV writes one row per checkbox. Pages that never reached
// classification contribute a single row with an empty checkbox_id so
// the export still accounts for every page.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, pg := range r.Pages {
		if len(pg.Checkboxes) == 0 {
			row := []string{
				strconv.Itoa(pg.Page), pg.Path, "", "", "", "", "",
				pg.Status, "",
			}
			if err := cw.Write(row); err != nil {
				return err
			}
			continue
		}
		for _, cb := range pg.Checkboxes {
			row := []string{
				strconv.Itoa(pg.Page),
				pg.Path,
				cb.ID,
				cb.Group,
				fmt.Sprintf("%.4f", cb.Score),
				strconv.FormatBool(cb.Marked),
				strconv.FormatBool(cb.Degenerate),
				pg.Status,
				fmt.Sprintf("%.2f", pg.MeanResidual),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the per-checkbox export to a file.
func (r *Report) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
