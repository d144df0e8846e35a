// Package ingest turns a PDF or a directory of scans into an ordered
// list of page image paths and owns the run directory bookkeeping.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Run is one batch output tree. Everything a run produces lands under
// Dir; input scans stay wherever they came from unless they were
// extracted from a PDF.
type Run struct {
	Dir         string
	PagesDir    string
	AlignedDir  string
	OverlaysDir string
	ReviewDir   string
	LogsDir     string
}

// NewRun creates run_<timestamp>[_<threshold>] under root with the
// standard subdirectories. thresholdPercent <= 0 omits the suffix.
func NewRun(root string, thresholdPercent float64) (*Run, error) {
	name := "run_" + time.Now().Format("20060102_150405")
	if thresholdPercent > 0 {
		name += "_" + formatThreshold(thresholdPercent)
	}

	r := OpenRun(filepath.Join(root, name))
	for _, d := range []string{r.PagesDir, r.AlignedDir, r.OverlaysDir, r.ReviewDir, r.LogsDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create run directory: %w", err)
		}
	}
	return r, nil
}

// OpenRun wraps an existing run directory without creating anything.
func OpenRun(dir string) *Run {
	return &Run{
		Dir:         dir,
		PagesDir:    filepath.Join(dir, "pages"),
		AlignedDir:  filepath.Join(dir, "aligned"),
		OverlaysDir: filepath.Join(dir, "overlays"),
		ReviewDir:   filepath.Join(dir, "review"),
		LogsDir:     filepath.Join(dir, "logs"),
	}
}

// LatestRun returns the newest run directory under root. Timestamped
// names sort lexically, so the last one is the newest.
func LatestRun(root string) (*Run, error) {
	matches, err := filepath.Glob(filepath.Join(root, "run_*"))
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			dirs = append(dirs, m)
		}
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no run directories under %s", root)
	}
	sort.Strings(dirs)
	return OpenRun(dirs[len(dirs)-1]), nil
}

// formatThreshold renders 11.50 as "11.5" and 12.00 as "12" so run
// names stay short.
func formatThreshold(t float64) string {
	s := fmt.Sprintf("%.2f", t)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// PagePath names an ingested page image. The extension follows the
// source file, so callers pass it through.
func (r *Run) PagePath(n int, ext string) string {
	return filepath.Join(r.PagesDir, fmt.Sprintf("page_%04d%s", n, ext))
}

// AlignedPath names the deskewed crop written for page n.
func (r *Run) AlignedPath(n int) string {
	return filepath.Join(r.AlignedDir, fmt.Sprintf("page_%04d.png", n))
}

// OverlayPath names the QA overlay written for page n.
func (r *Run) OverlayPath(n int) string {
	return filepath.Join(r.OverlaysDir, fmt.Sprintf("page_%04d_qa.png", n))
}

// MontagePath names the checkbox contact sheet for page n.
func (r *Run) MontagePath(n int) string {
	return filepath.Join(r.ReviewDir, fmt.Sprintf("montage_page_%04d.png", n))
}

// ThumbPath names a single queued-checkbox thumbnail.
func (r *Run) ThumbPath(n int, id string) string {
	return filepath.Join(r.ReviewDir, fmt.Sprintf("thumb_page_%04d_%s.png", n, id))
}

func (r *Run) ReportPath() string     { return filepath.Join(r.Dir, "report.json") }
func (r *Run) ResultsCSVPath() string { return filepath.Join(r.Dir, "results.csv") }
func (r *Run) ReviewJSONPath() string { return filepath.Join(r.Dir, "review.json") }
func (r *Run) ReviewCSVPath() string  { return filepath.Join(r.Dir, "review.csv") }

func (r *Run) stepsLogPath() string { return filepath.Join(r.LogsDir, "steps.jsonl") }

// LogStep appends one JSON line to logs/steps.jsonl so a run's history
// survives the process.
func (r *Run) LogStep(step string, fields map[string]any) error {
	rec := map[string]any{
		"ts":   time.Now().Format(time.RFC3339),
		"step": step,
	}
	for k, v := range fields {
		rec[k] = v
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(r.stepsLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}
