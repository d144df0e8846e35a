// Package review builds the human review queue and its visual aids.
// Pages land in the queue when classification looks contestable:
// conflicting or missing selections within a question, scores near the
// decision threshold, regions the extractor could not measure, or
// alignment residuals past the failure line.
package review

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"formscan/internal/checkbox"
	"formscan/internal/pipeline"
)

// Confidence grades how far a score sits from its decision threshold.
type Confidence string

const (
	ConfidenceHigh    Confidence = "high"     // more than 10 points out
	ConfidenceMedium  Confidence = "medium"   // outside the near margin
	ConfidenceLow     Confidence = "low"      // inside the near margin
	ConfidenceVeryLow Confidence = "very_low" // within 1.5 points of the threshold
)

// GradeConfidence grades one score against its threshold. nearMargin
// is the medium/low boundary; the high and very_low boundaries are
// fixed at 0.10 and 0.015.
func GradeConfidence(score, threshold, nearMargin float64) Confidence {
	dist := score - threshold
	if dist < 0 {
		dist = -dist
	}
	switch {
	case dist > 0.10:
		return ConfidenceHigh
	case dist > nearMargin:
		return ConfidenceMedium
	case dist > 0.015:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// Priority orders the queue for reviewers.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Options tunes the queue triggers.
type Options struct {
	// NearMargin is the score distance from the threshold below which
	// a detection counts as uncertain.
	NearMargin float64
	// ResidualFailPx flags pages whose mean alignment residual lands
	// above it.
	ResidualFailPx float64
}

// DefaultOptions returns the stock review triggers.
func DefaultOptions() Options {
	return Options{
		NearMargin:     0.03,
		ResidualFailPx: 6.0,
	}
}

// RecommendedAction is attached to every queued page.
const RecommendedAction = "Manual review required"

// PageItem is one queued page.
type PageItem struct {
	Priority      Priority `json:"priority"`
	Page          int      `json:"page"`
	Path          string   `json:"path,omitempty"`
	Quality       string   `json:"quality"`
	ResidualPx    float64  `json:"residual_px"`
	Conflicts     int      `json:"conflicts"`
	Missing       int      `json:"missing"`
	NearThreshold int      `json:"near_threshold"`
	LowConfidence int      `json:"low_confidence"`
	Degenerate    int      `json:"degenerate"`
	Issues        []string `json:"issues"`
	Details       []string `json:"details,omitempty"`
}

// BoxRecord is the raw per-checkbox view that accompanies the queue,
// one row per checkbox on every page whether queued or not.
type BoxRecord struct {
	Page       int        `json:"page"`
	ID         string     `json:"id"`
	Group      string     `json:"group,omitempty"`
	Score      float64    `json:"score"`
	Marked     bool       `json:"marked"`
	Degenerate bool       `json:"degenerate,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// Queue is the review output for one run.
type Queue struct {
	Items []PageItem  `json:"items"`
	Boxes []BoxRecord `json:"boxes"`

	Conflicts     int `json:"conflicts_total"`
	Missing       int `json:"missing_total"`
	NearThreshold int `json:"near_threshold_total"`
	LowConfidence int `json:"low_confidence_total"`
	Degenerate    int `json:"degenerate_total"`
	HighResidual  int `json:"high_residual_total"`
}

// Builder grades detections against the classifier's own cutoffs.
type Builder struct {
	opts   Options
	cutoff func(group string) float64
}

// NewBuilder wires queue construction to a classifier so per-group
// threshold overrides grade against the cutoff that actually decided
// them.
func NewBuilder(c *checkbox.Classifier, opts Options) *Builder {
	if opts.NearMargin <= 0 {
		opts.NearMargin = DefaultOptions().NearMargin
	}
	if opts.ResidualFailPx <= 0 {
		opts.ResidualFailPx = DefaultOptions().ResidualFailPx
	}
	return &Builder{opts: opts, cutoff: c.Cutoff}
}

// Build scans per-page results and queues the pages a human should
// look at, highest priority first.
func (b *Builder) Build(pages []pipeline.PageResult) *Queue {
	q := &Queue{}
	for _, pr := range pages {
		b.addPage(q, pr)
	}
	sort.SliceStable(q.Items, func(i, j int) bool {
		return priorityRank(q.Items[i].Priority) < priorityRank(q.Items[j].Priority)
	})
	return q
}

// questionGroup collects one question's boxes in template order.
type questionGroup struct {
	name  string
	boxes []checkbox.Result
}

func (b *Builder) addPage(q *Queue, pr pipeline.PageResult) {
	item := PageItem{
		Page:       pr.Page,
		Path:       pr.Path,
		Quality:    pr.Status,
		ResidualPx: pr.MeanResidual,
	}

	var groups []questionGroup
	index := map[string]int{}
	for _, cb := range pr.Checkboxes {
		q.Boxes = append(q.Boxes, BoxRecord{
			Page:       pr.Page,
			ID:         cb.ID,
			Group:      cb.Group,
			Score:      cb.Score,
			Marked:     cb.Marked,
			Degenerate: cb.Degenerate,
			Confidence: GradeConfidence(cb.Score, b.cutoff(cb.Group), b.opts.NearMargin),
		})
		if cb.Degenerate {
			item.Degenerate++
		}
		// Standalone boxes form no question: an unchecked consent line
		// is an answer, not a missing one.
		if cb.Group == cb.ID || cb.Group == "" {
			continue
		}
		gi, ok := index[cb.Group]
		if !ok {
			gi = len(groups)
			index[cb.Group] = gi
			groups = append(groups, questionGroup{name: cb.Group})
		}
		groups[gi].boxes = append(groups[gi].boxes, cb)
	}

	for _, g := range groups {
		b.analyzeQuestion(&item, g)
	}

	var issues []string
	if item.Conflicts > 0 {
		issues = append(issues, "conflict")
	}
	if item.Missing > 0 {
		issues = append(issues, "missing")
	}
	if item.NearThreshold > 0 {
		issues = append(issues, "near-threshold")
	}
	if item.LowConfidence > 0 {
		issues = append(issues, "low-confidence")
	}
	if item.Degenerate > 0 {
		issues = append(issues, "degenerate")
	}
	highResidual := pr.Aligned() && pr.MeanResidual > b.opts.ResidualFailPx
	if highResidual {
		issues = append(issues, "high-residual")
	}
	if len(issues) == 0 {
		return
	}
	item.Issues = issues

	switch {
	case item.Conflicts > 0:
		item.Priority = PriorityHigh
	case item.NearThreshold > 0 || item.LowConfidence > 0 || item.Degenerate > 0:
		item.Priority = PriorityMedium
	default:
		item.Priority = PriorityLow
	}

	q.Conflicts += item.Conflicts
	q.Missing += item.Missing
	q.NearThreshold += item.NearThreshold
	q.LowConfidence += item.LowConfidence
	q.Degenerate += item.Degenerate
	if highResidual {
		q.HighResidual++
	}
	q.Items = append(q.Items, item)
}

// analyzeQuestion applies the per-question triggers. Each question
// contributes at most one detail line, the most severe one.
func (b *Builder) analyzeQuestion(item *PageItem, g questionGroup) {
	checked := 0
	for _, cb := range g.boxes {
		if cb.Marked {
			checked++
		}
	}

	detail := ""
	switch {
	case checked > 1:
		item.Conflicts++
		detail = fmt.Sprintf("%s: Multiple selections (%d)", g.name, checked)
	case checked == 0:
		item.Missing++
		detail = fmt.Sprintf("%s: No selection", g.name)
	}

	var near, veryLow []checkbox.Result
	for _, cb := range g.boxes {
		if cb.Degenerate {
			continue
		}
		th := b.cutoff(cb.Group)
		dist := cb.Score - th
		if dist < 0 {
			dist = -dist
		}
		if dist <= b.opts.NearMargin {
			near = append(near, cb)
		}
		if GradeConfidence(cb.Score, th, b.opts.NearMargin) == ConfidenceVeryLow {
			veryLow = append(veryLow, cb)
		}
	}
	if len(near) > 0 {
		item.NearThreshold++
		if detail == "" {
			detail = fmt.Sprintf("%s: Near threshold (%s)", g.name, scoreList(near))
		}
	}
	if len(veryLow) > 0 {
		item.LowConfidence += len(veryLow)
		if detail == "" {
			detail = fmt.Sprintf("%s: Very low confidence (%s)", g.name, scoreList(veryLow))
		}
	}

	if detail != "" {
		item.Details = append(item.Details, detail)
	}
}

func scoreList(boxes []checkbox.Result) string {
	parts := make([]string, len(boxes))
	for i, cb := range boxes {
		parts[i] = fmt.Sprintf("%s=%.1f%%", cb.ID, cb.Score*100)
	}
	return strings.Join(parts, ", ")
}

// SaveJSON writes the queue with its raw box records.
func (q *Queue) SaveJSON(path string) error {
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// queueHeader includes trailing blank columns reviewers fill in by
// hand.
var queueHeader = []string{
	"priority", "page", "path", "quality", "residual_px",
	"conflicts", "missing", "near_threshold", "low_confidence", "degenerate",
	"issues", "details", "recommended_action",
	"reviewed", "marks_accurate", "corrected_conflicts",
	"reviewer_name", "review_date", "review_notes",
}

// WriteCSV writes the queue in spreadsheet form.
func (q *Queue) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(queueHeader); err != nil {
		return err
	}
	for _, it := range q.Items {
		row := []string{
			string(it.Priority),
			strconv.Itoa(it.Page),
			it.Path,
			it.Quality,
			fmt.Sprintf("%.2f", it.ResidualPx),
			strconv.Itoa(it.Conflicts),
			strconv.Itoa(it.Missing),
			strconv.Itoa(it.NearThreshold),
			strconv.Itoa(it.LowConfidence),
			strconv.Itoa(it.Degenerate),
			strings.Join(it.Issues, ", "),
			strings.Join(it.Details, "; "),
			RecommendedAction,
			"", "", "", "", "", "",
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the queue CSV to a file.
func (q *Queue) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := q.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
