// Package pipeline runs the full page flow: anchor detection,
// alignment, checkbox measurement, and classification, one worker per
// page.
package pipeline

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"formscan/internal/align"
	"formscan/internal/anchor"
	"formscan/internal/checkbox"
	"formscan/internal/page"
	"formscan/internal/template"

	"gocv.io/x/gocv"
)

// ArtifactFunc receives each page's result while its aligned crop is
// still open, so callers can write overlays or aligned images without
// the pipeline owning that IO. Called from worker goroutines; the Mat
// is only valid for the duration of the call and is empty for pages
// that never aligned.
type ArtifactFunc func(res PageResult, aligned gocv.Mat)

// Options configures a run.
type Options struct {
	// Workers bounds page parallelism; 0 means one per CPU.
	Workers int
	// ColorFusion measures checkboxes on min(gray, blue) so blue-pen
	// marks keep their contrast.
	ColorFusion bool
	// PageDPI replaces the assumed resolution of images that carry no
	// DPI metadata. Zero keeps the loader's default.
	PageDPI   float64
	Anchor    anchor.DetectionParams
	Align     align.Options
	Artifacts ArtifactFunc
	Verbose   bool
}

// DefaultOptions uses stock detection and alignment settings.
func DefaultOptions() Options {
	return Options{
		Anchor: anchor.DefaultParams(),
		Align:  align.DefaultOptions(),
	}
}

// Pipeline processes scanned pages against one template. Safe for
// concurrent use; all shared state is read-only after New.
type Pipeline struct {
	tpl        *template.Template
	aligner    *align.Aligner
	extractor  *checkbox.Extractor
	classifier *checkbox.Classifier
	specs      []checkbox.Spec
	opts       Options
}

// New builds a pipeline from a template and classifier parameters.
// Template detection settings fill in anchor and alignment knobs the
// options leave at their defaults.
func New(tpl *template.Template, params checkbox.Params, opts Options) (*Pipeline, error) {
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	applyTemplateSettings(tpl, &opts)

	classifier, err := checkbox.NewClassifier(params)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	aligner := align.New(tpl, opts.Align)
	return &Pipeline{
		tpl:        tpl,
		aligner:    aligner,
		extractor:  checkbox.NewExtractor(),
		classifier: classifier,
		specs:      checkbox.SpecsFromTemplate(tpl, aligner.Crop()),
		opts:       opts,
	}, nil
}

// applyTemplateSettings overlays template-carried tuning onto options
// the caller left at stock values. A field the caller changed stays
// changed, so command-line overrides beat the template.
func applyTemplateSettings(tpl *template.Template, opts *Options) {
	d := tpl.Detection
	if d == nil {
		return
	}
	stock := DefaultOptions()
	if d.AnchorWindowHalfPx > 0 && opts.Anchor.WindowHalfPx == stock.Anchor.WindowHalfPx {
		opts.Anchor.WindowHalfPx = d.AnchorWindowHalfPx
	}
	if d.ResidualOKPx > 0 && opts.Align.OKMaxPx == stock.Align.OKMaxPx {
		opts.Align.OKMaxPx = d.ResidualOKPx
	}
	if d.ResidualWarnPx > 0 && opts.Align.WarnMaxPx == stock.Align.WarnMaxPx {
		opts.Align.WarnMaxPx = d.ResidualWarnPx
	}
	if d.CropMarginInches > 0 && opts.Align.MarginInches == stock.Align.MarginInches {
		opts.Align.MarginInches = d.CropMarginInches
	}
	if d.UseColorFusion {
		opts.ColorFusion = true
	}
}

// Specs returns the checkbox regions in cropped-image pixels.
func (p *Pipeline) Specs() []checkbox.Spec {
	return p.specs
}

// Classifier returns the loaded classifier.
func (p *Pipeline) Classifier() *checkbox.Classifier {
	return p.classifier
}

// ProcessFile loads one page image and processes it. Load failures
// are reported in the result, never returned.
func (p *Pipeline) ProcessFile(path string) PageResult {
	return p.processFileAt(path, 0)
}

// processFileAt pins the page number before the artifact hook can
// fire, so numbered artifacts never collide on filenames that carry
// no page number of their own.
func (p *Pipeline) processFileAt(path string, fallback int) PageResult {
	pg, err := page.Load(path)
	if err != nil {
		return PageResult{
			Page:   fallback,
			Path:   path,
			Status: StatusError,
			Error:  fmt.Sprintf("load: %v", err),
		}
	}
	if pg.Number == 0 {
		pg.Number = fallback
	}
	// Formats without resolution metadata come back at the stock
	// assumption; an explicit run DPI replaces that, never a value
	// read from the file itself.
	if p.opts.PageDPI > 0 && pg.DPI == page.DefaultDPI {
		pg.DPI = p.opts.PageDPI
	}
	res := p.ProcessPage(pg)
	res.Path = path
	return res
}

// ProcessPage runs one page through detection, alignment, and
// classification. Failures are page-scoped: the result carries the
// error and whatever stages completed.
func (p *Pipeline) ProcessPage(pg *page.Page) PageResult {
	start := time.Now()
	res := PageResult{Page: pg.Number, Path: pg.Path}

	raw := pg.Mat()
	defer raw.Close()
	gray := page.Gray(raw)
	defer gray.Close()

	params := p.opts.Anchor.WithDPI(pg.DPI)
	detector := anchor.NewDetector(params)
	specs := anchor.SpecsForPage(p.tpl, pg.Width(), pg.Height(), params.WindowHalfPx)

	found := detector.FindAll(gray, specs)
	res.AnchorsFound = found.Count()
	res.Anchors = found.Found
	for _, c := range found.Missing {
		res.MissingCorners = append(res.MissingCorners, c.String())
	}

	// Residual ceilings are pixel quantities; rescale them for pages
	// scanned away from the 300 DPI reference. The crop rectangle is
	// template-relative and unaffected, so the precomputed checkbox
	// specs stay valid.
	aligner := p.aligner
	if pg.DPI > 0 && pg.DPI != 300 {
		aligner = align.New(p.tpl, p.opts.Align.WithDPI(pg.DPI))
	}

	aligned, err := aligner.Align(raw, found)
	if err != nil {
		switch {
		case errors.Is(err, align.ErrInsufficientAnchors):
			res.Status = StatusUnaligned
		case errors.Is(err, align.ErrAlignmentQuality):
			res.Status = StatusFail
		default:
			res.Status = StatusError
		}
		res.Error = err.Error()
		res.ElapsedMS = elapsedMS(start)
		if p.opts.Artifacts != nil {
			empty := gocv.NewMat()
			p.opts.Artifacts(res, empty)
			empty.Close()
		}
		return res
	}
	defer aligned.Close()

	res.AnchorsUsed = aligned.AnchorsUsed
	res.Residuals = aligned.Residuals
	res.MeanResidual = aligned.MeanResidual
	res.Status = aligned.Tier.String()

	var detection gocv.Mat
	if p.opts.ColorFusion {
		detection = page.FusedGray(aligned.Image)
	} else {
		detection = page.Gray(aligned.Image)
	}
	defer detection.Close()

	res.Checkboxes = make([]checkbox.Result, 0, len(p.specs))
	for _, spec := range p.specs {
		fv, ok := p.extractor.Extract(detection, spec.Rect)
		if !ok {
			res.Checkboxes = append(res.Checkboxes, p.classifier.ClassifyDegenerate(spec))
			continue
		}
		res.Checkboxes = append(res.Checkboxes, p.classifier.Classify(spec, fv))
	}

	res.ElapsedMS = elapsedMS(start)
	if p.opts.Artifacts != nil {
		p.opts.Artifacts(res, aligned.Image)
	}
	return res
}

// Run processes the pages concurrently and aggregates a report.
// Per-page failures never stop the batch.
func (p *Pipeline) Run(paths []string) *Report {
	workers := p.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) && len(paths) > 0 {
		workers = len(paths)
	}

	start := time.Now()
	results := make([]PageResult, len(paths))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = p.processFileAt(paths[idx], idx+1)
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if p.opts.Verbose {
		for _, r := range results {
			printPage(r)
		}
	}

	report := NewReport(p.tpl, results)
	report.ElapsedMS = elapsedMS(start)
	return report
}

func printPage(r PageResult) {
	if r.Error != "" {
		fmt.Printf("page %d: %s (%s)\n", r.Page, r.Error, r.Status)
		return
	}
	fmt.Printf("page %d: %d/%d anchors, residual %.2f px [%s], %d/%d marked (%d ms)\n",
		r.Page, r.AnchorsFound, template.AnchorCount, r.MeanResidual, r.Status,
		r.MarkedCount(), len(r.Checkboxes), r.ElapsedMS)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
