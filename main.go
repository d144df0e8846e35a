// Command formscan processes scanned form pages against a template,
// classifies every checkbox, and writes the run artifacts reviewers
// work from.
package main

import (
	"fmt"
	"os"

	"formscan/internal/checkbox"
	"formscan/internal/config"
	"formscan/internal/ingest"
	"formscan/internal/pipeline"
	"formscan/internal/review"
	"formscan/internal/template"
	"formscan/internal/version"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "formscan: %v (run with --help for usage)\n", err)
		os.Exit(2)
	}

	tpl, err := template.Load(cfg.TemplatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load template: %v\n", err)
		os.Exit(1)
	}

	params, err := resolveParams(cfg, tpl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load classifier parameters: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== formscan %s ===\n", version.String())
	fmt.Printf("Template: %s (%dx%d px, %d checkboxes)\n",
		tpl.DocumentTypeID, tpl.PageSize.WidthPx, tpl.PageSize.HeightPx, len(tpl.CheckboxROIs))
	if params.Mode == checkbox.ModeModel {
		fmt.Printf("Classifier: model from %s\n", cfg.ModelPath)
	} else {
		fmt.Printf("Classifier: threshold %.1f%%\n", params.FillThreshold*100)
	}

	run, err := ingest.NewRun(cfg.OutputDir, cfg.ThresholdPercent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create run directory: %v\n", err)
		os.Exit(1)
	}
	logStep := func(step string, fields map[string]any) {
		if err := run.LogStep(step, fields); err != nil {
			fmt.Fprintf(os.Stderr, "warn: step log: %v\n", err)
		}
	}

	var paths []string
	if cfg.PDF != "" {
		fmt.Printf("\n=== Extracting pages: %s ===\n", cfg.PDF)
		paths, err = ingest.FromPDF(cfg.PDF, run)
	} else {
		fmt.Printf("\n=== Listing pages: %s ===\n", cfg.ImagesDir)
		paths, err = ingest.FromDir(cfg.ImagesDir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%d pages\n", len(paths))
	source := cfg.PDF
	if source == "" {
		source = cfg.ImagesDir
	}
	logStep("ingest", map[string]any{"pages": len(paths), "source": source, "run_dir": run.Dir})

	opts := pipeline.DefaultOptions()
	opts.Workers = cfg.Workers
	opts.ColorFusion = cfg.ColorFusion
	opts.PageDPI = cfg.DPI
	opts.Verbose = cfg.Verbose
	opts.Align.OKMaxPx = cfg.ResidualOKPx
	opts.Align.WarnMaxPx = cfg.ResidualWarnPx
	opts.Align.MarginInches = cfg.CropMarginInches
	opts.Align.StopOnFail = cfg.StopOnFail

	// The sink runs on worker goroutines while each crop is still
	// open; pages write disjoint files, so no locking.
	var pipe *pipeline.Pipeline
	opts.Artifacts = func(res pipeline.PageResult, aligned gocv.Mat) {
		if aligned.Empty() {
			return
		}
		if !gocv.IMWrite(run.AlignedPath(res.Page), aligned) {
			fmt.Fprintf(os.Stderr, "warn: page %d: aligned image not written\n", res.Page)
		}
		if !cfg.Overlays {
			return
		}
		overlay := review.Overlay(aligned, pipe.Specs(), res.Checkboxes, pipe.Classifier().Cutoff, review.DefaultStyle())
		if !gocv.IMWrite(run.OverlayPath(res.Page), overlay) {
			fmt.Fprintf(os.Stderr, "warn: page %d: overlay not written\n", res.Page)
		}
		overlay.Close()
	}

	pipe, err = pipeline.New(tpl, params, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Processing (%d workers) ===\n", cfg.Workers)
	report := pipe.Run(paths)

	if err := report.SaveJSON(run.ReportPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
		os.Exit(1)
	}
	if err := report.SaveCSV(run.ResultsCSVPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write results CSV: %v\n", err)
		os.Exit(1)
	}
	logStep("classify", map[string]any{
		"pages": report.Total, "aligned": report.Aligned, "marked": report.Marked,
	})

	queue := review.NewBuilder(pipe.Classifier(), review.Options{
		NearMargin:     cfg.NearMargin,
		ResidualFailPx: cfg.ResidualWarnPx,
	}).Build(report.Pages)
	if err := queue.SaveJSON(run.ReviewJSONPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write review queue: %v\n", err)
		os.Exit(1)
	}
	if err := queue.SaveCSV(run.ReviewCSVPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write review CSV: %v\n", err)
		os.Exit(1)
	}
	logStep("review", map[string]any{"queued": len(queue.Items)})

	if cfg.Thumbnails && len(queue.Items) > 0 {
		writeReviewImages(run, queue, pipe.Specs(), tpl)
	}

	high := 0
	for _, item := range queue.Items {
		if item.Priority == review.PriorityHigh {
			high++
		}
	}

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Pages: %d  aligned %d (%d warn)  failed %d  unaligned %d  errors %d\n",
		report.Total, report.Aligned, report.Warned, report.Failed, report.Unaligned, report.Errors)
	fmt.Printf("Marked: %d checkboxes\n", report.Marked)
	fmt.Printf("Review: %d pages queued (%d high priority)\n", len(queue.Items), high)
	fmt.Printf("Elapsed: %d ms\n", report.ElapsedMS)
	fmt.Printf("Artifacts: %s\n", run.Dir)

	if cfg.StopOnFail && report.Failed+report.Unaligned+report.Errors > 0 {
		os.Exit(1)
	}
}

// resolveParams picks the classifier: an explicit model file wins,
// then the threshold chain of flag, template, stock default.
func resolveParams(cfg *config.Config, tpl *template.Template) (checkbox.Params, error) {
	if cfg.ModelPath != "" {
		params, err := checkbox.LoadParams(cfg.ModelPath)
		if err != nil {
			return checkbox.Params{}, err
		}
		if _, ok := cfg.ThresholdFraction(); ok {
			fmt.Println("Note: --threshold is ignored when --model is given")
		}
		return params, nil
	}

	global := 0.0
	if v, ok := cfg.ThresholdFraction(); ok {
		global = v
	} else if v, ok := tpl.FillThreshold(); ok {
		global = v
	}
	return checkbox.ThresholdParams(global, tpl.QuestionThresholds()), nil
}

// writeReviewImages adds a contact sheet per queued page and a
// thumbnail per low-confidence checkbox, cropped from the aligned
// images written during the run.
func writeReviewImages(run *ingest.Run, queue *review.Queue, specs []checkbox.Spec, tpl *template.Template) {
	specByID := make(map[string]checkbox.Spec, len(specs))
	for _, s := range specs {
		specByID[s.ID] = s
	}
	flagged := make(map[int][]review.BoxRecord)
	for _, b := range queue.Boxes {
		if b.Confidence == review.ConfidenceLow || b.Confidence == review.ConfidenceVeryLow {
			flagged[b.Page] = append(flagged[b.Page], b)
		}
	}

	cols := 5
	if tpl.Grid != nil && tpl.Grid.Cols > 0 {
		cols = tpl.Grid.Cols
	}

	for _, item := range queue.Items {
		img, err := imaging.Open(run.AlignedPath(item.Page))
		if err != nil {
			// Pages queued only for alignment problems have no crop.
			continue
		}

		sheet := review.Montage(img, specs, cols, review.DefaultMontageOptions())
		if err := imaging.Save(sheet, run.MontagePath(item.Page)); err != nil {
			fmt.Fprintf(os.Stderr, "warn: page %d: montage not written: %v\n", item.Page, err)
		}

		for _, b := range flagged[item.Page] {
			spec, ok := specByID[b.ID]
			if !ok {
				continue
			}
			const pad = 8
			thumb := review.Thumbnail(img, spec.Rect, pad, 3*(spec.Rect.Width+2*pad))
			if err := imaging.Save(thumb, run.ThumbPath(item.Page, b.ID)); err != nil {
				fmt.Fprintf(os.Stderr, "warn: page %d: thumbnail %s not written: %v\n", item.Page, b.ID, err)
			}
		}
	}
}
