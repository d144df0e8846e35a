// Command featuredump measures labeled checkboxes on aligned page images and
// writes a training set for the calibrator.
//
// The labels CSV carries page,checkbox_id,marked rows from human grading;
// every labeled checkbox found on a supplied image becomes one example.
//
// Usage: featuredump -t <template.json> -labels <graded.csv> <aligned-page.png> [...]
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"formscan/internal/align"
	"formscan/internal/calibrate"
	"formscan/internal/checkbox"
	"formscan/internal/page"
	"formscan/internal/template"

	"gocv.io/x/gocv"
)

type label struct {
	marked bool
	used   bool
}

func main() {
	tplPath := flag.String("t", "", "Form template JSON")
	labelsPath := flag.String("labels", "", "CSV of graded checkboxes (page,checkbox_id,marked)")
	out := flag.String("o", "training.json", "Output training set JSON")
	appendTo := flag.Bool("append", false, "Merge into the output file instead of replacing it")
	margin := flag.Float64("margin", 0, "Crop margin inches used when the pages were aligned (0 = template or stock)")
	fusion := flag.Bool("color-fusion", false, "Measure on min(gray, blue) as the run did")
	flag.Parse()

	images := flag.Args()
	if *tplPath == "" || *labelsPath == "" || len(images) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s -t <template.json> -labels <graded.csv> [-o training.json] <aligned-page.png> [...]\n", os.Args[0])
		os.Exit(1)
	}

	tpl, err := template.Load(*tplPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load template: %v\n", err)
		os.Exit(1)
	}
	labels, err := loadLabels(*labelsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load labels: %v\n", err)
		os.Exit(1)
	}

	// Checkbox rects must match the crop the run aligned into, so the
	// margin has to agree with the one used then.
	alignOpts := align.DefaultOptions()
	if *margin > 0 {
		alignOpts.MarginInches = *margin
	} else if tpl.Detection != nil && tpl.Detection.CropMarginInches > 0 {
		alignOpts.MarginInches = tpl.Detection.CropMarginInches
	}
	crop := align.New(tpl, alignOpts).Crop()
	specs := checkbox.SpecsFromTemplate(tpl, crop)

	var ts *calibrate.TrainingSet
	if *appendTo {
		ts, err = calibrate.LoadTrainingSet(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load training set: %v\n", err)
			os.Exit(1)
		}
	} else {
		ts = calibrate.NewTrainingSet()
		ts.SetFilePath(*out)
	}

	extractor := checkbox.NewExtractor()
	degenerate := 0
	for _, imgPath := range images {
		pg, err := page.Load(imgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", imgPath, err)
			continue
		}
		if pg.Number == 0 {
			fmt.Fprintf(os.Stderr, "Skipping %s: no page number in the filename\n", imgPath)
			continue
		}

		raw := pg.Mat()
		var gray gocv.Mat
		if *fusion {
			gray = page.FusedGray(raw)
		} else {
			gray = page.Gray(raw)
		}

		added := 0
		for _, spec := range specs {
			lb, ok := labels[labelKey(pg.Number, spec.ID)]
			if !ok {
				continue
			}
			lb.used = true
			fv, ok := extractor.Extract(gray, spec.Rect)
			if !ok {
				degenerate++
				continue
			}
			ts.Add(fv, lb.marked, strconv.Itoa(pg.Number), spec.ID, filepath.Base(imgPath))
			added++
		}

		gray.Close()
		raw.Close()
		fmt.Printf("%s: %d examples\n", imgPath, added)
	}

	unmatched := 0
	for _, lb := range labels {
		if !lb.used {
			unmatched++
		}
	}
	if unmatched > 0 {
		fmt.Printf("Warning: %d labels matched no supplied page or checkbox\n", unmatched)
	}
	if degenerate > 0 {
		fmt.Printf("Warning: %d labeled regions were degenerate and skipped\n", degenerate)
	}

	if ts.Len() == 0 {
		fmt.Fprintln(os.Stderr, "No examples produced; nothing written")
		os.Exit(1)
	}
	if err := ts.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write training set: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Training set: %d examples (%d marked, %d unmarked) -> %s\n",
		ts.Len(), ts.MarkedCount(), ts.UnmarkedCount(), *out)
}

// loadLabels reads the grading CSV. Column order is fixed; a header
// row is recognized by its non-numeric page field and skipped.
func loadLabels(path string) (map[string]*label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	labels := make(map[string]*label, len(rows))
	for i, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("row %d: want page,checkbox_id,marked", i+1)
		}
		pageNum, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("row %d: bad page %q", i+1, row[0])
		}
		m, err := parseMarked(row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		labels[labelKey(pageNum, strings.TrimSpace(row[1]))] = &label{marked: m}
	}
	return labels, nil
}

// parseMarked accepts the spellings graders actually type.
func parseMarked(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "x", "yes", "y", "checked":
		return true, nil
	case "0", "false", "", "no", "n", "unchecked":
		return false, nil
	}
	return false, fmt.Errorf("bad marked value %q", s)
}

func labelKey(page int, id string) string {
	return strconv.Itoa(page) + ":" + id
}
