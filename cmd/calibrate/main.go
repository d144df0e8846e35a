// Command calibrate fits classifier parameters from graded checkbox examples.
// It merges one or more training set JSON files, cross-validates a logistic
// model, sweeps the decision threshold, and writes the chosen parameters.
//
// Usage: calibrate [-o model.json] <training-set.json> [more.json ...]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"

	"formscan/internal/calibrate"
)

func main() {
	out := flag.String("o", "model.json", "Output path for the fitted parameters")
	reportOut := flag.String("report", "", "Optional path for the full calibration report JSON")
	folds := flag.Int("folds", 0, "Cross-validation folds (0 = default)")
	fnCost := flag.Float64("fn-cost", 0, "Sweep cost of a missed mark (0 = default)")
	fpCost := flag.Float64("fp-cost", 0, "Sweep cost of a phantom mark (0 = default)")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-o model.json] <training-set.json> [more.json ...]\n", os.Args[0])
		os.Exit(1)
	}

	merged := calibrate.NewTrainingSet()
	fmt.Println("Loading training sets:")
	for _, path := range paths {
		ts, err := calibrate.LoadTrainingSet(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", path, err)
			os.Exit(1)
		}
		added := merged.Merge(ts)
		fmt.Printf("  %s: %d examples (+%d new)\n", path, ts.Len(), added)
	}
	fmt.Printf("Total: %d examples (%d marked, %d unmarked)\n\n",
		merged.Len(), merged.MarkedCount(), merged.UnmarkedCount())

	opts := calibrate.DefaultFitOptions()
	if *folds > 0 {
		opts.Folds = *folds
	}
	if *fnCost > 0 {
		opts.FNCost = *fnCost
	}
	if *fpCost > 0 {
		opts.FPCost = *fpCost
	}

	params, report, err := calibrate.Fit(merged, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calibration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Cross-validation (%d folds):\n", opts.Folds)
	for i, acc := range report.FoldAccuracies {
		fmt.Printf("  fold %d: %5.1f%%\n", i+1, acc*100)
	}
	fmt.Printf("  mean:   %5.1f%%\n\n", report.MeanCVAccuracy*100)

	fmt.Printf("Training accuracy: %.1f%% (%d fp, %d fn)\n\n",
		report.TrainingAccuracy*100, report.FalsePositives, report.FalseNegatives)

	fmt.Println("Threshold sweep:")
	for _, p := range report.Sweep {
		marker := " "
		if p.Threshold == report.ChosenThreshold {
			marker = "*"
		}
		fmt.Printf("  %s %.2f  fp=%-3d fn=%-3d cost=%.1f\n",
			marker, p.Threshold, p.FalsePositives, p.FalseNegatives, p.Objective)
	}
	fmt.Printf("Chosen threshold: %.2f\n\n", report.ChosenThreshold)

	fmt.Println("Feature weights (standardized):")
	for _, name := range weightOrder(report.FeatureWeights) {
		fmt.Printf("  %-22s %+.4f\n", name, report.FeatureWeights[name])
	}

	if err := params.Save(*out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing parameters: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nParameters written: %s\n", *out)

	if *reportOut != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			err = os.WriteFile(*reportOut, data, 0644)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Report written: %s\n", *reportOut)
	}
}

// weightOrder sorts feature names by descending weight magnitude.
func weightOrder(weights map[string]float64) []string {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		wi, wj := math.Abs(weights[names[i]]), math.Abs(weights[names[j]])
		if wi != wj {
			return wi > wj
		}
		return names[i] < names[j]
	})
	return names
}
