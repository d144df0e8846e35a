// Command aligncheck runs anchor detection and alignment on one page and prints diagnostics.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"

	"formscan/internal/align"
	"formscan/internal/anchor"
	"formscan/internal/page"
	"formscan/internal/template"
	"formscan/pkg/colorutil"

	"gocv.io/x/gocv"
)

func main() {
	tplPath := flag.String("t", "", "Form template JSON")
	imgPath := flag.String("i", "", "Page image to check")
	dpi := flag.Float64("dpi", 0, "Assumed DPI when the image carries none")
	window := flag.Int("window", 0, "Anchor search window half-size in px (0 = default)")
	cropOut := flag.String("crop", "", "Write the aligned crop to this path")
	markedOut := flag.String("marked", "", "Write the page with detected anchors marked to this path")
	strict := flag.Bool("strict", false, "Exit nonzero when the alignment tier is fail")
	flag.Parse()

	if *tplPath == "" || *imgPath == "" {
		fmt.Println("Usage: aligncheck -t <template.json> -i <page image> [-crop out.png] [-marked out.png]")
		os.Exit(1)
	}

	tpl, err := template.Load(*tplPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load template: %v\n", err)
		os.Exit(1)
	}

	pg, err := page.Load(*imgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load page: %v\n", err)
		os.Exit(1)
	}
	if *dpi > 0 && pg.DPI == page.DefaultDPI {
		pg.DPI = *dpi
	}

	fmt.Printf("=== Page: %s ===\n", *imgPath)
	fmt.Printf("%dx%d px @ %.0f DPI\n", pg.Width(), pg.Height(), pg.DPI)

	params := anchor.DefaultParams()
	if *window > 0 {
		params.WindowHalfPx = *window
	}
	params = params.WithDPI(pg.DPI)

	raw := pg.Mat()
	defer raw.Close()
	gray := page.Gray(raw)
	defer gray.Close()

	specs := anchor.SpecsForPage(tpl, pg.Width(), pg.Height(), params.WindowHalfPx)
	detector := anchor.NewDetector(params)
	found := detector.FindAll(gray, specs)

	fmt.Printf("\n=== Anchors: %d/%d ===\n", found.Count(), template.AnchorCount)
	fmt.Printf("%-13s %-15s %7s %7s %7s %7s %9s\n",
		"corner", "position", "area", "shape", "dist", "conf", "offset")
	for _, c := range found.Found {
		fmt.Printf("%-13s (%5.0f,%6.0f) %7.0f %7.3f %7.3f %7.3f %7.1fpx\n",
			c.Corner, c.Position.X, c.Position.Y,
			c.Area, c.ShapeScore, c.DistanceScore, c.Confidence, c.DistancePx)
	}
	for _, c := range found.Missing {
		fmt.Printf("%-13s MISSING\n", c)
	}

	if *markedOut != "" {
		writeMarked(raw, found, *markedOut)
	}

	aligner := align.New(tpl, align.DefaultOptions().WithDPI(pg.DPI))
	res, err := aligner.Align(raw, found)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nAlignment failed: %v\n", err)
		os.Exit(1)
	}
	defer res.Close()

	kind := "projective"
	if res.AnchorsUsed == 3 {
		kind = "affine"
	}
	fmt.Printf("\n=== Alignment ===\n")
	fmt.Printf("Transform: %s from %d anchors\n", kind, res.AnchorsUsed)
	fmt.Printf("Residuals:")
	for _, r := range res.Residuals {
		fmt.Printf(" %.2f", r)
	}
	fmt.Printf(" px\n")
	fmt.Printf("Mean: %.2f px [%s]\n", res.MeanResidual, res.Tier)
	fmt.Printf("Crop: %dx%d at (%d,%d)\n", res.Crop.Width, res.Crop.Height, res.Crop.X, res.Crop.Y)

	if *cropOut != "" {
		if !gocv.IMWrite(*cropOut, res.Image) {
			fmt.Fprintf(os.Stderr, "Failed to write crop to %s\n", *cropOut)
			os.Exit(1)
		}
		fmt.Printf("Crop written: %s\n", *cropOut)
	}

	if *strict && res.Tier == align.QualityFail {
		os.Exit(1)
	}
}

// writeMarked saves the page with a circle and corner label on every
// detected anchor.
func writeMarked(raw gocv.Mat, found anchor.Result, path string) {
	vis := gocv.NewMat()
	defer vis.Close()
	if raw.Channels() == 1 {
		gocv.CvtColor(raw, &vis, gocv.ColorGrayToBGR)
	} else {
		raw.CopyTo(&vis)
	}

	for _, c := range found.Found {
		pt := image.Pt(int(c.Position.X+0.5), int(c.Position.Y+0.5))
		gocv.Circle(&vis, pt, 14, colorutil.LimeGreen, 2)
		gocv.PutText(&vis, c.Corner.Short(), image.Pt(pt.X+18, pt.Y+6),
			gocv.FontHersheySimplex, 0.6, colorutil.LimeGreen, 2)
	}

	if !gocv.IMWrite(path, vis) {
		fmt.Fprintf(os.Stderr, "Failed to write %s\n", path)
		return
	}
	fmt.Printf("Marked page written: %s\n", path)
}
