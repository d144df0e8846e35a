// Package calibrate fits checkbox classifier parameters from graded
// examples: feature standardization, a class-balanced logistic model,
// and the decision threshold that minimizes weighted misclassification.
package calibrate

import (
	"fmt"
	"math"

	"formscan/internal/checkbox"

	"gonum.org/v1/gonum/floats"
)

// FitOptions tunes the calibration run. Everything is deterministic:
// zero initialization, fixed iteration count, no sampling.
type FitOptions struct {
	Folds        int
	Iterations   int
	LearningRate float64
	L2           float64

	// Sweep objective: FNCost*falseNegatives + FPCost*falsePositives.
	FNCost float64
	FPCost float64

	SweepMin  float64
	SweepMax  float64
	SweepStep float64
}

// DefaultFitOptions mirrors the stock calibration run: 5-fold CV and
// a 0.30-0.75 sweep in 0.05 steps.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Folds:        5,
		Iterations:   2000,
		LearningRate: 0.5,
		L2:           1.0,
		FNCost:       1.0,
		FPCost:       1.0,
		SweepMin:     0.30,
		SweepMax:     0.75,
		SweepStep:    0.05,
	}
}

// SweepPoint records the error counts at one candidate threshold.
type SweepPoint struct {
	Threshold      float64 `json:"threshold"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Objective      float64 `json:"objective"`
}

// Report summarizes a calibration run for humans and run logs.
type Report struct {
	Examples int `json:"examples"`
	Marked   int `json:"marked"`
	Unmarked int `json:"unmarked"`

	FoldAccuracies []float64 `json:"fold_accuracies"`
	MeanCVAccuracy float64   `json:"mean_cv_accuracy"`

	TrainingAccuracy float64 `json:"training_accuracy"`
	FalsePositives   int     `json:"false_positives"`
	FalseNegatives   int     `json:"false_negatives"`

	ChosenThreshold float64            `json:"chosen_threshold"`
	Sweep           []SweepPoint       `json:"sweep"`
	FeatureWeights  map[string]float64 `json:"feature_weights"`
}

// Fit calibrates model-mode classifier parameters from the training
// set. Degenerate sets (empty, single-class, or smaller than the fold
// count) fail the invocation; nothing else in a run is affected.
func Fit(ts *TrainingSet, opts FitOptions) (checkbox.Params, *Report, error) {
	examples := ts.Snapshot()
	n := len(examples)
	if n == 0 {
		return checkbox.Params{}, nil, fmt.Errorf("training set is empty")
	}
	if opts.Folds < 2 {
		return checkbox.Params{}, nil, fmt.Errorf("need at least 2 folds, got %d", opts.Folds)
	}
	if n < opts.Folds {
		return checkbox.Params{}, nil, fmt.Errorf("%d examples cannot fill %d folds", n, opts.Folds)
	}

	X := make([][]float64, n)
	y := make([]bool, n)
	marked := 0
	for i, ex := range examples {
		X[i] = ex.Features.Slice()
		y[i] = ex.Marked
		if ex.Marked {
			marked++
		}
	}
	if marked == 0 || marked == n {
		return checkbox.Params{}, nil, fmt.Errorf("training set has a single class (%d of %d marked)", marked, n)
	}

	means, stds := featureStats(X)
	Z := standardizeAll(X, means, stds)

	// Held-out accuracy per fold, then the final model on everything.
	folds := stratifiedFolds(y, opts.Folds)
	accuracies := make([]float64, opts.Folds)
	for f := 0; f < opts.Folds; f++ {
		var trainX [][]float64
		var trainY []bool
		for i := range Z {
			if folds[i] != f {
				trainX = append(trainX, Z[i])
				trainY = append(trainY, y[i])
			}
		}
		w, b := trainLogistic(trainX, trainY, opts)

		correct, total := 0, 0
		for i := range Z {
			if folds[i] != f {
				continue
			}
			total++
			if (logisticScore(Z[i], w, b) >= 0.5) == y[i] {
				correct++
			}
		}
		if total > 0 {
			accuracies[f] = float64(correct) / float64(total)
		}
	}

	w, b := trainLogistic(Z, y, opts)

	scores := make([]float64, n)
	for i := range Z {
		scores[i] = logisticScore(Z[i], w, b)
	}
	threshold, sweep := chooseThreshold(scores, y, opts)

	var fp, fn int
	for i, s := range scores {
		switch {
		case s >= threshold && !y[i]:
			fp++
		case s < threshold && y[i]:
			fn++
		}
	}

	params := checkbox.Params{
		Mode:              checkbox.ModeModel,
		FeatureMeans:      means,
		FeatureStds:       stds,
		Weights:           w,
		Bias:              b,
		DecisionThreshold: threshold,
	}
	if err := params.Validate(); err != nil {
		return checkbox.Params{}, nil, fmt.Errorf("calibrated parameters invalid: %w", err)
	}

	weights := make(map[string]float64, checkbox.FeatureCount)
	for i, name := range checkbox.FeatureNames() {
		weights[name] = w[i]
	}

	report := &Report{
		Examples:         n,
		Marked:           marked,
		Unmarked:         n - marked,
		FoldAccuracies:   accuracies,
		MeanCVAccuracy:   floats.Sum(accuracies) / float64(len(accuracies)),
		TrainingAccuracy: float64(n-fp-fn) / float64(n),
		FalsePositives:   fp,
		FalseNegatives:   fn,
		ChosenThreshold:  threshold,
		Sweep:            sweep,
		FeatureWeights:   weights,
	}
	return params, report, nil
}

// featureStats computes per-feature population mean and std.
func featureStats(X [][]float64) (means, stds []float64) {
	n := float64(len(X))
	means = make([]float64, checkbox.FeatureCount)
	stds = make([]float64, checkbox.FeatureCount)

	for _, row := range X {
		floats.Add(means, row)
	}
	floats.Scale(1/n, means)

	for _, row := range X {
		for j, v := range row {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
	}
	return means, stds
}

// standardizeAll maps X through (x-mean)/std with a unit divisor for
// constant features.
func standardizeAll(X [][]float64, means, stds []float64) [][]float64 {
	Z := make([][]float64, len(X))
	for i, row := range X {
		z := make([]float64, len(row))
		for j, v := range row {
			std := stds[j]
			if std <= 0 {
				std = 1
			}
			z[j] = (v - means[j]) / std
		}
		Z[i] = z
	}
	return Z
}

// stratifiedFolds assigns examples to folds round-robin within each
// class, so every fold sees the same class balance without any RNG.
func stratifiedFolds(y []bool, folds int) []int {
	assign := make([]int, len(y))
	nextPos, nextNeg := 0, 0
	for i, marked := range y {
		if marked {
			assign[i] = nextPos % folds
			nextPos++
		} else {
			assign[i] = nextNeg % folds
			nextNeg++
		}
	}
	return assign
}

// balancedWeights gives each example the sklearn "balanced" weight
// n/(k*n_class), so the minority marked class pulls as hard as the
// majority.
func balancedWeights(y []bool) []float64 {
	n := float64(len(y))
	pos := 0
	for _, marked := range y {
		if marked {
			pos++
		}
	}
	neg := len(y) - pos

	weights := make([]float64, len(y))
	for i, marked := range y {
		if marked {
			weights[i] = n / (2 * float64(pos))
		} else {
			weights[i] = n / (2 * float64(neg))
		}
	}
	return weights
}

// trainLogistic fits weights and bias by batch gradient descent on
// the weighted logistic loss with L2 on the weights (not the bias).
// Zero initialization and a fixed iteration count keep repeated runs
// byte-identical.
func trainLogistic(X [][]float64, y []bool, opts FitOptions) ([]float64, float64) {
	n := len(X)
	w := make([]float64, checkbox.FeatureCount)
	var b float64
	if n == 0 {
		return w, b
	}
	sw := balancedWeights(y)

	grad := make([]float64, checkbox.FeatureCount)
	for it := 0; it < opts.Iterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradB float64

		for i, z := range X {
			p := logisticScore(z, w, b)
			target := 0.0
			if y[i] {
				target = 1.0
			}
			err := sw[i] * (p - target)
			floats.AddScaled(grad, err, z)
			gradB += err
		}

		scale := opts.LearningRate / float64(n)
		floats.AddScaled(grad, opts.L2, w)
		floats.AddScaled(w, -scale, grad)
		b -= scale * gradB
	}
	return w, b
}

// logisticScore is sigmoid(w·z + b).
func logisticScore(z, w []float64, b float64) float64 {
	return 1 / (1 + math.Exp(-(floats.Dot(w, z) + b)))
}

// chooseThreshold sweeps candidate decision thresholds and picks the
// one minimizing the weighted error. Ties prefer fewer false
// negatives, then the lower threshold; ascending order makes the
// low-threshold preference fall out of strict comparison.
func chooseThreshold(scores []float64, y []bool, opts FitOptions) (float64, []SweepPoint) {
	steps := int(math.Round((opts.SweepMax-opts.SweepMin)/opts.SweepStep)) + 1
	if steps < 1 {
		steps = 1
	}

	var sweep []SweepPoint
	best := -1
	for s := 0; s < steps; s++ {
		t := opts.SweepMin + float64(s)*opts.SweepStep
		var fp, fn int
		for i, score := range scores {
			switch {
			case score >= t && !y[i]:
				fp++
			case score < t && y[i]:
				fn++
			}
		}
		point := SweepPoint{
			Threshold:      t,
			FalsePositives: fp,
			FalseNegatives: fn,
			Objective:      opts.FNCost*float64(fn) + opts.FPCost*float64(fp),
		}
		sweep = append(sweep, point)

		if best < 0 ||
			point.Objective < sweep[best].Objective ||
			(point.Objective == sweep[best].Objective && point.FalseNegatives < sweep[best].FalseNegatives) {
			best = s
		}
	}
	return sweep[best].Threshold, sweep
}
