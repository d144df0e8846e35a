package checkbox

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Mode selects how a classifier turns features into a decision.
type Mode string

const (
	// ModeThreshold compares the fill ratio against a cutoff.
	ModeThreshold Mode = "threshold"
	// ModeModel scores through a standardized linear model.
	ModeModel Mode = "model"
)

// DefaultFillThreshold is the fallback fill-ratio cutoff when neither
// template nor configuration provides one.
const DefaultFillThreshold = 0.115

// Params holds everything a classifier needs, in either mode. The
// model fields are fixed at calibration time and replaced only by
// re-running the calibrator.
type Params struct {
	Mode Mode `json:"mode"`

	// Threshold mode.
	FillThreshold   float64            `json:"fill_threshold,omitempty"`
	GroupThresholds map[string]float64 `json:"group_thresholds,omitempty"`

	// Model mode. Means/stds standardize features before the linear
	// combination; all three run in FeatureVector.Slice order.
	FeatureMeans      []float64 `json:"feature_means,omitempty"`
	FeatureStds       []float64 `json:"feature_stds,omitempty"`
	Weights           []float64 `json:"weights,omitempty"`
	Bias              float64   `json:"bias,omitempty"`
	DecisionThreshold float64   `json:"decision_threshold,omitempty"`
}

// DefaultParams is threshold mode with the stock global cutoff.
func DefaultParams() Params {
	return Params{Mode: ModeThreshold, FillThreshold: DefaultFillThreshold}
}

// ThresholdParams builds threshold-mode parameters. A non-positive
// global cutoff falls back to the default; perGroup may be nil.
func ThresholdParams(global float64, perGroup map[string]float64) Params {
	if global <= 0 {
		global = DefaultFillThreshold
	}
	return Params{Mode: ModeThreshold, FillThreshold: global, GroupThresholds: perGroup}
}

// Validate checks the parameters for the declared mode.
func (p Params) Validate() error {
	switch p.Mode {
	case ModeThreshold:
		if p.FillThreshold <= 0 || p.FillThreshold >= 1 {
			return fmt.Errorf("fill threshold out of (0,1): %g", p.FillThreshold)
		}
		for g, t := range p.GroupThresholds {
			if t <= 0 || t >= 1 {
				return fmt.Errorf("group %s threshold out of (0,1): %g", g, t)
			}
		}
	case ModeModel:
		if len(p.Weights) != FeatureCount ||
			len(p.FeatureMeans) != FeatureCount ||
			len(p.FeatureStds) != FeatureCount {
			return fmt.Errorf("model needs %d weights/means/stds, got %d/%d/%d",
				FeatureCount, len(p.Weights), len(p.FeatureMeans), len(p.FeatureStds))
		}
		if p.DecisionThreshold <= 0 || p.DecisionThreshold >= 1 {
			return fmt.Errorf("decision threshold out of (0,1): %g", p.DecisionThreshold)
		}
	default:
		return fmt.Errorf("unknown classifier mode %q", p.Mode)
	}
	return nil
}

// Save writes the parameters to a JSON file.
func (p Params) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal classifier params: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadParams reads and validates parameters from a JSON file.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, err
	}
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("unmarshal classifier params %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("classifier params %s: %w", path, err)
	}
	return p, nil
}

// Result is the terminal output for one checkbox on one page.
type Result struct {
	ID         string        `json:"id"`
	Group      string        `json:"group,omitempty"`
	Marked     bool          `json:"marked"`
	Score      float64       `json:"score"`
	Degenerate bool          `json:"degenerate,omitempty"`
	Features   FeatureVector `json:"features"`
}

// Classifier maps feature vectors to scores and decisions. Safe for
// concurrent use once constructed.
type Classifier struct {
	params Params
}

// NewClassifier validates the parameters and wraps them.
func NewClassifier(p Params) (*Classifier, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{params: p}, nil
}

// Params returns the loaded parameters.
func (c *Classifier) Params() Params {
	return c.params
}

// Classify scores one measured checkbox. Pure function of the loaded
// parameters.
func (c *Classifier) Classify(spec Spec, fv FeatureVector) Result {
	score := c.Score(fv)
	return Result{
		ID:       spec.ID,
		Group:    spec.Group,
		Marked:   score >= c.Cutoff(spec.Group),
		Score:    score,
		Features: fv,
	}
}

// ClassifyDegenerate reports a region the extractor could not measure:
// unmarked at zero confidence, flagged, never an error.
func (c *Classifier) ClassifyDegenerate(spec Spec) Result {
	return Result{ID: spec.ID, Group: spec.Group, Degenerate: true}
}

// Score computes the continuous marked-ness score in [0,1].
func (c *Classifier) Score(fv FeatureVector) float64 {
	if c.params.Mode != ModeModel {
		return fv.FillRatio
	}
	x := fv.Slice()
	z := c.params.Bias
	for i, v := range x {
		std := c.params.FeatureStds[i]
		if std <= 0 {
			std = 1
		}
		z += c.params.Weights[i] * ((v - c.params.FeatureMeans[i]) / std)
	}
	return sigmoid(z)
}

// Cutoff resolves the decision threshold for a checkbox group: the
// model's decision threshold in model mode, otherwise the group
// override or the global fill threshold.
func (c *Classifier) Cutoff(group string) float64 {
	if c.params.Mode == ModeModel {
		return c.params.DecisionThreshold
	}
	if t, ok := c.params.GroupThresholds[group]; ok {
		return t
	}
	return c.params.FillThreshold
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
