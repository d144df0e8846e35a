// Package config assembles run configuration from defaults, an
// optional YAML file, environment variables, and command line flags,
// later sources winning.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FORMSCAN"

// Config holds everything the scanner binary needs for one run.
type Config struct {
	// Inputs. Exactly one of PDF or ImagesDir must be set.
	PDF       string
	ImagesDir string

	TemplatePath string
	ModelPath    string
	OutputDir    string

	// DPI assumed for page images without resolution metadata.
	DPI     float64
	Workers int

	// ThresholdPercent overrides the fill threshold (11.5 means a
	// 0.115 fill ratio). Zero defers to the template, then the stock
	// default.
	ThresholdPercent float64

	ResidualOKPx     float64
	ResidualWarnPx   float64
	CropMarginInches float64
	StopOnFail       bool
	ColorFusion      bool

	// Review artifacts
	NearMargin float64
	Overlays   bool
	Thumbnails bool

	Verbose bool
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		OutputDir:        "artifacts",
		DPI:              300,
		Workers:          runtime.NumCPU(),
		ResidualOKPx:     4.5,
		ResidualWarnPx:   6.0,
		CropMarginInches: 0.125,
		NearMargin:       0.03,
		Overlays:         true,
		Thumbnails:       true,
	}
}

// Load builds the configuration from all sources and validates it.
// Flags are parsed from os.Args.
func Load() (*Config, error) {
	cfg := Default()

	setupViper(cfg)
	defineFlags(cfg)
	bindFlags()

	pflag.Usage = Usage
	pflag.Parse()

	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	populate(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupViper(cfg *Config) {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("pdf", cfg.PDF)
	viper.SetDefault("images", cfg.ImagesDir)
	viper.SetDefault("template", cfg.TemplatePath)
	viper.SetDefault("model", cfg.ModelPath)
	viper.SetDefault("out", cfg.OutputDir)
	viper.SetDefault("dpi", cfg.DPI)
	viper.SetDefault("workers", cfg.Workers)
	viper.SetDefault("threshold", cfg.ThresholdPercent)
	viper.SetDefault("residual-ok", cfg.ResidualOKPx)
	viper.SetDefault("residual-warn", cfg.ResidualWarnPx)
	viper.SetDefault("margin", cfg.CropMarginInches)
	viper.SetDefault("stop-on-fail", cfg.StopOnFail)
	viper.SetDefault("color-fusion", cfg.ColorFusion)
	viper.SetDefault("near-margin", cfg.NearMargin)
	viper.SetDefault("overlays", cfg.Overlays)
	viper.SetDefault("thumbnails", cfg.Thumbnails)
	viper.SetDefault("verbose", cfg.Verbose)
}

func defineFlags(cfg *Config) {
	pflag.String("pdf", cfg.PDF, "Input PDF to split into pages")
	pflag.String("images", cfg.ImagesDir, "Directory of already-extracted page images")
	pflag.String("template", cfg.TemplatePath, "Form template JSON")
	pflag.String("model", cfg.ModelPath, "Trained classifier parameters JSON (omit for threshold mode)")
	pflag.String("out", cfg.OutputDir, "Directory run artifacts are written under")
	pflag.String("config", "", "Optional YAML configuration file")
	pflag.Float64("dpi", cfg.DPI, "Assumed DPI for images without resolution metadata")
	pflag.Int("workers", cfg.Workers, "Concurrent page workers")
	pflag.Float64("threshold", cfg.ThresholdPercent, "Fill threshold override in percent (11.5 = 0.115)")
	pflag.Float64("residual-ok", cfg.ResidualOKPx, "Mean residual ceiling for ok alignment, px at 300 DPI")
	pflag.Float64("residual-warn", cfg.ResidualWarnPx, "Mean residual ceiling for warn alignment, px at 300 DPI")
	pflag.Float64("margin", cfg.CropMarginInches, "Outward crop margin beyond the anchors, inches")
	pflag.Bool("stop-on-fail", cfg.StopOnFail, "Treat fail-tier alignment as a hard page failure")
	pflag.Bool("color-fusion", cfg.ColorFusion, "Fuse the blue channel into grayscale before measuring")
	pflag.Float64("near-margin", cfg.NearMargin, "Score distance from the threshold that flags review")
	pflag.Bool("overlays", cfg.Overlays, "Write per-page QA overlay images")
	pflag.Bool("thumbnails", cfg.Thumbnails, "Write per-checkbox review thumbnails")
	pflag.BoolP("verbose", "v", cfg.Verbose, "Print one line per processed page")
}

func bindFlags() {
	for _, name := range []string{
		"pdf", "images", "template", "model", "out", "config",
		"dpi", "workers", "threshold", "residual-ok", "residual-warn",
		"margin", "stop-on-fail", "color-fusion", "near-margin",
		"overlays", "thumbnails", "verbose",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

func populate(cfg *Config) {
	cfg.PDF = viper.GetString("pdf")
	cfg.ImagesDir = viper.GetString("images")
	cfg.TemplatePath = viper.GetString("template")
	cfg.ModelPath = viper.GetString("model")
	cfg.OutputDir = viper.GetString("out")
	cfg.DPI = viper.GetFloat64("dpi")
	cfg.Workers = viper.GetInt("workers")
	cfg.ThresholdPercent = viper.GetFloat64("threshold")
	cfg.ResidualOKPx = viper.GetFloat64("residual-ok")
	cfg.ResidualWarnPx = viper.GetFloat64("residual-warn")
	cfg.CropMarginInches = viper.GetFloat64("margin")
	cfg.StopOnFail = viper.GetBool("stop-on-fail")
	cfg.ColorFusion = viper.GetBool("color-fusion")
	cfg.NearMargin = viper.GetFloat64("near-margin")
	cfg.Overlays = viper.GetBool("overlays")
	cfg.Thumbnails = viper.GetBool("thumbnails")
	cfg.Verbose = viper.GetBool("verbose")
}

// Validate rejects configurations no run could use.
func (c *Config) Validate() error {
	if c.TemplatePath == "" {
		return errors.New("a form template is required (--template)")
	}
	if c.PDF == "" && c.ImagesDir == "" {
		return errors.New("an input is required (--pdf or --images)")
	}
	if c.PDF != "" && c.ImagesDir != "" {
		return errors.New("--pdf and --images are mutually exclusive")
	}
	if c.OutputDir == "" {
		return errors.New("output directory cannot be empty")
	}
	if c.DPI <= 0 {
		return fmt.Errorf("dpi must be positive, got %g", c.DPI)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.ThresholdPercent < 0 || c.ThresholdPercent >= 100 {
		return fmt.Errorf("threshold percent out of range: %g", c.ThresholdPercent)
	}
	if c.ResidualOKPx <= 0 || c.ResidualWarnPx <= 0 {
		return errors.New("residual ceilings must be positive")
	}
	if c.ResidualWarnPx < c.ResidualOKPx {
		return fmt.Errorf("residual-warn (%g) must not be below residual-ok (%g)",
			c.ResidualWarnPx, c.ResidualOKPx)
	}
	if c.CropMarginInches < 0 {
		return fmt.Errorf("crop margin cannot be negative, got %g", c.CropMarginInches)
	}
	if c.NearMargin <= 0 || c.NearMargin >= 0.5 {
		return fmt.Errorf("near margin out of range: %g", c.NearMargin)
	}
	return nil
}

// ThresholdFraction returns the configured fill threshold override as
// a fraction, or ok=false when the template's own value should rule.
func (c *Config) ThresholdFraction() (float64, bool) {
	if c.ThresholdPercent <= 0 {
		return 0, false
	}
	return c.ThresholdPercent / 100, true
}

// Usage prints flag help with a short synopsis.
func Usage() {
	fmt.Fprintf(os.Stderr, "Usage of %s:\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Scans filled form pages against a template and classifies every checkbox.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	pflag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --pdf batch.pdf --template configs/intake_v2.json\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --images scans/ --template configs/intake_v2.json --model model.json\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --images scans/ --template configs/intake_v2.json --threshold 14 --workers 4\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nEnvironment variables use the %s_ prefix, e.g. %s_WORKERS.\n", envPrefix, envPrefix)
}
