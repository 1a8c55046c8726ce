package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/icepipe/pkg/dataset"
	"github.com/cyclopcam/icepipe/pkg/loader"
	"github.com/cyclopcam/icepipe/pkg/normalize"
)

const DefaultFilename = "icepipe.json"

// Config files are small. Anything larger is a mistake.
const maxFileSize = 1024 * 1024

type Config struct {
	DataRoot    string  `json:"dataRoot"`    // Relative directories below are resolved against this
	ImageDir    string  `json:"imageDir"`    // eg imgs
	MaskDir     string  `json:"maskDir"`     // eg masks
	TxtDir      string  `json:"txtDir"`      // Directory of ice_<split>.txt manifests
	PropDir     string  `json:"propDir"`     // Directory of <stem>.npy proposals
	Scale       float64 `json:"scale"`       // Resize factor applied to images and masks
	Crop        int     `json:"crop"`        // Side of the square center crop
	NumClasses  int     `json:"numClasses"`  // Including background
	Headline    int     `json:"headline"`    // Class reported on its own in evaluation summaries
	ProposalRes float64 `json:"proposalRes"` // Resolution of proposals relative to images
	BatchSize   int     `json:"batchSize"`
	Workers     int     `json:"workers"`
	Prefetch    int     `json:"prefetch"`
	SkipErrors  bool    `json:"skipErrors"` // Drop unreadable samples instead of aborting
	EvalDB      string  `json:"evalDB"`     // sqlite file of recorded evaluation passes

	Stats normalize.Stats `json:"stats"`
}

// Default returns the settings that the ice segmentation models were trained with
func Default() *Config {
	return &Config{
		DataRoot:    ".",
		ImageDir:    "imgs",
		MaskDir:     "masks",
		TxtDir:      "txt_files",
		PropDir:     "props",
		Scale:       0.35,
		Crop:        320,
		NumClasses:  3,
		Headline:    0,
		ProposalRes: dataset.DefaultProposalNativeScale,
		BatchSize:   4,
		Workers:     4,
		Prefetch:    2,
		EvalDB:      "eval.sqlite",
		Stats:       normalize.IceStats(),
	}
}

// Load reads a JSON config file. Fields that are absent keep their defaults.
// If filename is empty, DefaultFilename is used.
func Load(filename string) (*Config, error) {
	if filename == "" {
		filename = DefaultFilename
	}
	clean := filepath.Clean(filename)
	if ext := filepath.Ext(clean); ext != ".json" {
		return nil, fmt.Errorf("Config file must have .json extension, got %q", ext)
	}
	st, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if st.Size() > maxFileSize {
		return nil, fmt.Errorf("Config file %v is too large: %v bytes (max %v)", filename, st.Size(), maxFileSize)
	}
	raw, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	cfg := Default()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.NumClasses < 2 {
		return fmt.Errorf("numClasses must be at least 2, not %v", c.NumClasses)
	}
	if c.Headline < 0 || c.Headline >= c.NumClasses {
		return fmt.Errorf("headline class %v is outside [0, %v)", c.Headline, c.NumClasses)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be positive")
	}
	opts := c.DatasetOptions(dataset.SplitTrain, false)
	return opts.Validate()
}

// Resolve a path against DataRoot, unless it is absolute
func (c *Config) Resolve(path string) string {
	if filepath.IsAbs(path) || c.DataRoot == "" {
		return path
	}
	return filepath.Join(c.DataRoot, path)
}

// DatasetOptions builds the options for opening a split
func (c *Config) DatasetOptions(split string, withProposal bool) dataset.Options {
	return dataset.Options{
		ImageDir:            c.Resolve(c.ImageDir),
		MaskDir:             c.Resolve(c.MaskDir),
		TxtDir:              c.Resolve(c.TxtDir),
		PropDir:             c.Resolve(c.PropDir),
		Split:               split,
		Scale:               c.Scale,
		Crop:                c.Crop,
		Stats:               c.Stats,
		WithProposal:        withProposal,
		ProposalNativeScale: c.ProposalRes,
	}
}

func (c *Config) LoaderOptions() loader.Options {
	opts := loader.Options{
		BatchSize: c.BatchSize,
		Workers:   c.Workers,
		Prefetch:  c.Prefetch,
	}
	if c.SkipErrors {
		opts.OnError = loader.OnErrorSkip
	}
	return opts
}
