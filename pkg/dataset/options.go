package dataset

import (
	"math"

	"github.com/cyclopcam/icepipe/pkg/normalize"
	"github.com/cyclopcam/icepipe/pkg/raster"
)

// The proposal files were produced at half the resolution of the images.
// This ratio has never been measured from the files themselves, so it is configurable.
const DefaultProposalNativeScale = 0.5

// Augmenter replaces the deterministic resize and crop with a caller-supplied
// transform of the raw image and mask. The returned image and mask must have the same size.
type Augmenter interface {
	Transform(img raster.Array[uint8], mask raster.Array[int32]) (raster.Array[uint8], raster.Array[int32], error)
}

// AugmentFunc adapts a plain function to the Augmenter interface
type AugmentFunc func(img raster.Array[uint8], mask raster.Array[int32]) (raster.Array[uint8], raster.Array[int32], error)

func (f AugmentFunc) Transform(img raster.Array[uint8], mask raster.Array[int32]) (raster.Array[uint8], raster.Array[int32], error) {
	return f(img, mask)
}

// Options controls where samples are read from, and how they are processed
type Options struct {
	ImageDir string
	MaskDir  string
	TxtDir   string // Directory holding the ice_<split>.txt manifests
	PropDir  string // Directory holding <stem>.npy proposals. Only used if WithProposal is true.
	Split    string

	Scale float64 // Uniform resize factor applied to images and masks
	Crop  int     // Side length of the square center crop
	Stats normalize.Stats

	WithProposal        bool
	ProposalNativeScale float64 // Resolution of the proposal files relative to the images. Zero means DefaultProposalNativeScale.

	Augment Augmenter // Optional. Cannot be combined with WithProposal.
}

// DefaultOptions returns the settings that the segmentation models were trained with
func DefaultOptions() Options {
	return Options{
		ImageDir:            "imgs",
		MaskDir:             "masks",
		TxtDir:              "txt_files",
		PropDir:             "props",
		Split:               SplitTrain,
		Scale:               0.35,
		Crop:                320,
		Stats:               normalize.IceStats(),
		ProposalNativeScale: DefaultProposalNativeScale,
	}
}

func (o *Options) proposalNativeScale() float64 {
	if o.ProposalNativeScale == 0 {
		return DefaultProposalNativeScale
	}
	return o.ProposalNativeScale
}

// ProposalScale is the factor by which proposals are resized, so that they land
// on the same grid as the resized image.
func (o *Options) ProposalScale() float64 {
	return o.Scale / o.proposalNativeScale()
}

// Validate checks the processing settings. It does not touch the filesystem.
func (o *Options) Validate() error {
	if math.IsNaN(o.Scale) || o.Scale <= 0 || o.Scale > 1 {
		return &ConfigurationError{Field: "scale", Reason: "must be in (0, 1]"}
	}
	if o.Crop <= 0 {
		return &ConfigurationError{Field: "crop", Reason: "must be positive"}
	}
	if err := o.Stats.Validate(); err != nil {
		return &ConfigurationError{Field: "stats", Reason: "bad normalization statistics", Err: err}
	}
	pns := o.proposalNativeScale()
	if math.IsNaN(pns) || math.IsInf(pns, 0) || pns <= 0 {
		return &ConfigurationError{Field: "proposalNativeScale", Reason: "must be a positive finite number"}
	}
	if o.WithProposal && o.Augment != nil {
		return &ConfigurationError{Field: "augment", Reason: "augmentation cannot be combined with proposals"}
	}
	return nil
}
