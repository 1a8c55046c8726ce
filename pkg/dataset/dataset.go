// Package dataset turns image/mask/proposal files into aligned, normalized
// sample tensors for a segmentation model.
package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyclopcam/icepipe/pkg/normalize"
	"github.com/cyclopcam/icepipe/pkg/raster"
	"github.com/cyclopcam/icepipe/pkg/rasterio"
	"github.com/cyclopcam/logs"
	"gorgonia.org/tensor"
)

// Dataset is an indexed collection of samples.
// It holds no mutable state after construction, so GetSample may be called from many goroutines.
type Dataset struct {
	log  logs.Log
	opts Options
	refs []SampleRef
}

// Sample is one fully processed training or evaluation sample.
// Image is 3×C×C float32, Mask is 1×C×C int64, and Prop (if present) is 1×C×C int64.
type Sample struct {
	Index int
	Name  string
	Image *tensor.Dense
	Mask  *tensor.Dense
	Prop  *tensor.Dense // nil unless the dataset was opened WithProposal
}

// Raw is a sample as decoded from disk, before any resampling
type Raw struct {
	Image raster.Array[uint8]
	Mask  raster.Array[int32]
	Prop  *raster.Array[float64]
}

// Open reads the manifest of opts.Split and returns a dataset over its samples
func Open(log logs.Log, opts Options) (*Dataset, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	names, err := LoadManifest(opts.TxtDir, opts.Split)
	if err != nil {
		return nil, err
	}
	propDir := ""
	if opts.WithProposal {
		propDir = opts.PropDir
	}
	refs := MakeRefs(names, opts.ImageDir, opts.MaskDir, propDir)
	log.Infof("Opened %v split with %v samples", opts.Split, len(refs))
	return New(log, opts, refs)
}

// New creates a dataset over an explicit list of samples
func New(log logs.Log, opts Options, refs []SampleRef) (*Dataset, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.WithProposal {
		for _, r := range refs {
			if r.PropPath == "" {
				return nil, &ConfigurationError{Field: "propDir", Reason: fmt.Sprintf("sample %v has no proposal path", r.Name)}
			}
		}
	}
	return &Dataset{
		log:  log,
		opts: opts,
		refs: refs,
	}, nil
}

func (d *Dataset) Len() int {
	return len(d.refs)
}

func (d *Dataset) Options() Options {
	return d.opts
}

func (d *Dataset) Ref(index int) (SampleRef, error) {
	if index < 0 || index >= len(d.refs) {
		return SampleRef{}, fmt.Errorf("%w: %v (dataset has %v samples)", ErrIndexOutOfRange, index, len(d.refs))
	}
	return d.refs[index], nil
}

// LoadRaw decodes the files of a sample, and verifies that the image and mask are the same size
func (d *Dataset) LoadRaw(index int) (*Raw, error) {
	ref, err := d.Ref(index)
	if err != nil {
		return nil, err
	}
	img, err := rasterio.LoadImage(ref.ImagePath)
	if err != nil {
		return nil, err
	}
	mask, err := rasterio.LoadMask(ref.MaskPath)
	if err != nil {
		return nil, err
	}
	if img.Size() != mask.Size() {
		return nil, &SizeMismatchError{Index: index, Name: ref.Name, Image: img.Size(), Mask: mask.Size()}
	}
	raw := &Raw{
		Image: img,
		Mask:  mask,
	}
	if d.opts.WithProposal {
		prop, err := rasterio.LoadNpy(ref.PropPath)
		if err != nil {
			return nil, err
		}
		raw.Prop = &prop
	}
	return raw, nil
}

// GetSample loads and processes the sample at index
func (d *Dataset) GetSample(index int) (*Sample, error) {
	raw, err := d.LoadRaw(index)
	if err != nil {
		return nil, err
	}
	return d.Process(index, raw)
}

// Process resizes, crops and normalizes a raw sample
func (d *Dataset) Process(index int, raw *Raw) (*Sample, error) {
	ref, err := d.Ref(index)
	if err != nil {
		return nil, err
	}
	mismatch := func(first, second string, a, b raster.Size) error {
		return &ShapeMismatchError{Index: index, Name: ref.Name, First: first, Second: second, FirstShape: a, SecondShape: b}
	}

	img := raw.Image
	mask := raw.Mask
	var prop *raster.Array[float64]

	if d.opts.Augment != nil {
		img, mask, err = d.opts.Augment.Transform(img, mask)
		if err != nil {
			return nil, fmt.Errorf("sample %v (%v): augmentation failed: %w", index, ref.Name, err)
		}
		if img.Size() != mask.Size() {
			return nil, mismatch("image", "mask", img.Size(), mask.Size())
		}
	} else {
		if img, err = resizeAndCrop(img, d.opts.Scale, d.opts.Crop); err != nil {
			return nil, d.wrapGeometryError(index, ref.Name, "image", err)
		}
		if mask, err = resizeAndCrop(mask, d.opts.Scale, d.opts.Crop); err != nil {
			return nil, d.wrapGeometryError(index, ref.Name, "mask", err)
		}
		if raw.Prop != nil {
			p, err := resizeAndCrop(*raw.Prop, d.opts.ProposalScale(), d.opts.Crop)
			if err != nil {
				return nil, d.wrapGeometryError(index, ref.Name, "proposal", err)
			}
			prop = &p
		}
	}

	if img.Size() != mask.Size() {
		return nil, mismatch("image", "mask", img.Size(), mask.Size())
	}
	if prop != nil && prop.Size() != mask.Size() {
		return nil, mismatch("mask", "proposal", mask.Size(), prop.Size())
	}

	sample := &Sample{
		Index: index,
		Name:  ref.Name,
	}
	if sample.Image, err = d.opts.Stats.ImageTensor(img); err != nil {
		return nil, err
	}
	if sample.Mask, err = normalize.LabelTensor(mask); err != nil {
		return nil, err
	}
	if prop != nil {
		if sample.Prop, err = normalize.LabelTensor(*prop); err != nil {
			return nil, err
		}
	}
	return sample, nil
}

func resizeAndCrop[T raster.Elem](src raster.Array[T], scale float64, crop int) (raster.Array[T], error) {
	resized, err := raster.Resize(src, scale)
	if err != nil {
		return raster.Array[T]{}, err
	}
	return raster.CenterCrop(resized, crop)
}

// Geometry failures are caused by the settings, not by the file, so they surface as ConfigurationError
func (d *Dataset) wrapGeometryError(index int, name, what string, err error) error {
	var scaleErr *raster.InvalidScaleError
	var cropErr *raster.CropError
	switch {
	case errors.As(err, &scaleErr):
		return &ConfigurationError{Field: "scale", Reason: fmt.Sprintf("sample %v (%v) %v", index, name, what), Err: err}
	case errors.As(err, &cropErr):
		return &ConfigurationError{Field: "crop", Reason: fmt.Sprintf("sample %v (%v) %v", index, name, what), Err: err}
	}
	return err
}

// ComputeStats measures the per-channel normalization statistics of the raw images in this dataset
func (d *Dataset) ComputeStats(ctx context.Context, workers int, pixelScale float32) (normalize.Stats, error) {
	d.log.Infof("Computing normalization statistics over %v images, with %v workers", len(d.refs), workers)
	return normalize.ComputeStats(ctx, len(d.refs), workers, pixelScale, func(i int) (raster.Array[uint8], error) {
		return rasterio.LoadImage(d.refs[i].ImagePath)
	})
}
