// Package normalize converts processed arrays into the tensors consumed by
// a segmentation model: channel-first normalized float32 images, and int64
// label maps.
package normalize

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/icepipe/pkg/raster"
	"gorgonia.org/tensor"
)

var ErrInvalidStats = errors.New("invalid normalization statistics")

// Per-channel statistics of the sea ice imagery, in 8-bit pixel units (R,G,B)
var (
	IceMeans = [3]float32{121.4836, 122.35021, 122.517166}
	IceStds  = [3]float32{58.89167, 58.966404, 59.09349}
)

// Stats describes how image pixels are normalized.
// A pixel value p in channel c becomes (p/PixelScale - Means[c]) / Stds[c].
// PixelScale must match the units that Means and Stds were measured in.
type Stats struct {
	Means      [3]float32 `json:"means"`
	Stds       [3]float32 `json:"stds"`
	PixelScale float32    `json:"pixelScale"`
}

// IceStats returns the dataset statistics in 8-bit units, so no pre-scaling is done
func IceStats() Stats {
	return Stats{
		Means:      IceMeans,
		Stds:       IceStds,
		PixelScale: 1,
	}
}

// LegacyToTensorStats reproduces the behaviour of models that were trained with
// pixels divided by 255 before being normalized with the 8-bit statistics.
// Only use this when evaluating such a model.
func LegacyToTensorStats() Stats {
	s := IceStats()
	s.PixelScale = 255
	return s
}

func (s Stats) Validate() error {
	if !(s.PixelScale > 0) {
		return fmt.Errorf("%w: pixel scale %v must be positive", ErrInvalidStats, s.PixelScale)
	}
	for c, std := range s.Stds {
		if !(std > 0) {
			return fmt.Errorf("%w: std of channel %v is %v", ErrInvalidStats, c, std)
		}
	}
	return nil
}

// ImageTensor converts an H×W×3 image into a normalized 3×H×W float32 tensor
func (s Stats) ImageTensor(img raster.Array[uint8]) (*tensor.Dense, error) {
	if img.NChan != 3 {
		return nil, fmt.Errorf("image must have 3 channels, not %v", img.NChan)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	plane := img.Width * img.Height
	out := make([]float32, 3*plane)
	for c := 0; c < 3; c++ {
		mean := s.Means[c]
		std := s.Stds[c]
		dst := out[c*plane : (c+1)*plane]
		for i := range dst {
			v := float32(img.Pixels[i*3+c]) / s.PixelScale
			dst[i] = (v - mean) / std
		}
	}
	return tensor.New(tensor.WithShape(3, img.Height, img.Width), tensor.WithBacking(out)), nil
}

// Denormalize inverts ImageTensor, returning the channel-first values in pixel units
func (s Stats) Denormalize(t *tensor.Dense) ([]float32, error) {
	shape := t.Shape()
	if len(shape) != 3 || shape[0] != 3 {
		return nil, fmt.Errorf("expected a 3×H×W tensor, not %v", shape)
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("expected float32 tensor, not %v", t.Dtype())
	}
	plane := shape[1] * shape[2]
	out := make([]float32, len(data))
	for c := 0; c < 3; c++ {
		for i := c * plane; i < (c+1)*plane; i++ {
			out[i] = (data[i]*s.Stds[c] + s.Means[c]) * s.PixelScale
		}
	}
	return out, nil
}

// ToRGB turns a normalized 3×H×W tensor back into an 8-bit image, for previews
func (s Stats) ToRGB(t *tensor.Dense) (raster.Array[uint8], error) {
	chw, err := s.Denormalize(t)
	if err != nil {
		return raster.Array[uint8]{}, err
	}
	shape := t.Shape()
	height, width := shape[1], shape[2]
	plane := width * height
	rgb := raster.New[uint8](width, height, 3)
	for c := 0; c < 3; c++ {
		for i := 0; i < plane; i++ {
			v := math32.Round(chw[c*plane+i])
			rgb.Pixels[i*3+c] = uint8(max(0, min(255, v)))
		}
	}
	return rgb, nil
}

// LabelTensor converts a single channel label array into a 1×H×W int64 tensor.
// Values are cast without any rescaling. Float values truncate toward zero.
func LabelTensor[T raster.Elem](labels raster.Array[T]) (*tensor.Dense, error) {
	if labels.NChan != 1 {
		return nil, fmt.Errorf("label array must have 1 channel, not %v", labels.NChan)
	}
	out := make([]int64, len(labels.Pixels))
	for i, v := range labels.Pixels {
		out[i] = int64(v)
	}
	return tensor.New(tensor.WithShape(1, labels.Height, labels.Width), tensor.WithBacking(out)), nil
}

// SpatialShape returns the trailing (height, width) of a tensor
func SpatialShape(t *tensor.Dense) (height, width int) {
	shape := t.Shape()
	if len(shape) < 2 {
		return 0, 0
	}
	return shape[len(shape)-2], shape[len(shape)-1]
}
