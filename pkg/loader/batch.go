package loader

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cyclopcam/icepipe/pkg/dataset"
	"gorgonia.org/tensor"
)

var ErrRaggedBatch = errors.New("samples in a batch have different shapes")

// Batch is a stack of samples along a new leading axis.
// Images is N×3×C×C float32, Masks is N×1×C×C int64, and Props is N×1×C×C int64 or nil.
type Batch struct {
	Index   int      // Position of the batch within its run
	Indices []int    // Dataset index of each sample
	Names   []string // Identifier of each sample
	Images  *tensor.Dense
	Masks   *tensor.Dense
	Props   *tensor.Dense
}

func (b *Batch) Len() int {
	return len(b.Indices)
}

// Stack combines samples into a batch. All samples must have identical tensor shapes,
// and either all or none must carry a proposal.
func Stack(samples []*dataset.Sample) (*Batch, error) {
	if len(samples) == 0 {
		return nil, errors.New("cannot stack an empty batch")
	}
	b := &Batch{}
	images := make([]*tensor.Dense, len(samples))
	masks := make([]*tensor.Dense, len(samples))
	var props []*tensor.Dense
	if samples[0].Prop != nil {
		props = make([]*tensor.Dense, len(samples))
	}
	for i, s := range samples {
		b.Indices = append(b.Indices, s.Index)
		b.Names = append(b.Names, s.Name)
		images[i] = s.Image
		masks[i] = s.Mask
		if (s.Prop != nil) != (props != nil) {
			return nil, fmt.Errorf("%w: sample %v (%v) proposal presence differs from sample %v", ErrRaggedBatch, s.Index, s.Name, samples[0].Index)
		}
		if props != nil {
			props[i] = s.Prop
		}
	}
	var err error
	if b.Images, err = stackTensors[float32](images); err != nil {
		return nil, fmt.Errorf("images: %w", err)
	}
	if b.Masks, err = stackTensors[int64](masks); err != nil {
		return nil, fmt.Errorf("masks: %w", err)
	}
	if props != nil {
		if b.Props, err = stackTensors[int64](props); err != nil {
			return nil, fmt.Errorf("proposals: %w", err)
		}
	}
	return b, nil
}

func stackTensors[T float32 | int64](parts []*tensor.Dense) (*tensor.Dense, error) {
	shape := parts[0].Shape().Clone()
	var data []T
	for i, p := range parts {
		if !slices.Equal(p.Shape(), shape) {
			return nil, fmt.Errorf("%w: %v vs %v at position %v", ErrRaggedBatch, shape, p.Shape(), i)
		}
		d, ok := p.Data().([]T)
		if !ok {
			return nil, fmt.Errorf("unexpected dtype %v at position %v", p.Dtype(), i)
		}
		if data == nil {
			data = make([]T, 0, len(d)*len(parts))
		}
		data = append(data, d...)
	}
	full := append([]int{len(parts)}, shape...)
	return tensor.New(tensor.WithShape(full...), tensor.WithBacking(data)), nil
}
