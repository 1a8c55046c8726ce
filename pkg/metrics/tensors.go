package metrics

import (
	"fmt"

	"gorgonia.org/tensor"
)

// AccumulateTensors counts the arg-max of a score tensor against a ground truth label tensor.
// scores is ...×K×H×W (any float dtype), and truth is ...×1×H×W or ...×H×W with the
// same number of pixels. Ties resolve to the lowest class index.
func (c *Confusion) AccumulateTensors(truth, scores *tensor.Dense) error {
	shape := scores.Shape()
	if len(shape) < 3 {
		return fmt.Errorf("score tensor must be ...×K×H×W, not %v", shape)
	}
	pred, err := scores.Argmax(len(shape) - 3)
	if err != nil {
		return fmt.Errorf("argmax over classes: %w", err)
	}
	return c.AccumulateLabelTensors(truth, pred)
}

// AccumulateLabelTensors counts an already resolved prediction label tensor against ground truth.
// Both tensors must hold the same number of elements, in the same order.
func (c *Confusion) AccumulateLabelTensors(truth, pred *tensor.Dense) error {
	t, err := labels(truth)
	if err != nil {
		return fmt.Errorf("ground truth: %w", err)
	}
	p, err := labels(pred)
	if err != nil {
		return fmt.Errorf("prediction: %w", err)
	}
	return Accumulate(c, t, p)
}

// labels extracts integer data from a tensor as int64
func labels(t *tensor.Dense) ([]int64, error) {
	if t.RequiresIterator() {
		t = t.Materialize().(*tensor.Dense)
	}
	switch v := t.Data().(type) {
	case []int64:
		return v, nil
	case []int:
		return widen(v), nil
	case []int32:
		return widen(v), nil
	case []uint8:
		return widen(v), nil
	case int, int64, int32, uint8:
		return nil, fmt.Errorf("scalar tensor %v has no pixels", t.Shape())
	}
	return nil, fmt.Errorf("unsupported label dtype %v", t.Dtype())
}

func widen[T int | int32 | uint8](v []T) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}
