// Package metrics accumulates a confusion matrix over segmentation predictions,
// and reduces it to per-class pixel accuracy and intersection-over-union.
package metrics

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrLengthMismatch       = errors.New("ground truth and prediction lengths differ")
	ErrPredictionOutOfRange = errors.New("predicted class out of range")
	ErrClassMismatch        = errors.New("confusion matrices have different class counts")
)

// Confusion is an N×N matrix of pixel counts. Rows are ground truth classes,
// and columns are predicted classes.
// A Confusion is not safe for concurrent mutation.
type Confusion struct {
	n      int
	counts []int64 // row-major n×n
}

// NewConfusion returns an all-zero matrix for numClasses classes
func NewConfusion(numClasses int) *Confusion {
	if numClasses <= 0 {
		panic("metrics: number of classes must be positive")
	}
	return &Confusion{
		n:      numClasses,
		counts: make([]int64, numClasses*numClasses),
	}
}

// FromCounts builds a matrix from rows of counts
func FromCounts(rows [][]int64) (*Confusion, error) {
	c := NewConfusion(len(rows))
	for i, row := range rows {
		if len(row) != c.n {
			return nil, fmt.Errorf("row %v has %v entries, expected %v", i, len(row), c.n)
		}
		copy(c.counts[i*c.n:], row)
	}
	return c, nil
}

func (c *Confusion) NumClasses() int {
	return c.n
}

// At returns the number of pixels of true class 'truth' that were predicted as 'pred'
func (c *Confusion) At(truth, pred int) int64 {
	return c.counts[truth*c.n+pred]
}

// Counts returns a copy of the matrix as rows
func (c *Confusion) Counts() [][]int64 {
	rows := make([][]int64, c.n)
	for i := range rows {
		rows[i] = append([]int64(nil), c.counts[i*c.n:(i+1)*c.n]...)
	}
	return rows
}

// Add merges another matrix into this one
func (c *Confusion) Add(other *Confusion) error {
	if other.n != c.n {
		return fmt.Errorf("%w: %v vs %v", ErrClassMismatch, c.n, other.n)
	}
	for i, v := range other.counts {
		c.counts[i] += v
	}
	return nil
}

// Reset zeroes all counts, at the start of a new pass
func (c *Confusion) Reset() {
	clear(c.counts)
}

func (c *Confusion) Clone() *Confusion {
	return &Confusion{
		n:      c.n,
		counts: append([]int64(nil), c.counts...),
	}
}

// Total number of pixels counted
func (c *Confusion) Total() int64 {
	total := int64(0)
	for _, v := range c.counts {
		total += v
	}
	return total
}

// Dense returns the matrix as float64, for linear algebra
func (c *Confusion) Dense() *mat.Dense {
	data := make([]float64, len(c.counts))
	for i, v := range c.counts {
		data[i] = float64(v)
	}
	return mat.NewDense(c.n, c.n, data)
}

// Accumulate adds one pixel per element of truth/pred.
// Pixels whose ground truth is outside [0, N) are ignored, which is how
// "ignore" labels such as 255 or -1 are excluded. A prediction outside [0, N)
// on a counted pixel is an error, and nothing is added to the matrix.
func Accumulate[T constraints.Integer](c *Confusion, truth, pred []T) error {
	if len(truth) != len(pred) {
		return fmt.Errorf("%w: %v vs %v", ErrLengthMismatch, len(truth), len(pred))
	}
	n := int64(c.n)
	for i, t := range truth {
		if int64(t) >= 0 && int64(t) < n {
			p := int64(pred[i])
			if p < 0 || p >= n {
				return fmt.Errorf("%w: %v at pixel %v (%v classes)", ErrPredictionOutOfRange, pred[i], i, c.n)
			}
		}
	}
	for i, t := range truth {
		ti := int64(t)
		if ti >= 0 && ti < n {
			c.counts[ti*n+int64(pred[i])]++
		}
	}
	return nil
}
