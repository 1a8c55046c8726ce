// Package eval runs a segmentation model over a dataset and reduces its
// predictions to accuracy and IoU statistics.
package eval

import (
	"fmt"
	"math"

	"github.com/cyclopcam/icepipe/pkg/metrics"
	"github.com/cyclopcam/icepipe/pkg/perfstats"
	"gorgonia.org/tensor"
)

// Pass accumulates the statistics of one evaluation pass (typically one epoch).
// The confusion matrix of the whole pass produces the main numbers. The headline
// metrics of each batch are also averaged, which reproduces the numbers that
// older training logs reported.
// A Pass is not safe for concurrent use.
type Pass struct {
	matrix   *metrics.Confusion
	headline int
	batchIoU perfstats.Accumulator[float64]
	batchAcc perfstats.Accumulator[float64]
	batches  int
}

// Result is the outcome of a Pass
type Result struct {
	metrics.Summary
	Matrix            [][]int64 // Confusion matrix, rows are ground truth
	Pixels            int64     // Pixels counted in Matrix
	Batches           int
	BatchMeanIoU      float64 // Mean of per-batch headline IoU, excluding batches where it was undefined
	BatchMeanAccuracy float64 // Mean of per-batch headline accuracy, excluding batches where it was undefined
}

func NewPass(numClasses, headline int) *Pass {
	return &Pass{
		matrix:   metrics.NewConfusion(numClasses),
		headline: headline,
	}
}

// Reset prepares the pass for a new epoch
func (p *Pass) Reset() {
	p.matrix.Reset()
	p.batchIoU.Reset()
	p.batchAcc.Reset()
	p.batches = 0
}

// AddBatch scores an N×K×H×W prediction tensor against N×1×H×W ground truth
func (p *Pass) AddBatch(truth, scores *tensor.Dense) error {
	ts := truth.Shape()
	ss := scores.Shape()
	if len(ts) != 4 || len(ss) != 4 || ts[0] != ss[0] || ts[2] != ss[2] || ts[3] != ss[3] {
		return fmt.Errorf("prediction shape %v does not match ground truth shape %v", ss, ts)
	}
	batch := metrics.NewConfusion(p.matrix.NumClasses())
	if err := batch.AccumulateTensors(truth, scores); err != nil {
		return err
	}
	return p.addConfusion(batch)
}

// AddLabels scores a tensor of predicted labels against ground truth of the same number of elements
func (p *Pass) AddLabels(truth, pred *tensor.Dense) error {
	batch := metrics.NewConfusion(p.matrix.NumClasses())
	if err := batch.AccumulateLabelTensors(truth, pred); err != nil {
		return err
	}
	return p.addConfusion(batch)
}

func (p *Pass) addConfusion(batch *metrics.Confusion) error {
	if err := p.matrix.Add(batch); err != nil {
		return err
	}
	p.batches++
	s := metrics.Reduce(batch, p.headline)
	if !math.IsNaN(s.HeadlineIoU) {
		p.batchIoU.AddSample(s.HeadlineIoU)
	}
	if !math.IsNaN(s.HeadlineAccuracy) {
		p.batchAcc.AddSample(s.HeadlineAccuracy)
	}
	return nil
}

// Confusion returns a copy of the accumulated matrix
func (p *Pass) Confusion() *metrics.Confusion {
	return p.matrix.Clone()
}

func (p *Pass) Result() Result {
	return Result{
		Summary:           metrics.Reduce(p.matrix, p.headline),
		Matrix:            p.matrix.Counts(),
		Pixels:            p.matrix.Total(),
		Batches:           p.batches,
		BatchMeanIoU:      averageOrNaN(&p.batchIoU),
		BatchMeanAccuracy: averageOrNaN(&p.batchAcc),
	}
}

func averageOrNaN(a *perfstats.Accumulator[float64]) float64 {
	if a.Samples == 0 {
		return math.NaN()
	}
	return a.Average()
}
