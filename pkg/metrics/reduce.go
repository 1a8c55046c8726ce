package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PixelAccuracy returns, per class, the fraction of that class's pixels which
// were predicted correctly. A class with no ground truth pixels is NaN.
func PixelAccuracy(c *Confusion) []float64 {
	d := c.Dense()
	acc := make([]float64, c.n)
	for i := range acc {
		rowSum := floats.Sum(mat.Row(nil, i, d))
		acc[i] = ratio(d.At(i, i), rowSum)
	}
	return acc
}

// Jaccard returns per-class intersection-over-union: TP / (TP + FP + FN).
// A class with no ground truth pixels is NaN, even if it was predicted.
func Jaccard(c *Confusion) []float64 {
	d := c.Dense()
	iou := make([]float64, c.n)
	for i := range iou {
		rowSum := floats.Sum(mat.Row(nil, i, d))
		if rowSum == 0 {
			iou[i] = math.NaN()
			continue
		}
		tp := d.At(i, i)
		colSum := floats.Sum(mat.Col(nil, i, d))
		iou[i] = ratio(tp, rowSum+colSum-tp)
	}
	return iou
}

func ratio(num, denom float64) float64 {
	if denom == 0 {
		return math.NaN()
	}
	return num / denom
}

// NanMean averages the values that are not NaN. Returns NaN if there are none.
func NanMean(v []float64) float64 {
	sum := 0.0
	n := 0
	for _, x := range v {
		if !math.IsNaN(x) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Summary is the reduction of a confusion matrix
type Summary struct {
	Accuracy         []float64 // Per class
	IoU              []float64 // Per class
	Headline         int       // Class index that the headline numbers refer to
	HeadlineAccuracy float64
	HeadlineIoU      float64
	MeanAccuracy     float64 // NaN classes excluded
	MeanIoU          float64 // NaN classes excluded
}

// Reduce computes all metrics of a confusion matrix.
// headline selects the class that is reported on its own. It is normally 0.
func Reduce(c *Confusion, headline int) Summary {
	s := Summary{
		Accuracy: PixelAccuracy(c),
		IoU:      Jaccard(c),
		Headline: headline,
	}
	s.HeadlineAccuracy = math.NaN()
	s.HeadlineIoU = math.NaN()
	if headline >= 0 && headline < c.n {
		s.HeadlineAccuracy = s.Accuracy[headline]
		s.HeadlineIoU = s.IoU[headline]
	}
	s.MeanAccuracy = NanMean(s.Accuracy)
	s.MeanIoU = NanMean(s.IoU)
	return s
}
