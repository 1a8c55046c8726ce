package stats

import (
	"math"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// Returns (mean, variance) of the given samples.
func MeanVar[T Number](samples []T) (float64, float64) {
	mean := Mean(samples)
	variance := Variance(samples, mean)
	return mean, variance
}

// Returns the mean of the given samples.
func Mean[T Number](samples []T) float64 {
	sum := 0.0
	for _, v := range samples {
		sum += float64(v)
	}
	return sum / float64(len(samples))
}

// Returns the population variance of the given samples.
func Variance[T Number](samples []T, mean float64) float64 {
	sum := 0.0
	for _, v := range samples {
		diff := float64(v) - mean
		sum += diff * diff
	}
	return sum / float64(len(samples))
}

// Running accumulates mean and variance over a stream of batches, without
// keeping the samples around. Merging uses the pairwise update of Chan et al,
// so it stays stable when batches are very different in size.
type Running struct {
	N    int64
	mean float64
	m2   float64 // Sum of squared differences from the mean
}

// Add a single sample
func (r *Running) Add(v float64) {
	r.N++
	d := v - r.mean
	r.mean += d / float64(r.N)
	r.m2 += d * (v - r.mean)
}

// AddBatch folds in the summary of a batch of n samples
func (r *Running) AddBatch(n int64, mean, variance float64) {
	if n == 0 {
		return
	}
	if r.N == 0 {
		r.N = n
		r.mean = mean
		r.m2 = variance * float64(n)
		return
	}
	total := r.N + n
	d := mean - r.mean
	r.m2 += variance*float64(n) + d*d*float64(r.N)*float64(n)/float64(total)
	r.mean += d * float64(n) / float64(total)
	r.N = total
}

// Merge another accumulator into this one
func (r *Running) Merge(b Running) {
	r.AddBatch(b.N, b.mean, b.Variance())
}

func (r *Running) Mean() float64 {
	if r.N == 0 {
		return math.NaN()
	}
	return r.mean
}

// Population variance
func (r *Running) Variance() float64 {
	if r.N == 0 {
		return math.NaN()
	}
	return r.m2 / float64(r.N)
}

// Population standard deviation
func (r *Running) Std() float64 {
	return math.Sqrt(r.Variance())
}

// Returns the mode and count of the most frequent element in the given samples.
func Mode[T comparable](src []T) (mode T, count int) {
	counts := make(map[T]int)
	for _, v := range src {
		counts[v]++
	}
	for k, v := range counts {
		if v > count {
			mode = k
			count = v
		}
	}
	return
}
