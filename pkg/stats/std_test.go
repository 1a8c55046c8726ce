package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMeanVar(t *testing.T) {
	mean, variance := MeanVar([]uint8{2, 4, 4, 4, 5, 5, 7, 9})
	require.Equal(t, 5.0, mean)
	require.Equal(t, 4.0, variance)
}

func TestRunningMatchesBatch(t *testing.T) {
	all := []float64{1, 2, 3, 4, 10, 20, 30, 0.5, -3}
	mean, variance := MeanVar(all)

	var single Running
	for _, v := range all {
		single.Add(v)
	}
	require.InDelta(t, mean, single.Mean(), 1e-12)
	require.InDelta(t, variance, single.Variance(), 1e-12)

	var batched Running
	for _, part := range [][]float64{all[:2], all[2:7], all[7:]} {
		m, v := MeanVar(part)
		batched.AddBatch(int64(len(part)), m, v)
	}
	require.Equal(t, int64(len(all)), batched.N)
	require.InDelta(t, mean, batched.Mean(), 1e-12)
	require.InDelta(t, variance, batched.Variance(), 1e-12)
	require.InDelta(t, math.Sqrt(variance), batched.Std(), 1e-12)

	var a, b Running
	for _, v := range all[:4] {
		a.Add(v)
	}
	for _, v := range all[4:] {
		b.Add(v)
	}
	a.Merge(b)
	require.InDelta(t, variance, a.Variance(), 1e-12)
}

func TestRunningEmpty(t *testing.T) {
	var r Running
	require.True(t, math.IsNaN(r.Mean()))
	require.True(t, math.IsNaN(r.Variance()))
	var other Running
	r.Merge(other)
	require.Equal(t, int64(0), r.N)
}

func TestMode(t *testing.T) {
	mode, count := Mode([]int{3, 1, 3, 2})
	require.Equal(t, 3, mode)
	require.Equal(t, 2, count)
}
