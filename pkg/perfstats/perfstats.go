package perfstats

import (
	"fmt"
	"sync"
	"time"
)

// Accumulator measures the count, total and extremes of a series of samples
type Accumulator[T int64 | float64 | time.Duration] struct {
	Samples int64
	Total   T
	Min     T
	Max     T
}

func (a *Accumulator[T]) Reset() {
	*a = Accumulator[T]{}
}

func (a *Accumulator[T]) AddSample(v T) {
	if a.Samples == 0 || v < a.Min {
		a.Min = v
	}
	if a.Samples == 0 || v > a.Max {
		a.Max = v
	}
	a.Samples++
	a.Total += v
}

func (a *Accumulator[T]) Average() T {
	if a.Samples == 0 {
		return 0
	}
	return a.Total / T(a.Samples)
}

// SampleTimer tracks how long it takes to produce samples, and how many failed.
// It is safe for concurrent use by loader workers.
type SampleTimer struct {
	lock   sync.Mutex
	times  Accumulator[time.Duration]
	failed int64
}

// Snapshot is a point-in-time copy of a SampleTimer
type Snapshot struct {
	Samples int64
	Failed  int64
	Total   time.Duration
	Mean    time.Duration
	Min     time.Duration
	Max     time.Duration
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%v samples (%v failed), mean %v, min %v, max %v",
		s.Samples, s.Failed, s.Mean.Round(time.Microsecond), s.Min.Round(time.Microsecond), s.Max.Round(time.Microsecond))
}

// Record the duration of one sample. Failed samples are counted, but their durations are not.
func (t *SampleTimer) Record(d time.Duration, ok bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if ok {
		t.times.AddSample(d)
	} else {
		t.failed++
	}
}

func (t *SampleTimer) Snapshot() Snapshot {
	t.lock.Lock()
	defer t.lock.Unlock()
	return Snapshot{
		Samples: t.times.Samples,
		Failed:  t.failed,
		Total:   t.times.Total,
		Mean:    t.times.Average(),
		Min:     t.times.Min,
		Max:     t.times.Max,
	}
}

func (t *SampleTimer) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.times.Reset()
	t.failed = 0
}
