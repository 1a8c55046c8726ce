package normalize

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/cyclopcam/icepipe/pkg/raster"
	"github.com/cyclopcam/icepipe/pkg/stats"
	"golang.org/x/sync/errgroup"
)

// Estimator measures per-channel mean and standard deviation over a set of
// RGB images, so that Stats can be regenerated for a new dataset.
// An Estimator is not safe for concurrent use.
type Estimator struct {
	channels [3]stats.Running
	images   int
}

// Add an image to the estimate
func (e *Estimator) Add(img raster.Array[uint8]) error {
	if img.NChan != 3 {
		return fmt.Errorf("image must have 3 channels, not %v", img.NChan)
	}
	if len(img.Pixels) == 0 {
		return nil
	}
	for c := 0; c < 3; c++ {
		mean, variance := stats.MeanVar(img.Plane(c))
		e.channels[c].AddBatch(int64(img.Width*img.Height), mean, variance)
	}
	e.images++
	return nil
}

// Merge the estimate of another Estimator into this one
func (e *Estimator) Merge(b *Estimator) {
	for c := 0; c < 3; c++ {
		e.channels[c].Merge(b.channels[c])
	}
	e.images += b.images
}

// Number of images added so far
func (e *Estimator) Images() int {
	return e.images
}

// Stats returns the estimate, expressed in units of pixel/pixelScale.
// Use pixelScale=1 for 8-bit units.
func (e *Estimator) Stats(pixelScale float32) (Stats, error) {
	if e.images == 0 {
		return Stats{}, fmt.Errorf("%w: no images", ErrInvalidStats)
	}
	s := Stats{PixelScale: pixelScale}
	for c := 0; c < 3; c++ {
		s.Means[c] = float32(e.channels[c].Mean() / float64(pixelScale))
		s.Stds[c] = float32(math.Sqrt(e.channels[c].Variance()) / float64(pixelScale))
	}
	return s, s.Validate()
}

// ComputeStats estimates Stats over n images, fetched by load, using up to
// 'workers' goroutines. Each worker keeps its own Estimator, and these are
// merged at the end.
func ComputeStats(ctx context.Context, n, workers int, pixelScale float32, load func(i int) (raster.Array[uint8], error)) (Stats, error) {
	if workers < 1 {
		workers = 1
	}
	var mu sync.Mutex
	total := &Estimator{}

	next := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(next)
		for i := 0; i < n; i++ {
			select {
			case next <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			local := &Estimator{}
			for i := range next {
				img, err := load(i)
				if err != nil {
					return err
				}
				if err := local.Add(img); err != nil {
					return fmt.Errorf("image %v: %w", i, err)
				}
			}
			mu.Lock()
			total.Merge(local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return total.Stats(pixelScale)
}
