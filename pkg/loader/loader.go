// Package loader iterates over a dataset in batches, decoding samples on a
// pool of worker goroutines so that the consumer rarely waits on disk.
package loader

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cyclopcam/icepipe/pkg/dataset"
	"github.com/cyclopcam/icepipe/pkg/logx"
	"github.com/cyclopcam/icepipe/pkg/perfstats"
	"github.com/cyclopcam/logs"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Source is anything that can produce samples by index. *dataset.Dataset implements it.
type Source interface {
	Len() int
	GetSample(index int) (*dataset.Sample, error)
}

type ErrorPolicy int

const (
	OnErrorAbort ErrorPolicy = iota // The first failed sample stops the run
	OnErrorSkip                     // Failed samples are logged and dropped from their batch
)

type Options struct {
	BatchSize int
	Workers   int // Number of samples decoded concurrently
	Prefetch  int // Number of finished batches that may wait for the consumer
	Shuffle   bool
	Seed      int64 // Shuffle seed. Each run uses Seed + run number, so epochs differ but are reproducible.
	DropLast  bool  // Drop a final batch that is smaller than BatchSize
	OnError   ErrorPolicy
}

func DefaultOptions() Options {
	return Options{
		BatchSize: 4,
		Workers:   4,
		Prefetch:  2,
	}
}

type Loader struct {
	log  logs.Log
	src  Source
	opts Options

	Timer perfstats.SampleTimer

	runLock sync.Mutex
	runs    int64
	skipped error
}

func New(log logs.Log, src Source, opts Options) (*Loader, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, not %v", opts.BatchSize)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Prefetch < 0 {
		opts.Prefetch = 0
	}
	return &Loader{
		log:  logx.WithComponent(log, "loader"),
		src:  src,
		opts: opts,
	}, nil
}

// NumBatches returns the number of batches that one run produces, assuming no samples are skipped
func (l *Loader) NumBatches() int {
	n := l.src.Len()
	if l.opts.DropLast {
		return n / l.opts.BatchSize
	}
	return (n + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Order returns the sample order of the given run
func (l *Loader) Order(run int64) []int {
	n := l.src.Len()
	if l.opts.Shuffle {
		return rand.New(rand.NewSource(l.opts.Seed + run)).Perm(n)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func (l *Loader) batchIndices(order []int) [][]int {
	batches := [][]int{}
	for start := 0; start < len(order); start += l.opts.BatchSize {
		end := min(start+l.opts.BatchSize, len(order))
		if end-start < l.opts.BatchSize && l.opts.DropLast {
			break
		}
		batches = append(batches, order[start:end])
	}
	return batches
}

// Skipped returns the combined errors of the samples that were dropped during the most recent run,
// or nil if there were none. Only OnErrorSkip drops samples.
func (l *Loader) Skipped() error {
	l.runLock.Lock()
	defer l.runLock.Unlock()
	return l.skipped
}

// Run produces every batch of one pass over the source, in order, and calls fn on
// each from a single goroutine. fn receives the run's context, which is cancelled as soon
// as loading fails. If fn returns an error, the run stops and that error is returned.
// Only one Run may be active at a time.
func (l *Loader) Run(ctx context.Context, fn func(ctx context.Context, b *Batch) error) error {
	l.runLock.Lock()
	run := l.runs
	l.runs++
	l.skipped = nil
	l.runLock.Unlock()

	batches := l.batchIndices(l.Order(run))
	ready := make(chan *Batch, l.opts.Prefetch)

	var skipLock sync.Mutex
	var skipped error

	g, gctx := errgroup.WithContext(ctx)

	// Producer
	g.Go(func() error {
		defer close(ready)
		for bi, indices := range batches {
			samples, err := l.loadBatch(gctx, indices, func(err error) {
				skipLock.Lock()
				skipped = multierr.Append(skipped, err)
				skipLock.Unlock()
			})
			if err != nil {
				return err
			}
			if len(samples) == 0 {
				l.log.Warnf("Batch %v is empty after skipping failed samples", bi)
				continue
			}
			batch, err := Stack(samples)
			if err != nil {
				return fmt.Errorf("batch %v: %w", bi, err)
			}
			batch.Index = bi
			select {
			case ready <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Consumer
	g.Go(func() error {
		for batch := range ready {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := fn(gctx, batch); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()

	l.runLock.Lock()
	l.skipped = skipped
	l.runLock.Unlock()

	if skipped != nil {
		l.log.Warnf("Skipped %v samples", len(multierr.Errors(skipped)))
	}
	l.log.Debugf("Run %v: %v", run, l.Timer.Snapshot())
	return err
}

// loadBatch decodes the samples of one batch concurrently. The returned samples keep the order of indices.
func (l *Loader) loadBatch(ctx context.Context, indices []int, onSkip func(err error)) ([]*dataset.Sample, error) {
	samples := make([]*dataset.Sample, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, idx := range indices {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			s, err := l.src.GetSample(idx)
			l.Timer.Record(time.Since(start), err == nil)
			if err == nil {
				samples[i] = s
				return nil
			}
			if l.opts.OnError == OnErrorSkip && !errors.Is(err, context.Canceled) {
				l.log.Warnf("Skipping sample %v: %v", idx, err)
				onSkip(fmt.Errorf("sample %v: %w", idx, err))
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := samples[:0]
	for _, s := range samples {
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}
