package eval

import (
	"context"
	"errors"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/icepipe/pkg/dataset"
	"github.com/cyclopcam/icepipe/pkg/loader"
	"github.com/cyclopcam/logs"
	"github.com/sbinet/npyio/npy"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

func labelTensor(n, h, w int, labels []int64) *tensor.Dense {
	return tensor.New(tensor.WithShape(n, 1, h, w), tensor.WithBacking(labels))
}

// oneHot builds N×K×H×W scores that select the given labels
func oneHot(n, k, h, w int, labels []int64) *tensor.Dense {
	scores := make([]float32, n*k*h*w)
	plane := h * w
	for i, l := range labels {
		b := i / plane
		p := i % plane
		scores[(b*k+int(l))*plane+p] = 1
	}
	return tensor.New(tensor.WithShape(n, k, h, w), tensor.WithBacking(scores))
}

func TestPassThreeClassExample(t *testing.T) {
	// Two batches whose combined matrix is [[5,0,0],[1,4,0],[0,0,10]]
	truth1 := []int64{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	pred1 := []int64{0, 0, 0, 0, 0, 0, 1, 1, 1, 1}
	truth2 := []int64{2, 2, 2, 2, 2, 2, 2, 2, 2, 2}

	pass := NewPass(3, 0)
	require.NoError(t, pass.AddBatch(labelTensor(1, 2, 5, truth1), oneHot(1, 3, 2, 5, pred1)))
	require.NoError(t, pass.AddBatch(labelTensor(1, 2, 5, truth2), oneHot(1, 3, 2, 5, truth2)))

	r := pass.Result()
	require.Equal(t, [][]int64{{5, 0, 0}, {1, 4, 0}, {0, 0, 10}}, r.Matrix)
	require.Equal(t, int64(20), r.Pixels)
	require.Equal(t, 2, r.Batches)
	require.InDelta(t, 5.0/6.0, r.HeadlineIoU, 1e-12)
	require.InDeltaSlice(t, []float64{1, 0.8, 1}, r.Accuracy, 1e-12)

	// The second batch has no class 0 at all, so only the first batch contributes
	require.InDelta(t, 5.0/6.0, r.BatchMeanIoU, 1e-12)
	require.InDelta(t, 1.0, r.BatchMeanAccuracy, 1e-12)

	pass.Reset()
	r = pass.Result()
	require.Equal(t, int64(0), r.Pixels)
	require.True(t, math.IsNaN(r.HeadlineIoU))
	require.True(t, math.IsNaN(r.BatchMeanIoU))
}

func TestPassRejectsMisalignedPrediction(t *testing.T) {
	pass := NewPass(2, 0)
	truth := labelTensor(1, 2, 2, []int64{0, 1, 1, 0})
	err := pass.AddBatch(truth, oneHot(1, 2, 1, 4, []int64{0, 1, 1, 0}))
	require.Error(t, err)
	require.Equal(t, 0, pass.Result().Batches)
}

type memorySource struct {
	masks [][]int64
	fail  map[int]bool
}

func (m *memorySource) Len() int {
	return len(m.masks)
}

func (m *memorySource) GetSample(index int) (*dataset.Sample, error) {
	if m.fail[index] {
		return nil, errors.New("unreadable mask")
	}
	return &dataset.Sample{
		Index: index,
		Image: tensor.New(tensor.WithShape(3, 2, 2), tensor.WithBacking(make([]float32, 12))),
		Mask:  tensor.New(tensor.WithShape(1, 2, 2), tensor.WithBacking(m.masks[index])),
	}, nil
}

func TestRunWithPerfectPredictor(t *testing.T) {
	log := logs.NewTestingLog(t)
	src := &memorySource{masks: [][]int64{{0, 1, 2, 0}, {1, 1, 0, 0}, {2, 2, 2, 2}}}
	opts := loader.DefaultOptions()
	opts.BatchSize = 2
	ld, err := loader.New(log, src, opts)
	require.NoError(t, err)

	// The "model" cheats by looking up the ground truth of the batch it was given
	next := 0
	predictor := PredictorFunc(func(ctx context.Context, images *tensor.Dense) (*tensor.Dense, error) {
		n := images.Shape()[0]
		labels := []int64{}
		for i := 0; i < n; i++ {
			labels = append(labels, src.masks[next]...)
			next++
		}
		return oneHot(n, 3, 2, 2, labels), nil
	})
	r, err := Run(context.Background(), log, predictor, ld, 3, 0)
	require.NoError(t, err)
	require.Equal(t, 2, r.Batches)
	require.Equal(t, int64(12), r.Pixels)
	for _, v := range r.IoU {
		require.Equal(t, 1.0, v)
	}
	require.Equal(t, 1.0, r.BatchMeanIoU)

	failing := PredictorFunc(func(ctx context.Context, images *tensor.Dense) (*tensor.Dense, error) {
		return nil, errors.New("out of memory")
	})
	_, err = Run(context.Background(), log, failing, ld, 3, 0)
	require.ErrorContains(t, err, "out of memory")
}

func TestRunCancelsPredictionOnLoadFailure(t *testing.T) {
	log := logs.NewTestingLog(t)
	src := &memorySource{masks: [][]int64{{0, 0, 0, 0}, {1, 1, 1, 1}, {2, 2, 2, 2}}, fail: map[int]bool{2: true}}
	opts := loader.DefaultOptions()
	opts.BatchSize = 1
	ld, err := loader.New(log, src, opts)
	require.NoError(t, err)

	// A slow model that only returns once its context is cancelled
	predictor := PredictorFunc(func(ctx context.Context, images *tensor.Dense) (*tensor.Dense, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err = Run(context.Background(), log, predictor, ld, 3, 0)
	require.ErrorContains(t, err, "unreadable mask")
}

func writeMaskPNG(t *testing.T, path string, w, h int, labels []uint8) {
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, labels)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestEvaluateDirectory(t *testing.T) {
	root := t.TempDir()
	maskDir := filepath.Join(root, "masks")
	predDir := filepath.Join(root, "preds")
	require.NoError(t, os.MkdirAll(maskDir, 0777))
	require.NoError(t, os.MkdirAll(predDir, 0777))

	writeMaskPNG(t, filepath.Join(maskDir, "a.png"), 2, 2, []uint8{0, 1, 1, 0})
	writeMaskPNG(t, filepath.Join(maskDir, "b.png"), 2, 2, []uint8{1, 1, 1, 1})

	// a is predicted as an image, b as a .npy array
	writeMaskPNG(t, filepath.Join(predDir, "a.png"), 2, 2, []uint8{0, 1, 0, 0})
	f, err := os.Create(filepath.Join(predDir, "b.npy"))
	require.NoError(t, err)
	require.NoError(t, npy.Write(f, mat.NewDense(2, 2, []float64{1, 1, 1, 0})))
	f.Close()

	refs := dataset.MakeRefs([]string{"a.png", "b.png"}, root, maskDir, "")
	r, err := EvaluateDirectory(logs.NewTestingLog(t), refs, predDir, 2, 0)
	require.NoError(t, err)
	require.Equal(t, [][]int64{{2, 0}, {2, 4}}, r.Matrix)
	require.Equal(t, 2, r.Batches)

	_, err = EvaluateDirectory(logs.NewTestingLog(t), refs, root, 2, 0)
	require.True(t, errors.Is(err, ErrPredictionMissing))

	writeMaskPNG(t, filepath.Join(predDir, "a.png"), 1, 4, []uint8{0, 1, 0, 0})
	_, err = EvaluateDirectory(logs.NewTestingLog(t), refs, predDir, 2, 0)
	var shapeErr *dataset.ShapeMismatchError
	require.True(t, errors.As(err, &shapeErr))
}
