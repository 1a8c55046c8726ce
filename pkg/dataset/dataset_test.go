package dataset

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cyclopcam/icepipe/pkg/raster"
	"github.com/cyclopcam/logs"
	"github.com/sbinet/npyio/npy"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

// Class of column x in the synthetic scenes
func columnLabel(x int) uint8 {
	return uint8(x / 7)
}

type fixture struct {
	root string
	opts Options
}

func writeTIFF(t *testing.T, path string, img image.Image) {
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, tiff.Encode(f, img, nil))
}

func writeScene(t *testing.T, f *fixture, name string, imgSize, maskSize int) {
	img := image.NewNRGBA(image.Rect(0, 0, imgSize, imgSize))
	for y := 0; y < imgSize; y++ {
		for x := 0; x < imgSize; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	writeTIFF(t, filepath.Join(f.opts.ImageDir, name), img)

	mask := image.NewGray(image.Rect(0, 0, maskSize, maskSize))
	for y := 0; y < maskSize; y++ {
		for x := 0; x < maskSize; x++ {
			mask.SetGray(x, y, color.Gray{Y: columnLabel(x)})
		}
	}
	writeTIFF(t, filepath.Join(f.opts.MaskDir, name), mask)

	// Proposals live at half resolution. Proposal pixel px covers image pixels 2px and 2px+1.
	half := imgSize / 2
	prop := mat.NewDense(half, half, nil)
	for y := 0; y < half; y++ {
		for x := 0; x < half; x++ {
			prop.Set(y, x, float64(columnLabel(2*x+1)))
		}
	}
	pf, err := os.Create(filepath.Join(f.opts.PropDir, ProposalName(name)))
	require.NoError(t, err)
	defer pf.Close()
	require.NoError(t, npy.Write(pf, prop))
}

func newFixture(t *testing.T, names ...string) *fixture {
	root := t.TempDir()
	f := &fixture{root: root}
	f.opts = DefaultOptions()
	f.opts.ImageDir = filepath.Join(root, "imgs")
	f.opts.MaskDir = filepath.Join(root, "masks")
	f.opts.TxtDir = filepath.Join(root, "txt_files")
	f.opts.PropDir = filepath.Join(root, "props")
	f.opts.Scale = 0.5
	f.opts.Crop = 8
	for _, dir := range []string{f.opts.ImageDir, f.opts.MaskDir, f.opts.TxtDir, f.opts.PropDir} {
		require.NoError(t, os.MkdirAll(dir, 0777))
	}
	manifest := "\n" + strings.Join(names, "\n  \n") + "  \n"
	require.NoError(t, os.WriteFile(filepath.Join(f.opts.TxtDir, ManifestFile(SplitTrain)), []byte(manifest), 0666))
	return f
}

func TestGetSampleShapesAndAlignment(t *testing.T) {
	log := logs.NewTestingLog(t)
	f := newFixture(t, "a.tif", "b.tif")
	writeScene(t, f, "a.tif", 20, 20)
	writeScene(t, f, "b.tif", 20, 20)
	f.opts.WithProposal = true

	ds, err := Open(log, f.opts)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	ref, err := ds.Ref(1)
	require.NoError(t, err)
	require.Equal(t, "b.tif", ref.Name)
	require.Equal(t, filepath.Join(f.opts.PropDir, "b.npy"), ref.PropPath)

	s, err := ds.GetSample(0)
	require.NoError(t, err)
	require.Equal(t, "a.tif", s.Name)
	require.Equal(t, []int{3, 8, 8}, []int(s.Image.Shape()))
	require.Equal(t, []int{1, 8, 8}, []int(s.Mask.Shape()))
	require.Equal(t, []int{1, 8, 8}, []int(s.Prop.Shape()))

	// After resizing by 0.5, mask column c samples source column 2c+1. The crop
	// starts at column 1 of 10, and the proposal (resized by 1.0) must agree.
	maskData := s.Mask.Data().([]int64)
	propData := s.Prop.Data().([]int64)
	require.Equal(t, maskData, propData)
	for x := 0; x < 8; x++ {
		require.Equal(t, int64(columnLabel(2*(x+1)+1)), maskData[x])
	}

	// Red channel carries the source column
	imgData := s.Image.Data().([]float32)
	stats := f.opts.Stats
	for x := 0; x < 8; x++ {
		red := float32((2*(x+1) + 1) * 10)
		require.InDelta(t, (red-stats.Means[0])/stats.Stds[0], imgData[x], 1e-5)
	}
}

func TestSizeMismatchBeforeResampling(t *testing.T) {
	f := newFixture(t, "bad.tif")
	writeScene(t, f, "bad.tif", 500, 480)
	ds, err := Open(logs.NewTestingLog(t), f.opts)
	require.NoError(t, err)

	_, err = ds.GetSample(0)
	var sizeErr *SizeMismatchError
	require.True(t, errors.As(err, &sizeErr))
	require.Equal(t, 0, sizeErr.Index)
	require.Equal(t, "bad.tif", sizeErr.Name)
	require.Equal(t, raster.Size{Width: 500, Height: 500}, sizeErr.Image)
	require.Equal(t, raster.Size{Width: 480, Height: 480}, sizeErr.Mask)
}

func TestCropLargerThanResized(t *testing.T) {
	f := newFixture(t, "a.tif")
	writeScene(t, f, "a.tif", 20, 20)
	f.opts.Crop = 12
	ds, err := Open(logs.NewTestingLog(t), f.opts)
	require.NoError(t, err)

	_, err = ds.GetSample(0)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "crop", cfgErr.Field)
	var cropErr *raster.CropError
	require.True(t, errors.As(err, &cropErr))
	require.Equal(t, 10, cropErr.Width)
}

func TestTinyScaleIsConfigurationError(t *testing.T) {
	f := newFixture(t, "a.tif")
	writeScene(t, f, "a.tif", 20, 20)
	f.opts.Scale = 0.01
	f.opts.Crop = 1
	ds, err := Open(logs.NewTestingLog(t), f.opts)
	require.NoError(t, err)

	_, err = ds.GetSample(0)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "scale", cfgErr.Field)
}

func TestOptionsValidation(t *testing.T) {
	log := logs.NewTestingLog(t)
	f := newFixture(t, "a.tif")
	var cfgErr *ConfigurationError

	for _, scale := range []float64{0, -0.5, 1.0001, 2.5, math.Inf(1), math.NaN()} {
		opts := f.opts
		opts.Scale = scale
		_, err := Open(log, opts)
		require.True(t, errors.As(err, &cfgErr), "scale %v", scale)
		require.Equal(t, "scale", cfgErr.Field)
	}

	opts := f.opts
	opts.Scale = 1
	_, err := Open(log, opts)
	require.NoError(t, err)

	opts = f.opts
	opts.Split = "holdout"
	_, err = Open(log, opts)
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "split", cfgErr.Field)

	opts = f.opts
	opts.Stats.Stds[0] = 0
	_, err = Open(log, opts)
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "stats", cfgErr.Field)

	opts = f.opts
	opts.WithProposal = true
	opts.Augment = AugmentFunc(func(img raster.Array[uint8], mask raster.Array[int32]) (raster.Array[uint8], raster.Array[int32], error) {
		return img, mask, nil
	})
	_, err = Open(log, opts)
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "augment", cfgErr.Field)

	opts = f.opts
	opts.WithProposal = true
	_, err = New(log, opts, []SampleRef{{Name: "x"}})
	require.True(t, errors.As(err, &cfgErr))
}

func TestAugmenter(t *testing.T) {
	log := logs.NewTestingLog(t)
	f := newFixture(t, "a.tif")
	writeScene(t, f, "a.tif", 20, 20)

	opts := f.opts
	opts.Augment = AugmentFunc(func(img raster.Array[uint8], mask raster.Array[int32]) (raster.Array[uint8], raster.Array[int32], error) {
		return img.Crop(0, 0, 6, 4), mask.Crop(0, 0, 6, 4), nil
	})
	ds, err := Open(log, opts)
	require.NoError(t, err)
	s, err := ds.GetSample(0)
	require.NoError(t, err)
	require.Equal(t, []int{3, 4, 6}, []int(s.Image.Shape()))
	require.Equal(t, []int{1, 4, 6}, []int(s.Mask.Shape()))
	require.Nil(t, s.Prop)

	opts.Augment = AugmentFunc(func(img raster.Array[uint8], mask raster.Array[int32]) (raster.Array[uint8], raster.Array[int32], error) {
		return img.Crop(0, 0, 6, 4), mask.Crop(0, 0, 5, 4), nil
	})
	ds, err = Open(log, opts)
	require.NoError(t, err)
	_, err = ds.GetSample(0)
	var shapeErr *ShapeMismatchError
	require.True(t, errors.As(err, &shapeErr))
	require.Equal(t, "image", shapeErr.First)
	require.Equal(t, "mask", shapeErr.Second)
	require.Equal(t, raster.Size{Width: 5, Height: 4}, shapeErr.SecondShape)
}

func TestIndexOutOfRange(t *testing.T) {
	f := newFixture(t, "a.tif")
	ds, err := Open(logs.NewTestingLog(t), f.opts)
	require.NoError(t, err)
	_, err = ds.GetSample(1)
	require.True(t, errors.Is(err, ErrIndexOutOfRange))
	_, err = ds.GetSample(-1)
	require.True(t, errors.Is(err, ErrIndexOutOfRange))
}

func TestConcurrentGetSample(t *testing.T) {
	f := newFixture(t, "a.tif", "b.tif")
	writeScene(t, f, "a.tif", 20, 20)
	writeScene(t, f, "b.tif", 20, 20)
	ds, err := Open(logs.NewTestingLog(t), f.opts)
	require.NoError(t, err)

	first, err := ds.GetSample(1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Sample, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = ds.GetSample(1)
		}()
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, first.Image.Data(), results[i].Image.Data())
		require.Equal(t, first.Mask.Data(), results[i].Mask.Data())
	}
}

func TestReadManifest(t *testing.T) {
	names, err := ReadManifest(strings.NewReader("  one.tif\n\n\ttwo.tif \r\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"one.tif", "two.tif"}, names)
	require.Equal(t, "ice_val_orig.txt", ManifestFile(SplitValOrig))
	require.Equal(t, "scene_01.npy", ProposalName("scene_01.tif"))
}

func TestDatasetComputeStats(t *testing.T) {
	f := newFixture(t, "a.tif", "b.tif")
	writeScene(t, f, "a.tif", 20, 20)
	writeScene(t, f, "b.tif", 20, 20)
	ds, err := Open(logs.NewTestingLog(t), f.opts)
	require.NoError(t, err)

	s, err := ds.ComputeStats(context.Background(), 2, 1)
	// Blue is constant, so its deviation is zero and the statistics are unusable
	require.Error(t, err)
	require.InDelta(t, 128, s.Means[2], 1e-4)
	require.InDelta(t, 95, s.Means[0], 1e-4)
}
