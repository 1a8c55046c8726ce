package eval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyclopcam/icepipe/pkg/dataset"
	"github.com/cyclopcam/icepipe/pkg/loader"
	"github.com/cyclopcam/icepipe/pkg/logx"
	"github.com/cyclopcam/icepipe/pkg/raster"
	"github.com/cyclopcam/icepipe/pkg/rasterio"
	"github.com/cyclopcam/logs"
	"gorgonia.org/tensor"
)

var ErrPredictionMissing = errors.New("no prediction file")

// Predictor is a segmentation model. Given an N×3×H×W image batch, it returns N×K×H×W class scores.
type Predictor interface {
	Predict(ctx context.Context, images *tensor.Dense) (*tensor.Dense, error)
}

// PredictorFunc adapts a plain function to the Predictor interface
type PredictorFunc func(ctx context.Context, images *tensor.Dense) (*tensor.Dense, error)

func (f PredictorFunc) Predict(ctx context.Context, images *tensor.Dense) (*tensor.Dense, error) {
	return f(ctx, images)
}

// Run evaluates a predictor over every batch of a loader
func Run(ctx context.Context, log logs.Log, predictor Predictor, ld *loader.Loader, numClasses, headline int) (Result, error) {
	log = logx.WithComponent(log, "eval")
	pass := NewPass(numClasses, headline)
	total := ld.NumBatches()
	start := time.Now()
	err := ld.Run(ctx, func(ctx context.Context, b *loader.Batch) error {
		scores, err := predictor.Predict(ctx, b.Images)
		if err != nil {
			return fmt.Errorf("predict batch %v: %w", b.Index, err)
		}
		if err := pass.AddBatch(b.Masks, scores); err != nil {
			return fmt.Errorf("batch %v (%v): %w", b.Index, strings.Join(b.Names, ","), err)
		}
		if (b.Index+1)%50 == 0 {
			log.Infof("%v/%v batches", b.Index+1, total)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	r := pass.Result()
	log.Infof("%v batches in %.1f seconds. Headline IoU %.4f, mean IoU %.4f", r.Batches, time.Since(start).Seconds(), r.HeadlineIoU, r.MeanIoU)
	return r, nil
}

// PredictionPath finds the prediction file for a sample. It looks for a label
// image with the same name as the sample first, and then for <stem>.npy.
func PredictionPath(predDir, name string) (string, error) {
	candidates := []string{
		filepath.Join(predDir, name),
		filepath.Join(predDir, dataset.ProposalName(name)),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w for %v in %v", ErrPredictionMissing, name, predDir)
}

// LoadPrediction reads a predicted label map, either a label image or a .npy array
func LoadPrediction(path string) (raster.Array[int32], error) {
	if strings.EqualFold(filepath.Ext(path), ".npy") {
		arr, err := rasterio.LoadNpy(path)
		if err != nil {
			return raster.Array[int32]{}, err
		}
		return raster.Convert[int32](arr), nil
	}
	return rasterio.LoadMask(path)
}

// EvaluateDirectory compares predicted label maps that were written to disk with
// the ground truth masks of refs. Each sample counts as one batch.
// Predictions must have the same size as their masks.
func EvaluateDirectory(log logs.Log, refs []dataset.SampleRef, predDir string, numClasses, headline int) (Result, error) {
	log = logx.WithComponent(log, "eval")
	pass := NewPass(numClasses, headline)
	for i, ref := range refs {
		truth, err := rasterio.LoadMask(ref.MaskPath)
		if err != nil {
			return Result{}, err
		}
		predPath, err := PredictionPath(predDir, ref.Name)
		if err != nil {
			return Result{}, err
		}
		pred, err := LoadPrediction(predPath)
		if err != nil {
			return Result{}, err
		}
		if truth.Size() != pred.Size() {
			return Result{}, &dataset.ShapeMismatchError{Index: i, Name: ref.Name, First: "mask", Second: "prediction", FirstShape: truth.Size(), SecondShape: pred.Size()}
		}
		t := tensor.New(tensor.WithShape(1, truth.Height, truth.Width), tensor.WithBacking(truth.Pixels))
		p := tensor.New(tensor.WithShape(1, pred.Height, pred.Width), tensor.WithBacking(pred.Pixels))
		if err := pass.AddLabels(t, p); err != nil {
			return Result{}, fmt.Errorf("sample %v (%v): %w", i, ref.Name, err)
		}
	}
	r := pass.Result()
	log.Infof("Evaluated %v predictions from %v. Headline IoU %.4f, mean IoU %.4f", len(refs), predDir, r.HeadlineIoU, r.MeanIoU)
	return r, nil
}
