package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/icepipe/pkg/config"
	"github.com/cyclopcam/icepipe/pkg/dataset"
	"github.com/cyclopcam/icepipe/pkg/eval"
	"github.com/cyclopcam/icepipe/pkg/evaldb"
	"github.com/cyclopcam/icepipe/pkg/loader"
	"github.com/cyclopcam/icepipe/pkg/normalize"
	"github.com/cyclopcam/icepipe/pkg/raster"
	"github.com/cyclopcam/icepipe/pkg/rasterio"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("icepipe", "Sea ice segmentation sample pipeline and evaluation")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON config file. Defaults are used if omitted", Default: ""})

	inspectCmd := parser.NewCommand("inspect", "Process one sample and describe the result")
	inspectSplit := inspectCmd.String("s", "split", &argparse.Options{Help: "Dataset split", Default: dataset.SplitTrain})
	inspectIndex := inspectCmd.Int("i", "index", &argparse.Options{Help: "Sample index within the split", Default: 0})
	inspectProp := inspectCmd.Flag("p", "proposal", &argparse.Options{Help: "Also load the prior proposal"})
	inspectPreview := inspectCmd.String("", "preview", &argparse.Options{Help: "Directory to write preview JPEGs into", Default: ""})

	verifyCmd := parser.NewCommand("verify", "Process every sample of a split, reporting failures and timing")
	verifySplit := verifyCmd.String("s", "split", &argparse.Options{Help: "Dataset split", Default: dataset.SplitTrain})
	verifyProp := verifyCmd.Flag("p", "proposal", &argparse.Options{Help: "Also load the prior proposals"})

	statsCmd := parser.NewCommand("stats", "Compute per-channel normalization statistics of a split")
	statsSplit := statsCmd.String("s", "split", &argparse.Options{Help: "Dataset split", Default: dataset.SplitTrainOrig})
	statsWorkers := statsCmd.Int("w", "workers", &argparse.Options{Help: "Number of images decoded concurrently", Default: 4})

	evalCmd := parser.NewCommand("evaluate", "Score predicted label maps against the ground truth of a split")
	evalSplit := evalCmd.String("s", "split", &argparse.Options{Help: "Dataset split", Default: dataset.SplitVal})
	evalPred := evalCmd.String("d", "predictions", &argparse.Options{Help: "Directory of predicted label maps (image or .npy per sample)", Required: true})
	evalModel := evalCmd.String("m", "model", &argparse.Options{Help: "Name to record the pass under", Default: ""})
	evalNoRecord := evalCmd.Flag("", "norecord", &argparse.Options{Help: "Don't record the pass in the evaluation DB"})

	historyCmd := parser.NewCommand("history", "List recorded evaluation passes")
	historySplit := historyCmd.String("s", "split", &argparse.Options{Help: "Only show this split", Default: ""})
	historyLimit := historyCmd.Int("n", "limit", &argparse.Options{Help: "Show only the most recent N passes", Default: 0})
	historyPlot := historyCmd.String("", "plot", &argparse.Options{Help: "Write a plot of IoU over passes to this file (.png, .svg, .pdf)", Default: ""})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)
	defer logger.Close()

	cfg := config.Default()
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		check(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	switch {
	case inspectCmd.Happened():
		check(inspect(logger, cfg, *inspectSplit, *inspectIndex, *inspectProp, *inspectPreview))
	case verifyCmd.Happened():
		check(verify(ctx, logger, cfg, *verifySplit, *verifyProp))
	case statsCmd.Happened():
		check(computeStats(ctx, logger, cfg, *statsSplit, *statsWorkers))
	case evalCmd.Happened():
		check(evaluate(logger, cfg, *evalSplit, *evalPred, *evalModel, !*evalNoRecord))
	case historyCmd.Happened():
		check(history(logger, cfg, *historySplit, *historyLimit, *historyPlot))
	}
}

func inspect(logger logs.Log, cfg *config.Config, split string, index int, withProp bool, previewDir string) error {
	ds, err := dataset.Open(logger, cfg.DatasetOptions(split, withProp))
	if err != nil {
		return err
	}
	raw, err := ds.LoadRaw(index)
	if err != nil {
		return err
	}
	s, err := ds.Process(index, raw)
	if err != nil {
		return err
	}
	fmt.Print(sampleTable(s, raw))

	if previewDir == "" {
		return nil
	}
	if err := os.MkdirAll(previewDir, 0777); err != nil {
		return err
	}
	stem := strings.TrimSuffix(s.Name, filepath.Ext(s.Name))
	rgb, err := cfg.Stats.ToRGB(s.Image)
	if err != nil {
		return err
	}
	if err := rasterio.WritePreviewJPEG(filepath.Join(previewDir, stem+"-image.jpg"), rgb); err != nil {
		return err
	}
	if err := rasterio.WritePreviewJPEG(filepath.Join(previewDir, stem+"-mask.jpg"), rasterio.LabelsToRGB(labelRaster(s.Mask.Data().([]int64), s))); err != nil {
		return err
	}
	if s.Prop != nil {
		if err := rasterio.WritePreviewJPEG(filepath.Join(previewDir, stem+"-proposal.jpg"), rasterio.LabelsToRGB(labelRaster(s.Prop.Data().([]int64), s))); err != nil {
			return err
		}
	}
	logger.Infof("Wrote previews of %v to %v", s.Name, previewDir)
	return nil
}

func labelRaster(labels []int64, s *dataset.Sample) raster.Array[int64] {
	h, w := normalize.SpatialShape(s.Mask)
	return raster.Wrap(w, h, 1, labels)
}

func verify(ctx context.Context, logger logs.Log, cfg *config.Config, split string, withProp bool) error {
	ds, err := dataset.Open(logger, cfg.DatasetOptions(split, withProp))
	if err != nil {
		return err
	}
	opts := cfg.LoaderOptions()
	opts.OnError = loader.OnErrorSkip
	ld, err := loader.New(logger, ds, opts)
	if err != nil {
		return err
	}
	labels := map[int64]int64{}
	err = ld.Run(ctx, func(ctx context.Context, b *loader.Batch) error {
		for _, v := range b.Masks.Data().([]int64) {
			labels[v]++
		}
		return nil
	})
	if err != nil {
		return err
	}
	keys := []int64{}
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Printf("label %v: %v pixels\n", k, labels[k])
		if k < 0 || k >= int64(cfg.NumClasses) {
			logger.Warnf("Label %v is outside the configured %v classes", k, cfg.NumClasses)
		}
	}
	fmt.Printf("%v\n", ld.Timer.Snapshot())
	if skipped := ld.Skipped(); skipped != nil {
		return fmt.Errorf("some samples failed: %w", skipped)
	}
	return nil
}

func computeStats(ctx context.Context, logger logs.Log, cfg *config.Config, split string, workers int) error {
	ds, err := dataset.Open(logger, cfg.DatasetOptions(split, false))
	if err != nil {
		return err
	}
	stats, err := ds.ComputeStats(ctx, workers, 1)
	if err != nil {
		return err
	}
	fmt.Print(statsTable(stats))
	j, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Printf("\"stats\": %v\n", string(j))
	return nil
}

func evaluate(logger logs.Log, cfg *config.Config, split, predDir, model string, record bool) error {
	names, err := dataset.LoadManifest(cfg.Resolve(cfg.TxtDir), split)
	if err != nil {
		return err
	}
	refs := dataset.MakeRefs(names, cfg.Resolve(cfg.ImageDir), cfg.Resolve(cfg.MaskDir), "")
	r, err := eval.EvaluateDirectory(logger, refs, predDir, cfg.NumClasses, cfg.Headline)
	if err != nil {
		return err
	}
	fmt.Print(resultTable(r))
	if !record {
		return nil
	}
	if model == "" {
		model = filepath.Base(filepath.Clean(predDir))
	}
	db, err := evaldb.Open(logger, cfg.Resolve(cfg.EvalDB))
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.RecordPass(split, model, r)
	return err
}

func history(logger logs.Log, cfg *config.Config, split string, limit int, plotFile string) error {
	db, err := evaldb.Open(logger, cfg.Resolve(cfg.EvalDB))
	if err != nil {
		return err
	}
	defer db.Close()
	passes, err := db.ListPasses(split, limit)
	if err != nil {
		return err
	}
	fmt.Print(historyTable(passes))
	if plotFile != "" {
		title := "IoU history"
		if split != "" {
			title += " (" + split + ")"
		}
		if err := evaldb.PlotHeadlineIoU(passes, title, plotFile); err != nil {
			return err
		}
		logger.Infof("Wrote %v", plotFile)
	}
	return nil
}
