package main

import (
	"fmt"
	"math"
	"time"

	"github.com/cyclopcam/icepipe/pkg/dataset"
	"github.com/cyclopcam/icepipe/pkg/eval"
	"github.com/cyclopcam/icepipe/pkg/evaldb"
	"github.com/cyclopcam/icepipe/pkg/normalize"
	"github.com/cyclopcam/icepipe/pkg/raster"
	"github.com/jedib0t/go-pretty/v6/table"
)

func metric(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func minMax[T float32 | int64](v []T) (T, T) {
	if len(v) == 0 {
		return 0, 0
	}
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return lo, hi
}

func sampleTable(s *dataset.Sample, raw *dataset.Raw) string {
	t := table.NewWriter()
	t.SetTitle(s.Name)
	t.AppendHeader(table.Row{"Array", "Raw size", "Tensor shape", "Min", "Max"})
	lo, hi := minMax(s.Image.Data().([]float32))
	t.AppendRow(table.Row{"image", raw.Image.Size(), s.Image.Shape(), fmt.Sprintf("%.3f", lo), fmt.Sprintf("%.3f", hi)})
	mlo, mhi := minMax(s.Mask.Data().([]int64))
	t.AppendRow(table.Row{"mask", raw.Mask.Size(), s.Mask.Shape(), mlo, mhi})
	if s.Prop != nil {
		plo, phi := minMax(s.Prop.Data().([]int64))
		t.AppendRow(table.Row{"proposal", raw.Prop.Size(), s.Prop.Shape(), plo, phi})
	}
	distinct := raster.Distinct(raw.Mask)
	t.AppendFooter(table.Row{"", "", "", "raw mask labels", len(distinct)})
	return t.Render() + "\n"
}

func statsTable(s normalize.Stats) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Channel", "Mean", "Std"})
	for c, name := range []string{"R", "G", "B"} {
		t.AppendRow(table.Row{name, fmt.Sprintf("%.4f", s.Means[c]), fmt.Sprintf("%.4f", s.Stds[c])})
	}
	return t.Render() + "\n"
}

func resultTable(r eval.Result) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Class", "Pixels", "Accuracy", "IoU"})
	for c := range r.IoU {
		rowSum := int64(0)
		for _, v := range r.Matrix[c] {
			rowSum += v
		}
		name := fmt.Sprintf("%v", c)
		if c == r.Headline {
			name += " *"
		}
		t.AppendRow(table.Row{name, rowSum, metric(r.Accuracy[c]), metric(r.IoU[c])})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"mean", r.Pixels, metric(r.MeanAccuracy), metric(r.MeanIoU)})
	t.AppendRow(table.Row{"batch mean *", r.Batches, metric(r.BatchMeanAccuracy), metric(r.BatchMeanIoU)})
	return t.Render() + "\n"
}

func historyTable(passes []evaldb.EvalPass) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Time", "Split", "Model", "Headline IoU", "Mean IoU", "Headline Acc"})
	for _, p := range passes {
		t.AppendRow(table.Row{
			p.ID,
			p.Time.Get().Local().Format(time.DateTime),
			p.Split,
			p.Model,
			metric(evaldb.Value(p.HeadlineIoU)),
			metric(evaldb.Value(p.MeanIoU)),
			metric(evaldb.Value(p.HeadlineAccuracy)),
		})
	}
	return t.Render() + "\n"
}
