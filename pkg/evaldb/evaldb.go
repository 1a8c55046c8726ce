// Package evaldb records the results of evaluation passes in an sqlite database,
// so that models can be compared over time.
package evaldb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/icepipe/pkg/eval"
	"github.com/cyclopcam/logs"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gorm.io/gorm"
)

type EvalDB struct {
	Log logs.Log
	DB  *gorm.DB
}

// Open or create an evaluation DB
func Open(logger logs.Log, dbFilename string) (*EvalDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0777)
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &EvalDB{
		Log: logger,
		DB:  db,
	}, nil
}

// Close the underlying connection pool
func (e *EvalDB) Close() {
	if sqlDB, err := e.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// RecordPass saves the result of an evaluation pass
func (e *EvalDB) RecordPass(split, model string, r eval.Result) (*EvalPass, error) {
	var detail dbh.JSONField[PassDetailJSON]
	detail.Data = PassDetailJSON{
		Accuracy: nullableSlice(r.Accuracy),
		IoU:      nullableSlice(r.IoU),
		Matrix:   r.Matrix,
		Batches:  r.Batches,
	}
	rec := &EvalPass{
		Time:             dbh.MakeIntTime(time.Now()),
		Split:            split,
		Model:            model,
		NumClasses:       len(r.Matrix),
		HeadlineClass:    r.Headline,
		HeadlineIoU:      nullable(r.HeadlineIoU),
		HeadlineAccuracy: nullable(r.HeadlineAccuracy),
		MeanIoU:          nullable(r.MeanIoU),
		MeanAccuracy:     nullable(r.MeanAccuracy),
		BatchMeanIoU:     nullable(r.BatchMeanIoU),
		Pixels:           r.Pixels,
		Detail:           &detail,
	}
	if err := e.DB.Create(rec).Error; err != nil {
		return nil, err
	}
	e.Log.Infof("Recorded evaluation pass %v (%v, %v)", rec.ID, split, model)
	return rec, nil
}

// ListPasses returns recorded passes, oldest first.
// If split is empty, all splits are returned. If limit is positive, only the most recent 'limit' passes are returned.
func (e *EvalDB) ListPasses(split string, limit int) ([]EvalPass, error) {
	q := e.DB.Order("time DESC, id DESC")
	if split != "" {
		q = q.Where("split = ?", split)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	passes := []EvalPass{}
	if err := q.Find(&passes).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(passes)-1; i < j; i, j = i+1, j-1 {
		passes[i], passes[j] = passes[j], passes[i]
	}
	return passes, nil
}

// PlotHeadlineIoU draws headline and mean IoU of successive passes, and saves the
// plot to filename. The image format is chosen from the file extension (eg .png, .svg).
func PlotHeadlineIoU(passes []EvalPass, title, filename string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Pass"
	p.Y.Label.Text = "IoU"
	p.Y.Min = 0
	p.Y.Max = 1

	headline := plotter.XYs{}
	mean := plotter.XYs{}
	for i, pass := range passes {
		if pass.HeadlineIoU != nil {
			headline = append(headline, plotter.XY{X: float64(i + 1), Y: *pass.HeadlineIoU})
		}
		if pass.MeanIoU != nil {
			mean = append(mean, plotter.XY{X: float64(i + 1), Y: *pass.MeanIoU})
		}
	}
	if len(headline) == 0 && len(mean) == 0 {
		return fmt.Errorf("no passes with defined IoU to plot")
	}

	for _, series := range []struct {
		name string
		xys  plotter.XYs
		dash bool
	}{
		{"headline", headline, false},
		{"mean", mean, true},
	} {
		if len(series.xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(series.xys)
		if err != nil {
			return err
		}
		line.Width = vg.Points(1)
		if series.dash {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(series.name, line)
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, filename)
}
