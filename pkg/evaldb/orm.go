package evaldb

import (
	"math"

	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// EvalPass is one recorded evaluation pass.
// Metrics that were undefined (NaN) are stored as NULL.
type EvalPass struct {
	BaseModel
	Time             dbh.IntTime                    `json:"time"`
	Split            string                         `json:"split"`
	Model            string                         `json:"model"` // Free-form name of the model or prediction directory
	NumClasses       int                            `json:"numClasses"`
	HeadlineClass    int                            `json:"headlineClass"`
	HeadlineIoU      *float64                       `gorm:"column:headline_iou" json:"headlineIoU"`
	HeadlineAccuracy *float64                       `gorm:"column:headline_accuracy" json:"headlineAccuracy"`
	MeanIoU          *float64                       `gorm:"column:mean_iou" json:"meanIoU"`
	MeanAccuracy     *float64                       `gorm:"column:mean_accuracy" json:"meanAccuracy"`
	BatchMeanIoU     *float64                       `gorm:"column:batch_mean_iou" json:"batchMeanIoU"`
	Pixels           int64                          `json:"pixels"`
	Detail           *dbh.JSONField[PassDetailJSON] `json:"detail"`
}

func (EvalPass) TableName() string {
	return "eval_pass"
}

// PassDetailJSON holds the per-class vectors and the confusion matrix of a pass
type PassDetailJSON struct {
	Accuracy []*float64 `json:"accuracy"`
	IoU      []*float64 `json:"iou"`
	Matrix   [][]int64  `json:"matrix"`
	Batches  int        `json:"batches"`
}

// NaN is stored as nil. Neither JSON nor SQL REAL can hold it.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullableSlice(v []float64) []*float64 {
	out := make([]*float64, len(v))
	for i, x := range v {
		out[i] = nullable(x)
	}
	return out
}

// Value returns *p, or NaN if p is nil
func Value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
