package inference

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"idsguard/internal/failure"
)

// Scaler is a fitted per-feature standardization: (x - mean) / scale.
// A zero scale is stored as 1, so constant features only get centered.
type Scaler struct {
	mean       []float64
	scale      []float64
	degenerate []int
}

func NewScaler(mean, scale []float64) (*Scaler, error) {
	if len(mean) == 0 {
		return nil, errors.New("scaler has no features")
	}
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("scaler mean has %d values, scale has %d", len(mean), len(scale))
	}
	s := &Scaler{
		mean:  make([]float64, len(mean)),
		scale: make([]float64, len(scale)),
	}
	for i := range mean {
		if !finite(mean[i]) || !finite(scale[i]) || scale[i] < 0 {
			return nil, fmt.Errorf("scaler parameters at feature %d are invalid: mean=%v scale=%v", i, mean[i], scale[i])
		}
		s.mean[i] = mean[i]
		s.scale[i] = scale[i]
		if scale[i] == 0 {
			s.scale[i] = 1
			s.degenerate = append(s.degenerate, i)
		}
	}
	return s, nil
}

// FitScaler computes population mean and standard deviation per column.
func FitScaler(x mat.Matrix) (*Scaler, error) {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.New("cannot fit scaler on empty data")
	}
	mean := make([]float64, cols)
	scale := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		m, v := stat.PopMeanVariance(col, nil)
		mean[j] = m
		scale[j] = math.Sqrt(v)
	}
	return NewScaler(mean, scale)
}

func (s *Scaler) NumFeatures() int {
	return len(s.mean)
}

func (s *Scaler) Mean() []float64 {
	return append([]float64(nil), s.mean...)
}

func (s *Scaler) Scale() []float64 {
	return append([]float64(nil), s.scale...)
}

// Degenerate lists the features whose fitted scale was zero.
func (s *Scaler) Degenerate() []int {
	return append([]int(nil), s.degenerate...)
}

func (s *Scaler) Transform(x *mat.Dense) (*mat.Dense, error) {
	const op = "scale"
	rows, cols := x.Dims()
	if cols != len(s.mean) {
		return nil, failure.Newf(failure.KindArtifact, op, "matrix has %d columns, scaler expects %d", cols, len(s.mean))
	}
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := (x.At(i, j) - s.mean[j]) / s.scale[j]
			if !finite(v) {
				return nil, failure.Newf(failure.KindCoercion, op, "row %d feature %d scales to %v", i, j, v)
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
