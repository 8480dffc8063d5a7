package inference

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"idsguard/internal/failure"
)

type Logistic struct {
	coef      *mat.VecDense
	intercept float64
}

func NewLogistic(coef []float64, intercept float64) (*Logistic, error) {
	if len(coef) == 0 {
		return nil, errors.New("logistic model has no coefficients")
	}
	for i, c := range coef {
		if !finite(c) {
			return nil, fmt.Errorf("logistic coefficient %d is not finite", i)
		}
	}
	if !finite(intercept) {
		return nil, errors.New("logistic intercept is not finite")
	}
	return &Logistic{coef: mat.NewVecDense(len(coef), append([]float64(nil), coef...)), intercept: intercept}, nil
}

func (l *Logistic) Kind() string { return "logistic" }

func (l *Logistic) NumFeatures() int { return l.coef.Len() }

func (l *Logistic) PredictProba(x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != l.coef.Len() {
		return nil, failure.Newf(failure.KindArtifact, "predict", "matrix has %d columns, model expects %d", cols, l.coef.Len())
	}
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		z := mat.Dot(x.RowView(i), l.coef) + l.intercept
		out[i] = sigmoid(z)
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
