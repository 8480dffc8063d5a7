package inference

import (
	"gonum.org/v1/gonum/mat"
)

// Classifier is a fitted probabilistic binary classifier. PredictProba
// returns the positive-class probability of every row, in row order.
type Classifier interface {
	Kind() string
	NumFeatures() int
	PredictProba(x *mat.Dense) ([]float64, error)
}

// Importancer is implemented by classifiers that carry feature importances.
type Importancer interface {
	FeatureImportances() []float64
}

// Estimators is implemented by ensembles.
type Estimators interface {
	NumEstimators() int
}
