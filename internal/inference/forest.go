package inference

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"idsguard/internal/failure"
)

const leaf = -1

// Tree is a fitted decision tree in the flat array layout scikit-learn
// exports: node i splits on Feature[i] at Threshold[i] (go left when
// x <= threshold), leaves have ChildrenLeft[i] == -1 and Value[i] holds the
// per-class weights [negative, positive].
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

type Forest struct {
	nFeatures   int
	trees       []Tree
	importances []float64
}

func NewForest(nFeatures int, trees []Tree, importances []float64) (*Forest, error) {
	if nFeatures <= 0 {
		return nil, errors.New("forest needs a positive feature count")
	}
	if len(trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	for i := range trees {
		if err := trees[i].validate(nFeatures); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	if len(importances) != 0 && len(importances) != nFeatures {
		return nil, fmt.Errorf("forest has %d importances for %d features", len(importances), nFeatures)
	}
	return &Forest{
		nFeatures:   nFeatures,
		trees:       trees,
		importances: append([]float64(nil), importances...),
	}, nil
}

func (t *Tree) validate(nFeatures int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return errors.New("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return errors.New("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leaf || r == leaf {
			if l != r {
				return fmt.Errorf("node %d has one child", i)
			}
			if len(t.Value[i]) != 2 {
				return fmt.Errorf("leaf %d has %d class weights, want 2", i, len(t.Value[i]))
			}
			if sum := t.Value[i][0] + t.Value[i][1]; !(sum > 0) || t.Value[i][0] < 0 || t.Value[i][1] < 0 {
				return fmt.Errorf("leaf %d has invalid class weights", i)
			}
			continue
		}
		// children always come after their parent, which rules out cycles
		if l <= i || r <= i || l >= n || r >= n {
			return fmt.Errorf("node %d has children out of range", i)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d", i, t.Feature[i])
		}
		if !finite(t.Threshold[i]) {
			return fmt.Errorf("node %d threshold is not finite", i)
		}
	}
	return nil
}

func (t *Tree) proba(row []float64) float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if row[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	v := t.Value[node]
	return v[1] / (v[0] + v[1])
}

func (f *Forest) Kind() string { return "forest" }

func (f *Forest) NumFeatures() int { return f.nFeatures }

func (f *Forest) NumEstimators() int { return len(f.trees) }

func (f *Forest) FeatureImportances() []float64 {
	return append([]float64(nil), f.importances...)
}

// PredictProba averages the leaf probabilities of all trees.
func (f *Forest) PredictProba(x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != f.nFeatures {
		return nil, failure.Newf(failure.KindArtifact, "predict", "matrix has %d columns, model expects %d", cols, f.nFeatures)
	}
	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, x)
		var sum float64
		for t := range f.trees {
			sum += f.trees[t].proba(row)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out, nil
}
