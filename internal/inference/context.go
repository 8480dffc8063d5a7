package inference

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"idsguard/internal/failure"
	"idsguard/internal/normalize"
)

// Context bundles the loaded artifacts. It is built once at startup and
// shared read-only by every request.
type Context struct {
	contract   *normalize.Contract
	scaler     *Scaler
	classifier Classifier
	threshold  float64
	info       map[string]string
}

func NewContext(contract *normalize.Contract, scaler *Scaler, classifier Classifier, threshold float64, info map[string]string) (*Context, error) {
	if contract == nil || scaler == nil || classifier == nil {
		return nil, failure.New(failure.KindArtifact, "inference context", "contract, scaler and classifier are required")
	}
	n := contract.Len()
	if scaler.NumFeatures() != n {
		return nil, failure.Newf(failure.KindArtifact, "inference context", "scaler has %d features, contract has %d", scaler.NumFeatures(), n)
	}
	if classifier.NumFeatures() != n {
		return nil, failure.Newf(failure.KindArtifact, "inference context", "classifier has %d features, contract has %d", classifier.NumFeatures(), n)
	}
	if err := validateThreshold(threshold); err != nil {
		return nil, &failure.Error{Kind: failure.KindArtifact, Op: "inference context", Err: err}
	}
	copied := make(map[string]string, len(info))
	for k, v := range info {
		copied[k] = v
	}
	return &Context{
		contract:   contract,
		scaler:     scaler,
		classifier: classifier,
		threshold:  threshold,
		info:       copied,
	}, nil
}

func (c *Context) Contract() *normalize.Contract { return c.contract }

func (c *Context) Threshold() float64 { return c.threshold }

func (c *Context) Scaler() *Scaler { return c.scaler }

// Score scales x and returns one probability per row, in row order.
func (c *Context) Score(x *mat.Dense) ([]float64, error) {
	rows, _ := x.Dims()
	scaled, err := c.scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	probs, err := c.classifier.PredictProba(scaled)
	if err != nil {
		return nil, failure.Wrap(failure.KindArtifact, "predict", err)
	}
	if len(probs) != rows {
		return nil, failure.Newf(failure.KindArtifact, "predict", "classifier returned %d scores for %d rows", len(probs), rows)
	}
	for i, p := range probs {
		if !finite(p) || p < 0 || p > 1 {
			return nil, failure.Newf(failure.KindArtifact, "predict", "row %d score %v outside [0,1]", i, p)
		}
	}
	return probs, nil
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

type ModelInfo struct {
	ModelType          string              `json:"model_type"`
	Threshold          float64             `json:"threshold"`
	NumFeatures        int                 `json:"num_features"`
	Features           []string            `json:"features"`
	NumEstimators      int                 `json:"n_estimators,omitempty"`
	FeatureImportances []FeatureImportance `json:"feature_importances,omitempty"`
	DegenerateFeatures []string            `json:"degenerate_features,omitempty"`
	Info               map[string]string   `json:"info,omitempty"`
}

func (c *Context) Info() ModelInfo {
	names := c.contract.Names()
	mi := ModelInfo{
		ModelType:   c.classifier.Kind(),
		Threshold:   c.threshold,
		NumFeatures: len(names),
		Features:    names,
	}
	if e, ok := c.classifier.(Estimators); ok {
		mi.NumEstimators = e.NumEstimators()
	}
	if imp, ok := c.classifier.(Importancer); ok {
		if values := imp.FeatureImportances(); len(values) == len(names) {
			mi.FeatureImportances = make([]FeatureImportance, len(names))
			for i, name := range names {
				mi.FeatureImportances[i] = FeatureImportance{Feature: name, Importance: values[i]}
			}
			sort.SliceStable(mi.FeatureImportances, func(a, b int) bool {
				return mi.FeatureImportances[a].Importance > mi.FeatureImportances[b].Importance
			})
		}
	}
	for _, idx := range c.scaler.Degenerate() {
		mi.DegenerateFeatures = append(mi.DegenerateFeatures, names[idx])
	}
	if len(c.info) > 0 {
		mi.Info = make(map[string]string, len(c.info))
		for k, v := range c.info {
			mi.Info[k] = v
		}
	}
	return mi
}

func (mi ModelInfo) String() string {
	return fmt.Sprintf("%s model, %d features, threshold %.4f", mi.ModelType, mi.NumFeatures, mi.Threshold)
}
