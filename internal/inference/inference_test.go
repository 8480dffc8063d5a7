package inference

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"idsguard/internal/failure"
	"idsguard/internal/normalize"
)

func mustNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func wantKind(t *testing.T, err error, kind failure.Kind) {
	t.Helper()
	if !failure.Is(err, kind) {
		t.Fatalf("expected %s failure, got %v (kind %q)", kind, err, failure.KindOf(err))
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= 1e-12
}

func TestDecideBoundaryIsInclusive(t *testing.T) {
	cases := []struct {
		name      string
		score     float64
		threshold float64
		want      bool
	}{
		{"below", 0.49, 0.5, false},
		{"equal", 0.5, 0.5, true},
		{"above", 0.72, 0.5, true},
		{"zero threshold", 0, 0, true},
		{"one threshold", 0.999, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.score, tc.threshold); got != tc.want {
				t.Fatalf("Decide(%v, %v) = %v, want %v", tc.score, tc.threshold, got, tc.want)
			}
		})
	}
}

func TestDecideMonotoneInThreshold(t *testing.T) {
	scores := []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1}
	thresholds := []float64{0, 0.2, 0.4, 0.5, 0.6, 0.8, 1}
	for _, s := range scores {
		for i := 1; i < len(thresholds); i++ {
			if Decide(s, thresholds[i]) && !Decide(s, thresholds[i-1]) {
				t.Fatalf("score %v positive at %v but not at %v", s, thresholds[i], thresholds[i-1])
			}
		}
	}
}

func TestDecideAllPreservesOrder(t *testing.T) {
	got := DecideAll([]float64{0.1, 0.6, 0.9}, 0.5)
	if want := []bool{false, true, true}; !reflect.DeepEqual(got, want) {
		t.Fatalf("DecideAll = %v, want %v", got, want)
	}
}

func TestScalerTransform(t *testing.T) {
	s, err := NewScaler([]float64{10, 0}, []float64{2, 4})
	mustNoError(t, err)
	out, err := s.Transform(mat.NewDense(2, 2, []float64{12, 8, 10, -4}))
	mustNoError(t, err)
	if got, want := out.RawMatrix().Data, []float64{1, 2, 0, -1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("transform = %v, want %v", got, want)
	}
}

func TestScalerZeroScaleCentersOnly(t *testing.T) {
	s, err := NewScaler([]float64{5, 1}, []float64{0, 1})
	mustNoError(t, err)
	if got := s.Degenerate(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("degenerate = %v", got)
	}
	out, err := s.Transform(mat.NewDense(1, 2, []float64{7, 3}))
	mustNoError(t, err)
	if got, want := out.RawMatrix().Data, []float64{2, 2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("transform = %v, want %v", got, want)
	}
}

func TestScalerRejectsBadParameters(t *testing.T) {
	cases := map[string][2][]float64{
		"length mismatch": {{1, 2}, {1}},
		"nan mean":        {{math.NaN()}, {1}},
		"negative scale":  {{0}, {-1}},
	}
	for name, p := range cases {
		if _, err := NewScaler(p[0], p[1]); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestScalerShapeMismatchIsArtifactFailure(t *testing.T) {
	s, err := NewScaler([]float64{0, 0}, []float64{1, 1})
	mustNoError(t, err)
	_, err = s.Transform(mat.NewDense(1, 3, nil))
	wantKind(t, err, failure.KindArtifact)
}

func TestFitScalerPopulationStd(t *testing.T) {
	s, err := FitScaler(mat.NewDense(4, 2, []float64{
		1, 3,
		2, 3,
		3, 3,
		4, 3,
	}))
	mustNoError(t, err)
	if got := s.Mean(); !reflect.DeepEqual(got, []float64{2.5, 3}) {
		t.Fatalf("mean = %v", got)
	}
	scale := s.Scale()
	if !near(scale[0], math.Sqrt(1.25)) || scale[1] != 1 {
		t.Fatalf("scale = %v", scale)
	}
	if got := s.Degenerate(); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("degenerate = %v", got)
	}
}

func roundTripScaler(t *testing.T, s *Scaler) (*Scaler, scalerFile) {
	t.Helper()
	var buf bytes.Buffer
	mustNoError(t, WriteScaler(&buf, s))
	var written scalerFile
	mustNoError(t, json.Unmarshal(buf.Bytes(), &written))
	path := filepath.Join(t.TempDir(), "scaler.json")
	mustNoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	loaded, err := readScaler(path)
	mustNoError(t, err)
	return loaded, written
}

func TestWriteScalerRoundTripsThroughLoader(t *testing.T) {
	s, err := NewScaler([]float64{1.5, -2}, []float64{0.5, 3})
	mustNoError(t, err)
	loaded, _ := roundTripScaler(t, s)
	if !reflect.DeepEqual(loaded.Mean(), s.Mean()) || !reflect.DeepEqual(loaded.Scale(), s.Scale()) {
		t.Fatalf("loaded %v/%v, want %v/%v", loaded.Mean(), loaded.Scale(), s.Mean(), s.Scale())
	}
}

func TestWriteScalerKeepsZeroScale(t *testing.T) {
	s, err := FitScaler(mat.NewDense(3, 2, []float64{
		1, 7,
		2, 7,
		3, 7,
	}))
	mustNoError(t, err)
	loaded, written := roundTripScaler(t, s)
	if written.Scale[1] != 0 {
		t.Fatalf("written scale = %v, want zero for the constant column", written.Scale)
	}
	if got := loaded.Degenerate(); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("reloaded degenerate = %v", got)
	}
	if !reflect.DeepEqual(loaded.Scale(), s.Scale()) {
		t.Fatalf("reloaded scale = %v, want %v", loaded.Scale(), s.Scale())
	}
}

func TestLogisticProbabilities(t *testing.T) {
	l, err := NewLogistic([]float64{1, -1}, 0)
	mustNoError(t, err)
	probs, err := l.PredictProba(mat.NewDense(3, 2, []float64{
		0, 0,
		2, 0,
		-800, 800,
	}))
	mustNoError(t, err)
	if !near(probs[0], 0.5) || !near(probs[1], 1/(1+math.Exp(-2))) || probs[2] != 0 {
		t.Fatalf("probs = %v", probs)
	}
	_, err = l.PredictProba(mat.NewDense(1, 3, nil))
	wantKind(t, err, failure.KindArtifact)
}

func stumpTree(feature int, threshold float64, left, right []float64) Tree {
	return Tree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{feature, -2, -2},
		Threshold:     []float64{threshold, -2, -2},
		Value:         [][]float64{{0, 0}, left, right},
	}
}

func TestForestAveragesTrees(t *testing.T) {
	f, err := NewForest(2, []Tree{
		stumpTree(0, 0, []float64{10, 0}, []float64{0, 10}),
		stumpTree(1, 1, []float64{3, 1}, []float64{1, 3}),
	}, []float64{0.25, 0.75})
	mustNoError(t, err)
	probs, err := f.PredictProba(mat.NewDense(3, 2, []float64{
		-1, 0,
		1, 2,
		0, 1,
	}))
	mustNoError(t, err)
	// split values go left
	want := []float64{(0 + 0.25) / 2, (1 + 0.75) / 2, (0 + 0.25) / 2}
	for i := range want {
		if !near(probs[i], want[i]) {
			t.Fatalf("probs = %v, want %v", probs, want)
		}
	}
	if f.NumEstimators() != 2 {
		t.Fatalf("estimators = %d", f.NumEstimators())
	}
}

func TestForestRejectsMalformedTrees(t *testing.T) {
	cyclic := stumpTree(0, 0, []float64{1, 0}, []float64{0, 1})
	cyclic.ChildrenLeft[0] = 0
	if _, err := NewForest(1, []Tree{cyclic}, nil); err == nil {
		t.Fatal("cyclic tree accepted")
	}
	badFeature := stumpTree(3, 0, []float64{1, 0}, []float64{0, 1})
	if _, err := NewForest(2, []Tree{badFeature}, nil); err == nil {
		t.Fatal("out of range feature accepted")
	}
	emptyLeaf := stumpTree(0, 0, []float64{0, 0}, []float64{0, 1})
	if _, err := NewForest(1, []Tree{emptyLeaf}, nil); err == nil {
		t.Fatal("empty leaf accepted")
	}
}

type constClassifier struct {
	n     int
	probs []float64
}

func (c constClassifier) Kind() string     { return "const" }
func (c constClassifier) NumFeatures() int { return c.n }
func (c constClassifier) PredictProba(x *mat.Dense) ([]float64, error) {
	return c.probs, nil
}

func testContract(t *testing.T, names ...string) *normalize.Contract {
	t.Helper()
	c, err := normalize.NewContract(names)
	mustNoError(t, err)
	return c
}

func TestNewContextChecksDimensions(t *testing.T) {
	c := testContract(t, "a", "b")
	s, err := NewScaler([]float64{0, 0}, []float64{1, 1})
	mustNoError(t, err)
	l3, err := NewLogistic([]float64{1, 1, 1}, 0)
	mustNoError(t, err)
	_, err = NewContext(c, s, l3, 0.5, nil)
	wantKind(t, err, failure.KindArtifact)

	l2, err := NewLogistic([]float64{1, 1}, 0)
	mustNoError(t, err)
	_, err = NewContext(c, s, l2, 1.5, nil)
	wantKind(t, err, failure.KindArtifact)

	ctx, err := NewContext(c, s, l2, 0.5, nil)
	mustNoError(t, err)
	if ctx.Threshold() != 0.5 {
		t.Fatalf("threshold = %v", ctx.Threshold())
	}
}

func TestScoreRejectsOutOfRangeProbabilities(t *testing.T) {
	c := testContract(t, "a")
	s, err := NewScaler([]float64{0}, []float64{1})
	mustNoError(t, err)

	for _, probs := range [][]float64{{1.2}, {0.1, 0.2}} {
		ctx, err := NewContext(c, s, constClassifier{n: 1, probs: probs}, 0.5, nil)
		mustNoError(t, err)
		_, err = ctx.Score(mat.NewDense(1, 1, []float64{0}))
		wantKind(t, err, failure.KindArtifact)
	}
}

func TestScoreSingleRowMatchesBatch(t *testing.T) {
	c := testContract(t, "a", "b", "c")
	s, err := NewScaler([]float64{1, 2, 3}, []float64{0.5, 2, 7})
	mustNoError(t, err)
	l, err := NewLogistic([]float64{0.3, -1.7, 0.01}, -0.2)
	mustNoError(t, err)
	ctx, err := NewContext(c, s, l, 0.5, nil)
	mustNoError(t, err)

	data := []float64{
		1.1, 2.2, 3.3,
		100, -4, 0.001,
		0, 0, 0,
	}
	batch, err := ctx.Score(mat.NewDense(3, 3, data))
	mustNoError(t, err)
	for i := 0; i < 3; i++ {
		single, err := ctx.Score(mat.NewDense(1, 3, data[i*3:i*3+3]))
		mustNoError(t, err)
		if single[0] != batch[i] {
			t.Fatalf("row %d: single %v, batch %v", i, single[0], batch[i])
		}
	}
}

func TestInfoSortsImportances(t *testing.T) {
	c := testContract(t, "a", "b")
	s, err := NewScaler([]float64{0, 0}, []float64{1, 0})
	mustNoError(t, err)
	f, err := NewForest(2, []Tree{stumpTree(0, 0, []float64{1, 0}, []float64{0, 1})}, []float64{0.2, 0.8})
	mustNoError(t, err)
	ctx, err := NewContext(c, s, f, 0.4, map[string]string{"Accuracy": "0.99"})
	mustNoError(t, err)

	info := ctx.Info()
	if info.ModelType != "forest" || info.NumEstimators != 1 {
		t.Fatalf("info = %+v", info)
	}
	if len(info.FeatureImportances) != 2 || info.FeatureImportances[0].Feature != "b" {
		t.Fatalf("importances = %+v", info.FeatureImportances)
	}
	if !reflect.DeepEqual(info.DegenerateFeatures, []string{"b"}) {
		t.Fatalf("degenerate = %v", info.DegenerateFeatures)
	}
	if info.Info["Accuracy"] != "0.99" {
		t.Fatalf("info map = %v", info.Info)
	}
}

func writeArtifacts(t *testing.T, model string) ArtifactPaths {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"final_model.json":      model,
		"scaler.json":           `{"mean": [80, 1000], "scale": [20, 500]}`,
		"optimal_threshold.txt": "0.5\n",
		"selected_features.csv": "destination_port\nflow_duration\n",
		"model_info.txt":        "Model: RandomForest\nF1 Score: 0.97\nnot a pair\n",
	}
	for name, body := range files {
		mustNoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return ArtifactPaths{
		Model:     filepath.Join(dir, "final_model.json"),
		Scaler:    filepath.Join(dir, "scaler.json"),
		Threshold: filepath.Join(dir, "optimal_threshold.txt"),
		Features:  filepath.Join(dir, "selected_features.csv"),
		Info:      filepath.Join(dir, "model_info.txt"),
	}
}

const logisticModel = `{"type": "logistic", "coef": [1.0, 0.5], "intercept": 0}`

func TestLoadArtifactsLogistic(t *testing.T) {
	ctx, err := LoadArtifacts(writeArtifacts(t, logisticModel))
	mustNoError(t, err)
	if got := ctx.Contract().Names(); !reflect.DeepEqual(got, []string{"destination_port", "flow_duration"}) {
		t.Fatalf("features = %v", got)
	}
	if ctx.Threshold() != 0.5 {
		t.Fatalf("threshold = %v", ctx.Threshold())
	}
	info := ctx.Info()
	if info.ModelType != "logistic" || info.Info["F1 Score"] != "0.97" || len(info.Info) != 2 {
		t.Fatalf("info = %+v", info)
	}

	probs, err := ctx.Score(mat.NewDense(1, 2, []float64{80, 1000}))
	mustNoError(t, err)
	if !near(probs[0], 0.5) {
		t.Fatalf("score at the mean = %v", probs[0])
	}
}

func TestLoadArtifactsMissingInfoIsFine(t *testing.T) {
	paths := writeArtifacts(t, logisticModel)
	paths.Info = filepath.Join(filepath.Dir(paths.Info), "absent.txt")
	if _, err := LoadArtifacts(paths); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadArtifactsFailures(t *testing.T) {
	write := func(t *testing.T, path, body string) {
		t.Helper()
		mustNoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	cases := map[string]func(t *testing.T, p *ArtifactPaths){
		"missing model":  func(t *testing.T, p *ArtifactPaths) { p.Model = p.Model + ".gone" },
		"bad threshold":  func(t *testing.T, p *ArtifactPaths) { write(t, p.Threshold, "1.7") },
		"empty features": func(t *testing.T, p *ArtifactPaths) { write(t, p.Features, "\n\n") },
		"scaler length":  func(t *testing.T, p *ArtifactPaths) { write(t, p.Scaler, `{"mean":[1],"scale":[1]}`) },
		"model type":     func(t *testing.T, p *ArtifactPaths) { write(t, p.Model, `{"type":"svm"}`) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			paths := writeArtifacts(t, logisticModel)
			mutate(t, &paths)
			_, err := LoadArtifacts(paths)
			wantKind(t, err, failure.KindArtifact)
		})
	}
}

func TestReadFeatureListTakesFirstColumn(t *testing.T) {
	names, err := ReadFeatureList(strings.NewReader(" Destination Port,0.4\nFlow Duration\n\n"))
	mustNoError(t, err)
	if want := []string{"Destination Port", "Flow Duration"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
}
