package inference

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"idsguard/internal/failure"
	"idsguard/internal/normalize"
)

// ArtifactPaths locates the files exported by the training pipeline.
// Info is optional.
type ArtifactPaths struct {
	Model     string
	Scaler    string
	Threshold string
	Features  string
	Info      string
}

type scalerFile struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

type modelFile struct {
	Type               string    `json:"type"`
	NFeatures          int       `json:"n_features"`
	Coef               []float64 `json:"coef"`
	Intercept          float64   `json:"intercept"`
	Trees              []Tree    `json:"trees"`
	FeatureImportances []float64 `json:"feature_importances"`
}

// LoadArtifacts reads every artifact and builds the inference context. Any
// failure is reported as an artifact failure.
func LoadArtifacts(paths ArtifactPaths) (*Context, error) {
	const op = "load artifacts"
	names, err := readFeatures(paths.Features)
	if err != nil {
		return nil, &failure.Error{Kind: failure.KindArtifact, Op: op, Detail: "features", Err: err}
	}
	contract, err := normalize.NewContract(names)
	if err != nil {
		return nil, &failure.Error{Kind: failure.KindArtifact, Op: op, Detail: "features", Err: err}
	}
	scaler, err := readScaler(paths.Scaler)
	if err != nil {
		return nil, &failure.Error{Kind: failure.KindArtifact, Op: op, Detail: "scaler", Err: err}
	}
	classifier, err := readModel(paths.Model)
	if err != nil {
		return nil, &failure.Error{Kind: failure.KindArtifact, Op: op, Detail: "model", Err: err}
	}
	threshold, err := readThreshold(paths.Threshold)
	if err != nil {
		return nil, &failure.Error{Kind: failure.KindArtifact, Op: op, Detail: "threshold", Err: err}
	}
	var info map[string]string
	if paths.Info != "" {
		info, err = readInfo(paths.Info)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, &failure.Error{Kind: failure.KindArtifact, Op: op, Detail: "info", Err: err}
		}
	}
	return NewContext(contract, scaler, classifier, threshold, info)
}

// ReadFeatureList parses a header-less feature list: the first column of
// every non-blank line.
func ReadFeatureList(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var names []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		name := strings.TrimSpace(rec[0])
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, errors.New("feature list is empty")
	}
	return names, nil
}

func readFeatures(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFeatureList(f)
}

func readScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf scalerFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewScaler(sf.Mean, sf.Scale)
}

// WriteScaler stores s in the format readScaler expects. Degenerate features
// are written with their fitted scale of zero.
func WriteScaler(w io.Writer, s *Scaler) error {
	scale := s.Scale()
	for _, i := range s.degenerate {
		scale[i] = 0
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(scalerFile{Mean: s.mean, Scale: scale})
}

func readModel(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeModel(data)
}

func DecodeModel(data []byte) (Classifier, error) {
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	switch strings.ToLower(mf.Type) {
	case "logistic":
		if mf.NFeatures != 0 && mf.NFeatures != len(mf.Coef) {
			return nil, fmt.Errorf("model declares %d features but has %d coefficients", mf.NFeatures, len(mf.Coef))
		}
		return NewLogistic(mf.Coef, mf.Intercept)
	case "forest", "random_forest":
		return NewForest(mf.NFeatures, mf.Trees, mf.FeatureImportances)
	default:
		return nil, fmt.Errorf("unsupported model type %q", mf.Type)
	}
}

func readThreshold(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse threshold: %w", err)
	}
	if err := validateThreshold(t); err != nil {
		return 0, err
	}
	return t, nil
}

func readInfo(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		info[key] = strings.TrimSpace(value)
	}
	return info, sc.Err()
}
