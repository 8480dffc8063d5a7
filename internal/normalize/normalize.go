package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"idsguard/internal/failure"
)

// NormalizeBatch selects the contract features of every row, in contract
// order, into a rows x features matrix. The contract is checked once against
// the batch column set (features present in every row); any missing feature
// or non-numeric value fails the whole batch.
func NormalizeBatch(c *Contract, rows []Record) (*mat.Dense, error) {
	const op = "normalize batch"
	if len(rows) == 0 {
		return nil, failure.New(failure.KindContract, op, "no records")
	}
	if missing := c.Validate(columnSet(rows)); len(missing) > 0 {
		return nil, &failure.Error{Kind: failure.KindContract, Op: op, Err: &MissingFeaturesError{Missing: missing}}
	}
	cols := c.Len()
	data := make([]float64, len(rows)*cols)
	for i, row := range rows {
		if err := fillRow(c, row, data[i*cols:(i+1)*cols]); err != nil {
			return nil, &failure.Error{Kind: failure.KindCoercion, Op: op, Detail: fmt.Sprintf("row %d", i), Err: err}
		}
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// NormalizeSingle is the single-record form of NormalizeBatch.
func NormalizeSingle(c *Contract, rec Record) ([]float64, error) {
	const op = "normalize record"
	if missing := c.Validate(rec.keySet()); len(missing) > 0 {
		return nil, &failure.Error{Kind: failure.KindContract, Op: op, Err: &MissingFeaturesError{Missing: missing}}
	}
	vec := make([]float64, c.Len())
	if err := fillRow(c, rec, vec); err != nil {
		return nil, &failure.Error{Kind: failure.KindCoercion, Op: op, Err: err}
	}
	return vec, nil
}

func fillRow(c *Contract, rec Record, dst []float64) error {
	for j, name := range c.names {
		raw, _ := rec.Get(name)
		v, err := ParseFeature(raw)
		if err != nil {
			return fmt.Errorf("feature %q: %w", name, err)
		}
		dst[j] = v
	}
	return nil
}

// ParseFeature converts a raw cell to a finite float64.
func ParseFeature(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not numeric: %q", raw)
	}
	if !isFinite(v) {
		return 0, fmt.Errorf("not finite: %q", raw)
	}
	return v, nil
}

func columnSet(rows []Record) map[string]struct{} {
	cols := rows[0].keySet()
	for _, row := range rows[1:] {
		for k := range cols {
			if _, ok := row.index[k]; !ok {
				delete(cols, k)
			}
		}
	}
	return cols
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
