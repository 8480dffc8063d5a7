package inference

import "fmt"

// Decide reports whether score crosses threshold. The boundary is inclusive.
func Decide(score, threshold float64) bool {
	return score >= threshold
}

// DecideAll applies Decide element-wise; out[i] belongs to scores[i].
func DecideAll(scores []float64, threshold float64) []bool {
	out := make([]bool, len(scores))
	for i, s := range scores {
		out[i] = Decide(s, threshold)
	}
	return out
}

func validateThreshold(t float64) error {
	if !finite(t) || t < 0 || t > 1 {
		return fmt.Errorf("threshold %v outside [0,1]", t)
	}
	return nil
}
