package ml

import (
	"errors"
	"fmt"
	"math"
)

// minVariance guards against zero-variance features producing infinite
// log-likelihoods on degenerate training splits.
const minVariance = 1e-9

// GaussianNB is a Gaussian naive Bayes classifier: per-class priors plus
// per-class, per-feature means and variances.
type GaussianNB struct {
	Priors    []float64   `json:"priors"`
	Means     [][]float64 `json:"means"`
	Variances [][]float64 `json:"variances"`
}

// Fit estimates priors, means and variances from labeled samples.
// Labels must be in [0, numClasses) and every class must be represented.
func (g *GaussianNB) Fit(features [][]float64, labels []int, numClasses int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if numClasses < 2 {
		return errors.New("need at least two classes")
	}
	numFeatures := len(features[0])
	if numFeatures == 0 {
		return errors.New("empty feature vector")
	}

	counts := make([]int, numClasses)
	sums := newMatrix(numClasses, numFeatures)
	for i, row := range features {
		if len(row) != numFeatures {
			return fmt.Errorf("sample %d has %d features, want %d", i, len(row), numFeatures)
		}
		label := labels[i]
		if label < 0 || label >= numClasses {
			return fmt.Errorf("sample %d has label %d out of range", i, label)
		}
		counts[label]++
		for j, v := range row {
			sums[label][j] += v
		}
	}
	for k, c := range counts {
		if c == 0 {
			return fmt.Errorf("class %d has no training samples", k)
		}
	}

	means := newMatrix(numClasses, numFeatures)
	for k := 0; k < numClasses; k++ {
		for j := 0; j < numFeatures; j++ {
			means[k][j] = sums[k][j] / float64(counts[k])
		}
	}

	variances := newMatrix(numClasses, numFeatures)
	for i, row := range features {
		label := labels[i]
		for j, v := range row {
			d := v - means[label][j]
			variances[label][j] += d * d
		}
	}
	for k := 0; k < numClasses; k++ {
		for j := 0; j < numFeatures; j++ {
			variances[k][j] /= float64(counts[k])
			if variances[k][j] < minVariance {
				variances[k][j] = minVariance
			}
		}
	}

	priors := make([]float64, numClasses)
	for k, c := range counts {
		priors[k] = float64(c) / float64(len(labels))
	}

	g.Priors = priors
	g.Means = means
	g.Variances = variances
	return nil
}

// PredictProba returns the posterior distribution over classes, summing
// to 1. Log-likelihoods are shifted by their max before exponentiation to
// stay in float range.
func (g *GaussianNB) PredictProba(features []float64) ([]float64, error) {
	if len(g.Priors) == 0 {
		return nil, errors.New("model not fitted")
	}
	numFeatures := len(g.Means[0])
	if len(features) != numFeatures {
		return nil, fmt.Errorf("got %d features, want %d", len(features), numFeatures)
	}

	logp := make([]float64, len(g.Priors))
	for k := range g.Priors {
		lp := math.Log(g.Priors[k])
		for j, x := range features {
			v := g.Variances[k][j]
			d := x - g.Means[k][j]
			lp += -0.5*math.Log(2*math.Pi*v) - d*d/(2*v)
		}
		logp[k] = lp
	}

	maxLog := logp[0]
	for _, lp := range logp[1:] {
		if lp > maxLog {
			maxLog = lp
		}
	}
	probs := make([]float64, len(logp))
	var sum float64
	for k, lp := range logp {
		probs[k] = math.Exp(lp - maxLog)
		sum += probs[k]
	}
	for k := range probs {
		probs[k] /= sum
	}
	return probs, nil
}

func (g *GaussianNB) validate(numFeatures, numClasses int) error {
	if len(g.Priors) != numClasses || len(g.Means) != numClasses || len(g.Variances) != numClasses {
		return errors.New("parameter shape does not match class count")
	}
	var priorSum float64
	for k := 0; k < numClasses; k++ {
		if len(g.Means[k]) != numFeatures || len(g.Variances[k]) != numFeatures {
			return errors.New("parameter shape does not match feature count")
		}
		for j := 0; j < numFeatures; j++ {
			if g.Variances[k][j] <= 0 {
				return fmt.Errorf("class %d feature %d has non-positive variance", k, j)
			}
		}
		if g.Priors[k] <= 0 {
			return fmt.Errorf("class %d has non-positive prior", k)
		}
		priorSum += g.Priors[k]
	}
	if math.Abs(priorSum-1) > 1e-6 {
		return fmt.Errorf("priors sum to %v, want 1", priorSum)
	}
	return nil
}

func newMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
