package ml

import (
	"math"
	"testing"
)

func TestGaussianNBFitPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.15, 0.25},
		{0.9, 0.8},
		{0.8, 0.9},
		{0.85, 0.95},
	}
	labels := []int{0, 0, 0, 1, 1, 1}

	nb := &GaussianNB{}
	if err := nb.Fit(features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	probs, err := nb.PredictProba([]float64{0.12, 0.18})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(probs) != 2 {
		t.Fatalf("expected 2 probabilities, got %d", len(probs))
	}
	if probs[0] <= probs[1] {
		t.Fatalf("expected class 0 to dominate, got %v", probs)
	}

	sum := probs[0] + probs[1]
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v, want 1", sum)
	}
}

func TestGaussianNBFitErrors(t *testing.T) {
	nb := &GaussianNB{}

	if err := nb.Fit(nil, nil, 2); err == nil {
		t.Fatal("expected error for empty data")
	}
	if err := nb.Fit([][]float64{{1}}, []int{0, 1}, 2); err == nil {
		t.Fatal("expected error for size mismatch")
	}
	if err := nb.Fit([][]float64{{1}, {2}}, []int{0, 0}, 2); err == nil {
		t.Fatal("expected error for an unrepresented class")
	}
	if err := nb.Fit([][]float64{{1}, {2}}, []int{0, 1}, 1); err == nil {
		t.Fatal("expected error for a single class")
	}
}

func TestGaussianNBPredictBeforeFit(t *testing.T) {
	nb := &GaussianNB{}
	if _, err := nb.PredictProba([]float64{1}); err == nil {
		t.Fatal("expected error for unfitted model")
	}
}

func TestGaussianNBWrongFeatureCount(t *testing.T) {
	nb := &GaussianNB{}
	if err := nb.Fit([][]float64{{1, 2}, {3, 4}}, []int{0, 1}, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := nb.PredictProba([]float64{1}); err == nil {
		t.Fatal("expected error for wrong feature count")
	}
}

func TestGaussianNBZeroVarianceFeature(t *testing.T) {
	// Identical samples within a class must not blow up the likelihood.
	features := [][]float64{{1, 5}, {1, 5}, {2, 6}, {2, 6}}
	labels := []int{0, 0, 1, 1}

	nb := &GaussianNB{}
	if err := nb.Fit(features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probs, err := nb.PredictProba([]float64{1, 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.IsNaN(probs[0]) || math.IsInf(probs[0], 0) {
		t.Fatalf("degenerate probability: %v", probs)
	}
	if probs[0] <= probs[1] {
		t.Fatalf("expected class 0 to dominate, got %v", probs)
	}
}
