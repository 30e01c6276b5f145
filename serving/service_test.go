package serving

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mlserve/ml"
	"mlserve/monitoring"
)

func newTestService(t *testing.T, model *ml.Model) (*Service, *monitoring.Registry) {
	t.Helper()
	src := &funcSource{}
	src.set(func(ctx context.Context) (*ml.Model, error) { return model, nil })

	metrics := monitoring.NewRegistry()
	store := NewStore(src, NewLifecycle(), metrics, zap.NewNop())
	if model != nil {
		require.NoError(t, store.Initialize(context.Background()))
	}
	return NewService(store, metrics, zap.NewNop()), metrics
}

func TestPredictSuccess(t *testing.T) {
	svc, metrics := newTestService(t, makeModel(t, "v1"))

	resp, err := svc.Predict(context.Background(), []byte(`{"features": [4.1, 3.9]}`))
	require.NoError(t, err)
	require.Equal(t, 1, resp.ClassID)
	require.Equal(t, "high", resp.ClassName)
	require.Equal(t, "v1", resp.ModelVersion)
	require.False(t, resp.Timestamp.IsZero())

	require.Len(t, resp.Probabilities, 2)
	require.Equal(t, resp.Confidence, resp.Probabilities["high"])

	var sum float64
	for _, p := range resp.Probabilities {
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-6)

	snap, err := metrics.Snapshot()
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.TotalRequests)
	require.Equal(t, uint64(0), snap.TotalErrors)
	require.Equal(t, uint64(1), snap.PredictionsPerClass["high"])
	require.Equal(t, uint64(1), snap.Latency.Count)
}

func TestPredictConfidenceIsMaxProbability(t *testing.T) {
	svc, _ := newTestService(t, makeModel(t, "v1"))

	resp, err := svc.Predict(context.Background(), []byte(`{"features": [0.1, 0.3]}`))
	require.NoError(t, err)

	max := 0.0
	for _, p := range resp.Probabilities {
		if p > max {
			max = p
		}
	}
	require.Equal(t, max, resp.Confidence)
	require.Equal(t, resp.Probabilities[resp.ClassName], resp.Confidence)
}

func TestPredictValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing features", `{"inputs": [1, 2]}`},
		{"wrong length", `{"features": [1]}`},
		{"too many features", `{"features": [1, 2, 3]}`},
		{"non numeric element", `{"features": [1, "two"]}`},
		{"null features", `{"features": null}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, metrics := newTestService(t, makeModel(t, "v1"))

			_, err := svc.Predict(context.Background(), []byte(tc.body))
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve, "must stay a validation error, never an internal one")

			snap, err := metrics.Snapshot()
			require.NoError(t, err)
			require.Equal(t, uint64(1), snap.TotalRequests)
			require.Equal(t, uint64(1), snap.TotalErrors)
			require.Empty(t, snap.PredictionsPerClass)
		})
	}
}

func TestPredictModelNotLoaded(t *testing.T) {
	svc, metrics := newTestService(t, nil)

	_, err := svc.Predict(context.Background(), []byte(`{"features": [1, 2]}`))
	require.ErrorIs(t, err, ErrModelNotLoaded)

	snap, err := metrics.Snapshot()
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.TotalRequests)
	require.Equal(t, uint64(1), snap.TotalErrors)
}

func TestPredictNonFiniteFeature(t *testing.T) {
	svc, _ := newTestService(t, makeModel(t, "v1"))

	// 1e999 overflows float64 to +Inf.
	_, err := svc.Predict(context.Background(), []byte(`{"features": [1, 1e999]}`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestArgmaxTieBreaksToLowestIndex(t *testing.T) {
	// Two classes with identical parameters produce an exact 0.5/0.5 tie.
	artifact := &ml.Artifact{
		Version:      "tie",
		ModelType:    ml.ModelTypeGaussianNB,
		FeatureNames: []string{"x"},
		ClassNames:   []string{"first", "second"},
		Priors:       []float64{0.5, 0.5},
		Means:        [][]float64{{0}, {0}},
		Variances:    [][]float64{{1}, {1}},
	}
	model, err := artifact.Build("tie", time.Now().UTC())
	require.NoError(t, err)

	svc, _ := newTestService(t, model)
	resp, err := svc.Predict(context.Background(), []byte(`{"features": [3.7]}`))
	require.NoError(t, err)
	require.Equal(t, 0, resp.ClassID)
	require.Equal(t, "first", resp.ClassName)
}

func TestMetricsCountExactlyOncePerCall(t *testing.T) {
	svc, metrics := newTestService(t, makeModel(t, "v1"))

	const n = 7
	for i := 0; i < n; i++ {
		_, err := svc.Predict(context.Background(), []byte(`{"features": [0, 0]}`))
		require.NoError(t, err)
	}

	snap, err := metrics.Snapshot()
	require.NoError(t, err)
	require.Equal(t, uint64(n), snap.TotalRequests)
	require.Equal(t, uint64(0), snap.TotalErrors)
	require.Equal(t, uint64(n), snap.PredictionsPerClass["low"])
	require.Equal(t, uint64(n), snap.Latency.Count)
}

func TestRoundDistributionSumsToOne(t *testing.T) {
	cases := [][]float64{
		{1.0 / 3, 1.0 / 3, 1.0 / 3},
		{0.1234567, 0.7654321, 0.1111112},
		{0.5, 0.5},
		{0.999999, 0.000001},
	}
	for i, probs := range cases {
		rounded := roundDistribution(probs)
		var sum float64
		for _, p := range rounded {
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("case %d: rounded distribution sums to %v", i, sum)
		}
	}
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"validation":         &ValidationError{Message: "bad"},
		"model_not_loaded":   ErrModelNotLoaded,
		"reload_in_progress": ErrReloadInProgress,
		"model_load":         &ml.LoadError{Source: "x", Err: fmt.Errorf("boom")},
		"internal":           &InternalError{Err: fmt.Errorf("boom")},
	}
	for want, err := range cases {
		require.Equal(t, want, ErrorKind(err))
	}
}
