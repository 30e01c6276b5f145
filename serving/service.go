package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mlserve/monitoring"
)

// probScale rounds response probabilities to 6 decimal places. The
// residual is folded back into the winning class so the distribution
// still sums to 1.
const probScale = 1e6

// PredictionRequest is the validated prediction input.
type PredictionRequest struct {
	Features []float64
}

// PredictionResponse is the envelope returned for one prediction.
type PredictionResponse struct {
	ClassID       int                `json:"class_id"`
	ClassName     string             `json:"class_name"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	ModelVersion  string             `json:"model_version"`
	Timestamp     time.Time          `json:"timestamp"`
}

// Service drives the prediction path: parse and validate against the
// active model's schema, classify, build the envelope, record metrics.
// Request/error/latency metrics are recorded exactly once per call.
type Service struct {
	store   *Store
	metrics *monitoring.Registry
	log     *zap.Logger
}

func NewService(store *Store, metrics *monitoring.Registry, log *zap.Logger) *Service {
	return &Service{store: store, metrics: metrics, log: log}
}

// Predict handles one raw request body end to end.
func (s *Service) Predict(ctx context.Context, body []byte) (*PredictionResponse, error) {
	start := time.Now()
	resp, err := s.predict(ctx, body)
	s.metrics.ObserveRequest(time.Since(start))
	if err != nil {
		s.metrics.ObserveError(ErrorKind(err))
		return nil, err
	}
	s.metrics.ObservePrediction(resp.ClassName)
	return resp, nil
}

func (s *Service) predict(ctx context.Context, body []byte) (*PredictionResponse, error) {
	model, err := s.store.Current()
	if err != nil {
		return nil, err
	}

	req, err := parseRequest(body, model.NumFeatures())
	if err != nil {
		return nil, err
	}

	probs, err := model.PredictProba(req.Features)
	if err != nil {
		s.log.Error("classifier invocation failed",
			zap.String("model_version", model.Version()),
			zap.Error(err))
		return nil, &InternalError{Err: err}
	}
	if len(probs) != model.NumClasses() {
		s.log.Error("classifier returned wrong distribution size",
			zap.String("model_version", model.Version()),
			zap.Int("got", len(probs)),
			zap.Int("want", model.NumClasses()))
		return nil, &InternalError{Err: fmt.Errorf("classifier returned %d probabilities, want %d", len(probs), model.NumClasses())}
	}

	rounded := roundDistribution(probs)
	classID := argmax(rounded)
	probabilities := make(map[string]float64, len(rounded))
	for i, name := range model.ClassNames() {
		probabilities[name] = rounded[i]
	}

	return &PredictionResponse{
		ClassID:       classID,
		ClassName:     model.ClassName(classID),
		Confidence:    rounded[classID],
		Probabilities: probabilities,
		ModelVersion:  model.Version(),
		Timestamp:     time.Now().UTC(),
	}, nil
}

// parseRequest turns the raw body into a typed request or a
// ValidationError. Malformed JSON is a client error here, never an
// internal one.
func parseRequest(body []byte, wantFeatures int) (*PredictionRequest, error) {
	var raw struct {
		Features []json.Number `json:"features"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, validationErrorf("invalid request body: %v", err)
	}
	if raw.Features == nil {
		return nil, validationErrorf("missing 'features' field")
	}
	if len(raw.Features) != wantFeatures {
		return nil, validationErrorf("expected %d features, got %d", wantFeatures, len(raw.Features))
	}

	features := make([]float64, len(raw.Features))
	for i, n := range raw.Features {
		v, err := strconv.ParseFloat(n.String(), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, validationErrorf("feature %d is not a finite number", i)
		}
		features[i] = v
	}
	return &PredictionRequest{Features: features}, nil
}

// argmax returns the index of the largest value; the lowest index wins
// ties.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// roundDistribution rounds every probability, then assigns the rounding
// residual to the winning class. The returned vector sums to 1 and its
// argmax is recomputed by the caller on the final values.
func roundDistribution(probs []float64) []float64 {
	rounded := make([]float64, len(probs))
	sum := 0.0
	for i, p := range probs {
		rounded[i] = math.Round(p*probScale) / probScale
		sum += rounded[i]
	}
	rounded[argmax(rounded)] += 1 - sum
	return rounded
}

// ErrorKind labels a prediction failure for the error counter and the
// HTTP boundary.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case isValidation(err):
		return "validation"
	case isNotLoaded(err):
		return "model_not_loaded"
	case isReloadInProgress(err):
		return "reload_in_progress"
	case isLoadError(err):
		return "model_load"
	default:
		return "internal"
	}
}
