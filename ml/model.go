package ml

import (
	"context"
	"time"
)

// Classifier produces a probability distribution over classes for one
// feature vector. Implementations must be safe for concurrent use and
// must not retain the input slice.
type Classifier interface {
	PredictProba(features []float64) ([]float64, error)
}

// Model is an immutable, fully-loaded model version. Once published it is
// never mutated; replacing a model is always a whole-object swap.
type Model struct {
	version      string
	modelType    string
	featureNames []string
	classNames   []string
	accuracy     float64
	loadedAt     time.Time
	classifier   Classifier
}

func (m *Model) Version() string     { return m.version }
func (m *Model) ModelType() string   { return m.modelType }
func (m *Model) Accuracy() float64   { return m.accuracy }
func (m *Model) LoadedAt() time.Time { return m.loadedAt }
func (m *Model) NumFeatures() int    { return len(m.featureNames) }
func (m *Model) NumClasses() int     { return len(m.classNames) }

// FeatureNames returns a copy so callers cannot mutate the schema.
func (m *Model) FeatureNames() []string {
	out := make([]string, len(m.featureNames))
	copy(out, m.featureNames)
	return out
}

func (m *Model) ClassNames() []string {
	out := make([]string, len(m.classNames))
	copy(out, m.classNames)
	return out
}

// ClassName returns the name for a class index, or "" when out of range.
func (m *Model) ClassName(i int) string {
	if i < 0 || i >= len(m.classNames) {
		return ""
	}
	return m.classNames[i]
}

func (m *Model) PredictProba(features []float64) ([]float64, error) {
	return m.classifier.PredictProba(features)
}

// Source fetches the current best model from wherever artifacts live
// (a fixed file path, the local registry, ...). Fetch failures surface
// as *LoadError.
type Source interface {
	Fetch(ctx context.Context) (*Model, error)
}
