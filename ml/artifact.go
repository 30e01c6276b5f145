package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const ModelTypeGaussianNB = "gaussian_nb"

// LoadError reports a failed artifact fetch or parse. It never reflects
// the state of the active model.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Artifact is the on-disk model document produced by the trainer: the
// fitted classifier parameters plus the feature/class schema.
type Artifact struct {
	Version      string      `json:"version"`
	ModelType    string      `json:"model_type"`
	FeatureNames []string    `json:"feature_names"`
	ClassNames   []string    `json:"class_names"`
	Priors       []float64   `json:"priors"`
	Means        [][]float64 `json:"means"`
	Variances    [][]float64 `json:"variances"`
	Accuracy     float64     `json:"accuracy"`
	TrainedAt    time.Time   `json:"trained_at"`
}

func ReadArtifact(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	var a Artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	if err := a.Validate(); err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	return &a, nil
}

func WriteArtifact(path string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Validate checks the schema and parameter shapes before the artifact is
// allowed anywhere near the active slot.
func (a *Artifact) Validate() error {
	if len(a.FeatureNames) < 1 {
		return errors.New("artifact has no feature names")
	}
	if len(a.ClassNames) < 2 {
		return errors.New("artifact needs at least two class names")
	}
	if a.ModelType != ModelTypeGaussianNB {
		return fmt.Errorf("unsupported model type %q", a.ModelType)
	}
	nb := &GaussianNB{Priors: a.Priors, Means: a.Means, Variances: a.Variances}
	return nb.validate(len(a.FeatureNames), len(a.ClassNames))
}

// Build constructs the immutable Model for this artifact. The artifact's
// slices are copied so later mutation of the Artifact cannot reach a
// published Model.
func (a *Artifact) Build(version string, loadedAt time.Time) (*Model, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if version == "" {
		version = a.Version
	}
	nb := &GaussianNB{
		Priors:    append([]float64(nil), a.Priors...),
		Means:     copyMatrix(a.Means),
		Variances: copyMatrix(a.Variances),
	}
	return &Model{
		version:      version,
		modelType:    a.ModelType,
		featureNames: append([]string(nil), a.FeatureNames...),
		classNames:   append([]string(nil), a.ClassNames...),
		accuracy:     a.Accuracy,
		loadedAt:     loadedAt,
		classifier:   nb,
	}, nil
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
