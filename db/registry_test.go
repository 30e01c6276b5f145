package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mlserve/ml"
)

func setupDB(t *testing.T) {
	t.Helper()
	require.NoError(t, InitDB(filepath.Join(t.TempDir(), "models.db")))
	t.Cleanup(func() { CloseDB() })
}

func record(version string, accuracy float64, trainedAt time.Time) ModelRecord {
	return ModelRecord{
		Version:   version,
		Path:      "testdata/" + version + ".json",
		ModelType: ml.ModelTypeGaussianNB,
		Accuracy:  accuracy,
		TrainedAt: trainedAt,
	}
}

func TestRegisterAndBestModel(t *testing.T) {
	setupDB(t)

	now := time.Now().UTC()
	require.NoError(t, RegisterModel(record("v1", 0.91, now.Add(-2*time.Hour))))
	require.NoError(t, RegisterModel(record("v2", 0.97, now.Add(-time.Hour))))
	require.NoError(t, RegisterModel(record("v3", 0.89, now)))

	best, err := BestModel()
	require.NoError(t, err)
	require.Equal(t, "v2", best.Version)
}

func TestBestModelTieBreaksOnRecency(t *testing.T) {
	setupDB(t)

	now := time.Now().UTC()
	require.NoError(t, RegisterModel(record("old", 0.95, now.Add(-time.Hour))))
	require.NoError(t, RegisterModel(record("new", 0.95, now)))

	best, err := BestModel()
	require.NoError(t, err)
	require.Equal(t, "new", best.Version)
}

func TestBestModelEmptyRegistry(t *testing.T) {
	setupDB(t)

	_, err := BestModel()
	require.ErrorIs(t, err, ErrNoModels)
}

func TestRegisterReplacesVersion(t *testing.T) {
	setupDB(t)

	require.NoError(t, RegisterModel(record("v1", 0.80, time.Now().UTC())))
	require.NoError(t, RegisterModel(record("v1", 0.85, time.Now().UTC())))

	records, err := ListModels()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 0.85, records[0].Accuracy)
}

func TestRegisterRejectsIncompleteRecord(t *testing.T) {
	setupDB(t)

	require.Error(t, RegisterModel(ModelRecord{Version: "", Path: "x"}))
	require.Error(t, RegisterModel(ModelRecord{Version: "v", Path: ""}))
}

func TestGetModel(t *testing.T) {
	setupDB(t)

	require.NoError(t, RegisterModel(record("v1", 0.9, time.Now().UTC())))

	rec, err := GetModel("v1")
	require.NoError(t, err)
	require.Equal(t, "v1", rec.Version)

	_, err = GetModel("missing")
	require.ErrorIs(t, err, ErrNoModels)
}

func TestRegistrySourceFetch(t *testing.T) {
	setupDB(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	writeTestArtifact(t, path, "v1", 0.9)
	require.NoError(t, RegisterModel(ModelRecord{
		Version:   "v1",
		Path:      path,
		ModelType: ml.ModelTypeGaussianNB,
		Accuracy:  0.9,
		TrainedAt: time.Now().UTC(),
	}))

	src, err := NewRegistrySource(2)
	require.NoError(t, err)

	model, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v1", model.Version())

	// Second fetch hits the artifact cache but still yields a fresh
	// load time.
	again, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v1", again.Version())
	require.NotSame(t, model, again)
}

func TestRegistrySourceEmptyRegistry(t *testing.T) {
	setupDB(t)

	src, err := NewRegistrySource(2)
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	var le *ml.LoadError
	require.ErrorAs(t, err, &le)
}

func TestRegistrySourceTypeMismatch(t *testing.T) {
	setupDB(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	writeTestArtifact(t, path, "v1", 0.9)
	require.NoError(t, RegisterModel(ModelRecord{
		Version:   "v1",
		Path:      path,
		ModelType: "random_forest",
		Accuracy:  0.9,
		TrainedAt: time.Now().UTC(),
	}))

	src, err := NewRegistrySource(2)
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	var le *ml.LoadError
	require.ErrorAs(t, err, &le)
}

func writeTestArtifact(t *testing.T, path, version string, accuracy float64) {
	t.Helper()
	artifact := &ml.Artifact{
		Version:      version,
		ModelType:    ml.ModelTypeGaussianNB,
		FeatureNames: []string{"x", "y"},
		ClassNames:   []string{"a", "b"},
		Priors:       []float64{0.5, 0.5},
		Means:        [][]float64{{0, 0}, {1, 1}},
		Variances:    [][]float64{{1, 1}, {1, 1}},
		Accuracy:     accuracy,
		TrainedAt:    time.Now().UTC(),
	}
	require.NoError(t, ml.WriteArtifact(path, artifact))
}
