package serving

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mlserve/ml"
)

func writeVersionedArtifact(t *testing.T, path, version string) {
	t.Helper()
	artifact := &ml.Artifact{
		Version:      version,
		ModelType:    ml.ModelTypeGaussianNB,
		FeatureNames: []string{"x"},
		ClassNames:   []string{"a", "b"},
		Priors:       []float64{0.5, 0.5},
		Means:        [][]float64{{0}, {1}},
		Variances:    [][]float64{{1}, {1}},
		TrainedAt:    time.Now().UTC(),
	}
	require.NoError(t, ml.WriteArtifact(path, artifact))
}

func TestWatcherReloadsOnArtifactChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	writeVersionedArtifact(t, path, "v1")

	store, _ := newTestStore(t, ml.NewFileSource(path))
	require.NoError(t, store.Initialize(context.Background()))

	watcher, err := WatchArtifact(path, store, zap.NewNop())
	require.NoError(t, err)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	// Give the watcher a moment to start receiving events.
	time.Sleep(100 * time.Millisecond)
	writeVersionedArtifact(t, path, "v2")

	require.Eventually(t, func() bool {
		model, err := store.Current()
		return err == nil && model.Version() == "v2"
	}, 5*time.Second, 50*time.Millisecond, "watcher should hot reload the new artifact")
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	writeVersionedArtifact(t, path, "v1")

	store, _ := newTestStore(t, ml.NewFileSource(path))
	require.NoError(t, store.Initialize(context.Background()))

	watcher, err := WatchArtifact(path, store, zap.NewNop())
	require.NoError(t, err)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	writeVersionedArtifact(t, filepath.Join(dir, "other.json"), "v9")
	time.Sleep(1 * time.Second)

	model, err := store.Current()
	require.NoError(t, err)
	require.Equal(t, "v1", model.Version())
}
