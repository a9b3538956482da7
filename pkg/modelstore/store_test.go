package modelstore

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/tire-wear-predictor/pkg/mlmodel/training"
	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

func testSnapshot(runID string) (models.ModelSet, map[string]models.FeatureStats, *models.ModelMetadata) {
	ms := models.ModelSet{
		"Speed": {
			Target:    "Speed",
			Features:  []string{"Brake"},
			Strategy:  models.StrategyLinear,
			Regressor: &training.LinearRegressor{Intercept: 1.5, Coefficients: []float64{2}},
		},
		"Brake": {
			Target:   "Brake",
			Features: []string{"Speed"},
			Strategy: models.StrategyRandomForest,
			Regressor: &training.ForestRegressor{Trees: []training.RegressionTree{
				{Nodes: []training.TreeNode{{Value: 0.25, IsLeaf: true}}},
			}},
			Degenerate: true,
		},
	}
	stats := map[string]models.FeatureStats{
		"Speed": {Min: 0, Max: 300, Mean: 150, Median: 140},
		"Brake": {Min: 0, Max: 1, Mean: 0.3, Median: 0.25},
	}
	meta := &models.ModelMetadata{
		RunID:            runID,
		TrainedAt:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ModelCount:       len(ms),
		Version:          "1.0",
		TrainingDuration: 1.25,
		Strategy:         models.StrategyLinear,
		SampleRows:       100,
	}
	return ms, stats, meta
}

func newTestStore(t *testing.T, c Compression) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "models"), c, nil)
	require.NoError(t, err)
	return store
}

func TestFileStoreRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionS2, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			store := newTestStore(t, c)
			assert.False(t, store.Exists())

			ms, stats, meta := testSnapshot("run-1")
			require.NoError(t, store.Persist(ms, stats, meta))
			assert.True(t, store.Exists())

			snap, err := store.Restore()
			require.NoError(t, err)
			assert.Equal(t, stats, snap.Stats)
			assert.Equal(t, meta.RunID, snap.Metadata.RunID)
			assert.True(t, meta.TrainedAt.Equal(snap.Metadata.TrainedAt))
			require.Len(t, snap.Models, 2)
			assert.True(t, snap.Models["Brake"].Degenerate)
			assert.Equal(t, []string{"Brake"}, snap.Models["Speed"].Features)
			assert.InDelta(t, 1.5+2*3, snap.Models["Speed"].Regressor.Predict([]float64{3}), 1e-12)
			assert.InDelta(t, 0.25, snap.Models["Brake"].Regressor.Predict([]float64{100}), 1e-12)
		})
	}
}

func TestFileStoreRestoreNotFound(t *testing.T) {
	store := newTestStore(t, CompressionZstd)
	_, err := store.Restore()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStorePartialArtifactsAreAbsent(t *testing.T) {
	store := newTestStore(t, CompressionZstd)
	ms, stats, meta := testSnapshot("run-1")
	require.NoError(t, store.Persist(ms, stats, meta))

	require.NoError(t, os.Remove(filepath.Join(store.Dir(), StatsFile)))
	assert.False(t, store.Exists())
	_, err := store.Restore()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreCorruptArtifacts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, dir string)
	}{
		{
			name: "truncated models",
			mutate: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, ModelsFile), []byte("TWMP"), 0644))
			},
		},
		{
			name: "bad magic",
			mutate: func(t *testing.T, dir string) {
				flipByte(t, filepath.Join(dir, ModelsFile), 0)
			},
		},
		{
			name: "unsupported version",
			mutate: func(t *testing.T, dir string) {
				path := filepath.Join(dir, StatsFile)
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				binary.LittleEndian.PutUint16(data[4:6], 99)
				require.NoError(t, os.WriteFile(path, data, 0644))
			},
		},
		{
			name: "checksum mismatch",
			mutate: func(t *testing.T, dir string) {
				path := filepath.Join(dir, ModelsFile)
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				flipByte(t, path, len(data)-1)
			},
		},
		{
			name: "swapped blobs",
			mutate: func(t *testing.T, dir string) {
				stats, err := os.ReadFile(filepath.Join(dir, StatsFile))
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(filepath.Join(dir, ModelsFile), stats, 0644))
			},
		},
		{
			name: "invalid metadata",
			mutate: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("{not json"), 0644))
			},
		},
		{
			name: "model count mismatch",
			mutate: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile),
					[]byte(`{"run_id":"run-1","model_count":7,"version":"1.0"}`), 0644))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, CompressionS2)
			ms, stats, meta := testSnapshot("run-1")
			require.NoError(t, store.Persist(ms, stats, meta))

			tt.mutate(t, store.Dir())

			_, err := store.Restore()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestFileStoreDetectsMixedRuns(t *testing.T) {
	store := newTestStore(t, CompressionZstd)
	ms, stats, meta := testSnapshot("run-1")
	require.NoError(t, store.Persist(ms, stats, meta))
	oldStats, err := os.ReadFile(filepath.Join(store.Dir(), StatsFile))
	require.NoError(t, err)

	_, _, meta2 := testSnapshot("run-2")
	require.NoError(t, store.Persist(ms, stats, meta2))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), StatsFile), oldStats, 0644))

	_, err = store.Restore()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStorePersistOverwrites(t *testing.T) {
	store := newTestStore(t, CompressionLZ4)
	ms, stats, meta := testSnapshot("run-1")
	require.NoError(t, store.Persist(ms, stats, meta))

	_, _, meta2 := testSnapshot("run-2")
	require.NoError(t, store.Persist(ms, stats, meta2))

	snap, err := store.Restore()
	require.NoError(t, err)
	assert.Equal(t, "run-2", snap.Metadata.RunID)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 3, "temporary files must not be left behind")
}

func TestFileStoreDiscard(t *testing.T) {
	store := newTestStore(t, CompressionNone)
	ms, stats, meta := testSnapshot("run-1")
	require.NoError(t, store.Persist(ms, stats, meta))

	require.NoError(t, store.Discard())
	assert.False(t, store.Exists())
	require.NoError(t, store.Discard())
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "zstd", "s2", "lz4"} {
		c, err := ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.String())
	}
	_, err := ParseCompression("gzip")
	assert.Error(t, err)

	_, err = NewFileStore(t.TempDir(), Compression(42), nil)
	assert.Error(t, err)
}

func flipByte(t *testing.T, path string, i int) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[i] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))
}
