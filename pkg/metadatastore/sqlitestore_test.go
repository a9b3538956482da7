package metadatastore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(id string, started time.Time, status models.TrainingStatus) *models.TrainingRun {
	return &models.TrainingRun{
		RunID:      id,
		Trigger:    models.TriggerInitialize,
		Status:     status,
		Strategy:   models.StrategyRandomForest,
		StartedAt:  started,
		Duration:   12.5,
		ModelCount: 10,
		SampleRows: 500,
	}
}

func TestRecordAndGetTrainingRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	run := testRun("run-1", started, models.TrainingStatusFailed)
	run.Error = "dataset unavailable"
	require.NoError(t, store.RecordTraining(ctx, run))

	got, err := store.GetTrainingRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, models.TriggerInitialize, got.Trigger)
	assert.Equal(t, models.TrainingStatusFailed, got.Status)
	assert.Equal(t, models.StrategyRandomForest, got.Strategy)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 12.5, got.Duration)
	assert.Equal(t, 10, got.ModelCount)
	assert.Equal(t, 500, got.SampleRows)
	assert.Equal(t, "dataset unavailable", got.Error)

	_, err = store.GetTrainingRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordTrainingRequiresRunID(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.RecordTraining(context.Background(), &models.TrainingRun{}))
	assert.Error(t, store.RecordTraining(context.Background(), nil))
}

func TestListTrainingRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		run := testRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour), models.TrainingStatusSucceeded)
		require.NoError(t, store.RecordTraining(ctx, run))
	}

	runs, err := store.ListTrainingRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].RunID)
	assert.Equal(t, "run-3", runs[1].RunID)
	assert.Equal(t, "run-2", runs[2].RunID)

	all, err := store.ListTrainingRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestListTrainingRunsEmpty(t *testing.T) {
	store := newTestStore(t)
	runs, err := store.ListTrainingRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestLatestSuccessfulRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.LatestSuccessfulRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.RecordTraining(ctx, testRun("ok-old", base, models.TrainingStatusSucceeded)))
	require.NoError(t, store.RecordTraining(ctx, testRun("ok-new", base.Add(time.Hour), models.TrainingStatusSucceeded)))
	require.NoError(t, store.RecordTraining(ctx, testRun("failed", base.Add(2*time.Hour), models.TrainingStatusFailed)))

	latest, err := store.LatestSuccessfulRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok-new", latest.RunID)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordTraining(context.Background(), testRun("persisted", time.Now().UTC(), models.TrainingStatusSucceeded)))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	run, err := reopened.GetTrainingRun(context.Background(), "persisted")
	require.NoError(t, err)
	assert.Equal(t, models.TrainingStatusSucceeded, run.Status)
}

var _ HistoryStore = (*SQLiteStore)(nil)
