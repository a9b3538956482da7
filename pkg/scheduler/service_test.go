package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/tire-wear-predictor/pkg/mlmodel"
	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

type fakeRetrainer struct {
	mu       sync.Mutex
	triggers []models.TrainingTrigger
	err      error
}

func (f *fakeRetrainer) Retrain(ctx context.Context, trigger models.TrainingTrigger) (*mlmodel.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger)
	if f.err != nil {
		return nil, f.err
	}
	return &mlmodel.State{Metadata: &models.ModelMetadata{RunID: "scheduled"}}, nil
}

func TestNewServiceValidatesSchedule(t *testing.T) {
	_, err := NewService("not a schedule", &fakeRetrainer{}, nil)
	assert.Error(t, err)

	_, err = NewService("@daily", nil, nil)
	assert.Error(t, err)

	s, err := NewService("0 3 * * *", &fakeRetrainer{}, nil)
	require.NoError(t, err)
	assert.True(t, s.NextRun().IsZero())
}

func TestRunRetrainsWithScheduleTrigger(t *testing.T) {
	r := &fakeRetrainer{}
	s, err := NewService("@hourly", r, nil)
	require.NoError(t, err)

	s.run()
	r.err = errors.New("dataset unavailable")
	s.run()

	assert.Equal(t, []models.TrainingTrigger{models.TriggerSchedule, models.TriggerSchedule}, r.triggers)
}

func TestStartAndStop(t *testing.T) {
	s, err := NewService("@hourly", &fakeRetrainer{}, nil)
	require.NoError(t, err)

	s.Start()
	next := s.NextRun()
	assert.False(t, next.IsZero())
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), next, 31*time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
