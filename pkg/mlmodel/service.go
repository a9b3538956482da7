package mlmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mimir-aip/tire-wear-predictor/pkg/metrics"
	"github.com/mimir-aip/tire-wear-predictor/pkg/modelstore"
	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
	"github.com/mimir-aip/tire-wear-predictor/pkg/stats"
)

const (
	// MetadataVersion is written to every saved model set
	MetadataVersion = "1.0"

	DefaultTrainingTimeout = 10 * time.Minute
)

// DatasetSource supplies the training table
type DatasetSource interface {
	Fetch(ctx context.Context) (*models.Dataset, error)
}

// ModelStore saves and loads trained state
type ModelStore interface {
	Exists() bool
	Persist(ms models.ModelSet, stats map[string]models.FeatureStats, meta *models.ModelMetadata) error
	Restore() (*modelstore.Snapshot, error)
}

// ModelTrainer fits a model set
type ModelTrainer interface {
	Train(ctx context.Context, ds *models.Dataset, vars models.VariableSet, strategy models.Strategy) (models.ModelSet, error)
}

// HistoryRecorder keeps a log of training cycles
type HistoryRecorder interface {
	RecordTraining(ctx context.Context, run *models.TrainingRun) error
}

// State is a published model set. It is never modified after publication.
type State struct {
	Models    models.ModelSet
	Stats     map[string]models.FeatureStats
	Metadata  *models.ModelMetadata
	Variables models.VariableSet
	Restored  bool
}

// PredictionResult is the answer to one prediction request
type PredictionResult struct {
	Predictions     models.Predictions
	InputParameters map[string]float64
}

// Options configures a Service
type Options struct {
	Source          DatasetSource
	Store           ModelStore
	Trainer         ModelTrainer
	History         HistoryRecorder  // optional
	Metrics         *metrics.Metrics // optional
	Logger          *zap.Logger      // optional
	Variables       models.VariableSet
	Strategy        models.Strategy
	TrainingTimeout time.Duration
	Version         string
}

// Service owns the model lifecycle. It starts uninitialized and becomes ready
// after the first successful Initialize. Predictions read the published state
// without locking.
type Service struct {
	source  DatasetSource
	store   ModelStore
	trainer ModelTrainer
	history HistoryRecorder
	metrics *metrics.Metrics
	logger  *zap.Logger

	vars     models.VariableSet
	strategy models.Strategy
	timeout  time.Duration
	version  string

	state atomic.Pointer[State]
	mu    sync.Mutex // serializes training and publication
	calls singleflight.Group
}

// NewService creates an uninitialized service
func NewService(opts Options) (*Service, error) {
	if opts.Source == nil || opts.Store == nil || opts.Trainer == nil {
		return nil, fmt.Errorf("source, store and trainer are required")
	}
	vars := opts.Variables
	if len(vars) == 0 {
		vars = models.DefaultVariables
	}
	if err := vars.Validate(); err != nil {
		return nil, fmt.Errorf("invalid variable set: %w", err)
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = models.StrategyRandomForest
	}
	if _, err := models.ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	timeout := opts.TrainingTimeout
	if timeout <= 0 {
		timeout = DefaultTrainingTimeout
	}
	version := opts.Version
	if version == "" {
		version = MetadataVersion
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts.Metrics.SetModelReady(false)
	return &Service{
		source:   opts.Source,
		store:    opts.Store,
		trainer:  opts.Trainer,
		history:  opts.History,
		metrics:  opts.Metrics,
		logger:   logger.Named("lifecycle"),
		vars:     append(models.VariableSet(nil), vars...),
		strategy: strategy,
		timeout:  timeout,
		version:  version,
	}, nil
}

// Variables returns the configured variable set
func (s *Service) Variables() models.VariableSet {
	return s.vars
}

// IsInitialized reports whether a model set has been published
func (s *Service) IsInitialized() bool {
	return s.state.Load() != nil
}

// Current returns the published state, or nil before initialization
func (s *Service) Current() *State {
	return s.state.Load()
}

// Initialize makes the service ready. It restores saved models when they are
// usable and trains new ones otherwise. Once ready it returns the held state
// without doing any work. Concurrent callers share one transition.
func (s *Service) Initialize(ctx context.Context) (*State, error) {
	if st := s.state.Load(); st != nil {
		return st, nil
	}
	return s.do(ctx, "initialize", func() (*State, error) {
		if st := s.state.Load(); st != nil {
			return st, nil
		}
		if st := s.restore(); st != nil {
			s.publish(st)
			return st, nil
		}
		st, err := s.train(models.TriggerInitialize)
		if err != nil {
			return nil, err
		}
		s.publish(st)
		return st, nil
	})
}

// Retrain trains a new model set regardless of the current state and
// replaces the saved and published state with it. On failure both are left
// as they were.
func (s *Service) Retrain(ctx context.Context, trigger models.TrainingTrigger) (*State, error) {
	return s.do(ctx, "retrain", func() (*State, error) {
		st, err := s.train(trigger)
		if err != nil {
			return nil, err
		}
		s.publish(st)
		return st, nil
	})
}

// Predict evaluates every model for one input row
func (s *Service) Predict(input models.PredictionInput) (*PredictionResult, error) {
	start := time.Now()
	st := s.state.Load()
	if st == nil {
		s.metrics.ObservePrediction(metrics.ResultFailure, time.Since(start))
		return nil, ErrNotInitialized
	}

	preds, err := Predict(st.Models, st.Stats, input)
	if err != nil {
		s.metrics.ObservePrediction(metrics.ResultFailure, time.Since(start))
		s.logger.Error("Prediction failed", zap.Error(err))
		return nil, err
	}
	s.metrics.ObservePrediction(metrics.ResultSuccess, time.Since(start))

	return &PredictionResult{
		Predictions:     preds,
		InputParameters: EffectiveInput(st.Variables, st.Stats, input),
	}, nil
}

// do collapses concurrent calls for key into one execution under the
// training mutex. The caller may stop waiting when ctx ends; the work itself
// carries on.
func (s *Service) do(ctx context.Context, key string, fn func() (*State, error)) (*State, error) {
	ch := s.calls.DoChan(key, func() (interface{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*State), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// restore loads saved state. It returns nil when nothing usable is saved.
func (s *Service) restore() *State {
	snap, err := s.store.Restore()
	switch {
	case errors.Is(err, modelstore.ErrNotFound):
		s.metrics.ObserveRestore(metrics.ResultMissing)
		s.logger.Info("No saved models found")
		return nil
	case err != nil:
		s.metrics.ObserveRestore(metrics.ResultCorrupt)
		s.logger.Warn("Saved models are unreadable, retraining", zap.Error(err))
		return nil
	}

	if err := snap.Models.Validate(s.vars); err != nil {
		s.metrics.ObserveRestore(metrics.ResultInvalid)
		s.logger.Warn("Saved models do not match the configured variables, retraining", zap.Error(err))
		return nil
	}
	if snap.Stats == nil || snap.Metadata == nil {
		s.metrics.ObserveRestore(metrics.ResultInvalid)
		s.logger.Warn("Saved models have no statistics or metadata, retraining")
		return nil
	}

	s.metrics.ObserveRestore(metrics.ResultSuccess)
	s.logger.Info("Models loaded successfully",
		zap.String("run_id", snap.Metadata.RunID),
		zap.Time("trained_at", snap.Metadata.TrainedAt))
	return &State{
		Models:    snap.Models,
		Stats:     snap.Stats,
		Metadata:  snap.Metadata,
		Variables: s.vars,
		Restored:  true,
	}
}

// train runs the full training path and persists the result. It runs on its
// own deadline so a disconnecting client does not abort a cycle other callers
// are waiting on.
func (s *Service) train(trigger models.TrainingTrigger) (*State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	run := &models.TrainingRun{
		RunID:     uuid.New().String(),
		Trigger:   trigger,
		Strategy:  s.strategy,
		StartedAt: start.UTC(),
	}
	log := s.logger.With(zap.String("run_id", run.RunID), zap.String("trigger", string(trigger)))
	log.Info("Training new models", zap.String("strategy", string(s.strategy)))

	st, err := s.trainRun(ctx, log, run)
	run.Duration = time.Since(start).Seconds()
	if err != nil {
		run.Status = models.TrainingStatusFailed
		run.Error = err.Error()
		s.metrics.ObserveTraining(metrics.ResultFailure, time.Since(start))
		log.Error("Model training failed", zap.Error(err))
		s.record(ctx, log, run)
		return nil, fmt.Errorf("%w: %w", ErrTrainingFailed, err)
	}

	run.Status = models.TrainingStatusSucceeded
	s.metrics.ObserveTraining(metrics.ResultSuccess, time.Since(start))
	s.record(ctx, log, run)
	log.Info("Models trained and saved", zap.Float64("duration_seconds", run.Duration))
	return st, nil
}

func (s *Service) trainRun(ctx context.Context, log *zap.Logger, run *models.TrainingRun) (*State, error) {
	ds, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load training data: %w", err)
	}
	run.SampleRows = ds.Rows
	log.Info("Loaded dataset", zap.Int("rows", ds.Rows), zap.Int("columns", len(ds.Columns)))

	featureStats, missing := stats.Compute(ds, s.vars)
	if len(missing) > 0 {
		log.Warn("No statistics for variables", zap.Strings("variables", missing))
	}

	ms, err := s.trainer.Train(ctx, ds, s.vars, s.strategy)
	if err != nil {
		return nil, err
	}
	if err := ms.Validate(s.vars); err != nil {
		return nil, fmt.Errorf("trainer returned an incomplete model set: %w", err)
	}
	run.ModelCount = len(ms)

	meta := &models.ModelMetadata{
		RunID:            run.RunID,
		TrainedAt:        time.Now().UTC(),
		ModelCount:       len(ms),
		Version:          s.version,
		TrainingDuration: time.Since(run.StartedAt).Seconds(),
		Strategy:         s.strategy,
		SampleRows:       ds.Rows,
	}
	if err := s.store.Persist(ms, featureStats, meta); err != nil {
		return nil, fmt.Errorf("failed to save models: %w", err)
	}

	return &State{
		Models:    ms,
		Stats:     featureStats,
		Metadata:  meta,
		Variables: s.vars,
	}, nil
}

func (s *Service) record(ctx context.Context, log *zap.Logger, run *models.TrainingRun) {
	if s.history == nil {
		return
	}
	// history must be written even when the training deadline has passed
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.history.RecordTraining(ctx, run); err != nil {
		log.Warn("Failed to record training run", zap.Error(err))
	}
}

func (s *Service) publish(st *State) {
	s.state.Store(st)
	s.metrics.SetModelReady(true)
}
