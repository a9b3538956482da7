package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mimir-aip/tire-wear-predictor/pkg/mlmodel"
	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

// Retrainer is the part of the lifecycle service the scheduler drives
type Retrainer interface {
	Retrain(ctx context.Context, trigger models.TrainingTrigger) (*mlmodel.State, error)
}

// Service runs periodic retraining on a cron schedule
type Service struct {
	schedule  string
	retrainer Retrainer
	logger    *zap.Logger
	cron      *cron.Cron
	entry     cron.EntryID
}

// NewService creates a scheduler for a standard five-field cron expression
// or descriptor such as "@daily"
func NewService(schedule string, retrainer Retrainer, logger *zap.Logger) (*Service, error) {
	if retrainer == nil {
		return nil, fmt.Errorf("retrainer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")

	cronLogger := zapCronLogger{logger.Sugar()}
	c := cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	s := &Service{
		schedule:  schedule,
		retrainer: retrainer,
		logger:    logger,
		cron:      c,
	}
	entry, err := c.AddFunc(schedule, s.run)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	s.entry = entry
	return s, nil
}

// Start starts the scheduler
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("Retrain scheduler started",
		zap.String("schedule", s.schedule),
		zap.Time("next_run", s.NextRun()))
}

// Stop stops the scheduler and waits for a running retrain to finish or ctx
// to end
func (s *Service) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stopped before the running retrain finished")
	}
	s.logger.Info("Retrain scheduler stopped")
}

// NextRun returns the next activation time, zero before Start
func (s *Service) NextRun() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Service) run() {
	start := time.Now()
	s.logger.Info("Scheduled retrain starting")
	st, err := s.retrainer.Retrain(context.Background(), models.TriggerSchedule)
	if err != nil {
		s.logger.Error("Scheduled retrain failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	s.logger.Info("Scheduled retrain finished",
		zap.String("run_id", st.Metadata.RunID),
		zap.Duration("duration", time.Since(start)))
}

// zapCronLogger adapts zap to cron.Logger
type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
