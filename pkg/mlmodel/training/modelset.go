package training

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

// ModelSetTrainer trains one model per variable, each predicting that
// variable from all the others
type ModelSetTrainer struct {
	factory     *TrainerFactory
	parallelism int
	logger      *zap.Logger
}

// NewModelSetTrainer creates a model set trainer. parallelism <= 0 uses one
// worker per CPU.
func NewModelSetTrainer(parallelism int, logger *zap.Logger) *ModelSetTrainer {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelSetTrainer{
		factory:     NewTrainerFactory(),
		parallelism: parallelism,
		logger:      logger.Named("trainer"),
	}
}

// Train fits the whole model set concurrently. The first failing fit cancels
// the remaining ones.
func (t *ModelSetTrainer) Train(ctx context.Context, ds *models.Dataset, vars models.VariableSet, strategy models.Strategy) (models.ModelSet, error) {
	trainer, err := t.factory.GetTrainer(strategy)
	if err != nil {
		return nil, err
	}
	if ds == nil || ds.Rows == 0 {
		return nil, ErrEmptyDataset
	}
	for _, v := range vars {
		if !ds.HasColumn(v) {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, v)
		}
	}

	start := time.Now()
	t.logger.Info("Training models",
		zap.String("strategy", string(strategy)),
		zap.Int("models", len(vars)),
		zap.Int("rows", ds.Rows),
		zap.Int("workers", t.parallelism))

	results := make([]*models.VariableModel, len(vars))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.parallelism)
	for i, target := range vars {
		i, target := i, target
		g.Go(func() error {
			m, err := t.trainOne(gctx, trainer, ds, vars, target)
			if err != nil {
				return fmt.Errorf("failed to train model for %s: %w", target, err)
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := make(models.ModelSet, len(results))
	for _, m := range results {
		set[m.Target] = m
	}

	t.logger.Info("All models trained", zap.Duration("duration", time.Since(start)))
	return set, nil
}

func (t *ModelSetTrainer) trainOne(ctx context.Context, trainer Trainer, ds *models.Dataset, vars models.VariableSet, target string) (*models.VariableModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	t.logger.Debug("Training model", zap.String("target", target))

	features := vars.Without(target)
	X, err := designMatrix(ds, features)
	if err != nil {
		return nil, err
	}
	y, ok := ds.FilledColumn(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, target)
	}

	regressor, err := trainer.Fit(ctx, X, y)
	if err != nil {
		return nil, err
	}

	degenerate := isDegenerate(X, y)
	if degenerate {
		t.logger.Warn("Degenerate model: constant target or zero-variance feature",
			zap.String("target", target))
	}

	t.logger.Info("Completed model",
		zap.String("target", target),
		zap.Duration("duration", time.Since(start)))

	return &models.VariableModel{
		Target:     target,
		Features:   features,
		Strategy:   trainer.GetStrategy(),
		Regressor:  regressor,
		Degenerate: degenerate,
	}, nil
}

// designMatrix builds a rows x features matrix with NaN filled as 0
func designMatrix(ds *models.Dataset, features []string) ([][]float64, error) {
	cols := make([][]float64, len(features))
	for j, f := range features {
		col, ok := ds.FilledColumn(f)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, f)
		}
		cols[j] = col
	}

	p := len(features)
	backing := make([]float64, ds.Rows*p)
	X := make([][]float64, ds.Rows)
	for i := range X {
		row := backing[i*p : (i+1)*p]
		for j := range cols {
			row[j] = cols[j][i]
		}
		X[i] = row
	}
	return X, nil
}

func isDegenerate(X [][]float64, y []float64) bool {
	if constant(len(y), func(i int) float64 { return y[i] }) {
		return true
	}
	if len(X) == 0 {
		return true
	}
	for j := range X[0] {
		if constant(len(X), func(i int) float64 { return X[i][j] }) {
			return true
		}
	}
	return false
}

func constant(n int, at func(int) float64) bool {
	for i := 1; i < n; i++ {
		if at(i) != at(0) {
			return false
		}
	}
	return true
}
