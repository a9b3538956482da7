package training

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

var (
	// ErrEmptyDataset is returned when there are no rows to train on
	ErrEmptyDataset = errors.New("dataset is empty")
	// ErrMissingColumn is returned when a variable is not a dataset column
	ErrMissingColumn = errors.New("column missing from dataset")
)

func init() {
	// Regressors travel inside models.VariableModel through encoding/gob
	gob.Register(&LinearRegressor{})
	gob.Register(&ForestRegressor{})
}

// Trainer interface defines the contract for fitting one regression model
type Trainer interface {
	// Fit fits a regressor on a design matrix (rows x features) and target vector
	Fit(ctx context.Context, features [][]float64, target []float64) (models.Regressor, error)

	// GetStrategy returns the strategy this trainer implements
	GetStrategy() models.Strategy
}

// TrainerFactory creates trainers for different strategies
type TrainerFactory struct {
	trainers map[models.Strategy]Trainer
}

// NewTrainerFactory creates a new trainer factory
func NewTrainerFactory() *TrainerFactory {
	factory := &TrainerFactory{
		trainers: make(map[models.Strategy]Trainer),
	}

	factory.trainers[models.StrategyLinear] = NewLinearTrainer()
	factory.trainers[models.StrategyRandomForest] = NewRandomForestTrainer()

	return factory
}

// GetTrainer returns the trainer for a strategy
func (f *TrainerFactory) GetTrainer(strategy models.Strategy) (Trainer, error) {
	trainer, ok := f.trainers[strategy]
	if !ok {
		return nil, fmt.Errorf("no trainer available for strategy: %s", strategy)
	}
	return trainer, nil
}
