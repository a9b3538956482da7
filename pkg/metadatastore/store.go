package metadatastore

import (
	"context"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

// HistoryStore is the interface for training history persistence
type HistoryStore interface {
	// RecordTraining saves one completed or failed training cycle
	RecordTraining(ctx context.Context, run *models.TrainingRun) error

	// ListTrainingRuns returns up to limit runs, newest first
	ListTrainingRuns(ctx context.Context, limit int) ([]*models.TrainingRun, error)

	// GetTrainingRun returns a run by its run id
	GetTrainingRun(ctx context.Context, runID string) (*models.TrainingRun, error)

	// LatestSuccessfulRun returns the newest run that produced a model set
	LatestSuccessfulRun(ctx context.Context) (*models.TrainingRun, error)

	Close() error
}
