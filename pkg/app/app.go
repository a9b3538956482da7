// Package app wires configuration into the lifecycle service and its
// dependencies. Both binaries build their components here.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mimir-aip/tire-wear-predictor/pkg/config"
	"github.com/mimir-aip/tire-wear-predictor/pkg/dataset"
	"github.com/mimir-aip/tire-wear-predictor/pkg/metadatastore"
	"github.com/mimir-aip/tire-wear-predictor/pkg/metrics"
	"github.com/mimir-aip/tire-wear-predictor/pkg/mlmodel"
	"github.com/mimir-aip/tire-wear-predictor/pkg/mlmodel/training"
	"github.com/mimir-aip/tire-wear-predictor/pkg/modelstore"
)

// Components holds everything built from a configuration
type Components struct {
	Store   *modelstore.FileStore
	History *metadatastore.SQLiteStore
	Metrics *metrics.Metrics
	Service *mlmodel.Service
}

// Close releases the history database
func (c *Components) Close() error {
	if c.History != nil {
		return c.History.Close()
	}
	return nil
}

// NewComponents builds the dataset source, model store, trainer, history
// store and lifecycle service described by cfg
func NewComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := modelstore.NewFileStore(cfg.ModelsDir, cfg.Compression(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model store: %w", err)
	}
	logger.Info("Initialized model store",
		zap.String("dir", cfg.ModelsDir),
		zap.String("compression", cfg.Compression().String()))

	history, err := metadatastore.NewSQLiteStore(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize training history: %w", err)
	}
	logger.Info("Initialized training history", zap.String("path", cfg.HistoryPath()))

	m := metrics.New()

	svc, err := mlmodel.NewService(mlmodel.Options{
		Source:          NewSource(cfg, logger),
		Store:           store,
		Trainer:         training.NewModelSetTrainer(cfg.NJobs, logger),
		History:         history,
		Metrics:         m,
		Logger:          logger,
		Variables:       cfg.VariableSet(),
		Strategy:        cfg.Strategy(),
		TrainingTimeout: cfg.TrainingTimeoutDuration(),
	})
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("failed to create model service: %w", err)
	}

	return &Components{
		Store:   store,
		History: history,
		Metrics: m,
		Service: svc,
	}, nil
}

// NewSource returns the dataset source: a local file when DatasetPath is set,
// Kaggle otherwise, sampled in development mode
func NewSource(cfg *config.Config, logger *zap.Logger) dataset.Source {
	var src dataset.Source
	if cfg.DatasetPath != "" {
		src = &dataset.FileSource{Path: cfg.DatasetPath}
	} else {
		kaggle := dataset.NewKaggleSource(cfg.KaggleDatasetID, cfg.CSVFilename, cfg.DatasetCacheDir, logger)
		kaggle.BaseURL = cfg.KaggleAPIURL
		kaggle.Username = cfg.KaggleUsername
		kaggle.Key = cfg.KaggleKey
		src = kaggle
	}
	if cfg.DevMode {
		src = dataset.NewSamplingSource(src, cfg.SampleSize, logger)
	}
	return src
}
