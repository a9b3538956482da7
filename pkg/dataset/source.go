package dataset

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

const (
	DefaultSampleSeed    = 42
	DefaultSampleMinRows = 1000
)

// Source supplies a training dataset
type Source interface {
	Fetch(ctx context.Context) (*models.Dataset, error)
}

// FileSource reads a local CSV file
type FileSource struct {
	Path string
}

// Fetch reads and parses the file
func (s *FileSource) Fetch(ctx context.Context) (*models.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.Path, err)
	}
	return ds, nil
}

// SamplingSource keeps a uniform random fraction of a large dataset. Datasets
// with MinRows rows or fewer pass through unchanged.
type SamplingSource struct {
	Source   Source
	Fraction float64
	Seed     int64
	MinRows  int
	Logger   *zap.Logger
}

// NewSamplingSource wraps src with the default seed and row threshold
func NewSamplingSource(src Source, fraction float64, logger *zap.Logger) *SamplingSource {
	return &SamplingSource{
		Source:   src,
		Fraction: fraction,
		Seed:     DefaultSampleSeed,
		MinRows:  DefaultSampleMinRows,
		Logger:   logger,
	}
}

// Fetch fetches from the wrapped source and samples the result
func (s *SamplingSource) Fetch(ctx context.Context) (*models.Dataset, error) {
	ds, err := s.Source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if ds.Rows <= s.MinRows || s.Fraction >= 1 {
		return ds, nil
	}

	sampled, err := ds.Sample(s.Fraction, s.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to sample dataset: %w", err)
	}
	if s.Logger != nil {
		s.Logger.Info("Development mode: sampled dataset",
			zap.Int("rows", sampled.Rows),
			zap.Int("original_rows", ds.Rows),
			zap.Float64("fraction", s.Fraction))
	}
	return sampled, nil
}
