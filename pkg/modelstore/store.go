// Package modelstore persists a trained model set, its feature statistics and
// its training metadata as three files in one directory.
package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

const (
	ModelsFile   = "ml_models.bin"
	StatsFile    = "feature_ranges.bin"
	MetadataFile = "metadata.json"
)

var (
	// ErrNotFound means at least one artifact is absent
	ErrNotFound = errors.New("saved model state not found")
	// ErrCorrupt means the artifacts exist but cannot be read or disagree
	ErrCorrupt = errors.New("saved model state is corrupt")
)

// Snapshot is the restored state of a training cycle
type Snapshot struct {
	Models   models.ModelSet
	Stats    map[string]models.FeatureStats
	Metadata *models.ModelMetadata
}

type modelDocument struct {
	RunID  string
	Models models.ModelSet
}

type statsDocument struct {
	RunID string
	Stats map[string]models.FeatureStats
}

// FileStore stores model state under a directory
type FileStore struct {
	dir         string
	compression Compression
	logger      *zap.Logger
}

// NewFileStore creates the directory if needed and returns a store over it
func NewFileStore(dir string, compression Compression, logger *zap.Logger) (*FileStore, error) {
	if _, err := GetCodec(compression); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		dir:         dir,
		compression: compression,
		logger:      logger.Named("modelstore"),
	}, nil
}

// Dir returns the directory the store writes to
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether all three artifacts are present
func (s *FileStore) Exists() bool {
	for _, name := range []string{ModelsFile, StatsFile, MetadataFile} {
		if _, err := os.Stat(s.path(name)); err != nil {
			return false
		}
	}
	return true
}

// Persist writes the model set, statistics and metadata. The metadata file is
// removed first and written last, so Exists never reports a mix of old and
// new artifacts. Each file is written to a temporary name and renamed.
func (s *FileStore) Persist(ms models.ModelSet, stats map[string]models.FeatureStats, meta *models.ModelMetadata) error {
	if meta == nil {
		return fmt.Errorf("metadata is required")
	}
	s.logger.Info("Saving models to disk", zap.String("dir", s.dir), zap.String("run_id", meta.RunID))

	if err := os.Remove(s.path(MetadataFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove previous metadata: %w", err)
	}

	modelBlob, err := encodeBlob(kindModels, s.compression, &modelDocument{RunID: meta.RunID, Models: ms})
	if err != nil {
		return fmt.Errorf("failed to encode models: %w", err)
	}
	if err := writeFileAtomic(s.path(ModelsFile), modelBlob); err != nil {
		return fmt.Errorf("failed to write models: %w", err)
	}

	statsBlob, err := encodeBlob(kindStats, s.compression, &statsDocument{RunID: meta.RunID, Stats: stats})
	if err != nil {
		return fmt.Errorf("failed to encode feature ranges: %w", err)
	}
	if err := writeFileAtomic(s.path(StatsFile), statsBlob); err != nil {
		return fmt.Errorf("failed to write feature ranges: %w", err)
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeFileAtomic(s.path(MetadataFile), metaJSON); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	s.logger.Info("Models saved successfully",
		zap.Int("models_bytes", len(modelBlob)),
		zap.Int("stats_bytes", len(statsBlob)),
		zap.String("compression", s.compression.String()))
	return nil
}

// Restore reads all three artifacts. It returns ErrNotFound when any is
// absent and an error wrapping ErrCorrupt when they cannot be used.
func (s *FileStore) Restore() (*Snapshot, error) {
	if !s.Exists() {
		return nil, ErrNotFound
	}

	metaJSON, err := os.ReadFile(s.path(MetadataFile))
	if err != nil {
		return nil, corrupt("failed to read metadata", err)
	}
	var meta models.ModelMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, corrupt("failed to parse metadata", err)
	}

	modelBlob, err := os.ReadFile(s.path(ModelsFile))
	if err != nil {
		return nil, corrupt("failed to read models", err)
	}
	var modelDoc modelDocument
	if err := decodeBlob(modelBlob, kindModels, &modelDoc); err != nil {
		return nil, corrupt("failed to decode models", err)
	}

	statsBlob, err := os.ReadFile(s.path(StatsFile))
	if err != nil {
		return nil, corrupt("failed to read feature ranges", err)
	}
	var statsDoc statsDocument
	if err := decodeBlob(statsBlob, kindStats, &statsDoc); err != nil {
		return nil, corrupt("failed to decode feature ranges", err)
	}

	if modelDoc.RunID != meta.RunID || statsDoc.RunID != meta.RunID {
		return nil, fmt.Errorf("%w: artifacts belong to different training runs (metadata %q, models %q, ranges %q)",
			ErrCorrupt, meta.RunID, modelDoc.RunID, statsDoc.RunID)
	}
	if meta.ModelCount != len(modelDoc.Models) {
		return nil, fmt.Errorf("%w: metadata lists %d models, blob holds %d", ErrCorrupt, meta.ModelCount, len(modelDoc.Models))
	}

	return &Snapshot{
		Models:   modelDoc.Models,
		Stats:    statsDoc.Stats,
		Metadata: &meta,
	}, nil
}

// Discard removes every artifact
func (s *FileStore) Discard() error {
	for _, name := range []string{MetadataFile, ModelsFile, StatsFile} {
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

func corrupt(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCorrupt, msg, err)
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it over path
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
