package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

const (
	DefaultKaggleAPIURL = "https://www.kaggle.com/api/v1"

	maxDownloadBytes = 1 << 30
)

// KaggleSource downloads a dataset archive from the Kaggle API once, keeps
// the extracted CSV in CacheDir and reads the cached copy afterwards
type KaggleSource struct {
	DatasetID string // owner/slug
	FileName  string // CSV inside the archive
	CacheDir  string
	BaseURL   string
	Username  string
	Key       string
	Client    *http.Client
	Logger    *zap.Logger

	mu sync.Mutex
}

// NewKaggleSource creates a source with the default API URL and client
func NewKaggleSource(datasetID, fileName, cacheDir string, logger *zap.Logger) *KaggleSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KaggleSource{
		DatasetID: datasetID,
		FileName:  fileName,
		CacheDir:  cacheDir,
		BaseURL:   DefaultKaggleAPIURL,
		Client:    &http.Client{Timeout: 5 * time.Minute},
		Logger:    logger.Named("kaggle"),
	}
}

// CachePath is where the extracted CSV is kept
func (s *KaggleSource) CachePath() string {
	return filepath.Join(s.CacheDir, strings.ReplaceAll(s.DatasetID, "/", "_"), s.FileName)
}

// Fetch returns the dataset, downloading it first when it is not cached
func (s *KaggleSource) Fetch(ctx context.Context) (*models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached := s.CachePath()
	if _, err := os.Stat(cached); err != nil {
		if err := s.download(ctx, cached); err != nil {
			return nil, err
		}
	}
	return (&FileSource{Path: cached}).Fetch(ctx)
}

func (s *KaggleSource) download(ctx context.Context, dest string) error {
	owner, slug, ok := strings.Cut(s.DatasetID, "/")
	if !ok || owner == "" || slug == "" {
		return fmt.Errorf("invalid kaggle dataset id %q, expected owner/slug", s.DatasetID)
	}
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = DefaultKaggleAPIURL
	}
	url := strings.TrimRight(baseURL, "/") + "/" + path.Join("datasets", "download", owner, slug)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if s.Username != "" {
		req.SetBasicAuth(s.Username, s.Key)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Downloading dataset", zap.String("dataset", s.DatasetID), zap.String("url", url))

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dataset download returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read dataset download: %w", err)
	}
	if len(body) > maxDownloadBytes {
		return fmt.Errorf("dataset download exceeds %d bytes", maxDownloadBytes)
	}

	data := body
	if isZip(body) {
		data, err = extractFile(body, s.FileName)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write cached dataset: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write cached dataset: %w", err)
	}

	logger.Info("Dataset cached", zap.String("path", dest), zap.Int("bytes", len(data)))
	return nil
}

func isZip(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

// extractFile returns the contents of the archive member whose base name is
// name
func extractFile(archive []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset archive: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxDownloadBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("file %s not found in dataset archive", name)
}
