package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
	"github.com/mimir-aip/tire-wear-predictor/pkg/modelstore"
)

// Config holds the application configuration
type Config struct {
	ModelsDir       string   `yaml:"models_dir"`
	KaggleDatasetID string   `yaml:"kaggle_dataset_id"`
	CSVFilename     string   `yaml:"csv_filename"`
	DatasetPath     string   `yaml:"dataset_path"` // Local CSV; skips the download when set
	DatasetCacheDir string   `yaml:"dataset_cache_dir"`
	KaggleAPIURL    string   `yaml:"kaggle_api_url"`
	KaggleUsername  string   `yaml:"kaggle_username"`
	KaggleKey       string   `yaml:"kaggle_key"`
	DevMode         bool     `yaml:"dev_mode"`
	SampleSize      float64  `yaml:"sample_size"`
	UseFastModel    bool     `yaml:"use_fast_model"`
	NJobs           int      `yaml:"n_jobs"`
	Variables       []string `yaml:"variables"`
	TrainingTimeout int      `yaml:"training_timeout"` // Seconds
	BlobCompression string   `yaml:"blob_compression"`
	HistoryDB       string   `yaml:"history_db"`
	RetrainSchedule string   `yaml:"retrain_schedule"`
	APIHost         string   `yaml:"api_host"`
	APIPort         int      `yaml:"api_port"`
	APITitle        string   `yaml:"api_title"`
	APIVersion      string   `yaml:"api_version"`
	CORSOrigins     []string `yaml:"cors_origins"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ModelsDir:       "saved_models",
		KaggleDatasetID: "samwelnjehia/simple-tire-wear-and-degradation-simulated-dataset",
		CSVFilename:     "simulated_dataset.csv",
		DatasetCacheDir: "data",
		KaggleAPIURL:    "https://www.kaggle.com/api/v1",
		DevMode:         true,
		SampleSize:      0.05,
		UseFastModel:    false,
		NJobs:           -1,
		Variables:       append([]string(nil), models.DefaultVariables...),
		TrainingTimeout: 600,
		BlobCompression: "zstd",
		APIHost:         "0.0.0.0",
		APIPort:         5000,
		APITitle:        "ML Tire Wear Predictor API",
		APIVersion:      "1.0.0",
		CORSOrigins:     []string{"*"},
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// LoadConfig loads the defaults, then the YAML file named by CONFIG_FILE if
// any, then environment variables, and validates the result
func LoadConfig() (*Config, error) {
	config := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ModelsDir = getEnv("MODELS_DIR", c.ModelsDir)
	c.KaggleDatasetID = getEnv("KAGGLE_DATASET_ID", c.KaggleDatasetID)
	c.CSVFilename = getEnv("CSV_FILENAME", c.CSVFilename)
	c.DatasetPath = getEnv("DATASET_PATH", c.DatasetPath)
	c.DatasetCacheDir = getEnv("DATASET_CACHE_DIR", c.DatasetCacheDir)
	c.KaggleAPIURL = getEnv("KAGGLE_API_URL", c.KaggleAPIURL)
	c.KaggleUsername = getEnv("KAGGLE_USERNAME", c.KaggleUsername)
	c.KaggleKey = getEnv("KAGGLE_KEY", c.KaggleKey)
	c.DevMode = getEnvAsBool("DEV_MODE", c.DevMode)
	c.SampleSize = getEnvAsFloat("SAMPLE_SIZE", c.SampleSize)
	c.UseFastModel = getEnvAsBool("USE_FAST_MODEL", c.UseFastModel)
	c.NJobs = getEnvAsInt("N_JOBS", c.NJobs)
	c.Variables = getEnvAsList("VARIABLES", c.Variables)
	c.TrainingTimeout = getEnvAsInt("TRAINING_TIMEOUT", c.TrainingTimeout)
	c.BlobCompression = getEnv("BLOB_COMPRESSION", c.BlobCompression)
	c.HistoryDB = getEnv("HISTORY_DB", c.HistoryDB)
	c.RetrainSchedule = getEnv("RETRAIN_SCHEDULE", c.RetrainSchedule)
	c.APIHost = getEnv("API_HOST", c.APIHost)
	c.APIPort = getEnvAsInt("API_PORT", c.APIPort)
	c.APITitle = getEnv("API_TITLE", c.APITitle)
	c.APIVersion = getEnv("API_VERSION", c.APIVersion)
	c.CORSOrigins = getEnvAsList("CORS_ORIGINS", c.CORSOrigins)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", c.LogFormat))
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if c.ModelsDir == "" {
		return fmt.Errorf("MODELS_DIR is required")
	}
	if c.DatasetPath == "" && c.KaggleDatasetID == "" {
		return fmt.Errorf("either DATASET_PATH or KAGGLE_DATASET_ID is required")
	}
	if c.SampleSize <= 0 || c.SampleSize > 1 {
		return fmt.Errorf("SAMPLE_SIZE must be in (0,1], got %v", c.SampleSize)
	}
	if err := c.VariableSet().Validate(); err != nil {
		return fmt.Errorf("VARIABLES: %w", err)
	}
	if c.TrainingTimeout <= 0 {
		return fmt.Errorf("TRAINING_TIMEOUT must be positive, got %d", c.TrainingTimeout)
	}
	if _, err := modelstore.ParseCompression(c.BlobCompression); err != nil {
		return fmt.Errorf("BLOB_COMPRESSION: %w", err)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535, got %d", c.APIPort)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %q", c.LogFormat)
	}
	return nil
}

// Strategy returns the regression strategy for the model set
func (c *Config) Strategy() models.Strategy {
	if c.UseFastModel {
		return models.StrategyLinear
	}
	return models.StrategyRandomForest
}

// VariableSet returns the configured variables
func (c *Config) VariableSet() models.VariableSet {
	return models.VariableSet(c.Variables)
}

// Compression returns the blob compression, assuming Validate passed
func (c *Config) Compression() modelstore.Compression {
	comp, _ := modelstore.ParseCompression(c.BlobCompression)
	return comp
}

// TrainingTimeoutDuration returns the training deadline
func (c *Config) TrainingTimeoutDuration() time.Duration {
	return time.Duration(c.TrainingTimeout) * time.Second
}

// HistoryPath returns the training history database path
func (c *Config) HistoryPath() string {
	if c.HistoryDB != "" {
		return c.HistoryDB
	}
	return filepath.Join(c.ModelsDir, "training_history.db")
}

// Address returns the HTTP listen address
func (c *Config) Address() string {
	return net.JoinHostPort(c.APIHost, strconv.Itoa(c.APIPort))
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated environment variable
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
