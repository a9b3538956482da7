package metadatastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

// ErrNotFound is returned when a training run does not exist
var ErrNotFound = errors.New("training run not found")

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// SQLiteStore provides SQLite-based persistence for the training history
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based storage instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are rare and serialized by SQLite
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check journal mode: %w", err)
	}
	// In-memory databases report "memory"
	if journalMode != "wal" && journalMode != "delete" && journalMode != "memory" {
		db.Close()
		return nil, fmt.Errorf("unexpected journal mode: got %s", journalMode)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// retryOnBusy retries a database operation if it fails due to SQLITE_BUSY.
// This sits on top of the busy_timeout pragma.
func (s *SQLiteStore) retryOnBusy(ctx context.Context, operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "SQLITE_BUSY") {
			return err
		}

		// Exponential backoff: 10ms, 20ms, 40ms, 80ms, 160ms
		backoff := time.Duration(10*(1<<uint(i))) * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}

// initSchema creates the database schema if it doesn't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS training_runs (
		run_id TEXT PRIMARY KEY,
		trigger TEXT NOT NULL,
		status TEXT NOT NULL,
		strategy TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_seconds REAL NOT NULL,
		model_count INTEGER NOT NULL,
		sample_rows INTEGER NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_training_runs_started_at ON training_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_training_runs_status ON training_runs(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordTraining saves a training run
func (s *SQLiteStore) RecordTraining(ctx context.Context, run *models.TrainingRun) error {
	if run == nil || run.RunID == "" {
		return fmt.Errorf("training run must have a run id")
	}

	query := `
		INSERT OR REPLACE INTO training_runs
			(run_id, trigger, status, strategy, started_at, duration_seconds, model_count, sample_rows, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			run.RunID,
			string(run.Trigger),
			string(run.Status),
			string(run.Strategy),
			run.StartedAt.UTC(),
			run.Duration,
			run.ModelCount,
			run.SampleRows,
			nullString(run.Error),
		)
		return err
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to save training run: %w", err)
	}
	return nil
}

// ListTrainingRuns returns the newest runs first. limit <= 0 uses a default.
func (s *SQLiteStore) ListTrainingRuns(ctx context.Context, limit int) ([]*models.TrainingRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT run_id, trigger, status, strategy, started_at, duration_seconds, model_count, sample_rows, error
		FROM training_runs
		ORDER BY started_at DESC, run_id
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.TrainingRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate training runs: %w", err)
	}
	return runs, nil
}

// GetTrainingRun retrieves a run by id
func (s *SQLiteStore) GetTrainingRun(ctx context.Context, runID string) (*models.TrainingRun, error) {
	query := `
		SELECT run_id, trigger, status, strategy, started_at, duration_seconds, model_count, sample_rows, error
		FROM training_runs
		WHERE run_id = ?
	`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return run, err
}

// LatestSuccessfulRun returns the newest successful run
func (s *SQLiteStore) LatestSuccessfulRun(ctx context.Context) (*models.TrainingRun, error) {
	query := `
		SELECT run_id, trigger, status, strategy, started_at, duration_seconds, model_count, sample_rows, error
		FROM training_runs
		WHERE status = ?
		ORDER BY started_at DESC
		LIMIT 1
	`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, string(models.TrainingStatusSucceeded)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.TrainingRun, error) {
	var (
		run                       models.TrainingRun
		trigger, status, strategy string
		errText                   sql.NullString
	)
	err := row.Scan(
		&run.RunID,
		&trigger,
		&status,
		&strategy,
		&run.StartedAt,
		&run.Duration,
		&run.ModelCount,
		&run.SampleRows,
		&errText,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan training run: %w", err)
	}
	run.Trigger = models.TrainingTrigger(trigger)
	run.Status = models.TrainingStatus(status)
	run.Strategy = models.Strategy(strategy)
	run.Error = errText.String
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
