// Package history keeps finished speed test runs in a local sqlite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/NodePath81/cfspeed/internal/engine"
)

// Record is one stored run. Rates are bytes per second.
type Record struct {
	ID                string
	MeasID            string
	StartedAt         time.Time
	Policy            string
	DownloadMbps      float64
	UploadMbps        float64
	DownloadMedian    float64
	DownloadP90       int64
	UploadMedian      float64
	UploadP90         int64
	DownloadCompleted bool
	UploadCompleted   bool
	Country           string
	Colo              string
	Latency           time.Duration
	Samples           []engine.Sample
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		meas_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		policy TEXT NOT NULL,
		download_mbps REAL NOT NULL,
		upload_mbps REAL NOT NULL,
		download_median REAL NOT NULL,
		download_p90 INTEGER NOT NULL,
		upload_median REAL NOT NULL,
		upload_p90 INTEGER NOT NULL,
		download_completed INTEGER NOT NULL,
		upload_completed INTEGER NOT NULL,
		country TEXT,
		colo TEXT,
		latency_us INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS samples (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		direction TEXT NOT NULL,
		second INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		PRIMARY KEY (run_id, direction, second)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// Save stores rec with its samples and returns the assigned id.
func (s *Store) Save(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, meas_id, started_at, policy, download_mbps, upload_mbps,
			download_median, download_p90, upload_median, upload_p90,
			download_completed, upload_completed, country, colo, latency_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.MeasID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.Policy,
		rec.DownloadMbps,
		rec.UploadMbps,
		rec.DownloadMedian,
		rec.DownloadP90,
		rec.UploadMedian,
		rec.UploadP90,
		rec.DownloadCompleted,
		rec.UploadCompleted,
		rec.Country,
		rec.Colo,
		rec.Latency.Microseconds(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save history run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples (run_id, direction, second, bytes) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()
	for _, sample := range rec.Samples {
		if _, err := stmt.ExecContext(ctx, rec.ID, sample.Direction.String(), sample.Second, sample.Bytes); err != nil {
			return "", fmt.Errorf("failed to save history sample: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit history run: %w", err)
	}
	return rec.ID, nil
}

// List returns the newest runs first, without their samples.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meas_id, started_at, policy, download_mbps, upload_mbps,
			download_median, download_p90, upload_median, upload_p90,
			download_completed, upload_completed, country, colo, latency_us
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			startedAt string
			country   sql.NullString
			colo      sql.NullString
			latencyUS int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.MeasID, &startedAt, &rec.Policy, &rec.DownloadMbps, &rec.UploadMbps,
			&rec.DownloadMedian, &rec.DownloadP90, &rec.UploadMedian, &rec.UploadP90,
			&rec.DownloadCompleted, &rec.UploadCompleted, &country, &colo, &latencyUS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history run: %w", err)
		}
		rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("history run %s: bad timestamp: %w", rec.ID, err)
		}
		rec.Country = country.String
		rec.Colo = colo.String
		rec.Latency = time.Duration(latencyUS) * time.Microsecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("history run not found")

// Samples returns the per-second samples of run id in direction order.
func (s *Store) Samples(ctx context.Context, id string) ([]engine.Sample, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to query history run: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT direction, second, bytes FROM samples
		WHERE run_id = ? ORDER BY direction = 'upload', second`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history samples: %w", err)
	}
	defer rows.Close()

	var samples []engine.Sample
	for rows.Next() {
		var (
			dir    string
			sample engine.Sample
		)
		if err := rows.Scan(&dir, &sample.Second, &sample.Bytes); err != nil {
			return nil, fmt.Errorf("failed to scan history sample: %w", err)
		}
		if dir == engine.DirectionUpload.String() {
			sample.Direction = engine.DirectionUpload
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}
