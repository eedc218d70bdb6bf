package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"churnguard/scoring"
)

// SQLiteHistory stores outcomes in a SQLite database.
type SQLiteHistory struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and creates the schema.
func OpenSQLite(path string) (*SQLiteHistory, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}

	h := &SQLiteHistory{db: database}
	if err := h.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return h, nil
}

func (h *SQLiteHistory) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        probability REAL NOT NULL,
        high_risk INTEGER NOT NULL,
        threshold REAL NOT NULL,
        expected_cost REAL,
        bundle_name TEXT,
        bundle_version TEXT,
        evaluated_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_evaluated_at ON predictions(evaluated_at);
    `
	_, err := h.db.Exec(query)
	return err
}

func (h *SQLiteHistory) RecordPrediction(ctx context.Context, result *scoring.Result) error {
	if result == nil {
		return errors.New("nil result")
	}
	var cost sql.NullFloat64
	if result.ExpectedCost != nil {
		cost = sql.NullFloat64{Float64: *result.ExpectedCost, Valid: true}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.db.ExecContext(ctx, `
        INSERT INTO predictions (
            id, probability, high_risk, threshold, expected_cost,
            bundle_name, bundle_version, evaluated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID,
		result.Probability,
		result.HighRisk,
		result.Threshold,
		cost,
		result.BundleName,
		result.BundleVersion,
		result.EvaluatedAt.UTC(),
	)
	return err
}

// Recent returns up to limit outcomes, newest first.
func (h *SQLiteHistory) Recent(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.QueryContext(ctx, `
        SELECT id, probability, high_risk, threshold, expected_cost,
               bundle_name, bundle_version, evaluated_at
        FROM predictions
        ORDER BY evaluated_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var r PredictionRecord
		var cost sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Probability, &r.HighRisk, &r.Threshold, &cost,
			&r.BundleName, &r.BundleVersion, &r.EvaluatedAt); err != nil {
			return nil, err
		}
		if cost.Valid {
			v := cost.Float64
			r.ExpectedCost = &v
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Purge deletes outcomes evaluated before the cutoff and reports how many went.
func (h *SQLiteHistory) Purge(ctx context.Context, before time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	res, err := h.db.ExecContext(ctx, `DELETE FROM predictions WHERE evaluated_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
