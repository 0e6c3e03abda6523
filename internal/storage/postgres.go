package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"wildfire-rf/internal/dataset"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// SampleRecorder mirrors assembled samples into an external store.
type SampleRecorder interface {
	RecordSamples(ctx context.Context, runID string, ds *dataset.Dataset) error
}

// Schema creates the mirror table when it does not exist.
const Schema = `
	CREATE TABLE IF NOT EXISTS training_samples (
		run_id        TEXT NOT NULL,
		sample_index  INTEGER NOT NULL,
		features      JSONB NOT NULL,
		feature_names JSONB NOT NULL,
		label         SMALLINT NOT NULL,
		recorded_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (run_id, sample_index)
	)`

type PostgresSampleRecorder struct {
	db *sqlx.DB
}

func NewPostgresSampleRecorder(db *sqlx.DB) *PostgresSampleRecorder {
	return &PostgresSampleRecorder{db: db}
}

// ConnectPostgres opens connStr with the lib/pq driver and ensures the
// mirror table exists.
func ConnectPostgres(ctx context.Context, connStr string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create training_samples: %w", err)
	}
	return db, nil
}

// RecordSamples inserts every row of ds under runID in one transaction.
func (r *PostgresSampleRecorder) RecordSamples(ctx context.Context, runID string, ds *dataset.Dataset) error {
	const query = `
		INSERT INTO training_samples (
			run_id, sample_index, features, feature_names, label, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW()
		)
		ON CONFLICT (run_id, sample_index) DO UPDATE
		SET features = EXCLUDED.features, label = EXCLUDED.label`

	names, err := json.Marshal(ds.FeatureNames)
	if err != nil {
		return fmt.Errorf("failed to marshal feature names: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, row := range ds.Rows {
		features, err := json.Marshal(row.Features)
		if err != nil {
			return fmt.Errorf("failed to marshal features: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, runID, row.Index, features, names, row.Label); err != nil {
			return fmt.Errorf("insert sample %d: %w", row.Index, err)
		}
	}
	return tx.Commit()
}
