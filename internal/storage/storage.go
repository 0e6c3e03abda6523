// Package storage persists assembled datasets, train/test splits and a run
// history in a BoltDB file. A dataset is always stored whole: saving one
// replaces the previous dataset and invalidates every stored split.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	metaBucket    = "meta"    // dataset header: channel names, summary
	samplesBucket = "samples" // one record per dataset row, keyed by sample index
	splitsBucket  = "splits"  // named train/test partitions
	runsBucket    = "runs"    // append-only run history

	dbFileName = "wildfire-rf.db"
)

// Store provides persistent storage for pipeline artefacts using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens or creates the database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{metaBucket, samplesBucket, splitsBucket, runsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is harmless.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.db.Path()
}

// RunRecord describes one CLI invocation.
type RunRecord struct {
	ID         uint64            `json:"id"`
	Kind       string            `json:"kind"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
	Rows       int               `json:"rows"`
	Accuracy   float64           `json:"accuracy,omitempty"`
	ModelPath  string            `json:"model_path,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// RecordRun appends a run and returns its assigned id.
func (s *Store) RecordRun(run RunRecord) (uint64, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		id, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next run id: %w", err)
		}
		run.ID = id

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		return b.Put(itob(id), data)
	})
	return run.ID, err
}

// ListRuns returns runs oldest first, optionally only those of one kind.
func (s *Store) ListRuns(kind string) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(_, v []byte) error {
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				return nil // Skip malformed records
			}
			if kind == "" || run.Kind == kind {
				runs = append(runs, run)
			}
			return nil
		})
	})
	return runs, err
}

// itob encodes big-endian so cursor order matches numeric order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
