package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/dataset"
	"wildfire-rf/internal/ml"

	"go.etcd.io/bbolt"
)

var (
	keyFeatureNames = []byte("feature_names")
	keyLabelChannel = []byte("label_channel")
	keySummary      = []byte("summary")
	keySavedAt      = []byte("saved_at")
)

type sampleRecord struct {
	Features []float64 `json:"features"`
	Label    int       `json:"label"`
}

// SaveDataset replaces the stored dataset in a single transaction and
// drops all stored splits, whose row positions refer to the old dataset.
func (s *Store) SaveDataset(ds *dataset.Dataset, summary dataset.Summary) error {
	if err := ds.Validate(); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{samplesBucket, splitsBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return fmt.Errorf("clear %s bucket: %w", name, err)
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}

		samples := tx.Bucket([]byte(samplesBucket))
		for _, r := range ds.Rows {
			data, err := json.Marshal(sampleRecord{Features: r.Features, Label: r.Label})
			if err != nil {
				return fmt.Errorf("marshal sample %d: %w", r.Index, err)
			}
			if err := samples.Put(itob(uint64(r.Index)), data); err != nil {
				return fmt.Errorf("store sample %d: %w", r.Index, err)
			}
		}

		meta := tx.Bucket([]byte(metaBucket))
		names, err := json.Marshal(ds.FeatureNames)
		if err != nil {
			return fmt.Errorf("marshal feature names: %w", err)
		}
		sum, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		savedAt, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		for k, v := range map[string][]byte{
			string(keyFeatureNames): names,
			string(keyLabelChannel): []byte(ds.LabelChannel),
			string(keySummary):      sum,
			string(keySavedAt):      savedAt,
		} {
			if err := meta.Put([]byte(k), v); err != nil {
				return fmt.Errorf("store %s: %w", k, err)
			}
		}
		return nil
	})
}

// LoadDataset returns the stored dataset with rows in sample index order.
// It fails with common.ErrEmptyDataset when nothing has been saved.
func (s *Store) LoadDataset() (*dataset.Dataset, dataset.Summary, error) {
	ds := &dataset.Dataset{}
	var summary dataset.Summary

	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		names := meta.Get(keyFeatureNames)
		if names == nil {
			return fmt.Errorf("load dataset: %w: no dataset stored", common.ErrEmptyDataset)
		}
		if err := json.Unmarshal(names, &ds.FeatureNames); err != nil {
			return fmt.Errorf("load dataset: decode feature names: %w", err)
		}
		ds.LabelChannel = string(meta.Get(keyLabelChannel))
		if raw := meta.Get(keySummary); raw != nil {
			if err := json.Unmarshal(raw, &summary); err != nil {
				return fmt.Errorf("load dataset: decode summary: %w", err)
			}
		}

		return tx.Bucket([]byte(samplesBucket)).ForEach(func(k, v []byte) error {
			var rec sampleRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("load dataset: decode sample: %w", err)
			}
			ds.Rows = append(ds.Rows, dataset.Row{
				Index:    int(binary.BigEndian.Uint64(k)),
				Features: rec.Features,
				Label:    rec.Label,
			})
			return nil
		})
	})
	if err != nil {
		return nil, dataset.Summary{}, err
	}
	if err := ds.Validate(); err != nil {
		return nil, dataset.Summary{}, fmt.Errorf("load dataset: %w", err)
	}
	return ds, summary, nil
}

// DatasetSavedAt reports when the stored dataset was written. ok is false
// when no dataset has been saved.
func (s *Store) DatasetSavedAt() (at time.Time, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(metaBucket)).Get(keySavedAt)
		if raw == nil {
			return nil
		}
		if err := at.UnmarshalText(raw); err != nil {
			return fmt.Errorf("%w: decode dataset timestamp: %v", common.ErrPersistence, err)
		}
		ok = true
		return nil
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return at, ok, nil
}

// SaveSplit stores a partition of the current dataset's rows under name.
func (s *Store) SaveSplit(name string, split ml.Split) error {
	data, err := json.Marshal(split)
	if err != nil {
		return fmt.Errorf("marshal split: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(splitsBucket)).Put([]byte(name), data)
	})
}

// LoadSplit returns the named split; ok is false when none is stored.
func (s *Store) LoadSplit(name string) (split ml.Split, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(splitsBucket)).Get([]byte(name))
		if raw == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(raw, &split)
	})
	if err != nil {
		return ml.Split{}, false, fmt.Errorf("load split %s: %w", name, err)
	}
	return split, ok, nil
}
