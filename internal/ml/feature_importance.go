package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"wildfire-rf/internal/common"
)

// FeatureScore is one channel's share of the ensemble's impurity decrease.
type FeatureScore struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
	Rank       int     `json:"rank"`
}

// RankFeatures orders channels by descending importance. Equal scores keep
// channel order. Ranks start at 1.
func RankFeatures(names []string, importances []float64) ([]FeatureScore, error) {
	if len(names) != len(importances) {
		return nil, fmt.Errorf("%w: %d feature names for %d importances", common.ErrDataShape, len(names), len(importances))
	}
	scores := make([]FeatureScore, len(names))
	for i, name := range names {
		scores[i] = FeatureScore{Name: name, Importance: importances[i]}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Importance > scores[j].Importance
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores, nil
}

// TopFeatures returns the names of the n highest ranked features.
func TopFeatures(scores []FeatureScore, n int) []string {
	n = min(max(n, 0), len(scores))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = scores[i].Name
	}
	return out
}

// SaveFeatureImportance writes the ranking as indented JSON.
func SaveFeatureImportance(path string, scores []FeatureScore) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(scores, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadFeatureImportance reads a ranking written by SaveFeatureImportance.
func LoadFeatureImportance(path string) ([]FeatureScore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var scores []FeatureScore
	if err := json.Unmarshal(data, &scores); err != nil {
		return nil, fmt.Errorf("parse feature importance %s: %w", path, err)
	}
	return scores, nil
}
