package main

import (
	"fmt"
	"strconv"
	"strings"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/ml"
)

// parseFeatures reads a comma separated feature vector such as
// "31.5,295.2,0.41".
func parseFeatures(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %v", common.ErrDataShape, i, err)
		}
		out[i] = v
	}
	return out, nil
}

// assessVector reports whether one feature vector reaches threshold.
func assessVector(p ml.PredictorInterface, numFeatures int, raw string, threshold float64) (bool, error) {
	if threshold < 0 || threshold > 1 {
		return false, fmt.Errorf("%w: threshold must be in [0, 1], got %g", common.ErrInvalidConfiguration, threshold)
	}
	features, err := parseFeatures(raw)
	if err != nil {
		return false, err
	}
	if len(features) != numFeatures {
		return false, fmt.Errorf("%w: got %d features, model expects %d", common.ErrDataShape, len(features), numFeatures)
	}
	return p.Approve(features, threshold), nil
}
