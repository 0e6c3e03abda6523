// Package ml trains and evaluates the wildfire classifier and serves a
// persisted model for inference. It holds the seeded train/test split, the
// evaluation report, the feature importance ranking and the model version
// ledger kept next to saved models.
package ml

// PredictorInterface is the inference surface used by the CLIs.
type PredictorInterface interface {
	// Approve reports whether the positive-class probability of features
	// reaches threshold.
	Approve(features []float64, threshold float64) bool

	// Predict returns the positive-class probability.
	Predict(features []float64) (float64, error)
}
