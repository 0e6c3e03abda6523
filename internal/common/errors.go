package common

import "errors"

// Pipeline failure classes. Stages wrap these with context so callers can
// test with errors.Is while logs still carry the failing stage.
var (
	// ErrInvalidConfiguration is fatal and reported before any I/O.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrMissingSample marks an absent sample directory or channel file.
	// The assembler recovers from it by excluding the sample.
	ErrMissingSample = errors.New("missing sample")
	// ErrDataShape means a feature vector disagrees with the channel layout.
	ErrDataShape = errors.New("data shape mismatch")
	// ErrEmptyDataset means no usable rows remain after exclusions.
	ErrEmptyDataset = errors.New("empty dataset")
	// ErrPersistence wraps model save and load failures.
	ErrPersistence = errors.New("persistence failure")
)
