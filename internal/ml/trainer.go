package ml

import (
	"fmt"
	"time"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/dataset"
	"wildfire-rf/internal/forest"

	"github.com/rs/zerolog/log"
)

// TrainerMetrics defines metrics methods needed by the trainer
type TrainerMetrics interface {
	TrainingDurationObserve(float64)
	ModelAccuracySet(float64)
}

type TrainConfig struct {
	TestFraction float64
	Seed         uint64
	// Forest options are applied after the seed, so an explicit
	// forest.WithSeed overrides Seed for the ensemble only.
	Forest []forest.Option
}

// Trainer splits a dataset, fits a forest on the training rows and scores
// it on the held-out rows.
type Trainer struct {
	cfg     TrainConfig
	metrics TrainerMetrics
}

// Result is the outcome of one training run.
type Result struct {
	Model  *forest.Forest
	Split  Split
	Report Report
}

func NewTrainer(cfg TrainConfig, metrics TrainerMetrics) (*Trainer, error) {
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		return nil, fmt.Errorf("%w: test fraction must be in (0, 1), got %g", common.ErrInvalidConfiguration, cfg.TestFraction)
	}
	return &Trainer{cfg: cfg, metrics: metrics}, nil
}

// Train validates ds, draws the seeded split and fits and evaluates the
// model. A dataset with inconsistent feature vectors fails with
// common.ErrDataShape before any fitting; one without rows fails with
// common.ErrEmptyDataset.
func (t *Trainer) Train(ds *dataset.Dataset) (*Result, error) {
	if ds == nil {
		return nil, fmt.Errorf("train: %w: no dataset", common.ErrEmptyDataset)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	split, err := SplitRows(ds.Len(), t.cfg.TestFraction, t.cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	return t.TrainSplit(ds, split)
}

// TrainSplit fits and evaluates on a given split, for reruns against a
// stored partition.
func (t *Trainer) TrainSplit(ds *dataset.Dataset, split Split) (*Result, error) {
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if err := split.Validate(ds.Len()); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	start := time.Now()
	x, y := ds.Subset(split.Train)
	opts := append([]forest.Option{forest.WithSeed(t.cfg.Seed)}, t.cfg.Forest...)
	model := forest.New(opts...)
	if err := model.Fit(x, y); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	elapsed := time.Since(start)

	report, err := Evaluate(model, ds, split.Test)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	report.TrainRows = len(split.Train)

	if t.metrics != nil {
		t.metrics.TrainingDurationObserve(elapsed.Seconds())
		t.metrics.ModelAccuracySet(report.Accuracy)
	}

	log.Info().
		Int("train_rows", report.TrainRows).
		Int("test_rows", report.TestRows).
		Int("trees", len(model.Trees)).
		Float64("accuracy", report.Accuracy).
		Dur("elapsed", elapsed).
		Msg("Model trained")

	return &Result{Model: model, Split: split, Report: report}, nil
}

// Evaluate scores model on the given dataset rows and attaches the feature
// importance ranking.
func Evaluate(model *forest.Forest, ds *dataset.Dataset, rows []int) (Report, error) {
	x, y := ds.Subset(rows)
	pred, err := model.Predict(x)
	if err != nil {
		return Report{}, fmt.Errorf("evaluate: %w", err)
	}
	report, err := Score(pred, y)
	if err != nil {
		return Report{}, fmt.Errorf("evaluate: %w", err)
	}
	report.Importances, err = RankFeatures(ds.FeatureNames, model.Importances())
	if err != nil {
		return Report{}, fmt.Errorf("evaluate: %w", err)
	}
	return report, nil
}

// Persist saves the fitted model. Failures wrap common.ErrPersistence.
func (r *Result) Persist(path string) error {
	if err := r.Model.Save(path); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	return nil
}
