package ml

import (
	"fmt"
	"os"
	"sync"
	"time"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/forest"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLPredictionScoresObserve(float64)
}

// Predictor serves a persisted forest. It is safe for concurrent use and
// can swap in a new model file with Reload.
type Predictor struct {
	mu           sync.RWMutex
	model        *forest.Forest
	modelPath    string
	modelCreated time.Time
	metrics      MetricsInterface
}

var _ PredictorInterface = (*Predictor)(nil)

func New(path string) (*Predictor, error) {
	return NewWithMetrics(path, nil)
}

// NewWithMetrics loads the model at path. A missing or corrupt model fails
// with common.ErrPersistence.
func NewWithMetrics(path string, metrics MetricsInterface) (*Predictor, error) {
	p := &Predictor{modelPath: path, metrics: metrics}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewFromModel wraps an in-memory model, e.g. one just trained.
func NewFromModel(model *forest.Forest, metrics MetricsInterface) *Predictor {
	return &Predictor{model: model, modelCreated: time.Now(), metrics: metrics}
}

// Reload reads the model file again. On failure the current model stays.
func (p *Predictor) Reload() error {
	if p.modelPath == "" {
		return fmt.Errorf("%w: predictor has no model path", common.ErrPersistence)
	}
	model, err := forest.Load(p.modelPath)
	if err != nil {
		return err
	}
	var created time.Time
	if info, err := os.Stat(p.modelPath); err == nil {
		created = info.ModTime()
	} else {
		log.Warn().Err(err).Str("model_path", p.modelPath).Msg("Failed to get model file info")
	}

	p.mu.Lock()
	p.model = model
	p.modelCreated = created
	p.mu.Unlock()

	if p.metrics != nil && !created.IsZero() {
		p.metrics.MLModelAgeSet(time.Since(created).Seconds())
	}
	log.Info().Str("model_path", p.modelPath).Int("trees", len(model.Trees)).Msg("Model loaded")
	return nil
}

// Model returns the forest currently served.
func (p *Predictor) Model() *forest.Forest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// Predict returns the positive-class probability of one feature vector.
func (p *Predictor) Predict(features []float64) (float64, error) {
	if p == nil {
		return 0, fmt.Errorf("%w: predictor is nil", common.ErrInvalidConfiguration)
	}

	start := time.Now()
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()
	if model == nil {
		return 0, fmt.Errorf("%w: no model loaded", common.ErrInvalidConfiguration)
	}

	proba, err := model.Proba(features)
	if p.metrics != nil {
		p.metrics.MLLatencyObserve(time.Since(start).Seconds())
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.MLFailuresInc()
		}
		return 0, err
	}
	if p.metrics != nil {
		p.metrics.MLPredictionsInc()
		p.metrics.MLPredictionScoresObserve(proba)
	}
	return proba, nil
}

// Approve reports whether the positive-class probability reaches
// threshold. Prediction failures are logged and never approve.
func (p *Predictor) Approve(features []float64, threshold float64) bool {
	if p == nil {
		return false
	}
	proba, err := p.Predict(features)
	if err != nil {
		log.Error().Err(err).Int("features", len(features)).Msg("Prediction failed")
		return false
	}
	return proba >= threshold
}

// PredictBatch scores every row and labels it positive when its
// probability exceeds 0.5, matching forest.Predict.
func (p *Predictor) PredictBatch(x [][]float64) (proba []float64, labels []int, err error) {
	proba = make([]float64, len(x))
	labels = make([]int, len(x))
	for i, row := range x {
		v, err := p.Predict(row)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		proba[i] = v
		if v > 0.5 {
			labels[i] = 1
		}
	}
	return proba, labels, nil
}

// ModelAge is the time since the served model file was written.
func (p *Predictor) ModelAge() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.modelCreated.IsZero() {
		return 0
	}
	return time.Since(p.modelCreated)
}
