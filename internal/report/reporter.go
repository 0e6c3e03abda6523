// Package report writes training, clustering and prediction results to a
// results directory as plain text, JSON and CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"wildfire-rf/internal/cluster"
	"wildfire-rf/internal/dataset"
	"wildfire-rf/internal/ml"

	"github.com/rs/zerolog/log"
)

// File names inside the results directory.
const (
	ClassificationFile = "classification_report.txt"
	ImportanceFile     = "feature_importance.txt"
	ImportanceJSONFile = "feature_importance.json"
	TrainingJSONFile   = "training_report.json"
	ClustersFile       = "clustering_results.txt"
	PredictionsFile    = "predictions.csv"
)

// Reporter writes result files under one directory.
type Reporter struct {
	outputPath string
}

func NewReporter(outputPath string) *Reporter {
	return &Reporter{outputPath: outputPath}
}

func (r *Reporter) path(name string) string {
	return filepath.Join(r.outputPath, name)
}

func (r *Reporter) create(name string) (*os.File, error) {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(r.path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return f, nil
}

// Training is everything a training run reports.
type Training struct {
	Report    ml.Report       `json:"report"`
	Summary   dataset.Summary `json:"dataset"`
	ModelPath string          `json:"model_path"`
	Seed      uint64          `json:"seed"`
	NumTrees  int             `json:"num_trees"`
}

// WriteTraining writes the classification report, the importance ranking
// as text and JSON, and a JSON document with both.
func (r *Reporter) WriteTraining(t Training) error {
	if err := r.writeFile(ClassificationFile, func(w io.Writer) error {
		return WriteClassification(w, t.Report, t.Summary)
	}); err != nil {
		return err
	}
	if err := r.writeFile(ImportanceFile, func(w io.Writer) error {
		return WriteImportance(w, t.Report.Importances)
	}); err != nil {
		return err
	}
	if err := ml.SaveFeatureImportance(r.path(ImportanceJSONFile), t.Report.Importances); err != nil {
		return fmt.Errorf("failed to write importance JSON: %w", err)
	}

	doc := struct {
		Training
		GeneratedAt time.Time `json:"generated_at"`
	}{t, time.Now().UTC()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(r.path(TrainingJSONFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("dir", r.outputPath).Msg("Training report generated")
	return nil
}

func (r *Reporter) writeFile(name string, fn func(io.Writer) error) error {
	f, err := r.create(name)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

// WriteClassification renders the confusion matrix and per-class table.
func WriteClassification(w io.Writer, rep ml.Report, summary dataset.Summary) error {
	p := &printer{w: w}
	p.printf("CLASSIFICATION REPORT\n")
	p.printf("=====================\n\n")

	p.printf("DATASET\n")
	p.printf("-------\n")
	p.printf("Samples expected: %d\n", summary.Expected)
	p.printf("Rows used: %d\n", summary.Rows)
	p.printf("Missing samples: %d\n", summary.Missing)
	p.printf("Skipped (no label): %d\n", summary.Skipped)
	p.printf("Train rows: %d\n", rep.TrainRows)
	p.printf("Test rows: %d\n\n", rep.TestRows)

	c := rep.Confusion
	p.printf("CONFUSION MATRIX\n")
	p.printf("----------------\n")
	p.printf("%-12s%12s%12s\n", "", "pred 0", "pred 1")
	p.printf("%-12s%12d%12d\n", "actual 0", c.TN, c.FP)
	p.printf("%-12s%12d%12d\n\n", "actual 1", c.FN, c.TP)

	p.printf("%-14s%10s%10s%10s%10s\n", "", "precision", "recall", "f1-score", "support")
	for class, s := range rep.Classes {
		p.printf("%-14d%10.2f%10.2f%10.2f%10d\n", class, s.Precision, s.Recall, s.F1, s.Support)
	}
	p.printf("\n%-14s%10s%10s%10.2f%10d\n", "accuracy", "", "", rep.Accuracy, c.Total())
	for _, row := range []struct {
		name string
		s    ml.ClassStats
	}{{"macro avg", rep.MacroAvg}, {"weighted avg", rep.WeightedAvg}} {
		p.printf("%-14s%10.2f%10.2f%10.2f%10d\n", row.name, row.s.Precision, row.s.Recall, row.s.F1, row.s.Support)
	}
	return p.err
}

// WriteImportance writes one ranked line per feature.
func WriteImportance(w io.Writer, scores []ml.FeatureScore) error {
	p := &printer{w: w}
	p.printf("FEATURE IMPORTANCE\n")
	p.printf("------------------\n")
	for _, s := range scores {
		p.printf("%d. %s: %.4f\n", s.Rank, s.Name, s.Importance)
	}
	return p.err
}

// WriteClusters writes one "Observation: <sample>, Cluster: <id>" line per
// clustered sample.
func (r *Reporter) WriteClusters(res *cluster.Result) error {
	err := r.writeFile(ClustersFile, func(w io.Writer) error {
		p := &printer{w: w}
		for i, s := range res.Samples {
			p.printf("Observation: %d, Cluster: %d\n", s, res.Clusters[i])
		}
		return p.err
	})
	if err != nil {
		return err
	}
	log.Info().Str("file", r.path(ClustersFile)).Int("clusters", res.NumClusters).Msg("Clustering results written")
	return nil
}

// Prediction is one scored held-out sample. AtRisk marks a probability
// at or above the caller's alert threshold.
type Prediction struct {
	Sample      int
	Probability float64
	Predicted   int
	Actual      int
	AtRisk      bool
}

// WritePredictions writes a CSV with a header row.
func (r *Reporter) WritePredictions(preds []Prediction) error {
	err := r.writeFile(PredictionsFile, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{"sample_index", "probability", "predicted", "actual", "at_risk"}); err != nil {
			return err
		}
		for _, p := range preds {
			record := []string{
				strconv.Itoa(p.Sample),
				strconv.FormatFloat(p.Probability, 'f', 6, 64),
				strconv.Itoa(p.Predicted),
				strconv.Itoa(p.Actual),
				strconv.FormatBool(p.AtRisk),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
	if err != nil {
		return err
	}
	log.Info().Str("file", r.path(PredictionsFile)).Int("rows", len(preds)).Msg("Predictions written")
	return nil
}

// printer keeps the first write error so report bodies stay linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
