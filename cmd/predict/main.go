package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wildfire-rf/internal/cfg"
	"wildfire-rf/internal/metrics"
	"wildfire-rf/internal/ml"
	"wildfire-rf/internal/report"
	"wildfire-rf/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		modelPath  = flag.String("model", "", "Trained model path (overrides config)")
		split      = flag.String("split", "default", "Name of the stored split to score")
		all        = flag.Bool("all", false, "Score every stored row instead of the held-out split")
		resultsDir = flag.String("results", "", "Results directory (overrides config)")
		threshold  = flag.Float64("threshold", 0.5, "Probability at or above which a sample is marked at risk")
		vector     = flag.String("features", "", "Assess one comma separated feature vector instead of stored rows")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			config.ModelPath = *modelPath
		case "results":
			config.ResultsDir = *resultsDir
		}
	})
	if *threshold < 0 || *threshold > 1 {
		log.Fatal().Float64("threshold", *threshold).Msg("Threshold must be in [0, 1]")
	}

	m := metrics.New()
	predictor, err := ml.NewWithMetrics(config.ModelPath, metrics.NewWrapper(m))
	if err != nil {
		log.Fatal().Err(err).Str("path", config.ModelPath).Msg("Failed to load model")
	}

	if *vector != "" {
		atRisk, err := assessVector(predictor, predictor.Model().NumFeatures, *vector, *threshold)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid feature vector")
		}
		fmt.Printf("at risk: %t (threshold %.2f)\n", atRisk, *threshold)
		return
	}

	store, err := storage.New(config.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	ds, _, err := store.LoadDataset()
	if err != nil {
		log.Fatal().Err(err).Msg("No stored dataset; run train first")
	}

	var rows []int
	if *all {
		rows = make([]int, ds.Len())
		for i := range rows {
			rows[i] = i
		}
	} else {
		s, ok, err := store.LoadSplit(*split)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load split")
		}
		if !ok {
			log.Fatal().Str("split", *split).Msg("Split not found; run train first")
		}
		if err := s.Validate(ds.Len()); err != nil {
			log.Fatal().Err(err).Msg("Stored split does not match stored dataset")
		}
		rows = s.Test
	}

	started := time.Now()
	x, y := ds.Subset(rows)
	proba, labels, err := predictor.PredictBatch(x)
	if err != nil {
		log.Fatal().Err(err).Msg("Prediction failed")
	}

	indices := ds.Indices()
	preds := make([]report.Prediction, len(rows))
	for i, r := range rows {
		preds[i] = report.Prediction{
			Sample:      indices[r],
			Probability: proba[i],
			Predicted:   labels[i],
			Actual:      y[i],
			AtRisk:      proba[i] >= *threshold,
		}
	}

	score, err := ml.Score(labels, y)
	if err != nil {
		log.Fatal().Err(err).Msg("Scoring failed")
	}

	if err := report.NewReporter(config.ResultsDir).WritePredictions(preds); err != nil {
		log.Fatal().Err(err).Msg("Failed to write predictions")
	}

	if _, err := store.RecordRun(storage.RunRecord{
		Kind:      "predict",
		StartedAt: started,
		Duration:  time.Since(started),
		Rows:      len(rows),
		Accuracy:  score.Accuracy,
		ModelPath: config.ModelPath,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record run")
	}

	if err := m.WriteTextfile(filepath.Join(config.ResultsDir, "metrics.prom")); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}

	fmt.Printf("Scored %d rows, accuracy %.4f, model age %s\n",
		len(rows), score.Accuracy, predictor.ModelAge().Round(time.Second))
}
