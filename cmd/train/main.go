package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"wildfire-rf/internal/cfg"
	"wildfire-rf/internal/dataset"
	"wildfire-rf/internal/features"
	"wildfire-rf/internal/forest"
	"wildfire-rf/internal/metrics"
	"wildfire-rf/internal/ml"
	"wildfire-rf/internal/raster"
	"wildfire-rf/internal/report"
	"wildfire-rf/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// splitName keys the held-out split the predict command reuses.
const splitName = "default"

func main() {
	var (
		root       = flag.String("data", "", "Root holding sample directories (overrides config dest dir)")
		expected   = flag.Int("expected", 0, "Number of candidate samples (default: count sample directories)")
		testFrac   = flag.Float64("test-fraction", 0, "Held-out fraction in (0, 1) (overrides config)")
		seed       = flag.Uint64("seed", 0, "Random seed for the split and the forest (overrides config)")
		trees      = flag.Int("trees", 0, "Number of trees (overrides config)")
		modelPath  = flag.String("model", "", "Output model path (overrides config)")
		resultsDir = flag.String("results", "", "Results directory (overrides config)")
		fromStore  = flag.Bool("from-store", false, "Train on the dataset saved by a previous run instead of reading tiles")
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
		case "data":
			config.DestDir = *root
		case "expected":
			config.ExpectedSamples = *expected
		case "test-fraction":
			config.TestFraction = *testFrac
		case "seed":
			config.Seed = *seed
		case "trees":
			config.NumTrees = *trees
		case "model":
			config.ModelPath = *modelPath
		case "results":
			config.ResultsDir = *resultsDir
		}
	})
	if err := config.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store, err := storage.New(config.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	started := time.Now()
	var (
		ds      *dataset.Dataset
		summary dataset.Summary
	)
	if *fromStore {
		ds, summary, err = store.LoadDataset()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load stored dataset")
		}
		log.Info().Int("rows", ds.Len()).Msg("Loaded stored dataset")
	} else {
		ds, summary, err = assemble(ctx, config, mw)
		if err != nil {
			log.Fatal().Err(err).Msg("Dataset assembly failed")
		}
		if err := store.SaveDataset(ds, summary); err != nil {
			log.Fatal().Err(err).Msg("Failed to save dataset")
		}
		mirrorSamples(ctx, config, ds, started)
	}

	trainer, err := ml.NewTrainer(ml.TrainConfig{
		TestFraction: config.TestFraction,
		Seed:         config.Seed,
		Forest: []forest.Option{
			forest.WithNumTrees(config.NumTrees),
			forest.WithMaxDepth(config.MaxDepth),
			forest.WithMinSplit(config.MinSplit),
			forest.WithMinLeaf(config.MinLeaf),
			forest.WithMaxFeatures(config.MaxFeatures),
			forest.WithWorkers(config.Workers),
		},
	}, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid trainer configuration")
	}

	result, err := trainer.Train(ds)
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}
	if err := result.Persist(config.ModelPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to save model")
	}
	if err := store.SaveSplit(splitName, result.Split); err != nil {
		log.Error().Err(err).Msg("Failed to save split")
	}
	log.Info().Strs("top_features", ml.TopFeatures(result.Report.Importances, 3)).Msg("Feature ranking")

	reporter := report.NewReporter(config.ResultsDir)
	if err := reporter.WriteTraining(report.Training{
		Report:    result.Report,
		Summary:   summary,
		ModelPath: config.ModelPath,
		Seed:      config.Seed,
		NumTrees:  config.NumTrees,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to write training report")
	}

	manager, err := ml.NewModelManager(config.ModelPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open model ledger")
	} else if v, err := manager.AddVersion(ml.MetricsFromReport(result.Report, config.NumTrees)); err != nil {
		log.Error().Err(err).Msg("Failed to record model version")
	} else {
		log.Info().Str("version", v.Version).Msg("Model version recorded")
	}

	if _, err := store.RecordRun(storage.RunRecord{
		Kind:      "train",
		StartedAt: started,
		Duration:  time.Since(started),
		Rows:      ds.Len(),
		Accuracy:  result.Report.Accuracy,
		ModelPath: config.ModelPath,
		Parameters: map[string]string{
			"seed":          strconv.FormatUint(config.Seed, 10),
			"num_trees":     strconv.Itoa(config.NumTrees),
			"test_fraction": strconv.FormatFloat(config.TestFraction, 'f', -1, 64),
		},
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record run")
	}

	if err := m.WriteTextfile(filepath.Join(config.ResultsDir, "metrics.prom")); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}

	fmt.Printf("Accuracy: %.4f (%d train / %d test rows)\n",
		result.Report.Accuracy, result.Report.TrainRows, result.Report.TestRows)
}

func assemble(ctx context.Context, config cfg.Settings, mw *metrics.MetricsWrapper) (*dataset.Dataset, dataset.Summary, error) {
	layout, err := features.NewLayout(config.FeatureChannels(), config.LabelChannel)
	if err != nil {
		return nil, dataset.Summary{}, err
	}

	expected := config.ExpectedSamples
	if expected == 0 {
		if expected, err = dataset.CountSamples(config.DestDir, config.SamplePrefix); err != nil {
			return nil, dataset.Summary{}, err
		}
	}

	bar := progressbar.Default(int64(expected), "assembling samples")
	defer bar.Finish()

	assembler, err := dataset.NewAssembler(dataset.Config{
		Root:          config.DestDir,
		Prefix:        config.SamplePrefix,
		Layout:        layout,
		Patterns:      config.ChannelPatterns,
		ProgressEvery: config.ProgressEvery,
		Workers:       config.Workers,
	}, raster.TIFF{},
		dataset.WithMetrics(mw),
		dataset.WithProgress(func(p dataset.Progress) { _ = bar.Set(p.Processed) }),
	)
	if err != nil {
		return nil, dataset.Summary{}, err
	}
	return assembler.Assemble(ctx, expected)
}

// mirrorSamples copies the assembled rows to Postgres when configured.
// Failures are logged; the local store stays authoritative.
func mirrorSamples(ctx context.Context, config cfg.Settings, ds *dataset.Dataset, started time.Time) {
	if config.PostgresURL == "" {
		return
	}
	db, err := storage.ConnectPostgres(ctx, config.PostgresURL)
	if err != nil {
		log.Warn().Err(err).Msg("Postgres mirror unavailable")
		return
	}
	defer db.Close()

	runID := started.UTC().Format("20060102T150405Z")
	if err := storage.NewPostgresSampleRecorder(db).RecordSamples(ctx, runID, ds); err != nil {
		log.Warn().Err(err).Msg("Failed to mirror samples")
		return
	}
	log.Info().Str("run_id", runID).Int("rows", ds.Len()).Msg("Samples mirrored to Postgres")
}
