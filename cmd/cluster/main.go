package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"wildfire-rf/internal/cfg"
	"wildfire-rf/internal/cluster"
	"wildfire-rf/internal/forest"
	"wildfire-rf/internal/metrics"
	"wildfire-rf/internal/report"
	"wildfire-rf/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// splitName is the split stored by cmd/train.
const splitName = "default"

func main() {
	var (
		modelPath    = flag.String("model", "", "Trained model to route samples through (overrides config)")
		threshold    = flag.Float64("threshold", 0, "Ward distance threshold for the flat cut (overrides config)")
		maxSamples   = flag.Int("max-samples", 0, "Cluster at most this many samples, 0 for all (overrides config)")
		unsupervised = flag.Bool("unsupervised", false, "Fit a forest against synthetic contrast data instead of loading a model")
		resultsDir   = flag.String("results", "", "Results directory (overrides config)")
		logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
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
		case "threshold":
			config.DistanceThreshold = *threshold
		case "max-samples":
			config.MaxClusterSamples = *maxSamples
		case "unsupervised":
			config.Unsupervised = *unsupervised
		case "results":
			config.ResultsDir = *resultsDir
		}
	})
	if err := config.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
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

	started := time.Now()
	clusterCfg := cluster.Config{
		Threshold:  config.DistanceThreshold,
		MaxSamples: config.MaxClusterSamples,
		Seed:       config.Seed,
		Workers:    config.Workers,
	}
	m := metrics.New()

	var result *cluster.Result
	if config.Unsupervised {
		model, err := cluster.FitUnsupervised(ds.X(), config.Seed,
			forest.WithNumTrees(config.NumTrees),
			forest.WithMaxDepth(config.MaxDepth),
			forest.WithMinSplit(config.MinSplit),
			forest.WithMinLeaf(config.MinLeaf),
			forest.WithMaxFeatures(config.MaxFeatures),
			forest.WithWorkers(config.Workers),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Unsupervised fit failed")
		}
		log.Info().Int("trees", len(model.Trees)).Msg("Contrast forest fitted")
		result, err = cluster.Cluster(model, ds.X(), ds.Indices(), clusterCfg, metrics.NewWrapper(m))
		if err != nil {
			log.Fatal().Err(err).Msg("Clustering failed")
		}
	} else {
		model, err := forest.Load(config.ModelPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", config.ModelPath).Msg("Failed to load model")
		}
		split, ok, err := store.LoadSplit(splitName)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load split")
		}
		if !ok {
			log.Fatal().Str("split", splitName).Msg("No stored split; run train first")
		}
		result, err = cluster.ClusterTraining(model, ds, split, clusterCfg, metrics.NewWrapper(m))
		if err != nil {
			log.Fatal().Err(err).Msg("Clustering failed")
		}
	}

	if err := report.NewReporter(config.ResultsDir).WriteClusters(result); err != nil {
		log.Fatal().Err(err).Msg("Failed to write clustering results")
	}

	mode := "supervised"
	if config.Unsupervised {
		mode = "unsupervised"
	}
	if _, err := store.RecordRun(storage.RunRecord{
		Kind:      "cluster",
		StartedAt: started,
		Duration:  time.Since(started),
		Rows:      len(result.Samples),
		ModelPath: config.ModelPath,
		Parameters: map[string]string{
			"mode":      mode,
			"threshold": strconv.FormatFloat(config.DistanceThreshold, 'f', -1, 64),
			"clusters":  strconv.Itoa(result.NumClusters),
		},
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record run")
	}

	if err := m.WriteTextfile(filepath.Join(config.ResultsDir, "metrics.prom")); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}

	fmt.Printf("%d samples in %d clusters (%s)\n", len(result.Samples), result.NumClusters, mode)
}
