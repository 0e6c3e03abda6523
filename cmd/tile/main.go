package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"wildfire-rf/internal/cfg"
	"wildfire-rf/internal/metrics"
	"wildfire-rf/internal/raster"
	"wildfire-rf/internal/tiling"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var flags tileFlags
	flags.register(flag.CommandLine)
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
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
	flags.apply(flag.CommandLine, &config)
	if err := config.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	tiler, err := tiling.NewTiler(raster.TIFF{}, config.DestDir, config.SamplePrefix,
		config.WindowSize, config.Overlap, metrics.NewWrapper(m))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create tiler")
	}

	src := config.SourceDir
	if raster.IsRemote(src) {
		fetcher := raster.NewFetcher(config.CacheDir, 5*time.Minute)
		if src, err = fetcher.Fetch(ctx, src); err != nil {
			log.Fatal().Err(err).Msg("Failed to fetch source raster")
		}
	}

	info, err := os.Stat(src)
	if err != nil {
		log.Fatal().Err(err).Str("source", src).Msg("Source not found")
	}

	start := time.Now()
	if info.IsDir() {
		counts, err := tiler.SplitDir(ctx, src)
		if err != nil {
			log.Fatal().Err(err).Msg("Tiling failed")
		}
		for channel, n := range counts {
			log.Info().Str("channel", channel).Int("tiles", n).Msg("Channel tiled")
		}
	} else {
		channel := flags.name
		if channel == "" {
			channel = tiling.ChannelFromPath(src)
		}
		n, err := tiler.Split(ctx, src, channel)
		if err != nil {
			log.Fatal().Err(err).Msg("Tiling failed")
		}
		log.Info().Str("channel", channel).Int("tiles", n).Msg("Channel tiled")
	}

	if err := m.WriteTextfile(filepath.Join(config.ResultsDir, "metrics.prom")); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}
	log.Info().Str("dest", config.DestDir).Dur("elapsed", time.Since(start)).Msg("Tiling complete")
}
