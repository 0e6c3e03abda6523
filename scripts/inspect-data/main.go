package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"wildfire-rf/internal/ml"
	"wildfire-rf/internal/report"
	"wildfire-rf/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dataPath = flag.String("data", "data", "Data directory path")
		results  = flag.String("results", "results", "Results directory holding the importance ranking")
		runs     = flag.Int("runs", 10, "Number of most recent runs to list")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	fmt.Printf("Inspecting %s\n", store.Path())

	ds, summary, err := store.LoadDataset()
	if err != nil {
		fmt.Printf("\nNo dataset stored: %v\n", err)
	} else {
		positives := 0
		for _, r := range ds.Rows {
			positives += r.Label
		}
		fmt.Println("\nDataset:")
		if at, ok, err := store.DatasetSavedAt(); err != nil {
			log.Warn().Err(err).Msg("Failed to read dataset timestamp")
		} else if ok {
			fmt.Printf("  Saved: %s\n", at.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("  Channels: %v (label %q)\n", ds.FeatureNames, ds.LabelChannel)
		fmt.Printf("  Rows: %d of %d candidates (%d missing, %d skipped)\n",
			summary.Rows, summary.Expected, summary.Missing, summary.Skipped)
		fmt.Printf("  Class balance: %d burned / %d unburned\n", positives, ds.Len()-positives)
		if len(summary.MissingSamples) > 0 {
			fmt.Printf("  Missing samples: %v\n", summary.MissingSamples)
		}
	}

	if split, ok, err := store.LoadSplit("default"); err != nil {
		fmt.Printf("\nSplit unreadable: %v\n", err)
	} else if ok {
		fmt.Printf("\nSplit: %d train / %d test rows (seed %d, fraction %.2f)\n",
			len(split.Train), len(split.Test), split.Seed, split.TestFraction)
	}

	if ranking, err := ml.LoadFeatureImportance(filepath.Join(*results, report.ImportanceJSONFile)); err != nil {
		fmt.Printf("\nNo feature importance ranking: %v\n", err)
	} else {
		fmt.Println("\nFeature importance:")
		for _, f := range ranking {
			fmt.Printf("  %d. %s: %.4f\n", f.Rank, f.Name, f.Importance)
		}
	}

	records, err := store.ListRuns("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}
	fmt.Printf("\nRuns (%d total):\n", len(records))
	if len(records) > *runs {
		records = records[len(records)-*runs:]
	}
	for _, r := range records {
		fmt.Printf("  #%d %-8s %s rows=%d accuracy=%.4f duration=%s\n",
			r.ID, r.Kind, r.StartedAt.Format("2006-01-02 15:04:05"), r.Rows, r.Accuracy, r.Duration)
	}
}
