package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/features"
	"wildfire-rf/internal/raster"
	"wildfire-rf/internal/tiling"

	"github.com/rs/zerolog/log"
	"github.com/unixpickle/essentials"
)

// MetricsInterface defines metrics methods needed by the assembler
type MetricsInterface interface {
	SamplesProcessedInc()
	SamplesMissingInc()
	SamplesSkippedInc()
}

// Progress is reported every N processed samples and once at the end.
type Progress struct {
	Processed int
	Total     int
}

type ProgressFunc func(Progress)

// Config locates sample directories and their channel files.
type Config struct {
	Root   string
	Prefix string
	Layout *features.Layout

	// Patterns optionally maps a channel to a glob matched against file
	// names inside a sample directory. Channels without a pattern match
	// tile names <channel>_<x>_<y>.tif exactly.
	Patterns map[string]string

	ProgressEvery int
	Workers       int
}

// Assembler builds a Dataset from sample directories.
type Assembler struct {
	cfg      Config
	reader   raster.Reader
	progress ProgressFunc
	metrics  MetricsInterface
}

type Option func(*Assembler)

// WithProgress registers a callback for progress notifications. Calls are
// serialised; Processed never decreases.
func WithProgress(fn ProgressFunc) Option {
	return func(a *Assembler) { a.progress = fn }
}

func WithMetrics(m MetricsInterface) Option {
	return func(a *Assembler) { a.metrics = m }
}

func NewAssembler(cfg Config, reader raster.Reader, opts ...Option) (*Assembler, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: sample root cannot be empty", common.ErrInvalidConfiguration)
	}
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("%w: sample prefix cannot be empty", common.ErrInvalidConfiguration)
	}
	if cfg.Layout == nil {
		return nil, fmt.Errorf("%w: channel layout is required", common.ErrInvalidConfiguration)
	}
	for ch, p := range cfg.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("%w: pattern %q for channel %s: %v", common.ErrInvalidConfiguration, p, ch, err)
		}
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = common.DefaultProgressEvery
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	a := &Assembler{cfg: cfg, reader: reader}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type status int

const (
	statusOK status = iota
	statusMissing
	statusSkipped
)

type outcome struct {
	status status
	sample features.Sample
	reason error
}

// Assemble visits sample identifiers 0..expected-1. Missing or unreadable
// samples and samples without a label are excluded and counted in the
// Summary; neither aborts the run. Row i of the result comes from the i-th
// surviving identifier in ascending order regardless of worker scheduling.
//
// Cancelling ctx stops the run between samples and returns ctx's error with
// a nil Dataset.
func (a *Assembler) Assemble(ctx context.Context, expected int) (*Dataset, Summary, error) {
	if expected < 0 {
		return nil, Summary{}, fmt.Errorf("%w: expected sample count %d", common.ErrInvalidConfiguration, expected)
	}

	results := make([]outcome, expected)
	var (
		mu        sync.Mutex
		processed int
	)

	essentials.ConcurrentMap(a.cfg.Workers, expected, func(i int) {
		if ctx.Err() != nil {
			return
		}
		results[i] = a.loadSample(i)

		if a.metrics != nil {
			a.metrics.SamplesProcessedInc()
		}
		mu.Lock()
		processed++
		if a.progress != nil && (processed%a.cfg.ProgressEvery == 0 || processed == expected) {
			a.progress(Progress{Processed: processed, Total: expected})
		}
		mu.Unlock()
	})

	if err := ctx.Err(); err != nil {
		return nil, Summary{}, fmt.Errorf("assemble: aborted after %d of %d samples: %w", processed, expected, err)
	}

	ds := &Dataset{
		FeatureNames: a.cfg.Layout.Features(),
		LabelChannel: a.cfg.Layout.Label(),
		Rows:         make([]Row, 0, expected),
	}
	summary := Summary{Expected: expected}

	for i, r := range results {
		switch r.status {
		case statusOK:
			ds.Rows = append(ds.Rows, Row{Index: i, Features: r.sample.Features, Label: r.sample.Label})
		case statusMissing:
			summary.Missing++
			summary.MissingSamples = append(summary.MissingSamples, i)
			if a.metrics != nil {
				a.metrics.SamplesMissingInc()
			}
			log.Warn().Int("sample", i).Err(r.reason).Msg("Sample missing, excluded")
		case statusSkipped:
			summary.Skipped++
			summary.SkippedSamples = append(summary.SkippedSamples, i)
			if a.metrics != nil {
				a.metrics.SamplesSkippedInc()
			}
			log.Debug().Int("sample", i).Msg("Sample has no label channel, skipped")
		}
	}
	summary.Rows = len(ds.Rows)

	want := len(ds.FeatureNames)
	for _, r := range ds.Rows {
		if len(r.Features) != want {
			return nil, summary, fmt.Errorf("assemble: %w: sample %d has %d features, expected %d",
				common.ErrDataShape, r.Index, len(r.Features), want)
		}
	}

	log.Info().
		Int("expected", summary.Expected).
		Int("rows", summary.Rows).
		Int("missing", summary.Missing).
		Int("skipped", summary.Skipped).
		Msg("Dataset assembled")

	return ds, summary, nil
}

func (a *Assembler) loadSample(i int) outcome {
	dir := tiling.SampleDir(a.cfg.Root, a.cfg.Prefix, i)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return outcome{status: statusMissing, reason: fmt.Errorf("%w: %v", common.ErrMissingSample, err)}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	layout := a.cfg.Layout
	tiles := make(map[string]*raster.Grid, layout.Len()+1)
	for _, ch := range layout.Channels() {
		file, ok := a.locate(ch, names, i)
		if !ok {
			continue
		}
		g, err := a.reader.Read(filepath.Join(dir, file))
		if err != nil {
			return outcome{status: statusMissing, reason: fmt.Errorf("%w: %v", common.ErrMissingSample, err)}
		}
		tiles[ch] = g
	}

	s, skipped, err := features.Build(tiles, layout)
	switch {
	case skipped:
		return outcome{status: statusSkipped}
	case errors.Is(err, common.ErrMissingSample):
		return outcome{status: statusMissing, reason: err}
	case err != nil:
		return outcome{status: statusMissing, reason: fmt.Errorf("%w: %v", common.ErrMissingSample, err)}
	}
	return outcome{status: statusOK, sample: s}
}

// locate picks the file for a channel. When several match, the first in
// lexical order wins.
func (a *Assembler) locate(channel string, names []string, sample int) (string, bool) {
	var matches []string
	pattern, custom := a.cfg.Patterns[channel]
	for _, n := range names {
		if custom {
			if ok, _ := filepath.Match(pattern, n); ok {
				matches = append(matches, n)
			}
			continue
		}
		if ch, _, _, ok := tiling.ParseTileName(n); ok && ch == channel {
			matches = append(matches, n)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	if len(matches) > 1 {
		log.Warn().Int("sample", sample).Str("channel", channel).Strs("files", matches).Msg("Several files match channel, using first")
	}
	return matches[0], true
}

// CountSamples returns one past the highest sample identifier found under
// root, or 0 when there are none.
func CountSamples(root, prefix string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, fmt.Errorf("read sample root: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), prefix))
		if err != nil || id < 0 {
			continue
		}
		n = max(n, id+1)
	}
	return n, nil
}
