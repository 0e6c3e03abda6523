package cfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"wildfire-rf/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	SourceDir    string
	DestDir      string
	SamplePrefix string
	CacheDir     string
	WindowSize   int
	Overlap      float64

	Channels     []string
	LabelChannel string
	// ChannelPatterns maps a channel to a glob for its tile file name,
	// replacing the default "<channel>_*.tif".
	ChannelPatterns map[string]string
	ExpectedSamples int
	ProgressEvery   int
	Workers         int

	TestFraction float64
	Seed         uint64
	NumTrees     int
	MaxDepth     int
	MinSplit     int
	MinLeaf      int
	MaxFeatures  int
	ModelPath    string
	ResultsDir   string

	DistanceThreshold float64
	MaxClusterSamples int
	Unsupervised      bool

	DataPath    string
	PostgresURL string
}

type ConfigFile struct {
	Tiling struct {
		SourceDir    string  `yaml:"sourceDir"`
		DestDir      string  `yaml:"destDir"`
		SamplePrefix string  `yaml:"samplePrefix"`
		CacheDir     string  `yaml:"cacheDir"`
		WindowSize   int     `yaml:"windowSize"`
		Overlap      float64 `yaml:"overlap"`
	} `yaml:"tiling"`

	Dataset struct {
		Channels        []string          `yaml:"channels"`
		LabelChannel    string            `yaml:"labelChannel"`
		ChannelPatterns map[string]string `yaml:"channelPatterns"`
		ExpectedSamples int               `yaml:"expectedSamples"`
		ProgressEvery   int               `yaml:"progressEvery"`
		Workers         int               `yaml:"workers"`
	} `yaml:"dataset"`

	Training struct {
		TestFraction float64 `yaml:"testFraction"`
		Seed         uint64  `yaml:"seed"`
		NumTrees     int     `yaml:"numTrees"`
		MaxDepth     int     `yaml:"maxDepth"`
		MinSplit     int     `yaml:"minSplit"`
		MinLeaf      int     `yaml:"minLeaf"`
		MaxFeatures  int     `yaml:"maxFeatures"`
		ModelPath    string  `yaml:"modelPath"`
		ResultsDir   string  `yaml:"resultsDir"`
	} `yaml:"training"`

	Clustering struct {
		DistanceThreshold float64 `yaml:"distanceThreshold"`
		MaxSamples        int     `yaml:"maxSamples"`
		Unsupervised      bool    `yaml:"unsupervised"`
	} `yaml:"clustering"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		PostgresURL string `yaml:"postgresURL"`
	} `yaml:"system"`
}

// Load builds Settings from defaults, an optional YAML file named by
// CONFIG_FILE, and environment overrides, in that order. A .env file is
// loaded first when present; it never replaces variables already set.
func Load() (Settings, error) {
	envFile := getEnvOrDefault(common.EnvEnvFile, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Settings{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	config := defaultConfigFile()
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		if err := loadFromYAML(configPath, &config); err != nil {
			return Settings{}, err
		}
	}

	settings := applyEnv(config)
	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func defaultConfigFile() ConfigFile {
	var c ConfigFile
	c.Tiling.SourceDir = common.DefaultSourceDir
	c.Tiling.DestDir = common.DefaultDestDir
	c.Tiling.SamplePrefix = common.DefaultSamplePrefix
	c.Tiling.CacheDir = common.DefaultCacheDir
	c.Tiling.WindowSize = common.DefaultWindowSize
	c.Tiling.Overlap = common.DefaultOverlap
	c.Dataset.Channels = slices.Clone(common.DefaultChannels)
	c.Dataset.LabelChannel = common.DefaultLabelChannel
	c.Dataset.ProgressEvery = common.DefaultProgressEvery
	c.Training.TestFraction = common.DefaultTestFraction
	c.Training.Seed = common.DefaultSeed
	c.Training.NumTrees = common.DefaultNumTrees
	c.Training.MinSplit = common.DefaultMinSplit
	c.Training.MinLeaf = common.DefaultMinLeaf
	c.Training.ModelPath = common.DefaultModelPath
	c.Training.ResultsDir = common.DefaultResultsDir
	c.Clustering.DistanceThreshold = common.DefaultDistanceThreshold
	c.System.DataPath = common.DefaultDataPath
	return c
}

// loadFromYAML decodes onto the defaults so omitted keys keep their value.
func loadFromYAML(path string, config *ConfigFile) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(c ConfigFile) Settings {
	return Settings{
		SourceDir:    getEnvOrDefault(common.EnvSourceDir, c.Tiling.SourceDir),
		DestDir:      getEnvOrDefault(common.EnvDestDir, c.Tiling.DestDir),
		SamplePrefix: getEnvOrDefault(common.EnvSamplePrefix, c.Tiling.SamplePrefix),
		CacheDir:     getEnvOrDefault(common.EnvCacheDir, c.Tiling.CacheDir),
		WindowSize:   getIntOrDefault(common.EnvWindowSize, c.Tiling.WindowSize),
		Overlap:      getFloatOrDefault(common.EnvOverlap, c.Tiling.Overlap),

		Channels:        splitOrDefault(os.Getenv(common.EnvChannels), c.Dataset.Channels),
		LabelChannel:    getEnvOrDefault(common.EnvLabelChannel, c.Dataset.LabelChannel),
		ChannelPatterns: patternsOrDefault(os.Getenv(common.EnvChannelPatterns), c.Dataset.ChannelPatterns),
		ExpectedSamples: getIntOrDefault(common.EnvExpectedSamples, c.Dataset.ExpectedSamples),
		ProgressEvery:   getIntOrDefault(common.EnvProgressEvery, c.Dataset.ProgressEvery),
		Workers:         getIntOrDefault(common.EnvWorkers, c.Dataset.Workers),

		TestFraction: getFloatOrDefault(common.EnvTestFraction, c.Training.TestFraction),
		Seed:         getUintOrDefault(common.EnvSeed, c.Training.Seed),
		NumTrees:     getIntOrDefault(common.EnvNumTrees, c.Training.NumTrees),
		MaxDepth:     getIntOrDefault(common.EnvMaxDepth, c.Training.MaxDepth),
		MinSplit:     getIntOrDefault(common.EnvMinSplit, c.Training.MinSplit),
		MinLeaf:      getIntOrDefault(common.EnvMinLeaf, c.Training.MinLeaf),
		MaxFeatures:  getIntOrDefault(common.EnvMaxFeatures, c.Training.MaxFeatures),
		ModelPath:    getEnvOrDefault(common.EnvModelPath, c.Training.ModelPath),
		ResultsDir:   getEnvOrDefault(common.EnvResultsDir, c.Training.ResultsDir),

		DistanceThreshold: getFloatOrDefault(common.EnvDistanceThreshold, c.Clustering.DistanceThreshold),
		MaxClusterSamples: getIntOrDefault(common.EnvMaxClusterSamples, c.Clustering.MaxSamples),
		Unsupervised:      getBoolOrDefault(common.EnvUnsupervised, c.Clustering.Unsupervised),

		DataPath:    getEnvOrDefault(common.EnvDataPath, c.System.DataPath),
		PostgresURL: getEnvOrDefault(common.EnvPostgresURL, c.System.PostgresURL),
	}
}

// FeatureChannels returns the configured channels with the label removed.
func (s *Settings) FeatureChannels() []string {
	out := make([]string, 0, len(s.Channels))
	for _, c := range s.Channels {
		if c != s.LabelChannel {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks every range the pipeline depends on. All failures wrap
// common.ErrInvalidConfiguration.
func (s *Settings) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{common.ErrInvalidConfiguration}, args...)...))
	}

	if s.WindowSize < 1 || s.WindowSize > common.MaxWindowSize {
		fail("window size must be between 1 and %d, got %d", common.MaxWindowSize, s.WindowSize)
	}
	if s.Overlap < 0 || s.Overlap >= 1 {
		fail("overlap must be in [0, 1), got %f", s.Overlap)
	}
	if s.SamplePrefix == "" {
		fail("sample prefix cannot be empty")
	}

	if len(s.FeatureChannels()) == 0 {
		fail("at least one feature channel must be specified")
	}
	if s.LabelChannel == "" {
		fail("label channel cannot be empty")
	}
	seen := make(map[string]bool, len(s.Channels))
	for _, c := range s.Channels {
		if c == "" {
			fail("channel names cannot be empty")
		}
		if seen[c] {
			fail("duplicate channel %q", c)
		}
		seen[c] = true
	}
	for channel, pattern := range s.ChannelPatterns {
		if !seen[channel] && channel != s.LabelChannel {
			fail("file pattern for unknown channel %q", channel)
		}
		if pattern == "" {
			fail("empty file pattern for channel %q", channel)
		} else if _, err := filepath.Match(pattern, ""); err != nil {
			fail("bad file pattern %q for channel %q: %v", pattern, channel, err)
		}
	}
	if s.ExpectedSamples < 0 {
		fail("expected samples cannot be negative, got %d", s.ExpectedSamples)
	}
	if s.ProgressEvery < 1 {
		fail("progress interval must be at least 1, got %d", s.ProgressEvery)
	}
	if s.Workers < 0 {
		fail("workers cannot be negative, got %d", s.Workers)
	}

	if s.TestFraction <= 0 || s.TestFraction >= 1 {
		fail("test fraction must be in (0, 1), got %f", s.TestFraction)
	}
	if s.NumTrees < 1 || s.NumTrees > common.MaxNumTrees {
		fail("number of trees must be between 1 and %d, got %d", common.MaxNumTrees, s.NumTrees)
	}
	if s.MaxDepth < 0 {
		fail("max depth cannot be negative, got %d", s.MaxDepth)
	}
	if s.MinSplit < 2 {
		fail("min split must be at least 2, got %d", s.MinSplit)
	}
	if s.MinLeaf < 1 {
		fail("min leaf must be at least 1, got %d", s.MinLeaf)
	}
	if s.MaxFeatures < 0 {
		fail("max features cannot be negative, got %d", s.MaxFeatures)
	}
	if s.ModelPath == "" {
		fail("model path cannot be empty")
	}

	if s.DistanceThreshold < 0 {
		fail("distance threshold cannot be negative, got %f", s.DistanceThreshold)
	}
	if s.MaxClusterSamples < 0 {
		fail("max cluster samples cannot be negative, got %d", s.MaxClusterSamples)
	}

	return errors.Join(errs...)
}
