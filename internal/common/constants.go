package common

// Environment variable keys
const (
	EnvConfigFile        = "CONFIG_FILE"
	EnvEnvFile           = "ENV_FILE"
	EnvSourceDir         = "SOURCE_DIR"
	EnvDestDir           = "DEST_DIR"
	EnvSamplePrefix      = "SAMPLE_PREFIX"
	EnvWindowSize        = "WINDOW_SIZE"
	EnvOverlap           = "OVERLAP"
	EnvChannels          = "CHANNELS"
	EnvLabelChannel      = "LABEL_CHANNEL"
	EnvExpectedSamples   = "EXPECTED_SAMPLES"
	EnvProgressEvery     = "PROGRESS_EVERY"
	EnvWorkers           = "WORKERS"
	EnvTestFraction      = "TEST_FRACTION"
	EnvSeed              = "SEED"
	EnvNumTrees          = "NUM_TREES"
	EnvMaxDepth          = "MAX_DEPTH"
	EnvMinSplit          = "MIN_SPLIT"
	EnvMinLeaf           = "MIN_LEAF"
	EnvMaxFeatures       = "MAX_FEATURES"
	EnvModelPath         = "MODEL_PATH"
	EnvResultsDir        = "RESULTS_DIR"
	EnvDataPath          = "DATA_PATH"
	EnvDistanceThreshold = "DISTANCE_THRESHOLD"
	EnvMaxClusterSamples = "MAX_CLUSTER_SAMPLES"
	EnvPostgresURL       = "POSTGRES_URL"
	EnvCacheDir          = "CACHE_DIR"
	EnvUnsupervised      = "UNSUPERVISED"
	EnvChannelPatterns   = "CHANNEL_PATTERNS"
)

// Configuration defaults
const (
	DefaultSourceDir         = "source_data"
	DefaultDestDir           = "data/training_data"
	DefaultSamplePrefix      = "sample_"
	DefaultWindowSize        = 100
	DefaultOverlap           = 0.5
	DefaultLabelChannel      = "label"
	DefaultProgressEvery     = 100
	DefaultTestFraction      = 0.3
	DefaultSeed              = 0
	DefaultNumTrees          = 100
	DefaultMinSplit          = 2
	DefaultMinLeaf           = 1
	DefaultModelPath         = "saved_model/random_forest.json"
	DefaultResultsDir        = "results"
	DefaultDataPath          = "data"
	DefaultDistanceThreshold = 0.5
	DefaultCacheDir          = "source_data/.cache"
)

// DefaultChannels mirrors the feature layers produced by the upstream
// cropping and index scripts.
var DefaultChannels = []string{"humidity", "temperature", "ndvi", "lst"}

// Tile file extension written by the tiler and recognised by the assembler.
const TileExt = ".tif"

// Validation constants
const (
	MaxWindowSize = 1 << 15
	MaxNumTrees   = 10000
)
