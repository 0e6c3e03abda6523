package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"wildfire-rf/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	clearTestEnv(t)

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, common.DefaultWindowSize, settings.WindowSize)
	assert.Equal(t, common.DefaultOverlap, settings.Overlap)
	assert.Equal(t, common.DefaultTestFraction, settings.TestFraction)
	assert.Equal(t, uint64(common.DefaultSeed), settings.Seed)
	assert.Equal(t, common.DefaultNumTrees, settings.NumTrees)
	assert.Equal(t, common.DefaultChannels, settings.Channels)
	assert.Equal(t, common.DefaultLabelChannel, settings.LabelChannel)
	assert.Equal(t, common.DefaultModelPath, settings.ModelPath)
	assert.Equal(t, common.DefaultDistanceThreshold, settings.DistanceThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearTestEnv(t)
	t.Setenv(common.EnvWindowSize, "64")
	t.Setenv(common.EnvOverlap, "0")
	t.Setenv(common.EnvTestFraction, "0.25")
	t.Setenv(common.EnvSeed, "42")
	t.Setenv(common.EnvChannels, "ndvi, ndmi ,bai")
	t.Setenv(common.EnvLabelChannel, "wildfire")

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 64, settings.WindowSize)
	assert.Equal(t, 0.0, settings.Overlap)
	assert.Equal(t, 0.25, settings.TestFraction)
	assert.Equal(t, uint64(42), settings.Seed)
	assert.Equal(t, []string{"ndvi", "ndmi", "bai"}, settings.Channels)
	assert.Equal(t, "wildfire", settings.LabelChannel)
	assert.False(t, settings.Unsupervised)
	assert.Nil(t, settings.ChannelPatterns)
}

func TestLoad_ClusteringAndPatternEnv(t *testing.T) {
	clearTestEnv(t)
	t.Setenv(common.EnvUnsupervised, "true")
	t.Setenv(common.EnvChannelPatterns, "ndvi=NDVI_*.tif, label = MTBS_*.tif")

	settings, err := Load()
	require.NoError(t, err)
	assert.True(t, settings.Unsupervised)
	assert.Equal(t, map[string]string{"ndvi": "NDVI_*.tif", "label": "MTBS_*.tif"}, settings.ChannelPatterns)

	t.Setenv(common.EnvUnsupervised, "not-a-bool")
	settings, err = Load()
	require.NoError(t, err)
	assert.False(t, settings.Unsupervised)

	t.Setenv(common.EnvChannelPatterns, "ndvi")
	_, err = Load()
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)

	t.Setenv(common.EnvChannelPatterns, "ndvi=[bad")
	_, err = Load()
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestLoad_YAML(t *testing.T) {
	clearTestEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
tiling:
  destDir: "/tmp/tiles"
  windowSize: 50
  overlap: 0.25

dataset:
  channels: ["humidity", "temperature"]
  labelChannel: "burned"
  channelPatterns:
    humidity: "Humidity_*.tif"
  progressEvery: 10

training:
  testFraction: 0.2
  seed: 7
  numTrees: 25
  maxDepth: 8

clustering:
  distanceThreshold: 1.5
  unsupervised: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv(common.EnvConfigFile, path)
	t.Setenv(common.EnvNumTrees, "30")

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/tiles", settings.DestDir)
	assert.Equal(t, 50, settings.WindowSize)
	assert.Equal(t, 0.25, settings.Overlap)
	assert.Equal(t, []string{"humidity", "temperature"}, settings.Channels)
	assert.Equal(t, "burned", settings.LabelChannel)
	assert.Equal(t, map[string]string{"humidity": "Humidity_*.tif"}, settings.ChannelPatterns)
	assert.Equal(t, 10, settings.ProgressEvery)
	assert.Equal(t, 0.2, settings.TestFraction)
	assert.Equal(t, uint64(7), settings.Seed)
	assert.Equal(t, 30, settings.NumTrees, "env should override file")
	assert.Equal(t, 8, settings.MaxDepth)
	assert.Equal(t, 1.5, settings.DistanceThreshold)
	assert.True(t, settings.Unsupervised)

	// Omitted keys keep defaults.
	assert.Equal(t, common.DefaultSamplePrefix, settings.SamplePrefix)
	assert.Equal(t, common.DefaultMinLeaf, settings.MinLeaf)
}

func TestLoad_YAMLErrors(t *testing.T) {
	clearTestEnv(t)

	t.Run("missing file", func(t *testing.T) {
		t.Setenv(common.EnvConfigFile, filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tiling: [unclosed"), 0o600))
		t.Setenv(common.EnvConfigFile, path)
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tiling:\n  overlap: 1.0\n"), 0o600))
		t.Setenv(common.EnvConfigFile, path)
		_, err := Load()
		assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	})
}

func TestLoad_EnvFile(t *testing.T) {
	clearTestEnv(t)

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("WINDOW_SIZE=32\nSEED=9\n"), 0o600))
	t.Setenv(common.EnvEnvFile, path)
	// godotenv.Load sets process env; make sure t.Setenv restores it.
	t.Setenv(common.EnvWindowSize, "")
	t.Setenv(common.EnvSeed, "")
	os.Unsetenv(common.EnvWindowSize)
	os.Unsetenv(common.EnvSeed)

	settings, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 32, settings.WindowSize)
	assert.Equal(t, uint64(9), settings.Seed)
}

func TestFeatureChannels(t *testing.T) {
	s := Settings{Channels: []string{"a", "label", "b"}, LabelChannel: "label"}
	assert.Equal(t, []string{"a", "b"}, s.FeatureChannels())
}

// clearTestEnv clears potentially conflicting environment variables
func clearTestEnv(t *testing.T) {
	envVars := []string{
		common.EnvConfigFile, common.EnvSourceDir, common.EnvDestDir, common.EnvSamplePrefix,
		common.EnvWindowSize, common.EnvOverlap, common.EnvChannels, common.EnvLabelChannel,
		common.EnvExpectedSamples, common.EnvProgressEvery, common.EnvWorkers,
		common.EnvTestFraction, common.EnvSeed, common.EnvNumTrees, common.EnvMaxDepth,
		common.EnvMinSplit, common.EnvMinLeaf, common.EnvMaxFeatures, common.EnvModelPath,
		common.EnvResultsDir, common.EnvDataPath, common.EnvDistanceThreshold,
		common.EnvMaxClusterSamples, common.EnvPostgresURL, common.EnvCacheDir,
		common.EnvUnsupervised, common.EnvChannelPatterns,
	}

	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			t.Setenv(env, "")
		}
	}
	// Point at a file that never exists so a developer's .env is ignored.
	t.Setenv(common.EnvEnvFile, filepath.Join(t.TempDir(), "absent.env"))
}
