package cfg

import (
	"testing"

	"wildfire-rf/internal/common"

	"github.com/stretchr/testify/assert"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		SamplePrefix:      "sample_",
		WindowSize:        100,
		Overlap:           0.5,
		Channels:          []string{"humidity", "temperature", "ndvi"},
		LabelChannel:      "label",
		ProgressEvery:     100,
		TestFraction:      0.3,
		NumTrees:          100,
		MinSplit:          2,
		MinLeaf:           1,
		ModelPath:         "model.json",
		DistanceThreshold: 0.5,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	settings := createValidSettings()
	assert.NoError(t, settings.Validate())
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"zero window", func(s *Settings) { s.WindowSize = 0 }},
		{"negative overlap", func(s *Settings) { s.Overlap = -0.1 }},
		{"overlap of one", func(s *Settings) { s.Overlap = 1 }},
		{"empty prefix", func(s *Settings) { s.SamplePrefix = "" }},
		{"no channels", func(s *Settings) { s.Channels = nil }},
		{"only label channel", func(s *Settings) { s.Channels = []string{"label"} }},
		{"empty label", func(s *Settings) { s.LabelChannel = "" }},
		{"duplicate channel", func(s *Settings) { s.Channels = []string{"a", "a"} }},
		{"empty channel name", func(s *Settings) { s.Channels = []string{"a", ""} }},
		{"pattern for unknown channel", func(s *Settings) { s.ChannelPatterns = map[string]string{"bai": "bai_*.tif"} }},
		{"empty pattern", func(s *Settings) { s.ChannelPatterns = map[string]string{"ndvi": ""} }},
		{"malformed pattern", func(s *Settings) { s.ChannelPatterns = map[string]string{"ndvi": "[ndvi"} }},
		{"negative expected samples", func(s *Settings) { s.ExpectedSamples = -1 }},
		{"zero progress interval", func(s *Settings) { s.ProgressEvery = 0 }},
		{"zero test fraction", func(s *Settings) { s.TestFraction = 0 }},
		{"full test fraction", func(s *Settings) { s.TestFraction = 1 }},
		{"no trees", func(s *Settings) { s.NumTrees = 0 }},
		{"too many trees", func(s *Settings) { s.NumTrees = common.MaxNumTrees + 1 }},
		{"negative depth", func(s *Settings) { s.MaxDepth = -1 }},
		{"min split of one", func(s *Settings) { s.MinSplit = 1 }},
		{"zero min leaf", func(s *Settings) { s.MinLeaf = 0 }},
		{"negative max features", func(s *Settings) { s.MaxFeatures = -2 }},
		{"empty model path", func(s *Settings) { s.ModelPath = "" }},
		{"negative threshold", func(s *Settings) { s.DistanceThreshold = -0.5 }},
		{"negative cluster cap", func(s *Settings) { s.MaxClusterSamples = -1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			tc.mutate(settings)
			err := settings.Validate()
			assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
		})
	}
}

func TestValidate_ReportsAllFailures(t *testing.T) {
	settings := createValidSettings()
	settings.WindowSize = 0
	settings.TestFraction = 2

	err := settings.Validate()
	assert.ErrorContains(t, err, "window size")
	assert.ErrorContains(t, err, "test fraction")
}
