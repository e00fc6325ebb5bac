package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/filters"
	"github.com/RyanBlaney/sonido-ssvep/algorithms/stats"
	"github.com/RyanBlaney/sonido-ssvep/ssvep"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, "table", config.OutputFormat)
	assert.Equal(t, ssvep.DefaultConfig(), config.Classifier)
	assert.Equal(t, 10, config.Session.Trials)
	assert.Equal(t, time.Second, config.Session.Rest)
	assert.Equal(t, 8, config.Simulation.Channels)

	require.NoError(t, ValidateConfig(config))
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "ssvep.yaml", `
log_level: debug
output_format: json
classifier:
  patterns:
    - name: left
      frequencies: [8.57]
    - name: right
      frequencies: [12]
  harmonics: 2
  channels: [0, 2]
  trial_duration: 2s
  settling_delay: 100ms
  filter_bank:
    - {low: 6, high: 90}
    - {low: 14, high: 90}
  mixing: {a: 1.0, b: 0.0}
session:
  trials: 3
simulation:
  channels: 4
  frequency: 12
`)

	config, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(config))

	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "json", config.OutputFormat)

	c := config.Classifier
	require.Len(t, c.Patterns, 2)
	assert.Equal(t, "left", c.Patterns[0].Name)
	assert.Equal(t, []float64{12}, c.Patterns[1].Frequencies)
	assert.Equal(t, 2, c.Harmonics)
	assert.Equal(t, []int{0, 2}, c.Channels)
	assert.Equal(t, 2*time.Second, c.TrialDuration)
	assert.Equal(t, 100*time.Millisecond, c.SettlingDelay)
	assert.Equal(t, []filters.Band{{Low: 6, High: 90}, {Low: 14, High: 90}}, c.FilterBank)
	assert.Equal(t, ssvep.Mixing{A: 1}, c.Mixing)

	// untouched keys keep their defaults
	assert.Equal(t, 250.0, c.SamplingRate)
	assert.Equal(t, 0.5, c.Threshold)
	assert.Equal(t, 3, config.Session.Trials)
	assert.Equal(t, 20, config.Session.CalibrationTrials)
	assert.Equal(t, 12.0, config.Simulation.Frequency)
}

func TestLoadFileEnvironmentOverride(t *testing.T) {
	path := writeFile(t, "ssvep.yaml", "classifier:\n  threshold: 0.3\n")
	t.Setenv("SSVEP_CLASSIFIER_THRESHOLD", "0.8")

	config, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, config.Classifier.Threshold)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad output format", func(c *Config) { c.OutputFormat = "xml" }},
		{"invalid classifier", func(c *Config) { c.Classifier.Harmonics = 0 }},
		{"invalid simulation", func(c *Config) { c.Simulation.Channels = 0 }},
		{"sample rate mismatch", func(c *Config) { c.Simulation.SampleRate = 500 }},
		{"channel not simulated", func(c *Config) { c.Classifier.Channels = []int{0, 9} }},
		{"negative trials", func(c *Config) { c.Session.Trials = -1 }},
		{"negative calibration", func(c *Config) { c.Session.CalibrationTrials = -1 }},
		{"negative rest", func(c *Config) { c.Session.Rest = -time.Second }},
	}

	require.NoError(t, ValidateConfig(GetDefaultConfig()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.modify(config)
			assert.Error(t, ValidateConfig(config))
		})
	}
}

func TestBaselineRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.yaml")
	baseline := []stats.Gaussian{{Mean: 0.31, StdDev: 0.04}, {Mean: 0.22, StdDev: 0.02}}

	require.NoError(t, SaveBaseline(path, []float64{10, 12}, baseline))

	loaded, err := LoadBaseline(path)
	require.NoError(t, err)
	assert.Equal(t, baseline, loaded)
}

func TestLoadConfigReadsBaselineFile(t *testing.T) {
	dir := t.TempDir()
	baselinePath := filepath.Join(dir, "baseline.yaml")
	baseline := []stats.Gaussian{{Mean: 0.3, StdDev: 0.1}, {Mean: 0.3, StdDev: 0.1}, {Mean: 0.2}, {Mean: 0.25, StdDev: 0.05}}
	require.NoError(t, SaveBaseline(baselinePath, []float64{13, 14, 15, 16}, baseline))

	path := writeFile(t, "ssvep.yaml", "classifier:\n  predictor: statistics\nsession:\n  baseline_file: "+baselinePath+"\n")

	config, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, baseline, config.Classifier.Baseline)
	assert.NoError(t, ValidateConfig(config))
}

func TestLoadBaselineRejectsInvalid(t *testing.T) {
	path := writeFile(t, "baseline.yaml", "baseline:\n  - {mean: 0.3, std_dev: -1}\n")
	_, err := LoadBaseline(path)
	assert.Error(t, err)
}
