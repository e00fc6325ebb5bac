package ssvep

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/filters"
	"github.com/RyanBlaney/sonido-ssvep/algorithms/stats"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.WindowSize())
	assert.Equal(t, 35, cfg.SettlingSamples())
	assert.Greater(t, cfg.Workers(), 0)
}

func TestConfigWindowSize(t *testing.T) {
	cfg := testConfig()
	cfg.TrialDuration = 4000 * time.Millisecond
	cfg.SamplingRate = 250
	assert.Equal(t, 1000, cfg.WindowSize())

	cfg.TrialDuration = 2 * time.Second
	cfg.SamplingRate = 256
	assert.Equal(t, 512, cfg.WindowSize())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		target error
	}{
		{"no patterns", func(c *Config) { c.Patterns = nil }, ErrInvalidArgument},
		{"zero harmonics", func(c *Config) { c.Harmonics = 0 }, ErrInvalidArgument},
		{"negative harmonics", func(c *Config) { c.Harmonics = -2 }, ErrInvalidArgument},
		{"no channels", func(c *Config) { c.Channels = []int{} }, ErrInvalidArgument},
		{"negative channel", func(c *Config) { c.Channels = []int{0, -1} }, ErrInvalidArgument},
		{"duplicate channel", func(c *Config) { c.Channels = []int{1, 1} }, ErrInvalidArgument},
		{"zero trial duration", func(c *Config) { c.TrialDuration = 0 }, ErrInvalidArgument},
		{"negative trial duration", func(c *Config) { c.TrialDuration = -time.Second }, ErrInvalidArgument},
		{"zero sampling rate", func(c *Config) { c.SamplingRate = 0 }, ErrInvalidArgument},
		{"negative settling", func(c *Config) { c.SettlingDelay = -time.Millisecond }, ErrInvalidArgument},
		{"negative parallelism", func(c *Config) { c.Parallelism = -1 }, ErrInvalidArgument},
		{"window too short", func(c *Config) { c.TrialDuration = 10 * time.Millisecond }, ErrInvalidArgument},
		{"composite pattern", func(c *Config) {
			c.Patterns = []Pattern{{Name: "mix", Frequencies: []float64{12, 15}}}
		}, ErrUnsupportedPattern},
		{"empty pattern", func(c *Config) { c.Patterns = []Pattern{{Name: "none"}} }, ErrUnsupportedPattern},
		{"negative frequency", func(c *Config) { c.Patterns = SingleFrequencyPatterns(-3) }, ErrInvalidArgument},
		{"band beyond nyquist", func(c *Config) {
			c.FilterBank = []filters.Band{{Low: 130, High: 200}}
		}, ErrInvalidArgument},
		{"unknown predictor", func(c *Config) { c.Predictor = "vote" }, ErrInvalidArgument},
		{"statistics without baseline", func(c *Config) { c.Predictor = PredictorStatistics }, ErrInvalidArgument},
		{"statistics with bad baseline", func(c *Config) {
			c.Predictor = PredictorStatistics
			c.Baseline = []stats.Gaussian{{}, {}, {}, {Mean: math.NaN()}}
		}, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestConfigStatisticsWithBaseline(t *testing.T) {
	cfg := testConfig()
	cfg.Predictor = PredictorStatistics
	cfg.Baseline = []stats.Gaussian{{Mean: 0.2, StdDev: 0.05}, {Mean: 0.2, StdDev: 0.05}, {Mean: 0.2, StdDev: 0.05}, {Mean: 0.2}}
	assert.NoError(t, cfg.Validate())
}

func TestMixingWeight(t *testing.T) {
	m := Mixing{A: 1.25, B: 0.25}
	assert.InDelta(t, 1.25, m.Weight(0), 1e-12)
	assert.InDelta(t, math.Pow(2, -1.25)+0.25, m.Weight(1), 1e-12)
	assert.Greater(t, m.Weight(1), m.Weight(2))

	flat := Mixing{A: 0, B: 0}
	assert.Equal(t, 1.0, flat.Weight(4))
}

func TestSingleFrequencyPatterns(t *testing.T) {
	patterns := SingleFrequencyPatterns(8.5, 12)
	require.Len(t, patterns, 2)
	assert.Equal(t, "8.50Hz", patterns[0].Name)

	f, err := patterns[1].Frequency()
	require.NoError(t, err)
	assert.Equal(t, 12.0, f)
}
