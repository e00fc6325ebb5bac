package configs

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/stats"
	"github.com/RyanBlaney/sonido-ssvep/internal/metrics"
	"github.com/RyanBlaney/sonido-ssvep/internal/synth"
	"github.com/RyanBlaney/sonido-ssvep/logging"
	"github.com/RyanBlaney/sonido-ssvep/ssvep"
)

// EnvPrefix prefixes every environment override, e.g. SSVEP_CLASSIFIER_THRESHOLD
const EnvPrefix = "SSVEP"

// Config represents the application configuration
type Config struct {
	// Application settings
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`

	// Classifier construction parameters
	Classifier ssvep.Config `mapstructure:"classifier" yaml:"classifier"`

	// Synthetic acquisition source
	Simulation synth.Config `mapstructure:"simulation" yaml:"simulation"`

	// Trial session
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// DogStatsD sink for trial outcomes
	Metrics metrics.Config `mapstructure:"metrics" yaml:"metrics"`
}

// SessionConfig controls how trials are run from the command line
type SessionConfig struct {
	Trials            int           `mapstructure:"trials" yaml:"trials"`
	CalibrationTrials int           `mapstructure:"calibration_trials" yaml:"calibration_trials"`
	Rest              time.Duration `mapstructure:"rest" yaml:"rest"`
	Realtime          bool          `mapstructure:"realtime" yaml:"realtime"`
	BaselineFile      string        `mapstructure:"baseline_file" yaml:"baseline_file"`
}

var outputFormats = []string{"table", "json", "yaml"}

// NewViper returns a viper instance with the SSVEP environment binding
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig decodes the configuration held by v, filling in defaults
func LoadConfig(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	if config.Session.BaselineFile != "" && len(config.Classifier.Baseline) == 0 {
		baseline, err := LoadBaseline(config.Session.BaselineFile)
		if err != nil {
			return nil, err
		}
		config.Classifier.Baseline = baseline
	}

	return config, nil
}

// LoadFile reads a YAML configuration file with environment overrides
func LoadFile(path string) (*Config, error) {
	v := NewViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return LoadConfig(v)
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if _, err := logging.ParseLevel(config.LogLevel); err != nil {
		return err
	}

	if !slices.Contains(outputFormats, config.OutputFormat) {
		return fmt.Errorf("output format must be one of %s, got %q", strings.Join(outputFormats, ", "), config.OutputFormat)
	}

	if err := config.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	if err := config.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}

	if config.Simulation.SampleRate != config.Classifier.SamplingRate {
		return fmt.Errorf("simulation sample rate (%v Hz) must match classifier sampling rate (%v Hz)",
			config.Simulation.SampleRate, config.Classifier.SamplingRate)
	}

	if highest := slices.Max(config.Classifier.Channels); highest >= config.Simulation.Channels {
		return fmt.Errorf("classifier channel %d not produced by a %d channel simulation", highest, config.Simulation.Channels)
	}

	if config.Session.Trials < 0 {
		return fmt.Errorf("trial count cannot be negative")
	}

	if config.Session.CalibrationTrials < 0 {
		return fmt.Errorf("calibration trial count cannot be negative")
	}

	if config.Session.Rest < 0 {
		return fmt.Errorf("rest between trials cannot be negative")
	}

	return nil
}

// baselineFile is the on-disk layout written by the calibrate command
type baselineFile struct {
	Frequencies []float64        `yaml:"frequencies"`
	Baseline    []stats.Gaussian `yaml:"baseline"`
}

// SaveBaseline writes per-target distributions to path as YAML
func SaveBaseline(path string, frequencies []float64, baseline []stats.Gaussian) error {
	data, err := yaml.Marshal(baselineFile{Frequencies: frequencies, Baseline: baseline})
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write baseline %s: %w", path, err)
	}
	return nil
}

// LoadBaseline reads distributions written by SaveBaseline
func LoadBaseline(path string) ([]stats.Gaussian, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline %s: %w", path, err)
	}

	var file baselineFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode baseline %s: %w", path, err)
	}

	for i, g := range file.Baseline {
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("baseline %s target %d: %w", path, i, err)
		}
	}

	return file.Baseline, nil
}
