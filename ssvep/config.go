package ssvep

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/filters"
	"github.com/RyanBlaney/sonido-ssvep/algorithms/stats"
)

var (
	// ErrInvalidArgument is returned by New and Config.Validate for unusable configuration
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedPattern is returned for stimulation patterns with more than one frequency component
	ErrUnsupportedPattern = errors.New("unsupported stimulation pattern")
)

// PredictorKind selects the decision rule applied to the feature vector
type PredictorKind string

const (
	PredictorMaxScore   PredictorKind = "max_score"
	PredictorStatistics PredictorKind = "statistics"
)

// Pattern describes the flicker of one target. Only single-frequency
// patterns are supported.
type Pattern struct {
	Name        string    `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Frequencies []float64 `json:"frequencies" yaml:"frequencies" mapstructure:"frequencies"`
}

// Frequency returns the single stimulation frequency of the pattern
func (p Pattern) Frequency() (float64, error) {
	if len(p.Frequencies) != 1 {
		return 0, fmt.Errorf("%w: pattern %q has %d frequency components", ErrUnsupportedPattern, p.Name, len(p.Frequencies))
	}
	f := p.Frequencies[0]
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: pattern %q frequency must be positive, got %v", ErrInvalidArgument, p.Name, f)
	}
	return f, nil
}

// SingleFrequencyPatterns builds one pattern per frequency
func SingleFrequencyPatterns(freqs ...float64) []Pattern {
	patterns := make([]Pattern, len(freqs))
	for i, f := range freqs {
		patterns[i] = Pattern{
			Name:        fmt.Sprintf("%.2fHz", f),
			Frequencies: []float64{f},
		}
	}
	return patterns
}

// Mixing holds the FBCCA sub-band weighting w(n) = (n+1)^(-A) + B,
// n being the 0-based sub-band index.
type Mixing struct {
	A float64 `json:"a" yaml:"a" mapstructure:"a"`
	B float64 `json:"b" yaml:"b" mapstructure:"b"`
}

// Weight returns the weight of sub-band n
func (m Mixing) Weight(n int) float64 {
	return math.Pow(float64(n+1), -m.A) + m.B
}

// Config holds every construction parameter of a Classifier
type Config struct {
	// Targets
	Patterns  []Pattern `json:"patterns" yaml:"patterns" mapstructure:"patterns"`
	Harmonics int       `json:"harmonics" yaml:"harmonics" mapstructure:"harmonics"`

	// Filter bank (empty disables sub-band mixing)
	FilterBank []filters.Band `json:"filter_bank,omitempty" yaml:"filter_bank,omitempty" mapstructure:"filter_bank"`
	Mixing     Mixing         `json:"mixing" yaml:"mixing" mapstructure:"mixing"`

	// Signal
	Channels     []int   `json:"channels" yaml:"channels" mapstructure:"channels"`
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" mapstructure:"sampling_rate"`

	// Trial protocol
	TrialDuration time.Duration `json:"trial_duration" yaml:"trial_duration" mapstructure:"trial_duration"`
	SettlingDelay time.Duration `json:"settling_delay" yaml:"settling_delay" mapstructure:"settling_delay"`
	PollInterval  time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// Decision
	Predictor PredictorKind    `json:"predictor" yaml:"predictor" mapstructure:"predictor"`
	Threshold float64          `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
	Baseline  []stats.Gaussian `json:"baseline,omitempty" yaml:"baseline,omitempty" mapstructure:"baseline"`

	// Parallelism bounds the worker pool of the feature computer; 0 uses every CPU
	Parallelism int `json:"parallelism" yaml:"parallelism" mapstructure:"parallelism"`
}

// DefaultConfig returns a four-target configuration for an 8 channel
// headset sampled at 250 Hz.
func DefaultConfig() Config {
	return Config{
		Patterns:      SingleFrequencyPatterns(13, 14, 15, 16),
		Harmonics:     3,
		Mixing:        Mixing{A: 1.25, B: 0.25},
		Channels:      []int{0, 1, 2, 3, 4, 5, 6, 7},
		SamplingRate:  250,
		TrialDuration: 4 * time.Second,
		SettlingDelay: 140 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
		Predictor:     PredictorMaxScore,
		Threshold:     0.5,
		Parallelism:   0,
	}
}

// WindowSize is the number of samples in one classification window:
// the trial duration expressed in samples.
func (c Config) WindowSize() int {
	return int(math.Round(c.TrialDuration.Seconds() * c.SamplingRate))
}

// SettlingSamples is the number of samples dropped after every activation toggle
func (c Config) SettlingSamples() int {
	return int(math.Round(c.SettlingDelay.Seconds() * c.SamplingRate))
}

// Workers resolves the effective worker pool size
func (c Config) Workers() int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	return runtime.NumCPU()
}

// Frequencies resolves the stimulation frequency of every pattern
func (c Config) Frequencies() ([]float64, error) {
	freqs := make([]float64, len(c.Patterns))
	for i, p := range c.Patterns {
		f, err := p.Frequency()
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		freqs[i] = f
	}
	return freqs, nil
}

// Validate checks the configuration eagerly
func (c Config) Validate() error {
	if len(c.Patterns) == 0 {
		return fmt.Errorf("%w: at least one target pattern is required", ErrInvalidArgument)
	}

	if c.Harmonics <= 0 {
		return fmt.Errorf("%w: harmonics must be positive, got %d", ErrInvalidArgument, c.Harmonics)
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("%w: at least one channel is required", ErrInvalidArgument)
	}

	seen := make(map[int]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch < 0 {
			return fmt.Errorf("%w: channel index must not be negative, got %d", ErrInvalidArgument, ch)
		}
		if seen[ch] {
			return fmt.Errorf("%w: channel %d listed twice", ErrInvalidArgument, ch)
		}
		seen[ch] = true
	}

	if c.TrialDuration <= 0 {
		return fmt.Errorf("%w: trial duration must be positive, got %s", ErrInvalidArgument, c.TrialDuration)
	}

	if c.SamplingRate <= 0 || math.IsNaN(c.SamplingRate) {
		return fmt.Errorf("%w: sampling rate must be positive, got %v", ErrInvalidArgument, c.SamplingRate)
	}

	if c.SettlingDelay < 0 {
		return fmt.Errorf("%w: settling delay must not be negative, got %s", ErrInvalidArgument, c.SettlingDelay)
	}

	if c.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism must not be negative, got %d", ErrInvalidArgument, c.Parallelism)
	}

	if ws := c.WindowSize(); ws <= 2*c.Harmonics {
		return fmt.Errorf("%w: window of %d samples is too short for %d harmonics", ErrInvalidArgument, ws, c.Harmonics)
	}

	if _, err := c.Frequencies(); err != nil {
		return err
	}

	for i, b := range c.FilterBank {
		if err := b.Validate(c.SamplingRate); err != nil {
			return fmt.Errorf("%w: filter bank band %d: %v", ErrInvalidArgument, i, err)
		}
	}

	switch c.Predictor {
	case "", PredictorMaxScore:
	case PredictorStatistics:
		if len(c.Baseline) != len(c.Patterns) {
			return fmt.Errorf("%w: statistics predictor needs %d baseline distributions, got %d",
				ErrInvalidArgument, len(c.Patterns), len(c.Baseline))
		}
		for i, g := range c.Baseline {
			if err := g.Validate(); err != nil {
				return fmt.Errorf("%w: baseline %d: %v", ErrInvalidArgument, i, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown predictor %q (must be %s or %s)",
			ErrInvalidArgument, c.Predictor, PredictorMaxScore, PredictorStatistics)
	}

	return nil
}
