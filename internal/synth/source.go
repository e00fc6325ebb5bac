// Package synth generates synthetic multichannel SSVEP recordings: a flicker
// response at one frequency plus Gaussian background noise.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Config describes a synthetic recording
type Config struct {
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels   int     `json:"channels" yaml:"channels" mapstructure:"channels"`

	// Frequency of the evoked response; 0 produces noise only
	Frequency float64 `json:"frequency" yaml:"frequency" mapstructure:"frequency"`
	Amplitude float64 `json:"amplitude" yaml:"amplitude" mapstructure:"amplitude"`

	// Harmonics adds the response at 2f, 3f... with amplitude 1/k
	Harmonics int `json:"harmonics" yaml:"harmonics" mapstructure:"harmonics"`

	// PhaseStep shifts the phase of channel c by c*PhaseStep radians
	PhaseStep float64 `json:"phase_step" yaml:"phase_step" mapstructure:"phase_step"`

	// Noise is the standard deviation of the additive Gaussian noise
	Noise float64 `json:"noise" yaml:"noise" mapstructure:"noise"`
	Seed  uint64  `json:"seed" yaml:"seed" mapstructure:"seed"`
}

// DefaultConfig returns an 8 channel recording at 250 Hz with a 15 Hz response
func DefaultConfig() Config {
	return Config{
		SampleRate: 250,
		Channels:   8,
		Frequency:  15,
		Amplitude:  1,
		Harmonics:  1,
		PhaseStep:  0.3,
		Noise:      0.1,
		Seed:       1,
	}
}

// Validate checks that the recording can be generated
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", c.Channels)
	}
	if c.Frequency < 0 || c.Frequency >= c.SampleRate/2 {
		return fmt.Errorf("frequency %v Hz outside [0, %v)", c.Frequency, c.SampleRate/2)
	}
	if c.Noise < 0 {
		return fmt.Errorf("noise must not be negative, got %v", c.Noise)
	}
	return nil
}

// Source produces one sample vector per call. It is not safe for concurrent use.
type Source struct {
	cfg   Config
	noise distuv.Normal
	index uint64
}

// NewSource creates a deterministic source for cfg
func NewSource(cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		cfg:   cfg,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: cfg.Noise,
			Src:   rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15),
		},
	}, nil
}

// Next returns the channel values of the next sample and its sequence index
func (s *Source) Next() ([]float64, uint64) {
	values := make([]float64, s.cfg.Channels)
	t := float64(s.index) / s.cfg.SampleRate

	harmonics := max(s.cfg.Harmonics, 1)
	for c := range values {
		var v float64
		if s.cfg.Frequency > 0 {
			phase := float64(c) * s.cfg.PhaseStep
			for k := 1; k <= harmonics; k++ {
				v += s.cfg.Amplitude / float64(k) * math.Sin(2*math.Pi*s.cfg.Frequency*float64(k)*t+phase)
			}
		}
		if s.cfg.Noise > 0 {
			v += s.noise.Rand()
		}
		values[c] = v
	}

	idx := s.index
	s.index++
	return values, idx
}

// Offset returns the time of sample idx relative to the start of the recording
func (s *Source) Offset(idx uint64) time.Duration {
	return time.Duration(float64(idx) * float64(time.Second) / s.cfg.SampleRate)
}

// Window returns n consecutive samples as a flat row-major n x channels matrix
func (s *Source) Window(n int) []float64 {
	out := make([]float64, 0, n*s.cfg.Channels)
	for range n {
		values, _ := s.Next()
		out = append(out, values...)
	}
	return out
}
